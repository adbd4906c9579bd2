// Package client implements the viewer-side half of the live board: a local
// mirror of the grid kept in sync with the server over the persistent
// channel, with optimistic local paints, coalesced application of remote
// updates, and resync-on-reconnect.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"publicpixel-server/internal/grid"
	"publicpixel-server/internal/protocol"
)

var ErrCooldownActive = errors.New("COOLDOWN_ACTIVE: Wait before painting again")

const (
	defaultFlushInterval  = 250 * time.Millisecond
	defaultReconnectDelay = 3 * time.Second
	defaultCooldown       = 24 * time.Second
)

type Config struct {
	// ServerURL is the http(s) base URL of the server, no trailing slash.
	ServerURL string
	// Token is the session credential, passed as an upgrade parameter on
	// the websocket handshake and as a bearer token on mutations.
	Token string
	// Email, when set, is the identity this client expects to hold. If the
	// server confirms the connection under a different identity the client
	// sends an identify message to rebind.
	Email string

	// FlushInterval is the coalescing window for inbound pixel updates.
	FlushInterval time.Duration
	// ReconnectDelay is the fixed wait before each reconnection attempt.
	// Deliberately not exponential and unbounded in retry count.
	ReconnectDelay time.Duration
	// CooldownInterval gates local paints. Advisory only.
	CooldownInterval time.Duration

	// OnRender, when set, receives a board snapshot after every mirror
	// change worth re-rendering.
	OnRender func([]grid.Cell)
	// OnNotification receives point-to-point server notifications.
	OnNotification func(string)

	HTTPClient *http.Client
}

// Reconciler maintains the local grid mirror. All mirror state is owned by
// one logical thread of control: the Run loop applies remote input, and the
// mutex only covers the handoff with Paint/Snapshot callers.
type Reconciler struct {
	cfg      Config
	cooldown *Cooldown

	mu       sync.RWMutex
	mirror   []grid.Cell
	pending  map[int]grid.Cell
	identity string
	conn     *websocket.Conn
}

func New(cfg Config) *Reconciler {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.CooldownInterval <= 0 {
		cfg.CooldownInterval = defaultCooldown
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	return &Reconciler{
		cfg:      cfg,
		cooldown: NewCooldown(cfg.CooldownInterval),
		pending:  make(map[int]grid.Cell),
	}
}

// Run connects and keeps the mirror synchronized until ctx is canceled.
// A dropped connection schedules a reconnect after the fixed delay; the
// fresh handshake's fullSync supersedes whatever went stale during the
// outage.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		if err := r.runConnection(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Connection lost: %v (reconnecting in %v)", err, r.cfg.ReconnectDelay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.ReconnectDelay):
		}
	}
}

// serverFrame is the inbound envelope before payload decoding.
type serverFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (r *Reconciler) runConnection(ctx context.Context) error {
	wsURL := "ws" + strings.TrimPrefix(r.cfg.ServerURL, "http") + "/websocket?token=" + r.cfg.Token

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	r.setConn(conn)
	defer r.setConn(nil)

	frames := make(chan serverFrame)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			var frame serverFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				log.Printf("Invalid frame from server: %v", err)
				continue
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-frames:
			r.handleFrame(ctx, frame)
		case <-ticker.C:
			r.flush()
		case err := <-readErr:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Reconciler) handleFrame(ctx context.Context, frame serverFrame) {
	switch frame.Type {
	case protocol.TypeConnectionConfirmed:
		var confirmed protocol.ConnectionConfirmed
		if err := json.Unmarshal(frame.Payload, &confirmed); err != nil {
			log.Printf("Invalid connectionConfirmed payload: %v", err)
			return
		}
		r.mu.Lock()
		r.identity = confirmed.Email
		r.mu.Unlock()

		// Reconcile a transient identity mismatch by rebinding the
		// presence entry to the identity this client expects.
		if r.cfg.Email != "" && confirmed.Email != r.cfg.Email {
			r.sendIdentify(ctx, r.cfg.Email)
		}

	case protocol.TypeFullSync:
		var sync protocol.FullSync
		if err := json.Unmarshal(frame.Payload, &sync); err != nil {
			log.Printf("Invalid fullSync payload: %v", err)
			return
		}
		r.applyFullSync(sync.Pixels)

	case protocol.TypePixelUpdate:
		var update protocol.PixelUpdate
		if err := json.Unmarshal(frame.Payload, &update); err != nil {
			log.Printf("Invalid pixelUpdate payload: %v", err)
			return
		}
		r.bufferUpdate(update)

	case protocol.TypeNotification:
		var note protocol.Notification
		if err := json.Unmarshal(frame.Payload, &note); err != nil {
			log.Printf("Invalid notification payload: %v", err)
			return
		}
		if r.cfg.OnNotification != nil {
			r.cfg.OnNotification(note.Message)
		}

	case protocol.TypePong:
		// Liveness reply, nothing to apply.

	default:
		log.Printf("Ignoring unknown frame type %q", frame.Type)
	}
}

// applyFullSync replaces the mirror wholesale. This is the authoritative
// resync path and always wins over any pending buffered updates.
func (r *Reconciler) applyFullSync(cells []grid.Cell) {
	r.mu.Lock()
	r.mirror = make([]grid.Cell, len(cells))
	copy(r.mirror, cells)
	r.pending = make(map[int]grid.Cell)
	r.mu.Unlock()

	r.render()
}

// bufferUpdate accumulates a remote update for the next flush. The last
// update received for a position before a flush overwrites earlier ones;
// updates are not replayed in arrival order within a window.
func (r *Reconciler) bufferUpdate(update protocol.PixelUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[update.Position] = update.Pixel
}

// flush merges the pending buffer into the mirror. Bounds re-render
// frequency under bursty concurrent edits.
func (r *Reconciler) flush() {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return
	}
	for position, cell := range r.pending {
		if position >= 0 && position < len(r.mirror) {
			r.mirror[position] = cell
		}
	}
	r.pending = make(map[int]grid.Cell)
	r.mu.Unlock()

	r.render()
}

// applyOptimistic paints the mirror locally before the server round-trip
// completes.
func (r *Reconciler) applyOptimistic(position int, color, borderColor string) {
	r.mu.Lock()
	if position >= 0 && position < len(r.mirror) {
		r.mirror[position] = grid.Cell{
			Position:    position,
			Color:       color,
			BorderColor: borderColor,
			LastEditor:  r.identity,
		}
	}
	r.mu.Unlock()

	r.render()
}

// Paint applies a local repaint optimistically and submits it to the
// server. A rejected mutation discards the optimistic change by requesting
// a full resync rather than attempting fine-grained repair.
func (r *Reconciler) Paint(ctx context.Context, position int, color string) error {
	if !r.cooldown.Ready() {
		return ErrCooldownActive
	}

	borderColor := grid.AdjustLightness(color, grid.BorderLightnessOffset)
	r.applyOptimistic(position, color, borderColor)
	r.cooldown.Arm()

	if err := r.submitPaint(ctx, position, color, borderColor); err != nil {
		log.Printf("Paint rejected, requesting resync: %v", err)
		r.requestSync(ctx)
		return err
	}

	return nil
}

func (r *Reconciler) submitPaint(ctx context.Context, position int, color, borderColor string) error {
	body, err := json.Marshal(struct {
		Color       string `json:"color"`
		BorderColor string `json:"borderColor"`
	}{color, borderColor})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/pixels/%d", r.cfg.ServerURL, position)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.cfg.Token)

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("paint failed with status %d", resp.StatusCode)
	}

	return nil
}

// requestSync asks the server for an authoritative snapshot over the live
// channel. A no-op while disconnected: the reconnect handshake delivers a
// fullSync anyway.
func (r *Reconciler) requestSync(ctx context.Context) {
	conn := r.currentConn()
	if conn == nil {
		return
	}

	data, _ := json.Marshal(protocol.ClientMessage{Type: protocol.TypeRequestSync})
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		log.Printf("requestSync send failed: %v", err)
	}
}

func (r *Reconciler) sendIdentify(ctx context.Context, email string) {
	conn := r.currentConn()
	if conn == nil {
		return
	}

	payload, _ := json.Marshal(protocol.IdentifyRequest{Email: email})
	data, _ := json.Marshal(protocol.ClientMessage{
		Type:    protocol.TypeIdentify,
		Payload: payload,
	})
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		log.Printf("identify send failed: %v", err)
	}
}

// Snapshot returns a copy of the local mirror for rendering.
func (r *Reconciler) Snapshot() []grid.Cell {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cells := make([]grid.Cell, len(r.mirror))
	copy(cells, r.mirror)
	return cells
}

// Identity returns the identity the server confirmed for this connection.
func (r *Reconciler) Identity() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity
}

// RemainingCooldownSeconds exposes the paint gate for the UI timer.
func (r *Reconciler) RemainingCooldownSeconds() int {
	return r.cooldown.RemainingSeconds()
}

func (r *Reconciler) render() {
	if r.cfg.OnRender != nil {
		r.cfg.OnRender(r.Snapshot())
	}
}

func (r *Reconciler) setConn(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conn = conn
}

func (r *Reconciler) currentConn() *websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn
}
