package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/coder/websocket"

	"publicpixel-server/internal/grid"
	"publicpixel-server/internal/protocol"
)

// sendTimeout bounds each outbound frame. A peer that stops draining its
// socket costs one timeout, which closes the connection and lets its read
// loop tear the registration down; delivery to everyone else proceeds.
var sendTimeout = 5 * time.Second

// Dispatcher fans mutations out to connected clients. All delivery is
// best-effort: a failed send to one connection is logged, skipped, never
// retried, and never propagated to the mutator. No ordering is guaranteed
// across connections; each pixelUpdate carries the full post-mutation cell
// state and application is idempotent per position.
type Dispatcher struct {
	presence *PresenceRegistry
}

func NewDispatcher(presence *PresenceRegistry) *Dispatcher {
	return &Dispatcher{
		presence: presence,
	}
}

// BroadcastPixelUpdate sends the updated cell to every open connection,
// the originator included.
func (d *Dispatcher) BroadcastPixelUpdate(position int, cell grid.Cell) {
	msg := protocol.ServerMessage{
		Type: protocol.TypePixelUpdate,
		Payload: protocol.PixelUpdate{
			Position: position,
			Pixel:    cell,
		},
	}

	for _, conn := range d.presence.All() {
		if err := sendBounded(conn, msg); err != nil {
			log.Printf("Broadcast send failed for pixel %d: %v", position, err)
		}
	}
}

// NotifyPreviousEditor tells the displaced editor their pixel was painted
// over. Silently dropped when the previous editor painted it themselves, is
// anonymous, or has no open connection.
func (d *Dispatcher) NotifyPreviousEditor(previousEditor, editor string, position int) {
	if previousEditor == "" || previousEditor == editor {
		return
	}

	conn, exists := d.presence.Lookup(previousEditor)
	if !exists {
		return
	}

	msg := protocol.ServerMessage{
		Type: protocol.TypeNotification,
		Payload: protocol.Notification{
			Message: fmt.Sprintf("%s painted over your pixel at %d", editor, position),
		},
	}

	if err := sendBounded(conn, msg); err != nil {
		log.Printf("Notification send to %s failed: %v", previousEditor, err)
	}
}

// sendBounded writes one frame under the dispatch deadline so a stalled
// connection cannot hold the fan-out (or the paint path behind it) hostage.
func sendBounded(conn *websocket.Conn, msg protocol.ServerMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return sendMessage(ctx, conn, msg)
}

// sendMessage writes one JSON frame. Shared by the dispatcher and the
// connection gateway.
func sendMessage(ctx context.Context, conn *websocket.Conn, msg protocol.ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return conn.Write(ctx, websocket.MessageText, data)
}
