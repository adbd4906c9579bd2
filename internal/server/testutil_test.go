package server

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"publicpixel-server/internal/grid"
)

// fakeBoardStore records write-behind traffic in memory so protocol tests
// need no database.
type fakeBoardStore struct {
	mu        sync.Mutex
	cellSaves []grid.Cell
	gridSaves int
}

func newFakeBoardStore() *fakeBoardStore {
	return &fakeBoardStore{}
}

func (f *fakeBoardStore) LoadGrid() ([]grid.Cell, error) {
	return nil, nil
}

func (f *fakeBoardStore) SaveGrid(cells []grid.Cell) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gridSaves++
	return nil
}

func (f *fakeBoardStore) SaveCell(cell grid.Cell) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cellSaves = append(f.cellSaves, cell)
	return nil
}

func (f *fakeBoardStore) CellSaves() []grid.Cell {
	f.mu.Lock()
	defer f.mu.Unlock()
	saves := make([]grid.Cell, len(f.cellSaves))
	copy(saves, f.cellSaves)
	return saves
}

func setupTestServer() (*Server, *fakeBoardStore, string, func()) {
	store := newFakeBoardStore()

	presence := NewPresenceRegistry()
	s := &Server{
		gridManager:        NewGridManager(grid.NewRandomBoard(rand.New(rand.NewSource(7)))),
		presenceRegistry:   presence,
		dispatcher:         NewDispatcher(presence),
		authManager:        NewAuthManager(newFakeUserStore()),
		persistenceManager: store,
		rateLimiter:        NewRateLimiter(100, time.Second),
	}

	ts := httptest.NewServer(s.RegisterRoutes())

	return s, store, ts.URL, ts.Close
}

// registerTestUser creates a user and returns their session token.
func registerTestUser(t *testing.T, s *Server, email string) string {
	t.Helper()
	token, err := s.authManager.Register(email, "hunter22")
	if err != nil {
		t.Fatalf("failed to register %s: %v", email, err)
	}
	return token
}

func wsURL(baseURL, token string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http") + "/websocket?token=" + token
}

// dialAndDrainHandshake connects and consumes the connectionConfirmed and
// fullSync frames every fresh connection receives.
func dialAndDrainHandshake(t *testing.T, ctx context.Context, baseURL, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, wsURL(baseURL, token), nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	// The fullSync frame exceeds the library's default 32768-byte read limit.
	conn.SetReadLimit(-1)

	msgType, _ := readFrame(t, ctx, conn)
	if msgType != "connectionConfirmed" {
		t.Fatalf("expected connectionConfirmed first, got %s", msgType)
	}
	msgType, _ = readFrame(t, ctx, conn)
	if msgType != "fullSync" {
		t.Fatalf("expected fullSync second, got %s", msgType)
	}

	return conn
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("websocket read failed: %v", err)
	}

	var frame struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("invalid frame: %v", err)
	}

	return frame.Type, frame.Payload
}

func writeFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	data, err := json.Marshal(map[string]json.RawMessage{
		"type":    json.RawMessage(`"` + msgType + `"`),
		"payload": raw,
	})
	if err != nil {
		t.Fatalf("failed to marshal frame: %v", err)
	}

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("websocket write failed: %v", err)
	}
}

// assertPong verifies the connection is still alive and has no frames
// queued ahead of the pong.
func assertPong(t *testing.T, ctx context.Context, conn *websocket.Conn) {
	t.Helper()

	writeFrame(t, ctx, conn, "ping", struct{}{})
	msgType, _ := readFrame(t, ctx, conn)
	if msgType != "pong" {
		t.Fatalf("expected pong, got %s", msgType)
	}
}
