package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/coder/websocket"

	"publicpixel-server/internal/protocol"
)

// websocketHandler is the connection gateway. The credential is presented
// as an upgrade parameter (?token=...) and authorized before the handshake
// completes; a bad credential rejects the upgrade with an explicit 401.
// Once open, the connection is registered in the presence registry and
// immediately handed the full board, so the client need not wait for a
// mutation to learn current state.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		// Browsers attach the auth cookie to the upgrade request.
		if cookie, err := r.Cookie(authCookieName); err == nil {
			token = cookie.Value
		}
	}

	identity, err := s.authManager.Resolve(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // TODO: make environment-specific
	})
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	log.Printf("Connection open for %s", identity)
	s.presenceRegistry.Register(identity, socket)
	defer func() {
		// Guarded removal: a newer connection for the same identity may
		// have overwritten this mapping already.
		s.presenceRegistry.UnregisterConn(identity, socket)
		s.rateLimiter.Remove(identity)
		log.Printf("Connection closed for %s", identity)
	}()

	if err := sendMessage(ctx, socket, protocol.ServerMessage{
		Type:    protocol.TypeConnectionConfirmed,
		Payload: protocol.ConnectionConfirmed{Email: identity},
	}); err != nil {
		log.Printf("Failed to confirm connection for %s: %v", identity, err)
		return
	}

	if err := s.sendFullSync(ctx, socket); err != nil {
		log.Printf("Failed to send initial fullSync to %s: %v", identity, err)
		return
	}

	for {
		// Read from client
		msgType, data, err := socket.Read(ctx)

		if err != nil {
			// Transport close, client-initiated or network failure.
			// The deferred unregister runs immediately, no grace period.
			log.Printf("Connection read ended for %s: %v", identity, err)
			return
		}

		if msgType != websocket.MessageText {
			log.Printf("Non-text input from %s", identity)
			continue
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// Malformed messages are logged and ignored, never fatal.
			log.Printf("Invalid JSON from %s: %v", identity, err)
			continue
		}

		if !s.rateLimiter.Allow(identity) {
			log.Printf("Rate limit exceeded for %s, dropping %s", identity, msg.Type)
			continue
		}

		switch msg.Type {
		case protocol.TypePing:
			if err := sendMessage(ctx, socket, protocol.ServerMessage{
				Type:    protocol.TypePong,
				Payload: struct{}{},
			}); err != nil {
				log.Printf("Failed to send pong to %s: %v", identity, err)
			}

		case protocol.TypeRequestSync:
			// Client suspects drift (usually after a reconnect) and wants
			// an authoritative snapshot.
			if err := s.sendFullSync(ctx, socket); err != nil {
				log.Printf("Failed to send fullSync to %s: %v", identity, err)
			}

		case protocol.TypeIdentify:
			var req protocol.IdentifyRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Email == "" {
				log.Printf("Invalid identify payload from %s", identity)
				continue
			}
			// Rebind this connection under a new identity key without
			// re-authenticating. Exists to recover a transient identity
			// mismatch; logged because the lack of a credential check here
			// is a known gap.
			log.Printf("Identity rebind: %s -> %s", identity, req.Email)
			s.presenceRegistry.UnregisterConn(identity, socket)
			s.rateLimiter.Remove(identity)
			identity = req.Email
			s.presenceRegistry.Register(identity, socket)

		default:
			// Unrecognized kinds are ignored without error.
			log.Printf("Unknown message type '%s' from %s", msg.Type, identity)
		}
	}
}

func (s *Server) sendFullSync(ctx context.Context, socket *websocket.Conn) error {
	return sendMessage(ctx, socket, protocol.ServerMessage{
		Type: protocol.TypeFullSync,
		Payload: protocol.FullSync{
			Pixels: s.gridManager.Snapshot(),
		},
	})
}
