package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"publicpixel-server/internal/grid"
)

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	// Register routes
	mux.HandleFunc("/health", s.healthHandler)

	mux.HandleFunc("/websocket", s.websocketHandler)

	mux.HandleFunc("GET /api/pixels", s.getPixelsHandler)
	mux.HandleFunc("GET /api/pixels/{id}", s.getPixelHandler)
	mux.HandleFunc("PUT /api/pixels/{id}", s.paintPixelHandler)

	mux.HandleFunc("POST /api/auth/create", s.createUserHandler)
	mux.HandleFunc("POST /api/auth/login", s.loginHandler)
	mux.HandleFunc("DELETE /api/auth/logout", s.logoutHandler)
	mux.HandleFunc("GET /api/auth/status", s.authStatusHandler)

	// Wrap the mux with CORS middleware
	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*") // Replace "*" with specific origins if needed
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Credentials", "false") // Set to "true" if credentials are required

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Proceed with the next handler
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := json.Marshal(s.db.Health())
	if err != nil {
		http.Error(w, "Failed to marshal health check response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

// getPixelsHandler returns the full board in position order. Unlike
// painting, reading the board requires no credential.
func (s *Server) getPixelsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gridManager.Snapshot())
}

// getPixelHandler returns a single cell by position.
func (s *Server) getPixelHandler(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Pixel not found", "PIXEL_NOT_FOUND")
		return
	}

	cell, err := s.gridManager.Cell(position)
	if err != nil {
		writeError(w, http.StatusNotFound, "Pixel not found", "PIXEL_NOT_FOUND")
		return
	}

	writeJSON(w, http.StatusOK, cell)
}

// paintPixelHandler is the authorization-gated mutation path. The in-memory
// apply and the broadcast enqueue happen under one mutation lock so no other
// mutation can interleave between them; durability is write-behind and
// never blocks or fails the live update.
func (s *Server) paintPixelHandler(w http.ResponseWriter, r *http.Request) {
	// Step 1: Resolve the credential (bearer takes precedence over cookie)
	editor, err := s.authManager.Resolve(credentialFromRequest(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED")
		return
	}

	// Step 2: Parse position and body
	position, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Pixel not found", "PIXEL_NOT_FOUND")
		return
	}

	var req PaintPixelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid paint payload", "INVALID_PAYLOAD")
		return
	}

	if !grid.ValidHexColor(req.Color) || !grid.ValidHexColor(req.BorderColor) {
		writeError(w, http.StatusBadRequest, "Colors must be #rrggbb", "INVALID_COLOR")
		return
	}

	// Step 3: Apply + enqueue broadcasts atomically relative to other
	// mutations. Broadcast delivery itself is unordered and best-effort.
	s.mutateMu.Lock()
	cell, previousEditor, err := s.gridManager.ApplyMutation(position, req.Color, req.BorderColor, editor)
	if err != nil {
		s.mutateMu.Unlock()
		if errors.Is(err, ErrPixelNotFound) {
			writeError(w, http.StatusNotFound, "Pixel not found", "PIXEL_NOT_FOUND")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update pixel", "INTERNAL")
		return
	}

	s.dispatcher.BroadcastPixelUpdate(position, cell)
	s.dispatcher.NotifyPreviousEditor(previousEditor, editor, position)
	s.mutateMu.Unlock()

	// Step 4: Write-behind. A persistence fault is logged, not surfaced,
	// and does not roll back the in-memory state.
	go func() {
		if err := s.persistenceManager.SaveCell(cell); err != nil {
			log.Printf("Write-behind failed for pixel %d: %v", cell.Position, err)
		}
	}()

	// Step 5: Respond with the updated cell
	writeJSON(w, http.StatusOK, cell)
}

func (s *Server) createUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid auth payload", "INVALID_PAYLOAD")
		return
	}

	token, err := s.authManager.Register(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			writeError(w, http.StatusConflict, "Existing user", "USER_EXISTS")
			return
		}
		if errors.Is(err, ErrEmailInvalid) {
			writeError(w, http.StatusBadRequest, "Invalid email", "EMAIL_INVALID")
			return
		}
		log.Printf("Create user failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user", "INTERNAL")
		return
	}

	setAuthCookie(w, token)
	writeJSON(w, http.StatusOK, AuthResponse{Email: req.Email, Token: token})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid auth payload", "INVALID_PAYLOAD")
		return
	}

	token, err := s.authManager.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED")
			return
		}
		log.Printf("Login failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Login failed", "INTERNAL")
		return
	}

	setAuthCookie(w, token)
	writeJSON(w, http.StatusOK, AuthResponse{Email: req.Email, Token: token})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.authManager.Logout(credentialFromRequest(r)); err != nil {
		log.Printf("Logout failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Logout failed", "INTERNAL")
		return
	}

	clearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) authStatusHandler(w http.ResponseWriter, r *http.Request) {
	email, err := s.authManager.Resolve(credentialFromRequest(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Email: email})
}

func setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Message: message, Code: code})
}
