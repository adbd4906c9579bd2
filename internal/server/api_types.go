package server

// ============================================================================
// ERROR RESPONSES
// ============================================================================
// tygo:generate
type ErrorResponse struct {
	Message string `json:"msg"`
	Code    string `json:"code,omitempty"`
}

// ============================================================================
// AUTH (POST /api/auth/create, POST /api/auth/login)
// ============================================================================
// tygo:generate
type AuthRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tygo:generate
type AuthResponse struct {
	Email string `json:"email"`
	Token string `json:"token,omitempty"`
}

// ============================================================================
// PAINT (PUT /api/pixels/{id})
// ============================================================================
// tygo:generate
type PaintPixelRequest struct {
	Color       string `json:"color"`
	BorderColor string `json:"borderColor"`
}
