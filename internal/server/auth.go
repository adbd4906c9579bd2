package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const authCookieName = "token"

// AuthManager owns the session-token index: token -> identity (email).
// A token is issued at registration, replaced wholesale on every login, and
// cleared on logout. Lookups are by current-token value, so issuing a new
// token implicitly invalidates the previous one.
type AuthManager struct {
	sessions map[string]string // token -> email
	byEmail  map[string]string // email -> current token
	mu       sync.RWMutex

	persistence UserStore
}

func NewAuthManager(persistence UserStore) *AuthManager {
	return &AuthManager{
		sessions:    make(map[string]string),
		byEmail:     make(map[string]string),
		persistence: persistence,
	}
}

// LoadSessions restores the token index from the users table on startup.
func (am *AuthManager) LoadSessions() error {
	tokens, err := am.persistence.LoadSessionTokens()
	if err != nil {
		return err
	}

	am.mu.Lock()
	defer am.mu.Unlock()
	for token, email := range tokens {
		am.sessions[token] = email
		am.byEmail[email] = token
	}
	return nil
}

// Resolve maps a presented credential to an identity. Returns
// ErrUnauthorized when the token is empty or unknown.
func (am *AuthManager) Resolve(token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}

	am.mu.RLock()
	defer am.mu.RUnlock()

	email, exists := am.sessions[token]
	if !exists {
		return "", ErrUnauthorized
	}

	return email, nil
}

// Register creates a new user and issues their first session token.
func (am *AuthManager) Register(email, password string) (string, error) {
	if err := validateEmail(email); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	token := uuid.New().String()
	if err := am.persistence.CreateUser(UserRecord{
		Email:        email,
		PasswordHash: string(hash),
		Token:        token,
	}); err != nil {
		return "", err
	}

	am.bind(email, token)
	return token, nil
}

// Login verifies the password and rotates the session token. The previous
// token stops resolving the moment the new one is bound.
func (am *AuthManager) Login(email, password string) (string, error) {
	user, err := am.persistence.GetUserByEmail(email)
	if err != nil {
		return "", ErrUnauthorized
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", ErrUnauthorized
	}

	token := uuid.New().String()
	if err := am.persistence.UpdateUserToken(email, token); err != nil {
		return "", err
	}

	am.bind(email, token)
	return token, nil
}

// Logout clears the token for whoever presented it. Idempotent; an unknown
// token is not an error (the logout already took effect).
func (am *AuthManager) Logout(token string) error {
	am.mu.Lock()
	email, exists := am.sessions[token]
	if exists {
		delete(am.sessions, token)
		delete(am.byEmail, email)
	}
	am.mu.Unlock()

	if !exists {
		return nil
	}

	return am.persistence.UpdateUserToken(email, "")
}

// bind installs a fresh token for an identity, dropping the old one.
func (am *AuthManager) bind(email, token string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if old, exists := am.byEmail[email]; exists {
		delete(am.sessions, old)
	}
	am.sessions[token] = email
	am.byEmail[email] = token
}

// credentialFromRequest extracts the presented token. A bearer token in the
// Authorization header takes precedence over the auth cookie.
func credentialFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, found := strings.CutPrefix(auth, "Bearer "); found {
			return token
		}
	}

	if cookie, err := r.Cookie(authCookieName); err == nil {
		return cookie.Value
	}

	return ""
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w (empty)", ErrEmailInvalid)
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w (%q)", ErrEmailInvalid, email)
	}
	if len(email) > 254 {
		return fmt.Errorf("%w (too long)", ErrEmailInvalid)
	}
	return nil
}
