package server

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"publicpixel-server/internal/grid"
)

// BoardStore is the durable-store surface the grid lifecycle needs.
// Satisfied by PersistenceManager; tests swap in in-memory fakes.
type BoardStore interface {
	LoadGrid() ([]grid.Cell, error)
	SaveGrid(cells []grid.Cell) error
	SaveCell(cell grid.Cell) error
}

// UserStore is the durable-store surface for identities and session tokens.
type UserStore interface {
	CreateUser(user UserRecord) error
	GetUserByEmail(email string) (*UserRecord, error)
	UpdateUserToken(email, token string) error
	LoadSessionTokens() (map[string]string, error)
}

// PersistenceManager handles saving and loading board and user state
// to/from the database. The in-memory grid is the source of truth for live
// serving; everything here is write-behind durability.
type PersistenceManager struct {
	db *sql.DB
}

// UserRecord mirrors one row of the users table. Token is the current
// session token; it is replaced wholesale on every login.
type UserRecord struct {
	Email        string
	PasswordHash string
	Token        string
}

func NewPersistenceManager(db *sql.DB) *PersistenceManager {
	return &PersistenceManager{
		db: db,
	}
}

// EnsureSchema creates the tables if they do not exist yet. Idempotent, run
// once at startup.
func (pm *PersistenceManager) EnsureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			email         TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			token         TEXT,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS pixels (
			position     INTEGER PRIMARY KEY,
			color        TEXT NOT NULL,
			border_color TEXT NOT NULL,
			last_editor  TEXT,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS users_token_idx ON users (token)`,
	}

	for _, stmt := range statements {
		if _, err := pm.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// SaveCell upserts a single pixel. Called fire-and-forget after each
// mutation; failures are logged by the caller and never block serving.
func (pm *PersistenceManager) SaveCell(cell grid.Cell) error {
	query := `
		INSERT INTO pixels (position, color, border_color, last_editor, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), now())
		ON CONFLICT (position) DO UPDATE
		SET color = EXCLUDED.color,
		    border_color = EXCLUDED.border_color,
		    last_editor = EXCLUDED.last_editor,
		    updated_at = now()
	`

	_, err := pm.db.Exec(query, cell.Position, cell.Color, cell.BorderColor, cell.LastEditor)
	if err != nil {
		return fmt.Errorf("failed to save pixel %d: %w", cell.Position, err)
	}

	return nil
}

// SaveGrid persists the whole board in one transaction. Used for the
// initial synthesized board, the periodic save task, and shutdown.
func (pm *PersistenceManager) SaveGrid(cells []grid.Cell) error {
	tx, err := pm.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin grid save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO pixels (position, color, border_color, last_editor, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), now())
		ON CONFLICT (position) DO UPDATE
		SET color = EXCLUDED.color,
		    border_color = EXCLUDED.border_color,
		    last_editor = EXCLUDED.last_editor,
		    updated_at = now()
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare grid save: %w", err)
	}
	defer stmt.Close()

	for _, cell := range cells {
		if _, err := stmt.Exec(cell.Position, cell.Color, cell.BorderColor, cell.LastEditor); err != nil {
			return fmt.Errorf("failed to save pixel %d: %w", cell.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grid save: %w", err)
	}

	return nil
}

// LoadGrid retrieves the full board in position order. Returns an empty
// slice when no board has been persisted yet.
func (pm *PersistenceManager) LoadGrid() ([]grid.Cell, error) {
	query := `
		SELECT position, color, border_color, COALESCE(last_editor, '')
		FROM pixels
		ORDER BY position
	`

	rows, err := pm.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pixels: %w", err)
	}
	defer rows.Close()

	var cells []grid.Cell
	for rows.Next() {
		var cell grid.Cell
		if err := rows.Scan(&cell.Position, &cell.Color, &cell.BorderColor, &cell.LastEditor); err != nil {
			return nil, fmt.Errorf("failed to scan pixel row: %w", err)
		}
		cells = append(cells, cell)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pixel rows: %w", err)
	}

	return cells, nil
}

// CreateUser inserts a new user row. Returns ErrUserExists when the email
// is already registered.
func (pm *PersistenceManager) CreateUser(user UserRecord) error {
	query := `
		INSERT INTO users (email, password_hash, token)
		VALUES ($1, $2, NULLIF($3, ''))
	`

	_, err := pm.db.Exec(query, user.Email, user.PasswordHash, user.Token)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 = unique_violation
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}

	return nil
}

// GetUserByEmail looks a user up for login. Returns sql.ErrNoRows wrapped
// when the email is unknown.
func (pm *PersistenceManager) GetUserByEmail(email string) (*UserRecord, error) {
	query := `
		SELECT email, password_hash, COALESCE(token, '') FROM users WHERE email = $1
	`

	var user UserRecord
	err := pm.db.QueryRow(query, email).Scan(&user.Email, &user.PasswordHash, &user.Token)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found: %s: %w", email, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", email, err)
	}

	return &user, nil
}

// UpdateUserToken rotates the session token for an identity. Passing an
// empty token clears it (logout).
func (pm *PersistenceManager) UpdateUserToken(email, token string) error {
	query := `UPDATE users SET token = NULLIF($2, '') WHERE email = $1`

	_, err := pm.db.Exec(query, email, token)
	if err != nil {
		return fmt.Errorf("failed to update token for %s: %w", email, err)
	}

	return nil
}

// LoadSessionTokens retrieves the token -> email index for all users with
// an active token. Used on startup to rebuild the in-memory session index.
func (pm *PersistenceManager) LoadSessionTokens() (map[string]string, error) {
	query := `SELECT token, email FROM users WHERE token IS NOT NULL`

	rows, err := pm.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query session tokens: %w", err)
	}
	defer rows.Close()

	tokens := make(map[string]string)
	for rows.Next() {
		var token, email string
		if err := rows.Scan(&token, &email); err != nil {
			return nil, fmt.Errorf("failed to scan token row: %w", err)
		}
		tokens[token] = email
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating token rows: %w", err)
	}

	return tokens, nil
}
