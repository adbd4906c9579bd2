package server

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	_ "github.com/joho/godotenv/autoload"

	"publicpixel-server/internal/database"
	"publicpixel-server/internal/grid"
)

type Server struct {
	port               int
	db                 database.Service
	gridManager        *GridManager
	presenceRegistry   *PresenceRegistry
	dispatcher         *Dispatcher
	authManager        *AuthManager
	persistenceManager BoardStore
	rateLimiter        *RateLimiter

	// mutateMu serializes grid apply + broadcast enqueue so no other
	// mutation can interleave between the two steps of one paint.
	mutateMu sync.Mutex
}

func NewServer() (*Server, *http.Server) {
	port, _ := strconv.Atoi(os.Getenv("PORT"))

	// Initialize database
	dbService := database.New()

	// Initialize persistence manager and bootstrap the schema
	persistenceManager := NewPersistenceManager(dbService.DB())
	if err := persistenceManager.EnsureSchema(); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}

	// Load the board, or synthesize one on first run
	gridManager, err := loadOrCreateGrid(persistenceManager)
	if err != nil {
		log.Fatalf("Failed to initialize grid: %v", err)
	}

	// Restore session tokens so existing credentials survive restarts
	authManager := NewAuthManager(persistenceManager)
	if err := authManager.LoadSessions(); err != nil {
		log.Printf("Warning: Failed to load session tokens: %v", err)
		// Don't fatal - users can log in again
	}

	presenceRegistry := NewPresenceRegistry()

	newServer := &Server{
		port:               port,
		db:                 dbService,
		gridManager:        gridManager,
		presenceRegistry:   presenceRegistry,
		dispatcher:         NewDispatcher(presenceRegistry),
		authManager:        authManager,
		persistenceManager: persistenceManager,
		rateLimiter:        NewRateLimiter(10, time.Second),
	}

	// Start background tasks
	go newServer.periodicSaveTask()

	// Declare Server config
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", newServer.port),
		Handler:      newServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return newServer, httpServer
}

// loadOrCreateGrid restores the board from the durable store. An empty
// store means first run: synthesize a random board and persist it once.
func loadOrCreateGrid(pm BoardStore) (*GridManager, error) {
	cells, err := pm.LoadGrid()
	if err != nil {
		return nil, fmt.Errorf("failed to load grid: %w", err)
	}

	if len(cells) == 0 {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		cells = grid.NewRandomBoard(rng)
		log.Printf("No stored board found, synthesized %d random pixels", len(cells))

		if err := pm.SaveGrid(cells); err != nil {
			return nil, fmt.Errorf("failed to persist synthesized grid: %w", err)
		}
	} else if err := grid.ValidateBoard(cells); err != nil {
		return nil, fmt.Errorf("stored board is corrupt: %w", err)
	} else {
		log.Printf("Restored board with %d pixels", len(cells))
	}

	return NewGridManager(cells), nil
}

// periodicSaveTask persists the full board every minute. The per-mutation
// write-behind is best-effort, so this catches any cells whose individual
// saves failed.
func (s *Server) periodicSaveTask() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		if err := s.persistenceManager.SaveGrid(s.gridManager.Snapshot()); err != nil {
			log.Printf("Periodic grid save failed: %v", err)
			continue
		}
		log.Printf("Periodic grid save completed (%d connections live)", s.presenceRegistry.Count())
	}
}

// Shutdown flushes the board to the durable store and closes live
// connections before the HTTP server stops accepting traffic.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, conn := range s.presenceRegistry.All() {
		conn.Close(websocket.StatusGoingAway, "Server shutting down")
	}

	if err := s.persistenceManager.SaveGrid(s.gridManager.Snapshot()); err != nil {
		return fmt.Errorf("final grid save failed: %w", err)
	}
	log.Println("Final grid save completed")

	return s.db.Close()
}
