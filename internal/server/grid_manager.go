package server

import (
	"publicpixel-server/internal/grid"
	"sync"
)

// GridManager owns the canonical in-memory board. All reads go through
// Snapshot and all writes through ApplyMutation; durability is the caller's
// concern (write-behind, never blocking the in-memory update).
type GridManager struct {
	cells []grid.Cell
	mu    sync.RWMutex
}

// NewGridManager wraps a loaded or synthesized board. The board is assumed
// to have passed grid.ValidateBoard.
func NewGridManager(cells []grid.Cell) *GridManager {
	return &GridManager{
		cells: cells,
	}
}

// Snapshot returns the board by value. Callers may not mutate the store
// through the returned slice.
func (gm *GridManager) Snapshot() []grid.Cell {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	cells := make([]grid.Cell, len(gm.cells))
	copy(cells, gm.cells)
	return cells
}

// Cell returns a single cell by position.
func (gm *GridManager) Cell(position int) (grid.Cell, error) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	if !grid.ValidPosition(position) || position >= len(gm.cells) {
		return grid.Cell{}, ErrPixelNotFound
	}
	return gm.cells[position], nil
}

// ApplyMutation repaints one cell in place and returns the updated cell
// along with the previous editor (for the point-to-point notification).
// Fails with ErrPixelNotFound for positions outside the board; the board is
// left untouched on failure.
func (gm *GridManager) ApplyMutation(position int, color, borderColor, editor string) (grid.Cell, string, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if !grid.ValidPosition(position) || position >= len(gm.cells) {
		return grid.Cell{}, "", ErrPixelNotFound
	}

	previousEditor := gm.cells[position].LastEditor

	gm.cells[position] = grid.Cell{
		Position:    position,
		Color:       color,
		BorderColor: borderColor,
		LastEditor:  editor,
	}

	return gm.cells[position], previousEditor, nil
}
