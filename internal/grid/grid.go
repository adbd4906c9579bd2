package grid

import (
	"fmt"
	"math/rand"
)

const (
	Width  = 50
	Height = 50
	Size   = Width * Height
)

// BorderLightnessOffset is subtracted from each RGB channel to derive a
// cell's border shade from its fill color.
const BorderLightnessOffset = -40

type Cell struct {
	Position    int    `json:"position"`
	Color       string `json:"color"`
	BorderColor string `json:"borderColor"`
	LastEditor  string `json:"lastEditor,omitempty"`
}

// ValidPosition reports whether p addresses a cell on the board.
func ValidPosition(p int) bool {
	return p >= 0 && p < Size
}

// NewRandomBoard synthesizes a full board of uniformly random colors with
// derived border shades. Used when the durable store holds no grid yet.
func NewRandomBoard(rng *rand.Rand) []Cell {
	cells := make([]Cell, Size)
	for i := range cells {
		color := RGBToHex(rng.Intn(256), rng.Intn(256), rng.Intn(256))
		cells[i] = Cell{
			Position:    i,
			Color:       color,
			BorderColor: AdjustLightness(color, BorderLightnessOffset),
		}
	}
	return cells
}

// ValidateBoard checks that a loaded board has exactly one cell per
// position, in row-major order.
func ValidateBoard(cells []Cell) error {
	if len(cells) != Size {
		return fmt.Errorf("board has %d cells, want %d", len(cells), Size)
	}
	for i, c := range cells {
		if c.Position != i {
			return fmt.Errorf("cell at index %d has position %d", i, c.Position)
		}
	}
	return nil
}
