package grid_test

import (
	"math/rand"
	"testing"

	"publicpixel-server/internal/grid"
)

func TestNewRandomBoard(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cells := grid.NewRandomBoard(rng)

	if len(cells) != grid.Size {
		t.Fatalf("board should have %d cells, got %d", grid.Size, len(cells))
	}

	for i, c := range cells {
		if c.Position != i {
			t.Fatalf("cell %d has position %d", i, c.Position)
		}
		if !grid.ValidHexColor(c.Color) {
			t.Fatalf("cell %d has invalid color %q", i, c.Color)
		}
		if c.BorderColor != grid.AdjustLightness(c.Color, grid.BorderLightnessOffset) {
			t.Fatalf("cell %d border %q not derived from color %q", i, c.BorderColor, c.Color)
		}
		if c.LastEditor != "" {
			t.Fatalf("fresh cell %d should have no editor", i)
		}
	}
}

func TestValidPosition(t *testing.T) {
	var tests = []struct {
		position int
		want     bool
	}{
		{0, true},
		{grid.Size - 1, true},
		{grid.Size, false},
		{-1, false},
		{9999, false},
	}

	for _, tt := range tests {
		if got := grid.ValidPosition(tt.position); got != tt.want {
			t.Errorf("ValidPosition(%d) = %v, want %v", tt.position, got, tt.want)
		}
	}
}

func TestValidateBoard(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	cells := grid.NewRandomBoard(rng)

	if err := grid.ValidateBoard(cells); err != nil {
		t.Fatalf("fresh board should validate: %v", err)
	}

	// Wrong length
	if err := grid.ValidateBoard(cells[:10]); err == nil {
		t.Error("truncated board should fail validation")
	}

	// Out-of-order positions
	cells[5].Position = 6
	if err := grid.ValidateBoard(cells); err == nil {
		t.Error("misnumbered board should fail validation")
	}
}
