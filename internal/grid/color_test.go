package grid_test

import (
	"testing"

	"publicpixel-server/internal/grid"
)

func TestRGBToHex(t *testing.T) {
	var tests = []struct {
		r, g, b int
		want    string
	}{
		{0, 0, 0, "#000000"},
		{255, 255, 255, "#ffffff"},
		{17, 34, 51, "#112233"},
		{255, 0, 128, "#ff0080"},
		{-5, 300, 64, "#00ff40"}, // out-of-range channels clamp
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := grid.RGBToHex(tt.r, tt.g, tt.b)
			if got != tt.want {
				t.Errorf("RGBToHex(%d, %d, %d) = %s, want %s", tt.r, tt.g, tt.b, got, tt.want)
			}
		})
	}
}

func TestAdjustLightness(t *testing.T) {
	var tests = []struct {
		color  string
		amount int
		want   string
	}{
		{"#808080", -40, "#585858"},
		{"#101010", -40, "#000000"}, // clamps at black
		{"#f0f0f0", 40, "#ffffff"},  // clamps at white
		{"#112233", 0, "#112233"},
	}

	for _, tt := range tests {
		t.Run(tt.color, func(t *testing.T) {
			got := grid.AdjustLightness(tt.color, tt.amount)
			if got != tt.want {
				t.Errorf("AdjustLightness(%s, %d) = %s, want %s", tt.color, tt.amount, got, tt.want)
			}
		})
	}
}

func TestAdjustLightnessInvalidColor(t *testing.T) {
	// Malformed input passes through untouched rather than panicking.
	got := grid.AdjustLightness("not-a-color", -40)
	if got != "not-a-color" {
		t.Errorf("AdjustLightness on invalid input = %s, want passthrough", got)
	}
}

func TestValidHexColor(t *testing.T) {
	valid := []string{"#000000", "#ffffff", "#AbCdEf"}
	invalid := []string{"", "112233", "#12345", "#1234567", "#gghhii", "rgb(1,2,3)"}

	for _, s := range valid {
		if !grid.ValidHexColor(s) {
			t.Errorf("%q should be a valid hex color", s)
		}
	}
	for _, s := range invalid {
		if grid.ValidHexColor(s) {
			t.Errorf("%q should not be a valid hex color", s)
		}
	}
}
