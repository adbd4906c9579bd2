package grid

import (
	"fmt"
	"regexp"
	"strconv"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidHexColor reports whether s is a "#rrggbb" color string.
func ValidHexColor(s string) bool {
	return hexColorPattern.MatchString(s)
}

// RGBToHex formats three 0-255 channels as "#rrggbb".
func RGBToHex(r, g, b int) string {
	return fmt.Sprintf("#%02x%02x%02x", clampChannel(r), clampChannel(g), clampChannel(b))
}

// AdjustLightness shifts every channel of a "#rrggbb" color by amount,
// clamping to [0, 255]. Negative amounts darken; the board uses this to
// derive border shades from fill colors.
func AdjustLightness(color string, amount int) string {
	r, g, b, err := parseHex(color)
	if err != nil {
		return color
	}
	return RGBToHex(r+amount, g+amount, b+amount)
}

func parseHex(color string) (r, g, b int, err error) {
	if !ValidHexColor(color) {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", color)
	}
	n, err := strconv.ParseInt(color[1:], 16, 32)
	if err != nil {
		return 0, 0, 0, err
	}
	return int(n >> 16), int(n >> 8 & 0xff), int(n & 0xff), nil
}

func clampChannel(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
