package camera

import (
	"fmt"
	"strconv"
)

// Resolution is a capture preset index.
type Resolution int

// Resolution presets.
const (
	QQVGA Resolution = 0 // 160x120
	QVGA  Resolution = 1 // 320x240
	VGA   Resolution = 2 // 640x480
)

type preset struct {
	name          string
	width, height int
}

var presets = map[Resolution]preset{
	QQVGA: {"QQVGA(160x120)", 160, 120},
	QVGA:  {"QVGA(320x240)", 320, 240},
	VGA:   {"VGA(640x480)", 640, 480},
}

// Valid reports whether r names a known preset.
func (r Resolution) Valid() bool {
	_, ok := presets[r]
	return ok
}

// Size returns the frame size of the preset, or 0, 0 if unknown.
func (r Resolution) Size() (width, height int) {
	p := presets[r]
	return p.width, p.height
}

// String returns the display name of the preset.
func (r Resolution) String() string {
	if p, ok := presets[r]; ok {
		return p.name
	}
	return "unknown"
}

// ParseResolution parses a preset index such as "1".
func ParseResolution(s string) (Resolution, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid resolution %q: %w", s, err)
	}
	r := Resolution(n)
	if !r.Valid() {
		return 0, fmt.Errorf("unknown resolution %d", n)
	}
	return r, nil
}

// Resolutions returns every preset in index order.
func Resolutions() []Resolution {
	return []Resolution{QQVGA, QVGA, VGA}
}
