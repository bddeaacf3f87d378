package imaging

import (
	"fmt"
	"math"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"` // Red component (0-255)
	G uint8 `json:"g"` // Green component (0-255)
	B uint8 `json:"b"` // Blue component (0-255)
}

// RGBAColor represents an RGBA color with 8-bit components including alpha.
//
// Alpha is not premultiplied: 0 = fully transparent, 255 = fully opaque.
type RGBAColor struct {
	R uint8 `json:"r"` // Red component (0-255)
	G uint8 `json:"g"` // Green component (0-255)
	B uint8 `json:"b"` // Blue component (0-255)
	A uint8 `json:"a"` // Alpha/opacity component (0-255)
}

// HSLColor represents a color in HSL (Hue, Saturation, Lightness) color space.
type HSLColor struct {
	H int `json:"h"` // Hue: 0-360 degrees (0=red, 120=green, 240=blue)
	S int `json:"s"` // Saturation: 0-100 percent (0=gray, 100=vivid)
	L int `json:"l"` // Lightness: 0-100 percent (0=black, 50=normal, 100=white)
}

// ColorResult contains a color value in multiple representations.
type ColorResult struct {
	Hex  string    `json:"hex"`  // Hex format "#RRGGBB" (no alpha)
	RGB  RGBColor  `json:"rgb"`  // RGB components
	RGBA RGBAColor `json:"rgba"` // RGBA components with alpha
	HSL  HSLColor  `json:"hsl"`  // HSL representation
}

// SampleColor reads the pixel at (x, y) of buf.
//
// Coordinates are 0-based from the top-left corner. A coordinate outside the
// buffer is an error.
func SampleColor(buf *PixelBuffer, x, y int) (*ColorResult, error) {
	if x < 0 || x >= buf.Width() || y < 0 || y >= buf.Height() {
		return nil, fmt.Errorf("coordinates (%d,%d) outside image bounds %dx%d", x, y, buf.Width(), buf.Height())
	}
	c := buf.At(x, y)
	return newColorResult(c.R, c.G, c.B, c.A), nil
}

// MeanColor returns the average color over every pixel of buf.
//
// It gives a one-line fingerprint of what a filter did to the buffer.
func MeanColor(buf *PixelBuffer) *ColorResult {
	var r, g, b, a float64
	pix := buf.Pix()
	n := float64(len(pix) / 4)
	for i := 0; i+3 < len(pix); i += 4 {
		r += float64(pix[i])
		g += float64(pix[i+1])
		b += float64(pix[i+2])
		a += float64(pix[i+3])
	}
	return newColorResult(clampChannel(r/n), clampChannel(g/n), clampChannel(b/n), clampChannel(a/n))
}

func newColorResult(r, g, b, a uint8) *ColorResult {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	h, s, l := c.Hsl()
	if math.IsNaN(h) {
		h = 0
	}

	return &ColorResult{
		Hex:  strings.ToUpper(c.Hex()),
		RGB:  RGBColor{R: r, G: g, B: b},
		RGBA: RGBAColor{R: r, G: g, B: b, A: a},
		HSL: HSLColor{
			H: int(h),
			S: int(s * 100),
			L: int(l * 100),
		},
	}
}
