package imaging

import (
	"errors"
	"fmt"
	"math"

	"github.com/disintegration/imaging"
)

// Filter names an enhancement that can be applied to a PixelBuffer.
type Filter string

// Supported filters.
const (
	FilterBrightness Filter = "brightness"
	FilterContrast   Filter = "contrast"
	FilterGrayscale  Filter = "grayscale"
	FilterSharpen    Filter = "sharpen"
)

// Filters lists every supported filter in display order.
var Filters = []Filter{FilterBrightness, FilterContrast, FilterGrayscale, FilterSharpen}

// ErrUnknownFilter is returned for a filter name outside Filters.
var ErrUnknownFilter = errors.New("unknown filter")

const (
	brightnessGain = 1.2

	// At this factor the contrast mapping compresses every channel toward
	// mid-gray: 0 maps to 115.2 and 255 to 140.7.
	contrastFactor    = 25.5
	contrastIntercept = 128 * (1 - contrastFactor/255)

	// sharpenSigma matches a CSS blur(1px), whose radius is the deviation.
	sharpenSigma = 1.0
)

// Valid reports whether f is a supported filter.
func (f Filter) Valid() bool {
	for _, known := range Filters {
		if f == known {
			return true
		}
	}
	return false
}

// ApplyFilter runs the named filter over buf in place.
//
// The filter reads the buffer's current contents, so successive calls stack.
// Out-of-range arithmetic is clamped; the only error is an unknown name.
func ApplyFilter(name Filter, buf *PixelBuffer) error {
	switch name {
	case FilterBrightness:
		brightness(buf)
	case FilterContrast:
		contrast(buf)
	case FilterGrayscale:
		grayscale(buf)
	case FilterSharpen:
		sharpen(buf)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	return nil
}

// Reset copies original over working, discarding every applied filter.
func Reset(working, original *PixelBuffer) error {
	return working.CopyFrom(original)
}

func brightness(buf *PixelBuffer) {
	mapRGB(buf, func(c uint8) uint8 {
		return clampChannel(float64(c) * brightnessGain)
	})
}

func contrast(buf *PixelBuffer) {
	mapRGB(buf, func(c uint8) uint8 {
		return clampChannel(contrastFactor*(float64(c)/255) + contrastIntercept)
	})
}

func grayscale(buf *PixelBuffer) {
	pix := buf.Pix()
	for i := 0; i+3 < len(pix); i += 4 {
		avg := clampChannel((float64(pix[i]) + float64(pix[i+1]) + float64(pix[i+2])) / 3)
		pix[i], pix[i+1], pix[i+2] = avg, avg, avg
	}
}

// sharpen blurs a copy of the buffer and replaces each color channel with the
// absolute difference between the blurred and the current value. The output
// is an edge residual rather than a classic unsharp mask.
func sharpen(buf *PixelBuffer) {
	blurred := imaging.Blur(buf.Image(), sharpenSigma)
	pix := buf.Pix()
	bp := blurred.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = absDiff(bp[i], pix[i])
		pix[i+1] = absDiff(bp[i+1], pix[i+1])
		pix[i+2] = absDiff(bp[i+2], pix[i+2])
	}
}

// mapRGB applies fn to the R, G and B channels of every pixel, leaving A.
func mapRGB(buf *PixelBuffer, fn func(uint8) uint8) {
	var lut [256]uint8
	for v := range lut {
		lut[v] = fn(uint8(v))
	}
	pix := buf.Pix()
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = lut[pix[i]]
		pix[i+1] = lut[pix[i+1]]
		pix[i+2] = lut[pix[i+2]]
	}
}

// clampChannel stores a float the way a Uint8ClampedArray does: NaN becomes
// 0, values are clamped to [0,255], and ties round to even.
func clampChannel(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.RoundToEven(v))
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
