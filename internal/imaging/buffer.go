package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// PixelBuffer is an addressable 2-D grid of 8-bit RGBA pixels.
//
// The backing store is an origin-anchored *image.NRGBA, so Pix is laid out
// row-major with a stride of exactly Width()*4 bytes. Values are
// non-premultiplied, matching what a canvas exposes through getImageData.
type PixelBuffer struct {
	img *image.NRGBA
}

// NewPixelBuffer creates a transparent black buffer of the given size.
func NewPixelBuffer(width, height int) (*PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid buffer dimensions %dx%d", width, height)
	}
	return &PixelBuffer{img: image.NewNRGBA(image.Rect(0, 0, width, height))}, nil
}

// FromImage copies any image.Image into a new buffer.
//
// The source bounds may have any origin; the buffer is always re-anchored at
// (0,0). The source is not retained.
func FromImage(src image.Image) (*PixelBuffer, error) {
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("image has empty bounds %v", b)
	}
	return &PixelBuffer{img: imaging.Clone(src)}, nil
}

// Width returns the buffer width in pixels.
func (p *PixelBuffer) Width() int { return p.img.Rect.Dx() }

// Height returns the buffer height in pixels.
func (p *PixelBuffer) Height() int { return p.img.Rect.Dy() }

// Stride returns the number of bytes per row.
func (p *PixelBuffer) Stride() int { return p.img.Stride }

// Pix exposes the raw channel bytes. Writes go straight into the buffer.
func (p *PixelBuffer) Pix() []uint8 { return p.img.Pix }

// Image returns the buffer as an image.Image without copying.
func (p *PixelBuffer) Image() *image.NRGBA { return p.img }

// At returns the pixel at (x, y). Out-of-range coordinates yield a zero color.
func (p *PixelBuffer) At(x, y int) color.NRGBA {
	return p.img.NRGBAAt(x, y)
}

// Set writes the pixel at (x, y). Out-of-range coordinates are ignored.
func (p *PixelBuffer) Set(x, y int, c color.NRGBA) {
	p.img.SetNRGBA(x, y, c)
}

// Clone returns an independent deep copy.
func (p *PixelBuffer) Clone() *PixelBuffer {
	pix := make([]uint8, len(p.img.Pix))
	copy(pix, p.img.Pix)
	return &PixelBuffer{img: &image.NRGBA{
		Pix:    pix,
		Stride: p.img.Stride,
		Rect:   p.img.Rect,
	}}
}

// SameSize reports whether both buffers have identical dimensions.
func (p *PixelBuffer) SameSize(other *PixelBuffer) bool {
	return p.Width() == other.Width() && p.Height() == other.Height()
}

// CopyFrom overwrites this buffer's pixels with src's pixels.
//
// Both buffers must have the same dimensions; buffers are never resized.
func (p *PixelBuffer) CopyFrom(src *PixelBuffer) error {
	if !p.SameSize(src) {
		return fmt.Errorf("buffer size mismatch: %dx%d vs %dx%d",
			p.Width(), p.Height(), src.Width(), src.Height())
	}
	copy(p.img.Pix, src.img.Pix)
	return nil
}

// Equal reports whether both buffers have the same dimensions and bytes.
func (p *PixelBuffer) Equal(other *PixelBuffer) bool {
	if other == nil {
		return false
	}
	return p.SameSize(other) && bytes.Equal(p.img.Pix, other.img.Pix)
}
