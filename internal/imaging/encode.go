package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultJPEGQuality matches the browser default for canvas.toDataURL("image/jpeg").
const DefaultJPEGQuality = 92

// EncodeJPEGDataURI encodes buf as a lossy JPEG "data:image/jpeg;base64,..." URI.
//
// Quality outside 1..100 falls back to DefaultJPEGQuality. JPEG has no alpha
// channel, so translucent pixels are flattened by the encoder.
func EncodeJPEGDataURI(buf *PixelBuffer, quality int) (string, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, buf.Image(), imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return "", fmt.Errorf("failed to encode enhanced image: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(out.Bytes()), nil
}

// PreviewResult contains a buffer rendered as base64 PNG.
type PreviewResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Preview renders buf as a lossless PNG, optionally scaled.
//
// A scale of 1 (or any non-positive value) keeps the natural size. The buffer
// itself is never modified.
func Preview(buf *PixelBuffer, scale float64) (*PreviewResult, error) {
	var out image.Image = buf.Image()

	if scale != 1.0 && scale > 0 {
		newWidth := int(float64(buf.Width()) * scale)
		newHeight := int(float64(buf.Height()) * scale)
		if newWidth < 1 || newHeight < 1 {
			return nil, fmt.Errorf("scale %.3f shrinks %dx%d image to nothing", scale, buf.Width(), buf.Height())
		}
		out = imaging.Resize(buf.Image(), newWidth, newHeight, imaging.Lanczos)
	}

	var b bytes.Buffer
	if err := imaging.Encode(&b, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	return &PreviewResult{
		Width:       out.Bounds().Dx(),
		Height:      out.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(b.Bytes()),
		MimeType:    "image/png",
	}, nil
}
