package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"github.com/anthonynsimon/bild/blend"
)

// DiffResult describes how far a working buffer has drifted from its original.
type DiffResult struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	// ChangedPixels counts pixels whose RGBA bytes differ.
	ChangedPixels int `json:"changed_pixels"`

	// ChangedPercent is ChangedPixels as a percentage of all pixels (0-100).
	ChangedPercent float64 `json:"changed_percent"`

	// ImageBase64 is the per-channel difference image as base64 PNG.
	// Unchanged areas are black.
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Diff compares working against original.
//
// Both buffers must share dimensions. Neither is modified.
func Diff(working, original *PixelBuffer) (*DiffResult, error) {
	if !working.SameSize(original) {
		return nil, fmt.Errorf("buffer size mismatch: %dx%d vs %dx%d",
			working.Width(), working.Height(), original.Width(), original.Height())
	}

	changed := 0
	wp, op := working.Pix(), original.Pix()
	for i := 0; i+3 < len(wp); i += 4 {
		if wp[i] != op[i] || wp[i+1] != op[i+1] || wp[i+2] != op[i+2] || wp[i+3] != op[i+3] {
			changed++
		}
	}

	diff := blend.Difference(original.Image(), working.Image())

	var b bytes.Buffer
	if err := png.Encode(&b, diff); err != nil {
		return nil, fmt.Errorf("failed to encode difference image: %w", err)
	}

	total := working.Width() * working.Height()
	return &DiffResult{
		Width:          working.Width(),
		Height:         working.Height(),
		ChangedPixels:  changed,
		ChangedPercent: float64(changed) / float64(total) * 100,
		ImageBase64:    base64.StdEncoding.EncodeToString(b.Bytes()),
		MimeType:       "image/png",
	}, nil
}
