package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// ErrDecode is matched by every DecodeError via errors.Is.
var ErrDecode = errors.New("image decode failed")

// DecodeError reports a source that could not be turned into a pixel buffer.
//
// No buffer is ever returned alongside a DecodeError.
type DecodeError struct {
	// Source describes what was being loaded (path, URL, or reader name).
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) true for any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Source names an image to load. Exactly one of Path, URL or Reader is used,
// checked in that order.
type Source struct {
	// Path is a local file path.
	Path string

	// URL is an http(s) URL or a base64 "data:" URI. A trailing "?t=..."
	// cache-busting marker on a data URI is ignored.
	URL string

	// Reader supplies encoded bytes directly, e.g. a camera frame or upload.
	Reader io.Reader

	// Name labels a Reader source in errors and logs.
	Name string
}

// String describes the source for errors and logs.
func (s Source) String() string {
	switch {
	case s.Path != "":
		return s.Path
	case strings.HasPrefix(s.URL, "data:"):
		return "data URI"
	case s.URL != "":
		return s.URL
	case s.Name != "":
		return s.Name
	default:
		return "reader"
	}
}

// Loader decodes image sources into pixel buffers.
//
// The zero value is not usable; create one with NewLoader.
type Loader struct {
	client *http.Client
}

// NewLoader creates a Loader whose URL fetches give up after timeout.
// A non-positive timeout means no client-side limit.
func NewLoader(timeout time.Duration) *Loader {
	if timeout < 0 {
		timeout = 0
	}
	return &Loader{client: &http.Client{Timeout: timeout}}
}

// NewLoaderWithClient creates a Loader using the given HTTP client for URLs.
func NewLoaderWithClient(client *http.Client) *Loader {
	return &Loader{client: client}
}

// Decode loads src into a new PixelBuffer at the image's natural size.
//
// Any failure, including an unreadable file, a non-2xx HTTP response or
// undecodable bytes, is reported as a *DecodeError.
func (l *Loader) Decode(ctx context.Context, src Source) (*PixelBuffer, error) {
	img, _, err := l.decode(ctx, src)
	if err != nil {
		return nil, err
	}
	buf, err := FromImage(img)
	if err != nil {
		return nil, &DecodeError{Source: src.String(), Err: err}
	}
	return buf, nil
}

func (l *Loader) decode(ctx context.Context, src Source) (image.Image, string, error) {
	rc, err := l.open(ctx, src)
	if err != nil {
		return nil, "", &DecodeError{Source: src.String(), Err: err}
	}
	defer rc.Close()

	img, format, err := image.Decode(rc)
	if err != nil {
		return nil, "", &DecodeError{Source: src.String(), Err: err}
	}
	return img, format, nil
}

// open resolves a Source into a stream of encoded bytes.
func (l *Loader) open(ctx context.Context, src Source) (io.ReadCloser, error) {
	switch {
	case src.Path != "":
		f, err := os.Open(src.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open image: %w", err)
		}
		return f, nil

	case strings.HasPrefix(src.URL, "data:"):
		data, _, err := ParseDataURI(src.URL)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil

	case src.URL != "":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch image: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
		}
		return resp.Body, nil

	case src.Reader != nil:
		return io.NopCloser(src.Reader), nil

	default:
		return nil, errors.New("empty image source")
	}
}

// ParseDataURI extracts the payload and media type of a base64 data URI.
//
// The form accepted is "data:<mime>;base64,<payload>", optionally followed by
// a "?t=<marker>" suffix appended for cache busting.
func ParseDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", errors.New("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("malformed data URI: missing payload")
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, "", errors.New("unsupported data URI: not base64 encoded")
	}
	if i := strings.Index(payload, "?"); i >= 0 {
		payload = payload[:i]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("malformed data URI payload: %w", err)
	}
	return data, mime, nil
}

// ImageInfo contains metadata about an image source.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the format reported by the decoder: "png", "jpeg", "gif",
	// "webp" or "bmp".
	Format string `json:"format"`

	// HasAlpha indicates whether the decoded color model carries alpha.
	HasAlpha bool `json:"has_alpha"`
}

// Info decodes src and reports its dimensions and format.
func (l *Loader) Info(ctx context.Context, src Source) (*ImageInfo, error) {
	img, format, err := l.decode(ctx, src)
	if err != nil {
		return nil, err
	}

	hasAlpha := false
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64, *image.Paletted:
		hasAlpha = true
	}

	bounds := img.Bounds()
	return &ImageInfo{
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Format:   format,
		HasAlpha: hasAlpha,
	}, nil
}
