package enhance

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ironsheep/image-enhance-mcp/internal/imaging"
)

// Session is one image's enhancement lifetime.
//
// The original buffer is captured once and never written. The working buffer
// is mutated by filters. Sessions are owned by a Manager and are not safe for
// use outside its lock.
type Session struct {
	id       uuid.UUID
	target   string
	source   string
	original *imaging.PixelBuffer
	working  *imaging.PixelBuffer
	applied  []imaging.Filter
	saving   bool
}

func newSession(target, source string, decoded *imaging.PixelBuffer) *Session {
	return &Session{
		id:       uuid.New(),
		target:   target,
		source:   source,
		original: decoded,
		working:  decoded.Clone(),
	}
}

func (s *Session) apply(f imaging.Filter) error {
	if err := imaging.ApplyFilter(f, s.working); err != nil {
		return err
	}
	s.applied = append(s.applied, f)
	return nil
}

func (s *Session) reset() error {
	if err := imaging.Reset(s.working, s.original); err != nil {
		return err
	}
	s.applied = nil
	return nil
}

// Status is a read-only snapshot of the active session.
type Status struct {
	SessionID string           `json:"session_id"`
	Target    string           `json:"target"`
	Source    string           `json:"source"`
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	Applied   []imaging.Filter `json:"applied"`
	Modified  bool             `json:"modified"`
	Saving    bool             `json:"saving"`

	// MeanColor fingerprints the working buffer.
	MeanColor *imaging.ColorResult `json:"mean_color"`

	// Displayed summarises the target's current displayed reference, if known.
	Displayed string `json:"displayed,omitempty"`
}

func (s *Session) status(displayed string) *Status {
	applied := make([]imaging.Filter, len(s.applied))
	copy(applied, s.applied)
	return &Status{
		SessionID: s.id.String(),
		Target:    s.target,
		Source:    s.source,
		Width:     s.working.Width(),
		Height:    s.working.Height(),
		Applied:   applied,
		Modified:  !s.working.Equal(s.original),
		Saving:    s.saving,
		MeanColor: imaging.MeanColor(s.working),
		Displayed: DescribeReference(displayed),
	}
}

// DescribeReference shortens a displayed reference for logs and status
// output. Data URIs keep their media type and cache-busting marker only.
func DescribeReference(ref string) string {
	if !strings.HasPrefix(ref, "data:") {
		return ref
	}
	head, _, _ := strings.Cut(ref, ",")
	marker := ""
	if i := strings.LastIndex(ref, "?"); i >= 0 {
		marker = ref[i:]
	}
	return fmt.Sprintf("%s,...%s (%d bytes)", head, marker, len(ref))
}
