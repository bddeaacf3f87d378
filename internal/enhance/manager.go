package enhance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-enhance-mcp/internal/imaging"
)

// ErrSelectionSuperseded is returned by Select when a later Select succeeded
// first. The decoded image is discarded.
var ErrSelectionSuperseded = errors.New("image selection superseded by a newer selection")

// Decoder turns an image source into a pixel buffer.
type Decoder interface {
	Decode(ctx context.Context, src imaging.Source) (*imaging.PixelBuffer, error)
}

// Saver submits an enhanced encoding to the external save endpoint.
type Saver interface {
	SaveEnhancedImage(ctx context.Context, dataURI, originalPath string) error
}

// Options tunes a Manager. Zero values select defaults.
type Options struct {
	// JPEGQuality is the save encoding quality (1-100). Default 92.
	JPEGQuality int

	// SaveTimeout bounds one save round trip. Zero means no bound.
	SaveTimeout time.Duration

	// Logger receives lifecycle events. Default is the logrus standard logger.
	Logger logrus.FieldLogger

	// Now supplies cache-busting timestamps. Default time.Now.
	Now func() time.Time

	// MaxDisplayed bounds how many displayed references are remembered.
	// The least recently updated target is forgotten first. Default 32.
	MaxDisplayed int
}

// DefaultMaxDisplayed is the displayed reference limit used when
// Options.MaxDisplayed is zero.
const DefaultMaxDisplayed = 32

// SaveResult describes a completed save.
type SaveResult struct {
	SessionID string `json:"session_id"`
	Target    string `json:"target"`

	// Reference is the new displayed reference: the saved data URI with a
	// "?t=<unix millis>" cache-busting marker.
	Reference string `json:"-"`
}

// Manager owns the single active enhancement session.
//
// All methods are safe for concurrent use.
type Manager struct {
	decoder Decoder
	saver   Saver
	quality int
	timeout time.Duration
	logger  logrus.FieldLogger
	now     func() time.Time

	mu     sync.Mutex
	active *Session

	// selectSeq numbers Select calls as they start; published is the
	// number of the newest one that became active.
	selectSeq uint64
	published uint64

	// displayed holds at most maxDisplayed entries; displayOrder lists
	// their targets oldest first.
	displayed    map[string]string
	displayOrder []string
	maxDisplayed int
}

// NewManager creates a Manager with no active session.
func NewManager(decoder Decoder, saver Saver, opts Options) *Manager {
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = imaging.DefaultJPEGQuality
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxDisplayed <= 0 {
		opts.MaxDisplayed = DefaultMaxDisplayed
	}
	return &Manager{
		decoder:      decoder,
		saver:        saver,
		quality:      opts.JPEGQuality,
		timeout:      opts.SaveTimeout,
		logger:       opts.Logger,
		now:          opts.Now,
		displayed:    make(map[string]string),
		maxDisplayed: opts.MaxDisplayed,
	}
}

// Select decodes src and makes it the active session for target.
//
// target is the opaque identifier of the stored image the enhancement will
// replace. The previous session, including one with a save in flight, is
// discarded once decoding succeeds. If decoding fails the previous session
// stays active and the *imaging.DecodeError is returned. A failed Select
// never supersedes an earlier one that is still decoding.
func (m *Manager) Select(ctx context.Context, target string, src imaging.Source) (*Status, error) {
	if target == "" {
		return nil, errors.New("select image: target identifier is required")
	}

	m.mu.Lock()
	m.selectSeq++
	seq := m.selectSeq
	m.mu.Unlock()

	log := m.logger.WithFields(logrus.Fields{"target": target, "source": src.String()})

	start := time.Now()
	buf, err := m.decoder.Decode(ctx, src)
	if err != nil {
		log.WithError(err).Warn("image selection failed")
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if seq < m.published {
		log.Debug("discarding superseded selection")
		return nil, ErrSelectionSuperseded
	}
	m.published = seq

	if prev := m.active; prev != nil {
		log = log.WithField("replaced_session", prev.id.String())
	}
	m.active = newSession(target, src.String(), buf)
	if _, known := m.displayed[target]; !known && src.URL != "" {
		m.setDisplayed(target, src.URL)
	}

	log.WithFields(logrus.Fields{
		"session":  m.active.id.String(),
		"width":    buf.Width(),
		"height":   buf.Height(),
		"duration": time.Since(start),
	}).Info("image selected for enhancement")

	return m.active.status(m.displayed[target]), nil
}

// SelectDisplayed starts a session from target's current displayed
// reference, typically the encoding produced by the last successful save.
func (m *Manager) SelectDisplayed(ctx context.Context, target string) (*Status, error) {
	ref, ok := m.Displayed(target)
	if !ok {
		return nil, fmt.Errorf("no displayed image known for %s", target)
	}
	return m.Select(ctx, target, imaging.Source{URL: ref})
}

// Apply runs filter f on the active session's working buffer.
func (m *Manager) Apply(f imaging.Filter) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrNoSession
	}
	if err := m.active.apply(f); err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"session": m.active.id.String(),
		"filter":  string(f),
		"applied": len(m.active.applied),
	}).Debug("filter applied")

	return m.active.status(m.displayed[m.active.target]), nil
}

// Reset restores the active session's working buffer to the original.
func (m *Manager) Reset() (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrNoSession
	}
	if err := m.active.reset(); err != nil {
		return nil, err
	}

	m.logger.WithField("session", m.active.id.String()).Debug("enhancement reset")
	return m.active.status(m.displayed[m.active.target]), nil
}

// Save encodes the working buffer and submits it to replace the target.
//
// On failure a *PersistError is returned and the session is left exactly as
// it was, so Save can be retried. On success the target's displayed reference
// is replaced and the session ends. If the session was replaced while the
// request was outstanding, the reply is ignored and ErrStaleResponse returned.
func (m *Manager) Save(ctx context.Context) (*SaveResult, error) {
	m.mu.Lock()
	s := m.active
	if s == nil {
		m.mu.Unlock()
		return nil, ErrNoSession
	}
	if s.saving {
		m.mu.Unlock()
		return nil, ErrSaveInFlight
	}
	uri, err := imaging.EncodeJPEGDataURI(s.working, m.quality)
	if err != nil {
		m.mu.Unlock()
		return nil, &PersistError{Target: s.target, Err: err}
	}
	s.saving = true
	m.mu.Unlock()

	log := m.logger.WithFields(logrus.Fields{
		"session": s.id.String(),
		"target":  s.target,
		"bytes":   len(uri),
	})
	log.Debug("submitting enhanced image")

	saveCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	start := time.Now()
	err = m.saver.SaveEnhancedImage(saveCtx, uri, s.target)
	log = log.WithField("duration", time.Since(start))

	m.mu.Lock()
	defer m.mu.Unlock()
	s.saving = false

	if m.active != s {
		log.WithError(err).Warn("ignoring save response for replaced session")
		return nil, ErrStaleResponse
	}
	if err != nil {
		log.WithError(err).Warn("save failed")
		return nil, &PersistError{Target: s.target, Err: err}
	}

	ref := uri + "?t=" + strconv.FormatInt(m.now().UnixMilli(), 10)
	m.setDisplayed(s.target, ref)
	m.active = nil

	log.Info("enhanced image saved")
	return &SaveResult{SessionID: s.id.String(), Target: s.target, Reference: ref}, nil
}

// Status returns a snapshot of the active session.
func (m *Manager) Status() (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrNoSession
	}
	return m.active.status(m.displayed[m.active.target]), nil
}

// Inspect calls fn with the active session's buffers under the manager lock.
// fn must not modify or retain either buffer.
func (m *Manager) Inspect(fn func(working, original *imaging.PixelBuffer) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return ErrNoSession
	}
	return fn(m.active.working, m.active.original)
}

// Discard ends the active session without saving. It reports whether a
// session was active.
func (m *Manager) Discard() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return false
	}
	m.logger.WithField("session", m.active.id.String()).Debug("session discarded")
	m.active = nil
	return true
}

// Displayed returns target's current displayed reference.
func (m *Manager) Displayed(target string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.displayed[target]
	return ref, ok
}

// setDisplayed records ref for target and forgets the least recently updated
// targets beyond the limit. Callers hold m.mu.
func (m *Manager) setDisplayed(target, ref string) {
	if _, ok := m.displayed[target]; ok {
		for i, t := range m.displayOrder {
			if t == target {
				m.displayOrder = append(m.displayOrder[:i], m.displayOrder[i+1:]...)
				break
			}
		}
	}
	m.displayed[target] = ref
	m.displayOrder = append(m.displayOrder, target)

	for len(m.displayOrder) > m.maxDisplayed {
		oldest := m.displayOrder[0]
		m.displayOrder = m.displayOrder[1:]
		delete(m.displayed, oldest)
		m.logger.WithField("target", oldest).Debug("forgetting displayed reference")
	}
}
