// Package batch keeps a local snapshot of server-side batch processing state.
//
// The Poller fetches every batch at a fixed interval and replaces its
// snapshot wholesale with each successful reply. A poll is skipped while the
// previous one is still outstanding, so at most one request is ever in
// flight and the newest reply always wins.
package batch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-enhance-mcp/internal/api"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = 5 * time.Second

// ErrPollInFlight is returned by Poll when a previous poll has not finished.
var ErrPollInFlight = errors.New("batch poll already in progress")

// Fetcher retrieves all batches, keyed by id.
type Fetcher interface {
	AllBatches(ctx context.Context) (map[string]api.Batch, error)
}

// Snapshot is the client's view of all batches at one point in time.
type Snapshot struct {
	// Batches is sorted by id, oldest first (ids are creation timestamps).
	Batches []api.Batch `json:"batches"`

	// Counts maps each status to the number of batches in it.
	Counts map[string]int `json:"counts"`

	// FetchedAt is when the reply was received. Zero before the first poll.
	FetchedAt time.Time `json:"fetched_at"`

	// Seq increases by one with every accepted reply.
	Seq uint64 `json:"seq"`
}

// Active reports how many batches are pending or processing.
func (s Snapshot) Active() int {
	return s.Counts[api.StatusPending] + s.Counts[api.StatusProcessing]
}

// Find returns the batch with the given id.
func (s Snapshot) Find(id string) (api.Batch, bool) {
	for _, b := range s.Batches {
		if b.ID == id {
			return b, true
		}
	}
	return api.Batch{}, false
}

// Poller periodically refreshes a Snapshot from a Fetcher.
type Poller struct {
	fetch    Fetcher
	interval time.Duration
	logger   logrus.FieldLogger
	now      func() time.Time

	mu        sync.RWMutex
	snapshot  Snapshot
	lastErr   error
	pending   chan struct{} // non-nil while a poll is outstanding, closed when it ends
	listeners []func(Snapshot)
}

// NewPoller creates a Poller. A non-positive interval selects DefaultInterval.
func NewPoller(fetch Fetcher, interval time.Duration, logger logrus.FieldLogger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Poller{
		fetch:    fetch,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Interval returns the polling period.
func (p *Poller) Interval() time.Duration { return p.interval }

// OnUpdate registers fn to receive every new snapshot. fn runs on the
// polling goroutine and must not block.
func (p *Poller) OnUpdate(fn func(Snapshot)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Snapshot returns the most recent snapshot.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// Poll fetches once and replaces the snapshot.
//
// It returns ErrPollInFlight without fetching if another poll is running.
// On fetch failure the previous snapshot is kept.
func (p *Poller) Poll(ctx context.Context) (Snapshot, error) {
	p.mu.Lock()
	if p.pending != nil {
		snap := p.snapshot
		p.mu.Unlock()
		return snap, ErrPollInFlight
	}
	done := make(chan struct{})
	p.pending = done
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.pending = nil
		p.mu.Unlock()
		close(done)
	}()

	batches, err := p.fetch.AllBatches(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("batch status poll failed")
		p.mu.Lock()
		p.lastErr = err
		snap := p.snapshot
		p.mu.Unlock()
		return snap, err
	}

	snap := buildSnapshot(batches, p.now())

	p.mu.Lock()
	snap.Seq = p.snapshot.Seq + 1
	p.snapshot = snap
	p.lastErr = nil
	listeners := append([]func(Snapshot){}, p.listeners...)
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"batches": len(snap.Batches),
		"active":  snap.Active(),
		"seq":     snap.Seq,
	}).Debug("batch status refreshed")

	for _, fn := range listeners {
		fn(snap)
	}
	return snap, nil
}

// Refresh polls now. If a poll is already outstanding it waits for that one
// instead of issuing a second request, and returns its outcome.
func (p *Poller) Refresh(ctx context.Context) (Snapshot, error) {
	snap, err := p.Poll(ctx)
	if !errors.Is(err, ErrPollInFlight) {
		return snap, err
	}

	p.mu.RLock()
	done := p.pending
	p.mu.RUnlock()
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return p.Snapshot(), ctx.Err()
		}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot, p.lastErr
}

// Run polls immediately and then every interval until ctx is done.
//
// Ticks that arrive while a poll is outstanding are dropped.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	p.mu.RLock()
	busy := p.pending != nil
	p.mu.RUnlock()
	if busy {
		p.logger.Debug("skipping batch poll: previous request outstanding")
		return
	}
	go p.Poll(ctx)
}

func buildSnapshot(batches map[string]api.Batch, now time.Time) Snapshot {
	snap := Snapshot{
		Batches:   make([]api.Batch, 0, len(batches)),
		Counts:    make(map[string]int),
		FetchedAt: now,
	}
	for id, b := range batches {
		if b.ID == "" {
			b.ID = id
		}
		snap.Batches = append(snap.Batches, b)
		snap.Counts[b.Status]++
	}
	sort.Slice(snap.Batches, func(i, j int) bool {
		return snap.Batches[i].ID < snap.Batches[j].ID
	})
	return snap
}
