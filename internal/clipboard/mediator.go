// Package clipboard isolates copy and paste from the platform clipboard and
// keeps every exam window in sync.
//
// The Mediator owns the single authoritative Entry. Publishing assigns the
// next identifier under one lock; broadcasting fans the current entry out to
// all registered receivers concurrently. Receivers keep the last identifier
// they applied and drop anything that is not newer, so replays and
// out-of-order deliveries never overwrite fresher content.
package clipboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/ExamShell/backend/internal/monitoring"
)

// Entry is one clipboard value. Entries are values; nobody holds a mutable
// reference to the mediator's copy.
type Entry struct {
	ID          uint64    `json:"id"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"published_at"`
}

// Mediator is the process-wide clipboard
type Mediator struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.Mutex
	counter uint64
	current Entry

	rmu       sync.RWMutex
	receivers map[string]*Receiver
}

// NewMediator creates an empty clipboard
func NewMediator(logger *zap.Logger, metrics *monitoring.Metrics) *Mediator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mediator{
		logger:    logger,
		metrics:   metrics,
		receivers: make(map[string]*Receiver),
	}
}

// Publish stores content as the next entry and returns it
func (m *Mediator) Publish(content string) Entry {
	m.mu.Lock()
	m.counter++
	m.current = Entry{ID: m.counter, Content: content, PublishedAt: time.Now()}
	e := m.current
	m.mu.Unlock()

	m.metrics.RecordClipboardPublish()
	m.logger.Debug("Clipboard entry published", zap.Uint64("id", e.ID), zap.Int("length", len(content)))
	return e
}

// Current returns the latest entry. ok is false before the first publish.
func (m *Mediator) Current() (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current.ID != 0
}

// Register adds the receiver of a window, replacing any previous one
func (m *Mediator) Register(windowID string, r *Receiver) {
	m.rmu.Lock()
	defer m.rmu.Unlock()
	m.receivers[windowID] = r
}

// Unregister removes the receiver of a window
func (m *Mediator) Unregister(windowID string) {
	m.rmu.Lock()
	defer m.rmu.Unlock()
	delete(m.receivers, windowID)
}

// Receivers returns the number of registered receivers
func (m *Mediator) Receivers() int {
	m.rmu.RLock()
	defer m.rmu.RUnlock()
	return len(m.receivers)
}

// Broadcast pushes the current entry to every receiver. Deliveries run
// concurrently; the first delivery error is returned after all finished.
func (m *Mediator) Broadcast(ctx context.Context) error {
	e, ok := m.Current()
	if !ok {
		return nil
	}
	return m.BroadcastEntry(ctx, e)
}

// BroadcastEntry pushes a specific entry to every receiver. Receivers that
// already applied e or a newer entry ignore it.
func (m *Mediator) BroadcastEntry(ctx context.Context, e Entry) error {
	m.rmu.RLock()
	targets := make(map[string]*Receiver, len(m.receivers))
	for id, r := range m.receivers {
		targets[id] = r
	}
	m.rmu.RUnlock()

	var g errgroup.Group
	for windowID, r := range targets {
		g.Go(func() error {
			applied, err := r.Receive(ctx, e)
			if !applied {
				m.metrics.RecordClipboardStale()
				return nil
			}
			m.metrics.RecordClipboardDelivery(err == nil)
			if err != nil {
				return fmt.Errorf("deliver clipboard entry %d to %s: %w", e.ID, windowID, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		m.logger.Warn("Clipboard broadcast incomplete", zap.Uint64("id", e.ID), zap.Error(err))
		return err
	}
	return nil
}
