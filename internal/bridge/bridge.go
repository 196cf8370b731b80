package bridge

import (
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/ExamShell/backend/internal/monitoring"
)

// Limits bounds inbound messages per window
type Limits struct {
	MessagesPerSecond float64
	Burst             int
}

// DefaultLimits returns the default inbound limits
func DefaultLimits() Limits {
	return Limits{MessagesPerSecond: 20, Burst: 40}
}

// Bridge validates inbound messages for all windows of a session
type Bridge struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics
	limits  Limits

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a bridge
func New(limits Limits, logger *zap.Logger, metrics *monitoring.Metrics) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		logger:   logger,
		metrics:  metrics,
		limits:   limits,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (b *Bridge) limiter(windowID string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.limiters[windowID]
	if !ok {
		limit := rate.Inf
		if b.limits.MessagesPerSecond > 0 {
			limit = rate.Limit(b.limits.MessagesPerSecond)
		}
		burst := b.limits.Burst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(limit, burst)
		b.limiters[windowID] = l
	}
	return l
}

// Receive validates a message posted by a page in windowID. Dropped
// messages are logged at debug level only and never answered.
func (b *Bridge) Receive(windowID string, payload []byte) (Message, error) {
	if !b.limiter(windowID).Allow() {
		err := &ProtocolError{Err: ErrRateLimited}
		b.drop(windowID, "rate-limited", err)
		return nil, err
	}

	msg, err := Decode(payload)
	if err != nil {
		kind := "malformed"
		if errors.Is(err, ErrUnknownMessageKind) {
			kind = "unknown"
		}
		b.drop(windowID, kind, err)
		return nil, err
	}

	b.metrics.RecordBridgeMessage(string(msg.Kind()), true)
	return msg, nil
}

func (b *Bridge) drop(windowID, label string, err error) {
	b.metrics.RecordBridgeMessage(label, false)
	b.logger.Debug("Bridge message dropped",
		zap.String("window_id", windowID),
		zap.Error(err))
}

// Forget releases per-window state
func (b *Bridge) Forget(windowID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.limiters, windowID)
}
