// Package session owns the lifecycle of the running exam.
//
// A Session binds one immutable Configuration to the components derived
// from it: the policy matrix, the integrity generator, the clipboard, the
// bridge and the enforcer that mediates every window. The Manager keeps at
// most one Session active per process.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExamShell/backend/internal/bridge"
	"github.com/GriffinCanCode/ExamShell/backend/internal/clipboard"
	"github.com/GriffinCanCode/ExamShell/backend/internal/enforcer"
	"github.com/GriffinCanCode/ExamShell/backend/internal/integrity"
	"github.com/GriffinCanCode/ExamShell/backend/internal/monitoring"
	"github.com/GriffinCanCode/ExamShell/backend/internal/policy"
	"github.com/GriffinCanCode/ExamShell/backend/internal/settings"
	"github.com/GriffinCanCode/ExamShell/backend/internal/shared/id"
)

var (
	ErrSessionActive = errors.New("a session is already active")
	ErrNoSession     = errors.New("no active session")
	ErrSessionEnded  = errors.New("session ended")
)

// Session is one running exam
type Session struct {
	id        id.SessionID
	cfg       *settings.Configuration
	matrix    *policy.Matrix
	generator *integrity.Generator
	enforcer  *enforcer.Enforcer
	logger    *zap.Logger
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	navigations atomic.Uint64
}

// Snapshot describes a session for diagnostics. It never contains the
// configuration secret or salt.
type Snapshot struct {
	ID              string                       `json:"id"`
	StartedAt       time.Time                    `json:"started_at"`
	BuildVersion    string                       `json:"build_version"`
	StartURL        string                       `json:"start_url"`
	Navigations     uint64                       `json:"navigations"`
	ClipboardPolicy string                       `json:"clipboard_policy"`
	PopupPolicy     string                       `json:"popup_policy"`
	ClipboardEntry  uint64                       `json:"clipboard_entry"`
	Policy          map[string]map[string]string `json:"policy"`
	Windows         []enforcer.Info              `json:"windows"`
}

// ID returns the session id
func (s *Session) ID() id.SessionID { return s.id }

// Configuration returns the session's configuration snapshot
func (s *Session) Configuration() *settings.Configuration { return s.cfg }

// Matrix returns the session's policy matrix
func (s *Session) Matrix() *policy.Matrix { return s.matrix }

// Enforcer returns the session's enforcer
func (s *Session) Enforcer() *enforcer.Enforcer { return s.enforcer }

// Context is cancelled when the session ends
func (s *Session) Context() context.Context { return s.ctx }

// StartedAt returns when the session started
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Navigations returns the number of top-level navigations so far
func (s *Session) Navigations() uint64 { return s.navigations.Load() }

func (s *Session) nextNavigation() uint64 {
	return s.navigations.Add(1)
}

// Derive computes the integrity token of url under this session
func (s *Session) Derive(url string) (integrity.Token, error) {
	return s.generator.Derive(url)
}

// OpenWindow opens a window of the given class on surface
func (s *Session) OpenWindow(class policy.WindowClass, surface enforcer.Surface) (*enforcer.Window, error) {
	if s.ctx.Err() != nil {
		return nil, ErrSessionEnded
	}
	return s.enforcer.Open(s.ctx, class, surface)
}

// Start opens the main window on surface and loads the start URL
func (s *Session) Start(surface enforcer.Surface) (*enforcer.Window, error) {
	w, err := s.OpenWindow(policy.MainWindow, surface)
	if err != nil {
		return nil, err
	}
	if err := w.Load(s.cfg.StartURL()); err != nil {
		return w, fmt.Errorf("load start url: %w", err)
	}
	return w, nil
}

// Snapshot returns a description of the session
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:              s.id.String(),
		StartedAt:       s.startedAt,
		BuildVersion:    s.cfg.BuildVersion(),
		StartURL:        s.cfg.StartURL(),
		Navigations:     s.Navigations(),
		ClipboardPolicy: string(s.matrix.ClipboardPolicy()),
		PopupPolicy:     string(s.matrix.PopupPolicy()),
		Policy:          s.matrix.Snapshot(),
		Windows:         []enforcer.Info{},
	}
	if e, ok := s.enforcer.Clipboard().Current(); ok {
		snap.ClipboardEntry = e.ID
	}
	for _, w := range s.enforcer.Windows() {
		snap.Windows = append(snap.Windows, w.Info())
	}
	return snap
}

func (s *Session) end() {
	s.enforcer.CloseAll()
	s.cancel()
}

// Option configures a Manager
type Option func(*Manager)

// WithHost sets the host that receives window events of every session
func WithHost(h enforcer.Host) Option {
	return func(m *Manager) { m.host = h }
}

// WithBridgeLimits sets the inbound bridge limits
func WithBridgeLimits(l bridge.Limits) Option {
	return func(m *Manager) { m.limits = l }
}

// Manager keeps at most one active session
type Manager struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics
	host    enforcer.Host
	limits  bridge.Limits

	mu        sync.RWMutex
	active    *Session
	lastEnded *time.Time
}

// NewManager creates a session manager
func NewManager(logger *zap.Logger, metrics *monitoring.Metrics, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger:  logger,
		metrics: metrics,
		limits:  bridge.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates the session for cfg. It fails with ErrSessionActive while
// another session is running.
func (m *Manager) Start(ctx context.Context, cfg *settings.Configuration) (*Session, error) {
	if cfg == nil {
		return nil, enforcer.ErrNoConfiguration
	}
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrSessionActive
	}

	sid := id.NewSessionID()
	logger := m.logger.With(zap.String("session_id", sid.String()))
	sctx, cancel := context.WithCancel(ctx)

	s := &Session{
		id:        sid,
		cfg:       cfg,
		matrix:    policy.FromConfiguration(cfg),
		generator: integrity.NewGenerator(cfg),
		logger:    logger,
		startedAt: time.Now(),
		ctx:       sctx,
		cancel:    cancel,
	}

	enf, err := enforcer.New(enforcer.Options{
		Configuration:  cfg,
		Matrix:         s.matrix,
		Clipboard:      clipboard.NewMediator(logger, m.metrics),
		Bridge:         bridge.New(m.limits, logger, m.metrics),
		Host:           m.host,
		Logger:         logger,
		Metrics:        m.metrics,
		NextNavigation: s.nextNavigation,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start session: %w", err)
	}
	s.enforcer = enf

	m.active = s
	m.metrics.SetSessionsActive(1)
	logger.Info("Session started",
		zap.String("start_url", cfg.StartURL()),
		zap.String("clipboard_policy", string(s.matrix.ClipboardPolicy())),
		zap.String("popup_policy", string(s.matrix.PopupPolicy())))
	return s, nil
}

// Active returns the running session
func (m *Manager) Active() (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active, m.active != nil
}

// End stops the running session. Its windows are closed and pending script
// callbacks are dropped.
func (m *Manager) End() error {
	m.mu.Lock()
	s := m.active
	m.active = nil
	if s != nil {
		now := time.Now()
		m.lastEnded = &now
	}
	m.mu.Unlock()

	if s == nil {
		return ErrNoSession
	}

	s.end()
	m.metrics.SetSessionsActive(0)
	s.logger.Info("Session ended",
		zap.Uint64("navigations", s.Navigations()),
		zap.Duration("duration", time.Since(s.startedAt)))
	return nil
}

// LastEnded returns when the last session ended, if any
func (m *Manager) LastEnded() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastEnded == nil {
		return time.Time{}, false
	}
	return *m.lastEnded, true
}
