package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExamShell/backend/internal/config"
	"github.com/GriffinCanCode/ExamShell/backend/internal/middleware"
	"github.com/GriffinCanCode/ExamShell/backend/internal/monitoring"
	"github.com/GriffinCanCode/ExamShell/backend/internal/session"
	"github.com/GriffinCanCode/ExamShell/backend/internal/ws"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server
type Options struct {
	Config      config.DiagnosticsConfig
	Development bool
	Sessions    *session.Manager
	Hub         *ws.Hub
	Metrics     *monitoring.Metrics
	Logger      *zap.Logger
	RateLimit   middleware.RateLimitConfig
}

// Server wraps the diagnostics HTTP server and its dependencies
type Server struct {
	router    *gin.Engine
	sessions  *session.Manager
	hub       *ws.Hub
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	config    config.DiagnosticsConfig
	startedAt time.Time
}

// New creates the diagnostics server
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Hub == nil {
		opts.Hub = ws.NewHub(opts.Logger, opts.Metrics)
	}
	if opts.RateLimit.RequestsPerSecond == 0 {
		opts.RateLimit = middleware.DefaultRateLimitConfig()
	}

	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(opts.Metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.RateLimit(opts.RateLimit))

	s := &Server{
		router:    router,
		sessions:  opts.Sessions,
		hub:       opts.Hub,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		config:    opts.Config,
		startedAt: time.Now(),
	}

	router.GET("/", s.root)
	router.GET("/health", s.health)
	router.GET("/session", s.session)
	router.GET("/session/windows/:id", s.window)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Metrics.Registry(), promhttp.HandlerOpts{})))
	router.GET("/metrics/json", s.metricsJSON)
	router.GET("/events", s.hub.HandleConnection)

	return s
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the host event hub
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting diagnostics server", zap.String("addr", s.config.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("diagnostics server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down diagnostics server")
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown diagnostics server: %w", err)
	}
	return nil
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "examshell-diagnostics",
		"endpoints": []string{
			"/health",
			"/session",
			"/session/windows/:id",
			"/metrics",
			"/metrics/json",
			"/events",
		},
	})
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"session_active": false,
		"subscribers":    s.hub.Subscribers(),
	}
	if s.sessions != nil {
		if sess, ok := s.sessions.Active(); ok {
			resp["session_active"] = true
			resp["session_id"] = sess.ID().String()
		}
		if ended, ok := s.sessions.LastEnded(); ok {
			resp["last_session_ended"] = ended
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) active(c *gin.Context) (*session.Session, bool) {
	if s.sessions != nil {
		if sess, ok := s.sessions.Active(); ok {
			return sess, true
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": session.ErrNoSession.Error()})
	return nil, false
}

func (s *Server) session(c *gin.Context) {
	sess, ok := s.active(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (s *Server) window(c *gin.Context) {
	sess, ok := s.active(c)
	if !ok {
		return
	}
	w, ok := sess.Enforcer().Window(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "window not found"})
		return
	}
	c.JSON(http.StatusOK, w.Info())
}

func (s *Server) metricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":     s.metrics.GetSnapshot(),
		"hub_dropped": s.hub.Dropped(),
		"subscribers": s.hub.Subscribers(),
	})
}
