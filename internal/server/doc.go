// Package server provides the loopback diagnostics server for the exam shell.
//
// The server is read-only. It exposes:
//   - GET /health: liveness and whether a session is running
//   - GET /session: the active session snapshot (never contains secrets)
//   - GET /session/windows/:id: one window of the active session
//   - GET /metrics: Prometheus exposition of the shell's own registry
//   - GET /metrics/json: a compact JSON summary of the same counters
//   - GET /events: WebSocket stream of host events (see package ws)
//
// Middleware stack: recovery, request metrics, loopback-only CORS and
// per-IP rate limiting.
//
// Example Usage:
//
//	hub := ws.NewHub(logger, metrics)
//	sessions := session.NewManager(logger, metrics, session.WithHost(hub))
//	srv := server.New(server.Options{Config: cfg.Diagnostics, Sessions: sessions, Hub: hub})
//	if err := srv.Run(ctx); err != nil {
//	    logger.Fatal("diagnostics server failed", zap.Error(err))
//	}
package server
