// Package ws streams host events to diagnostics subscribers over WebSocket.
//
// The Hub implements enforcer.Host: every address, title, loading-state,
// load failure and policy violation the enforcer reports is fanned out to
// all connected subscribers. Delivery never blocks the engine's event
// thread; a subscriber whose buffer is full misses the event.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - hello: Connection accepted, carries the subscriber id
//   - address_changed, title_changed, loading_state, load_failed
//   - policy_violation
//   - pong, error
//
// Example Usage:
//
//	hub := ws.NewHub(logger, metrics)
//	router.GET("/events", hub.HandleConnection)
package ws
