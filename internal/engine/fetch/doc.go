// Package fetch loads page documents over HTTP for the sandbox engine.
//
// A Client turns a navigation into a sandbox.Document: it sends the request
// headers the navigation decision attached (integrity keys included),
// decodes the body to UTF-8 and extracts the title and inline scripts.
//
// Features:
//   - Pooled transport, per-request timeout, no automatic retries
//   - Optional client-side rate limiting
//   - Per-host circuit breaker: a host that keeps failing fails fast
//   - Charset detection (Content-Type, BOM, meta prescan, statistical fallback)
//
// Example Usage:
//
//	client := fetch.New(fetch.DefaultConfig(), logger)
//	browser := sandbox.New(sandbox.DefaultConfig(), client.Resolver(ctx), logger)
package fetch
