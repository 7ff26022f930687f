// Package gateway exposes the relay over HTTP.
//
// The surface has three parts: a long-lived SSE stream (GET /api/stream)
// that marks the caller online and carries realtime events, fire-and-forget
// POST endpoints for messages and typing signals, and a REST query surface
// for conversations and their history. All /api/ routes require an
// authenticated Identity; /health and /health/ready do not.
package gateway
