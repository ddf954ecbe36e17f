// Package server exposes the matcher over HTTP and WebSocket.
package server

import "time"

// Server configuration constants
const (
	// Largest encoded image accepted on HTTP endpoints.
	MaxImageBytes = 16 << 20

	// WebSocket messages carry base64 images, a third larger than raw.
	WSReadLimit = MaxImageBytes * 4 / 3

	// Upper bound on k for any query.
	MaxTopK = 50

	// Per-connection sliding window for websocket queries.
	RateLimitMessages = 10
	RateLimitWindow   = time.Second
)
