package domain

import "time"

// ==== WebSocket Constants ====

// MaxMessageSize is the maximum allowed WebSocket frame size in bytes
const MaxMessageSize = 4096

// ==== Session Constants ====

// SessionTTL is the default lifetime of an authenticated session
const SessionTTL = time.Hour

// SessionCookie is the name of the cookie carrying the session token
const SessionCookie = "relay_session"

// ==== Rate Limit Constants ====

const (
	// DefaultRateLimitAPI is the default rate limit for API endpoints (requests/sec)
	DefaultRateLimitAPI = 10

	// DefaultRateLimitWS is the default rate limit for WebSocket connections (req/sec)
	DefaultRateLimitWS = 5
)

// ==== Presence ====

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)
