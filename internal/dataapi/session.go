package dataapi

import (
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// session holds the client's mutable shared state: the token pair and the
// rate-limit schedule. Every field is guarded by mu. Serializing the
// "is it safe to call now" decision is the point: without it, two
// overlapping calls could both see the window open after one of them has
// just been told to back off, and both get penalized by the remote limiter.
type session struct {
	mu sync.Mutex

	token         *oauth2.Token
	authenticated bool

	nextRequestAt time.Time
	minBackoff    time.Duration
}

// advanceNotBefore moves the earliest-allowed request time forward.
// The schedule never moves backward, so it stays monotone no matter how
// many callers race through the dispatcher.
func (s *session) advanceNotBefore(t time.Time) {
	if t.After(s.nextRequestAt) {
		s.nextRequestAt = t
	}
}

// install replaces the token pair wholesale and marks the session
// authenticated. Called only after a token response parsed completely;
// a half-parsed response must not leave partial state behind.
func (s *session) install(tok *oauth2.Token) {
	s.token = tok
	s.authenticated = true
}

// invalidate drops the current token pair. The next dispatched request
// will run a full handshake.
func (s *session) invalidate() {
	s.token = nil
	s.authenticated = false
}
