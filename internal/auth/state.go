// Package auth implements the gateway's per-connection authentication state
// machine: server-side SCRAM-SHA-256 (the gateway plays the SCRAM server
// role to Mongo-wire clients, the reverse of the role Postgres drivers
// normally play) and single-step MONGODB-OIDC.
package auth

import (
	"context"
	"sync"
	"time"
)

// Kind records which mechanism produced the current authorization.
type Kind int

const (
	KindNone Kind = iota
	KindNative
	KindExternalIdentity
)

// firstState holds the values computed during saslStart that saslContinue
// needs to verify the client's proof and compose the server signature.
type firstState struct {
	nonce             string
	firstMessageBare  string
	firstMessage      string
}

// State is one connection's authentication state. Authorized is read on
// every request the dispatcher handles and written by the SASL/OIDC
// handlers and by the OIDC expiry timer, so it is guarded by its own
// mutex rather than relying on the caller to serialize access.
type State struct {
	mu           sync.RWMutex
	authorized   bool
	first        *firstState
	username     string
	password     string
	userOID      uint32
	hasUserOID   bool
	kind         Kind
	timerRunning bool
}

func NewState() *State {
	return &State{}
}

func (s *State) Authorized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authorized
}

func (s *State) setAuthorized(v bool) {
	s.mu.Lock()
	s.authorized = v
	s.mu.Unlock()
}

func (s *State) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *State) Password() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.password
}

func (s *State) UserOID() (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userOID, s.hasUserOID
}

func (s *State) Kind() Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kind
}

// setKind records which mechanism authenticated the connection. It is set
// once; a mismatched second call is a programming error (a connection
// cannot switch mechanisms mid-handshake), so it is silently ignored
// rather than reported once authorized is already true.
func (s *State) setKind(k Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind == KindNone {
		s.kind = k
	}
}

// reset clears all state, used by logout.
func (s *State) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorized = false
	s.first = nil
	s.username = ""
	s.password = ""
	s.userOID = 0
	s.hasUserOID = false
	s.kind = KindNone
	// timerRunning is left alone: a previously scheduled expiry timer
	// still fires and is harmless against a reset state.
}

// startExpiryTimer arms a one-shot timer that flips authorized back to
// false after d elapses, modeling an OIDC token's exp claim. Only one
// timer may be in flight per connection.
func (s *State) startExpiryTimer(ctx context.Context, d time.Duration, onExpire func()) {
	s.mu.Lock()
	if s.timerRunning {
		s.mu.Unlock()
		return
	}
	s.timerRunning = true
	s.mu.Unlock()

	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.setAuthorized(false)
			if onExpire != nil {
				onExpire()
			}
		case <-ctx.Done():
		}
		s.mu.Lock()
		s.timerRunning = false
		s.mu.Unlock()
	}()
}
