// Package gwcontext holds the per-connection and per-service state that
// spans individual requests: authentication (delegated to internal/auth),
// open cursors, open multi-statement transactions and the service-wide
// pools/catalog/configuration every connection shares.
package gwcontext

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/documentdb/gatewaygw/internal/backend"
)

// Cursor is a getMore continuation: the backend's opaque cursor state plus
// the numeric id the client uses to page through it.
type Cursor struct {
	CursorID     int64
	Continuation bson.Raw
}

// cursorKey identifies a cursor by id and owning username — cursors from
// different users never collide even if a client reuses ids.
type cursorKey struct {
	id   int64
	user string
}

// CursorStoreEntry is what CursorStore holds per open cursor: the cursor
// itself, the pool it must page against, and enough addressing info
// (db/collection/session) to support invalidation sweeps.
type CursorStoreEntry struct {
	Pool      *backend.Client
	Cursor    Cursor
	DB        string
	Collection string
	Timestamp time.Time
	SessionID []byte
}

// CursorStore maps (cursorId, username) -> CursorStoreEntry. One lives on
// ServiceContext for cursors opened outside a transaction, and one more is
// created per Transaction for cursors opened inside it (so aborting the
// transaction naturally drops those cursors too).
type CursorStore struct {
	mu      sync.Mutex
	cursors map[cursorKey]CursorStoreEntry
	cancel  context.CancelFunc
}

// NewCursorStore creates a store. When timeout > 0, a reaper goroutine
// sweeps cursors idle longer than timeout every timeout/10 (matching the
// original reap cadence); pass 0 for a store whose lifetime is already
// bounded by its owner (a Transaction's cursor store dies with the
// transaction, so it runs no reaper of its own).
func NewCursorStore(ctx context.Context, timeout time.Duration) *CursorStore {
	s := &CursorStore{cursors: make(map[cursorKey]CursorStoreEntry)}
	if timeout <= 0 {
		return s
	}
	reapCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.reap(reapCtx, timeout)
	return s
}

func (s *CursorStore) reap(ctx context.Context, timeout time.Duration) {
	ticker := time.NewTicker(timeout / 10)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			for k, v := range s.cursors {
				if time.Since(v.Timestamp) >= timeout {
					delete(s.cursors, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Close stops the reaper, if one is running. Safe to call on a store
// created with timeout 0.
func (s *CursorStore) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *CursorStore) Add(id int64, user string, entry CursorStoreEntry) {
	entry.Timestamp = time.Now()
	s.mu.Lock()
	s.cursors[cursorKey{id, user}] = entry
	s.mu.Unlock()
}

// Get removes and returns the cursor, matching the source's
// remove-on-read semantics: a getMore either consumes the cursor and adds
// it back (if more results remain) or leaves it gone (cursor exhausted).
func (s *CursorStore) Get(id int64, user string) (CursorStoreEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cursors[cursorKey{id, user}]
	if ok {
		delete(s.cursors, cursorKey{id, user})
	}
	return e, ok
}

func (s *CursorStore) InvalidateByCollection(db, collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.cursors {
		if v.DB == db && v.Collection == collection {
			delete(s.cursors, k)
		}
	}
}

func (s *CursorStore) InvalidateByDatabase(db string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.cursors {
		if v.DB == db {
			delete(s.cursors, k)
		}
	}
}

func (s *CursorStore) InvalidateBySession(sessionID []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.cursors {
		if string(v.SessionID) == string(sessionID) {
			delete(s.cursors, k)
		}
	}
}

// KillCursors removes the named cursor ids owned by user and reports
// which were actually found.
func (s *CursorStore) KillCursors(user string, ids []int64) (removed, missing []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		k := cursorKey{id, user}
		if _, ok := s.cursors[k]; ok {
			delete(s.cursors, k)
			removed = append(removed, id)
		} else {
			missing = append(missing, id)
		}
	}
	return removed, missing
}
