package gwcontext

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/gwerror"
)

// TransactionRequest carries the fields a startTransaction/continuation
// command needs to decide whether to start, continue, or reject against
// the session's transaction history.
type TransactionRequest struct {
	TransactionNumber int64
	AutoCommit        bool
	StartTransaction  bool
}

// Transaction pins one pooled connection for the lifetime of a
// multi-statement client transaction: BEGIN is issued once at Start, every
// subsequent command in the session runs on the same connection via
// Query, and Commit/Abort issue COMMIT/ROLLBACK before releasing the
// connection back to its pool. It owns its own CursorStore so cursors
// opened inside the transaction die with it rather than leaking into the
// service-wide store.
type Transaction struct {
	SessionID         []byte
	TransactionNumber int64

	Cursors *CursorStore

	pooled  *pgxpool.Conn
	client  *backend.Client
	mu      sync.Mutex
	resolved bool
}

// StartTransaction acquires a connection from pool, issues BEGIN, and
// returns a live Transaction bound to it.
func StartTransaction(ctx context.Context, pool *pgxpool.Pool, catalog backend.Catalog, sessionID []byte, txnNumber int64) (*Transaction, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, gwerror.Wrap(gwerror.KindPool, fmt.Errorf("acquiring transaction connection: %w", err))
	}
	if _, err := conn.Exec(ctx, "BEGIN"); err != nil {
		conn.Release()
		return nil, gwerror.Wrap(gwerror.KindBackend, fmt.Errorf("starting transaction: %w", err))
	}
	return &Transaction{
		SessionID:         sessionID,
		TransactionNumber: txnNumber,
		Cursors:           NewCursorStore(ctx, 0),
		pooled:            conn,
		client:            backend.NewClient(pool, catalog),
	}, nil
}

// Query runs catalog procedures on the transaction's own pinned
// connection rather than acquiring a fresh one from the pool.
func (t *Transaction) Query(ctx context.Context, query string, args ...any) (*backend.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved {
		return nil, gwerror.InternalError("Transaction already committed or aborted")
	}
	return t.client.QueryOnConn(ctx, t.pooled.Conn(), backend.TimeoutNone, 0, query, args...)
}

func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved {
		return gwerror.InternalError("Transaction already resolved")
	}
	_, err := t.pooled.Exec(ctx, "COMMIT")
	t.resolved = true
	t.Cursors.Close()
	t.pooled.Release()
	if err != nil {
		return gwerror.Wrap(gwerror.KindBackend, fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

func (t *Transaction) Abort(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved {
		return nil
	}
	_, err := t.pooled.Exec(ctx, "ROLLBACK")
	t.resolved = true
	t.Cursors.Close()
	t.pooled.Release()
	if err != nil {
		return gwerror.Wrap(gwerror.KindBackend, fmt.Errorf("aborting transaction: %w", err))
	}
	return nil
}

// txnState tracks what last happened to a session's most recent
// transaction number, so a stale retry can be told "already committed"
// instead of "no such transaction" — the two errors mean different things
// to a driver deciding whether to retry.
type txnState int

const (
	txnStarted txnState = iota
	txnCommitted
	txnAborted
)

type lastSeen struct {
	transactionNumber int64
	state             txnState
}

// TransactionStore owns every open Transaction, keyed by MongoDB logical
// session id, plus a reaper that aborts and drops transactions idle past
// the configured timeout (grounded on the source's Drop impl: an abandoned
// transaction rolls back asynchronously rather than leaking the
// connection forever).
type TransactionStore struct {
	mu           sync.RWMutex
	transactions map[string]*transactionEntry
	lastSeen     map[string]lastSeen
	cancel       context.CancelFunc
}

type transactionEntry struct {
	txn       *Transaction
	touchedAt time.Time
}

func NewTransactionStore(ctx context.Context, timeout time.Duration) *TransactionStore {
	s := &TransactionStore{
		transactions: make(map[string]*transactionEntry),
		lastSeen:     make(map[string]lastSeen),
	}
	reapCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	if timeout <= 0 {
		timeout = time.Minute
	}
	go s.reap(reapCtx, timeout)
	return s
}

func (s *TransactionStore) reap(ctx context.Context, timeout time.Duration) {
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			var expired []*Transaction
			for k, v := range s.transactions {
				if time.Since(v.touchedAt) >= timeout {
					expired = append(expired, v.txn)
					delete(s.transactions, k)
				}
			}
			s.mu.Unlock()
			for _, txn := range expired {
				go txn.Abort(context.Background())
			}
		}
	}
}

func (s *TransactionStore) Close() { s.cancel() }

// LastCommitted reports whether sessionID's most recently resolved
// transaction was txnNumber and it committed, so a client retrying a
// commit it never saw the acknowledgement for can be told success instead
// of NoSuchTransaction.
func (s *TransactionStore) LastCommitted(sessionID string, txnNumber int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last, ok := s.lastSeen[sessionID]
	return ok && last.transactionNumber == txnNumber && last.state == txnCommitted
}

func (s *TransactionStore) Get(sessionID string) (*Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.transactions[sessionID]
	if !ok {
		return nil, false
	}
	return e.txn, true
}

// Create enforces the same sequencing rules the source's
// TransactionStore::create does: a startTransaction numbered below the
// session's last-seen transaction is rejected as TransactionTooOld, a new
// startTransaction for a session already holding a same-numbered
// transaction is a conflict, a resumed request against an
// already-committed transaction number is rejected with
// TransactionCommitted (not NoSuchTransaction, so a driver can tell the
// difference), and continuing an in-flight transaction under a mismatched
// number is rejected outright.
func (s *TransactionStore) Create(ctx context.Context, pool *pgxpool.Pool, catalog backend.Catalog, sessionID string, req TransactionRequest) (*Transaction, error) {
	if req.StartTransaction && !req.AutoCommit {
		s.mu.RLock()
		last, hasLast := s.lastSeen[sessionID]
		s.mu.RUnlock()
		if hasLast && req.TransactionNumber < last.transactionNumber {
			return nil, gwerror.Typed(gwerror.CodeTransactionTooOld, fmt.Sprintf("Cannot start transaction %d: a newer transaction %d has already started.", req.TransactionNumber, last.transactionNumber))
		}
		if hasLast && last.transactionNumber == req.TransactionNumber {
			return nil, gwerror.Typed(gwerror.CodeConflictingOperationInProgress, conflictMessage(last))
		}

		s.mu.Lock()
		if old, ok := s.transactions[sessionID]; ok {
			if old.txn.TransactionNumber == req.TransactionNumber {
				s.mu.Unlock()
				return nil, gwerror.Typed(gwerror.CodeConflictingOperationInProgress, "This transaction is already started.")
			}
			delete(s.transactions, sessionID)
			s.mu.Unlock()
			old.txn.Abort(ctx)
		} else {
			s.mu.Unlock()
		}

		txn, err := StartTransaction(ctx, pool, catalog, []byte(sessionID), req.TransactionNumber)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.lastSeen[sessionID] = lastSeen{transactionNumber: txn.TransactionNumber, state: txnStarted}
		s.transactions[sessionID] = &transactionEntry{txn: txn, touchedAt: time.Now()}
		s.mu.Unlock()
		return txn, nil
	}

	s.mu.RLock()
	entry, hasEntry := s.transactions[sessionID]
	s.mu.RUnlock()
	if hasEntry {
		if entry.txn.TransactionNumber != req.TransactionNumber {
			return nil, gwerror.Typed(gwerror.CodeNoSuchTransaction, fmt.Sprintf("Cannot continue transaction %d", req.TransactionNumber))
		}
		return entry.txn, nil
	}

	s.mu.RLock()
	last, hasLast := s.lastSeen[sessionID]
	s.mu.RUnlock()
	if hasLast && last.transactionNumber == req.TransactionNumber && last.state == txnCommitted {
		return nil, gwerror.Typed(gwerror.CodeTransactionCommitted, fmt.Sprintf("Transaction %d already committed", req.TransactionNumber))
	}
	return nil, gwerror.Typed(gwerror.CodeNoSuchTransaction, fmt.Sprintf("Cannot continue transaction %d", req.TransactionNumber))
}

func conflictMessage(last lastSeen) string {
	switch last.state {
	case txnCommitted:
		return fmt.Sprintf("Transaction %d is already committed.", last.transactionNumber)
	case txnAborted:
		return fmt.Sprintf("Transaction %d is already aborted.", last.transactionNumber)
	default:
		return fmt.Sprintf("Transaction %d is already started.", last.transactionNumber)
	}
}

func (s *TransactionStore) Commit(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	entry, ok := s.transactions[sessionID]
	if ok {
		delete(s.transactions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return gwerror.Typed(gwerror.CodeNoSuchTransaction, "No such transaction to commit")
	}
	err := entry.txn.Commit(ctx)
	s.mu.Lock()
	s.lastSeen[sessionID] = lastSeen{transactionNumber: entry.txn.TransactionNumber, state: txnCommitted}
	s.mu.Unlock()
	return err
}

func (s *TransactionStore) Abort(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	entry, ok := s.transactions[sessionID]
	if ok {
		delete(s.transactions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return gwerror.Typed(gwerror.CodeNoSuchTransaction, "No such transaction to abort")
	}
	err := entry.txn.Abort(ctx)
	s.mu.Lock()
	s.lastSeen[sessionID] = lastSeen{transactionNumber: entry.txn.TransactionNumber, state: txnAborted}
	s.mu.Unlock()
	return err
}
