package gwcontext

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/documentdb/gatewaygw/internal/auth"
	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/gwerror"
)

var connectionIDCounter int64

// Connection is the per-connection state that outlives any single
// request: authentication, the active logical-session transaction (if
// any), and addressing info used for logging.
type Connection struct {
	ID             int64
	StartTime      time.Time
	Service        *ServiceContext
	Auth           *auth.State
	RemoteAddr     net.Addr
	SSLProtocol    string
	RequiresResponse bool

	// sessionID is set while the current command runs inside a
	// multi-statement transaction; the dispatcher clears it at the start of
	// every command and sets it again for a transactional one.
	sessionID []byte
}

// NewConnection allocates a new Connection with a process-unique id,
// mirroring the source's atomic connection-id counter.
func NewConnection(service *ServiceContext, remoteAddr net.Addr, sslProtocol string) *Connection {
	id := atomic.AddInt64(&connectionIDCounter, 1)
	return &Connection{
		ID:               id,
		StartTime:        time.Now(),
		Service:          service,
		Auth:             auth.NewState(),
		RemoteAddr:       remoteAddr,
		SSLProtocol:      sslProtocol,
		RequiresResponse: true,
	}
}

// SetSessionID records which logical session is bound to an open
// transaction on this connection; an empty slice clears it.
func (c *Connection) SetSessionID(id []byte) { c.sessionID = id }

func (c *Connection) SessionID() []byte { return c.sessionID }

func (c *Connection) InTransaction() bool { return len(c.sessionID) > 0 }

// Transaction returns the Transaction bound to this connection's current
// session, if any.
func (c *Connection) Transaction() (*Transaction, bool) {
	if !c.InTransaction() {
		return nil, false
	}
	return c.Service.Transactions.Get(string(c.sessionID))
}

// Client returns the backend client a request outside an open transaction
// should use: a client against the authenticated user's own data pool.
// Callers must check InTransaction first — a request on an open
// transaction runs through Transaction.Query instead, since a
// transaction pins one specific connection that a generic pooled Client
// cannot address.
func (c *Connection) Client(ctx context.Context) (*backend.Client, error) {
	username := c.Auth.Username()
	if username == "" {
		return nil, gwerror.InternalError("Username missing")
	}
	password := c.Auth.Password()
	cred := backend.Credential{Username: username, Password: password}
	return c.Service.DataClient(ctx, cred)
}

// Pool returns the raw pgxpool.Pool backing the authenticated user's data
// credential — the one case a caller needs the pool itself rather than a
// Client wrapper is starting a new multi-statement transaction, since
// StartTransaction must Acquire and pin a single connection for the
// transaction's lifetime.
func (c *Connection) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	username := c.Auth.Username()
	if username == "" {
		return nil, gwerror.InternalError("Username missing")
	}
	cred := backend.Credential{Username: username, Password: c.Auth.Password()}
	return c.Service.Pools.GetOrCreateDataPool(ctx, cred)
}

// AddCursor stores a cursor against this connection's active transaction
// if one is open, otherwise against the service-wide store.
func (c *Connection) AddCursor(id int64, user string, entry CursorStoreEntry) {
	if txn, ok := c.Transaction(); ok {
		txn.Cursors.Add(id, user, entry)
		return
	}
	c.Service.Cursors.Add(id, user, entry)
}

func (c *Connection) GetCursor(id int64, user string) (CursorStoreEntry, bool) {
	if txn, ok := c.Transaction(); ok {
		return txn.Cursors.Get(id, user)
	}
	return c.Service.Cursors.Get(id, user)
}
