package gwcontext

import (
	"context"
	"time"

	"github.com/documentdb/gatewaygw/internal/backend"
	"github.com/documentdb/gatewaygw/internal/dynconfig"
)

// ServiceContext is shared by every connection the gateway serves: the
// connection-pool manager, the procedure catalog, the dynamic
// configuration snapshot, and the service-wide cursor/transaction stores.
// One is built at startup and handed to every accepted connection.
type ServiceContext struct {
	Pools       *backend.Manager
	Catalog     backend.Catalog
	DynConfig   *dynconfig.Config
	Cursors     *CursorStore
	Transactions *TransactionStore

	BlockedRolePrefixes []string
	CursorTimeout       time.Duration
	TransactionTimeout  time.Duration
	CommandTimeout      time.Duration
}

// NewServiceContext wires the stores against ctx's lifetime: cancelling
// ctx (on shutdown) stops both reapers.
func NewServiceContext(ctx context.Context, pools *backend.Manager, catalog backend.Catalog, dyn *dynconfig.Config, cursorTimeout, transactionTimeout, commandTimeout time.Duration, blockedRolePrefixes []string) *ServiceContext {
	if dyn == nil {
		dyn = dynconfig.New()
	}
	return &ServiceContext{
		Pools:               pools,
		Catalog:             catalog,
		DynConfig:           dyn,
		Cursors:             NewCursorStore(ctx, cursorTimeout),
		Transactions:        NewTransactionStore(ctx, transactionTimeout),
		BlockedRolePrefixes: blockedRolePrefixes,
		CursorTimeout:       cursorTimeout,
		TransactionTimeout:  transactionTimeout,
		CommandTimeout:      commandTimeout,
	}
}

// AuthClient returns a Client bound to the pool reserved for
// authentication traffic (salt lookups, SCRAM/OIDC verification, oid
// lookups) — never the per-credential data pools, since those require a
// successful authentication to even create.
func (sc *ServiceContext) AuthClient() *backend.Client {
	return backend.NewClient(sc.Pools.Auth(), sc.Catalog)
}

// DataClient returns a Client bound to the given credential's data pool,
// creating the pool on first use.
func (sc *ServiceContext) DataClient(ctx context.Context, cred backend.Credential) (*backend.Client, error) {
	pool, err := sc.Pools.GetOrCreateDataPool(ctx, cred)
	if err != nil {
		return nil, err
	}
	return backend.NewClient(pool, sc.Catalog), nil
}
