package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Credential identifies one per-credential data pool: a backend user,
// password, and the dynamic max_connections ceiling in effect when the
// pool was created. A change in any of the three gets its own pool rather
// than mutating one in place, matching spec.md §3's ServiceContext map
// `(user, password, max_conns) -> data_pool`.
type Credential struct {
	Username      string
	Password      string
	MaxConns      int32
}

// Endpoint describes the backend coordinates shared by every pool kind.
type Endpoint struct {
	Host            string
	Port            int
	Database        string
	ApplicationName string
}

// PostCreateHook runs once per physical connection right after it is
// established, before it is handed to any borrower. The gateway uses it to
// set search_path and the two statement timeouts (spec.md §3 "Pool entry").
type PostCreateHook func(ctx context.Context, conn *pgx.Conn) error

// Manager owns every pool the gateway maintains: a small fixed system pool,
// an authentication pool, one data pool per distinct Credential, and one
// shared data pool per distinct MaxConns value (spec.md §4.4). Generalized
// from the teacher's internal/pool.Manager, which keeps one pool per tenant
// under a single RWMutex-guarded map; here the map is keyed by Credential
// instead of tenant id, and the pool implementation itself is pgxpool
// rather than a hand-rolled net.Conn slice, since the gateway needs typed
// rows and SQL-state-typed errors a raw byte relay can't give it.
type Manager struct {
	endpoint   Endpoint
	systemUser Credential
	hook       PostCreateHook
	log        *slog.Logger

	systemPool *pgxpool.Pool
	authPool   *pgxpool.Pool

	mu         sync.RWMutex
	dataPools  map[Credential]*pgxpool.Pool
	sharedPools map[int32]*pgxpool.Pool
}

// NewManager creates the system and authentication pools eagerly; data
// pools are created lazily on first use via GetOrCreateDataPool.
func NewManager(ctx context.Context, ep Endpoint, systemUser Credential, hook PostCreateHook, log *slog.Logger) (*Manager, error) {
	m := &Manager{
		endpoint:    ep,
		systemUser:  systemUser,
		hook:        hook,
		log:         log,
		dataPools:   make(map[Credential]*pgxpool.Pool),
		sharedPools: make(map[int32]*pgxpool.Pool),
	}

	var err error
	if m.systemPool, err = m.newPool(ctx, systemUser, 2); err != nil {
		return nil, fmt.Errorf("creating system pool: %w", err)
	}
	if m.authPool, err = m.newPool(ctx, systemUser, 5); err != nil {
		return nil, fmt.Errorf("creating auth pool: %w", err)
	}
	return m, nil
}

func (m *Manager) newPool(ctx context.Context, cred Credential, defaultMax int32) (*pgxpool.Pool, error) {
	maxConns := cred.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMax
	}

	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s application_name=%s",
		m.endpoint.Host, m.endpoint.Port, m.endpoint.Database,
		cred.Username, cred.Password, m.endpoint.ApplicationName,
	)
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing pool config: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = 0
	cfg.MaxConnIdleTime = 120 * time.Second
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.ConnConfig.ConnectTimeout = 10 * time.Second

	if m.hook != nil {
		hook := m.hook
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return hook(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// System returns the small fixed pool used for configuration refresh and
// utility calls not scoped to a particular client credential.
func (m *Manager) System() *pgxpool.Pool { return m.systemPool }

// Auth returns the pool SCRAM/OIDC verification paths share.
func (m *Manager) Auth() *pgxpool.Pool { return m.authPool }

// GetOrCreateDataPool returns the per-credential pool for cred, creating it
// on first use. Mirrors the teacher's double-checked-locking GetOrCreate.
func (m *Manager) GetOrCreateDataPool(ctx context.Context, cred Credential) (*pgxpool.Pool, error) {
	m.mu.RLock()
	if p, ok := m.dataPools[cred]; ok {
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.dataPools[cred]; ok {
		return p, nil
	}

	p, err := m.newPool(ctx, cred, 10)
	if err != nil {
		return nil, fmt.Errorf("creating data pool for %s: %w", cred.Username, err)
	}
	m.dataPools[cred] = p
	m.log.Info("backend data pool created", "user", cred.Username, "max_conns", cred.MaxConns)
	return p, nil
}

// GetOrCreateSharedPool returns the system-shared pool for a given
// max_connections bucket, used when requests don't carry a distinguishing
// per-user credential (e.g. unauthorized allow-listed commands).
func (m *Manager) GetOrCreateSharedPool(ctx context.Context, maxConns int32) (*pgxpool.Pool, error) {
	m.mu.RLock()
	if p, ok := m.sharedPools[maxConns]; ok {
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.sharedPools[maxConns]; ok {
		return p, nil
	}

	p, err := m.newPool(ctx, m.systemUser, maxConns)
	if err != nil {
		return nil, fmt.Errorf("creating shared pool (max=%d): %w", maxConns, err)
	}
	m.sharedPools[maxConns] = p
	return p, nil
}

// Stats summarizes one pool's state for metrics and the admin surface.
type Stats struct {
	Key          string
	Active       int32
	Idle         int32
	Total        int32
	MaxConns     int32
	AcquiredWait int64 // total connections waited on, cumulative
}

// AllStats snapshots every live pool.
func (m *Manager) AllStats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Stats, 0, len(m.dataPools)+len(m.sharedPools)+2)
	out = append(out, statFor("system", m.systemPool))
	out = append(out, statFor("auth", m.authPool))
	for cred, p := range m.dataPools {
		out = append(out, statFor("data:"+cred.Username, p))
	}
	for maxConns, p := range m.sharedPools {
		out = append(out, statFor(fmt.Sprintf("shared:%d", maxConns), p))
	}
	return out
}

func statFor(key string, p *pgxpool.Pool) Stats {
	s := p.Stat()
	return Stats{
		Key:      key,
		Active:   int32(s.AcquiredConns()),
		Idle:     int32(s.IdleConns()),
		Total:    int32(s.TotalConns()),
		MaxConns: s.MaxConns(),
		AcquiredWait: s.EmptyAcquireCount(),
	}
}

// Close shuts down every pool the manager owns.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.systemPool.Close()
	m.authPool.Close()
	for _, p := range m.dataPools {
		p.Close()
	}
	for _, p := range m.sharedPools {
		p.Close()
	}
	m.log.Info("backend pools closed")
}
