// Package sqlbackend implements the gateway's backend contract on top of
// PostgreSQL, one database per tenant. Pools are created lazily on first
// reference and cached for the life of the process.
package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/modelgate/modelgate/internal/backend"
	"github.com/modelgate/modelgate/internal/wire"
)

// Options configures the per-tenant connection template. The tenant name
// supplies the database name.
type Options struct {
	Host       string
	Port       int
	User       string
	Password   string
	SSLMode    string
	MaxOpen    int
	MaxIdle    int
	SessionTTL time.Duration
}

type SQLBackend struct {
	opts Options

	mu     sync.RWMutex
	pools  map[string]*sql.DB
	models map[string]struct{}
}

func New(opts Options) *SQLBackend {
	if opts.SSLMode == "" {
		opts.SSLMode = "disable"
	}
	if opts.MaxOpen == 0 {
		opts.MaxOpen = 25
	}
	if opts.MaxIdle == 0 {
		opts.MaxIdle = 5
	}
	if opts.SessionTTL == 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	return &SQLBackend{
		opts:   opts,
		pools:  map[string]*sql.DB{},
		models: map[string]struct{}{},
	}
}

// RegisterModels declares the model names the generic record store serves.
func (b *SQLBackend) RegisterModels(names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, name := range names {
		b.models[name] = struct{}{}
	}
}

func (b *SQLBackend) dsn(tenant string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		b.opts.Host, b.opts.Port, b.opts.User, b.opts.Password, tenant, b.opts.SSLMode,
	)
}

// Init opens the tenant's pool on first call and is a cheap map lookup
// afterwards.
func (b *SQLBackend) Init(ctx context.Context, tenant string) error {
	b.mu.RLock()
	_, ok := b.pools[tenant]
	b.mu.RUnlock()
	if ok {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pools[tenant]; ok {
		return nil
	}

	db, err := sql.Open("postgres", b.dsn(tenant))
	if err != nil {
		return fmt.Errorf("failed to open database for tenant %s: %w", tenant, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database for tenant %s: %w", tenant, err)
	}
	db.SetMaxOpenConns(b.opts.MaxOpen)
	db.SetMaxIdleConns(b.opts.MaxIdle)

	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to prepare schema for tenant %s: %w", tenant, err)
	}

	b.pools[tenant] = db
	log.Info().Str("tenant", tenant).Msg("tenant pool initialized")
	return nil
}

// AddPool registers an already-open pool for a tenant, bypassing lazy
// initialization. The caller keeps ownership of the connection.
func (b *SQLBackend) AddPool(tenant string, db *sql.DB) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pools[tenant] = db
}

func (b *SQLBackend) pool(tenant string) (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	db, ok := b.pools[tenant]
	if !ok {
		return nil, fmt.Errorf("tenant %s is not initialized", tenant)
	}
	return db, nil
}

func (b *SQLBackend) tenants() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.pools))
	for tenant := range b.pools {
		out = append(out, tenant)
	}
	return out
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			login TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			preferences JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			token TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			id BIGSERIAL PRIMARY KEY,
			model TEXT NOT NULL,
			data JSONB NOT NULL DEFAULT '{}',
			protected BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS records_model_idx ON records (model)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// txScope is one transaction against a tenant pool.
type txScope struct {
	tx      *sql.Tx
	ctxDict map[string]any
	done    bool
}

func (s *txScope) Commit() error {
	s.done = true
	return s.tx.Commit()
}

func (s *txScope) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.tx.Rollback()
}

func (s *txScope) Context() map[string]any {
	return s.ctxDict
}

func (b *SQLBackend) Begin(ctx context.Context, tenant string, userID int64, readonly bool, ctxDict map[string]any) (backend.Scope, error) {
	db, err := b.pool(tenant)
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  readonly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &txScope{tx: tx, ctxDict: ctxDict}, nil
}

// UserContext reads the acting user's stored preferences inside the given
// scope.
func (b *SQLBackend) UserContext(s backend.Scope, userID int64) (map[string]any, error) {
	scope, ok := s.(*txScope)
	if !ok {
		return nil, fmt.Errorf("scope does not belong to this backend")
	}

	var raw []byte
	err := scope.tx.QueryRow(`SELECT preferences FROM users WHERE id = $1`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user preferences: %w", err)
	}

	decoded, err := wire.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode user preferences: %w", err)
	}
	prefs, ok := decoded.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return prefs, nil
}
