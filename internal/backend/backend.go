package backend

import "context"

// Session is the result of a successful primary login.
type Session struct {
	UserID int64  `json:"id"`
	Token  string `json:"session"`
}

// Summary is the minimal representation of a record used in collection
// listings.
type Summary struct {
	ID      int64  `json:"id"`
	RecName string `json:"rec_name"`
}

// Scope is one transaction against a tenant database. Exactly one scope is
// active per request; it never outlives the request that opened it.
type Scope interface {
	Commit() error
	Rollback() error
	// Context returns the execution context the scope was opened with
	// (locale, timezone, company and the like).
	Context() map[string]any
}

// Model is the capability set of one named model. All operations run
// inside the scope they are handed.
type Model interface {
	Search(s Scope, filter Filter, offset, limit int, order []Order) ([]Summary, error)
	Create(s Scope, values []map[string]any) ([]Summary, error)
	Read(s Scope, id int64, fields []string) (map[string]any, error)
	Write(s Scope, id int64, values map[string]any) error
	Delete(s Scope, ids []int64) error
}

// Backend is the pluggable storage/domain layer the gateway orchestrates.
type Backend interface {
	// Init makes the tenant's resources (pool, metadata) ready. It is
	// idempotent and cheap to call on every request.
	Init(ctx context.Context, tenant string) error

	// Authenticate performs primary login with username and password and
	// creates a session on success. Invalid credentials yield a nil
	// Session with a nil error.
	Authenticate(ctx context.Context, tenant, login, password string) (*Session, error)

	// CheckSession verifies a (user, token) pair. It must be effect-free
	// and must answer false, never panic, on any internal fault.
	CheckSession(ctx context.Context, tenant string, userID int64, token string) bool

	// UserContext fetches the acting user's default execution context. The
	// caller supplies a short-lived read-only scope and closes it itself.
	UserContext(s Scope, userID int64) (map[string]any, error)

	// Begin opens a transaction scoped to (tenant, user, readonly, ctx).
	Begin(ctx context.Context, tenant string, userID int64, readonly bool, ctxDict map[string]any) (Scope, error)

	// Model resolves a model by name. Unknown names yield a
	// *ModelNotFoundError.
	Model(tenant, name string) (Model, error)
}
