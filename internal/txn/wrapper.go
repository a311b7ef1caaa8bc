// Package txn wraps each business operation in a tenant transaction:
// cache invalidation, lazy tenant init, user-context preflight, a bounded
// retry loop for transient conflicts, and translation of every failure
// into the JSON error envelope. Nothing escapes it uncaught.
package txn

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/modelgate/modelgate/internal/auth"
	"github.com/modelgate/modelgate/internal/backend"
	"github.com/modelgate/modelgate/internal/cache"
	"github.com/modelgate/modelgate/internal/wire"
)

// Operation is one business operation executed inside a transaction
// scope. It returns the response payload and status; a nil payload means
// an empty body. Operations must be re-derivable from their inputs: the
// wrapper may run one again after a transient conflict.
type Operation func(c *gin.Context, s backend.Scope) (any, int, error)

type Wrapper struct {
	backend backend.Backend
	cache   *cache.Cache
	retries int

	// DryRun skips the final commit of read-write operations, leaving
	// the store untouched. Used by test runs.
	DryRun bool
}

func New(b backend.Backend, c *cache.Cache, retries int) *Wrapper {
	if retries < 0 {
		retries = 0
	}
	return &Wrapper{backend: b, cache: c, retries: retries}
}

// Handle adapts an operation into a gin handler running under the
// transactional state machine.
func (w *Wrapper) Handle(op Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		w.run(c, op)
	}
}

func (w *Wrapper) run(c *gin.Context, op Operation) {
	tenant := c.Param("tenant")
	ctx := c.Request.Context()

	payload, status := w.execute(ctx, c, tenant, op)

	// Post-transaction barrier: this request's writes must be visible
	// to cached reads in other workers before the response goes out.
	if err := w.cache.Reset(ctx, tenant); err != nil {
		log.Warn().Err(err).Str("tenant", tenant).Msg("cache reset failed")
	}

	respond(c, status, payload)
}

func (w *Wrapper) execute(ctx context.Context, c *gin.Context, tenant string, op Operation) (any, int) {
	if err := w.cache.Clean(ctx, tenant); err != nil {
		log.Warn().Err(err).Str("tenant", tenant).Msg("cache clean failed")
	}

	if err := w.backend.Init(ctx, tenant); err != nil {
		return w.fail(c, tenant, err)
	}

	userID := auth.UserID(c)

	uctx, err := w.preflight(ctx, tenant, userID)
	if err != nil {
		return w.fail(c, tenant, err)
	}

	readonly := c.Request.Method == http.MethodGet

	for count := w.retries; ; count-- {
		scope, err := w.backend.Begin(ctx, tenant, userID, readonly, uctx)
		if err != nil {
			return w.fail(c, tenant, err)
		}

		payload, status, err := invoke(c, scope, op)
		if err == nil && !readonly && !w.DryRun {
			err = scope.Commit()
		}
		if err == nil {
			if readonly || w.DryRun {
				_ = scope.Rollback()
			}
			return payload, status
		}

		_ = scope.Rollback()

		if backend.IsOperational(err) {
			// Reads cannot conflict the way writes do; retrying them
			// is pointless.
			if count > 0 && !readonly {
				log.Debug().Err(err).Str("tenant", tenant).Int("left", count).
					Msg("transient conflict, retrying")
				continue
			}
		}
		return w.fail(c, tenant, err)
	}
}

// preflight fetches the acting user's execution context under its own
// short-lived read-only transaction, closed unconditionally.
func (w *Wrapper) preflight(ctx context.Context, tenant string, userID int64) (map[string]any, error) {
	scope, err := w.backend.Begin(ctx, tenant, userID, true, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = scope.Rollback() }()
	return w.backend.UserContext(scope, userID)
}

// invoke runs the operation, converting a panic into an error so the
// scope is still released and the envelope still produced.
func invoke(c *gin.Context, scope backend.Scope, op Operation) (payload any, status int, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload, status = nil, 0
			err = fmt.Errorf("%v", r)
		}
	}()
	return op(c, scope)
}

// fail logs the full failure server-side and builds the client envelope.
func (w *Wrapper) fail(c *gin.Context, tenant string, err error) (any, int) {
	evt := log.Error().Err(err).
		Str("tenant", tenant).
		Int64("user", auth.UserID(c)).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path)

	if uerr, ok := backend.AsUserError(err); ok {
		evt.Str("code", uerr.Code).Str("description", uerr.Description).Msg("user error")
		return gin.H{"error": gin.H{
			"type":        "UserError",
			"message":     uerr.Message,
			"description": uerr.Description,
			"code":        uerr.Code,
		}}, http.StatusInternalServerError
	}

	evt.Msg("request failed")
	return gin.H{"error": err.Error()}, http.StatusInternalServerError
}

// respond writes the payload through the wire encoder. A nil payload
// yields an empty body, as collection and element deletes require.
func respond(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	data, err := wire.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("response encoding failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(status, "application/json; charset=utf-8", data)
}
