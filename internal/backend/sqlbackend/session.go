package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/modelgate/modelgate/internal/backend"
)

// Authenticate performs primary login. Bad credentials yield (nil, nil);
// only infrastructure failures surface as errors.
func (b *SQLBackend) Authenticate(ctx context.Context, tenant, login, password string) (*backend.Session, error) {
	db, err := b.pool(tenant)
	if err != nil {
		return nil, err
	}

	var userID int64
	var hash string
	err = db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE login = $1`, login,
	).Scan(&userID, &hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, nil
	}

	token := uuid.NewString()
	_, err = db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, token, expires_at) VALUES ($1, $2, $3)`,
		userID, token, time.Now().Add(b.opts.SessionTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &backend.Session{UserID: userID, Token: token}, nil
}

// CheckSession verifies a (user, token) pair. It mutates nothing and
// answers false on any internal fault.
func (b *SQLBackend) CheckSession(ctx context.Context, tenant string, userID int64, token string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("tenant", tenant).Msg("session check fault")
			ok = false
		}
	}()

	db, err := b.pool(tenant)
	if err != nil {
		return false
	}

	var valid bool
	err = db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM sessions
			WHERE user_id = $1 AND token = $2 AND expires_at > NOW()
		)`, userID, token,
	).Scan(&valid)
	if err != nil {
		return false
	}
	return valid
}

// SweepSessions deletes expired sessions in every initialized tenant.
func (b *SQLBackend) SweepSessions(ctx context.Context) {
	for _, tenant := range b.tenants() {
		db, err := b.pool(tenant)
		if err != nil {
			continue
		}
		res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
		if err != nil {
			log.Error().Err(err).Str("tenant", tenant).Msg("session sweep failed")
			continue
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			log.Info().Str("tenant", tenant).Int64("expired", n).Msg("sessions swept")
		}
	}
}
