package sqlbackend

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/internal/backend"
)

func beginScope(t *testing.T, b *SQLBackend, mock sqlmock.Sqlmock) backend.Scope {
	t.Helper()
	mock.ExpectBegin()
	scope, err := b.Begin(context.Background(), "test", 1, false, nil)
	require.NoError(t, err)
	return scope
}

func userModel(t *testing.T, b *SQLBackend) backend.Model {
	t.Helper()
	m, err := b.Model("test", "res.user")
	require.NoError(t, err)
	return m
}

func TestGenericModel_Search(t *testing.T) {
	t.Run("plain listing", func(t *testing.T) {
		b, mock, _ := setupBackend(t)
		scope := beginScope(t, b, mock)

		mock.ExpectQuery(`SELECT id, COALESCE\(data->>'name', ''\) FROM records WHERE model = \$1 ORDER BY id ASC LIMIT 10`).
			WithArgs("res.user").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
				AddRow(int64(1), "Administrator").
				AddRow(int64(2), "Operator"))

		items, err := userModel(t, b).Search(scope, backend.Filter{}, 0, 10, nil)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, backend.Summary{ID: 1, RecName: "Administrator"}, items[0])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("filter, order and pagination pushed down", func(t *testing.T) {
		b, mock, _ := setupBackend(t)
		scope := beginScope(t, b, mock)

		mock.ExpectQuery(`SELECT id, COALESCE\(data->>'name', ''\) FROM records WHERE model = \$1 AND \(data->>'module' = \$2\) ORDER BY data->>'module' ASC, id DESC LIMIT 5 OFFSET 10`).
			WithArgs("res.user", "ir").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "IR Model"))

		filter := backend.Filter{Conds: []backend.Cond{{Field: "module", Op: "=", Value: "ir"}}}
		order := []backend.Order{{Field: "module"}, {Field: "id", Desc: true}}

		items, err := userModel(t, b).Search(scope, filter, 10, 5, order)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int64(7), items[0].ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unlimited search omits LIMIT", func(t *testing.T) {
		b, mock, _ := setupBackend(t)
		scope := beginScope(t, b, mock)

		mock.ExpectQuery(`SELECT id, COALESCE\(data->>'name', ''\) FROM records WHERE model = \$1 ORDER BY id ASC$`).
			WithArgs("res.user").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

		_, err := userModel(t, b).Search(scope, backend.Filter{}, 0, -1, nil)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGenericModel_Create(t *testing.T) {
	b, mock, _ := setupBackend(t)
	scope := beginScope(t, b, mock)

	mock.ExpectQuery(`INSERT INTO records \(model, data\) VALUES \(\$1, \$2\) RETURNING id`).
		WithArgs("res.user", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	items, err := userModel(t, b).Create(scope, []map[string]any{
		{"name": "New User Name", "login": "new-user-name"},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, backend.Summary{ID: 42, RecName: "New User Name"}, items[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenericModel_Read(t *testing.T) {
	t.Run("full record with tagged values", func(t *testing.T) {
		b, mock, _ := setupBackend(t)
		scope := beginScope(t, b, mock)

		data := `{"name": "Administrator", "login": "admin", "credit": {"__kind__": "decimal", "value": "10.12345"}}`
		mock.ExpectQuery(`SELECT data FROM records WHERE model = \$1 AND id = \$2`).
			WithArgs("res.user", int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(data)))

		rec, err := userModel(t, b).Read(scope, 1, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec["id"])
		assert.Equal(t, "Administrator", rec["name"])
		credit, ok := rec["credit"].(decimal.Decimal)
		require.True(t, ok)
		assert.True(t, credit.Equal(decimal.RequireFromString("10.12345")))
	})

	t.Run("field selection always keeps id", func(t *testing.T) {
		b, mock, _ := setupBackend(t)
		scope := beginScope(t, b, mock)

		data := `{"name": "Administrator", "login": "admin", "email": "admin@example.com"}`
		mock.ExpectQuery(`SELECT data FROM records`).
			WithArgs("res.user", int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(data)))

		rec, err := userModel(t, b).Read(scope, 1, []string{"name", "login"})
		require.NoError(t, err)
		assert.Len(t, rec, 3)
		assert.Equal(t, int64(1), rec["id"])
		assert.Equal(t, "Administrator", rec["name"])
		assert.Equal(t, "admin", rec["login"])
	})

	t.Run("missing record", func(t *testing.T) {
		b, mock, _ := setupBackend(t)
		scope := beginScope(t, b, mock)

		mock.ExpectQuery(`SELECT data FROM records`).
			WithArgs("res.user", int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"data"}))

		_, err := userModel(t, b).Read(scope, 99, nil)
		assert.ErrorContains(t, err, "does not exist")
	})
}

func TestGenericModel_Write(t *testing.T) {
	t.Run("merges values into the stored document", func(t *testing.T) {
		b, mock, _ := setupBackend(t)
		scope := beginScope(t, b, mock)

		mock.ExpectExec(`UPDATE records SET data = data \|\| \$3::jsonb WHERE model = \$1 AND id = \$2`).
			WithArgs("res.user", int64(1), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := userModel(t, b).Write(scope, 1, map[string]any{"email": "admin@example.com"})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing record", func(t *testing.T) {
		b, mock, _ := setupBackend(t)
		scope := beginScope(t, b, mock)

		mock.ExpectExec(`UPDATE records`).
			WithArgs("res.user", int64(99), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := userModel(t, b).Write(scope, 99, map[string]any{"email": "x"})
		assert.ErrorContains(t, err, "does not exist")
	})
}

func TestGenericModel_Delete(t *testing.T) {
	t.Run("deletes unprotected records", func(t *testing.T) {
		b, mock, _ := setupBackend(t)
		scope := beginScope(t, b, mock)

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM records WHERE model = \$1 AND id = ANY\(\$2\) AND protected`).
			WithArgs("res.user", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(`DELETE FROM records WHERE model = \$1 AND id = ANY\(\$2\)`).
			WithArgs("res.user", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 2))

		err := userModel(t, b).Delete(scope, []int64{1, 2})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("protected records raise a user error", func(t *testing.T) {
		b, mock, _ := setupBackend(t)
		scope := beginScope(t, b, mock)

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM records`).
			WithArgs("res.user", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		err := userModel(t, b).Delete(scope, []int64{1})
		uerr, ok := backend.AsUserError(err)
		require.True(t, ok)
		assert.Equal(t, "protected", uerr.Code)
	})

	t.Run("empty id list is a no-op", func(t *testing.T) {
		b, mock, _ := setupBackend(t)
		scope := beginScope(t, b, mock)

		err := userModel(t, b).Delete(scope, nil)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCompileFilter(t *testing.T) {
	t.Run("typed casts per value", func(t *testing.T) {
		f := backend.Filter{Conds: []backend.Cond{
			{Field: "rank", Op: ">=", Value: float64(3)},
			{Field: "active", Op: "=", Value: true},
			{Field: "login", Op: "=", Value: "admin"},
		}}
		cond, args, err := compileFilter(f, 2)
		require.NoError(t, err)
		assert.Equal(t, "(data->>'rank')::numeric >= $2 AND (data->>'active')::boolean = $3 AND data->>'login' = $4", cond)
		assert.Len(t, args, 3)
	})

	t.Run("id addresses the primary key column", func(t *testing.T) {
		f := backend.Filter{Conds: []backend.Cond{{Field: "id", Op: ">", Value: float64(5)}}}
		cond, _, err := compileFilter(f, 2)
		require.NoError(t, err)
		assert.Equal(t, "id > $2", cond)
	})

	t.Run("nested or group", func(t *testing.T) {
		f := backend.Filter{
			Conds: []backend.Cond{{Field: "active", Op: "=", Value: true}},
			Groups: []backend.Filter{{
				Or: true,
				Conds: []backend.Cond{
					{Field: "name", Op: "like", Value: "a%"},
					{Field: "name", Op: "ilike", Value: "b%"},
				},
			}},
		}
		cond, args, err := compileFilter(f, 2)
		require.NoError(t, err)
		assert.Equal(t, "(data->>'active')::boolean = $2 AND (data->>'name' LIKE $3 OR data->>'name' ILIKE $4)", cond)
		assert.Len(t, args, 3)
	})

	t.Run("in membership", func(t *testing.T) {
		f := backend.Filter{Conds: []backend.Cond{{Field: "login", Op: "in", Value: []any{"root", "admin"}}}}
		cond, args, err := compileFilter(f, 2)
		require.NoError(t, err)
		assert.Equal(t, "data->>'login' = ANY($2)", cond)
		assert.Len(t, args, 1)
	})

	t.Run("hostile field name rejected", func(t *testing.T) {
		f := backend.Filter{Conds: []backend.Cond{{Field: "x'; DROP TABLE records; --", Op: "=", Value: 1}}}
		_, _, err := compileFilter(f, 2)
		assert.Error(t, err)
	})
}
