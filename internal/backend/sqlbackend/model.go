package sqlbackend

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/modelgate/modelgate/internal/backend"
	"github.com/modelgate/modelgate/internal/wire"
)

// Model resolves a registered model name to the generic record store.
func (b *SQLBackend) Model(tenant, name string) (backend.Model, error) {
	b.mu.RLock()
	_, ok := b.models[name]
	b.mu.RUnlock()
	if !ok {
		return nil, &backend.ModelNotFoundError{Name: name}
	}
	return &genericModel{name: name}, nil
}

// genericModel stores records of one model as JSONB rows in the tenant's
// records table. The record's display name is its "name" value.
type genericModel struct {
	name string
}

func scopeTx(s backend.Scope) (*sql.Tx, error) {
	scope, ok := s.(*txScope)
	if !ok {
		return nil, fmt.Errorf("scope does not belong to this backend")
	}
	return scope.tx, nil
}

func (m *genericModel) Search(s backend.Scope, filter backend.Filter, offset, limit int, order []backend.Order) ([]backend.Summary, error) {
	tx, err := scopeTx(s)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, COALESCE(data->>'name', '') FROM records WHERE model = $1`
	args := []any{m.name}

	if !filter.Empty() {
		cond, condArgs, err := compileFilter(filter, len(args)+1)
		if err != nil {
			return nil, err
		}
		query += " AND (" + cond + ")"
		args = append(args, condArgs...)
	}

	orderClause, err := compileOrder(order)
	if err != nil {
		return nil, err
	}
	query += " ORDER BY " + orderClause

	if limit >= 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}

	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", m.name, err)
	}
	defer rows.Close()

	var out []backend.Summary
	for rows.Next() {
		var sum backend.Summary
		if err := rows.Scan(&sum.ID, &sum.RecName); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", m.name, err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", m.name, err)
	}
	return out, nil
}

func (m *genericModel) Create(s backend.Scope, values []map[string]any) ([]backend.Summary, error) {
	tx, err := scopeTx(s)
	if err != nil {
		return nil, err
	}

	out := make([]backend.Summary, 0, len(values))
	for _, vals := range values {
		data, err := wire.Marshal(vals)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s record: %w", m.name, err)
		}
		var id int64
		err = tx.QueryRow(
			`INSERT INTO records (model, data) VALUES ($1, $2) RETURNING id`,
			m.name, data,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s record: %w", m.name, err)
		}
		name, _ := vals["name"].(string)
		out = append(out, backend.Summary{ID: id, RecName: name})
	}
	return out, nil
}

func (m *genericModel) Read(s backend.Scope, id int64, fields []string) (map[string]any, error) {
	tx, err := scopeTx(s)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = tx.QueryRow(
		`SELECT data FROM records WHERE model = $1 AND id = $2`,
		m.name, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %d of %s does not exist", id, m.name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s record: %w", m.name, err)
	}

	decoded, err := wire.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", m.name, err)
	}
	data, _ := decoded.(map[string]any)

	out := map[string]any{"id": id}
	if len(fields) == 0 {
		for k, v := range data {
			out[k] = v
		}
		return out, nil
	}
	for _, field := range fields {
		if v, ok := data[field]; ok {
			out[field] = v
		}
	}
	return out, nil
}

func (m *genericModel) Write(s backend.Scope, id int64, values map[string]any) error {
	tx, err := scopeTx(s)
	if err != nil {
		return err
	}

	data, err := wire.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", m.name, err)
	}

	res, err := tx.Exec(
		`UPDATE records SET data = data || $3::jsonb WHERE model = $1 AND id = $2`,
		m.name, id, data,
	)
	if err != nil {
		return fmt.Errorf("failed to write %s record: %w", m.name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record %d of %s does not exist", id, m.name)
	}
	return nil
}

func (m *genericModel) Delete(s backend.Scope, ids []int64) error {
	tx, err := scopeTx(s)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	var protected int
	err = tx.QueryRow(
		`SELECT COUNT(*) FROM records WHERE model = $1 AND id = ANY($2) AND protected`,
		m.name, pq.Array(ids),
	).Scan(&protected)
	if err != nil {
		return fmt.Errorf("failed to check %s records: %w", m.name, err)
	}
	if protected > 0 {
		return &backend.UserError{
			Code:        "protected",
			Message:     fmt.Sprintf("%d record(s) of %s cannot be deleted", protected, m.name),
			Description: "the selection contains records protected against deletion",
		}
	}

	_, err = tx.Exec(
		`DELETE FROM records WHERE model = $1 AND id = ANY($2)`,
		m.name, pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s records: %w", m.name, err)
	}
	return nil
}

func compileOrder(order []backend.Order) (string, error) {
	if len(order) == 0 {
		return "id ASC", nil
	}
	parts := make([]string, 0, len(order))
	for _, o := range order {
		col, err := orderColumn(o.Field)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	return strings.Join(parts, ", "), nil
}

func orderColumn(field string) (string, error) {
	if field == "id" {
		return "id", nil
	}
	if err := checkFieldName(field); err != nil {
		return "", err
	}
	return fmt.Sprintf("data->>'%s'", field), nil
}
