package sqlbackend

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"github.com/modelgate/modelgate/internal/backend"
)

// Filters arrive as field names from the wire, so they are interpolated
// into the JSONB accessor only after a strict shape check. Values always
// travel as bind parameters.
var fieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

func checkFieldName(field string) error {
	if !fieldNameRe.MatchString(field) {
		return fmt.Errorf("invalid field name %q", field)
	}
	return nil
}

// compileFilter renders a filter tree as a SQL condition over the records
// table, with bind parameters starting at $argIndex.
func compileFilter(f backend.Filter, argIndex int) (string, []any, error) {
	cond, args, _, err := compileGroup(f, argIndex)
	return cond, args, err
}

func compileGroup(f backend.Filter, argIndex int) (string, []any, int, error) {
	var parts []string
	var args []any

	for _, c := range f.Conds {
		expr, condArgs, next, err := compileCond(c, argIndex)
		if err != nil {
			return "", nil, 0, err
		}
		parts = append(parts, expr)
		args = append(args, condArgs...)
		argIndex = next
	}
	for _, g := range f.Groups {
		expr, groupArgs, next, err := compileGroup(g, argIndex)
		if err != nil {
			return "", nil, 0, err
		}
		parts = append(parts, "("+expr+")")
		args = append(args, groupArgs...)
		argIndex = next
	}

	if len(parts) == 0 {
		return "TRUE", nil, argIndex, nil
	}
	conj := " AND "
	if f.Or {
		conj = " OR "
	}
	return strings.Join(parts, conj), args, argIndex, nil
}

func compileCond(c backend.Cond, argIndex int) (string, []any, int, error) {
	if err := checkFieldName(c.Field); err != nil {
		return "", nil, 0, err
	}

	col, value, err := condColumn(c.Field, c.Value)
	if err != nil {
		return "", nil, 0, err
	}

	switch c.Op {
	case "=", "!=", "<", "<=", ">", ">=":
		op := c.Op
		if op == "!=" {
			op = "<>"
		}
		expr := fmt.Sprintf("%s %s $%d", col, op, argIndex)
		return expr, []any{value}, argIndex + 1, nil
	case "like":
		expr := fmt.Sprintf("%s LIKE $%d", textColumn(c.Field), argIndex)
		return expr, []any{c.Value}, argIndex + 1, nil
	case "ilike":
		expr := fmt.Sprintf("%s ILIKE $%d", textColumn(c.Field), argIndex)
		return expr, []any{c.Value}, argIndex + 1, nil
	case "in":
		set, ok := c.Value.([]any)
		if !ok {
			return "", nil, 0, fmt.Errorf("operator \"in\" needs a list value")
		}
		col, _, err := condColumn(c.Field, firstOf(set))
		if err != nil {
			return "", nil, 0, err
		}
		expr := fmt.Sprintf("%s = ANY($%d)", col, argIndex)
		return expr, []any{pq.Array(set)}, argIndex + 1, nil
	default:
		return "", nil, 0, fmt.Errorf("unknown filter operator %q", c.Op)
	}
}

// condColumn picks the SQL accessor and cast for a field based on the
// compared value's type.
func condColumn(field string, value any) (string, any, error) {
	if field == "id" {
		return "id", value, nil
	}
	switch value.(type) {
	case float64, int, int64:
		return fmt.Sprintf("(data->>'%s')::numeric", field), value, nil
	case bool:
		return fmt.Sprintf("(data->>'%s')::boolean", field), value, nil
	default:
		return textColumn(field), value, nil
	}
}

func textColumn(field string) string {
	return fmt.Sprintf("data->>'%s'", field)
}

func firstOf(set []any) any {
	if len(set) == 0 {
		return nil
	}
	return set[0]
}
