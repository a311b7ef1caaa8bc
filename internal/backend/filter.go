package backend

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Cond is one leaf comparison of a domain filter: [field, op, value].
type Cond struct {
	Field string
	Op    string
	Value any
}

// Filter is a boolean tree over field comparisons. The zero value matches
// every record. Children are joined with AND unless Or is set.
type Filter struct {
	Or     bool
	Conds  []Cond
	Groups []Filter
}

// Empty reports whether the filter selects every record.
func (f Filter) Empty() bool {
	return len(f.Conds) == 0 && len(f.Groups) == 0
}

var validOps = map[string]bool{
	"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"like": true, "ilike": true, "in": true,
}

// ParseFilter builds a Filter from the decoded JSON form of a domain
// expression: a list of [field, op, value] leaves, optionally headed by
// "AND" or "OR", with nested lists as sub-groups.
func ParseFilter(raw any) (Filter, error) {
	if raw == nil {
		return Filter{}, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return Filter{}, fmt.Errorf("domain filter must be a list, got %T", raw)
	}

	var f Filter
	if len(items) > 0 {
		if head, ok := items[0].(string); ok {
			switch strings.ToUpper(head) {
			case "OR":
				f.Or = true
			case "AND":
			default:
				return Filter{}, fmt.Errorf("unknown filter conjunction %q", head)
			}
			items = items[1:]
		}
	}

	for _, item := range items {
		elem, ok := item.([]any)
		if !ok {
			return Filter{}, fmt.Errorf("filter element must be a list, got %T", item)
		}
		if cond, ok := asCond(elem); ok {
			if !validOps[cond.Op] {
				return Filter{}, fmt.Errorf("unknown filter operator %q", cond.Op)
			}
			f.Conds = append(f.Conds, cond)
			continue
		}
		sub, err := ParseFilter(elem)
		if err != nil {
			return Filter{}, err
		}
		f.Groups = append(f.Groups, sub)
	}
	return f, nil
}

func asCond(elem []any) (Cond, bool) {
	if len(elem) != 3 {
		return Cond{}, false
	}
	field, fok := elem[0].(string)
	op, ook := elem[1].(string)
	if !fok || !ook || field == "" {
		return Cond{}, false
	}
	return Cond{Field: field, Op: op, Value: elem[2]}, true
}

// Matches evaluates the filter against a record's field values.
func (f Filter) Matches(rec map[string]any) bool {
	if f.Empty() {
		return true
	}
	results := make([]bool, 0, len(f.Conds)+len(f.Groups))
	for _, c := range f.Conds {
		results = append(results, c.matches(rec))
	}
	for _, g := range f.Groups {
		results = append(results, g.Matches(rec))
	}
	if f.Or {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

func (c Cond) matches(rec map[string]any) bool {
	have, ok := rec[c.Field]
	if !ok {
		return false
	}
	switch c.Op {
	case "=":
		cmp, ok := Compare(have, c.Value)
		return ok && cmp == 0
	case "!=":
		cmp, ok := Compare(have, c.Value)
		return ok && cmp != 0
	case "<":
		cmp, ok := Compare(have, c.Value)
		return ok && cmp < 0
	case "<=":
		cmp, ok := Compare(have, c.Value)
		return ok && cmp <= 0
	case ">":
		cmp, ok := Compare(have, c.Value)
		return ok && cmp > 0
	case ">=":
		cmp, ok := Compare(have, c.Value)
		return ok && cmp >= 0
	case "like":
		return likeMatch(have, c.Value, false)
	case "ilike":
		return likeMatch(have, c.Value, true)
	case "in":
		set, ok := c.Value.([]any)
		if !ok {
			return false
		}
		for _, candidate := range set {
			if cmp, ok := Compare(have, candidate); ok && cmp == 0 {
				return true
			}
		}
		return false
	}
	return false
}

// Compare orders two field values of compatible types. The second result
// is false when the values are not comparable.
func Compare(a, b any) (int, bool) {
	if an, aok := asFloat(a); aok {
		if bn, bok := asFloat(b); bok {
			switch {
			case an < bn:
				return -1, true
			case an > bn:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		if !av {
			return -1, true
		}
		return 1, true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case av.Before(bv):
			return -1, true
		case av.After(bv):
			return 1, true
		}
		return 0, true
	case decimal.Decimal:
		bv, ok := b.(decimal.Decimal)
		if !ok {
			return 0, false
		}
		return av.Cmp(bv), true
	case nil:
		if b == nil {
			return 0, true
		}
		return 0, false
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func likeMatch(have, pattern any, foldCase bool) bool {
	hs, hok := have.(string)
	ps, pok := pattern.(string)
	if !hok || !pok {
		return false
	}
	if foldCase {
		hs = strings.ToLower(hs)
		ps = strings.ToLower(ps)
	}
	var re strings.Builder
	re.WriteString("^")
	for _, r := range ps {
		switch r {
		case '%':
			re.WriteString(".*")
		case '_':
			re.WriteString(".")
		default:
			re.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	re.WriteString("$")
	matched, err := regexp.MatchString(re.String(), hs)
	return err == nil && matched
}
