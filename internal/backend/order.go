package backend

import (
	"fmt"
	"strings"
)

// Order is one (field, direction) pair of an ordering specification.
type Order struct {
	Field string
	Desc  bool
}

// ParseOrder builds an ordering from the decoded JSON form: a list of
// [field, "ASC"|"DESC"] pairs.
func ParseOrder(raw any) ([]Order, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("order must be a list, got %T", raw)
	}
	orders := make([]Order, 0, len(items))
	for _, item := range items {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("order element must be a [field, direction] pair")
		}
		field, fok := pair[0].(string)
		dir, dok := pair[1].(string)
		if !fok || !dok || field == "" {
			return nil, fmt.Errorf("order element must be a [field, direction] pair")
		}
		o := Order{Field: field}
		switch strings.ToUpper(dir) {
		case "ASC":
		case "DESC":
			o.Desc = true
		default:
			return nil, fmt.Errorf("unknown order direction %q", dir)
		}
		orders = append(orders, o)
	}
	return orders, nil
}
