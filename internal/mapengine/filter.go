package mapengine

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// MatchFilter evaluates the subset of style filter expressions the renderer
// emits: ["==", ["get", k], v], ["!=", ...], ["has", k], ["all", ...] and
// ["any", ...]. A nil filter matches everything.
func MatchFilter(filter []any, props map[string]any) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	op, ok := filter[0].(string)
	if !ok {
		return false, eris.Errorf("mapengine: filter operator %v is not a string", filter[0])
	}

	switch op {
	case "==", "!=":
		if len(filter) != 3 {
			return false, eris.Errorf("mapengine: %q takes 2 operands", op)
		}
		left, err := operand(filter[1], props)
		if err != nil {
			return false, err
		}
		right, err := operand(filter[2], props)
		if err != nil {
			return false, err
		}
		eq := fmt.Sprint(left) == fmt.Sprint(right)
		if op == "!=" {
			return !eq, nil
		}
		return eq, nil

	case "has":
		if len(filter) != 2 {
			return false, eris.New(`mapengine: "has" takes 1 operand`)
		}
		key, _ := filter[1].(string)
		_, present := props[key]
		return present, nil

	case "all", "any":
		for _, sub := range filter[1:] {
			expr, ok := sub.([]any)
			if !ok {
				return false, eris.Errorf("mapengine: %q operand is not an expression", op)
			}
			matched, err := MatchFilter(expr, props)
			if err != nil {
				return false, err
			}
			if op == "any" && matched {
				return true, nil
			}
			if op == "all" && !matched {
				return false, nil
			}
		}
		return op == "all", nil
	}
	return false, eris.Errorf("mapengine: unsupported filter operator %q", op)
}

func operand(v any, props map[string]any) (any, error) {
	expr, ok := v.([]any)
	if !ok {
		return v, nil
	}
	if len(expr) == 2 && expr[0] == "get" {
		key, _ := expr[1].(string)
		return props[key], nil
	}
	return nil, eris.Errorf("mapengine: unsupported operand %v", expr)
}

// Get builds a ["get", key] expression.
func Get(key string) []any {
	return []any{"get", key}
}

// Eq builds a ["==", ["get", key], value] filter.
func Eq(key string, value any) []any {
	return []any{"==", Get(key), value}
}
