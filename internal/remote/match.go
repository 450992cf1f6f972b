package remote

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Match evaluates the filter against an in-memory record. Values are
// compared numerically when both sides are numbers and as text otherwise.
// Relational pairs compare by their id.
func (f Filter) Match(rec Record) bool {
	for _, c := range f {
		if !c.match(rec[c.Field]) {
			return false
		}
	}
	return true
}

func (c Condition) match(v any) bool {
	switch c.Op {
	case OpIn, OpNotIn:
		values, _ := ListValues(c.Value)
		found := false
		for _, want := range values {
			if compare(v, want) == 0 {
				found = true
				break
			}
		}
		return found == (c.Op == OpIn)
	}

	cmp := compare(v, c.Value)
	switch c.Op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	}
	return false
}

// compare returns -1, 0 or 1.
func compare(a, b any) int {
	a, b = scalar(a), scalar(b)
	fa, aok := number(a)
	fb, bok := number(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

// scalar unwraps [id, label] pairs to their id.
func scalar(v any) any {
	if pair, ok := v.([]any); ok && len(pair) > 0 {
		return pair[0]
	}
	return v
}

func number(v any) (float64, bool) {
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
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
