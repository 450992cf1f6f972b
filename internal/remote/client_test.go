package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Validate(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		wantErr bool
	}{
		{"empty", nil, false},
		{"equality", Where("status", OpEq, "ON_GOING"), false},
		{"in with ints", Where("id", OpIn, []int64{1, 2}), false},
		{"chained", Where("line_id", OpEq, 3).And("order", OpGte, 1), false},
		{"empty field", Where(" ", OpEq, 1), true},
		{"bad operator", Where("id", Op("like"), "x"), true},
		{"in without list", Where("id", OpIn, 4), true},
		{"nil value", Where("id", OpEq, nil), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.filter.Validate()
			if tc.wantErr {
				assert.True(t, IsValidation(err), "expected ValidationError, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilter_AndDoesNotAlias(t *testing.T) {
	base := make(Filter, 0, 4)
	base = append(base, Condition{Field: "a", Op: OpEq, Value: 1})
	left := base.And("b", OpEq, 2)
	right := base.And("c", OpEq, 3)

	assert.Equal(t, "b", left[1].Field)
	assert.Equal(t, "c", right[1].Field)
}

func TestErrorClassification(t *testing.T) {
	transport := fmt.Errorf("fetch rides: %w", &TransportError{Op: "search_read", Err: context.DeadlineExceeded})
	assert.True(t, IsTransport(transport))
	assert.False(t, IsValidation(transport))
	assert.True(t, errors.Is(transport, context.DeadlineExceeded))

	status := &TransportError{Op: "search_read", StatusCode: 502}
	assert.Equal(t, "search_read: unexpected status 502", status.Error())

	validation := fmt.Errorf("fetch rides: %w", &ValidationError{Field: "x", Reason: "unknown field"})
	assert.True(t, IsValidation(validation))
	assert.False(t, IsTransport(validation))
}

func TestFilter_Match(t *testing.T) {
	rec := Record{
		"id":       float64(4),
		"status":   "ON_GOING",
		"line_id":  []any{float64(2), "L2"},
		"route_id": "R4",
	}

	tests := []struct {
		name     string
		filter   Filter
		expected bool
	}{
		{"empty", nil, true},
		{"eq string", Where("status", OpEq, "ON_GOING"), true},
		{"ne string", Where("status", OpNe, "ON_GOING"), false},
		{"eq number across types", Where("id", OpEq, 4), true},
		{"pair compares by id", Where("line_id", OpEq, int64(2)), true},
		{"in", Where("route_id", OpIn, []string{"R1", "R4"}), true},
		{"not in", Where("route_id", OpNotIn, []string{"R1", "R4"}), false},
		{"gte", Where("id", OpGte, 4), true},
		{"lt", Where("id", OpLt, 4), false},
		{"conjunction", Where("id", OpGt, 1).And("status", OpEq, "IDLE"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.filter.Match(rec))
		})
	}
}
