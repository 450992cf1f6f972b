package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedClient string

func (n namedClient) FetchEntities(_ context.Context, entityType string, _ []string, _ Filter) ([]Record, error) {
	return []Record{{"source": string(n), "entity": entityType}}, nil
}

func TestMux_Routes(t *testing.T) {
	m := NewMux(namedClient("sql")).Handle("vehicle", namedClient("feed"))

	recs, err := m.FetchEntities(context.Background(), "vehicle", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "feed", recs[0]["source"])

	recs, err = m.FetchEntities(context.Background(), "dynamics.ride", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "sql", recs[0]["source"])
	assert.Equal(t, []string{"vehicle"}, m.EntityTypes())
}

func TestMux_NoFallback(t *testing.T) {
	m := NewMux(nil).Handle("vehicle", namedClient("feed"))

	_, err := m.FetchEntities(context.Background(), "dynamics.ride", nil, nil)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "dynamics.ride")
}
