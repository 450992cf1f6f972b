package remote

import (
	"context"
	"sort"
)

// Mux routes fetches to a client by entity type. Entity types with no
// route go to the fallback.
type Mux struct {
	routes   map[string]Client
	fallback Client
}

// NewMux creates a mux; fallback may be nil.
func NewMux(fallback Client) *Mux {
	return &Mux{routes: make(map[string]Client), fallback: fallback}
}

// Handle routes entityType to c.
func (m *Mux) Handle(entityType string, c Client) *Mux {
	m.routes[entityType] = c
	return m
}

// EntityTypes returns the explicitly routed entity types, sorted.
func (m *Mux) EntityTypes() []string {
	out := make([]string, 0, len(m.routes))
	for t := range m.routes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (m *Mux) client(entityType string) (Client, error) {
	if c, ok := m.routes[entityType]; ok {
		return c, nil
	}
	if m.fallback != nil {
		return m.fallback, nil
	}
	return nil, &ValidationError{Field: "entity", Reason: "no source serves " + entityType}
}

// FetchEntities implements Client.
func (m *Mux) FetchEntities(ctx context.Context, entityType string, fields []string, filter Filter) ([]Record, error) {
	c, err := m.client(entityType)
	if err != nil {
		return nil, err
	}
	return c.FetchEntities(ctx, entityType, fields, filter)
}
