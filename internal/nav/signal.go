// Package nav tracks which view a client is looking at, as a
// (model, view type) signature read from its navigation state.
package nav

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Signature identifies a view by its model name and view type.
type Signature struct {
	Model    string `json:"model" yaml:"model" validate:"required"`
	ViewType string `json:"viewType" yaml:"view_type" validate:"required"`
}

func (s Signature) String() string {
	return s.Model + "/" + s.ViewType
}

// IsZero reports whether nothing is known about the current view.
func (s Signature) IsZero() bool {
	return s.Model == "" && s.ViewType == ""
}

// Signal exposes the current signature. It is polled, never pushed.
type Signal interface {
	Current() Signature
}

// SignalFunc adapts a function to Signal.
type SignalFunc func() Signature

// Current implements Signal.
func (f SignalFunc) Current() Signature { return f() }

// ParseHash extracts the signature from a URL whose fragment carries
// model= and view_type= parameters, e.g. "/web#model=dynamics.ride&view_type=list".
// A bare fragment ("#model=..." or "model=...") is accepted too.
// Missing parameters yield empty fields.
func ParseHash(raw string) (Signature, error) {
	fragment := raw
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		fragment = raw[i+1:]
	} else if strings.Contains(raw, "://") || strings.HasPrefix(raw, "/") {
		u, err := url.Parse(raw)
		if err != nil {
			return Signature{}, fmt.Errorf("failed to parse url: %w", err)
		}
		fragment = u.RawQuery
	}

	values, err := url.ParseQuery(fragment)
	if err != nil {
		return Signature{}, fmt.Errorf("failed to parse fragment %q: %w", fragment, err)
	}
	return Signature{Model: values.Get("model"), ViewType: values.Get("view_type")}, nil
}

// Tracker holds the last reported navigation state of one client.
type Tracker struct {
	mu        sync.RWMutex
	current   Signature
	url       string
	updatedAt time.Time
}

// NewTracker creates a tracker starting at initial.
func NewTracker(initial Signature) *Tracker {
	return &Tracker{current: initial, updatedAt: time.Now()}
}

// Current implements Signal.
func (t *Tracker) Current() Signature {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Set records an explicit signature.
func (t *Tracker) Set(sig Signature) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = sig
	t.url = ""
	t.updatedAt = time.Now()
}

// SetURL parses raw and records the resulting signature.
func (t *Tracker) SetURL(raw string) (Signature, error) {
	sig, err := ParseHash(raw)
	if err != nil {
		return Signature{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = sig
	t.url = raw
	t.updatedAt = time.Now()
	return sig, nil
}

// URL returns the last URL reported, if any.
func (t *Tracker) URL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.url
}

// UpdatedAt returns when the tracker last changed.
func (t *Tracker) UpdatedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updatedAt
}
