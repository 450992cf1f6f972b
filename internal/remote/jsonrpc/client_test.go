package jsonrpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fouezkebiche/memoire-projet/internal/remote"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestFetchEntities(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/web/dataset/call_kw/bus_tracking.bus/search_read", r.URL.Path)
		cookie, err := r.Cookie("session_id")
		require.NoError(t, err)
		assert.Equal(t, "abc", cookie.Value)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"jsonrpc":"2.0","id":"1","result":[{"id":1,"name":"Bus 1","latitude":36.365,"longitude":6.6147,"driver":false}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "abc", time.Second, testLogger())
	records, err := c.FetchEntities(context.Background(), "bus_tracking.bus",
		[]string{"name", "latitude", "longitude"}, remote.Where("id", remote.OpIn, []int64{1, 2}))
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, json.Number("1"), records[0]["id"])
	assert.Equal(t, false, records[0]["driver"])

	assert.Equal(t, "2.0", got.JSONRPC)
	assert.Equal(t, "search_read", got.Params.Method)
	assert.Equal(t, "bus_tracking.bus", got.Params.Model)
	assert.Equal(t, []any{[]any{[]any{"id", "in", []any{float64(1), float64(2)}}}}, got.Params.Args)
}

func TestFetchEntities_TransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, testLogger())
	_, err := c.FetchEntities(context.Background(), "dynamics.ride", []string{"lat"}, nil)
	require.Error(t, err)
	assert.True(t, remote.IsTransport(err))

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer slow.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = NewClient(slow.URL, "", time.Second, testLogger()).FetchEntities(ctx, "dynamics.ride", nil, nil)
	assert.True(t, remote.IsTransport(err))
}

func TestFetchEntities_ServerErrors(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		wantValidation bool
	}{
		{
			name:           "invalid field",
			body:           `{"jsonrpc":"2.0","id":"1","error":{"code":200,"message":"Odoo Server Error","data":{"name":"builtins.ValueError","message":"Invalid field 'foo' on model 'dynamics.ride'"}}}`,
			wantValidation: true,
		},
		{
			name: "access denied",
			body: `{"jsonrpc":"2.0","id":"1","error":{"code":200,"message":"Odoo Server Error","data":{"name":"odoo.exceptions.AccessError","message":"denied"}}}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "", time.Second, testLogger()).FetchEntities(context.Background(), "dynamics.ride", nil, nil)
			require.Error(t, err)
			assert.Equal(t, tc.wantValidation, remote.IsValidation(err))
			assert.Equal(t, !tc.wantValidation, IsRPCError(err))
		})
	}
}

func TestFetchEntities_RejectsBadFilterWithoutCalling(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second, testLogger()).FetchEntities(context.Background(), "x", nil,
		remote.Where("id", remote.OpIn, "not a list"))
	assert.True(t, remote.IsValidation(err))
	assert.False(t, called)
}

func TestDomain(t *testing.T) {
	d := Domain(remote.Where("status", remote.OpEq, "ON_GOING").And("id", remote.OpNotIn, []string{"a"}))
	assert.Equal(t, []any{
		[]any{"status", "=", "ON_GOING"},
		[]any{"id", "not in", []any{"a"}},
	}, d)
}
