// Package jsonrpc implements remote.Client over the data service's
// JSON-RPC dataset endpoint.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fouezkebiche/memoire-projet/internal/remote"
)

// Client calls search_read on {BaseURL}/web/dataset/call_kw/{model}/search_read.
type Client struct {
	baseURL   string
	sessionID string
	client    *http.Client
	log       *logrus.Entry
}

// NewClient creates a client. sessionID, when set, is sent as the
// session_id cookie.
func NewClient(baseURL, sessionID string, timeout time.Duration, log *logrus.Entry) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		sessionID: sessionID,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      string `json:"id"`
	Params  params `json:"params"`
}

type params struct {
	Model  string         `json:"model"`
	Method string         `json:"method"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

type response struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is an error object returned by the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

func (e *RPCError) Error() string {
	if e.Data.Message != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Data.Message)
	}
	return e.Message
}

// domainError reports whether the server rejected the request itself
// (unknown field, malformed domain) rather than failing to run it.
func (e *RPCError) domainError() bool {
	if strings.Contains(e.Data.Name, "ValueError") {
		return true
	}
	msg := strings.ToLower(e.Data.Message)
	return strings.Contains(msg, "invalid field") || strings.Contains(msg, "invalid domain")
}

// FetchEntities implements remote.Client.
func (c *Client) FetchEntities(ctx context.Context, entityType string, fields []string, filter remote.Filter) ([]remote.Record, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		Method:  "call",
		ID:      uuid.New().String(),
		Params: params{
			Model:  entityType,
			Method: "search_read",
			Args:   []any{Domain(filter)},
			Kwargs: map[string]any{"fields": fields},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/web/dataset/call_kw/%s/search_read", c.baseURL, entityType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sessionID != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: c.sessionID})
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &remote.TransportError{Op: entityType + "/search_read", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &remote.TransportError{Op: entityType + "/search_read", StatusCode: resp.StatusCode}
	}

	var out response
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, &remote.TransportError{Op: entityType + "/search_read", Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if out.Error != nil {
		if out.Error.domainError() {
			return nil, &remote.ValidationError{Reason: out.Error.Error()}
		}
		return nil, fmt.Errorf("%s/search_read: %w", entityType, out.Error)
	}

	var records []remote.Record
	if len(out.Result) > 0 && !bytes.Equal(out.Result, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(out.Result))
		dec.UseNumber()
		if err := dec.Decode(&records); err != nil {
			return nil, &remote.TransportError{Op: entityType + "/search_read", Err: fmt.Errorf("unexpected result shape: %w", err)}
		}
	}

	c.log.WithFields(logrus.Fields{
		"model":    entityType,
		"records":  len(records),
		"duration": time.Since(start).String(),
	}).Debug("search_read completed")

	return records, nil
}

// Domain converts a filter to the server's list-of-triples domain syntax.
func Domain(filter remote.Filter) []any {
	domain := make([]any, 0, len(filter))
	for _, c := range filter {
		value := c.Value
		if c.Op.Multi() {
			value, _ = remote.ListValues(c.Value)
		}
		domain = append(domain, []any{c.Field, string(c.Op), value})
	}
	return domain
}

// IsRPCError reports whether err carries a server-side error object.
func IsRPCError(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}
