// Package syncclient is the HTTP client a CLI-local thread store uses to
// push a thread to the sync tier, grounded on pkg/runbook's GitHubClient
// (http.Client with a fixed timeout, bearer-token auth header, JSON
// marshal/unmarshal over the wire).
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeready-toolchain/loom/pkg/thread"
)

// Client pushes and pulls threads against the sync tier's HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// New constructs a Client. apiKey is sent as a bearer token on every
// request; baseURL has no trailing slash.
func New(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type upsertRequest struct {
	Thread          thread.Thread `json:"thread"`
	ExpectedVersion *int64        `json:"expected_version,omitempty"`
}

type upsertResponse struct {
	Thread thread.Thread `json:"thread"`
}

// Upsert pushes t to the sync tier. Callers must never invoke this for
// a thread with IsPrivate set - that boundary is enforced one layer up,
// in pkg/thread/syncingstore, not here.
func (c *Client) Upsert(ctx context.Context, t thread.Thread, expectedVersion *int64) (thread.Thread, error) {
	body, err := json.Marshal(upsertRequest{Thread: t, ExpectedVersion: expectedVersion})
	if err != nil {
		return thread.Thread{}, fmt.Errorf("marshal upsert request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v1/threads/"+t.ID.String(), bytes.NewReader(body))
	if err != nil {
		return thread.Thread{}, fmt.Errorf("create upsert request: %w", err)
	}
	c.setAuthHeader(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return thread.Thread{}, thread.Backend(fmt.Errorf("sync thread %s: %w", t.ID, err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return thread.Thread{}, decodeConflict(resp)
	default:
		return thread.Thread{}, thread.Backend(fmt.Errorf("sync thread %s: server returned HTTP %d", t.ID, resp.StatusCode))
	}

	var out upsertResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return thread.Thread{}, thread.Serialization(fmt.Errorf("decode upsert response: %w", err))
	}
	return out.Thread, nil
}

type conflictBody struct {
	ExpectedVersion int64 `json:"expected_version"`
	ActualVersion   int64 `json:"actual_version"`
}

func decodeConflict(resp *http.Response) error {
	var body conflictBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return thread.Backend(fmt.Errorf("decode conflict response: %w", err))
	}
	return thread.Conflict(body.ExpectedVersion, body.ActualVersion)
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// Delete asks the sync tier to delete id.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/threads/"+id, nil)
	if err != nil {
		return fmt.Errorf("create delete request: %w", err)
	}
	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return thread.Backend(fmt.Errorf("delete synced thread %s: %w", id, err))
	}
	defer func() { _, _ = io.Copy(io.Discard, resp.Body); _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return thread.NotFound()
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return thread.Backend(fmt.Errorf("delete synced thread %s: server returned HTTP %d", id, resp.StatusCode))
	}
	return nil
}
