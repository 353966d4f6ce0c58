package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"askweb/internal/history"

	"github.com/pkg/errors"
)

// Error is a failed search: a non-2xx reply (Status set) or a transport
// failure (Status 0).
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client talks to the search backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. Searches carry no client-side deadline of their
// own; callers bound them through the context.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Search posts req to /search.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	url := fmt.Sprintf("%s/search", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("request failed: %v", err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, statusError(resp.StatusCode, body)
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: "failed to parse response", Err: err}
	}
	if searchResp.Sources == nil {
		searchResp.Sources = []history.Source{}
	}
	if searchResp.QueriesUsed == nil {
		searchResp.QueriesUsed = []string{}
	}

	return &searchResp, nil
}

// statusError surfaces the backend's error field verbatim when present.
func statusError(status int, body []byte) *Error {
	var payload errorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &Error{Status: status, Message: payload.Error}
	}
	return &Error{Status: status, Message: fmt.Sprintf("HTTP error! status: %d", status)}
}

// HealthCheck verifies that the backend is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return errors.Wrap(err, "failed to create health check request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "search backend is unreachable at %s", c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return errors.Errorf("search backend returned status %d", resp.StatusCode)
	}

	return nil
}
