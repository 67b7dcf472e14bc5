// Package search talks to the call index (Elasticsearch or OpenSearch) on
// behalf of a caller.
package search

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

	"go.uber.org/zap"
)

var (
	ErrMissingCredentials = errors.New("search credentials are required")
	ErrAccessDenied       = errors.New("access to the search index denied")
)

// RequestError is any failed exchange with the index other than a 403.
type RequestError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search request failed: %v", e.Err)
	}
	return fmt.Sprintf("search request failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       Auth
	log        *zap.SugaredLogger
}

func NewClient(host string, useSSL bool, auth Auth, log *zap.SugaredLogger) (*Client, error) {
	if err := auth.validate(); err != nil {
		return nil, err
	}

	protocol := "https"
	if !useSSL {
		protocol = "http"
	}
	baseURL := host
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		baseURL = fmt.Sprintf("%s://%s", protocol, host)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		auth:       auth,
		log:        log.Named("search"),
	}, nil
}

type Hit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

type SearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []Hit `json:"hits"`
	} `json:"hits"`
}

func (c *Client) Search(ctx context.Context, index string, query map[string]any) (*SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encoding search query: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/_search", c.baseURL, index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.auth.apply(ctx, req, body); err != nil {
		return nil, fmt.Errorf("authenticating search request: %w", err)
	}

	c.log.Debugw("search request", "index", index, "query", string(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, ErrAccessDenied
	case resp.StatusCode >= 300:
		return nil, &RequestError{StatusCode: resp.StatusCode, Body: string(payload)}
	}

	var out SearchResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, &RequestError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return &out, nil
}
