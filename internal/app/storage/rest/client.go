// Package rest implements the storage interfaces against a hosted
// PostgREST-compatible data API. Stored procedures are invoked through the
// /rest/v1/rpc endpoint.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Client is a minimal PostgREST client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("data API URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("data API key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// RPC calls a stored procedure and returns the raw response body.
func (c *Client) RPC(ctx context.Context, fn string, params any) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, fn)

	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req)
}

// From starts a table query. Only the read surface needed by this service is
// implemented.
func (c *Client) From(table string) *Query {
	return &Query{client: c, table: table}
}

// Query builds a PostgREST table read.
type Query struct {
	client  *Client
	table   string
	columns string
	filters url.Values
	order   string
	limit   int
}

// Select specifies the columns to return.
func (q *Query) Select(columns string) *Query {
	q.columns = columns
	return q
}

// Eq adds an equality filter.
func (q *Query) Eq(column string, value any) *Query {
	if q.filters == nil {
		q.filters = url.Values{}
	}
	q.filters.Add(column, fmt.Sprintf("eq.%v", value))
	return q
}

// Order adds an order clause.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.order = column + "." + dir
	return q
}

// Limit bounds the result set.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Execute runs the query and returns the raw response body.
func (q *Query) Execute(ctx context.Context) ([]byte, error) {
	params := url.Values{}
	if q.columns != "" {
		params.Set("select", q.columns)
	}
	for column, values := range q.filters {
		for _, v := range values {
			params.Add(column, v)
		}
	}
	if q.order != "" {
		params.Set("order", q.order)
	}
	if q.limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", q.limit))
	}

	reqURL := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, q.table)
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q.client.setHeaders(req)
	return q.client.do(req)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseError(body, resp.StatusCode)
	}
	return body, nil
}

// parseError extracts a PostgREST error payload.
func parseError(body []byte, statusCode int) error {
	msg := gjson.GetBytes(body, "message").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "error").String()
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Errorf("data API error (status %d): %s", statusCode, msg)
}
