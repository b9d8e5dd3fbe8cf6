// Package sourcegraph implements the HTTP clients for the Sourcegraph
// GraphQL API: code search and file content retrieval.
package sourcegraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client performs search and content calls against one Sourcegraph
// instance. It holds no per-call state and is safe for concurrent use.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (used by tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates a client for the given endpoint. An empty token means
// unauthenticated calls.
func NewClient(endpoint, token string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// graphql posts one GraphQL operation and decodes the "data" object into out.
func (c *Client) graphql(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("encoding graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/.api/graphql", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling sourcegraph: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sourcegraph returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	envelope := struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", envelope.Errors[0].Message)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decoding graphql data: %w", err)
	}
	return nil
}

const searchQuery = `query Search($query: String!) {
  search(query: $query, version: V2) {
    results {
      results {
        __typename
        ... on FileMatch {
          repository { name }
          file { path url }
          lineMatches { preview lineNumber }
        }
      }
    }
  }
}`

// Search runs a Sourcegraph search and returns the raw file matches in the
// order the backend produced them. A count filter is appended so the backend
// does not stream more results than the caller will keep.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]RawResult, error) {
	data := struct {
		Search struct {
			Results struct {
				Results []RawResult `json:"results"`
			} `json:"results"`
		} `json:"search"`
	}{}

	q := fmt.Sprintf("%s count:%d", query, limit)
	if err := c.graphql(ctx, searchQuery, map[string]any{"query": q}, &data); err != nil {
		return nil, err
	}
	return data.Search.Results.Results, nil
}
