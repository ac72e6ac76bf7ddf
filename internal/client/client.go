// Package client provides a JSON client for the pricecat server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/pricecat/internal/models"
	"github.com/raphaelgruber/pricecat/internal/server"
	"github.com/raphaelgruber/pricecat/internal/service"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

// Client talks to a running pricecat server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client.
// If baseURL is empty, uses PRICECAT_SERVER_URL or defaults to localhost:8585.
// Timeout can be configured via PRICECAT_CLIENT_TIMEOUT (default 10m, vectorize runs are synchronous).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("PRICECAT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8585"
	}

	timeout := 10 * time.Minute
	if t := os.Getenv("PRICECAT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// do sends a request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e server.ErrorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, msg)
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// GetJob fetches a job snapshot. Unknown ids return service.ErrJobNotFound.
func (c *Client) GetJob(ctx context.Context, id string) (*models.IngestionJob, error) {
	var job models.IngestionJob
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", service.ErrJobNotFound, id)
		}
		return nil, err
	}
	return &job, nil
}

// ListJobs returns recent jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]models.IngestionJob, error) {
	path := "/jobs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp server.JobsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Search runs a semantic search on the server.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.CatalogItem, error) {
	var resp server.SearchResponse
	if err := c.do(ctx, http.MethodPost, "/search", server.SearchRequest{Query: query, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// GetItem returns the most recent edition of code, or nil if absent.
func (c *Client) GetItem(ctx context.Context, code string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	if err := c.do(ctx, http.MethodGet, "/items/"+url.PathEscape(code), nil, &item); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// Vectorize runs the pipeline on the server and waits for its summary.
func (c *Client) Vectorize(ctx context.Context, batchSize int, force bool) (*service.RunSummary, error) {
	var summary service.RunSummary
	req := server.VectorizeRequest{BatchSize: batchSize, Force: force}
	if err := c.do(ctx, http.MethodPost, "/vectorize", req, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Stats returns catalog coverage and server metrics.
func (c *Client) Stats(ctx context.Context) (*server.StatsResponse, error) {
	var stats server.StatsResponse
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
