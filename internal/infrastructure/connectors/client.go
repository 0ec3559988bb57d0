package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/channelsync/backend/internal/infrastructure/resilience"
)

// maxResponseSize caps marketplace API responses (10MB)
const maxResponseSize = 10 * 1024 * 1024

// apiClient is the shared HTTP plumbing for connectors. Every page request
// goes through the call executor; provider failures surface as
// resilience.HTTPError so classification sees the status code.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	// authorize injects the marketplace's auth header shape
	authorize func(req *http.Request)
}

func newAPIClient(baseURL string, timeout time.Duration, executor *resilience.Executor, authorize func(req *http.Request)) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
		authorize:  authorize,
	}
}

// getJSON performs a GET with retry, decodes the JSON body into out, and
// returns the response headers for cursor extraction
func (c *apiClient) getJSON(ctx context.Context, label, path string, query url.Values, out any) (http.Header, error) {
	return resilience.ExecuteResult(ctx, c.executor, label, func(ctx context.Context) (http.Header, error) {
		return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
	})
}

// postJSON performs a POST with retry and decodes the JSON response
func (c *apiClient) postJSON(ctx context.Context, label, path string, body any, out any) (http.Header, error) {
	return resilience.ExecuteResult(ctx, c.executor, label, func(ctx context.Context) (http.Header, error) {
		return c.doJSON(ctx, http.MethodPost, path, nil, body, out)
	})
}

func (c *apiClient) doJSON(ctx context.Context, method, path string, query url.Values, body any, out any) (http.Header, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("connectors: failed to encode request body: %w", err)
		}
		reader = strings.NewReader(string(encoded))
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("connectors: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authorize != nil {
		c.authorize(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failure: no status code, retryable
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("connectors: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &resilience.HTTPError{Status: resp.StatusCode, Body: truncate(string(raw), 512)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("connectors: failed to parse response: %w", err)
		}
	}
	return resp.Header, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// pageLogger trims per-page logging noise to debug level
func pageLogger(logger *zap.Logger, platform string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("platform", platform))
}
