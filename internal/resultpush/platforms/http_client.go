package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type HTTPClient struct {
	inner *http.Client
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{inner: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) PostJSON(ctx context.Context, endpoint string, headers map[string]string, body any) (int, []byte, error) {
	return c.sendJSON(ctx, http.MethodPost, endpoint, headers, body)
}

func (c *HTTPClient) PatchJSON(ctx context.Context, endpoint string, headers map[string]string, body any) (int, []byte, error) {
	return c.sendJSON(ctx, http.MethodPatch, endpoint, headers, body)
}

func (c *HTTPClient) sendJSON(ctx context.Context, method, endpoint string, headers map[string]string, body any) (int, []byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.inner.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, respBody, fmt.Errorf("%s %s: status %d", method, endpoint, resp.StatusCode)
	}
	return resp.StatusCode, respBody, nil
}
