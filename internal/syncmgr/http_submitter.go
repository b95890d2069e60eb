package syncmgr

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

	"cageside/internal/domain"
	"cageside/internal/ingest"
)

// HTTPSubmitter posts events to the gateway's POST /events.
type HTTPSubmitter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSubmitter(baseURL string, timeout time.Duration) *HTTPSubmitter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSubmitter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Submit maps gateway answers onto domain errors: 400 is a validation
// error, 409 an idempotency conflict, 404 an unknown bout, and network
// failures, 429 and 5xx are transient.
func (s *HTTPSubmitter) Submit(ctx context.Context, req ingest.SubmitRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/events", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return &domain.TransientNetworkError{Op: "submit event", Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &domain.TransientNetworkError{Op: "submit event", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	msg := eb.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return domain.Invalid("", msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrIdempotencyConflict, msg)
	case http.StatusNotFound:
		return domain.NotFound("bout", req.BoutID)
	default:
		return errors.New("submit event: unexpected status " + resp.Status)
	}
}

// HTTPProbe reports the gateway reachable when GET /healthz answers 2xx.
type HTTPProbe struct {
	url    string
	client *http.Client
}

func NewHTTPProbe(baseURL string, timeout time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPProbe{url: strings.TrimRight(baseURL, "/") + "/healthz", client: &http.Client{Timeout: timeout}}
}

func (p *HTTPProbe) Reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
