package syncmgr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cageside/internal/domain"
	"cageside/internal/ingest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSubmitterStatusMapping(t *testing.T) {
	status := http.StatusCreated
	var got ingest.SubmitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"code","message":"bad thing"}`))
	}))
	defer srv.Close()

	s := NewHTTPSubmitter(srv.URL+"/", 0)
	ctx := context.Background()
	req := jab()
	req.IdempotencyKey = "k-1"

	require.NoError(t, s.Submit(ctx, req))
	assert.Equal(t, "k-1", got.IdempotencyKey)

	status = http.StatusOK
	require.NoError(t, s.Submit(ctx, req))

	status = http.StatusBadRequest
	err := s.Submit(ctx, req)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "bad thing")

	status = http.StatusConflict
	require.ErrorIs(t, s.Submit(ctx, req), domain.ErrIdempotencyConflict)

	status = http.StatusNotFound
	require.ErrorIs(t, s.Submit(ctx, req), domain.ErrNotFound)

	for _, code := range []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable} {
		status = code
		assert.True(t, domain.IsTransient(s.Submit(ctx, req)), "status %d", code)
	}

	assert.True(t, NewHTTPProbe(srv.URL, 0).Reachable(ctx))
}

func TestHTTPSubmitterUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTPSubmitter(url, 0).Submit(context.Background(), jab())
	assert.True(t, domain.IsTransient(err))
	assert.False(t, NewHTTPProbe(url, 0).Reachable(context.Background()))
}
