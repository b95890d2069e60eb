package platforms

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
)

func TestWebhookPostsPayloadAndSignature(t *testing.T) {
	var raw []byte
	var sig string
	client := newTestHTTPClient(func(r *http.Request) (*http.Response, error) {
		defer r.Body.Close()
		raw, _ = io.ReadAll(r.Body)
		sig = r.Header.Get("X-Cageside-Signature")
		return jsonResponse(http.StatusAccepted, ""), nil
	})
	adapter := NewWebhookAdapter(client)
	payload := map[string]any{"bout_id": "b1", "winner": "RED"}
	if err := adapter.Send(context.Background(), "https://hooks.example/r", "s3cret", Message{Title: "t", Content: "c", Payload: payload}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sig != Sign("s3cret", raw) {
		t.Fatalf("signature mismatch: %q", sig)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	result, ok := body["result"].(map[string]any)
	if !ok || result["winner"] != "RED" {
		t.Fatalf("unexpected result: %#v", body["result"])
	}
}

func TestWebhookWithoutSecretOmitsSignature(t *testing.T) {
	var sig string
	client := newTestHTTPClient(func(r *http.Request) (*http.Response, error) {
		sig = r.Header.Get("X-Cageside-Signature")
		return jsonResponse(http.StatusOK, ""), nil
	})
	if err := NewWebhookAdapter(client).Send(context.Background(), "https://hooks.example/r", "", Message{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sig != "" {
		t.Fatalf("expected no signature, got %q", sig)
	}
}
