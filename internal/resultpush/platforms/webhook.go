package platforms

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// WebhookAdapter posts the raw result JSON. A non-empty secret signs the
// body with HMAC-SHA256 in X-Cageside-Signature.
type WebhookAdapter struct {
	client *HTTPClient
}

func NewWebhookAdapter(client *HTTPClient) *WebhookAdapter {
	return &WebhookAdapter{client: client}
}

func (a *WebhookAdapter) Name() string { return "webhook" }

func (a *WebhookAdapter) Send(ctx context.Context, endpoint, secret string, msg Message) error {
	body := map[string]any{
		"title":   msg.Title,
		"summary": msg.Content,
		"result":  msg.Payload,
	}
	headers := map[string]string{}
	if secret != "" {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		headers["X-Cageside-Signature"] = Sign(secret, raw)
	}
	_, _, err := a.client.PostJSON(ctx, endpoint, headers, body)
	return err
}

func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
