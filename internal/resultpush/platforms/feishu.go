package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

type FeishuAdapter struct {
	client *HTTPClient
	panels *panelRegistry
}

func NewFeishuAdapter(client *HTTPClient) *FeishuAdapter {
	return &FeishuAdapter{client: client, panels: newPanelRegistry()}
}

func (a *FeishuAdapter) Name() string { return "feishu" }

func (a *FeishuAdapter) Send(ctx context.Context, endpoint, secret string, msg Message) error {
	signature, bearer := parseFeishuSecret(secret)
	payload := feishuCard(msg)
	headers := map[string]string{}
	if signature != "" {
		headers["X-Lark-Signature"] = signature
	}
	if strings.TrimSpace(msg.PanelKey) == "" {
		_, _, err := a.client.PostJSON(ctx, endpoint, headers, payload)
		return err
	}
	return a.panels.upsert(ctx, panelID(endpoint, msg.PanelKey), panelOps{
		create: func(ctx context.Context) (string, error) {
			_, body, err := a.client.PostJSON(ctx, endpoint, headers, payload)
			if err != nil {
				return "", err
			}
			var raw map[string]any
			if err := json.Unmarshal(body, &raw); err != nil {
				return "", err
			}
			if id := firstMessageID(raw); id != "" {
				return id, nil
			}
			return "", fmt.Errorf("feishu create message missing id")
		},
		edit: func(ctx context.Context, msgID string) (int, error) {
			editURL, ok := feishuEditURL(endpoint, msgID)
			if !ok {
				_, _, err := a.client.PostJSON(ctx, endpoint, headers, payload)
				return 0, err
			}
			patchHeaders := map[string]string{}
			if bearer != "" {
				patchHeaders["Authorization"] = "Bearer " + bearer
			}
			status, _, err := a.client.PatchJSON(ctx, editURL, patchHeaders, payload)
			return status, err
		},
	})
}

func (a *FeishuAdapter) ForgetPanel(endpoint, panelKey string) {
	a.panels.forget(endpoint, panelKey)
}

func feishuCard(msg Message) map[string]any {
	elements := []map[string]string{{"tag": "markdown", "text": fallback(msg.Description, msg.Content)}}
	for _, f := range msg.Fields {
		elements = append(elements, map[string]string{"tag": "markdown", "text": "**" + f.Name + "**: " + f.Value})
	}
	template := "grey"
	switch msg.Color {
	case 0xD32F2F:
		template = "red"
	case 0x1976D2:
		template = "blue"
	}
	return map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title":    map[string]any{"tag": "plain_text", "content": msg.Title},
				"template": template,
			},
			"elements": elements,
		},
	}
}

// parseFeishuSecret reads "sig:…;bearer:…". A bare value is the signature.
func parseFeishuSecret(secret string) (signature string, bearer string) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return "", ""
	}
	parts := strings.Split(s, ";")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		switch {
		case strings.HasPrefix(p, "sig:"):
			signature = strings.TrimSpace(strings.TrimPrefix(p, "sig:"))
		case strings.HasPrefix(p, "bearer:"):
			bearer = strings.TrimSpace(strings.TrimPrefix(p, "bearer:"))
		case len(parts) == 1:
			signature = p
		}
	}
	return signature, bearer
}

func feishuEditURL(endpoint, msgID string) (string, bool) {
	if strings.TrimSpace(endpoint) == "" || strings.TrimSpace(msgID) == "" {
		return "", false
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false
	}
	u.Path = "/open-apis/im/v1/messages/" + msgID
	u.RawQuery = ""
	return u.String(), true
}

func firstMessageID(raw map[string]any) string {
	pick := func(m map[string]any) string {
		for _, k := range []string{"message_id", "id"} {
			if v, ok := m[k].(string); ok && strings.TrimSpace(v) != "" {
				return v
			}
		}
		return ""
	}
	if raw == nil {
		return ""
	}
	if id := pick(raw); id != "" {
		return id
	}
	if data, ok := raw["data"].(map[string]any); ok {
		return pick(data)
	}
	return ""
}

func fallback(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
