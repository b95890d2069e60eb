package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

type DiscordAdapter struct {
	client *HTTPClient
	panels *panelRegistry
}

func NewDiscordAdapter(client *HTTPClient) *DiscordAdapter {
	return &DiscordAdapter{client: client, panels: newPanelRegistry()}
}

func (a *DiscordAdapter) Name() string { return "discord" }

func (a *DiscordAdapter) Send(ctx context.Context, endpoint, _ string, msg Message) error {
	payload := discordPayload(msg)
	if strings.TrimSpace(msg.PanelKey) == "" {
		_, _, err := a.client.PostJSON(ctx, endpoint, nil, payload)
		return err
	}
	return a.panels.upsert(ctx, panelID(endpoint, msg.PanelKey), panelOps{
		create: func(ctx context.Context) (string, error) {
			return a.createPanel(ctx, endpoint, payload)
		},
		edit: func(ctx context.Context, msgID string) (int, error) {
			editURL, ok := discordEditURL(endpoint, msgID)
			if !ok {
				_, _, err := a.client.PostJSON(ctx, endpoint, nil, payload)
				return 0, err
			}
			status, _, err := a.client.PatchJSON(ctx, editURL, nil, payload)
			return status, err
		},
	})
}

func (a *DiscordAdapter) ForgetPanel(endpoint, panelKey string) {
	a.panels.forget(endpoint, panelKey)
}

func discordPayload(msg Message) map[string]any {
	type embedField struct {
		Name   string `json:"name"`
		Value  string `json:"value"`
		Inline bool   `json:"inline"`
	}
	fields := make([]embedField, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		fields = append(fields, embedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	embed := map[string]any{
		"title":       msg.Title,
		"description": msg.Description,
		"fields":      fields,
		"color":       msg.Color,
	}
	if msg.Timestamp != "" {
		embed["timestamp"] = msg.Timestamp
	}
	if msg.Footer != "" {
		embed["footer"] = map[string]string{"text": msg.Footer}
	}
	return map[string]any{
		"content": msg.Content,
		"embeds":  []map[string]any{embed},
	}
}

func (a *DiscordAdapter) createPanel(ctx context.Context, endpoint string, payload map[string]any) (string, error) {
	wait := endpoint
	if strings.Contains(wait, "?") {
		wait += "&wait=true"
	} else {
		wait += "?wait=true"
	}
	_, body, err := a.client.PostJSON(ctx, wait, nil, payload)
	if err != nil {
		return "", err
	}
	var raw struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(body, &raw) == nil && strings.TrimSpace(raw.ID) != "" {
		return raw.ID, nil
	}
	return "", fmt.Errorf("discord webhook create message missing id")
}

// discordEditURL turns /api/webhooks/{id}/{token} into the message edit URL.
func discordEditURL(endpoint, msgID string) (string, bool) {
	if strings.TrimSpace(endpoint) == "" || strings.TrimSpace(msgID) == "" {
		return "", false
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 || parts[0] != "api" || parts[1] != "webhooks" {
		return "", false
	}
	u.Path = "/api/webhooks/" + parts[2] + "/" + parts[3] + "/messages/" + msgID
	u.RawQuery = ""
	return u.String(), true
}
