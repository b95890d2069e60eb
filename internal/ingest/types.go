package ingest

import (
	"encoding/json"

	"cageside/internal/domain"
)

// SubmitRequest is one judging event as sent by a device. Value is never
// taken from the client.
type SubmitRequest struct {
	BoutID         string          `json:"bout_id"`
	RoundNumber    int             `json:"round_number"`
	Corner         string          `json:"corner"`
	Aspect         string          `json:"aspect"`
	EventType      string          `json:"event_type"`
	DeviceRole     string          `json:"device_role"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

type SubmitResult struct {
	Event            domain.Event `json:"event"`
	Duplicate        bool         `json:"duplicate"`
	ConnectedClients int          `json:"connected_clients"`
}
