package ws

import "cageside/internal/domain"

const (
	TypeStateSync       = "state_sync"
	TypeEventAdded      = "event_added"
	TypeRoundComputed   = "round_computed"
	TypeFightFinalized  = "fight_finalized"
	TypeConnectionCount = "connection_count"
	TypePing            = "ping"
	TypePong            = "pong"
	TypeRequestSync     = "request_sync"
	TypeSetRound        = "set_round"
)

type StateSync struct {
	Type            string `json:"type"`
	Data            any    `json:"data"`
	ConnectionCount int    `json:"connection_count"`
}

type EventAdded struct {
	Type  string       `json:"type"`
	Event domain.Event `json:"event"`
}

type RoundComputed struct {
	Type   string             `json:"type"`
	Result domain.RoundResult `json:"result"`
}

type FightFinalized struct {
	Type   string             `json:"type"`
	Result domain.FightResult `json:"result"`
}

type ConnectionCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type Heartbeat struct {
	Type string `json:"type"`
}

// ClientMessage covers every client→server message. RoundNumber is only
// read for request_sync and set_round.
type ClientMessage struct {
	Type        string `json:"type"`
	RoundNumber *int   `json:"round_number,omitempty"`
}
