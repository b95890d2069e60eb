// Package resultpush posts computed round and fight results to chat
// webhooks. Each bout gets one scorecard panel that is edited in place as
// rounds come in.
package resultpush

import (
	"time"

	"cageside/internal/domain"
)

type PushTarget struct {
	Platform       string   `json:"platform"`
	Endpoint       string   `json:"endpoint"`
	Secret         string   `json:"secret"`
	ScopeType      string   `json:"scope_type"`
	ScopeValue     string   `json:"scope_value"`
	EventAllowlist []string `json:"event_allowlist"`
	Enabled        bool     `json:"enabled"`
}

type Config struct {
	Enabled             bool
	ConfigPath          string
	ConfigReload        time.Duration
	Targets             []PushTarget
	Workers             int
	RetryMax            int
	RetryBase           time.Duration
	FailureThreshold    int
	CircuitOpenDuration time.Duration
	RequestTimeout      time.Duration
	DispatchBuffer      int
}

// ResultEvent is a bus notification reduced to what a push needs.
type ResultEvent struct {
	EventID   string
	EventType string
	BoutID    string
	Round     *domain.RoundResult
	Fight     *domain.FightResult
	At        time.Time
}

type MessageField struct {
	Name   string
	Value  string
	Inline bool
}

type FormattedMessage struct {
	PanelKey    string
	Title       string
	Content     string
	Description string
	Color       int
	Timestamp   string
	Footer      string
	Fields      []MessageField
	Payload     any
}

type pushJob struct {
	Target    PushTarget
	Event     ResultEvent
	Formatted FormattedMessage
	Attempt   int
	Terminal  bool
}

func (j pushJob) key() string {
	return targetKey(j.Target)
}

func targetKey(t PushTarget) string {
	return t.Platform + "|" + t.Endpoint + "|" + t.ScopeType + "|" + t.ScopeValue
}
