package platforms

import "context"

type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is the platform-neutral push. Payload is the raw result, posted
// as-is by the plain webhook adapter.
type Message struct {
	PanelKey    string
	Title       string
	Content     string
	Description string
	Color       int
	Timestamp   string
	Footer      string
	Fields      []Field
	Payload     any
}

type Adapter interface {
	Name() string
	Send(ctx context.Context, endpoint, secret string, msg Message) error
}
