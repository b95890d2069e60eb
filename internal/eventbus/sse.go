package eventbus

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// WriteSSE writes one notification as a server-sent event frame.
func WriteSSE(w http.ResponseWriter, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if n.ID > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", n.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", n.Kind); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// SetSSEHeaders applies headers that keep event streams stable across proxies.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Content-Type-Options", "nosniff")
}
