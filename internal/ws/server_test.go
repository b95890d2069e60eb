package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cageside/internal/app/scoring"
	"cageside/internal/domain"
	"cageside/internal/eventbus"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubState struct{}

func (stubState) State(_ context.Context, boutID string, round int) (*scoring.StateSnapshot, error) {
	return &scoring.StateSnapshot{Bout: domain.Bout{ID: boutID}, RoundFilter: round}, nil
}

type envelope struct {
	Type            string          `json:"type"`
	Count           int             `json:"count"`
	ConnectionCount int             `json:"connection_count"`
	Data            json.RawMessage `json:"data"`
	Result          json.RawMessage `json:"result"`
}

func startServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(stubState{}, cfg)
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// next reads messages until one of the wanted type arrives.
func next(t *testing.T, conn *websocket.Conn, want string) envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", want)
		var env envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Type == want {
			return env
		}
	}
}

func TestConnectSendsStateAndCount(t *testing.T) {
	srv, ts := startServer(t, Config{})
	a := dial(t, ts, "bout_id=b1&round_number=2")

	sync := next(t, a, TypeStateSync)
	assert.Equal(t, 1, sync.ConnectionCount)
	var snap scoring.StateSnapshot
	require.NoError(t, json.Unmarshal(sync.Data, &snap))
	assert.Equal(t, "b1", snap.Bout.ID)
	assert.Equal(t, 2, snap.RoundFilter)

	_ = dial(t, ts, "bout_id=b1")
	for {
		msg := next(t, a, TypeConnectionCount)
		if msg.Count == 2 {
			break
		}
	}
	assert.Equal(t, 2, srv.ConnectionCount("b1"))
	assert.Equal(t, 0, srv.ConnectionCount("b2"))
}

func TestMissingBoutRejected(t *testing.T) {
	_, ts := startServer(t, Config{})
	resp, err := http.Get(ts.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetRoundResyncs(t *testing.T) {
	_, ts := startServer(t, Config{})
	a := dial(t, ts, "bout_id=b1")
	next(t, a, TypeStateSync)

	require.NoError(t, a.WriteJSON(map[string]any{"type": "set_round", "round_number": 3}))
	sync := next(t, a, TypeStateSync)
	var snap scoring.StateSnapshot
	require.NoError(t, json.Unmarshal(sync.Data, &snap))
	assert.Equal(t, 3, snap.RoundFilter)

	require.NoError(t, a.WriteJSON(map[string]any{"type": "request_sync"}))
	sync = next(t, a, TypeStateSync)
	require.NoError(t, json.Unmarshal(sync.Data, &snap))
	assert.Equal(t, 3, snap.RoundFilter)
}

func TestUnknownMessageIgnoredAndPingAnswered(t *testing.T) {
	_, ts := startServer(t, Config{})
	a := dial(t, ts, "bout_id=b1")
	next(t, a, TypeStateSync)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, a.WriteJSON(map[string]any{"type": "ping"}))
	next(t, a, TypePong)
}

func TestBusNotificationsFanOutPerBout(t *testing.T) {
	srv, ts := startServer(t, Config{})
	bus := eventbus.New(10)
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx, bus)
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	a := dial(t, ts, "bout_id=b1")
	next(t, a, TypeStateSync)
	other := dial(t, ts, "bout_id=b2")
	next(t, other, TypeStateSync)

	bus.Publish(eventbus.KindRoundComputed, "b1", 1, domain.RoundResult{BoutID: "b1", RoundNumber: 1, RedScore: 10, BlueScore: 9, Winner: domain.WinnerRed})
	msg := next(t, a, TypeRoundComputed)
	var res domain.RoundResult
	require.NoError(t, json.Unmarshal(msg.Result, &res))
	assert.Equal(t, domain.WinnerRed, res.Winner)

	bus.Publish(eventbus.KindEventAdded, "b1", 1, domain.Event{ID: "e1", BoutID: "b1"})
	next(t, a, TypeEventAdded)

	_ = other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	for {
		_, raw, err := other.ReadMessage()
		if err != nil {
			break
		}
		assert.NotContains(t, string(raw), TypeRoundComputed)
	}
}

func TestPongTimeoutEvicts(t *testing.T) {
	srv, ts := startServer(t, Config{PingInterval: 20 * time.Millisecond, PongTimeout: 60 * time.Millisecond})
	a := dial(t, ts, "bout_id=b1")
	next(t, a, TypeStateSync)
	_ = dial(t, ts, "bout_id=b1")
	require.Eventually(t, func() bool { return srv.ConnectionCount("b1") == 2 }, time.Second, 5*time.Millisecond)

	// a never answers pings and is dropped; the silent second client is too.
	require.Eventually(t, func() bool { return srv.ConnectionCount("b1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPongKeepsClientAlive(t *testing.T) {
	srv, ts := startServer(t, Config{PingInterval: 20 * time.Millisecond, PongTimeout: 80 * time.Millisecond})
	a := dial(t, ts, "bout_id=b1")
	stop := time.After(300 * time.Millisecond)
	for {
		select {
		case <-stop:
			assert.Equal(t, 1, srv.ConnectionCount("b1"))
			return
		default:
		}
		env := next(t, a, TypePing)
		require.Equal(t, TypePing, env.Type)
		require.NoError(t, a.WriteJSON(map[string]any{"type": "pong"}))
	}
}

func TestFullQueueEvicts(t *testing.T) {
	srv := NewServer(stubState{}, Config{SendQueue: 1})
	c := &Client{send: make(chan []byte, 1), boutID: "b1", done: make(chan struct{})}
	srv.register(c)
	srv.enqueue(c, []byte("one"))
	srv.enqueue(c, []byte("two"))
	assert.Equal(t, 0, srv.ConnectionCount("b1"))
	select {
	case <-c.done:
	default:
		t.Fatal("client not marked done")
	}
}
