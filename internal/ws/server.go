// Package ws is the live broadcast hub: judge tablets and displays attach
// per bout and receive scoring updates as they happen.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"cageside/internal/app/scoring"
	"cageside/internal/domain"
	"cageside/internal/eventbus"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultSendQueue = 64
	writeWait        = 10 * time.Second
	stateTimeout     = 5 * time.Second
)

type StateProvider interface {
	State(ctx context.Context, boutID string, roundFilter int) (*scoring.StateSnapshot, error)
}

type Config struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	SendQueue    int
}

type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	boutID string
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	round    int
	lastPong time.Time
}

func (c *Client) roundFilter() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

func (c *Client) setRound(n int) {
	c.mu.Lock()
	c.round = n
	c.mu.Unlock()
}

func (c *Client) touch(at time.Time) {
	c.mu.Lock()
	c.lastPong = at
	c.mu.Unlock()
}

func (c *Client) silentSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastPong)
}

type Server struct {
	state    StateProvider
	upgrader websocket.Upgrader
	cfg      Config
	now      func() time.Time

	mu    sync.Mutex
	bouts map[string]map[*Client]struct{}
}

func NewServer(state StateProvider, cfg Config) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 45 * time.Second
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	return &Server{
		state:    state,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		cfg:      cfg,
		now:      time.Now,
		bouts:    map[string]map[*Client]struct{}{},
	}
}

// HandleWS upgrades GET /ws?bout_id=…&round_number=….
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	boutID := r.URL.Query().Get("bout_id")
	if boutID == "" {
		http.Error(w, `{"error":"invalid_request","message":"bout_id is required"}`, http.StatusBadRequest)
		return
	}
	round := 0
	if v := r.URL.Query().Get("round_number"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"invalid_request","message":"round_number must be a non-negative integer"}`, http.StatusBadRequest)
			return
		}
		round = n
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("bout_id", boutID).Msg("ws_upgrade_failed")
		return
	}
	c := &Client{
		conn:     conn,
		send:     make(chan []byte, s.cfg.SendQueue),
		boutID:   boutID,
		done:     make(chan struct{}),
		round:    round,
		lastPong: s.now(),
	}
	count := s.register(c)
	log.Info().Str("bout_id", boutID).Int("connection_count", count).Msg("ws_client_joined")

	go s.writeLoop(c)
	s.sendState(c)
	s.broadcastCount(boutID)
	s.readLoop(c)
}

func (s *Server) register(c *Client) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.bouts[c.boutID]
	if set == nil {
		set = map[*Client]struct{}{}
		s.bouts[c.boutID] = set
	}
	set[c] = struct{}{}
	clientsGauge.Inc()
	return len(set)
}

// ConnectionCount returns the number of live clients attached to the bout.
func (s *Server) ConnectionCount(boutID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bouts[boutID])
}

func (s *Server) clients(boutID string) []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Client, 0, len(s.bouts[boutID]))
	for c := range s.bouts[boutID] {
		out = append(out, c)
	}
	return out
}

func (s *Server) readLoop(c *Client) {
	defer s.evict(c, "closed")
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(c, raw)
	}
}

func (s *Server) handleMessage(c *Client, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug().Err(err).Str("bout_id", c.boutID).Msg("ws_malformed_message")
		return
	}
	switch msg.Type {
	case TypePong:
		c.touch(s.now())
	case TypePing:
		c.touch(s.now())
		s.enqueue(c, mustMarshal(Heartbeat{Type: TypePong}))
	case TypeRequestSync:
		if msg.RoundNumber != nil && *msg.RoundNumber >= 0 {
			c.setRound(*msg.RoundNumber)
		}
		s.sendState(c)
	case TypeSetRound:
		if msg.RoundNumber == nil || *msg.RoundNumber < 0 {
			log.Debug().Str("bout_id", c.boutID).Msg("ws_set_round_without_round")
			return
		}
		c.setRound(*msg.RoundNumber)
		s.sendState(c)
	default:
		log.Debug().Str("bout_id", c.boutID).Str("type", msg.Type).Msg("ws_unknown_message")
	}
}

func (s *Server) writeLoop(c *Client) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	ping := mustMarshal(Heartbeat{Type: TypePing})
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.evict(c, "write_failed")
				return
			}
		case <-ticker.C:
			if c.silentSince(s.now()) > s.cfg.PongTimeout {
				s.evict(c, "pong_timeout")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				s.evict(c, "write_failed")
				return
			}
		}
	}
}

// enqueue never blocks: a client whose queue is full is evicted.
func (s *Server) enqueue(c *Client, msg []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
	default:
		s.evict(c, "send_queue_full")
	}
}

// evict detaches the client once and tells the rest of the bout.
func (s *Server) evict(c *Client, reason string) {
	first := false
	c.once.Do(func() {
		first = true
		close(c.done)
	})
	if !first {
		return
	}
	s.mu.Lock()
	if set := s.bouts[c.boutID]; set != nil {
		if _, ok := set[c]; ok {
			delete(set, c)
			clientsGauge.Dec()
		}
		if len(set) == 0 {
			delete(s.bouts, c.boutID)
		}
	}
	s.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	evictions.WithLabelValues(reason).Inc()
	log.Info().Str("bout_id", c.boutID).Str("reason", reason).Msg("ws_client_left")
	s.broadcastCount(c.boutID)
}

func (s *Server) sendState(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), stateTimeout)
	defer cancel()
	snap, err := s.state.State(ctx, c.boutID, c.roundFilter())
	if err != nil {
		log.Warn().Err(err).Str("bout_id", c.boutID).Msg("ws_state_sync_failed")
		return
	}
	s.enqueue(c, mustMarshal(StateSync{Type: TypeStateSync, Data: snap, ConnectionCount: s.ConnectionCount(c.boutID)}))
}

func (s *Server) broadcastCount(boutID string) {
	clients := s.clients(boutID)
	msg := mustMarshal(ConnectionCount{Type: TypeConnectionCount, Count: len(clients)})
	for _, c := range clients {
		s.enqueue(c, msg)
	}
}

func (s *Server) broadcast(boutID string, msg []byte) {
	for _, c := range s.clients(boutID) {
		s.enqueue(c, msg)
	}
}

// Run forwards bus notifications to attached clients until ctx ends.
func (s *Server) Run(ctx context.Context, bus *eventbus.Bus) {
	sub := bus.Subscribe(eventbus.KindIn(
		eventbus.KindEventAdded,
		eventbus.KindRoundComputed,
		eventbus.KindFightFinalized,
	))
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-sub.C():
			if !ok {
				return
			}
			msg, ok := encodeNotification(n)
			if !ok {
				log.Debug().Str("kind", string(n.Kind)).Msg("ws_unexpected_notification")
				continue
			}
			s.broadcast(n.BoutID, msg)
		}
	}
}

func encodeNotification(n eventbus.Notification) ([]byte, bool) {
	switch data := n.Data.(type) {
	case domain.Event:
		return mustMarshal(EventAdded{Type: TypeEventAdded, Event: data}), true
	case domain.RoundResult:
		return mustMarshal(RoundComputed{Type: TypeRoundComputed, Result: data}), true
	case domain.FightResult:
		return mustMarshal(FightFinalized{Type: TypeFightFinalized, Result: data}), true
	default:
		return nil, false
	}
}

// Close evicts every client.
func (s *Server) Close() {
	s.mu.Lock()
	var all []*Client
	for _, set := range s.bouts {
		for c := range set {
			all = append(all, c)
		}
	}
	s.mu.Unlock()
	for _, c := range all {
		s.evict(c, "shutdown")
	}
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("ws_marshal_failed")
		return []byte(`{"type":"error"}`)
	}
	return b
}
