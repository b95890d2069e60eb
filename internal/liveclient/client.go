// Package liveclient keeps a display subscribed to the broadcast hub,
// reconnecting through reconnect.Controller when the socket drops.
package liveclient

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"sync"
	"time"

	"cageside/internal/reconnect"
	"cageside/internal/ws"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// Message is one server message with its type already decoded.
type Message struct {
	Type string
	Raw  json.RawMessage
}

type Config struct {
	URL         string
	BoutID      string
	RoundNumber int
	Policy      reconnect.Policy
	Clock       reconnect.Clock
	Dialer      *websocket.Dialer
	OnMessage   func(Message)
	OnState     func(reconnect.Status)
}

type Client struct {
	cfg  Config
	ctrl *reconnect.Controller

	mu    sync.Mutex
	round int
	conn  *session
}

func New(cfg Config) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = reconnect.LiveSubscriptionPolicy
	}
	c := &Client{cfg: cfg, round: cfg.RoundNumber}
	opts := []reconnect.Option{reconnect.WithStateHandler(c.handleState)}
	if cfg.Clock != nil {
		opts = append(opts, reconnect.WithClock(cfg.Clock))
	}
	c.ctrl = reconnect.NewController(c.dial, cfg.Policy, opts...)
	return c
}

func (c *Client) Start(ctx context.Context) { c.ctrl.Start(ctx) }

func (c *Client) Stop() { c.ctrl.Stop() }

func (c *Client) Status() reconnect.Status { return c.ctrl.Status() }

// SetRound switches the displayed round and tells the hub when connected.
func (c *Client) SetRound(round int) error {
	c.mu.Lock()
	c.round = round
	s := c.conn
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.writeJSON(ws.ClientMessage{Type: ws.TypeSetRound, RoundNumber: &round})
}

func (c *Client) Round() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

func (c *Client) handleState(st reconnect.Status) {
	if c.cfg.OnState != nil {
		c.cfg.OnState(st)
	}
}

func (c *Client) subscribeURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("bout_id", c.cfg.BoutID)
	if r := c.Round(); r > 0 {
		q.Set("round_number", strconv.Itoa(r))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) dial(ctx context.Context) (reconnect.Session, error) {
	target, err := c.subscribeURL()
	if err != nil {
		return nil, err
	}
	conn, _, err := c.cfg.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, err
	}
	s := &session{conn: conn, done: make(chan struct{})}
	c.mu.Lock()
	c.conn = s
	c.mu.Unlock()
	go c.readLoop(s)
	return s, nil
}

func (c *Client) readLoop(s *session) {
	defer func() {
		c.mu.Lock()
		if c.conn == s {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = s.Close()
	}()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("bout_id", c.cfg.BoutID).Msg("live_client_read_end")
			return
		}
		var base struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &base); err != nil {
			continue
		}
		switch base.Type {
		case ws.TypePing:
			if err := s.writeJSON(ws.Heartbeat{Type: ws.TypePong}); err != nil {
				return
			}
		case ws.TypeEventAdded:
			round := c.Round()
			if err := s.writeJSON(ws.ClientMessage{Type: ws.TypeRequestSync, RoundNumber: &round}); err != nil {
				return
			}
		}
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(Message{Type: base.Type, Raw: data})
		}
	}
}

type session struct {
	conn *websocket.Conn
	wmu  sync.Mutex
	done chan struct{}
	once sync.Once
}

func (s *session) Done() <-chan struct{} { return s.done }

func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		err = s.conn.Close()
		close(s.done)
	})
	return err
}

func (s *session) writeJSON(v any) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}
