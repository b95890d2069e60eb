package reconnect

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FatalMessage is shown once every attempt has been used.
const FatalMessage = "connection lost — reload required"

var errConnectionLost = errors.New("connection lost")

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateBackoff      State = "backoff"
	StateFailed       State = "failed"
)

type Status struct {
	State     State
	Attempt   int
	NextDelay time.Duration
	LastError string
	Message   string
}

// Session is one live connection. Done closes when the connection drops.
type Session interface {
	Done() <-chan struct{}
	Close() error
}

type DialFunc func(ctx context.Context) (Session, error)

type Controller struct {
	dial    DialFunc
	policy  Policy
	clock   Clock
	onState func(Status)

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	status  Status
	timer   Timer
	session Session
	stopped bool
}

type Option func(*Controller)

func WithClock(c Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithStateHandler registers a callback for every state change. It runs
// outside the controller lock.
func WithStateHandler(fn func(Status)) Option {
	return func(ctl *Controller) { ctl.onState = fn }
}

func NewController(dial DialFunc, policy Policy, opts ...Option) *Controller {
	c := &Controller{
		dial:   dial,
		policy: policy,
		clock:  RealClock(),
		status: Status{State: StateDisconnected},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start makes the first dial on the calling goroutine. Later attempts run
// from backoff timers until Stop or ctx cancellation.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.ctx != nil || c.stopped {
		c.mu.Unlock()
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()
	go func() {
		<-c.ctx.Done()
		c.Stop()
	}()
	c.connect()
}

func (c *Controller) connect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	st := c.setLocked(Status{State: StateConnecting, Attempt: c.status.Attempt})
	ctx := c.ctx
	c.mu.Unlock()
	c.emit(st)

	sess, err := c.dial(ctx)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		if sess != nil {
			_ = sess.Close()
		}
		return
	}
	if err != nil {
		st = c.backoffLocked(err)
		c.mu.Unlock()
		c.emit(st)
		return
	}
	c.session = sess
	st = c.setLocked(Status{State: StateConnected})
	c.mu.Unlock()
	c.emit(st)
	log.Info().Str("policy", c.policy.Name).Msg("reconnect_connected")
	go c.watch(ctx, sess)
}

func (c *Controller) watch(ctx context.Context, sess Session) {
	select {
	case <-ctx.Done():
		return
	case <-sess.Done():
	}
	c.mu.Lock()
	if c.stopped || c.session != sess {
		c.mu.Unlock()
		return
	}
	c.session = nil
	st := c.backoffLocked(errConnectionLost)
	c.mu.Unlock()
	c.emit(st)
}

func (c *Controller) backoffLocked(err error) Status {
	attempt := c.status.Attempt + 1
	delay, ok := c.policy.Delay(attempt)
	if !ok {
		log.Error().Err(err).Str("policy", c.policy.Name).Int("attempts", attempt-1).Msg("reconnect_exhausted")
		return c.setLocked(Status{State: StateFailed, Attempt: attempt - 1, LastError: err.Error(), Message: FatalMessage})
	}
	log.Warn().Err(err).Str("policy", c.policy.Name).Int("attempt", attempt).Dur("delay", delay).Msg("reconnect_backoff")
	c.timer = c.clock.AfterFunc(delay, c.connect)
	return c.setLocked(Status{State: StateBackoff, Attempt: attempt, NextDelay: delay, LastError: err.Error()})
}

func (c *Controller) setLocked(st Status) Status {
	c.status = st
	return st
}

func (c *Controller) emit(st Status) {
	if c.onState != nil {
		c.onState(st)
	}
}

// Stop cancels pending timers and closes the live session.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	sess := c.session
	c.session = nil
	cancel := c.cancel
	failed := c.status.State == StateFailed
	var st Status
	if !failed {
		st = c.setLocked(Status{State: StateDisconnected})
	}
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if sess != nil {
		_ = sess.Close()
	}
	if !failed {
		c.emit(st)
	}
}
