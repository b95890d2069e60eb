package resultpush

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cageside/internal/domain"
	"cageside/internal/eventbus"
	"cageside/internal/resultpush/platforms"
)

type fakeAdapter struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	forceFail bool
	messages  []platforms.Message
	forgotten []string
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) Send(_ context.Context, _ string, _ string, msg platforms.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = append(f.messages, msg)
	if f.forceFail || f.calls <= f.failFirst {
		return errors.New("fail")
	}
	return nil
}

func (f *fakeAdapter) ForgetPanel(_ string, panelKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, panelKey)
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAdapter) Messages() []platforms.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]platforms.Message, len(f.messages))
	copy(out, f.messages)
	return out
}

func (f *fakeAdapter) Forgotten() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.forgotten...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestManager(cfg Config, fake *fakeAdapter) *Manager {
	m := NewManager(cfg)
	m.adapters = map[string]platforms.Adapter{"fake": fake}
	return m
}

func TestManagerRetryThenSuccess(t *testing.T) {
	cfg := Config{
		Enabled:   true,
		Targets:   []PushTarget{{Platform: "fake", Endpoint: "https://example.com", ScopeType: "all", Enabled: true}},
		Workers:   1,
		RetryMax:  2,
		RetryBase: 5 * time.Millisecond,
	}
	fake := &fakeAdapter{failFirst: 1}
	m := newTestManager(cfg, fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := eventbus.New(16)
	defer bus.Close()
	if err := m.Start(ctx, bus); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	ok := m.enqueue(pushJob{
		Target:    cfg.Targets[0],
		Event:     ResultEvent{EventType: "round_computed", BoutID: "b1"},
		Formatted: FormattedMessage{Title: "title", Description: "summary"},
	})
	if !ok {
		t.Fatal("expected enqueue success")
	}
	waitFor(t, "retry", func() bool { return fake.Calls() >= 2 })
	time.Sleep(30 * time.Millisecond)
	if got := fake.Calls(); got != 2 {
		t.Fatalf("expected exactly 2 calls, got %d", got)
	}
}

func TestManagerDropsAfterRetryMax(t *testing.T) {
	cfg := Config{
		Enabled:          true,
		Targets:          []PushTarget{{Platform: "fake", Endpoint: "https://example.com", ScopeType: "all", Enabled: true}},
		Workers:          1,
		RetryMax:         1,
		RetryBase:        2 * time.Millisecond,
		FailureThreshold: 10,
	}
	fake := &fakeAdapter{forceFail: true}
	m := newTestManager(cfg, fake)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := eventbus.New(16)
	defer bus.Close()
	if err := m.Start(ctx, bus); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.enqueue(pushJob{Target: cfg.Targets[0], Event: ResultEvent{BoutID: "b1"}})
	waitFor(t, "two attempts", func() bool { return fake.Calls() >= 2 })
	time.Sleep(30 * time.Millisecond)
	if got := fake.Calls(); got != 2 {
		t.Fatalf("expected one retry then drop, got %d calls", got)
	}
}

func TestManagerPushesBusResults(t *testing.T) {
	cfg := Config{
		Enabled: true,
		Targets: []PushTarget{
			{Platform: "fake", Endpoint: "https://a", ScopeType: "bout", ScopeValue: "b1", Enabled: true},
		},
		Workers:   1,
		RetryBase: time.Millisecond,
	}
	fake := &fakeAdapter{}
	m := newTestManager(cfg, fake)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := eventbus.New(16)
	defer bus.Close()
	if err := m.Start(ctx, bus); err != nil {
		t.Fatalf("start: %v", err)
	}

	round := domain.RoundResult{BoutID: "b1", RoundNumber: 1, RedScore: 10, BlueScore: 9, Winner: domain.WinnerRed}
	bus.Publish(eventbus.KindRoundComputed, "b2", 1, domain.RoundResult{BoutID: "b2", RoundNumber: 1})
	bus.Publish(eventbus.KindEventAdded, "b1", 1, domain.Event{ID: "e1"})
	bus.Publish(eventbus.KindRoundComputed, "b1", 1, round)
	bus.Publish(eventbus.KindFightFinalized, "b1", 0, domain.FightResult{BoutID: "b1", FinalRed: 10, FinalBlue: 9, Winner: domain.WinnerRed, Rounds: []domain.RoundResult{round}})

	waitFor(t, "two pushes", func() bool { return fake.Calls() >= 2 })
	msgs := fake.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected only b1 results, got %d", len(msgs))
	}
	if msgs[0].Title != "Bout b1 · Round 1" || msgs[1].Title != "Bout b1 · Final" {
		t.Fatalf("unexpected titles %q, %q", msgs[0].Title, msgs[1].Title)
	}
	if msgs[0].PanelKey != "b1" {
		t.Fatalf("unexpected panel key %q", msgs[0].PanelKey)
	}
	waitFor(t, "panel forgotten", func() bool { return len(fake.Forgotten()) == 1 })
}

func TestManagerDisabledIsNoop(t *testing.T) {
	fake := &fakeAdapter{}
	m := newTestManager(Config{Enabled: false}, fake)
	bus := eventbus.New(4)
	defer bus.Close()
	if err := m.Start(context.Background(), bus); err != nil {
		t.Fatalf("start: %v", err)
	}
	if bus.SubscriberCount() != 0 {
		t.Fatal("disabled manager must not subscribe")
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	m := NewManager(Config{FailureThreshold: 2, CircuitOpenDuration: time.Minute})
	now := time.Now()
	key := "fake|x|all|"
	m.afterFailure(key, now)
	if err := m.beforeSend(key, now); err != nil {
		t.Fatalf("breaker opened too early: %v", err)
	}
	m.afterFailure(key, now)
	if err := m.beforeSend(key, now.Add(time.Second)); !errors.Is(err, errCircuitOpen) {
		t.Fatalf("expected circuit open, got %v", err)
	}
	if err := m.beforeSend(key, now.Add(2*time.Minute)); err != nil {
		t.Fatalf("breaker should close after duration: %v", err)
	}
	m.afterFailure(key, now)
	m.afterSuccess(key)
	m.afterFailure(key, now)
	if err := m.beforeSend(key, now); err != nil {
		t.Fatalf("success must reset failures: %v", err)
	}
}

func TestRetryDelayDoubles(t *testing.T) {
	m := NewManager(Config{RetryBase: 100 * time.Millisecond})
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i, w := range want {
		if got := m.retryDelay(i + 1); got != w {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, w)
		}
	}
}
