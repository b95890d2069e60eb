package scoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"cageside/internal/domain"
	"cageside/internal/eventbus"
	"cageside/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTrigger struct {
	mu        sync.Mutex
	locked    []int
	postFight []string
}

func (r *recordingTrigger) TriggerRoundLocked(_ context.Context, _ string, round int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = append(r.locked, round)
	return nil
}

func (r *recordingTrigger) TriggerPostFight(_ context.Context, boutID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.postFight = append(r.postFight, boutID)
	return nil
}

func seed(t *testing.T, st *testutil.MemStore, round int, corner domain.Corner, typ string, value float64, n int) {
	t.Helper()
	ctx := context.Background()
	_, err := st.EnsureBout(ctx, domain.Bout{ID: "b1", RedFighterID: "red-x", BlueFighterID: "blue-y", ScheduledRounds: 3})
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, _, err := st.InsertEvent(ctx, domain.Event{
			BoutID:      "b1",
			RoundNumber: round,
			Corner:      corner,
			Aspect:      domain.AspectStriking,
			EventType:   typ,
			Value:       value,
		})
		require.NoError(t, err)
	}
}

func TestComputeRoundUpsertsAndPublishes(t *testing.T) {
	st := testutil.NewMemStore()
	bus := eventbus.New(10)
	defer bus.Close()
	sub := bus.Subscribe(eventbus.KindIn(eventbus.KindRoundComputed))
	defer sub.Close()
	svc := NewService(st, bus)

	seed(t, st, 1, domain.CornerRed, "JAB", 10, 3)
	seed(t, st, 1, domain.CornerBlue, "CROSS", 14, 1)

	res, err := svc.ComputeRound(context.Background(), "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, 10, res.RedScore)
	assert.Equal(t, 9, res.BlueScore)
	assert.Equal(t, domain.WinnerRed, res.Winner)

	n := <-sub.C()
	assert.Equal(t, 1, n.RoundNumber)

	for i := 0; i < 3; i++ {
		_, err := svc.ComputeRound(context.Background(), "b1", 1)
		require.NoError(t, err)
	}
	rows, err := st.ListRoundResults(context.Background(), "b1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestComputeRoundConcurrentCallersKeepOneRow(t *testing.T) {
	st := testutil.NewMemStore()
	svc := NewService(st, nil)
	seed(t, st, 2, domain.CornerBlue, "HEAD_KICK", 22, 2)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.ComputeRound(context.Background(), "b1", 2)
			assert.NoError(t, err)
			assert.Equal(t, domain.WinnerBlue, res.Winner)
		}()
	}
	wg.Wait()
	rows, _ := st.ListRoundResults(context.Background(), "b1")
	assert.Len(t, rows, 1)
}

// gatedStore holds ListEvents until released and fails it when the caller's
// context is already done.
type gatedStore struct {
	*testutil.MemStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) ListEvents(ctx context.Context, boutID string, round int) ([]domain.Event, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.MemStore.ListEvents(ctx, boutID, round)
}

func TestComputeRoundSurvivesFirstCallerCancel(t *testing.T) {
	mem := testutil.NewMemStore()
	seed(t, mem, 1, domain.CornerRed, "JAB", 10, 2)
	st := &gatedStore{MemStore: mem, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(st, nil)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.ComputeRound(firstCtx, "b1", 1)
		firstErr <- err
	}()
	<-st.entered

	secondErr := make(chan error, 1)
	go func() {
		_, err := svc.ComputeRound(context.Background(), "b1", 1)
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(st.release)

	require.NoError(t, <-firstErr)
	require.NoError(t, <-secondErr)
	rows, err := mem.ListRoundResults(context.Background(), "b1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestComputeRoundErrors(t *testing.T) {
	svc := NewService(testutil.NewMemStore(), nil)
	_, err := svc.ComputeRound(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.ComputeRound(context.Background(), "b1", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLockRoundFiresTrigger(t *testing.T) {
	st := testutil.NewMemStore()
	trig := &recordingTrigger{}
	svc := NewService(st, nil)
	svc.SetStatsTrigger(trig)
	seed(t, st, 1, domain.CornerRed, "JAB", 10, 1)

	_, err := svc.LockRound(context.Background(), "b1", 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, trig.locked)
}

func TestFinalizeFightSumsRoundScores(t *testing.T) {
	st := testutil.NewMemStore()
	trig := &recordingTrigger{}
	bus := eventbus.New(10)
	defer bus.Close()
	svc := NewService(st, bus)
	svc.SetStatsTrigger(trig)

	seed(t, st, 1, domain.CornerRed, "JAB", 10, 3)
	seed(t, st, 1, domain.CornerBlue, "CROSS", 14, 1)
	seed(t, st, 2, domain.CornerBlue, "KNOCKDOWN", 60, 3)
	seed(t, st, 3, domain.CornerRed, "HEAD_KICK", 22, 1)

	out, err := svc.FinalizeFight(context.Background(), "b1", false)
	require.NoError(t, err)
	assert.False(t, out.AlreadyFinalized)
	res := out.Result
	require.Len(t, res.Rounds, 3)
	sumRed, sumBlue := 0, 0
	for _, r := range res.Rounds {
		sumRed += r.RedScore
		sumBlue += r.BlueScore
	}
	assert.Equal(t, sumRed, res.FinalRed)
	assert.Equal(t, sumBlue, res.FinalBlue)
	// 10-9 red, 8-10 blue, 10-9 red
	assert.Equal(t, 28, res.FinalRed)
	assert.Equal(t, 28, res.FinalBlue)
	assert.Equal(t, domain.WinnerDraw, res.Winner)
	assert.Equal(t, []string{"b1"}, trig.postFight)

	seed(t, st, 3, domain.CornerRed, "JAB", 10, 1)
	again, err := svc.FinalizeFight(context.Background(), "b1", false)
	require.NoError(t, err)
	assert.True(t, again.AlreadyFinalized)
	assert.Equal(t, res.FinalRed, again.Result.FinalRed)

	re, err := svc.FinalizeFight(context.Background(), "b1", true)
	require.NoError(t, err)
	assert.False(t, re.AlreadyFinalized)
	assert.Len(t, trig.postFight, 2)

	bout, _ := st.GetBout(context.Background(), "b1")
	assert.Equal(t, "finalized", bout.Status)
}

func TestFinalizeFightWithoutEvents(t *testing.T) {
	st := testutil.NewMemStore()
	_, err := st.EnsureBout(context.Background(), domain.Bout{ID: "b1"})
	require.NoError(t, err)
	svc := NewService(st, nil)
	_, err = svc.FinalizeFight(context.Background(), "b1", false)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStateFiltersRound(t *testing.T) {
	st := testutil.NewMemStore()
	svc := NewService(st, nil)
	seed(t, st, 1, domain.CornerRed, "JAB", 10, 2)
	seed(t, st, 2, domain.CornerBlue, "JAB", 10, 1)
	_, err := svc.ComputeRound(context.Background(), "b1", 1)
	require.NoError(t, err)

	all, err := svc.State(context.Background(), "b1", 0)
	require.NoError(t, err)
	assert.Len(t, all.Events, 3)
	assert.Len(t, all.RoundResults, 1)
	assert.Nil(t, all.FightResult)

	r2, err := svc.State(context.Background(), "b1", 2)
	require.NoError(t, err)
	assert.Len(t, r2.Events, 1)
	assert.Equal(t, 2, r2.RoundFilter)
}
