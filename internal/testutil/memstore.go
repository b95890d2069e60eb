package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cageside/internal/domain"
	"cageside/internal/store"
)

// MemStore is an in-memory stand-in for *store.Store with the same
// semantics on natural keys and idempotency tokens.
type MemStore struct {
	mu sync.Mutex

	bouts        map[string]domain.Bout
	events       []domain.Event
	byKey        map[string]int
	roundResults map[string]domain.RoundResult
	fightResults map[string]domain.FightResult
	roundStats   map[string]domain.RoundStats
	fightStats   map[string]domain.FightStats
	careerStats  map[string]domain.CareerStats
	jobs         []domain.AggregationJob

	// Fail makes the named method return the error. FailIf narrows the
	// failure to calls whose key matches.
	Fail   map[string]error
	FailIf func(method, key string) error

	Now func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		bouts:        map[string]domain.Bout{},
		byKey:        map[string]int{},
		roundResults: map[string]domain.RoundResult{},
		fightResults: map[string]domain.FightResult{},
		roundStats:   map[string]domain.RoundStats{},
		fightStats:   map[string]domain.FightStats{},
		careerStats:  map[string]domain.CareerStats{},
		Fail:         map[string]error{},
		Now:          time.Now,
	}
}

func (m *MemStore) fail(method, key string) error {
	if err := m.Fail[method]; err != nil {
		return err
	}
	if m.FailIf != nil {
		return m.FailIf(method, key)
	}
	return nil
}

func (m *MemStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail("Ping", "")
}

func (m *MemStore) GetBout(ctx context.Context, id string) (*domain.Bout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetBout", id); err != nil {
		return nil, err
	}
	b, ok := m.bouts[id]
	if !ok {
		return nil, domain.NotFound("bout", id)
	}
	return &b, nil
}

func (m *MemStore) EnsureBout(ctx context.Context, b domain.Bout) (*domain.Bout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("EnsureBout", b.ID); err != nil {
		return nil, err
	}
	if existing, ok := m.bouts[b.ID]; ok {
		return &existing, nil
	}
	if b.Status == "" {
		b.Status = "scheduled"
	}
	b.CreatedAt = m.Now().UTC()
	m.bouts[b.ID] = b
	return &b, nil
}

func (m *MemStore) SetBoutStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bouts[id]
	if !ok {
		return domain.NotFound("bout", id)
	}
	b.Status = status
	m.bouts[id] = b
	return nil
}

func (m *MemStore) ListBoutsWithRoundStats(ctx context.Context) ([]domain.Bout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListBoutsWithRoundStats", ""); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []domain.Bout
	for _, rs := range m.roundStats {
		if seen[rs.BoutID] {
			continue
		}
		seen[rs.BoutID] = true
		out = append(out, m.bouts[rs.BoutID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) InsertEvent(ctx context.Context, ev domain.Event) (domain.Event, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("InsertEvent", ev.IdempotencyKey); err != nil {
		return domain.Event{}, false, err
	}
	if ev.IdempotencyKey != "" {
		if idx, ok := m.byKey[ev.IdempotencyKey]; ok {
			existing := m.events[idx]
			if existing.RequestHash != ev.RequestHash {
				return domain.Event{}, false, domain.ErrIdempotencyConflict
			}
			return existing, false, nil
		}
	}
	if ev.ID == "" {
		ev.ID = store.NewID()
	}
	if len(ev.Metadata) == 0 {
		ev.Metadata = []byte("{}")
	}
	ev.Acked = false
	ev.CreatedAt = m.Now().UTC()
	m.events = append(m.events, ev)
	if ev.IdempotencyKey != "" {
		m.byKey[ev.IdempotencyKey] = len(m.events) - 1
	}
	return ev, true, nil
}

func (m *MemStore) GetEventByIdempotencyKey(ctx context.Context, key string) (*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.byKey[key]
	if !ok {
		return nil, domain.NotFound("event", key)
	}
	ev := m.events[idx]
	return &ev, nil
}

func (m *MemStore) ListEvents(ctx context.Context, boutID string, round int) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListEvents", fmt.Sprintf("%s/%d", boutID, round)); err != nil {
		return nil, err
	}
	out := []domain.Event{}
	for _, ev := range m.events {
		if ev.BoutID == boutID && (round == 0 || ev.RoundNumber == round) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) ListEventRounds(ctx context.Context, boutID string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[int]bool{}
	var out []int
	for _, ev := range m.events {
		if ev.BoutID == boutID && !seen[ev.RoundNumber] {
			seen[ev.RoundNumber] = true
			out = append(out, ev.RoundNumber)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (m *MemStore) MarkEventAcked(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].Acked = true
			return nil
		}
	}
	return domain.NotFound("event", id)
}

// EventCount returns the number of stored events.
func (m *MemStore) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func roundKey(bout string, round int) string { return fmt.Sprintf("%s/%d", bout, round) }

func (m *MemStore) UpsertRoundResult(ctx context.Context, r domain.RoundResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertRoundResult", roundKey(r.BoutID, r.RoundNumber)); err != nil {
		return err
	}
	m.roundResults[roundKey(r.BoutID, r.RoundNumber)] = r
	return nil
}

func (m *MemStore) GetRoundResult(ctx context.Context, boutID string, round int) (*domain.RoundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roundResults[roundKey(boutID, round)]
	if !ok {
		return nil, domain.NotFound("round_result", roundKey(boutID, round))
	}
	return &r, nil
}

func (m *MemStore) ListRoundResults(ctx context.Context, boutID string) ([]domain.RoundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.RoundResult{}
	for _, r := range m.roundResults {
		if r.BoutID == boutID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

func (m *MemStore) UpsertFightResult(ctx context.Context, f domain.FightResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertFightResult", f.BoutID); err != nil {
		return err
	}
	m.fightResults[f.BoutID] = f
	return nil
}

func (m *MemStore) GetFightResult(ctx context.Context, boutID string) (*domain.FightResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fightResults[boutID]
	if !ok {
		return nil, domain.NotFound("fight_result", boutID)
	}
	return &f, nil
}

func (m *MemStore) ListSubjectOutcomes(ctx context.Context, subjectID string) ([]domain.SubjectOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SubjectOutcome
	for boutID, f := range m.fightResults {
		b, ok := m.bouts[boutID]
		if !ok {
			continue
		}
		corner, ok := b.CornerOf(subjectID)
		if !ok {
			continue
		}
		out = append(out, domain.SubjectOutcome{BoutID: boutID, Corner: corner, Winner: f.Winner})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BoutID < out[j].BoutID })
	return out, nil
}

func statsKey(parts ...any) string { return fmt.Sprint(parts...) }

func (m *MemStore) UpsertRoundStats(ctx context.Context, r domain.RoundStats) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := statsKey(r.BoutID, "/", r.RoundNumber, "/", r.SubjectID)
	if err := m.fail("UpsertRoundStats", key); err != nil {
		return false, err
	}
	_, exists := m.roundStats[key]
	r.UpdatedAt = m.Now().UTC()
	m.roundStats[key] = r
	return !exists, nil
}

func (m *MemStore) GetRoundStats(ctx context.Context, boutID string, round int, subjectID string) (*domain.RoundStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := statsKey(boutID, "/", round, "/", subjectID)
	r, ok := m.roundStats[key]
	if !ok {
		return nil, domain.NotFound("round_stats", key)
	}
	return &r, nil
}

func (m *MemStore) ListRoundStats(ctx context.Context, boutID, subjectID string) ([]domain.RoundStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListRoundStats", boutID+"/"+subjectID); err != nil {
		return nil, err
	}
	var out []domain.RoundStats
	for _, r := range m.roundStats {
		if r.BoutID == boutID && r.SubjectID == subjectID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundNumber < out[j].RoundNumber })
	return out, nil
}

// RoundStatsCount returns the number of round_stats rows.
func (m *MemStore) RoundStatsCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.roundStats)
}

func (m *MemStore) UpsertFightStats(ctx context.Context, f domain.FightStats) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := f.BoutID + "/" + f.SubjectID
	if err := m.fail("UpsertFightStats", key); err != nil {
		return false, err
	}
	_, exists := m.fightStats[key]
	f.UpdatedAt = m.Now().UTC()
	m.fightStats[key] = f
	return !exists, nil
}

func (m *MemStore) GetFightStats(ctx context.Context, boutID, subjectID string) (*domain.FightStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fightStats[boutID+"/"+subjectID]
	if !ok {
		return nil, domain.NotFound("fight_stats", boutID+"/"+subjectID)
	}
	return &f, nil
}

func (m *MemStore) ListFightStatsForSubject(ctx context.Context, subjectID string) ([]domain.FightStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FightStats
	for _, f := range m.fightStats {
		if f.SubjectID == subjectID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BoutID < out[j].BoutID })
	return out, nil
}

func (m *MemStore) ListStatSubjects(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, f := range m.fightStats {
		if !seen[f.SubjectID] {
			seen[f.SubjectID] = true
			out = append(out, f.SubjectID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) UpsertCareerStats(ctx context.Context, c domain.CareerStats) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertCareerStats", c.SubjectID); err != nil {
		return false, err
	}
	_, exists := m.careerStats[c.SubjectID]
	c.UpdatedAt = m.Now().UTC()
	m.careerStats[c.SubjectID] = c
	return !exists, nil
}

func (m *MemStore) GetCareerStats(ctx context.Context, subjectID string) (*domain.CareerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.careerStats[subjectID]
	if !ok {
		return nil, domain.NotFound("career_stats", subjectID)
	}
	return &c, nil
}

func (m *MemStore) CreateJob(ctx context.Context, j domain.AggregationJob) (domain.AggregationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateJob", string(j.JobType)); err != nil {
		return domain.AggregationJob{}, err
	}
	if j.ID == "" {
		j.ID = store.NewID()
	}
	if j.Status == "" {
		j.Status = domain.JobPending
	}
	if j.Errors == nil {
		j.Errors = []string{}
	}
	if j.Warnings == nil {
		j.Warnings = []string{}
	}
	j.CreatedAt = m.Now().UTC()
	m.jobs = append(m.jobs, j)
	return j, nil
}

func (m *MemStore) UpdateJob(ctx context.Context, j domain.AggregationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.jobs {
		if m.jobs[i].ID != j.ID {
			continue
		}
		if m.jobs[i].Status.Terminal() {
			return store.ErrJobTerminal
		}
		j.CreatedAt = m.jobs[i].CreatedAt
		m.jobs[i] = j
		return nil
	}
	return domain.NotFound("job", j.ID)
}

func (m *MemStore) GetJob(ctx context.Context, id string) (*domain.AggregationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			return &j, nil
		}
	}
	return nil, domain.NotFound("job", id)
}

// ListJobs returns jobs newest first.
func (m *MemStore) ListJobs(ctx context.Context, limit, offset int) ([]domain.AggregationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.AggregationJob{}
	for i := len(m.jobs) - 1; i >= 0; i-- {
		out = append(out, m.jobs[i])
	}
	if offset >= len(out) {
		return []domain.AggregationJob{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Jobs returns every job in creation order.
func (m *MemStore) Jobs() []domain.AggregationJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AggregationJob(nil), m.jobs...)
}
