package store

import (
	"encoding/json"
	"errors"
	"testing"

	"cageside/internal/domain"
)

func strikeEvent(bout string, round int, corner domain.Corner, typ string, value float64, key string) domain.Event {
	role := domain.RoleRedStriking
	if corner == domain.CornerBlue {
		role = domain.RoleBlueStriking
	}
	return domain.Event{
		BoutID:         bout,
		RoundNumber:    round,
		Corner:         corner,
		Aspect:         domain.AspectStriking,
		EventType:      typ,
		Value:          value,
		DeviceRole:     role,
		IdempotencyKey: key,
		RequestHash:    "h-" + key,
	}
}

func TestEnsureBoutIsIdempotent(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()

	first := mustCreateBout(t, st, ctx, "bout-1")
	again, err := st.EnsureBout(ctx, domain.Bout{ID: "bout-1", RedFighterID: "x", BlueFighterID: "y", ScheduledRounds: 5})
	if err != nil {
		t.Fatalf("ensure bout again: %v", err)
	}
	if again.RedFighterID != first.RedFighterID || again.ScheduledRounds != 3 {
		t.Fatalf("existing bout must not change: %+v", again)
	}
	if _, err := st.GetBout(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInsertEventIdempotencyKey(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()
	mustCreateBout(t, st, ctx, "bout-1")

	ev := strikeEvent("bout-1", 1, domain.CornerRed, "JAB", 10, "tok-1")
	ev.Metadata = json.RawMessage(`{"significant":false}`)
	stored := mustInsertEvent(t, st, ctx, ev)
	if stored.ID == "" || stored.CreatedAt.IsZero() || stored.Acked {
		t.Fatalf("unexpected stored event: %+v", stored)
	}

	dup, inserted, err := st.InsertEvent(ctx, ev)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if inserted || dup.ID != stored.ID {
		t.Fatalf("expected original event back, got inserted=%v %+v", inserted, dup)
	}

	conflict := ev
	conflict.RequestHash = "other"
	if _, _, err := st.InsertEvent(ctx, conflict); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}

	events, err := st.ListEvents(ctx, "bout-1", 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if m := events[0].MetadataMap(); m["significant"] != false {
		t.Fatalf("metadata not round-tripped: %v", m)
	}
}

func TestListEventsFiltersRoundAndMarksAcked(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()
	mustCreateBout(t, st, ctx, "bout-1")

	a := mustInsertEvent(t, st, ctx, strikeEvent("bout-1", 1, domain.CornerRed, "JAB", 10, ""))
	mustInsertEvent(t, st, ctx, strikeEvent("bout-1", 2, domain.CornerBlue, "CROSS", 14, ""))

	r1, err := st.ListEvents(ctx, "bout-1", 1)
	if err != nil {
		t.Fatalf("list round 1: %v", err)
	}
	if len(r1) != 1 || r1[0].ID != a.ID {
		t.Fatalf("unexpected round 1 events: %+v", r1)
	}
	rounds, err := st.ListEventRounds(ctx, "bout-1")
	if err != nil {
		t.Fatalf("list rounds: %v", err)
	}
	if len(rounds) != 2 || rounds[0] != 1 || rounds[1] != 2 {
		t.Fatalf("unexpected rounds: %v", rounds)
	}

	if err := st.MarkEventAcked(ctx, a.ID); err != nil {
		t.Fatalf("mark acked: %v", err)
	}
	if err := st.MarkEventAcked(ctx, a.ID); err != nil {
		t.Fatalf("mark acked twice: %v", err)
	}
	if err := st.MarkEventAcked(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	r1, _ = st.ListEvents(ctx, "bout-1", 1)
	if !r1[0].Acked {
		t.Fatalf("expected acked event")
	}
}
