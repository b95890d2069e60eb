package spectatorgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cageside/internal/app/scoring"
	"cageside/internal/domain"
	"cageside/internal/testutil"
)

func TestSpectatorStateFiltersRound(t *testing.T) {
	st := testutil.NewMemStore()
	ctx := context.Background()
	if _, err := st.EnsureBout(ctx, domain.Bout{ID: "b1", RedFighterID: "r", BlueFighterID: "b", ScheduledRounds: 3}); err != nil {
		t.Fatalf("ensure bout: %v", err)
	}
	for _, round := range []int{1, 2} {
		if _, _, err := st.InsertEvent(ctx, domain.Event{BoutID: "b1", RoundNumber: round, Corner: domain.CornerRed, Aspect: domain.AspectStriking, EventType: "JAB", Value: 10}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	svc := scoring.NewService(st, nil)

	req := httptest.NewRequest(http.MethodGet, "/spectate/state?bout_id=b1&round_number=2", nil)
	w := httptest.NewRecorder()
	StateHandler(svc).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	var body scoring.StateSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].RoundNumber != 2 {
		t.Fatalf("expected only round 2 events, got %+v", body.Events)
	}
}

func TestSpectatorStateErrors(t *testing.T) {
	svc := scoring.NewService(testutil.NewMemStore(), nil)
	cases := map[string]int{
		"/spectate/state":                          http.StatusBadRequest,
		"/spectate/state?bout_id=b1&round_number=x": http.StatusBadRequest,
		"/spectate/state?bout_id=missing":          http.StatusNotFound,
	}
	for url, want := range cases {
		w := httptest.NewRecorder()
		StateHandler(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
		if w.Code != want {
			t.Fatalf("%s: expected %d got %d", url, want, w.Code)
		}
	}
}
