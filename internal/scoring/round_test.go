package scoring

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"cageside/internal/domain"
)

func ev(id string, corner domain.Corner, typ string, value float64, at time.Time) domain.Event {
	return domain.Event{
		ID:          id,
		BoutID:      "b1",
		RoundNumber: 1,
		Corner:      corner,
		Aspect:      domain.AspectStriking,
		EventType:   typ,
		Value:       value,
		CreatedAt:   at,
	}
}

func TestLoserScoreThresholds(t *testing.T) {
	cases := []struct {
		delta float64
		want  int
	}{
		{0, 10},
		{3.0, 10},
		{3.01, 9},
		{139.99, 9},
		{140.0, 8},
		{199.99, 8},
		{200.0, 7},
		{1000, 7},
	}
	for _, tc := range cases {
		if got := LoserScore(tc.delta); got != tc.want {
			t.Fatalf("delta %.2f: expected 10-%d, got 10-%d", tc.delta, tc.want, got)
		}
	}
}

func TestComputeRoundJabCrossExample(t *testing.T) {
	base := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	events := []domain.Event{
		ev("01", domain.CornerRed, "JAB", 10, base),
		ev("02", domain.CornerRed, "JAB", 10, base.Add(time.Second)),
		ev("03", domain.CornerRed, "JAB", 10, base.Add(2*time.Second)),
		ev("04", domain.CornerBlue, "CROSS", 14, base.Add(3*time.Second)),
	}
	res := ComputeRound("b1", 1, events)
	if res.RedPoints != 30 || res.BluePoints != 14 || res.Delta != 16 {
		t.Fatalf("unexpected totals: %+v", res)
	}
	if res.RedScore != 10 || res.BlueScore != 9 || res.Winner != domain.WinnerRed {
		t.Fatalf("expected 10-9 red, got %d-%d %s", res.RedScore, res.BlueScore, res.Winner)
	}
	if res.ScoreLabel() != "10-9" {
		t.Fatalf("unexpected label %q", res.ScoreLabel())
	}
	if res.RedBreakdown["JAB"].Count != 3 || res.RedBreakdown["JAB"].Points != 30 {
		t.Fatalf("unexpected red breakdown: %+v", res.RedBreakdown)
	}
	if res.TotalEvents != 4 {
		t.Fatalf("expected 4 events, got %d", res.TotalEvents)
	}
}

func TestComputeRoundBlueWinsAndDraw(t *testing.T) {
	base := time.Now().UTC()
	blue := ComputeRound("b1", 1, []domain.Event{
		ev("01", domain.CornerBlue, "KNOCKDOWN", 60, base),
		ev("02", domain.CornerBlue, "HEAD_KICK", 22, base),
		ev("03", domain.CornerBlue, "SPINNING_STRIKE", 20, base),
		ev("04", domain.CornerBlue, "KNOCKDOWN", 60, base),
	})
	if blue.Winner != domain.WinnerBlue || blue.BlueScore != 10 || blue.RedScore != 8 {
		t.Fatalf("expected blue 10-8, got %+v", blue)
	}

	draw := ComputeRound("b1", 1, []domain.Event{
		ev("01", domain.CornerRed, "JAB", 10, base),
		ev("02", domain.CornerBlue, "LEG_KICK", 10, base),
	})
	if draw.Winner != domain.WinnerDraw || draw.RedScore != 10 || draw.BlueScore != 10 {
		t.Fatalf("expected draw, got %+v", draw)
	}

	empty := ComputeRound("b1", 2, nil)
	if empty.Winner != domain.WinnerDraw || empty.TotalEvents != 0 {
		t.Fatalf("expected empty draw, got %+v", empty)
	}
}

func TestComputeRoundIgnoresOtherRounds(t *testing.T) {
	base := time.Now().UTC()
	other := ev("02", domain.CornerBlue, "CROSS", 14, base)
	other.RoundNumber = 2
	res := ComputeRound("b1", 1, []domain.Event{ev("01", domain.CornerRed, "JAB", 10, base), other})
	if res.TotalEvents != 1 || res.BluePoints != 0 {
		t.Fatalf("expected only round 1 events, got %+v", res)
	}
}

func TestComputeRoundDeterministicJSON(t *testing.T) {
	base := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	events := []domain.Event{
		ev("01", domain.CornerRed, "JAB", 10, base),
		ev("02", domain.CornerBlue, "CROSS", 14, base),
		ev("03", domain.CornerRed, "HOOK", 14, base.Add(time.Second)),
		ev("04", domain.CornerBlue, "BODY_KICK", 14, base.Add(time.Second)),
		ev("05", domain.CornerRed, "KNEE", 16, base.Add(2*time.Second)),
	}
	first, err := json.Marshal(ComputeRound("b1", 1, events))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	reversed := make([]domain.Event, len(events))
	for i := range events {
		reversed[len(events)-1-i] = events[i]
	}
	for i := 0; i < 20; i++ {
		in := events
		if i%2 == 1 {
			in = reversed
		}
		got, err := json.Marshal(ComputeRound("b1", 1, in))
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !bytes.Equal(first, got) {
			t.Fatalf("non-deterministic result:\n%s\n%s", first, got)
		}
	}
}

func TestComputeRoundFloatNoise(t *testing.T) {
	base := time.Now().UTC()
	var events []domain.Event
	for i := 0; i < 10; i++ {
		events = append(events, ev(string(rune('a'+i)), domain.CornerRed, "X", 0.1, base))
	}
	events = append(events, ev("z", domain.CornerBlue, "X", 4.0, base))
	res := ComputeRound("b1", 1, events)
	if res.RedPoints != 1 || res.Delta != 3 || res.Winner != domain.WinnerDraw {
		t.Fatalf("expected rounded delta 3 draw, got %+v", res)
	}
}

func TestComputeFightSumsRoundScores(t *testing.T) {
	rounds := []domain.RoundResult{
		{RoundNumber: 2, RedScore: 9, BlueScore: 10},
		{RoundNumber: 1, RedScore: 10, BlueScore: 9},
		{RoundNumber: 3, RedScore: 10, BlueScore: 8},
	}
	at := time.Now()
	fight := ComputeFight("b1", rounds, at)
	if fight.FinalRed != 29 || fight.FinalBlue != 27 || fight.Winner != domain.WinnerRed {
		t.Fatalf("unexpected fight result: %+v", fight)
	}
	if fight.Rounds[0].RoundNumber != 1 || fight.Rounds[2].RoundNumber != 3 {
		t.Fatalf("rounds not ordered: %+v", fight.Rounds)
	}
	even := ComputeFight("b1", []domain.RoundResult{{RoundNumber: 1, RedScore: 10, BlueScore: 10}}, at)
	if even.Winner != domain.WinnerDraw {
		t.Fatalf("expected draw, got %s", even.Winner)
	}
}

func TestWeightsLookup(t *testing.T) {
	if v, ok := DefaultWeights.Lookup(domain.AspectStriking, "JAB"); !ok || v != 10 {
		t.Fatalf("expected jab=10, got %v %v", v, ok)
	}
	if v, ok := DefaultWeights.Lookup(domain.AspectStriking, "CROSS"); !ok || v != 14 {
		t.Fatalf("expected cross=14, got %v %v", v, ok)
	}
	if _, ok := DefaultWeights.Lookup(domain.AspectGrappling, "JAB"); ok {
		t.Fatalf("jab must not be a grappling event")
	}
}
