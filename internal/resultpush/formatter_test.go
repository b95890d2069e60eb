package resultpush

import (
	"strings"
	"testing"
	"time"

	"cageside/internal/domain"
)

func TestFormatRoundMessage(t *testing.T) {
	r := domain.RoundResult{
		BoutID: "b1", RoundNumber: 2, RedPoints: 12.5, BluePoints: 4, Delta: 8.5,
		RedScore: 10, BlueScore: 9, Winner: domain.WinnerRed,
		RedBreakdown: map[string]domain.BreakdownEntry{
			"JAB":      {Count: 3, Points: 3},
			"TAKEDOWN": {Count: 1, Points: 5},
		},
	}
	msg, ok := FormatMessage(ResultEvent{EventID: "42", BoutID: "b1", Round: &r, At: time.Unix(0, 0)})
	if !ok {
		t.Fatal("expected formatted message")
	}
	if msg.Title != "Bout b1 · Round 2" || msg.Content != "Round 2: RED 10-9" {
		t.Fatalf("unexpected title/content %q %q", msg.Title, msg.Content)
	}
	if msg.Color != colorRed || msg.PanelKey != "b1" || msg.Footer != "event 42" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !strings.HasPrefix(msg.Description, "Red: TAKEDOWN×1, JAB×3\nBlue: -") {
		t.Fatalf("unexpected breakdown %q", msg.Description)
	}
	if msg.Fields[0].Value != "12.5" || msg.Fields[2].Value != "8.5" {
		t.Fatalf("unexpected fields %+v", msg.Fields)
	}
	if _, ok := msg.Payload.(domain.RoundResult); !ok {
		t.Fatalf("payload should be the round result, got %T", msg.Payload)
	}
}

func TestFormatFightMessage(t *testing.T) {
	f := domain.FightResult{
		BoutID: "b1", FinalRed: 28, FinalBlue: 28, Winner: domain.WinnerDraw,
		Rounds: []domain.RoundResult{
			{RoundNumber: 1, RedScore: 10, BlueScore: 9},
			{RoundNumber: 2, RedScore: 9, BlueScore: 10},
			{RoundNumber: 3, RedScore: 9, BlueScore: 9},
		},
	}
	msg, ok := FormatMessage(ResultEvent{BoutID: "b1", Fight: &f})
	if !ok {
		t.Fatal("expected formatted message")
	}
	if msg.Content != "Final: draw 28-28" || msg.Color != colorDraw {
		t.Fatalf("unexpected content %q color %x", msg.Content, msg.Color)
	}
	if len(msg.Fields) != 3 || msg.Fields[1].Value != "9-10" {
		t.Fatalf("unexpected fields %+v", msg.Fields)
	}
}

func TestFormatMessageIgnoresEmptyEvent(t *testing.T) {
	if _, ok := FormatMessage(ResultEvent{BoutID: "b1"}); ok {
		t.Fatal("event without result must not format")
	}
}
