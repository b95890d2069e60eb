package ws

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"cageside/internal/app/scoring"
	"cageside/internal/domain"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestWSProtocolSchema(t *testing.T) {
	compiler := jsonschema.NewCompiler()
	data, err := os.ReadFile("../../api/schema/ws_v1.schema.json")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if err := compiler.AddResource("ws_v1.schema.json", strings.NewReader(string(data))); err != nil {
		t.Fatalf("add resource: %v", err)
	}
	schema, err := compiler.Compile("ws_v1.schema.json")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	ev := domain.Event{
		ID: "01J0", BoutID: "b1", RoundNumber: 1, Corner: domain.CornerRed,
		Aspect: domain.AspectStriking, EventType: "JAB", Value: 10,
		DeviceRole: domain.RoleRedStriking, Metadata: json.RawMessage(`{}`), CreatedAt: at,
	}
	round := domain.RoundResult{
		BoutID: "b1", RoundNumber: 1, RedPoints: 10, Delta: 10, RedScore: 10, BlueScore: 9,
		Winner:        domain.WinnerRed,
		RedBreakdown:  map[string]domain.BreakdownEntry{"JAB": {Count: 1, Points: 10}},
		BlueBreakdown: map[string]domain.BreakdownEntry{},
		TotalEvents:   1,
	}
	fight := domain.FightResult{BoutID: "b1", FinalRed: 10, FinalBlue: 9, Winner: domain.WinnerRed, Rounds: []domain.RoundResult{round}, FinalizedAt: at}

	samples := []any{
		StateSync{Type: TypeStateSync, ConnectionCount: 2, Data: &scoring.StateSnapshot{
			Bout:         domain.Bout{ID: "b1", RedFighterID: "r", BlueFighterID: "b"},
			Events:       []domain.Event{ev},
			RoundResults: []domain.RoundResult{round},
		}},
		EventAdded{Type: TypeEventAdded, Event: ev},
		RoundComputed{Type: TypeRoundComputed, Result: round},
		FightFinalized{Type: TypeFightFinalized, Result: fight},
		ConnectionCount{Type: TypeConnectionCount, Count: 3},
		Heartbeat{Type: TypePing},
		Heartbeat{Type: TypePong},
	}
	raw := []string{
		`{"type":"request_sync"}`,
		`{"type":"set_round","round_number":2}`,
	}
	for _, s := range samples {
		b, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("marshal %T: %v", s, err)
		}
		raw = append(raw, string(b))
	}

	for i, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			t.Fatalf("unmarshal sample %d: %v", i, err)
		}
		if err := schema.Validate(v); err != nil {
			t.Fatalf("schema validate sample %d (%s): %v", i, s, err)
		}
	}

	var bad any
	_ = json.Unmarshal([]byte(`{"type":"connection_count"}`), &bad)
	if err := schema.Validate(bad); err == nil {
		t.Fatal("expected connection_count without count to fail validation")
	}
}
