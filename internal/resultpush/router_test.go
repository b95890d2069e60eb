package resultpush

import "testing"

func TestRouterMatchTargets(t *testing.T) {
	targets := []PushTarget{
		{Platform: "a", Endpoint: "1", ScopeType: "all", Enabled: true},
		{Platform: "b", Endpoint: "2", ScopeType: "bout", ScopeValue: "b1", Enabled: true},
		{Platform: "c", Endpoint: "3", ScopeType: "bout", ScopeValue: "b2", Enabled: true},
		{Platform: "d", Endpoint: "4", ScopeType: "all", EventAllowlist: []string{"fight_finalized"}, Enabled: true},
		{Platform: "e", Endpoint: "5", ScopeType: "all", Enabled: false},
	}
	got := Router{}.MatchTargets(targets, ResultEvent{EventType: "round_computed", BoutID: "b1"})
	if len(got) != 2 || got[0].Platform != "a" || got[1].Platform != "b" {
		t.Fatalf("unexpected round match %+v", got)
	}
	got = Router{}.MatchTargets(targets, ResultEvent{EventType: "fight_finalized", BoutID: "b2"})
	if len(got) != 3 {
		t.Fatalf("unexpected fight match %+v", got)
	}
	if (Router{}).MatchTargets(nil, ResultEvent{}) != nil {
		t.Fatal("expected nil for no targets")
	}
}

func TestScopeBoutRequiresValue(t *testing.T) {
	if scopeMatches(PushTarget{ScopeType: "bout"}, ResultEvent{BoutID: ""}) {
		t.Fatal("bout scope without value must not match")
	}
}
