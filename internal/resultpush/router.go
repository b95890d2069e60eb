package resultpush

import "strings"

type Router struct{}

func (r Router) MatchTargets(targets []PushTarget, ev ResultEvent) []PushTarget {
	if len(targets) == 0 {
		return nil
	}
	out := make([]PushTarget, 0, len(targets))
	for _, t := range targets {
		if !t.Enabled || !scopeMatches(t, ev) || !eventAllowed(t.EventAllowlist, ev.EventType) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func scopeMatches(t PushTarget, ev ResultEvent) bool {
	switch t.ScopeType {
	case "all":
		return true
	case "bout":
		return t.ScopeValue != "" && t.ScopeValue == ev.BoutID
	default:
		return false
	}
}

func eventAllowed(allowlist []string, evType string) bool {
	if len(allowlist) == 0 {
		return true
	}
	evType = strings.ToLower(strings.TrimSpace(evType))
	for _, v := range allowlist {
		if v != "" && strings.ToLower(strings.TrimSpace(v)) == evType {
			return true
		}
	}
	return false
}
