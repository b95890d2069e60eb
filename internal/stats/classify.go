// Package stats rolls judging events up into round, fight and career
// statistics.
package stats

import (
	"sort"
	"strconv"
	"time"

	"cageside/internal/domain"
)

const defaultControlType = "ground"

var landedStrikes = map[string]bool{
	"JAB":             true,
	"CROSS":           true,
	"HOOK":            true,
	"UPPERCUT":        true,
	"BODY_SHOT":       true,
	"LEG_KICK":        true,
	"BODY_KICK":       true,
	"HEAD_KICK":       true,
	"KNEE":            true,
	"ELBOW":           true,
	"SPINNING_STRIKE": true,
}

// Effect is what a single event contributes to round statistics.
type Effect struct {
	StrikeAttempted   bool
	StrikeLanded      bool
	Significant       bool
	Knockdown         bool
	TakedownAttempted bool
	TakedownLanded    bool
	SubmissionAttempt bool
	ControlStart      bool
	ControlStop       bool
	ControlType       string
}

// Classify maps an event onto its statistical effect.
func Classify(ev domain.Event) Effect {
	meta := ev.MetadataMap()
	significant := true
	if v, ok := meta["significant"].(bool); ok && !v {
		significant = false
	}
	switch {
	case landedStrikes[ev.EventType]:
		return Effect{StrikeAttempted: true, StrikeLanded: true, Significant: significant}
	case ev.EventType == "STRIKE_MISSED":
		return Effect{StrikeAttempted: true, Significant: significant}
	case ev.EventType == "KNOCKDOWN":
		return Effect{StrikeAttempted: true, StrikeLanded: true, Significant: true, Knockdown: true}
	case ev.EventType == "TAKEDOWN":
		return Effect{TakedownAttempted: true, TakedownLanded: true}
	case ev.EventType == "TAKEDOWN_ATTEMPT":
		return Effect{TakedownAttempted: true}
	case ev.EventType == "SUBMISSION_ATTEMPT":
		return Effect{SubmissionAttempt: true}
	case ev.EventType == "CONTROL_START":
		return Effect{ControlStart: true, ControlType: controlType(meta)}
	case ev.EventType == "CONTROL_STOP":
		return Effect{ControlStop: true, ControlType: controlType(meta)}
	default:
		return Effect{}
	}
}

func controlType(meta map[string]any) string {
	if v, ok := meta["control_type"].(string); ok && v != "" {
		return v
	}
	return defaultControlType
}

// EffectiveTime is metadata.client_ts_ms when present, else created_at.
func EffectiveTime(ev domain.Event) time.Time {
	switch v := ev.MetadataMap()["client_ts_ms"].(type) {
	case float64:
		return time.UnixMilli(int64(v)).UTC()
	case string:
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	}
	return ev.CreatedAt
}

// PairControl sums control time per control type. Unmatched STARTs and
// STOPs are reported as warnings and never fail the caller.
func PairControl(events []domain.Event) (map[string]float64, []string) {
	type timed struct {
		at  time.Time
		id  string
		eff Effect
	}
	var seq []timed
	for _, ev := range events {
		eff := Classify(ev)
		if eff.ControlStart || eff.ControlStop {
			seq = append(seq, timed{at: EffectiveTime(ev), id: ev.ID, eff: eff})
		}
	}
	sort.SliceStable(seq, func(i, j int) bool {
		if !seq[i].at.Equal(seq[j].at) {
			return seq[i].at.Before(seq[j].at)
		}
		return seq[i].id < seq[j].id
	})

	totals := map[string]float64{}
	open := map[string]timed{}
	var warnings []string
	for _, t := range seq {
		typ := t.eff.ControlType
		if t.eff.ControlStart {
			if prev, ok := open[typ]; ok {
				warnings = append(warnings, "CONTROL_START "+prev.id+" ("+typ+") superseded by "+t.id)
			}
			open[typ] = t
			continue
		}
		start, ok := open[typ]
		if !ok {
			warnings = append(warnings, "CONTROL_STOP "+t.id+" ("+typ+") has no open CONTROL_START")
			continue
		}
		delete(open, typ)
		totals[typ] += t.at.Sub(start.at).Seconds()
	}
	openTypes := make([]string, 0, len(open))
	for typ := range open {
		openTypes = append(openTypes, typ)
	}
	sort.Strings(openTypes)
	for _, typ := range openTypes {
		warnings = append(warnings, "CONTROL_START "+open[typ].id+" ("+typ+") never stopped")
	}
	return totals, warnings
}
