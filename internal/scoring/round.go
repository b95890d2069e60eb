// Package scoring turns a round's events into a 10-point-must round score.
package scoring

import (
	"math"
	"sort"

	"cageside/internal/domain"
)

// Threshold maps an upper delta bound to the loser's round score.
type Threshold struct {
	MaxDelta  float64
	Inclusive bool
	Loser     int
}

// Thresholds are evaluated low to high; the first match wins and deltas
// beyond the last entry score 10-7.
var Thresholds = []Threshold{
	{MaxDelta: 3.0, Inclusive: true, Loser: 10},
	{MaxDelta: 140.0, Loser: 9},
	{MaxDelta: 200.0, Loser: 8},
}

const (
	winnerScore  = 10
	floorLoser   = 7
	drawMaxDelta = 3.0
)

// LoserScore maps a delta to the losing corner's score.
func LoserScore(delta float64) int {
	delta = Round2(delta)
	for _, th := range Thresholds {
		if delta < th.MaxDelta || (th.Inclusive && delta == th.MaxDelta) {
			return th.Loser
		}
	}
	return floorLoser
}

// Round2 rounds to two decimals to absorb float summation noise.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SortEvents orders events by (created_at, id) in place.
func SortEvents(events []domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})
}

// ComputeRound scores one round. Events belonging to other rounds or bouts
// are ignored. The input slice is not modified.
func ComputeRound(boutID string, round int, events []domain.Event) domain.RoundResult {
	ordered := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if ev.BoutID == boutID && ev.RoundNumber == round {
			ordered = append(ordered, ev)
		}
	}
	SortEvents(ordered)

	res := domain.RoundResult{
		BoutID:        boutID,
		RoundNumber:   round,
		RedBreakdown:  map[string]domain.BreakdownEntry{},
		BlueBreakdown: map[string]domain.BreakdownEntry{},
		TotalEvents:   len(ordered),
	}
	for _, ev := range ordered {
		bd := res.RedBreakdown
		if ev.Corner == domain.CornerRed {
			res.RedPoints += ev.Value
		} else {
			res.BluePoints += ev.Value
			bd = res.BlueBreakdown
		}
		entry := bd[ev.EventType]
		entry.Count++
		entry.Points = Round2(entry.Points + ev.Value)
		bd[ev.EventType] = entry
	}
	res.RedPoints = Round2(res.RedPoints)
	res.BluePoints = Round2(res.BluePoints)
	res.Delta = Round2(math.Abs(res.RedPoints - res.BluePoints))

	switch {
	case res.Delta <= drawMaxDelta:
		res.RedScore, res.BlueScore, res.Winner = winnerScore, winnerScore, domain.WinnerDraw
	case res.RedPoints > res.BluePoints:
		res.RedScore, res.BlueScore, res.Winner = winnerScore, LoserScore(res.Delta), domain.WinnerRed
	default:
		res.RedScore, res.BlueScore, res.Winner = LoserScore(res.Delta), winnerScore, domain.WinnerBlue
	}
	return res
}
