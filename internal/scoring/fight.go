package scoring

import (
	"sort"
	"time"

	"cageside/internal/domain"
)

// ComputeFight sums the 10-point round scores. Rounds are ordered by number.
func ComputeFight(boutID string, rounds []domain.RoundResult, at time.Time) domain.FightResult {
	ordered := append([]domain.RoundResult(nil), rounds...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].RoundNumber < ordered[j].RoundNumber })

	out := domain.FightResult{BoutID: boutID, Rounds: ordered, FinalizedAt: at.UTC()}
	for _, r := range ordered {
		out.FinalRed += r.RedScore
		out.FinalBlue += r.BlueScore
	}
	switch {
	case out.FinalRed > out.FinalBlue:
		out.Winner = domain.WinnerRed
	case out.FinalBlue > out.FinalRed:
		out.Winner = domain.WinnerBlue
	default:
		out.Winner = domain.WinnerDraw
	}
	return out
}
