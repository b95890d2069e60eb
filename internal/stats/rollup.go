package stats

import (
	"math"

	"cageside/internal/domain"
)

const (
	roundMinutes = 5.0
	roundSeconds = 300.0
)

// BuildRoundStats derives one subject's round row from the corner's events.
func BuildRoundStats(boutID string, round int, subjectID string, corner domain.Corner, events []domain.Event) (domain.RoundStats, []string) {
	out := domain.RoundStats{
		BoutID:        boutID,
		RoundNumber:   round,
		SubjectID:     subjectID,
		Corner:        corner,
		ControlByType: map[string]float64{},
	}
	var mine []domain.Event
	for _, ev := range events {
		if ev.BoutID != boutID || ev.RoundNumber != round || ev.Corner != corner {
			continue
		}
		mine = append(mine, ev)
		eff := Classify(ev)
		if eff.StrikeAttempted {
			out.StrikesAttempted++
			if eff.Significant {
				out.SigStrikesAttempted++
			}
		}
		if eff.StrikeLanded {
			out.StrikesLanded++
			if eff.Significant {
				out.SigStrikesLanded++
			}
		}
		if eff.Knockdown {
			out.Knockdowns++
		}
		if eff.TakedownAttempted {
			out.TakedownsAttempted++
		}
		if eff.TakedownLanded {
			out.TakedownsLanded++
		}
		if eff.SubmissionAttempt {
			out.SubmissionAttempts++
		}
	}
	out.EventsProcessed = len(mine)
	control, warnings := PairControl(mine)
	for typ, secs := range control {
		out.ControlByType[typ] = round2(secs)
		out.ControlSecs += secs
	}
	out.ControlSecs = round2(out.ControlSecs)
	return out, warnings
}

// SumFight adds up every round row of one subject in one bout and derives
// the fight ratios.
func SumFight(boutID, subjectID string, corner domain.Corner, rows []domain.RoundStats) domain.FightStats {
	out := domain.FightStats{
		BoutID:        boutID,
		SubjectID:     subjectID,
		Corner:        corner,
		Rounds:        len(rows),
		ControlByType: map[string]float64{},
	}
	for _, r := range rows {
		out.StrikesAttempted += r.StrikesAttempted
		out.StrikesLanded += r.StrikesLanded
		out.SigStrikesAttempted += r.SigStrikesAttempted
		out.SigStrikesLanded += r.SigStrikesLanded
		out.Knockdowns += r.Knockdowns
		out.TakedownsAttempted += r.TakedownsAttempted
		out.TakedownsLanded += r.TakedownsLanded
		out.SubmissionAttempts += r.SubmissionAttempts
		out.ControlSecs += r.ControlSecs
		for typ, secs := range r.ControlByType {
			out.ControlByType[typ] = round2(out.ControlByType[typ] + secs)
		}
	}
	out.ControlSecs = round2(out.ControlSecs)
	out.StrikeAccuracy = Accuracy(out.StrikesLanded, out.StrikesAttempted)
	out.SigStrikeAccuracy = Accuracy(out.SigStrikesLanded, out.SigStrikesAttempted)
	out.TakedownAccuracy = Accuracy(out.TakedownsLanded, out.TakedownsAttempted)
	if out.Rounds > 0 {
		out.StrikesPerMinute = round2(float64(out.StrikesLanded) / (float64(out.Rounds) * roundMinutes))
		out.ControlPct = round2(out.ControlSecs / (float64(out.Rounds) * roundSeconds) * 100)
	}
	return out
}

// SumCareer rolls fight rows into career totals. avg_sig_strike_accuracy is
// the mean of the per-fight accuracies; weighted_sig_strike_accuracy is
// total landed over total attempted.
func SumCareer(subjectID string, fights []domain.FightStats, outcomes []domain.SubjectOutcome) domain.CareerStats {
	out := domain.CareerStats{SubjectID: subjectID, TotalFights: len(fights)}
	var accSum, spmSum, ctlSum float64
	for _, f := range fights {
		out.TotalRounds += f.Rounds
		out.StrikesAttempted += f.StrikesAttempted
		out.StrikesLanded += f.StrikesLanded
		out.SigStrikesAttempted += f.SigStrikesAttempted
		out.SigStrikesLanded += f.SigStrikesLanded
		out.Knockdowns += f.Knockdowns
		out.TakedownsAttempted += f.TakedownsAttempted
		out.TakedownsLanded += f.TakedownsLanded
		out.SubmissionAttempts += f.SubmissionAttempts
		out.ControlSecs += f.ControlSecs
		accSum += f.SigStrikeAccuracy
		spmSum += f.StrikesPerMinute
		ctlSum += f.ControlPct
	}
	out.ControlSecs = round2(out.ControlSecs)
	if n := float64(len(fights)); n > 0 {
		out.AvgSigStrikeAccuracy = round2(accSum / n)
		out.AvgStrikesPerMinute = round2(spmSum / n)
		out.AvgControlPct = round2(ctlSum / n)
	}
	out.WeightedSigStrikeAccuracy = Accuracy(out.SigStrikesLanded, out.SigStrikesAttempted)
	for _, o := range outcomes {
		switch o.Result() {
		case "W":
			out.Wins++
		case "L":
			out.Losses++
		default:
			out.Draws++
		}
	}
	return out
}

// Accuracy is landed/attempted as a percentage, 0 when nothing was attempted.
func Accuracy(landed, attempted int) float64 {
	if attempted == 0 {
		return 0
	}
	return round2(float64(landed) / float64(attempted) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
