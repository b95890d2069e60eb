package resultpush

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"cageside/internal/domain"
)

const (
	colorRed  = 0xD32F2F
	colorBlue = 0x1976D2
	colorDraw = 0x757575
)

// FormatMessage renders a result event. The panel key is the bout so every
// update for one bout edits the same scorecard message.
func FormatMessage(ev ResultEvent) (FormattedMessage, bool) {
	switch {
	case ev.Round != nil:
		r := *ev.Round
		return FormattedMessage{
			PanelKey:    ev.BoutID,
			Title:       fmt.Sprintf("Bout %s · Round %d", ev.BoutID, r.RoundNumber),
			Content:     fmt.Sprintf("Round %d: %s", r.RoundNumber, verdict(r.Winner, r.ScoreLabel())),
			Description: breakdownLine(r),
			Color:       winnerColor(r.Winner),
			Timestamp:   ev.At.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Footer:      "event " + ev.EventID,
			Fields: []MessageField{
				{Name: "Red points", Value: formatPoints(r.RedPoints), Inline: true},
				{Name: "Blue points", Value: formatPoints(r.BluePoints), Inline: true},
				{Name: "Delta", Value: formatPoints(r.Delta), Inline: true},
			},
			Payload: r,
		}, true
	case ev.Fight != nil:
		f := *ev.Fight
		fields := make([]MessageField, 0, len(f.Rounds))
		for _, r := range f.Rounds {
			fields = append(fields, MessageField{
				Name:   "Round " + strconv.Itoa(r.RoundNumber),
				Value:  fmt.Sprintf("%d-%d", r.RedScore, r.BlueScore),
				Inline: true,
			})
		}
		return FormattedMessage{
			PanelKey:    ev.BoutID,
			Title:       fmt.Sprintf("Bout %s · Final", ev.BoutID),
			Content:     "Final: " + verdict(f.Winner, fmt.Sprintf("%d-%d", f.FinalRed, f.FinalBlue)),
			Description: fmt.Sprintf("Red %d · Blue %d", f.FinalRed, f.FinalBlue),
			Color:       winnerColor(f.Winner),
			Timestamp:   f.FinalizedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Footer:      "event " + ev.EventID,
			Fields:      fields,
			Payload:     f,
		}, true
	default:
		return FormattedMessage{}, false
	}
}

func verdict(w domain.Winner, score string) string {
	if w == domain.WinnerDraw {
		return "draw " + score
	}
	return string(w) + " " + score
}

func winnerColor(w domain.Winner) int {
	switch w {
	case domain.WinnerRed:
		return colorRed
	case domain.WinnerBlue:
		return colorBlue
	default:
		return colorDraw
	}
}

func formatPoints(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// breakdownLine lists the event types each corner scored with, most
// points first.
func breakdownLine(r domain.RoundResult) string {
	return "Red: " + topTypes(r.RedBreakdown) + "\nBlue: " + topTypes(r.BlueBreakdown)
}

func topTypes(b map[string]domain.BreakdownEntry) string {
	if len(b) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if b[keys[i]].Points != b[keys[j]].Points {
			return b[keys[i]].Points > b[keys[j]].Points
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s×%d", k, b[k].Count))
	}
	return strings.Join(parts, ", ")
}
