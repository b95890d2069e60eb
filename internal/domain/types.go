// Package domain holds the scoring entities shared by the server and device
// packages.
package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type Corner string

const (
	CornerRed  Corner = "RED"
	CornerBlue Corner = "BLUE"
)

func ParseCorner(v string) (Corner, bool) {
	switch Corner(strings.ToUpper(strings.TrimSpace(v))) {
	case CornerRed:
		return CornerRed, true
	case CornerBlue:
		return CornerBlue, true
	default:
		return "", false
	}
}

func (c Corner) Opponent() Corner {
	if c == CornerRed {
		return CornerBlue
	}
	return CornerRed
}

type Aspect string

const (
	AspectStriking  Aspect = "STRIKING"
	AspectGrappling Aspect = "GRAPPLING"
)

func ParseAspect(v string) (Aspect, bool) {
	switch Aspect(strings.ToUpper(strings.TrimSpace(v))) {
	case AspectStriking:
		return AspectStriking, true
	case AspectGrappling:
		return AspectGrappling, true
	default:
		return "", false
	}
}

// DeviceRole is the scoring responsibility of one device, e.g. "red-striking".
type DeviceRole string

const (
	RoleRedStriking   DeviceRole = "red-striking"
	RoleRedGrappling  DeviceRole = "red-grappling"
	RoleBlueStriking  DeviceRole = "blue-striking"
	RoleBlueGrappling DeviceRole = "blue-grappling"
)

// ParseDeviceRole returns the role together with the corner and aspect it
// is allowed to score.
func ParseDeviceRole(v string) (DeviceRole, Corner, Aspect, bool) {
	switch DeviceRole(strings.ToLower(strings.TrimSpace(v))) {
	case RoleRedStriking:
		return RoleRedStriking, CornerRed, AspectStriking, true
	case RoleRedGrappling:
		return RoleRedGrappling, CornerRed, AspectGrappling, true
	case RoleBlueStriking:
		return RoleBlueStriking, CornerBlue, AspectStriking, true
	case RoleBlueGrappling:
		return RoleBlueGrappling, CornerBlue, AspectGrappling, true
	default:
		return "", "", "", false
	}
}

type Winner string

const (
	WinnerRed  Winner = "RED"
	WinnerBlue Winner = "BLUE"
	WinnerDraw Winner = "DRAW"
)

type Bout struct {
	ID              string    `json:"id"`
	RedFighterID    string    `json:"red_fighter_id"`
	BlueFighterID   string    `json:"blue_fighter_id"`
	ScheduledRounds int       `json:"scheduled_rounds"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// SubjectFor returns the fighter id scored in the given corner.
func (b Bout) SubjectFor(c Corner) string {
	if c == CornerRed {
		return b.RedFighterID
	}
	return b.BlueFighterID
}

// CornerOf reports which corner the subject fights from in this bout.
func (b Bout) CornerOf(subjectID string) (Corner, bool) {
	switch subjectID {
	case b.RedFighterID:
		return CornerRed, true
	case b.BlueFighterID:
		return CornerBlue, true
	default:
		return "", false
	}
}

type Event struct {
	ID             string          `json:"id"`
	BoutID         string          `json:"bout_id"`
	RoundNumber    int             `json:"round_number"`
	Corner         Corner          `json:"corner"`
	Aspect         Aspect          `json:"aspect"`
	EventType      string          `json:"event_type"`
	Value          float64         `json:"value"`
	DeviceRole     DeviceRole      `json:"device_role"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	RequestHash    string          `json:"-"`
	Acked          bool            `json:"acked"`
	CreatedAt      time.Time       `json:"created_at"`
}

// MetadataMap decodes the metadata object; malformed or empty metadata
// yields an empty map.
func (e Event) MetadataMap() map[string]any {
	out := map[string]any{}
	if len(e.Metadata) == 0 {
		return out
	}
	_ = json.Unmarshal(e.Metadata, &out)
	return out
}

type BreakdownEntry struct {
	Count  int     `json:"count"`
	Points float64 `json:"points"`
}

type RoundResult struct {
	BoutID        string                    `json:"bout_id"`
	RoundNumber   int                       `json:"round_number"`
	RedPoints     float64                   `json:"red_points"`
	BluePoints    float64                   `json:"blue_points"`
	Delta         float64                   `json:"delta"`
	RedScore      int                       `json:"red_score"`
	BlueScore     int                       `json:"blue_score"`
	Winner        Winner                    `json:"winner"`
	RedBreakdown  map[string]BreakdownEntry `json:"red_breakdown"`
	BlueBreakdown map[string]BreakdownEntry `json:"blue_breakdown"`
	TotalEvents   int                       `json:"total_events"`
}

// ScoreLabel renders the round as "10-9" from the winner's side.
func (r RoundResult) ScoreLabel() string {
	hi, lo := r.RedScore, r.BlueScore
	if lo > hi {
		hi, lo = lo, hi
	}
	return strconv.Itoa(hi) + "-" + strconv.Itoa(lo)
}

type FightResult struct {
	BoutID      string        `json:"bout_id"`
	FinalRed    int           `json:"final_red"`
	FinalBlue   int           `json:"final_blue"`
	Winner      Winner        `json:"winner"`
	Rounds      []RoundResult `json:"rounds"`
	FinalizedAt time.Time     `json:"finalized_at"`
}

type RoundStats struct {
	BoutID              string             `json:"bout_id"`
	RoundNumber         int                `json:"round_number"`
	SubjectID           string             `json:"subject_id"`
	Corner              Corner             `json:"corner"`
	StrikesAttempted    int                `json:"strikes_attempted"`
	StrikesLanded       int                `json:"strikes_landed"`
	SigStrikesAttempted int                `json:"sig_strikes_attempted"`
	SigStrikesLanded    int                `json:"sig_strikes_landed"`
	Knockdowns          int                `json:"knockdowns"`
	TakedownsAttempted  int                `json:"takedowns_attempted"`
	TakedownsLanded     int                `json:"takedowns_landed"`
	SubmissionAttempts  int                `json:"submission_attempts"`
	ControlSecs         float64            `json:"control_secs"`
	ControlByType       map[string]float64 `json:"control_by_type"`
	EventsProcessed     int                `json:"events_processed"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

type FightStats struct {
	BoutID              string             `json:"bout_id"`
	SubjectID           string             `json:"subject_id"`
	Corner              Corner             `json:"corner"`
	Rounds              int                `json:"rounds"`
	StrikesAttempted    int                `json:"strikes_attempted"`
	StrikesLanded       int                `json:"strikes_landed"`
	SigStrikesAttempted int                `json:"sig_strikes_attempted"`
	SigStrikesLanded    int                `json:"sig_strikes_landed"`
	Knockdowns          int                `json:"knockdowns"`
	TakedownsAttempted  int                `json:"takedowns_attempted"`
	TakedownsLanded     int                `json:"takedowns_landed"`
	SubmissionAttempts  int                `json:"submission_attempts"`
	ControlSecs         float64            `json:"control_secs"`
	ControlByType       map[string]float64 `json:"control_by_type"`
	StrikeAccuracy      float64            `json:"strike_accuracy"`
	SigStrikeAccuracy   float64            `json:"sig_strike_accuracy"`
	TakedownAccuracy    float64            `json:"takedown_accuracy"`
	StrikesPerMinute    float64            `json:"strikes_per_minute"`
	ControlPct          float64            `json:"control_pct"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

type CareerStats struct {
	SubjectID                 string    `json:"subject_id"`
	TotalFights               int       `json:"total_fights"`
	Wins                      int       `json:"wins"`
	Losses                    int       `json:"losses"`
	Draws                     int       `json:"draws"`
	TotalRounds               int       `json:"total_rounds"`
	StrikesAttempted          int       `json:"strikes_attempted"`
	StrikesLanded             int       `json:"strikes_landed"`
	SigStrikesAttempted       int       `json:"sig_strikes_attempted"`
	SigStrikesLanded          int       `json:"sig_strikes_landed"`
	Knockdowns                int       `json:"knockdowns"`
	TakedownsAttempted        int       `json:"takedowns_attempted"`
	TakedownsLanded           int       `json:"takedowns_landed"`
	SubmissionAttempts        int       `json:"submission_attempts"`
	ControlSecs               float64   `json:"control_secs"`
	AvgSigStrikeAccuracy      float64   `json:"avg_sig_strike_accuracy"`
	WeightedSigStrikeAccuracy float64   `json:"weighted_sig_strike_accuracy"`
	AvgStrikesPerMinute       float64   `json:"avg_strikes_per_minute"`
	AvgControlPct             float64   `json:"avg_control_pct"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

type JobType string

const (
	JobTypeRound  JobType = "round"
	JobTypeFight  JobType = "fight"
	JobTypeCareer JobType = "career"
)

type JobTrigger string

const (
	TriggerManual      JobTrigger = "manual"
	TriggerRoundLocked JobTrigger = "round_locked"
	TriggerPostFight   JobTrigger = "post_fight"
	TriggerNightly     JobTrigger = "nightly"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type AggregationJob struct {
	ID            string     `json:"id"`
	JobType       JobType    `json:"job_type"`
	Trigger       JobTrigger `json:"trigger"`
	BoutID        string     `json:"bout_id,omitempty"`
	RoundNumber   int        `json:"round_number,omitempty"`
	SubjectID     string     `json:"subject_id,omitempty"`
	Status        JobStatus  `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	RowsProcessed int        `json:"rows_processed"`
	RowsUpdated   int        `json:"rows_updated"`
	Errors        []string   `json:"errors"`
	Warnings      []string   `json:"warnings"`
	CreatedAt     time.Time  `json:"created_at"`
}

// SubjectOutcome is one finalized fight seen from a single fighter's corner.
type SubjectOutcome struct {
	BoutID string `json:"bout_id"`
	Corner Corner `json:"corner"`
	Winner Winner `json:"winner"`
}

// Result reports "W", "L" or "D" for the subject.
func (o SubjectOutcome) Result() string {
	switch o.Winner {
	case WinnerDraw:
		return "D"
	case Winner(o.Corner):
		return "W"
	default:
		return "L"
	}
}
