package scoring

import "cageside/internal/domain"

// StateSnapshot is the payload of a state_sync message.
type StateSnapshot struct {
	Bout         domain.Bout          `json:"bout"`
	RoundFilter  int                  `json:"round_filter"`
	Events       []domain.Event       `json:"events"`
	RoundResults []domain.RoundResult `json:"round_results"`
	FightResult  *domain.FightResult  `json:"fight_result"`
}

type FinalizeResult struct {
	Result           domain.FightResult `json:"result"`
	AlreadyFinalized bool               `json:"already_finalized"`
}
