package comms

import "time"

// DecisionStatus represents the lifecycle state of a quorum decision.
type DecisionStatus string

const (
	DecisionPending  DecisionStatus = "pending"
	DecisionApproved DecisionStatus = "approved"
	DecisionDenied   DecisionStatus = "denied"
	DecisionTimeout  DecisionStatus = "timeout"
)

// IsTerminal returns true once the decision can accept no further votes.
func (s DecisionStatus) IsTerminal() bool {
	return s != DecisionPending
}

// Vote is a single voter's choice.
type Vote string

const (
	VoteApprove Vote = "approve"
	VoteDeny    Vote = "deny"
)

// Decision is a quorum vote requested by one agent of a fixed voter set.
// Quorum is fail-fast: the decision resolves the instant approval or denial
// becomes certain, without waiting for the remaining votes.
type Decision struct {
	ID            string          `json:"id"`
	RequesterID   string          `json:"requester_id"`
	Subject       string          `json:"subject"`
	Voters        []string        `json:"voters"`
	RequiredVotes int             `json:"required_votes"`
	Votes         map[string]Vote `json:"votes"`
	Status        DecisionStatus  `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// IsVoter reports whether id belongs to the decision's voter set.
func (d *Decision) IsVoter(id string) bool {
	for _, v := range d.Voters {
		if v == id {
			return true
		}
	}
	return false
}

// Tally applies the fail-fast quorum rule and returns the status implied by
// the current votes.
func (d *Decision) Tally() DecisionStatus {
	approvals, denials := 0, 0
	for _, v := range d.Votes {
		switch v {
		case VoteApprove:
			approvals++
		case VoteDeny:
			denials++
		}
	}
	if approvals >= d.RequiredVotes {
		return DecisionApproved
	}
	// Denials beyond the slack (voters - required) make approval impossible.
	if denials > len(d.Voters)-d.RequiredVotes {
		return DecisionDenied
	}
	return DecisionPending
}
