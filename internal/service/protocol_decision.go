package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voidukas/conductor/internal/domain"
	"github.com/voidukas/conductor/internal/domain/comms"
	"github.com/voidukas/conductor/internal/port/auditlog"
)

// DecisionRequest describes a quorum vote to open.
type DecisionRequest struct {
	RequesterID   string
	Subject       string
	Voters        []string
	RequiredVotes int
	Timeout       time.Duration
}

// Validate rejects requests that could never resolve.
func (r *DecisionRequest) Validate() error {
	if r.Subject == "" {
		return fmt.Errorf("decision subject is required")
	}
	if len(r.Voters) == 0 {
		return fmt.Errorf("decision needs at least one voter")
	}
	if r.RequiredVotes < 1 {
		return fmt.Errorf("required votes %d must be positive", r.RequiredVotes)
	}
	if r.RequiredVotes > len(r.Voters) {
		return fmt.Errorf("required votes %d exceeds voter count %d", r.RequiredVotes, len(r.Voters))
	}
	return nil
}

// RequestDecision opens a pending decision and fans a DECISION_REQUEST
// message out to every voter. Unresolved decisions lapse to timeout at
// their expiry, checked lazily on the next vote or status read.
func (s *ProtocolService) RequestDecision(req DecisionRequest) (*comms.Decision, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("request decision: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	d := &comms.Decision{
		ID:            uuid.NewString(),
		RequesterID:   req.RequesterID,
		Subject:       req.Subject,
		Voters:        req.Voters,
		RequiredVotes: req.RequiredVotes,
		Votes:         make(map[string]comms.Vote),
		Status:        comms.DecisionPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(req.Timeout),
	}
	s.decisions[d.ID] = d

	for _, voter := range req.Voters {
		s.sendLocked(req.RequesterID, voter, comms.MessageDecisionRequest, map[string]any{
			"decision_id":    d.ID,
			"subject":        req.Subject,
			"required_votes": req.RequiredVotes,
		}, comms.PriorityHigh)
	}
	return d, nil
}

// SubmitVote records one voter's choice and applies the fail-fast quorum.
// Votes after a terminal state, from non-members, or duplicates are
// rejected.
func (s *ProtocolService) SubmitVote(decisionID, voterID string, vote comms.Vote) (*comms.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[decisionID]
	if !ok {
		return nil, fmt.Errorf("decision %s: %w", decisionID, domain.ErrNotFound)
	}

	s.expireDecisionLocked(d)
	if d.Status.IsTerminal() {
		return nil, fmt.Errorf("decision %s is %s: %w", decisionID, d.Status, domain.ErrDecisionClosed)
	}
	if !d.IsVoter(voterID) {
		return nil, fmt.Errorf("agent %s is not a voter on decision %s", voterID, decisionID)
	}
	if _, voted := d.Votes[voterID]; voted {
		return nil, fmt.Errorf("agent %s already voted on decision %s", voterID, decisionID)
	}

	d.Votes[voterID] = vote
	d.Status = d.Tally()

	if d.Status.IsTerminal() {
		s.notifyDecisionLocked(d)
		if err := s.audit.Record(context.Background(), auditlog.Entry{
			Actor:     d.RequesterID,
			Action:    "decision_resolved",
			Decision:  string(d.Status),
			Reasoning: d.Subject,
			Context: map[string]any{
				"decision_id": d.ID,
				"votes":       len(d.Votes),
				"voters":      len(d.Voters),
			},
			At: s.now(),
		}); err != nil {
			slog.Warn("audit record failed", "action", "decision_resolved", "error", err)
		}
	}
	return d, nil
}

// GetDecision returns a decision by ID, lapsing it to timeout if expired.
func (s *ProtocolService) GetDecision(decisionID string) (*comms.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[decisionID]
	if !ok {
		return nil, fmt.Errorf("decision %s: %w", decisionID, domain.ErrNotFound)
	}
	s.expireDecisionLocked(d)
	return d, nil
}

// expireDecisionLocked lapses a pending decision past its expiry to
// timeout and notifies the requester. Must be called with s.mu held.
func (s *ProtocolService) expireDecisionLocked(d *comms.Decision) {
	if d.Status.IsTerminal() || s.now().Before(d.ExpiresAt) {
		return
	}
	d.Status = comms.DecisionTimeout
	s.notifyDecisionLocked(d)
}

// notifyDecisionLocked tells the requester the outcome. Must be called
// with s.mu held.
func (s *ProtocolService) notifyDecisionLocked(d *comms.Decision) {
	s.sendLocked(comms.SystemSender, d.RequesterID, comms.MessageResponse, map[string]any{
		"decision_id": d.ID,
		"status":      string(d.Status),
	}, comms.PriorityHigh)
}
