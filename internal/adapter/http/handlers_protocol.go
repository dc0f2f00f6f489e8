package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/voidukas/conductor/internal/domain"
	"github.com/voidukas/conductor/internal/domain/comms"
	"github.com/voidukas/conductor/internal/domain/resource"
	"github.com/voidukas/conductor/internal/service"
)

type sendMessageRequest struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Type     string         `json:"type"`
	Payload  map[string]any `json:"payload,omitempty"`
	Priority string         `json:"priority,omitempty"`
}

// SendMessage handles POST /api/v1/messages.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[sendMessageRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.From, "from") || !requireField(w, req.To, "to") {
		return
	}

	msgType := comms.MessageType(req.Type)
	if msgType == "" {
		msgType = comms.MessageQuery
	}
	priority := comms.Priority(req.Priority)
	if priority == "" {
		priority = comms.PriorityNormal
	}

	msg, err := h.Protocol.SendMessage(req.From, req.To, msgType, req.Payload, priority)
	if err != nil {
		writeDomainError(w, err, "recipient not registered")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// GetMessages handles GET /api/v1/agents/{id}/messages.
// Query parameters: type, from, unread.
func (h *Handlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	agentID := urlParam(r, "id")

	filter := comms.Filter{
		Type:       comms.MessageType(r.URL.Query().Get("type")),
		From:       r.URL.Query().Get("from"),
		UnreadOnly: r.URL.Query().Get("unread") == "true",
	}

	msgs := h.Protocol.ReceiveMessages(agentID, filter)
	if msgs == nil {
		msgs = []*comms.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// MarkMessageRead handles POST /api/v1/agents/{id}/messages/{msgId}/read.
func (h *Handlers) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	h.Protocol.MarkRead(urlParam(r, "id"), urlParam(r, "msgId"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

type handoffRequest struct {
	From    string         `json:"from"`
	To      string         `json:"to"`
	Task    string         `json:"task"`
	Context map[string]any `json:"context,omitempty"`
}

// HandoffTask handles POST /api/v1/handoffs.
func (h *Handlers) HandoffTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[handoffRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.From, "from") || !requireField(w, req.To, "to") || !requireField(w, req.Task, "task") {
		return
	}

	msg, err := h.Protocol.HandoffTask(req.From, req.To, req.Task, req.Context)
	if err != nil {
		writeDomainError(w, err, "recipient not registered")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

type lockRequest struct {
	AgentID    string `json:"agent_id"`
	Type       string `json:"type"` // file | directory | terminal
	ResourceID string `json:"resource_id"`
	TimeoutSec int    `json:"timeout_seconds,omitempty"`
}

// RequestLock handles POST /api/v1/locks. A denied request queues the agent
// as a waiter; the grant arrives later as a high-priority message.
func (h *Handlers) RequestLock(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[lockRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.AgentID, "agent_id") || !requireField(w, req.ResourceID, "resource_id") {
		return
	}

	timeout := time.Duration(req.TimeoutSec) * time.Second
	grant := h.Protocol.RequestResource(req.AgentID, resource.LockType(req.Type), req.ResourceID, timeout)

	status := http.StatusOK
	if !grant.Granted {
		status = http.StatusLocked
	}
	writeJSON(w, status, grant)
}

// ReleaseLock handles POST /api/v1/locks/release.
func (h *Handlers) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[lockRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.AgentID, "agent_id") || !requireField(w, req.ResourceID, "resource_id") {
		return
	}

	h.Protocol.ReleaseResource(req.AgentID, resource.LockType(req.Type), req.ResourceID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

type decisionRequest struct {
	RequesterID   string   `json:"requester_id"`
	Subject       string   `json:"subject"`
	Voters        []string `json:"voters"`
	RequiredVotes int      `json:"required_votes"`
	TimeoutSec    int      `json:"timeout_seconds,omitempty"`
}

// RequestDecision handles POST /api/v1/decisions.
func (h *Handlers) RequestDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[decisionRequest](w, r)
	if !ok {
		return
	}

	d, err := h.Protocol.RequestDecision(service.DecisionRequest{
		RequesterID:   req.RequesterID,
		Subject:       req.Subject,
		Voters:        req.Voters,
		RequiredVotes: req.RequiredVotes,
		Timeout:       time.Duration(req.TimeoutSec) * time.Second,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// GetDecision handles GET /api/v1/decisions/{id}.
func (h *Handlers) GetDecision(w http.ResponseWriter, r *http.Request) {
	d, err := h.Protocol.GetDecision(urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type voteRequest struct {
	VoterID string `json:"voter_id"`
	Vote    string `json:"vote"` // approve | deny
}

// SubmitVote handles POST /api/v1/decisions/{id}/votes.
func (h *Handlers) SubmitVote(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[voteRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.VoterID, "voter_id") {
		return
	}

	vote := comms.Vote(req.Vote)
	if vote != comms.VoteApprove && vote != comms.VoteDeny {
		writeError(w, http.StatusBadRequest, "vote must be approve or deny")
		return
	}

	d, err := h.Protocol.SubmitVote(urlParam(r, "id"), req.VoterID, vote)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, d)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "decision not found")
	case errors.Is(err, domain.ErrDecisionClosed):
		writeError(w, http.StatusConflict, "decision is no longer pending")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
