package service

import (
	"errors"
	"testing"
	"time"

	"github.com/voidukas/conductor/internal/domain"
	"github.com/voidukas/conductor/internal/domain/comms"
	"github.com/voidukas/conductor/internal/domain/resource"
)

func TestSendReceiveMessages(t *testing.T) {
	p := NewProtocolService(5*time.Minute, nil)
	p.RegisterAgent("coder-0")
	p.RegisterAgent("reviewer-1")

	if _, err := p.SendMessage("coder-0", "reviewer-1", comms.MessageQuery, map[string]any{"q": "ready?"}, comms.PriorityNormal); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := p.SendMessage("coder-0", "missing", comms.MessageQuery, nil, comms.PriorityNormal); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("send to unregistered: got %v, want ErrNotFound", err)
	}

	msgs := p.ReceiveMessages("reviewer-1", comms.Filter{})
	if len(msgs) != 1 {
		t.Fatalf("received %d messages, want 1", len(msgs))
	}
	if msgs[0].From != "coder-0" || msgs[0].Type != comms.MessageQuery {
		t.Errorf("unexpected message: %+v", msgs[0])
	}

	// Reads are non-destructive.
	if again := p.ReceiveMessages("reviewer-1", comms.Filter{}); len(again) != 1 {
		t.Fatalf("second read returned %d messages, want 1", len(again))
	}

	p.MarkRead("reviewer-1", msgs[0].ID)
	if unread := p.ReceiveMessages("reviewer-1", comms.Filter{UnreadOnly: true}); len(unread) != 0 {
		t.Errorf("unread after mark = %d, want 0", len(unread))
	}

	p.ClearMessages("reviewer-1")
	if left := p.ReceiveMessages("reviewer-1", comms.Filter{}); len(left) != 0 {
		t.Errorf("messages after clear = %d, want 0", len(left))
	}
}

func TestHighPriorityMessageOrdering(t *testing.T) {
	p := NewProtocolService(5*time.Minute, nil)
	p.RegisterAgent("coder-0")
	p.RegisterAgent("planner-0")

	if _, err := p.SendMessage("planner-0", "coder-0", comms.MessageQuery, map[string]any{"n": 1}, comms.PriorityNormal); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SendMessage("planner-0", "coder-0", comms.MessageQuery, map[string]any{"n": 2}, comms.PriorityNormal); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SendMessage("planner-0", "coder-0", comms.MessageBroadcast, map[string]any{"n": 3}, comms.PriorityHigh); err != nil {
		t.Fatal(err)
	}

	msgs := p.ReceiveMessages("coder-0", comms.Filter{})
	if len(msgs) != 3 {
		t.Fatalf("received %d messages, want 3", len(msgs))
	}
	if msgs[0].Payload["n"] != 3 {
		t.Errorf("high-priority message not first: %+v", msgs[0].Payload)
	}
	if msgs[1].Payload["n"] != 1 || msgs[2].Payload["n"] != 2 {
		t.Errorf("normal messages out of FIFO order: %+v, %+v", msgs[1].Payload, msgs[2].Payload)
	}
}

func TestHandoffTask(t *testing.T) {
	p := NewProtocolService(5*time.Minute, nil)
	p.RegisterAgent("researcher-0")
	p.RegisterAgent("planner-0")

	msg, err := p.HandoffTask("researcher-0", "planner-0", "summarize findings", map[string]any{"notes": "..."})
	if err != nil {
		t.Fatalf("handoff: %v", err)
	}
	if msg.Type != comms.MessageHandoff || !msg.RequiresResponse {
		t.Errorf("unexpected handoff message: %+v", msg)
	}
	if msg.Priority != comms.PriorityHigh {
		t.Errorf("priority = %s, want high", msg.Priority)
	}
}

func TestResourceLockContention(t *testing.T) {
	p := NewProtocolService(5*time.Minute, nil)
	p.RegisterAgent("X")
	p.RegisterAgent("Y")

	grant := p.RequestResource("X", resource.LockFile, "file.txt", time.Minute)
	if !grant.Granted {
		t.Fatalf("initial grant denied: %+v", grant)
	}

	grant = p.RequestResource("Y", resource.LockFile, "file.txt", time.Minute)
	if grant.Granted {
		t.Fatal("contended request should be denied")
	}
	if grant.Reason != "Resource locked" || grant.LockedBy != "X" {
		t.Errorf("denial = %+v, want Resource locked by X", grant)
	}
	if !grant.Queued {
		t.Error("denied requester should be queued")
	}

	denials := p.ReceiveMessages("Y", comms.Filter{Type: comms.MessageResourceDenied})
	if len(denials) != 1 {
		t.Fatalf("Y received %d denial messages, want 1", len(denials))
	}

	// Release hands the lock to the queued waiter.
	p.ReleaseResource("X", resource.LockFile, "file.txt")
	if holder, held := p.LockHolder(resource.LockFile, "file.txt"); !held || holder != "Y" {
		t.Fatalf("holder after release = %q (%v), want Y", holder, held)
	}
}

func TestResourceWaiterFIFO(t *testing.T) {
	p := NewProtocolService(5*time.Minute, nil)
	for _, id := range []string{"A", "B", "C"} {
		p.RegisterAgent(id)
	}

	p.RequestResource("A", resource.LockTerminal, "tty0", time.Minute)
	p.RequestResource("B", resource.LockTerminal, "tty0", time.Minute)
	p.RequestResource("C", resource.LockTerminal, "tty0", time.Minute)

	p.ReleaseResource("A", resource.LockTerminal, "tty0")
	if holder, _ := p.LockHolder(resource.LockTerminal, "tty0"); holder != "B" {
		t.Fatalf("first waiter not granted: holder = %q, want B", holder)
	}

	p.ReleaseResource("B", resource.LockTerminal, "tty0")
	if holder, _ := p.LockHolder(resource.LockTerminal, "tty0"); holder != "C" {
		t.Fatalf("second waiter not granted: holder = %q, want C", holder)
	}
}

func TestReleaseFromNonHolderIsNoop(t *testing.T) {
	p := NewProtocolService(5*time.Minute, nil)
	p.RegisterAgent("X")
	p.RegisterAgent("Y")

	p.RequestResource("X", resource.LockFile, "file.txt", time.Minute)
	p.ReleaseResource("Y", resource.LockFile, "file.txt")

	if holder, held := p.LockHolder(resource.LockFile, "file.txt"); !held || holder != "X" {
		t.Errorf("holder = %q (%v), want X still holding", holder, held)
	}
}

func TestExpiredLockReclaimed(t *testing.T) {
	p := NewProtocolService(5*time.Minute, nil)
	clock := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }
	p.RegisterAgent("X")
	p.RegisterAgent("Y")

	p.RequestResource("X", resource.LockFile, "file.txt", time.Minute)
	clock = clock.Add(2 * time.Minute)

	grant := p.RequestResource("Y", resource.LockFile, "file.txt", time.Minute)
	if !grant.Granted {
		t.Fatalf("request over expired lock denied: %+v", grant)
	}
	if holder, _ := p.LockHolder(resource.LockFile, "file.txt"); holder != "Y" {
		t.Errorf("holder = %q, want Y", holder)
	}
}

func TestUnregisterReleasesLocks(t *testing.T) {
	p := NewProtocolService(5*time.Minute, nil)
	p.RegisterAgent("X")
	p.RegisterAgent("Y")

	p.RequestResource("X", resource.LockDirectory, "src", time.Minute)
	p.RequestResource("Y", resource.LockDirectory, "src", time.Minute)

	p.UnregisterAgent("X")
	if holder, held := p.LockHolder(resource.LockDirectory, "src"); !held || holder != "Y" {
		t.Fatalf("holder after unregister = %q (%v), want Y", holder, held)
	}
}

func TestDecisionFailFastApproval(t *testing.T) {
	p := NewProtocolService(5*time.Minute, nil)
	voters := []string{"a", "b", "c", "d", "e"}
	for _, v := range voters {
		p.RegisterAgent(v)
	}
	p.RegisterAgent("requester")

	d, err := p.RequestDecision(DecisionRequest{
		RequesterID:   "requester",
		Subject:       "deploy to staging",
		Voters:        voters,
		RequiredVotes: 3,
		Timeout:       time.Minute,
	})
	if err != nil {
		t.Fatalf("request decision: %v", err)
	}

	for _, v := range voters {
		reqs := p.ReceiveMessages(v, comms.Filter{Type: comms.MessageDecisionRequest})
		if len(reqs) != 1 {
			t.Fatalf("voter %s received %d requests, want 1", v, len(reqs))
		}
	}

	if _, err := p.SubmitVote(d.ID, "a", comms.VoteApprove); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SubmitVote(d.ID, "b", comms.VoteApprove); err != nil {
		t.Fatal(err)
	}
	got, err := p.SubmitVote(d.ID, "c", comms.VoteApprove)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != comms.DecisionApproved {
		t.Fatalf("status after 3rd approval = %s, want approved", got.Status)
	}

	// No votes accepted once terminal.
	if _, err := p.SubmitVote(d.ID, "d", comms.VoteApprove); !errors.Is(err, domain.ErrDecisionClosed) {
		t.Fatalf("vote after terminal: got %v, want ErrDecisionClosed", err)
	}
}

func TestDecisionFailFastDenial(t *testing.T) {
	p := NewProtocolService(5*time.Minute, nil)
	voters := []string{"a", "b", "c", "d", "e"}
	for _, v := range voters {
		p.RegisterAgent(v)
	}

	d, err := p.RequestDecision(DecisionRequest{
		RequesterID:   "a",
		Subject:       "force merge",
		Voters:        voters,
		RequiredVotes: 3,
		Timeout:       time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Slack is 5-3=2 denials; the third makes approval impossible.
	if _, err := p.SubmitVote(d.ID, "b", comms.VoteDeny); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SubmitVote(d.ID, "c", comms.VoteDeny); err != nil {
		t.Fatal(err)
	}
	got, err := p.SubmitVote(d.ID, "d", comms.VoteDeny)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != comms.DecisionDenied {
		t.Fatalf("status after 3rd denial = %s, want denied", got.Status)
	}
}

func TestDecisionRejectsNonVoterAndDuplicates(t *testing.T) {
	p := NewProtocolService(5*time.Minute, nil)
	p.RegisterAgent("a")
	p.RegisterAgent("b")

	d, err := p.RequestDecision(DecisionRequest{
		RequesterID:   "a",
		Subject:       "swap model",
		Voters:        []string{"a", "b"},
		RequiredVotes: 2,
		Timeout:       time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.SubmitVote(d.ID, "outsider", comms.VoteApprove); err == nil {
		t.Fatal("non-voter vote should be rejected")
	}
	if _, err := p.SubmitVote(d.ID, "a", comms.VoteApprove); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SubmitVote(d.ID, "a", comms.VoteApprove); err == nil {
		t.Fatal("duplicate vote should be rejected")
	}
}

func TestDecisionUnsatisfiableQuorumRejected(t *testing.T) {
	p := NewProtocolService(5*time.Minute, nil)

	_, err := p.RequestDecision(DecisionRequest{
		RequesterID:   "a",
		Subject:       "impossible",
		Voters:        []string{"a", "b"},
		RequiredVotes: 3,
		Timeout:       time.Minute,
	})
	if err == nil {
		t.Fatal("requiredVotes > voters should be rejected at request time")
	}
}

func TestDecisionTimeout(t *testing.T) {
	p := NewProtocolService(5*time.Minute, nil)
	clock := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }
	p.RegisterAgent("a")
	p.RegisterAgent("b")

	d, err := p.RequestDecision(DecisionRequest{
		RequesterID:   "a",
		Subject:       "slow vote",
		Voters:        []string{"a", "b"},
		RequiredVotes: 2,
		Timeout:       time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}

	clock = clock.Add(2 * time.Minute)

	got, err := p.GetDecision(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != comms.DecisionTimeout {
		t.Fatalf("status past expiry = %s, want timeout", got.Status)
	}
	if _, err := p.SubmitVote(d.ID, "b", comms.VoteApprove); !errors.Is(err, domain.ErrDecisionClosed) {
		t.Fatalf("vote after timeout: got %v, want ErrDecisionClosed", err)
	}
}
