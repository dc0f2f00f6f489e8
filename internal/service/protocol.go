package service

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voidukas/conductor/internal/domain"
	"github.com/voidukas/conductor/internal/domain/comms"
	"github.com/voidukas/conductor/internal/domain/resource"
	"github.com/voidukas/conductor/internal/port/auditlog"
)

// ProtocolService is the only place cross-agent signaling happens: per-agent
// message queues, the resource lock table with FIFO wait queues, and the
// quorum decision mechanism all live here. Every public method is a
// synchronous critical section under one mutex.
type ProtocolService struct {
	mu sync.Mutex

	queues    map[string][]*comms.Message
	locks     map[string]*resource.Lock
	waiters   map[string][]string // resource key -> FIFO list of agent IDs
	decisions map[string]*comms.Decision

	lockTTL time.Duration
	audit   auditlog.Sink

	now func() time.Time // for testing
}

// NewProtocolService creates a ProtocolService. Locks granted without an
// explicit timeout expire after lockTTL.
func NewProtocolService(lockTTL time.Duration, audit auditlog.Sink) *ProtocolService {
	if audit == nil {
		audit = auditlog.Nop{}
	}
	return &ProtocolService{
		queues:    make(map[string][]*comms.Message),
		locks:     make(map[string]*resource.Lock),
		waiters:   make(map[string][]string),
		decisions: make(map[string]*comms.Decision),
		lockTTL:   lockTTL,
		audit:     audit,
		now:       time.Now,
	}
}

// RegisterAgent creates the agent's message queue. Registering twice is a
// no-op that preserves any queued messages.
func (s *ProtocolService) RegisterAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queues[agentID]; !ok {
		s.queues[agentID] = nil
	}
}

// UnregisterAgent removes the agent's queue, releases every lock it holds
// (granting each to its next waiter), and drops it from all wait queues.
func (s *ProtocolService) UnregisterAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.queues, agentID)

	for key, lock := range s.locks {
		if lock.HolderID == agentID {
			s.releaseLocked(key)
		}
	}
	for key, queue := range s.waiters {
		s.waiters[key] = removeWaiter(queue, agentID)
	}
}

func removeWaiter(queue []string, agentID string) []string {
	out := queue[:0]
	for _, id := range queue {
		if id != agentID {
			out = append(out, id)
		}
	}
	return out
}

// SendMessage enqueues a message into the recipient's queue. High-priority
// messages go to the front; everything else appends, so delivery is
// priority-then-FIFO per recipient.
func (s *ProtocolService) SendMessage(from, to string, msgType comms.MessageType, payload map[string]any, priority comms.Priority) (*comms.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queues[to]; !ok && to != comms.SystemSender {
		return nil, fmt.Errorf("send to %s: %w", to, domain.ErrNotFound)
	}

	msg := &comms.Message{
		ID:       uuid.NewString(),
		From:     from,
		To:       to,
		Type:     msgType,
		Payload:  payload,
		Priority: priority,
		SentAt:   s.now(),
	}
	if priority == comms.PriorityHigh {
		s.queues[to] = append([]*comms.Message{msg}, s.queues[to]...)
	} else {
		s.queues[to] = append(s.queues[to], msg)
	}
	return msg, nil
}

// ReceiveMessages returns the agent's queued messages matching the filter.
// Reads are non-destructive: messages persist until marked read or cleared,
// so retries and audits can replay them.
func (s *ProtocolService) ReceiveMessages(agentID string, filter comms.Filter) []*comms.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*comms.Message
	for _, msg := range s.queues[agentID] {
		if filter.Matches(msg) {
			out = append(out, msg)
		}
	}
	return out
}

// MarkRead flags one message in the agent's queue as read.
func (s *ProtocolService) MarkRead(agentID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range s.queues[agentID] {
		if msg.ID == messageID {
			msg.Read = true
			return
		}
	}
}

// ClearMessages empties the agent's queue.
func (s *ProtocolService) ClearMessages(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queues[agentID]; ok {
		s.queues[agentID] = nil
	}
}

// HandoffTask passes a completed artifact from one pipeline stage to the
// next as a high-priority HANDOFF message requiring a response.
func (s *ProtocolService) HandoffTask(from, to, task string, context map[string]any) (*comms.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queues[to]; !ok {
		return nil, fmt.Errorf("handoff %s -> %s: %w", from, to, domain.ErrNotFound)
	}

	msg := &comms.Message{
		ID:   uuid.NewString(),
		From: from,
		To:   to,
		Type: comms.MessageHandoff,
		Payload: map[string]any{
			"task":    task,
			"context": context,
		},
		Priority:         comms.PriorityHigh,
		RequiresResponse: true,
		SentAt:           s.now(),
	}
	s.queues[to] = append([]*comms.Message{msg}, s.queues[to]...)
	return msg, nil
}

// RequestResource requests an exclusive lock on a typed resource. A free
// (or expired) lock is granted immediately with an absolute expiry; a held
// lock enqueues the requester FIFO and sends it a denial message.
func (s *ProtocolService) RequestResource(agentID string, resType resource.LockType, resourceID string, timeout time.Duration) *resource.Grant {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timeout <= 0 {
		timeout = s.lockTTL
	}
	key := resource.Key(resType, resourceID)
	now := s.now()

	if lock, held := s.locks[key]; held {
		if !lock.Expired(now) {
			if lock.HolderID == agentID {
				return &resource.Grant{Granted: true, ExpiresAt: lock.ExpiresAt}
			}
			s.waiters[key] = append(s.waiters[key], agentID)
			s.sendLocked(comms.SystemSender, agentID, comms.MessageResourceDenied, map[string]any{
				"resource":  key,
				"locked_by": lock.HolderID,
			}, comms.PriorityNormal)
			return &resource.Grant{
				Granted:   false,
				Reason:    "Resource locked",
				LockedBy:  lock.HolderID,
				ExpiresAt: lock.ExpiresAt,
				Queued:    true,
			}
		}
		// Stale lock: reclaim, then retry as fresh. A queued waiter may
		// inherit the lock during release, in which case this request
		// contends against the new holder.
		slog.Warn("expired lock reclaimed", "key", key, "holder", lock.HolderID)
		s.releaseLocked(key)
		if inherited := s.locks[key]; inherited != nil {
			if inherited.HolderID == agentID {
				return &resource.Grant{Granted: true, ExpiresAt: inherited.ExpiresAt}
			}
			s.waiters[key] = append(s.waiters[key], agentID)
			s.sendLocked(comms.SystemSender, agentID, comms.MessageResourceDenied, map[string]any{
				"resource":  key,
				"locked_by": inherited.HolderID,
			}, comms.PriorityNormal)
			return &resource.Grant{
				Granted:   false,
				Reason:    "Resource locked",
				LockedBy:  inherited.HolderID,
				ExpiresAt: inherited.ExpiresAt,
				Queued:    true,
			}
		}
	}

	s.grantLocked(key, agentID, timeout)
	return &resource.Grant{Granted: true, ExpiresAt: s.locks[key].ExpiresAt}
}

// grantLocked must be called with s.mu held and key unlocked.
func (s *ProtocolService) grantLocked(key, agentID string, timeout time.Duration) {
	now := s.now()
	s.locks[key] = &resource.Lock{
		Key:        key,
		HolderID:   agentID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(timeout),
	}
}

// ReleaseResource releases a held lock and grants it to the next FIFO
// waiter, if any. A release from a non-holder is a no-op.
func (s *ProtocolService) ReleaseResource(agentID string, resType resource.LockType, resourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resource.Key(resType, resourceID)
	lock, held := s.locks[key]
	if !held || lock.HolderID != agentID {
		return
	}
	s.releaseLocked(key)
}

// releaseLocked removes the lock at key and hands it to the next waiter in
// FIFO order, notifying them. Must be called with s.mu held.
func (s *ProtocolService) releaseLocked(key string) {
	delete(s.locks, key)

	queue := s.waiters[key]
	if len(queue) == 0 {
		delete(s.waiters, key)
		return
	}
	next := queue[0]
	if len(queue) == 1 {
		delete(s.waiters, key)
	} else {
		s.waiters[key] = queue[1:]
	}

	s.grantLocked(key, next, s.lockTTL)
	s.sendLocked(comms.SystemSender, next, comms.MessageResponse, map[string]any{
		"resource": key,
		"granted":  true,
	}, comms.PriorityHigh)
}

// sendLocked enqueues without taking the mutex; callers hold it. Sends to
// unregistered agents are dropped.
func (s *ProtocolService) sendLocked(from, to string, msgType comms.MessageType, payload map[string]any, priority comms.Priority) {
	if _, ok := s.queues[to]; !ok {
		return
	}
	msg := &comms.Message{
		ID:       uuid.NewString(),
		From:     from,
		To:       to,
		Type:     msgType,
		Payload:  payload,
		Priority: priority,
		SentAt:   s.now(),
	}
	if priority == comms.PriorityHigh {
		s.queues[to] = append([]*comms.Message{msg}, s.queues[to]...)
	} else {
		s.queues[to] = append(s.queues[to], msg)
	}
}

// LockHolder reports the current unexpired holder of a resource, if any.
func (s *ProtocolService) LockHolder(resType resource.LockType, resourceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, held := s.locks[resource.Key(resType, resourceID)]
	if !held || lock.Expired(s.now()) {
		return "", false
	}
	return lock.HolderID, true
}
