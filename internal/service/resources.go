package service

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/voidukas/conductor/internal/config"
	"github.com/voidukas/conductor/internal/domain"
	"github.com/voidukas/conductor/internal/domain/resource"
)

// ResourceService arbitrates the three process-wide capacity pools: a
// bounded context-memory token pool, an hourly-reset API quota, and a
// capped set of shared/exclusive file handles.
//
// All methods are synchronous critical sections; a single mutex guards the
// pools because concurrent batch execution contends on them.
type ResourceService struct {
	mu sync.Mutex

	contextTotal   int
	contextByAgent map[string]int

	quotaTotal    int
	quotaPerAgent int
	quotaByAgent  map[string]int
	quotaResetAt  time.Time

	maxOpenFiles int
	files        map[string]*fileEntry

	now func() time.Time // for testing
}

// fileEntry tracks the holders of one open path.
type fileEntry struct {
	mode    resource.FileMode
	holders map[string]time.Time // agentID -> opened at
}

// NewResourceService creates a ResourceService from the resource config.
func NewResourceService(cfg config.Resources) *ResourceService {
	now := time.Now
	return &ResourceService{
		contextTotal:   cfg.ContextTokens,
		contextByAgent: make(map[string]int),
		quotaTotal:     cfg.APIQuotaTotal,
		quotaPerAgent:  cfg.APIQuotaPerSlot,
		quotaByAgent:   make(map[string]int),
		quotaResetAt:   nextHour(now()),
		maxOpenFiles:   cfg.MaxOpenFiles,
		files:          make(map[string]*fileEntry),
		now:            now,
	}
}

func nextHour(t time.Time) time.Time {
	return t.Truncate(time.Hour).Add(time.Hour)
}

// AllocateContext grants tokens from the context pool. When the pool cannot
// satisfy the request and priority is high, up to 25% of every other
// agent's allocation is reclaimed (highest allocation first) before a
// single retry. The pool-sum invariant holds again before this returns.
func (s *ResourceService) AllocateContext(agentID string, tokens int, priority string) error {
	if tokens <= 0 {
		return fmt.Errorf("allocate context: token count %d must be positive", tokens)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tokens <= s.availableLocked() {
		s.contextByAgent[agentID] += tokens
		return nil
	}

	if priority == resource.PriorityHigh {
		s.reclaimLocked(agentID, tokens)
		if tokens <= s.availableLocked() {
			s.contextByAgent[agentID] += tokens
			slog.Debug("context granted after reclaim", "agent_id", agentID, "tokens", tokens)
			return nil
		}
	}

	return fmt.Errorf("allocate %d tokens for %s (available %d): %w",
		tokens, agentID, s.availableLocked(), domain.ErrInsufficientResource)
}

// availableLocked must be called with s.mu held.
func (s *ResourceService) availableLocked() int {
	allocated := 0
	for _, n := range s.contextByAgent {
		allocated += n
	}
	return s.contextTotal - allocated
}

// reclaimLocked frees 25% from each allocated agent, highest first, until
// needed tokens are available or every agent has been visited.
func (s *ResourceService) reclaimLocked(requester string, needed int) {
	type alloc struct {
		agentID string
		tokens  int
	}
	var allocs []alloc
	for id, n := range s.contextByAgent {
		if id != requester && n > 0 {
			allocs = append(allocs, alloc{id, n})
		}
	}
	sort.Slice(allocs, func(i, j int) bool { return allocs[i].tokens > allocs[j].tokens })

	for _, a := range allocs {
		if s.availableLocked() >= needed {
			return
		}
		take := a.tokens / 4
		if take == 0 {
			continue
		}
		s.contextByAgent[a.agentID] -= take
		slog.Info("context reclaimed", "from", a.agentID, "tokens", take, "for", requester)
	}
}

// ReleaseContext returns tokens to the pool, clamped to the agent's current
// allocation so the pool can never go negative.
func (s *ResourceService) ReleaseContext(agentID string, tokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held := s.contextByAgent[agentID]
	if tokens >= held {
		delete(s.contextByAgent, agentID)
		return
	}
	s.contextByAgent[agentID] = held - tokens
}

// ConsumeAPIQuota debits calls against both the per-agent and global
// budgets. The first call past the hourly boundary resets all counters.
func (s *ResourceService) ConsumeAPIQuota(agentID string, calls int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeResetQuotaLocked()

	used := 0
	for _, n := range s.quotaByAgent {
		used += n
	}
	if used+calls > s.quotaTotal {
		return fmt.Errorf("system quota: %d of %d used, reset at %s: %w",
			used, s.quotaTotal, s.quotaResetAt.Format(time.RFC3339), domain.ErrQuotaExceeded)
	}
	if s.quotaByAgent[agentID]+calls > s.quotaPerAgent {
		return fmt.Errorf("agent %s quota: %d of %d used, reset at %s: %w",
			agentID, s.quotaByAgent[agentID], s.quotaPerAgent,
			s.quotaResetAt.Format(time.RFC3339), domain.ErrQuotaExceeded)
	}

	s.quotaByAgent[agentID] += calls
	return nil
}

// CheckAPIQuota returns the agent's remaining budget without consuming it.
func (s *ResourceService) CheckAPIQuota(agentID string) (remaining int, resetAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeResetQuotaLocked()
	return s.quotaPerAgent - s.quotaByAgent[agentID], s.quotaResetAt
}

// maybeResetQuotaLocked must be called with s.mu held.
func (s *ResourceService) maybeResetQuotaLocked() {
	now := s.now()
	if now.Before(s.quotaResetAt) {
		return
	}
	s.quotaByAgent = make(map[string]int)
	s.quotaResetAt = nextHour(now)
	slog.Debug("api quota reset", "reset_at", s.quotaResetAt)
}

// RequestFileAccess grants a file handle. The same agent re-requesting the
// same path is always granted. Distinct agents may share read access; write
// requires the path to have no current holder. A global open-file cap
// applies independent of per-file contention.
func (s *ResourceService) RequestFileAccess(agentID, path string, mode resource.FileMode) *resource.Grant {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, open := s.files[path]
	if open {
		if _, mine := entry.holders[agentID]; mine {
			return &resource.Grant{Granted: true}
		}
		if mode == resource.ModeRead && entry.mode == resource.ModeRead {
			if s.openCountLocked() >= s.maxOpenFiles {
				return &resource.Grant{Granted: false, Reason: "too many open files"}
			}
			entry.holders[agentID] = s.now()
			return &resource.Grant{Granted: true}
		}
		return &resource.Grant{
			Granted:  false,
			Reason:   "Resource locked",
			LockedBy: anyHolder(entry),
		}
	}

	if s.openCountLocked() >= s.maxOpenFiles {
		return &resource.Grant{Granted: false, Reason: "too many open files"}
	}

	s.files[path] = &fileEntry{
		mode:    mode,
		holders: map[string]time.Time{agentID: s.now()},
	}
	return &resource.Grant{Granted: true}
}

// openCountLocked must be called with s.mu held.
func (s *ResourceService) openCountLocked() int {
	count := 0
	for _, e := range s.files {
		count += len(e.holders)
	}
	return count
}

func anyHolder(e *fileEntry) string {
	for id := range e.holders {
		return id
	}
	return ""
}

// ReleaseFileAccess drops the agent's handle on path. Releasing a path the
// agent does not hold is a no-op.
func (s *ResourceService) ReleaseFileAccess(agentID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseFileLocked(agentID, path)
}

// releaseFileLocked must be called with s.mu held.
func (s *ResourceService) releaseFileLocked(agentID, path string) {
	entry, ok := s.files[path]
	if !ok {
		return
	}
	delete(entry.holders, agentID)
	if len(entry.holders) == 0 {
		delete(s.files, path)
	}
}

// ClearAgentResources is the single teardown call the coordinator issues
// after each step, on success and failure alike: it releases the agent's
// context, every file handle it holds, and its quota tracking.
func (s *ResourceService) ClearAgentResources(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.contextByAgent, agentID)
	delete(s.quotaByAgent, agentID)
	for path, entry := range s.files {
		if _, ok := entry.holders[agentID]; ok {
			s.releaseFileLocked(agentID, path)
		}
	}
}

// Status returns a snapshot of all three pools.
func (s *ResourceService) Status() resource.PoolStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeResetQuotaLocked()

	ctxByAgent := make(map[string]int, len(s.contextByAgent))
	allocated := 0
	for id, n := range s.contextByAgent {
		ctxByAgent[id] = n
		allocated += n
	}

	quotaByAgent := make(map[string]int, len(s.quotaByAgent))
	used := 0
	for id, n := range s.quotaByAgent {
		quotaByAgent[id] = n
		used += n
	}

	return resource.PoolStatus{
		Context: resource.ContextStatus{
			Total:     s.contextTotal,
			Allocated: allocated,
			Available: s.contextTotal - allocated,
			ByAgent:   ctxByAgent,
		},
		Quota: resource.QuotaStatus{
			Total:     s.quotaTotal,
			Used:      used,
			Remaining: s.quotaTotal - used,
			ByAgent:   quotaByAgent,
			ResetAt:   s.quotaResetAt,
		},
		Files: resource.FileStatus{
			Open:          s.openCountLocked(),
			MaxConcurrent: s.maxOpenFiles,
			Handles:       s.handlesLocked(),
		},
	}
}

// handlesLocked must be called with s.mu held.
func (s *ResourceService) handlesLocked() []resource.FileHandle {
	var handles []resource.FileHandle
	for path, entry := range s.files {
		for agentID, openedAt := range entry.holders {
			handles = append(handles, resource.FileHandle{
				Path:     path,
				AgentID:  agentID,
				Mode:     entry.mode,
				OpenedAt: openedAt,
			})
		}
	}
	sort.Slice(handles, func(i, j int) bool {
		if handles[i].Path != handles[j].Path {
			return handles[i].Path < handles[j].Path
		}
		return handles[i].AgentID < handles[j].AgentID
	})
	return handles
}
