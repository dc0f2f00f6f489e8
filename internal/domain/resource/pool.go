// Package resource defines the shared capacity entities arbitrated by the
// resource manager and the lock entities managed by the protocol.
package resource

import "time"

// Allocation priorities. High-priority context requests may trigger reclaim.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// LockType names the kind of lockable resource.
type LockType string

const (
	LockFile      LockType = "file"
	LockDirectory LockType = "directory"
	LockTerminal  LockType = "terminal"
)

// Key builds the lock-table key for a typed resource.
func Key(t LockType, id string) string {
	return string(t) + ":" + id
}

// Lock is an exclusive claim on a named resource with an absolute expiry.
// Expired locks are reclaimed lazily on the next contention.
type Lock struct {
	Key        string    `json:"key"`
	HolderID   string    `json:"holder_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lock has passed its expiry.
func (l *Lock) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// Grant is the outcome of a lock or file-access request. Denials carry the
// current holder and expiry so callers can back off intelligently.
type Grant struct {
	Granted   bool      `json:"granted"`
	Reason    string    `json:"reason,omitempty"`
	LockedBy  string    `json:"locked_by,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Queued    bool      `json:"queued,omitempty"`
}

// FileMode is the requested access mode for a file handle.
type FileMode string

const (
	ModeRead  FileMode = "read"
	ModeWrite FileMode = "write"
)

// FileHandle tracks one agent's open handle on a path.
type FileHandle struct {
	Path     string    `json:"path"`
	AgentID  string    `json:"agent_id"`
	Mode     FileMode  `json:"mode"`
	OpenedAt time.Time `json:"opened_at"`
}

// ContextStatus is a snapshot of the context-memory pool.
type ContextStatus struct {
	Total     int            `json:"total"`
	Allocated int            `json:"allocated"`
	Available int            `json:"available"`
	ByAgent   map[string]int `json:"by_agent"`
}

// QuotaStatus is a snapshot of the API quota pool.
type QuotaStatus struct {
	Total     int            `json:"total"`
	Used      int            `json:"used"`
	Remaining int            `json:"remaining"`
	ByAgent   map[string]int `json:"by_agent"`
	ResetAt   time.Time      `json:"reset_at"`
}

// FileStatus is a snapshot of open file handles.
type FileStatus struct {
	Open          int          `json:"open"`
	MaxConcurrent int          `json:"max_concurrent"`
	Handles       []FileHandle `json:"handles,omitempty"`
}

// PoolStatus aggregates all three capacity views.
type PoolStatus struct {
	Context ContextStatus `json:"context"`
	Quota   QuotaStatus   `json:"quota"`
	Files   FileStatus    `json:"files"`
}
