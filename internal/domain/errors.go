// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoAgentsAvailable indicates no agent could be assigned to a workflow.
// It is terminal for the workflow; the caller may submit a new task.
var ErrNoAgentsAvailable = errors.New("no agents available")

// ErrInsufficientResource indicates a context-memory allocation could not be
// satisfied, even after reclaim for high-priority requests.
var ErrInsufficientResource = errors.New("insufficient context memory")

// ErrQuotaExceeded indicates an agent-level or system-level API quota limit.
var ErrQuotaExceeded = errors.New("api quota exceeded")

// ErrResourceDenied indicates a lock or file-access request was refused
// because another agent holds the resource.
var ErrResourceDenied = errors.New("resource locked")

// ErrDecisionClosed indicates a vote arrived after the decision reached a
// terminal state.
var ErrDecisionClosed = errors.New("decision is no longer pending")

// ErrNotInitialized indicates ExecuteTask was called before Initialize.
var ErrNotInitialized = errors.New("coordinator not initialized")

// ErrPoolBusy indicates Initialize was refused because workflows are still
// running against the current agent pool.
var ErrPoolBusy = errors.New("agent pool is busy")
