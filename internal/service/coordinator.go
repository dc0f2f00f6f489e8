package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voidukas/conductor/internal/config"
	"github.com/voidukas/conductor/internal/domain"
	"github.com/voidukas/conductor/internal/domain/agent"
	"github.com/voidukas/conductor/internal/domain/comms"
	"github.com/voidukas/conductor/internal/domain/decomp"
	"github.com/voidukas/conductor/internal/domain/event"
	"github.com/voidukas/conductor/internal/domain/resource"
	"github.com/voidukas/conductor/internal/domain/routing"
	"github.com/voidukas/conductor/internal/domain/tier"
	"github.com/voidukas/conductor/internal/domain/workflow"
	"github.com/voidukas/conductor/internal/port/archive"
	"github.com/voidukas/conductor/internal/port/auditlog"
	"github.com/voidukas/conductor/internal/port/broadcast"
	"github.com/voidukas/conductor/internal/port/invoker"
)

// CoordinatorService owns workflow lifecycle and topology dispatch. It is
// the only component that mutates agent status; all cross-agent signaling
// goes through the protocol and all capacity through the resource manager.
type CoordinatorService struct {
	mu          sync.Mutex
	pool        *agent.Pool
	tier        tier.Tier
	strategy    decomp.Strategy
	initialized bool

	workflows    map[string]*workflow.Workflow
	order        []string
	maxWorkflows int
	cancels      map[string]context.CancelFunc

	executed  int
	succeeded int
	failed    int

	protocol    *ProtocolService
	resources   *ResourceService
	router      *RouterService
	invoker     invoker.Invoker
	broadcaster broadcast.Broadcaster
	audit       auditlog.Sink
	archive     archive.Store

	stepTimeout     time.Duration
	maxBatchWorkers int
}

// CoordinatorDeps wires the coordinator's collaborators.
type CoordinatorDeps struct {
	Protocol    *ProtocolService
	Resources   *ResourceService
	Router      *RouterService
	Invoker     invoker.Invoker
	Broadcaster broadcast.Broadcaster
	Audit       auditlog.Sink
	Archive     archive.Store
}

// NewCoordinatorService creates an uninitialized coordinator. Initialize
// must run before ExecuteTask.
func NewCoordinatorService(cfg config.Orchestrator, deps CoordinatorDeps) *CoordinatorService {
	bc := deps.Broadcaster
	if bc == nil {
		bc = broadcast.Nop{}
	}
	audit := deps.Audit
	if audit == nil {
		audit = auditlog.Nop{}
	}
	arch := deps.Archive
	if arch == nil {
		arch = archive.Nop{}
	}
	return &CoordinatorService{
		workflows:       make(map[string]*workflow.Workflow),
		cancels:         make(map[string]context.CancelFunc),
		maxWorkflows:    cfg.MaxWorkflows,
		protocol:        deps.Protocol,
		resources:       deps.Resources,
		router:          deps.Router,
		invoker:         deps.Invoker,
		broadcaster:     bc,
		audit:           audit,
		archive:         arch,
		stepTimeout:     cfg.StepTimeout,
		maxBatchWorkers: cfg.MaxBatchWorkers,
	}
}

// Initialize builds the agent pool for the tier (one agent per role slot,
// named role-index), registers every agent with the protocol, and records
// the init decision for audit. Re-initializing replaces the pool, but is
// refused with ErrPoolBusy while any workflow is still running.
func (s *CoordinatorService) Initialize(ctx context.Context, t tier.Tier, strategy decomp.Strategy) error {
	if !tier.Valid(string(t)) {
		return fmt.Errorf("initialize: unknown tier %q", t)
	}
	if strategy != "" && !decomp.ValidStrategy(string(strategy)) {
		return fmt.Errorf("initialize: unknown strategy %q", strategy)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, wf := range s.workflows {
		if !wf.Status.IsTerminal() {
			return fmt.Errorf("initialize: workflow %s still running: %w", wf.ID, domain.ErrPoolBusy)
		}
	}

	if s.pool != nil {
		for _, id := range s.pool.IDs() {
			s.protocol.UnregisterAgent(id)
			s.resources.ClearAgentResources(id)
		}
	}

	slots := t.RoleSlots()
	agents := make([]*agent.Agent, 0, len(slots))
	indexByRole := make(map[agent.Role]int, len(slots))
	for _, role := range slots {
		idx := indexByRole[role]
		indexByRole[role] = idx + 1
		a := agent.New(role, idx, tier.ModelFor(role).Primary, agent.QualityPremium)
		agents = append(agents, a)
		s.protocol.RegisterAgent(a.ID)
	}

	s.pool = agent.NewPool(agents)
	s.tier = t
	s.strategy = strategy
	s.initialized = true

	if err := s.audit.Record(ctx, auditlog.Entry{
		Actor:    "coordinator",
		Action:   "initialize",
		Decision: string(t),
		Context: map[string]any{
			"agents":   len(agents),
			"topology": string(t.Topology()),
			"strategy": string(strategy),
		},
		At: time.Now(),
	}); err != nil {
		slog.Warn("audit record failed", "action", "initialize", "error", err)
	}
	slog.Info("coordinator initialized", "tier", t, "agents", len(agents), "topology", t.Topology())
	return nil
}

// ExecuteRequest describes one task submission.
type ExecuteRequest struct {
	Task             string         `json:"task"`
	TaskType         tier.TaskType  `json:"task_type,omitempty"`
	Context          map[string]any `json:"context,omitempty"`
	Priority         string         `json:"priority,omitempty"` // normal | high
	Strategy         decomp.Strategy `json:"strategy,omitempty"`
	UseDecomposition bool           `json:"use_decomposition,omitempty"`
}

// Validate normalizes defaults and rejects malformed submissions.
func (r *ExecuteRequest) Validate() error {
	if r.Task == "" {
		return fmt.Errorf("task is required")
	}
	if r.TaskType == "" {
		r.TaskType = tier.TaskGeneral
	}
	if r.Priority == "" {
		r.Priority = "normal"
	}
	if r.Priority != "normal" && r.Priority != "high" {
		return fmt.Errorf("priority %q must be normal or high", r.Priority)
	}
	if r.Strategy != "" && !decomp.ValidStrategy(string(r.Strategy)) {
		return fmt.Errorf("unknown strategy %q", r.Strategy)
	}
	return nil
}

// ExecuteTask runs one task to completion under the tier's topology (or
// decomposed fan-out when the routing plan yields parallel batches). The
// returned Result always carries Success; an error return means a
// programmer error (uninitialized coordinator, malformed request), never a
// mere step failure.
func (s *CoordinatorService) ExecuteTask(ctx context.Context, req ExecuteRequest) (*workflow.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("execute task: %w", err)
	}

	wf := &workflow.Workflow{
		ID:        uuid.NewString(),
		Task:      req.Task,
		TaskType:  req.TaskType,
		Status:    workflow.StatusRunning,
		StartedAt: time.Now(),
	}

	// CancelWorkflow aborts in-flight steps through this context.
	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// One critical section captures the live pool and tier and makes the
	// workflow visible as running: Initialize refuses to swap the pool
	// while any workflow runs, so the capture stays the live pool for the
	// whole execution.
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil, fmt.Errorf("execute task: %w", domain.ErrNotInitialized)
	}
	t := s.tier
	pool := s.pool
	strategy := s.strategy
	wf.Tier = t
	wf.Topology = t.Topology()
	s.storeWorkflowLocked(wf)
	s.cancels[wf.ID] = cancel
	s.mu.Unlock()

	s.broadcaster.BroadcastEvent(ctx, event.WorkflowStart, event.WorkflowEvent{
		WorkflowID: wf.ID,
		Tier:       string(wf.Tier),
		Topology:   string(wf.Topology),
		Status:     string(wf.Status),
	})

	if req.UseDecomposition {
		wf.Plan = s.buildPlan(ctx, req, t, strategy)
	}

	assigned := s.assignAgents(ctx, wf, req.TaskType, t, pool)
	if len(assigned) == 0 {
		wf.RecordError("", "assignment", "no agents available")
		s.finishWorkflow(ctx, wf, fmt.Errorf("%w for tier %s", domain.ErrNoAgentsAvailable, t), nil, pool)
		return workflow.ResultOf(wf), nil
	}
	wf.AgentIDs = agentIDs(assigned)

	run := runState{
		mu:       &s.mu,
		pool:     pool,
		req:      req,
		priority: req.Priority,
	}

	var execErr error
	if wf.Plan != nil && len(wf.Plan.Batches) > 0 {
		execErr = s.executeDecomposed(execCtx, wf, assigned, &run)
	} else {
		switch wf.Topology {
		case tier.TopologyPipeline:
			execErr = s.executePipeline(execCtx, wf, assigned, &run)
		case tier.TopologyCollaborative:
			execErr = s.executeCollaborative(execCtx, wf, assigned, &run)
		default:
			execErr = s.executeSequential(execCtx, wf, assigned, &run)
		}
	}

	s.finishWorkflow(ctx, wf, execErr, assigned, pool)
	return workflow.ResultOf(wf), nil
}

// runState carries per-execution settings into topology loops, including
// the pool captured at submission so a later re-initialize cannot swap it
// mid-flight. It borrows the coordinator's mutex so workflow mutation from
// concurrent stages and batches is serialized against status reads.
// Critical sections stay short and never call back into lock-taking
// coordinator methods.
type runState struct {
	mu       *sync.Mutex
	pool     *agent.Pool
	req      ExecuteRequest
	priority string
}

// buildPlan routes the task, recovering from any decomposition panic:
// decomposition is an optimization, never a hard dependency, so a failure
// here falls back to standard assignment.
func (s *CoordinatorService) buildPlan(ctx context.Context, req ExecuteRequest, t tier.Tier, defaultStrategy decomp.Strategy) (plan *routing.Plan) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("decomposition failed, using standard assignment", "panic", r)
			plan = nil
		}
	}()
	return s.router.Route(ctx, req.Task, RouteOptions{
		Tier:              t,
		PreferredStrategy: firstStrategy(req.Strategy, defaultStrategy),
	})
}

func firstStrategy(prefs ...decomp.Strategy) decomp.Strategy {
	for _, p := range prefs {
		if p != "" {
			return p
		}
	}
	return ""
}

// assignAgents marks agents busy on the workflow: from the routing plan's
// role sets when available, else from the tier capability table, always
// backfilling still-missing tier-default roles with idle agents.
func (s *CoordinatorService) assignAgents(ctx context.Context, wf *workflow.Workflow, tt tier.TaskType, t tier.Tier, pool *agent.Pool) []*agent.Agent {
	var wanted []agent.Role
	if wf.Plan != nil {
		seen := make(map[agent.Role]bool)
		for _, route := range wf.Plan.Routes {
			for _, role := range route.Roles {
				if !seen[role] {
					seen[role] = true
					wanted = append(wanted, role)
				}
			}
		}
	} else {
		wanted = t.CapableRoles(tt)
	}

	var assigned []*agent.Agent
	claim := func(role agent.Role) {
		if len(assigned) >= t.MaxAgents() {
			return
		}
		if a := pool.AssignIdleByRole(role, wf.ID); a != nil {
			assigned = append(assigned, a)
			s.broadcaster.BroadcastEvent(ctx, event.AgentAssigned, event.AgentEvent{
				WorkflowID: wf.ID,
				AgentID:    a.ID,
				Role:       string(a.Role),
				Model:      a.Model,
			})
		}
	}

	for _, role := range wanted {
		claim(role)
	}
	for _, role := range t.RoleSlots() {
		if !hasRole(assigned, role) {
			claim(role)
		}
	}
	return assigned
}

func hasRole(agents []*agent.Agent, role agent.Role) bool {
	for _, a := range agents {
		if a.Role == role {
			return true
		}
	}
	return false
}

func agentIDs(agents []*agent.Agent) []string {
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		ids = append(ids, a.ID)
	}
	return ids
}

// finishWorkflow moves the workflow to its terminal state, releases every
// assigned agent and its resources, updates statistics, and emits the
// completion event.
func (s *CoordinatorService) finishWorkflow(ctx context.Context, wf *workflow.Workflow, execErr error, assigned []*agent.Agent, pool *agent.Pool) {
	if execErr != nil {
		slog.Warn("workflow failed", "workflow_id", wf.ID, "error", execErr)
	}

	s.mu.Lock()
	delete(s.cancels, wf.ID)
	finished := wf.Status.IsTerminal() // cancelled mid-flight
	if !finished {
		wf.Finish(execErr != nil)
		s.executed++
		if execErr != nil {
			s.failed++
		} else {
			s.succeeded++
		}
	}
	snapshot := *wf
	s.mu.Unlock()

	for _, a := range assigned {
		pool.Release(a.ID, false)
		s.resources.ClearAgentResources(a.ID)
		s.protocol.ClearMessages(a.ID)
	}
	// Archival is history, not orchestration: write it off the hot path.
	go func() {
		if err := s.archive.SaveWorkflow(context.WithoutCancel(ctx), snapshot); err != nil {
			slog.Warn("workflow archive write failed", "workflow_id", snapshot.ID, "error", err)
		}
	}()
	if finished {
		return
	}

	evt := event.WorkflowEvent{
		WorkflowID: snapshot.ID,
		Tier:       string(snapshot.Tier),
		Topology:   string(snapshot.Topology),
		Status:     string(snapshot.Status),
		StepCount:  len(snapshot.Steps),
	}
	if execErr != nil {
		evt.Error = execErr.Error()
	}
	s.broadcaster.BroadcastEvent(ctx, event.WorkflowComplete, evt)

	if err := s.audit.Record(ctx, auditlog.Entry{
		Actor:    "coordinator",
		Action:   "workflow_finished",
		Decision: string(snapshot.Status),
		Context: map[string]any{
			"workflow_id": snapshot.ID,
			"steps":       len(snapshot.Steps),
			"errors":      len(snapshot.Errors),
			"duration_ms": snapshot.Duration().Milliseconds(),
		},
		At: time.Now(),
	}); err != nil {
		slog.Warn("audit record failed", "action", "workflow_finished", "error", err)
	}
}

// storeWorkflowLocked retains the workflow, evicting the oldest terminal
// one when the retention cap is exceeded. Running workflows are never
// evicted. Must be called with s.mu held.
func (s *CoordinatorService) storeWorkflowLocked(wf *workflow.Workflow) {
	s.workflows[wf.ID] = wf
	s.order = append(s.order, wf.ID)

	if s.maxWorkflows <= 0 || len(s.workflows) <= s.maxWorkflows {
		return
	}
	for i, id := range s.order {
		old := s.workflows[id]
		if old != nil && old.Status.IsTerminal() {
			delete(s.workflows, id)
			s.order = append(s.order[:i], s.order[i+1:]...)
			slog.Debug("workflow evicted", "workflow_id", id)
			return
		}
	}
}

// runStep delegates one unit of agent work to the model invoker: allocate
// context, consume quota, invoke with the step timeout, and attempt the
// one-shot model-quality fallback on failure. Resources are always cleared,
// success or failure.
func (s *CoordinatorService) runStep(ctx context.Context, wf *workflow.Workflow, ag *agent.Agent, stage, routeID, prompt string, stepCtx map[string]any, run *runState) (string, error) {
	s.broadcaster.BroadcastEvent(ctx, event.AgentThinking, event.AgentEvent{
		WorkflowID: wf.ID,
		AgentID:    ag.ID,
		Role:       string(ag.Role),
		Stage:      stage,
		Model:      ag.Model,
	})

	priority := resource.PriorityNormal
	if run.priority == "high" {
		priority = resource.PriorityHigh
	}
	if err := s.resources.AllocateContext(ag.ID, estimateTokens(prompt), priority); err != nil {
		return "", fmt.Errorf("agent %s: %w", ag.ID, err)
	}
	defer s.resources.ClearAgentResources(ag.ID)

	if err := s.resources.ConsumeAPIQuota(ag.ID, 1); err != nil {
		return "", fmt.Errorf("agent %s: %w", ag.ID, err)
	}

	started := time.Now()
	output, usedFallback, err := s.invokeWithFallback(ctx, wf, ag, stage, prompt, stepCtx, run)
	if err != nil {
		return "", err
	}

	run.mu.Lock()
	wf.RecordStep(workflow.Step{
		AgentID:  ag.ID,
		Role:     string(ag.Role),
		Stage:    stage,
		RouteID:  routeID,
		Output:   output,
		Duration: time.Since(started),
		Fallback: usedFallback,
	})
	stepCount := len(wf.Steps)
	run.mu.Unlock()
	s.broadcaster.BroadcastEvent(ctx, event.WorkflowUpdate, event.WorkflowEvent{
		WorkflowID: wf.ID,
		Tier:       string(wf.Tier),
		Topology:   string(wf.Topology),
		Status:     string(workflow.StatusRunning),
		StepCount:  stepCount,
	})
	s.broadcaster.BroadcastEvent(ctx, event.AgentResponse, event.AgentEvent{
		WorkflowID: wf.ID,
		AgentID:    ag.ID,
		Role:       string(ag.Role),
		Stage:      stage,
		Output:     output,
	})
	return output, nil
}

// invokeWithFallback performs the model call, retrying once on the opposite
// quality tier. A timeout at the call boundary is treated identically to a
// model error.
func (s *CoordinatorService) invokeWithFallback(ctx context.Context, wf *workflow.Workflow, ag *agent.Agent, stage, prompt string, stepCtx map[string]any, run *runState) (string, bool, error) {
	res, err := s.invoke(ctx, ag.Role, ag.Model, prompt, stepCtx)
	if err == nil {
		return res.Content, false, nil
	}
	run.mu.Lock()
	wf.RecordError(ag.ID, stage, err.Error())
	run.mu.Unlock()

	fallbackQuality := ag.Quality.Opposite()
	fallbackModel := tier.ModelForQuality(ag.Role, fallbackQuality)
	slog.Warn("step failed, swapping model", "agent_id", ag.ID, "stage", stage,
		"from", ag.Model, "to", fallbackModel, "error", err)
	run.pool.SwapModel(ag.ID, fallbackModel, fallbackQuality)

	if err := s.resources.ConsumeAPIQuota(ag.ID, 1); err != nil {
		return "", false, fmt.Errorf("agent %s fallback: %w", ag.ID, err)
	}
	res, err = s.invoke(ctx, ag.Role, fallbackModel, prompt, stepCtx)
	if err != nil {
		run.mu.Lock()
		wf.RecordError(ag.ID, stage, err.Error())
		run.mu.Unlock()
		return "", false, fmt.Errorf("agent %s: fallback exhausted: %w", ag.ID, err)
	}
	return res.Content, true, nil
}

func (s *CoordinatorService) invoke(ctx context.Context, role agent.Role, model, prompt string, stepCtx map[string]any) (*invoker.Result, error) {
	callCtx := ctx
	if s.stepTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.stepTimeout)
		defer cancel()
	}
	return s.invoker.Invoke(callCtx, invoker.Request{
		AgentRole: string(role),
		Model:     model,
		Prompt:    prompt,
		Context:   stepCtx,
	})
}

// estimateTokens sizes a context allocation from the prompt length.
func estimateTokens(prompt string) int {
	return 1000 + len(prompt)/4
}

// broadcastToPeers sends a QUERY message carrying content from one agent to
// every other assigned agent.
func (s *CoordinatorService) broadcastToPeers(from *agent.Agent, peers []*agent.Agent, content string) {
	for _, peer := range peers {
		if peer.ID == from.ID {
			continue
		}
		if _, err := s.protocol.SendMessage(from.ID, peer.ID, comms.MessageQuery, map[string]any{
			"content": content,
		}, comms.PriorityNormal); err != nil {
			slog.Warn("peer broadcast failed", "from", from.ID, "to", peer.ID, "error", err)
		}
	}
}
