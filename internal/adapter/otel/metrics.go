package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voidukas/conductor/internal/domain/event"
	"github.com/voidukas/conductor/internal/domain/workflow"
)

const meterName = "conductor"

// Metrics holds all orchestration metric instruments.
type Metrics struct {
	WorkflowsStarted   metric.Int64Counter
	WorkflowsCompleted metric.Int64Counter
	WorkflowsFailed    metric.Int64Counter
	AgentSteps         metric.Int64Counter
	ActiveAgents       metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.WorkflowsStarted, err = meter.Int64Counter("conductor.workflows.started",
		metric.WithDescription("Number of workflows started"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsCompleted, err = meter.Int64Counter("conductor.workflows.completed",
		metric.WithDescription("Number of workflows completed successfully"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsFailed, err = meter.Int64Counter("conductor.workflows.failed",
		metric.WithDescription("Number of workflows failed"))
	if err != nil {
		return nil, err
	}

	m.AgentSteps, err = meter.Int64Counter("conductor.agent.steps",
		metric.WithDescription("Number of agent steps executed"))
	if err != nil {
		return nil, err
	}

	m.ActiveAgents, err = meter.Int64UpDownCounter("conductor.agents.thinking",
		metric.WithDescription("Agents currently executing a step"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// BroadcastEvent implements the broadcast port: the Metrics observer counts
// lifecycle events instead of delivering them anywhere. Fan it out next to
// the real transports.
func (m *Metrics) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	switch eventType {
	case event.WorkflowStart:
		if evt, ok := payload.(event.WorkflowEvent); ok {
			m.WorkflowsStarted.Add(ctx, 1,
				metric.WithAttributes(attribute.String("tier", evt.Tier)))
		}
	case event.WorkflowComplete:
		evt, ok := payload.(event.WorkflowEvent)
		if !ok {
			return
		}
		attrs := metric.WithAttributes(
			attribute.String("tier", evt.Tier),
			attribute.String("topology", evt.Topology),
		)
		if evt.Status == string(workflow.StatusCompleted) {
			m.WorkflowsCompleted.Add(ctx, 1, attrs)
		} else {
			m.WorkflowsFailed.Add(ctx, 1, attrs)
		}
	case event.AgentThinking:
		m.ActiveAgents.Add(ctx, 1)
	case event.AgentResponse:
		m.ActiveAgents.Add(ctx, -1)
		if evt, ok := payload.(event.AgentEvent); ok {
			m.AgentSteps.Add(ctx, 1,
				metric.WithAttributes(attribute.String("role", evt.Role)))
		}
	}
}
