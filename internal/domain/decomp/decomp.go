// Package decomp defines the four candidate decompositions of a task.
package decomp

// Strategy identifies one of the four independent decomposition views.
type Strategy string

const (
	StrategyFunctional Strategy = "functional"
	StrategySpatial    Strategy = "spatial"
	StrategyTemporal   Strategy = "temporal"
	StrategyData       Strategy = "data"
)

// ValidStrategy reports whether s is a known strategy.
func ValidStrategy(s string) bool {
	switch Strategy(s) {
	case StrategyFunctional, StrategySpatial, StrategyTemporal, StrategyData:
		return true
	}
	return false
}

// SelectionWeight breaks ties when no strategy dominates by unit count.
func (s Strategy) SelectionWeight() int {
	switch s {
	case StrategyFunctional:
		return 10
	case StrategySpatial:
		return 8
	case StrategyData:
		return 7
	case StrategyTemporal:
		return 6
	}
	return 0
}

// Component is one functional layer matched in the task text.
type Component struct {
	Layer     string   `json:"layer"`
	Priority  int      `json:"priority"`
	DependsOn []string `json:"depends_on,omitempty"`
	Effort    int      `json:"effort"` // from keyword match density
}

// Location classes for spatial zones.
const (
	LocationLocal    = "local"
	LocationAdjacent = "adjacent"
	LocationRemote   = "remote"
)

// Latency classes for spatial zones.
const (
	LatencyLow    = "low"
	LatencyMedium = "medium"
	LatencyHigh   = "high"
)

// Zone is one spatial service zone matched in the task text.
type Zone struct {
	Name     string `json:"name"`
	Service  string `json:"service"`
	Location string `json:"location"`
	Latency  string `json:"latency"`
}

// Phase is one temporal phase, ordered by ExecutionOrder.
type Phase struct {
	Name           string `json:"name"`
	ExecutionOrder int    `json:"execution_order"`
	CanDefer       bool   `json:"can_defer"`
}

// Processing strategies for data segments.
const (
	ProcessingSync      = "synchronous"
	ProcessingBatch     = "batch"
	ProcessingStreaming = "streaming"
)

// Segment is one data-driven segment with an estimated shape.
type Segment struct {
	DataType   string `json:"data_type"`
	Volume     string `json:"volume"`   // low | medium | high
	Velocity   string `json:"velocity"` // low | medium | high
	Processing string `json:"processing"`
}

// Opportunity is a group of units provable to run in parallel.
type Opportunity struct {
	Strategy Strategy `json:"strategy"`
	Units    []string `json:"units"`
	Speedup  int      `json:"speedup"` // expected speedup factor = group size
}

// Analysis holds the four decompositions plus derived parallelization data.
// Immutable after creation and cached by TaskID.
type Analysis struct {
	TaskID           string        `json:"task_id"`
	Components       []Component   `json:"components"`
	Zones            []Zone        `json:"zones"`
	Phases           []Phase       `json:"phases"`
	Segments         []Segment     `json:"segments"`
	Opportunities    []Opportunity `json:"opportunities"`
	LatencyReduction int           `json:"latency_reduction"` // heuristic, [0,80]
}

// UnitCount returns the number of units the given strategy produced.
func (a *Analysis) UnitCount(s Strategy) int {
	switch s {
	case StrategyFunctional:
		return len(a.Components)
	case StrategySpatial:
		return len(a.Zones)
	case StrategyTemporal:
		return len(a.Phases)
	case StrategyData:
		return len(a.Segments)
	}
	return 0
}

// DominantStrategy picks the strategy with the most units, breaking ties by
// the fixed selection weights.
func (a *Analysis) DominantStrategy() Strategy {
	best := StrategyFunctional
	bestCount := a.UnitCount(best)
	for _, s := range []Strategy{StrategySpatial, StrategyData, StrategyTemporal} {
		c := a.UnitCount(s)
		if c > bestCount || (c == bestCount && s.SelectionWeight() > best.SelectionWeight()) {
			best, bestCount = s, c
		}
	}
	return best
}
