package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/voidukas/conductor/internal/domain/decomp"
	"github.com/voidukas/conductor/internal/port/cache"
)

// DecomposerService turns a task description into four independent candidate
// decompositions plus derived parallelization data. Analysis is pure and
// deterministic given the task text; repeat analyses hit the cache.
type DecomposerService struct {
	cache cache.Cache
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewDecomposerService creates a DecomposerService backed by the given
// analysis cache. A nil cache disables caching.
func NewDecomposerService(c cache.Cache, ttl time.Duration) *DecomposerService {
	return &DecomposerService{cache: c, ttl: ttl}
}

// CacheStats reports analysis cache hits and misses since startup. A fresh
// analysis counts as a miss even when caching is disabled.
func (s *DecomposerService) CacheStats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

// TaskID derives the deterministic analysis cache key for a task text.
func TaskID(task string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(strings.ToLower(task))))
	return "task-" + hex.EncodeToString(sum[:8])
}

// Analyze produces the decomposition analysis for a task. Never fails and
// never returns an empty decomposition: each of the four views falls back
// to a single generic unit when no keyword matches.
func (s *DecomposerService) Analyze(ctx context.Context, task string) *decomp.Analysis {
	id := TaskID(task)

	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, id); err == nil && ok {
			var cached decomp.Analysis
			if err := json.Unmarshal(raw, &cached); err == nil {
				s.hits.Add(1)
				slog.Debug("analysis cache hit", "task_id", id)
				return &cached
			}
		}
	}
	s.misses.Add(1)

	text := strings.ToLower(task)
	a := &decomp.Analysis{
		TaskID:     id,
		Components: functionalDecomposition(text),
		Zones:      spatialDecomposition(text),
		Phases:     temporalDecomposition(text),
		Segments:   dataDecomposition(text),
	}
	a.Opportunities = parallelizationOpportunities(a)
	a.LatencyReduction = latencyReduction(a)

	if s.cache != nil {
		if raw, err := json.Marshal(a); err == nil {
			if err := s.cache.Set(ctx, id, raw, s.ttl); err != nil {
				slog.Warn("analysis cache write failed", "task_id", id, "error", err)
			}
		}
	}
	return a
}

// matchCount counts vocabulary keywords present in the task text.
func matchCount(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func functionalDecomposition(text string) []decomp.Component {
	var out []decomp.Component
	for _, layer := range functionalLayers {
		hits := matchCount(text, layer.keywords)
		if hits == 0 {
			continue
		}
		effort := hits * 2
		if effort > 8 {
			effort = 8
		}
		out = append(out, decomp.Component{
			Layer:     layer.name,
			Priority:  layer.priority,
			DependsOn: layer.dependsOn,
			Effort:    effort,
		})
	}
	if len(out) == 0 {
		out = append(out, decomp.Component{Layer: "general", Priority: 1, Effort: 3})
	}
	return out
}

func spatialDecomposition(text string) []decomp.Zone {
	var out []decomp.Zone
	for _, zone := range spatialZones {
		if matchCount(text, zone.keywords) == 0 {
			continue
		}
		out = append(out, decomp.Zone{
			Name:     zone.name,
			Service:  zone.service,
			Location: zone.location,
			Latency:  zone.latency,
		})
	}
	if len(out) == 0 {
		out = append(out, decomp.Zone{
			Name:     "general",
			Service:  "core-services",
			Location: decomp.LocationLocal,
			Latency:  decomp.LatencyLow,
		})
	}
	return out
}

func temporalDecomposition(text string) []decomp.Phase {
	var out []decomp.Phase
	for _, phase := range temporalPhases {
		if matchCount(text, phase.keywords) == 0 {
			continue
		}
		out = append(out, decomp.Phase{
			Name:           phase.name,
			ExecutionOrder: phase.order,
			CanDefer:       phase.canDefer,
		})
	}
	if len(out) == 0 {
		out = append(out, decomp.Phase{Name: "execution", ExecutionOrder: 2})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExecutionOrder < out[j].ExecutionOrder
	})
	return out
}

func dataDecomposition(text string) []decomp.Segment {
	var out []decomp.Segment
	for _, pat := range dataPatterns {
		if matchCount(text, pat.keywords) == 0 {
			continue
		}
		out = append(out, decomp.Segment{
			DataType:   pat.name,
			Volume:     pat.volume,
			Velocity:   pat.velocity,
			Processing: pat.processing,
		})
	}
	if len(out) == 0 {
		out = append(out, decomp.Segment{
			DataType:   "general",
			Volume:     "low",
			Velocity:   "low",
			Processing: decomp.ProcessingSync,
		})
	}
	return out
}

// parallelizationOpportunities groups units provable to run concurrently:
// functional layers with no dependencies among the matched set, spatial
// zones sharing a location, and temporal phases sharing an execution order.
// Expected speedup equals group size.
func parallelizationOpportunities(a *decomp.Analysis) []decomp.Opportunity {
	var out []decomp.Opportunity

	matched := make(map[string]bool, len(a.Components))
	for _, c := range a.Components {
		matched[c.Layer] = true
	}
	var independent []string
	for _, c := range a.Components {
		depends := false
		for _, dep := range c.DependsOn {
			if matched[dep] {
				depends = true
				break
			}
		}
		if !depends {
			independent = append(independent, c.Layer)
		}
	}
	if len(independent) > 1 {
		out = append(out, decomp.Opportunity{
			Strategy: decomp.StrategyFunctional,
			Units:    independent,
			Speedup:  len(independent),
		})
	}

	byLocation := make(map[string][]string)
	for _, z := range a.Zones {
		byLocation[z.Location] = append(byLocation[z.Location], z.Name)
	}
	for _, loc := range []string{decomp.LocationLocal, decomp.LocationAdjacent, decomp.LocationRemote} {
		if zones := byLocation[loc]; len(zones) > 1 {
			out = append(out, decomp.Opportunity{
				Strategy: decomp.StrategySpatial,
				Units:    zones,
				Speedup:  len(zones),
			})
		}
	}

	byOrder := make(map[int][]string)
	var orders []int
	for _, ph := range a.Phases {
		if len(byOrder[ph.ExecutionOrder]) == 0 {
			orders = append(orders, ph.ExecutionOrder)
		}
		byOrder[ph.ExecutionOrder] = append(byOrder[ph.ExecutionOrder], ph.Name)
	}
	sort.Ints(orders)
	for _, order := range orders {
		if phases := byOrder[order]; len(phases) > 1 {
			out = append(out, decomp.Opportunity{
				Strategy: decomp.StrategyTemporal,
				Units:    phases,
				Speedup:  len(phases),
			})
		}
	}

	return out
}

// latencyReduction estimates an overall percentage reduction in [0,80] from
// the parallelization opportunities, with bonuses for deferrable phases and
// high-volume streaming-friendly data.
func latencyReduction(a *decomp.Analysis) int {
	reduction := 0
	for _, op := range a.Opportunities {
		reduction += (op.Speedup - 1) * 10
	}
	for _, ph := range a.Phases {
		if ph.CanDefer {
			reduction += 5
		}
	}
	for _, seg := range a.Segments {
		if seg.Volume == "high" && seg.Processing == decomp.ProcessingStreaming {
			reduction += 5
		}
	}
	if reduction > 80 {
		reduction = 80
	}
	return reduction
}

// Summary renders a short human-readable view of the analysis, used in
// workflow step context and logs.
func Summary(a *decomp.Analysis) string {
	return fmt.Sprintf("%d layers, %d zones, %d phases, %d segments, ~%d%% latency reduction",
		len(a.Components), len(a.Zones), len(a.Phases), len(a.Segments), a.LatencyReduction)
}
