package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/voidukas/conductor/internal/domain/decomp"
)

// memCache is a minimal in-memory cache used to observe caching behavior.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	hits    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return raw, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func TestAnalyzeNeverEmpty(t *testing.T) {
	d := NewDecomposerService(nil, 0)

	for _, task := range []string{
		"",
		"xyzzy plugh nothing matches here qqqq",
		"build a rest api with a database schema and ui components",
	} {
		a := d.Analyze(context.Background(), task)
		if len(a.Components) == 0 {
			t.Errorf("task %q: empty functional decomposition", task)
		}
		if len(a.Zones) == 0 {
			t.Errorf("task %q: empty spatial decomposition", task)
		}
		if len(a.Phases) == 0 {
			t.Errorf("task %q: empty temporal decomposition", task)
		}
		if len(a.Segments) == 0 {
			t.Errorf("task %q: empty data decomposition", task)
		}
		if a.LatencyReduction < 0 || a.LatencyReduction > 80 {
			t.Errorf("task %q: latency reduction %d out of [0,80]", task, a.LatencyReduction)
		}
	}
}

func TestAnalyzeFunctionalLayers(t *testing.T) {
	d := NewDecomposerService(nil, 0)

	a := d.Analyze(context.Background(), "build a rest api endpoint backed by a database schema with ui components and tests")

	layers := make(map[string]decomp.Component)
	for _, c := range a.Components {
		layers[c.Layer] = c
	}
	for _, want := range []string{"ui", "api", "database", "testing"} {
		if _, ok := layers[want]; !ok {
			t.Errorf("layer %q not matched (got %v)", want, a.Components)
		}
	}
	if ui, ok := layers["ui"]; ok {
		if len(ui.DependsOn) == 0 {
			t.Error("ui layer should carry its static dependency list")
		}
	}
}

func TestAnalyzeTemporalOrdering(t *testing.T) {
	d := NewDecomposerService(nil, 0)

	a := d.Analyze(context.Background(), "cleanup old records, then implement the new handler and verify it")

	for i := 1; i < len(a.Phases); i++ {
		if a.Phases[i].ExecutionOrder < a.Phases[i-1].ExecutionOrder {
			t.Fatalf("phases not sorted by execution order: %v", a.Phases)
		}
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	d := NewDecomposerService(nil, 0)
	task := "stream log events into the metrics pipeline"

	a := d.Analyze(context.Background(), task)
	b := d.Analyze(context.Background(), task)

	if a.TaskID != b.TaskID {
		t.Fatalf("task IDs differ: %s vs %s", a.TaskID, b.TaskID)
	}
	if len(a.Segments) != len(b.Segments) || len(a.Opportunities) != len(b.Opportunities) {
		t.Fatal("repeat analysis produced a different shape")
	}
}

func TestAnalyzeCaching(t *testing.T) {
	mc := newMemCache()
	d := NewDecomposerService(mc, time.Minute)
	task := "add caching to the api layer"

	first := d.Analyze(context.Background(), task)
	second := d.Analyze(context.Background(), task)

	if mc.hits != 1 {
		t.Errorf("cache hits = %d, want 1", mc.hits)
	}
	if first.TaskID != second.TaskID {
		t.Errorf("task IDs differ: %s vs %s", first.TaskID, second.TaskID)
	}
	if hits, misses := d.CacheStats(); hits != 1 || misses != 1 {
		t.Errorf("cache stats = %d/%d, want 1 hit 1 miss", hits, misses)
	}
}

func TestParallelizationOpportunities(t *testing.T) {
	d := NewDecomposerService(nil, 0)

	// database and infrastructure have no dependencies among matched
	// layers; cache-layer and database-layer share the adjacent location.
	a := d.Analyze(context.Background(), "provision infrastructure, create the database schema, and add a cache layer")

	var functional, spatial bool
	for _, op := range a.Opportunities {
		switch op.Strategy {
		case decomp.StrategyFunctional:
			functional = true
		case decomp.StrategySpatial:
			spatial = true
		}
		if op.Speedup != len(op.Units) {
			t.Errorf("opportunity speedup %d != group size %d", op.Speedup, len(op.Units))
		}
		if len(op.Units) < 2 {
			t.Errorf("opportunity with fewer than 2 units: %v", op)
		}
	}
	if !functional {
		t.Error("expected a functional parallelization opportunity")
	}
	if !spatial {
		t.Error("expected a spatial parallelization opportunity")
	}
	if a.LatencyReduction == 0 {
		t.Error("expected a nonzero latency reduction")
	}
}

func TestDominantStrategy(t *testing.T) {
	d := NewDecomposerService(nil, 0)

	// Single generic unit per view: counts tie, weights pick functional.
	a := d.Analyze(context.Background(), "qqqq")
	if got := a.DominantStrategy(); got != decomp.StrategyFunctional {
		t.Errorf("dominant strategy = %s, want functional on ties", got)
	}
}
