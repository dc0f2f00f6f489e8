package agent

import (
	"sync"
	"testing"
)

func newRolePool(roles ...Role) *Pool {
	agents := make([]*Agent, 0, len(roles))
	index := make(map[Role]int, len(roles))
	for _, r := range roles {
		i := index[r]
		index[r] = i + 1
		agents = append(agents, New(r, i, "gpt-test", QualityPremium))
	}
	return NewPool(agents)
}

func TestPoolSlotNaming(t *testing.T) {
	p := newRolePool(RoleCoder, RoleCoder, RoleReviewer)

	if a := p.Get("coder-1"); a == nil {
		t.Fatal("expected second coder slot named coder-1")
	}
	if a := p.Get("reviewer-0"); a == nil {
		t.Fatal("expected reviewer slot named reviewer-0")
	}
	if a := p.Get("coder-2"); a != nil {
		t.Fatal("no third coder should exist")
	}
}

func TestAssignIdleByRoleNoDoubleAssignment(t *testing.T) {
	p := newRolePool(RoleCoder)

	first := p.AssignIdleByRole(RoleCoder, "wf-1")
	if first == nil {
		t.Fatal("expected assignment to succeed")
	}
	if second := p.AssignIdleByRole(RoleCoder, "wf-2"); second != nil {
		t.Fatalf("busy agent %s reassigned", second.ID)
	}

	p.Release(first.ID, false)
	if again := p.AssignIdleByRole(RoleCoder, "wf-3"); again == nil {
		t.Fatal("released agent should be assignable again")
	}
}

func TestAssignIdleByRoleConcurrent(t *testing.T) {
	p := newRolePool(RoleCoder, RoleCoder, RoleCoder)

	var mu sync.Mutex
	claimed := map[string]bool{}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a := p.AssignIdleByRole(RoleCoder, "wf-x"); a != nil {
				mu.Lock()
				if claimed[a.ID] {
					t.Errorf("agent %s claimed twice", a.ID)
				}
				claimed[a.ID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != 3 {
		t.Fatalf("claimed %d agents, want 3", len(claimed))
	}
}

func TestReleaseFailedMarksError(t *testing.T) {
	p := newRolePool(RoleTester)

	a := p.AssignIdleByRole(RoleTester, "wf-1")
	p.Release(a.ID, true)

	counts := p.CountByStatus()
	if counts[StatusError] != 1 {
		t.Fatalf("error count = %d, want 1", counts[StatusError])
	}
	if p.AssignIdleByRole(RoleTester, "wf-2") != nil {
		t.Fatal("errored agent must not be assignable")
	}
}

func TestSwapModel(t *testing.T) {
	p := newRolePool(RoleCoder)

	p.SwapModel("coder-0", "gpt-fallback", QualityStandard)

	a := p.Get("coder-0")
	if a.Model != "gpt-fallback" || a.Quality != QualityStandard {
		t.Fatalf("swap not applied: model=%s quality=%s", a.Model, a.Quality)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	p := newRolePool(RoleAnalyst)

	snap := p.Snapshot()
	snap[0].Status = StatusBusy

	if p.Get("analyst-0").Status != StatusIdle {
		t.Fatal("mutating a snapshot must not affect the pool")
	}
}

func TestQualityOpposite(t *testing.T) {
	if QualityPremium.Opposite() != QualityStandard {
		t.Error("premium should fall back to standard")
	}
	if QualityStandard.Opposite() != QualityPremium {
		t.Error("standard should fall back to premium")
	}
}
