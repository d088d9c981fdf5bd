package stats

import (
	"testing"
	"time"
)

func TestComputePercentiles(t *testing.T) {
	var ds []time.Duration
	for i := 100; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}

	p := ComputePercentiles(ds)
	if p.N != 100 {
		t.Fatalf("N = %d, want 100", p.N)
	}
	if p.P50 != 51*time.Millisecond {
		t.Errorf("P50 = %v, want 51ms", p.P50)
	}
	if p.P95 != 95*time.Millisecond {
		t.Errorf("P95 = %v, want 95ms", p.P95)
	}
	if p.Max != 100*time.Millisecond {
		t.Errorf("Max = %v, want 100ms", p.Max)
	}
	if p.Avg != 50500*time.Microsecond {
		t.Errorf("Avg = %v, want 50.5ms", p.Avg)
	}
}

func TestComputePercentiles_Empty(t *testing.T) {
	if p := ComputePercentiles(nil); p.N != 0 {
		t.Errorf("expected zero value, got %+v", p)
	}
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.AddSent("clean")
	c.AddSent("link")
	c.AddAction("delete")
	c.AddAction("delete")
	c.AddError()

	if got := c.SentCount(); got != 2 {
		t.Errorf("SentCount() = %d, want 2", got)
	}
	if got := c.ActionCount("delete"); got != 2 {
		t.Errorf("ActionCount(delete) = %d, want 2", got)
	}
	if got := c.ErrorCount(); got != 1 {
		t.Errorf("ErrorCount() = %d, want 1", got)
	}
}
