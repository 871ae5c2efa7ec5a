package worker

import (
	"testing"

	"github.com/mailsift/mailsift/internal/engine"
	"github.com/mailsift/mailsift/internal/sysinfo"
)

func TestSelectModelPrefersLargest(t *testing.T) {
	snap := sysinfo.Snapshot{AvailableMemory: 16 << 30}
	spec, ok := SelectModel(snap)
	if !ok {
		t.Fatal("nothing fit with 16 GiB available")
	}
	if spec.Name != engine.Catalog[0].Name {
		t.Errorf("picked %s, want largest catalog model", spec.Name)
	}
}

func TestSelectModelFallsDown(t *testing.T) {
	// 2 GiB fits the mid model (with margin) but not the largest.
	snap := sysinfo.Snapshot{AvailableMemory: 2 << 30}
	spec, ok := SelectModel(snap)
	if !ok {
		t.Fatal("nothing fit with 2 GiB available")
	}
	if RequiredMemory(spec) > snap.AvailableMemory {
		t.Errorf("selected %s needs %d > available %d", spec.Name, RequiredMemory(spec), snap.AvailableMemory)
	}
	if spec.Name == engine.Catalog[0].Name {
		t.Errorf("largest model should not fit in 2 GiB with margin")
	}
}

func TestSelectModelNoneFit(t *testing.T) {
	snap := sysinfo.Snapshot{AvailableMemory: 256 << 20}
	if _, ok := SelectModel(snap); ok {
		t.Fatal("a model fit in 256 MiB")
	}
	if MinimumRequiredMemory() <= snap.AvailableMemory {
		t.Error("MinimumRequiredMemory should exceed 256 MiB")
	}
}

func TestRequiredMemoryIncludesMargin(t *testing.T) {
	spec := engine.ModelSpec{ResidentSize: 1000}
	if got := RequiredMemory(spec); got <= 1000 {
		t.Errorf("RequiredMemory = %d, want > resident size", got)
	}
}

func TestDeriveSizingContextFromHeadroom(t *testing.T) {
	spec, ok := engine.FindModel("qwen3-0.6b-instruct")
	if !ok {
		t.Fatal("0.6b model missing from catalog")
	}
	snap := sysinfo.Snapshot{AvailableMemory: 2048 << 20, CPUThreads: 8}

	s := DeriveSizing(spec, snap)
	if s.Params.ContextSize != 2048 {
		t.Errorf("ContextSize = %d, want 2048", s.Params.ContextSize)
	}
	if s.Params.ContextSize%ctxAlignment != 0 {
		t.Errorf("ContextSize %d not aligned", s.Params.ContextSize)
	}
	if s.Params.Threads != 4 {
		t.Errorf("Threads = %d, want 4", s.Params.Threads)
	}
	if s.Params.BatchSize != 512 {
		t.Errorf("BatchSize = %d, want 512", s.Params.BatchSize)
	}
}

func TestDeriveSizingClampsToMinContext(t *testing.T) {
	spec, _ := engine.FindModel("qwen3-0.6b-instruct")
	// Barely over the admission bar: almost no KV headroom.
	snap := sysinfo.Snapshot{AvailableMemory: 950 << 20, CPUThreads: 2}

	s := DeriveSizing(spec, snap)
	if s.Params.ContextSize != spec.MinContext {
		t.Errorf("ContextSize = %d, want floor %d", s.Params.ContextSize, spec.MinContext)
	}
	if s.Params.Threads != minThreads {
		t.Errorf("Threads = %d, want %d", s.Params.Threads, minThreads)
	}
}

func TestDeriveSizingClampsToMaxContext(t *testing.T) {
	spec, _ := engine.FindModel("qwen3-0.6b-instruct")
	snap := sysinfo.Snapshot{AvailableMemory: 64 << 30, CPUThreads: 32}

	s := DeriveSizing(spec, snap)
	if s.Params.ContextSize != spec.MaxContext {
		t.Errorf("ContextSize = %d, want ceiling %d", s.Params.ContextSize, spec.MaxContext)
	}
	if s.Params.Threads != maxThreads {
		t.Errorf("Threads = %d, want %d", s.Params.Threads, maxThreads)
	}
}
