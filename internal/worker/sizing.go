package worker

import (
	"github.com/mailsift/mailsift/internal/config"
	"github.com/mailsift/mailsift/internal/engine"
	"github.com/mailsift/mailsift/internal/sysinfo"
)

// Sizing constants. Derived once per load from a resource snapshot.
const (
	// kvCostPerToken is the estimated KV-cache cost of one context token.
	kvCostPerToken = 512 << 10

	// ctxAlignment rounds the derived context window down to a friendly
	// granularity.
	ctxAlignment = 256

	minThreads = 1
	maxThreads = 8

	minBatch = 64
	maxBatch = 512
)

// Sizing is the resolved load shape for a snapshot.
type Sizing struct {
	Model  engine.ModelSpec
	Params engine.LoadParams
}

// SelectModel picks the largest catalog model whose estimated resident
// size, scaled by the safety margin, fits available memory. The second
// return is false when nothing fits; RequiredMemory reports what the
// smallest model would have needed.
func SelectModel(snap sysinfo.Snapshot) (engine.ModelSpec, bool) {
	for _, spec := range engine.Catalog {
		if RequiredMemory(spec) <= snap.AvailableMemory {
			return spec, true
		}
	}
	return engine.ModelSpec{}, false
}

// RequiredMemory is the admission bar for a model: estimated resident
// size plus the safety margin.
func RequiredMemory(spec engine.ModelSpec) uint64 {
	return uint64(float64(spec.ResidentSize) * config.SafetyMargin)
}

// MinimumRequiredMemory is the requirement reported upward when no model
// fits at all.
func MinimumRequiredMemory() uint64 {
	return uint64(float64(engine.SmallestResidentSize()) * config.SafetyMargin)
}

// DeriveSizing computes the context window, thread count and batch size
// for a chosen model on a snapshot.
func DeriveSizing(spec engine.ModelSpec, snap sysinfo.Snapshot) Sizing {
	remaining := int64(snap.AvailableMemory) - int64(RequiredMemory(spec))
	ctxSize := 0
	if remaining > 0 {
		ctxSize = int(remaining / kvCostPerToken)
	}
	ctxSize = (ctxSize / ctxAlignment) * ctxAlignment
	ctxSize = clamp(ctxSize, spec.MinContext, spec.MaxContext)

	threads := clamp(snap.CPUThreads/2, minThreads, maxThreads)
	batch := clamp(ctxSize/4, minBatch, maxBatch)

	return Sizing{
		Model: spec,
		Params: engine.LoadParams{
			ContextSize: ctxSize,
			Threads:     threads,
			BatchSize:   batch,
		},
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
