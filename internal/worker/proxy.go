package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mailsift/mailsift/internal/config"
	"github.com/mailsift/mailsift/internal/engine"
	"github.com/mailsift/mailsift/internal/logging"
	"github.com/mailsift/mailsift/internal/protocol"
)

// ErrParseFailure means the engine produced output that does not decode
// to a valid verdict even after constrained sampling.
var ErrParseFailure = errors.New("verdict parse failure")

// Proxy bridges one admitted request to the inference engine. The
// orchestrator serializes all access through single-flight admission, so
// the proxy needs no locking of its own.
type Proxy struct {
	eng       engine.Engine
	info      engine.LoadInfo
	modelName string
}

// NewProxy wraps a loaded engine.
func NewProxy(eng engine.Engine, info engine.LoadInfo, modelName string) *Proxy {
	return &Proxy{eng: eng, info: info, modelName: modelName}
}

// ModelName reports which catalog model is serving requests.
func (p *Proxy) ModelName() string {
	return p.modelName
}

// ContextSize reports the effective context window chosen at load.
func (p *Proxy) ContextSize() int {
	return p.info.ContextSize
}

// Classify runs one prompt through the engine and returns a terminal
// verdict. Oversized prompts short-circuit to unknown_threat before any
// engine work. A completion or parse failure is retried exactly once with
// identical parameters, then surfaced.
func (p *Proxy) Classify(ctx context.Context, prompt string) (protocol.Verdict, error) {
	tokens, err := p.eng.CountTokens(prompt)
	if err != nil {
		return protocol.Verdict{}, fmt.Errorf("tokenize prompt: %w", err)
	}

	budget := p.info.ContextSize - p.info.InstructionTokens - tokens
	if budget < config.BudgetFloor {
		logging.Infof("[Proxy] Prompt of %d tokens leaves %d budget (floor %d), skipping inference",
			tokens, budget, config.BudgetFloor)
		return protocol.Verdict{
			BriefAnalysis: "Email is too long to analyze within the model's context window.",
			Category:      protocol.CategoryUnknownThreat,
			Confidence:    0,
		}, nil
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		verdict, err := p.completeOnce(ctx, prompt)
		if err == nil {
			return verdict, nil
		}
		lastErr = err

		// Context overflow is deterministic; retrying cannot help.
		if engine.IsContextOverflow(err) || errors.Is(err, context.Canceled) {
			break
		}
		if attempt == 0 {
			logging.Warnf("[Proxy] Completion attempt failed, retrying once: %v", err)
		}
	}
	return protocol.Verdict{}, lastErr
}

// completeOnce runs a single constrained completion and always trims the
// session back to the instruction prefix afterwards.
func (p *Proxy) completeOnce(ctx context.Context, prompt string) (protocol.Verdict, error) {
	raw, err := p.eng.Complete(ctx, prompt)

	if trimErr := p.eng.TrimSession(); trimErr != nil {
		logging.Warnf("[Proxy] Session trim failed: %v", trimErr)
	}

	if err != nil {
		return protocol.Verdict{}, fmt.Errorf("completion: %w", err)
	}
	return parseVerdict(raw)
}

// parseVerdict decodes and validates the engine's JSON output.
func parseVerdict(raw string) (protocol.Verdict, error) {
	var v protocol.Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return protocol.Verdict{}, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	if !protocol.ValidCategory(v.Category) {
		return protocol.Verdict{}, fmt.Errorf("%w: unknown category %q", ErrParseFailure, v.Category)
	}
	if v.Confidence < 0 || v.Confidence >= 1 {
		return protocol.Verdict{}, fmt.Errorf("%w: confidence %v outside [0,1)", ErrParseFailure, v.Confidence)
	}
	return v, nil
}
