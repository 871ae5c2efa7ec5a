// Package engine wraps llama.cpp (via yzma) behind the small capability
// surface the worker proxy needs: tokenize, load, grammar-constrained
// completion, and session trimming. Nothing above this package touches
// llama directly, and tests substitute a fake.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hybridgroup/yzma/pkg/llama"

	"github.com/mailsift/mailsift/internal/logging"
)

// Typed error surface. Callers classify with errors.Is; the historical
// substring fallback is kept only for errors escaping the C side.
var (
	ErrModelNotLoaded  = errors.New("model not loaded")
	ErrContextOverflow = errors.New("context window exceeded")
)

// IsContextOverflow reports whether err is a context-window failure,
// matching error text as a fallback for untyped engine errors.
func IsContextOverflow(err error) bool {
	if errors.Is(err, ErrContextOverflow) {
		return true
	}
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context") &&
		(strings.Contains(msg, "overflow") || strings.Contains(msg, "exceed") || strings.Contains(msg, "full"))
}

// LoadParams are the resource-derived knobs for a model load.
type LoadParams struct {
	ContextSize int
	Threads     int
	BatchSize   int
}

// LoadInfo reports the effective shape of a completed load.
type LoadInfo struct {
	ContextSize       int
	InstructionTokens int
}

// Engine is the opaque inference capability. The fixed classification
// instructions are decoded once at load time; Complete appends a
// per-email suffix and TrimSession discards it again, so only the
// instruction prefix persists across requests.
type Engine interface {
	Load(spec ModelSpec, instructions string, p LoadParams) (LoadInfo, error)
	Loaded() bool
	CountTokens(text string) (int, error)
	Complete(ctx context.Context, suffix string) (string, error)
	TrimSession() error
	Unload()
}

// maxOutputTokens bounds a single constrained completion. The grammar
// output is three short fields; anything longer is runaway generation.
const maxOutputTokens = 256

// Llama is the yzma-backed Engine.
type Llama struct {
	manager *Manager

	model llama.Model
	vocab llama.Vocab
	lctx  llama.Context

	loaded  bool
	ctxSize int
	nInstr  int // tokens of the fixed instruction prefix, kept across requests
	nPast   int // total tokens currently decoded into the session
}

// NewLlama creates an unloaded engine over the given manager.
func NewLlama(manager *Manager) *Llama {
	return &Llama{manager: manager}
}

// Load downloads the model if necessary, creates the inference context
// with the given sizing, and decodes the instruction prefix.
func (e *Llama) Load(spec ModelSpec, instructions string, p LoadParams) (LoadInfo, error) {
	if e.loaded {
		return LoadInfo{}, fmt.Errorf("engine already loaded")
	}

	if err := e.manager.Init(); err != nil {
		return LoadInfo{}, fmt.Errorf("init runtime: %w", err)
	}

	modelPath, err := e.manager.EnsureModel(spec)
	if err != nil {
		return LoadInfo{}, fmt.Errorf("ensure model: %w", err)
	}

	modelParams := llama.ModelDefaultParams()
	modelParams.NGpuLayers = 99 // Offload everything when a GPU backend is present

	model, err := llama.ModelLoadFromFile(modelPath, modelParams)
	if err != nil {
		return LoadInfo{}, fmt.Errorf("load model %s: %w", spec.Name, err)
	}

	vocab := llama.ModelGetVocab(model)

	ctxSize := p.ContextSize
	if train := int(llama.ModelNCtxTrain(model)); ctxSize > train {
		ctxSize = train
	}

	ctxParams := llama.ContextDefaultParams()
	ctxParams.NCtx = uint32(ctxSize)
	ctxParams.NBatch = uint32(p.BatchSize)
	ctxParams.NUbatch = uint32(p.BatchSize)
	ctxParams.NThreads = int32(p.Threads)
	ctxParams.NThreadsBatch = int32(p.Threads)

	lctx, err := llama.InitFromModel(model, ctxParams)
	if err != nil {
		llama.ModelFree(model)
		return LoadInfo{}, fmt.Errorf("create context: %w", err)
	}

	e.model = model
	e.vocab = vocab
	e.lctx = lctx
	e.ctxSize = ctxSize
	e.loaded = true

	// Decode the instruction prefix once; it stays resident in the
	// session across every request.
	instrTokens := llama.Tokenize(vocab, instructions, true, true)
	if len(instrTokens) >= ctxSize {
		e.Unload()
		return LoadInfo{}, fmt.Errorf("instructions (%d tokens) exceed context (%d): %w",
			len(instrTokens), ctxSize, ErrContextOverflow)
	}
	if err := e.decode(instrTokens); err != nil {
		e.Unload()
		return LoadInfo{}, fmt.Errorf("decode instructions: %w", err)
	}
	e.nInstr = len(instrTokens)
	e.nPast = len(instrTokens)

	logging.Infof("[Engine] Model loaded: %s (ctx=%d instr=%d threads=%d batch=%d)",
		spec.Name, ctxSize, e.nInstr, p.Threads, p.BatchSize)

	return LoadInfo{ContextSize: ctxSize, InstructionTokens: e.nInstr}, nil
}

// Loaded reports whether a model is resident.
func (e *Llama) Loaded() bool {
	return e.loaded
}

// CountTokens tokenizes text without feeding it to the session.
func (e *Llama) CountTokens(text string) (int, error) {
	if !e.loaded {
		return 0, ErrModelNotLoaded
	}
	return len(llama.Tokenize(e.vocab, text, false, true)), nil
}

// Complete decodes the per-email suffix into the session and samples a
// grammar-constrained verdict. The caller is responsible for trimming the
// session afterwards.
func (e *Llama) Complete(ctx context.Context, suffix string) (string, error) {
	if !e.loaded {
		return "", ErrModelNotLoaded
	}

	tokens := llama.Tokenize(e.vocab, suffix, false, true)
	if e.nPast+len(tokens)+maxOutputTokens > e.ctxSize {
		return "", fmt.Errorf("suffix of %d tokens at position %d: %w",
			len(tokens), e.nPast, ErrContextOverflow)
	}

	if err := e.decode(tokens); err != nil {
		return "", fmt.Errorf("decode suffix: %w", err)
	}
	e.nPast += len(tokens)

	sampler := e.buildSampler()
	defer llama.SamplerFree(sampler)

	var out strings.Builder
	for i := 0; i < maxOutputTokens; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		token := llama.SamplerSample(sampler, e.lctx, -1)
		llama.SamplerAccept(sampler, token)

		if llama.VocabIsEOG(e.vocab, token) {
			break
		}

		piece := llama.Detokenize(e.vocab, []llama.Token{token}, false, true)
		out.WriteString(piece)

		if err := e.decode([]llama.Token{token}); err != nil {
			return "", fmt.Errorf("decode step %d: %w", i, err)
		}
		e.nPast++

		// The grammar ends at the closing brace; small models do not
		// always follow up with an EOG token.
		if strings.HasSuffix(strings.TrimSpace(out.String()), "}") {
			break
		}
	}

	return out.String(), nil
}

// TrimSession drops every token after the instruction prefix from the
// engine's session state. Prior email content is never reused, so nothing
// of value is lost and the session cannot grow across requests.
func (e *Llama) TrimSession() error {
	if !e.loaded {
		return ErrModelNotLoaded
	}
	if e.nPast == e.nInstr {
		return nil
	}

	mem, err := llama.GetMemory(e.lctx)
	if err != nil {
		return fmt.Errorf("trim session to %d tokens failed: %w", e.nInstr, err)
	}
	if ok, err := llama.MemorySeqRm(mem, 0, llama.Pos(e.nInstr), -1); err != nil || !ok {
		return fmt.Errorf("trim session to %d tokens failed", e.nInstr)
	}
	e.nPast = e.nInstr
	return nil
}

// Unload frees the context and model.
func (e *Llama) Unload() {
	if !e.loaded {
		return
	}
	llama.Free(e.lctx)
	llama.ModelFree(e.model)
	e.model = 0
	e.lctx = 0
	e.loaded = false
	e.nInstr = 0
	e.nPast = 0
	logging.Infof("[Engine] Model unloaded")
}

// decode feeds tokens through the model in a single batch.
func (e *Llama) decode(tokens []llama.Token) error {
	if len(tokens) == 0 {
		return nil
	}
	batch := llama.BatchGetOne(tokens)
	if _, err := llama.Decode(e.lctx, batch); err != nil {
		return err
	}
	return nil
}

// buildSampler constructs the fixed low-variance sampling chain with the
// verdict grammar. Grammar samplers are stateful, so a fresh chain is
// built per completion.
func (e *Llama) buildSampler() llama.Sampler {
	params := llama.SamplerChainDefaultParams()
	chain := llama.SamplerChainInit(params)

	llama.SamplerChainAdd(chain, llama.SamplerInitGrammar(e.vocab, VerdictGrammar(), "root"))
	llama.SamplerChainAdd(chain, llama.SamplerInitTempExt(0.1, 0, 1))
	llama.SamplerChainAdd(chain, llama.SamplerInitDist(0))

	return chain
}
