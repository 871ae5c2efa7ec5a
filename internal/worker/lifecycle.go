package worker

import (
	"sync"
	"time"

	"github.com/mailsift/mailsift/internal/config"
	"github.com/mailsift/mailsift/internal/engine"
	"github.com/mailsift/mailsift/internal/logging"
	"github.com/mailsift/mailsift/internal/sysinfo"
)

// State is the worker lifecycle state. Transitions are monotonic through a
// load (Unloaded → Creating → AwaitingModel → Ready) except for the
// recovery edge InsufficientResources → Unloaded driven by polling, and
// the teardown edge Ready → Unloading → Unloaded driven by idleness.
type State int

const (
	StateUnloaded State = iota
	StateCreating
	StateAwaitingModel
	StateReady
	StateInsufficientResources
	StateUnloading
	StateLoadError
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateCreating:
		return "creating"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateReady:
		return "ready"
	case StateInsufficientResources:
		return "insufficient_resources"
	case StateUnloading:
		return "unloading"
	case StateLoadError:
		return "load_error"
	}
	return "unknown"
}

// ResourceCondition records why loading was refused and what would clear it.
type ResourceCondition struct {
	RequiredMemory  uint64
	AvailableMemory uint64
}

// Manager owns the ephemeral inference worker: it creates and destroys the
// engine, arms and cancels the idle-teardown timer, and runs the
// resource-recovery polling loop. All state mutation happens under one
// mutex; the load itself runs in its own goroutine.
type Manager struct {
	newEngine   func() engine.Engine
	prober      sysinfo.Prober
	pinnedModel string

	// Timing knobs, defaulted from config; tests shrink them.
	IdleDelay    time.Duration
	PollInterval time.Duration

	mu        sync.Mutex
	state     State
	eng       engine.Engine
	proxy     *Proxy
	condition ResourceCondition
	loadErr   error

	idleTimer    *time.Timer
	recoveryStop chan struct{}
	stopped      bool

	// onState, when set, observes every transition (metrics hook).
	onState func(State)
}

// NewManager creates a lifecycle manager. newEngine is called once per
// load so a torn-down worker never reuses engine state.
func NewManager(newEngine func() engine.Engine, prober sysinfo.Prober) *Manager {
	return &Manager{
		newEngine:    newEngine,
		prober:       prober,
		IdleDelay:    config.IdleTeardownDelay,
		PollInterval: config.ResourcePollInterval,
		state:        StateUnloaded,
	}
}

// PinModel forces a specific catalog model instead of resource-aware
// selection. The memory fit check still applies.
func (m *Manager) PinModel(name string) {
	m.pinnedModel = name
}

// OnStateChange registers an observer for state transitions.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onState = fn
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Proxy returns the inference proxy, non-nil only while Ready.
func (m *Manager) Proxy() *Proxy {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return nil
	}
	return m.proxy
}

// Condition returns the standing resource condition while in
// InsufficientResources.
func (m *Manager) Condition() ResourceCondition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.condition
}

// LoadError returns the standing non-resource load failure, if any.
func (m *Manager) LoadError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadErr
}

// EnsureStarted is called on every admission. It cancels any pending idle
// teardown and, if the worker is Unloaded (or parked on a previous load
// error), begins creation. Concurrent calls collapse into one creation
// attempt. The caller polls State until Ready or a standing condition.
func (m *Manager) EnsureStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.cancelIdleLocked()

	switch m.state {
	case StateUnloaded:
		m.setStateLocked(StateCreating)
		go m.create()
	case StateLoadError:
		// A standing load error is retried by the next admission.
		m.loadErr = nil
		m.setStateLocked(StateCreating)
		go m.create()
	default:
		// Creating/AwaitingModel: creation already in flight.
		// Ready: nothing to do. InsufficientResources: the recovery
		// loop owns the exit. Unloading: the teardown finishes first
		// and a later call restarts from Unloaded.
	}
}

// create runs one load attempt: probe, size, load. It owns the Creating
// and AwaitingModel states it was entered with.
func (m *Manager) create() {
	snap, err := m.prober.Probe()
	if err != nil {
		m.finishLoadError(err)
		return
	}

	spec, ok := m.chooseModel(snap)
	if !ok {
		required := MinimumRequiredMemory()
		if m.pinnedModel != "" {
			if pinned, found := engine.FindModel(m.pinnedModel); found {
				// The pin overrides fallback, so recovery must wait for
				// the pinned model's requirement, not the smallest one.
				required = RequiredMemory(pinned)
			}
		}
		logging.Warnf("[Lifecycle] No model fits: required=%s available=%s",
			sysinfo.FormatBytes(required), sysinfo.FormatBytes(snap.AvailableMemory))

		m.mu.Lock()
		m.condition = ResourceCondition{
			RequiredMemory:  required,
			AvailableMemory: snap.AvailableMemory,
		}
		m.setStateLocked(StateInsufficientResources)
		stop := make(chan struct{})
		m.recoveryStop = stop
		m.mu.Unlock()

		go m.recoveryLoop(stop)
		return
	}

	sizing := DeriveSizing(spec, snap)
	logging.Infof("[Lifecycle] Loading %s (ctx=%d threads=%d batch=%d)",
		spec.Name, sizing.Params.ContextSize, sizing.Params.Threads, sizing.Params.BatchSize)

	eng := m.newEngine()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.eng = eng
	m.setStateLocked(StateAwaitingModel)
	m.mu.Unlock()

	info, err := eng.Load(spec, Instructions, sizing.Params)
	if err != nil {
		eng.Unload()
		m.finishLoadError(err)
		return
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		eng.Unload()
		return
	}
	m.proxy = NewProxy(eng, info, spec.Name)
	m.setStateLocked(StateReady)
	m.mu.Unlock()
}

// chooseModel honors a pinned model, otherwise walks the catalog.
func (m *Manager) chooseModel(snap sysinfo.Snapshot) (engine.ModelSpec, bool) {
	if m.pinnedModel != "" {
		spec, ok := engine.FindModel(m.pinnedModel)
		if !ok {
			return engine.ModelSpec{}, false
		}
		if RequiredMemory(spec) > snap.AvailableMemory {
			return engine.ModelSpec{}, false
		}
		return spec, true
	}
	return SelectModel(snap)
}

// finishLoadError parks the manager in the standing LoadError state.
func (m *Manager) finishLoadError(err error) {
	logging.Errorf("[Lifecycle] Worker load failed: %v", err)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eng = nil
	m.proxy = nil
	m.loadErr = err
	m.setStateLocked(StateLoadError)
}

// recoveryLoop samples resources on a fixed interval and clears the
// insufficient-resources condition once available memory meets the
// previously reported requirement.
func (m *Manager) recoveryLoop(stop chan struct{}) {
	ticker := time.NewTicker(m.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap, err := m.prober.Probe()
			if err != nil {
				logging.Warnf("[Lifecycle] Recovery probe failed: %v", err)
				continue
			}

			m.mu.Lock()
			if m.state != StateInsufficientResources {
				m.mu.Unlock()
				return
			}
			if snap.AvailableMemory >= m.condition.RequiredMemory {
				logging.Infof("[Lifecycle] Resources recovered: available=%s required=%s",
					sysinfo.FormatBytes(snap.AvailableMemory),
					sysinfo.FormatBytes(m.condition.RequiredMemory))
				m.condition = ResourceCondition{}
				m.recoveryStop = nil
				m.setStateLocked(StateUnloaded)
				m.mu.Unlock()
				return
			}
			m.condition.AvailableMemory = snap.AvailableMemory
			m.mu.Unlock()
		}
	}
}

// ArmIdleTeardown schedules a teardown after the idle delay. A new
// admission cancels it via EnsureStarted. Arming is a no-op unless Ready.
func (m *Manager) ArmIdleTeardown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateReady || m.stopped {
		return
	}
	m.cancelIdleLocked()
	m.idleTimer = time.AfterFunc(m.IdleDelay, m.idleTeardown)
	logging.Debugf("[Lifecycle] Idle teardown armed (%s)", m.IdleDelay)
}

func (m *Manager) cancelIdleLocked() {
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
}

// idleTeardown destroys the worker if no admission cancelled the timer.
func (m *Manager) idleTeardown() {
	m.mu.Lock()
	if m.state != StateReady {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateUnloading)
	eng := m.eng
	m.eng = nil
	m.proxy = nil
	m.mu.Unlock()

	logging.Infof("[Lifecycle] Idle teardown: unloading worker")
	if eng != nil {
		eng.Unload()
	}

	m.mu.Lock()
	m.setStateLocked(StateUnloaded)
	m.mu.Unlock()
}

// Stop tears everything down for daemon shutdown.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.cancelIdleLocked()
	if m.recoveryStop != nil {
		close(m.recoveryStop)
		m.recoveryStop = nil
	}
	eng := m.eng
	m.eng = nil
	m.proxy = nil
	if m.state == StateReady || m.state == StateAwaitingModel {
		m.setStateLocked(StateUnloading)
	}
	m.mu.Unlock()

	if eng != nil {
		eng.Unload()
	}

	m.mu.Lock()
	m.setStateLocked(StateUnloaded)
	m.mu.Unlock()
}

// setStateLocked transitions state and notifies the observer. Caller holds mu.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	logging.Debugf("[Lifecycle] %s -> %s", m.state, s)
	m.state = s
	if m.onState != nil {
		// Observers must not call back into the manager.
		m.onState(s)
	}
}
