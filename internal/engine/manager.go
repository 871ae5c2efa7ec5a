package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/hybridgroup/yzma/pkg/download"
	"github.com/hybridgroup/yzma/pkg/llama"

	"github.com/mailsift/mailsift/internal/logging"
)

// Manager handles llama.cpp library installation, GGUF model downloads,
// and runtime init/teardown. Everything needed for local inference lives
// under the data directory; no external process is involved.
type Manager struct {
	dataDir  string
	libDir   string
	modelDir string

	initialized bool
	mu          sync.Mutex
}

// NewManager creates a manager rooted at the given data directory.
func NewManager(dataDir string) *Manager {
	return &Manager{
		dataDir:  dataDir,
		libDir:   filepath.Join(dataDir, "lib"),
		modelDir: filepath.Join(dataDir, "models"),
	}
}

// Init ensures llama.cpp libraries are installed and initializes the
// runtime. Safe to call multiple times.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	if err := os.MkdirAll(m.libDir, 0755); err != nil {
		return fmt.Errorf("create lib dir: %w", err)
	}
	if err := os.MkdirAll(m.modelDir, 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	libName := download.LibraryName(runtime.GOOS)
	libPath := filepath.Join(m.libDir, libName)

	if _, err := os.Stat(libPath); os.IsNotExist(err) {
		logging.Infof("[Engine] llama.cpp library not found, downloading...")
		if err := m.installLibrary(); err != nil {
			return fmt.Errorf("install llama.cpp: %w", err)
		}
		logging.Infof("[Engine] llama.cpp library installed")
	}

	llama.Load(m.libDir)
	llama.LogSet(llama.LogSilent())
	llama.Init()

	m.initialized = true
	return nil
}

// Close shuts down the llama.cpp runtime. Call when the daemon exits.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		llama.Close()
		m.initialized = false
	}
}

// EnsureModel downloads a GGUF model if it doesn't exist locally and
// returns its path.
func (m *Manager) EnsureModel(spec ModelSpec) (string, error) {
	modelPath := filepath.Join(m.modelDir, spec.File)

	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	}

	logging.Infof("[Engine] Downloading model %s...", spec.Name)
	if err := download.GetModel(spec.URL, modelPath); err != nil {
		// Clean up partial download
		os.Remove(modelPath)
		return "", fmt.Errorf("download model %s: %w", spec.Name, err)
	}
	logging.Infof("[Engine] Model %s ready", spec.Name)

	return modelPath, nil
}

// ModelPath returns the local path for a model spec without downloading.
func (m *Manager) ModelPath(spec ModelSpec) string {
	return filepath.Join(m.modelDir, spec.File)
}

// installLibrary downloads prebuilt llama.cpp libraries for this platform.
func (m *Manager) installLibrary() error {
	version, err := download.LlamaLatestVersion()
	if err != nil {
		return fmt.Errorf("get llama.cpp version: %w", err)
	}

	// Metal on macOS, CPU elsewhere
	processor := "cpu"
	if runtime.GOOS == "darwin" {
		processor = "metal"
	}

	logging.Infof("[Engine] Installing llama.cpp %s (%s/%s/%s)", version, runtime.GOOS, runtime.GOARCH, processor)

	if err := download.Get(runtime.GOARCH, runtime.GOOS, processor, version, m.libDir); err != nil {
		if processor != "cpu" {
			logging.Warnf("[Engine] %s download failed, falling back to CPU", processor)
			if err := download.Get(runtime.GOARCH, runtime.GOOS, "cpu", version, m.libDir); err != nil {
				return fmt.Errorf("download llama.cpp (cpu fallback): %w", err)
			}
			return nil
		}
		return fmt.Errorf("download llama.cpp: %w", err)
	}

	return nil
}
