package moondream

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sightbridge/moondream-mcp/internal/config"
)

//go:embed moondream_server.py
var serverScript string

const (
	backendScriptName = "moondream_server.py"
	uvInstallCmd      = "curl -LsSf https://astral.sh/uv/install.sh | sh"
	probeTimeout      = 5 * time.Second
)

// State tracks the backend child process lifecycle. Transitions only move
// forward; a stopped supervisor never restarts.
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateReady
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrStopped is returned by Setup once Cleanup has run.
var ErrStopped = errors.New("backend supervisor stopped")

// Supervisor provisions and owns the Python inference backend: it installs
// the uv package manager if needed, creates a virtual environment, installs
// the backend packages, downloads the model weights, launches the server as
// a child process and waits for it to accept requests.
type Supervisor struct {
	cfg config.Backend
	log *zap.Logger

	// setupMu serializes Setup so concurrent callers share a single
	// provisioning run.
	setupMu sync.Mutex

	mu    sync.Mutex
	state State
	cmd   *exec.Cmd

	uvBin string
	httpc *http.Client
}

// NewSupervisor builds a supervisor for the backend described by cfg.
func NewSupervisor(cfg config.Backend, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		cfg:   cfg,
		log:   logger.With(zap.String("component", "supervisor")),
		httpc: &http.Client{Timeout: probeTimeout},
	}
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Setup provisions the environment and starts the backend. It is safe to
// call repeatedly: once the backend is ready further calls return
// immediately, and after Cleanup they return ErrStopped.
func (s *Supervisor) Setup(ctx context.Context) error {
	s.setupMu.Lock()
	defer s.setupMu.Unlock()

	switch s.State() {
	case StateReady:
		return nil
	case StateStopped:
		return ErrStopped
	}
	s.setState(StateStarting)

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"package manager", s.ensureUV},
		{"python runtime", s.ensureRuntime},
		{"backend packages", s.ensureDeps},
		{"model weights", s.ensureModel},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	if err := s.launch(); err != nil {
		return err
	}
	if err := s.waitForReady(ctx); err != nil {
		s.Cleanup()
		return fmt.Errorf("backend readiness: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return ErrStopped
	}
	s.state = StateReady
	s.log.Info("backend ready", zap.String("base_url", s.cfg.BaseURL()))
	return nil
}

// Cleanup terminates the backend child if one is running and pins the
// supervisor in the stopped state. Safe to call any number of times,
// including before Setup.
func (s *Supervisor) Cleanup() {
	s.mu.Lock()
	cmd := s.cmd
	s.cmd = nil
	s.state = StateStopped
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		s.log.Info("stopping backend", zap.Int("pid", cmd.Process.Pid))
		if err := cmd.Process.Kill(); err != nil {
			s.log.Warn("kill backend", zap.Error(err))
		}
	}
}

func (s *Supervisor) venvDir() string {
	return filepath.Join(s.cfg.RuntimeDir, "venv")
}

func (s *Supervisor) pythonBin() string {
	return filepath.Join(s.venvDir(), "bin", "python")
}

// ensureUV locates the uv package manager, installing it via the upstream
// script when it is missing from PATH.
func (s *Supervisor) ensureUV(ctx context.Context) error {
	if path, err := exec.LookPath("uv"); err == nil {
		s.uvBin = path
		s.log.Debug("uv found", zap.String("path", path))
		return nil
	}

	s.log.Info("uv not found, installing")
	cmd := exec.CommandContext(ctx, "sh", "-c", uvInstallCmd)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("install uv: %w", err)
	}

	if path, err := exec.LookPath("uv"); err == nil {
		s.uvBin = path
		return nil
	}
	// The installer drops the binary in a directory that may not be on
	// PATH yet in this process.
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("locate uv after install: %w", err)
	}
	for _, candidate := range []string{
		filepath.Join(home, ".local", "bin", "uv"),
		filepath.Join(home, ".cargo", "bin", "uv"),
	} {
		if _, err := os.Stat(candidate); err == nil {
			s.uvBin = candidate
			return nil
		}
	}
	return errors.New("uv not found after install")
}

// ensureRuntime creates the virtual environment on first run.
func (s *Supervisor) ensureRuntime(ctx context.Context) error {
	if _, err := os.Stat(s.pythonBin()); err == nil {
		s.log.Debug("virtual environment already provisioned", zap.String("python", s.pythonBin()))
		return nil
	}
	if err := os.MkdirAll(s.cfg.RuntimeDir, 0o755); err != nil {
		return fmt.Errorf("create runtime dir %s: %w", s.cfg.RuntimeDir, err)
	}

	s.log.Info("creating virtual environment", zap.String("dir", s.venvDir()))
	cmd := exec.CommandContext(ctx, s.uvBin, "venv", s.venvDir())
	cmd.Dir = s.cfg.RuntimeDir
	return runStep(cmd, "create virtual environment")
}

// ensureDeps installs the backend packages unless an import probe shows
// they are already present, and writes the serve script into the runtime
// directory.
func (s *Supervisor) ensureDeps(ctx context.Context) error {
	probe := exec.CommandContext(ctx, s.pythonBin(), "-c", "import moondream, fastapi, uvicorn")
	if probe.Run() != nil {
		s.log.Info("installing backend packages")
		cmd := exec.CommandContext(ctx, s.uvBin, "pip", "install",
			"--python", s.pythonBin(), "moondream", "fastapi", "uvicorn")
		cmd.Dir = s.cfg.RuntimeDir
		if err := runStep(cmd, "install backend packages"); err != nil {
			return err
		}
	}

	scriptPath := filepath.Join(s.cfg.RuntimeDir, backendScriptName)
	if _, err := os.Stat(scriptPath); err == nil {
		return nil
	}
	if err := os.WriteFile(scriptPath, []byte(serverScript), 0o644); err != nil {
		return fmt.Errorf("write serve script %s: %w", scriptPath, err)
	}
	return nil
}

// ensureModel downloads the model weights on first run. The models
// directory is created recursively and verified writable before any network
// traffic, so permission problems surface as themselves rather than as a
// failed download.
func (s *Supervisor) ensureModel(ctx context.Context) error {
	modelPath := s.cfg.ModelPath()
	if _, err := os.Stat(modelPath); err == nil {
		s.log.Debug("model weights already present", zap.String("path", modelPath))
		return nil
	}

	dir := s.cfg.ModelsDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("models directory %s is not writable: %w", dir, err)
		}
		return fmt.Errorf("create models directory %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return fmt.Errorf("models directory %s is not writable: %w", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	s.log.Info("downloading model weights",
		zap.String("url", s.cfg.ModelURL),
		zap.String("dest", modelPath))
	return download(ctx, s.cfg.ModelURL, modelPath)
}

// download fetches url into dest via a temp file so a partial transfer
// never masquerades as a complete model.
func download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download model: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".model-*")
	if err != nil {
		return fmt.Errorf("stage model download: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write model: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("place model at %s: %w", dest, err)
	}
	return nil
}

// launch starts the backend child. The child is deliberately not bound to
// a context: it must outlive Setup and is torn down only by Cleanup.
func (s *Supervisor) launch() error {
	absModels, err := filepath.Abs(s.cfg.ModelsDir)
	if err != nil {
		return fmt.Errorf("resolve models dir: %w", err)
	}
	absRuntime, err := filepath.Abs(s.cfg.RuntimeDir)
	if err != nil {
		return fmt.Errorf("resolve runtime dir: %w", err)
	}

	// Everything handed to the child must be absolute: its working
	// directory is the models dir, not ours.
	venv := filepath.Join(absRuntime, "venv")
	sep := string(os.PathListSeparator)
	cmd := exec.Command(filepath.Join(venv, "bin", "python"), "-u", filepath.Join(absRuntime, backendScriptName))
	cmd.Dir = absModels
	cmd.Env = append(os.Environ(),
		"VIRTUAL_ENV="+venv,
		"PATH="+filepath.Join(venv, "bin")+sep+os.Getenv("PATH"),
		// The serve script resolves the model from the second entry.
		"PYTHONPATH="+absRuntime+sep+absModels,
		fmt.Sprintf("MOONDREAM_PORT=%d", s.cfg.Port),
	)
	// The backend's own output shares stderr with our logs; stdout stays
	// reserved for the protocol.
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start backend in %s: %w", cmd.Dir, err)
	}

	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		_ = cmd.Process.Kill()
		return ErrStopped
	}
	s.cmd = cmd
	s.mu.Unlock()

	s.log.Info("backend launched",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("workdir", cmd.Dir))
	go s.reap(cmd)
	return nil
}

// reap marks the supervisor stopped when the child exits for any reason.
func (s *Supervisor) reap(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	expected := s.state == StateStopped
	s.state = StateStopped
	if s.cmd == cmd {
		s.cmd = nil
	}
	s.mu.Unlock()

	if !expected {
		s.log.Warn("backend process exited", zap.Error(err))
	}
}

// waitForReady polls the caption endpoint with a deliberately invalid body.
// Any HTTP response, success or error status alike, proves the server is
// accepting requests; reachability is all this check guarantees.
func (s *Supervisor) waitForReady(ctx context.Context) error {
	probeURL := s.cfg.BaseURL() + "/caption"
	attempts := s.cfg.ReadyAttempts
	if attempts <= 0 {
		attempts = 30
	}

	for i := 1; i <= attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, probeURL, strings.NewReader("{}"))
		if err != nil {
			return fmt.Errorf("build readiness probe: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpc.Do(req)
		if err == nil {
			resp.Body.Close()
			s.log.Info("backend responding",
				zap.Int("attempt", i),
				zap.Int("status", resp.StatusCode))
			return nil
		}
		s.log.Debug("backend not ready", zap.Int("attempt", i), zap.Error(err))

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReadyInterval()):
		}
	}
	return fmt.Errorf("backend did not respond on %s after %d attempts", probeURL, attempts)
}

// runStep runs a provisioning command and folds its output into the error.
func runStep(cmd *exec.Cmd, what string) error {
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := string(bytes.TrimSpace(out))
		if detail == "" {
			return fmt.Errorf("%s (workdir %s): %w", what, cmd.Dir, err)
		}
		return fmt.Errorf("%s (workdir %s): %w: %s", what, cmd.Dir, err, detail)
	}
	return nil
}
