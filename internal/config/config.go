package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file probed in the working directory when no
// explicit path is given.
const DefaultFile = "moondream-mcp.yaml"

const envPrefix = "MOONDREAM_MCP_"

// Config holds all tunable settings. Zero values are filled by Default;
// a YAML file and MOONDREAM_MCP_* environment variables override it in
// that order. Protocol constants (tool names, endpoint paths, viewport
// maximum) are not configurable.
type Config struct {
	LogLevel string  `yaml:"log_level"`
	Backend  Backend `yaml:"backend"`
	Browser  Browser `yaml:"browser"`
}

// Backend configures the supervised inference process and its HTTP contract.
type Backend struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ModelURL        string `yaml:"model_url"`
	ModelsDir       string `yaml:"models_dir"`
	RuntimeDir      string `yaml:"runtime_dir"`
	ReadyAttempts   int    `yaml:"ready_attempts"`
	ReadyIntervalMs int    `yaml:"ready_interval_ms"`
}

// Browser configures the screenshot pipeline.
type Browser struct {
	Bin            string `yaml:"bin"`
	Headless       *bool  `yaml:"headless"`
	Annotate       *bool  `yaml:"annotate"`
	ScreenshotsDir string `yaml:"screenshots_dir"`
	PlaceholderURL string `yaml:"placeholder_url"`
	DefaultWaitMs  int    `yaml:"default_wait_ms"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Backend: Backend{
			Host:            "127.0.0.1",
			Port:            3475,
			ModelURL:        "https://huggingface.co/vikhyatk/moondream2/resolve/main/moondream-2b-int8.mf.gz",
			ModelsDir:       "models",
			RuntimeDir:      filepath.Join(os.TempDir(), "moondream-mcp"),
			ReadyAttempts:   30,
			ReadyIntervalMs: 1000,
		},
		Browser: Browser{
			ScreenshotsDir: "screenshots",
			PlaceholderURL: "http://localhost:3000",
			DefaultWaitMs:  15000,
		},
	}
}

// Load builds the effective configuration: defaults, then an optional .env
// in the working directory, then the YAML file (required when path is
// explicit, optional for the default path), then environment overrides.
func Load(path string) (*Config, error) {
	_ = gotenv.Load()

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file is fine; defaults apply.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if cfg.Backend.Port <= 0 || cfg.Backend.Port > 65535 {
		return nil, fmt.Errorf("invalid backend port %d", cfg.Backend.Port)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Backend.Port = port
		}
	}
	if v := os.Getenv(envPrefix + "MODEL_URL"); v != "" {
		c.Backend.ModelURL = v
	}
	if v := os.Getenv(envPrefix + "MODELS_DIR"); v != "" {
		c.Backend.ModelsDir = v
	}
	if v := os.Getenv(envPrefix + "RUNTIME_DIR"); v != "" {
		c.Backend.RuntimeDir = v
	}
	if v := os.Getenv(envPrefix + "SCREENSHOTS_DIR"); v != "" {
		c.Browser.ScreenshotsDir = v
	}
	if v := os.Getenv(envPrefix + "PLACEHOLDER_URL"); v != "" {
		c.Browser.PlaceholderURL = v
	}
	if v := os.Getenv(envPrefix + "BROWSER_BIN"); v != "" {
		c.Browser.Bin = v
	}
	if v := os.Getenv(envPrefix + "HEADLESS"); v != "" {
		if headless, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = &headless
		}
	}
}

// BaseURL returns the backend's HTTP address.
func (b Backend) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", b.Host, b.Port)
}

// ModelPath returns the expected location of the model artifact.
func (b Backend) ModelPath() string {
	return filepath.Join(b.ModelsDir, "moondream-2b-int8.mf.gz")
}

// ReadyInterval returns the pause between readiness probe attempts.
func (b Backend) ReadyInterval() time.Duration {
	if b.ReadyIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(b.ReadyIntervalMs) * time.Millisecond
}

// IsHeadless reports whether the browser should run headless. Unset means yes.
func (w Browser) IsHeadless() bool {
	return w.Headless == nil || *w.Headless
}

// AnnotateLinks reports whether captured pages get link annotations. Unset means yes.
func (w Browser) AnnotateLinks() bool {
	return w.Annotate == nil || *w.Annotate
}

// DefaultWait returns the content-readiness wait used when a call omits waitTime.
func (w Browser) DefaultWait() time.Duration {
	if w.DefaultWaitMs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(w.DefaultWaitMs) * time.Millisecond
}
