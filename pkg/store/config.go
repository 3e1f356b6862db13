package store

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// Backend names a store driver.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendJSONL  Backend = "jsonl"
	BackendSQLite Backend = "sqlite"
	BackendMulti  Backend = "multi"
)

// Config selects and configures a store.
type Config struct {
	// Backend is the driver name. Defaults to memory.
	Backend Backend `json:"backend,omitempty" yaml:"backend,omitempty"`

	// Path is the file for the jsonl and sqlite backends. Relative paths
	// are resolved against DataDir.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// DataDir defaults to XDG_DATA_HOME/bizlog or ~/.local/share/bizlog.
	DataDir string `json:"dataDir,omitempty" yaml:"dataDir,omitempty"`

	// Capacity bounds the memory backend. Zero means unbounded.
	Capacity int `json:"capacity,omitempty" yaml:"capacity,omitempty"`

	// Outputs configures the stores of the multi backend. The first one
	// answers queries.
	Outputs []Config `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Backend: BackendMemory,
		DataDir: DefaultDataDir(),
	}
}

// DefaultDataDir returns the default data directory following the XDG
// conventions.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "bizlog")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".bizlog", "data")
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "bizlog")
	case "windows":
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, "bizlog")
		}
		return filepath.Join(home, "AppData", "Local", "bizlog")
	}
	return filepath.Join(home, ".local", "share", "bizlog")
}

// ResolvedPath returns Path, joined to DataDir when relative.
func (c Config) ResolvedPath() string {
	if c.Path == "" || filepath.IsAbs(c.Path) {
		return c.Path
	}
	dir := c.DataDir
	if dir == "" {
		dir = DefaultDataDir()
	}
	return filepath.Join(dir, c.Path)
}

// Validate checks that the configuration can be opened.
func (c Config) Validate() error {
	backend := c.Backend
	if backend == "" {
		backend = BackendMemory
	}
	if _, ok := driver(string(backend)); !ok {
		return &ConfigError{Field: "backend", Message: "must be one of: " + strings.Join(Drivers(), ", ")}
	}
	switch backend {
	case BackendJSONL, BackendSQLite:
		if c.Path == "" {
			return &ConfigError{Field: "path", Message: "required for the " + string(backend) + " backend"}
		}
	case BackendMulti:
		if len(c.Outputs) == 0 {
			return &ConfigError{Field: "outputs", Message: "multi backend needs at least one output"}
		}
		for i, out := range c.Outputs {
			if err := out.Validate(); err != nil {
				return fmt.Errorf("outputs[%d]: %w", i, err)
			}
		}
	}
	if c.Capacity < 0 {
		return &ConfigError{Field: "capacity", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "store config: " + e.Field + ": " + e.Message
}

// DriverFactory opens a store from its configuration.
type DriverFactory func(cfg Config) (Store, error)

var (
	registryMu sync.RWMutex
	drivers    = make(map[string]DriverFactory)
)

func init() {
	RegisterDriver(string(BackendMemory), func(cfg Config) (Store, error) {
		return NewMemory(cfg.Capacity), nil
	})
	RegisterDriver(string(BackendJSONL), func(cfg Config) (Store, error) {
		path, err := prepare(cfg)
		if err != nil {
			return nil, err
		}
		return NewJSONL(path)
	})
	RegisterDriver(string(BackendSQLite), func(cfg Config) (Store, error) {
		path, err := prepare(cfg)
		if err != nil {
			return nil, err
		}
		return NewSQLite(path)
	})
	RegisterDriver(string(BackendMulti), openMulti)
}

// RegisterDriver makes a backend available to Open. Registering a name
// again replaces the previous factory.
func RegisterDriver(name string, factory DriverFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	drivers[name] = factory
}

func driver(name string) (DriverFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := drivers[name]
	return f, ok
}

// Drivers returns the registered backend names in lexical order.
func Drivers() []string {
	registryMu.RLock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	registryMu.RUnlock()
	sort.Strings(names)
	return names
}

// Open validates cfg and opens the configured store.
func Open(cfg Config) (Store, error) {
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	factory, _ := driver(string(cfg.Backend))
	return factory(cfg)
}

// prepare resolves the store path and creates its directory.
func prepare(cfg Config) (string, error) {
	path := cfg.ResolvedPath()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("store: failed to create data directory: %w", err)
		}
	}
	return path, nil
}

func openMulti(cfg Config) (Store, error) {
	stores := make([]Store, 0, len(cfg.Outputs))
	for _, out := range cfg.Outputs {
		if out.DataDir == "" {
			out.DataDir = cfg.DataDir
		}
		s, err := Open(out)
		if err != nil {
			for _, opened := range stores {
				_ = opened.Close()
			}
			return nil, err
		}
		stores = append(stores, s)
	}
	return NewMulti(stores...), nil
}
