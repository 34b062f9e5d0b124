package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hnrobert/rundird/internal/fsutil"
)

const (
	defaultParentDir    = "/run/users"
	defaultVarName      = "XDG_RUNTIME_DIR"
	defaultStateDir     = "/var/lib/rundird"
	defaultLockAttempts = 5
	defaultLockDelayMS  = 100
)

type Config struct {
	UpdatedAt time.Time `json:"updated_at"`
	// ParentDir holds every per-uid counter file and runtime directory.
	ParentDir string `json:"parent_dir"`
	// VarName is the environment variable the helper prints for the host.
	VarName string `json:"var_name"`
	// StateDir holds the lease registry, token secret and journal.
	StateDir     string `json:"state_dir"`
	LogDir       string `json:"log_dir,omitempty"`
	LockAttempts int    `json:"lock_attempts"`
	LockDelayMS  int    `json:"lock_delay_ms"`
}

func (c Config) WithDefaults() Config {
	if c.ParentDir == "" {
		c.ParentDir = defaultParentDir
	}
	if c.VarName == "" {
		c.VarName = defaultVarName
	}
	if c.StateDir == "" {
		c.StateDir = defaultStateDir
	}
	if c.LockAttempts <= 0 {
		c.LockAttempts = defaultLockAttempts
	}
	if c.LockDelayMS <= 0 {
		c.LockDelayMS = defaultLockDelayMS
	}
	return c
}

func (c Config) LockDelay() time.Duration {
	return time.Duration(c.LockDelayMS) * time.Millisecond
}

type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func DefaultPath() string {
	return filepath.Join("/etc/rundird", "config.json")
}

// Ensure creates the config directory and a default config file if missing.
func (s *Store) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s.saveLocked(Config{UpdatedAt: time.Now().UTC()}.WithDefaults())
		}
		return err
	}
	return nil
}

func (s *Store) Get() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := fsutil.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}.WithDefaults(), nil
		}
		return Config{}, err
	}
	if len(b) == 0 {
		return Config{}.WithDefaults(), nil
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg.WithDefaults(), nil
}

func (s *Store) Set(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.UpdatedAt = time.Now().UTC()
	return s.saveLocked(cfg.WithDefaults())
}

func (s *Store) saveLocked(cfg Config) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsutil.WriteFileAtomic(s.path, b, 0644)
}
