// Package config holds the engine configuration, its environment overrides
// and the level configuration file format.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevoDB/lsmkv/pkg/common/log"
	"github.com/KevoDB/lsmkv/pkg/memtable"
	"github.com/KevoDB/lsmkv/pkg/sstable"
	"github.com/spf13/afero"
)

const (
	DefaultManifestFileName = "MANIFEST"
	CurrentManifestVersion  = 1
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrManifestNotFound = errors.New("manifest not found")
	ErrInvalidManifest  = errors.New("invalid manifest")
)

type Config struct {
	Version int `json:"version"`

	// DataDir holds one level-<i> directory per level
	DataDir string `json:"data_dir"`

	// Level configuration. LevelConfigPath wins over Levels when both are set.
	LevelConfigPath string      `json:"level_config_path,omitempty"`
	Levels          []LevelSpec `json:"levels"`

	// MemTable configuration
	MemTableBackend     string  `json:"memtable_backend"`
	MemTableCapacity    int64   `json:"memtable_capacity"`
	SkipListMaxLevel    int     `json:"skiplist_max_level"`
	SkipListProbability float64 `json:"skiplist_probability"`

	// BlockCapacity is the charged size at which compaction cuts an output block
	BlockCapacity int `json:"block_capacity"`

	FlushOnClose bool   `json:"flush_on_close"`
	LogLevel     string `json:"log_level"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig(dataDir string) *Config {
	return &Config{
		Version: CurrentManifestVersion,
		DataDir: dataDir,
		Levels:  DefaultLevels(),

		// MemTable defaults
		MemTableBackend:     string(memtable.BackendRBTree),
		MemTableCapacity:    sstable.DefaultCapacity,
		SkipListMaxLevel:    memtable.DefaultMaxLevel,
		SkipListProbability: memtable.DefaultProbability,

		BlockCapacity: sstable.DefaultCapacity,
		FlushOnClose:  true,
		LogLevel:      log.LevelInfo.String(),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.DataDir == "" {
		return fmt.Errorf("%w: data directory not specified", ErrInvalidConfig)
	}

	if c.LevelConfigPath == "" {
		if len(c.Levels) == 0 {
			return fmt.Errorf("%w: no levels configured", ErrInvalidConfig)
		}
		if err := validateLevels(c.Levels); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	if _, err := memtable.ParseBackend(c.MemTableBackend); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.MemTableCapacity <= 0 {
		return fmt.Errorf("%w: MemTable capacity must be positive", ErrInvalidConfig)
	}

	if c.SkipListMaxLevel <= 0 {
		return fmt.Errorf("%w: skip list max level must be positive", ErrInvalidConfig)
	}

	if c.SkipListProbability <= 0 || c.SkipListProbability >= 1 {
		return fmt.Errorf("%w: skip list probability must be in (0, 1)", ErrInvalidConfig)
	}

	if c.BlockCapacity <= 0 {
		return fmt.Errorf("%w: block capacity must be positive", ErrInvalidConfig)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return nil
}

// Backend returns the configured memtable backend
func (c *Config) Backend() memtable.Backend {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, err := memtable.ParseBackend(c.MemTableBackend)
	if err != nil {
		return memtable.BackendRBTree
	}
	return b
}

// ResolveLevels returns the level set the engine should open. A store that
// already has a manifest keeps the levels it was created with; a level
// configuration file that disagrees with them is rejected, since opening
// fewer or reshaped levels would hide the blocks already written. A new
// store uses the level configuration file when one is named, otherwise
// Levels.
func (c *Config) ResolveLevels(fs afero.Fs) ([]LevelSpec, error) {
	c.mu.RLock()
	path := c.LevelConfigPath
	dataDir := c.DataDir
	levels := append([]LevelSpec(nil), c.Levels...)
	c.mu.RUnlock()

	if path != "" {
		var err error
		if levels, err = LoadLevels(fs, path); err != nil {
			return nil, err
		}
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: no levels configured", ErrInvalidConfig)
	}

	saved, err := LoadConfigFromManifest(fs, dataDir)
	switch {
	case errors.Is(err, ErrManifestNotFound):
		return levels, nil
	case err != nil:
		return nil, err
	}

	if path != "" && !EqualLevels(levels, saved.Levels) {
		return nil, fmt.Errorf("%w: %s does not match the levels %s was created with %v",
			ErrInvalidConfig, path, dataDir, saved.Levels)
	}
	return saved.Levels, nil
}

// LoadConfigFromManifest loads the configuration saved in dbPath
func LoadConfigFromManifest(fs afero.Fs, dbPath string) (*Config, error) {
	manifestPath := filepath.Join(dbPath, DefaultManifestFileName)
	data, err := afero.ReadFile(fs, manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrManifestNotFound
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SaveManifest saves the configuration, with its levels resolved, to the
// manifest file in DataDir
func (c *Config) SaveManifest(fs afero.Fs, levels []LevelSpec) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	saved := &Config{
		Version:             c.Version,
		DataDir:             c.DataDir,
		Levels:              levels,
		MemTableBackend:     c.MemTableBackend,
		MemTableCapacity:    c.MemTableCapacity,
		SkipListMaxLevel:    c.SkipListMaxLevel,
		SkipListProbability: c.SkipListProbability,
		BlockCapacity:       c.BlockCapacity,
		FlushOnClose:        c.FlushOnClose,
		LogLevel:            c.LogLevel,
	}

	if err := fs.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	manifestPath := filepath.Join(c.DataDir, DefaultManifestFileName)
	tempPath := manifestPath + ".tmp"

	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(fs, tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := fs.Rename(tempPath, manifestPath); err != nil {
		return fmt.Errorf("failed to rename manifest: %w", err)
	}

	return nil
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn(c)
}
