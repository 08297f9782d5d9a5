package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables read by LoadEnv.
const (
	EnvDataDir             = "LSMKV_DATA_DIR"
	EnvLevelConfig         = "LSMKV_LEVELS_FILE"
	EnvMemTableBackend     = "LSMKV_MEMTABLE_BACKEND"
	EnvMemTableCapacity    = "LSMKV_MEMTABLE_CAPACITY"
	EnvSkipListMaxLevel    = "LSMKV_SKIPLIST_MAX_LEVEL"
	EnvSkipListProbability = "LSMKV_SKIPLIST_PROBABILITY"
	EnvBlockCapacity       = "LSMKV_BLOCK_CAPACITY"
	EnvFlushOnClose        = "LSMKV_FLUSH_ON_CLOSE"
	EnvLogLevel            = "LSMKV_LOG_LEVEL"
)

// LoadEnv loads the .env file at path, if it exists, into the process
// environment and applies every LSMKV_* variable found there on top of the
// current values. Variables already set in the environment win over the
// file. A value that does not parse is an error.
func (c *Config) LoadEnv(path string) error {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return fmt.Errorf("failed to load %s: %w", path, err)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if val := os.Getenv(EnvDataDir); val != "" {
		c.DataDir = val
	}

	if val := os.Getenv(EnvLevelConfig); val != "" {
		c.LevelConfigPath = val
	}

	if val := os.Getenv(EnvMemTableBackend); val != "" {
		c.MemTableBackend = val
	}

	if val := os.Getenv(EnvMemTableCapacity); val != "" {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvMemTableCapacity, val)
		}
		c.MemTableCapacity = n
	}

	if val := os.Getenv(EnvSkipListMaxLevel); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvSkipListMaxLevel, val)
		}
		c.SkipListMaxLevel = n
	}

	if val := os.Getenv(EnvSkipListProbability); val != "" {
		p, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvSkipListProbability, val)
		}
		c.SkipListProbability = p
	}

	if val := os.Getenv(EnvBlockCapacity); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvBlockCapacity, val)
		}
		c.BlockCapacity = n
	}

	if val := os.Getenv(EnvFlushOnClose); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvFlushOnClose, val)
		}
		c.FlushOnClose = b
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	return nil
}
