package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/afero"

	"github.com/KevoDB/lsmkv/pkg/common/log"
	"github.com/KevoDB/lsmkv/pkg/config"
	"github.com/KevoDB/lsmkv/pkg/engine"
	"github.com/KevoDB/lsmkv/pkg/memtable"
	"github.com/KevoDB/lsmkv/pkg/telemetry"
)

const version = "0.1.0"

// Options holds the command line configuration
type Options struct {
	DataDir  string
	Levels   string
	Backend  string
	EnvFile  string
	LogLevel string
}

func main() {
	opts := parseFlags()

	cfg, err := buildConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.NewStandardLogger(log.WithLevel(level), log.WithOutput(os.Stderr))
	log.SetDefaultLogger(logger)

	tcfg := telemetry.DefaultConfig()
	tcfg.LoadFromEnv()
	tel, err := telemetry.New(tcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing telemetry: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tel.Shutdown(ctx)
	}()

	eng, err := engine.NewEngine(cfg, engine.WithLogger(logger), engine.WithTelemetry(tel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %s\n", err)
		os.Exit(1)
	}
	setupGracefulShutdown(eng)

	runInteractive(eng, afero.NewOsFs(), cfg.DataDir)
}

// parseFlags parses command line flags and returns the Options
func parseFlags() Options {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "lsmkv - an LSM-tree key-value store over unsigned integer keys\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: lsmkv [options]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nEnvironment variables named LSMKV_* override the defaults; flags override both.\n")
		fmt.Fprintf(flag.CommandLine.Output(), "For the command list, start lsmkv and type .help\n")
	}

	dataDir := flag.String("dir", "data", "Directory holding one level-<i> directory per level")
	levels := flag.String("levels", "", "Level configuration file (lines of: <id> <limit> <Tiering|Leveling>)")
	backend := flag.String("backend", "", "Memtable backend: avl, rbtree or skiplist")
	envFile := flag.String("env", ".env", "Optional .env file with LSMKV_* settings")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	opts := Options{EnvFile: *envFile}
	// only flags given explicitly override the environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dir":
			opts.DataDir = *dataDir
		case "levels":
			opts.Levels = *levels
		case "backend":
			opts.Backend = *backend
		case "log-level":
			opts.LogLevel = *logLevel
		}
	})
	if opts.DataDir == "" && os.Getenv(config.EnvDataDir) == "" {
		opts.DataDir = *dataDir
	}
	return opts
}

// buildConfig layers defaults, the environment and the flags.
func buildConfig(opts Options) (*config.Config, error) {
	cfg := config.NewDefaultConfig(opts.DataDir)
	if err := cfg.LoadEnv(opts.EnvFile); err != nil {
		return nil, err
	}

	cfg.Update(func(c *config.Config) {
		if opts.DataDir != "" {
			c.DataDir = opts.DataDir
		}
		if opts.Levels != "" {
			c.LevelConfigPath = opts.Levels
		}
		if opts.LogLevel != "" {
			c.LogLevel = opts.LogLevel
		}
	})

	if opts.Backend != "" {
		backend, err := memtable.ParseBackend(opts.Backend)
		if err != nil {
			return nil, err
		}
		cfg.Update(func(c *config.Config) {
			c.MemTableBackend = string(backend)
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupGracefulShutdown(eng *engine.Engine) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
		if err := eng.Close(); err != nil && !errors.Is(err, engine.ErrEngineClosed) {
			fmt.Fprintf(os.Stderr, "Error closing store: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}()
}

func runInteractive(eng *engine.Engine, fs afero.Fs, dataDir string) {
	fmt.Printf("lsmkv version %s\n", version)
	fmt.Println("Enter .help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".lsmkv_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("lsmkv:%s> ", dataDir),
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		eng.Close()
		os.Exit(1)
	}
	defer rl.Close()

	sh := newShell(eng, fs, rl.Stdout())
	for {
		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		if err := sh.execute(line); errors.Is(err, errExit) {
			break
		}
	}

	if err := eng.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing store: %s\n", err)
	}
	fmt.Println("Goodbye!")
}
