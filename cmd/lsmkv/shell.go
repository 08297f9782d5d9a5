package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/KevoDB/lsmkv/pkg/engine"
	"github.com/KevoDB/lsmkv/pkg/snapshot"
	"github.com/chzyer/readline"
	"github.com/spf13/afero"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem(".levels"),
	readline.PcItem(".flush"),
	readline.PcItem(".compact"),
	readline.PcItem(".reset"),
	readline.PcItem(".export"),
	readline.PcItem(".import"),
	readline.PcItem("PUT"),
	readline.PcItem("GET"),
	readline.PcItem("DEL"),
	readline.PcItem("SCAN"),
)

const helpText = `
Commands:
  .help                   - Show this help message
  .exit                   - Exit the program
  .stats [PREFIX]         - Show store statistics, optionally only names starting with PREFIX
  .levels                 - Show the blocks held by every level
  .flush                  - Flush the memtable into level 0
  .compact                - Run the compaction cascade
  .reset                  - Discard every key, in memory and on disk
  .export FILE [CODEC]    - Write the live keys to FILE (codec: zstd, snappy, none)
  .import FILE            - Put every key stored in FILE

  PUT key value           - Store a value under an unsigned integer key
  GET key                 - Retrieve the value stored under key
  DEL key                 - Delete key
  SCAN [lo hi]            - List the live keys in [lo, hi], all keys by default
`

// errExit is returned by execute when the shell should stop.
var errExit = errors.New("exit")

// shell executes one command line at a time against an open engine.
type shell struct {
	eng *engine.Engine
	fs  afero.Fs
	out io.Writer
}

func newShell(eng *engine.Engine, fs afero.Fs, out io.Writer) *shell {
	return &shell{eng: eng, fs: fs, out: out}
}

// execute runs a single command line. Command errors are printed and do not
// stop the shell; only .exit returns errExit.
func (s *shell) execute(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	cmd := strings.ToUpper(parts[0])
	if strings.HasPrefix(cmd, ".") {
		cmd = strings.ToLower(cmd)
	}

	var err error
	switch cmd {
	case ".help":
		fmt.Fprint(s.out, helpText)
	case ".exit", ".quit":
		return errExit
	case ".stats":
		err = s.stats(parts[1:])
	case ".levels":
		s.levels()
	case ".flush":
		err = s.flush()
	case ".compact":
		err = s.compact()
	case ".reset":
		err = s.reset()
	case ".export":
		err = s.export(parts[1:])
	case ".import":
		err = s.importFile(parts[1:])
	case "PUT":
		err = s.put(line, parts)
	case "GET":
		err = s.get(parts)
	case "DEL", "DELETE":
		err = s.del(parts)
	case "SCAN":
		err = s.scan(parts)
	default:
		err = fmt.Errorf("unknown command %q, enter .help for usage hints", parts[0])
	}

	if err != nil {
		fmt.Fprintf(s.out, "Error: %s\n", err)
	}
	return nil
}

func parseKey(arg string) (uint64, error) {
	k, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q: expected an unsigned integer", arg)
	}
	return k, nil
}

func (s *shell) put(line string, parts []string) error {
	if len(parts) < 3 {
		return errors.New("usage: PUT key value")
	}
	key, err := parseKey(parts[1])
	if err != nil {
		return err
	}

	// The value is everything after the key, spaces included.
	rest := strings.TrimSpace(line)
	rest = strings.TrimSpace(rest[len(parts[0]):])
	value := strings.TrimSpace(rest[len(parts[1]):])

	if err := s.eng.Put(key, []byte(value)); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Value stored")
	return nil
}

func (s *shell) get(parts []string) error {
	if len(parts) != 2 {
		return errors.New("usage: GET key")
	}
	key, err := parseKey(parts[1])
	if err != nil {
		return err
	}

	value, err := s.eng.Get(key)
	if errors.Is(err, engine.ErrKeyNotFound) {
		fmt.Fprintln(s.out, "Key not found")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s\n", value)
	return nil
}

func (s *shell) del(parts []string) error {
	if len(parts) != 2 {
		return errors.New("usage: DEL key")
	}
	key, err := parseKey(parts[1])
	if err != nil {
		return err
	}

	existed, err := s.eng.Delete(key)
	if err != nil {
		return err
	}
	if existed {
		fmt.Fprintln(s.out, "Key deleted")
	} else {
		fmt.Fprintln(s.out, "Key not found")
	}
	return nil
}

func (s *shell) scan(parts []string) error {
	lo, hi := uint64(0), ^uint64(0)
	switch len(parts) {
	case 1:
	case 3:
		var err error
		if lo, err = parseKey(parts[1]); err != nil {
			return err
		}
		if hi, err = parseKey(parts[2]); err != nil {
			return err
		}
	default:
		return errors.New("usage: SCAN [lo hi]")
	}

	entries, err := s.eng.Scan(lo, hi)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(s.out, "%d: %s\n", e.Key, e.Value)
	}
	fmt.Fprintf(s.out, "%d entries found\n", len(entries))
	return nil
}

func (s *shell) flush() error {
	start := time.Now()
	if err := s.eng.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Memtable flushed in %s\n", time.Since(start).Round(time.Microsecond))
	return nil
}

func (s *shell) compact() error {
	merges, err := s.eng.Compact()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Compaction ran %d merges\n", merges)
	return nil
}

func (s *shell) reset() error {
	if err := s.eng.Reset(); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Store reset")
	return nil
}

func (s *shell) levels() {
	fmt.Fprintf(s.out, "%-6s %-9s %6s %7s %8s %10s\n", "LEVEL", "POLICY", "LIMIT", "BLOCKS", "KEYS", "BYTES")
	for _, l := range s.eng.Levels() {
		fmt.Fprintf(s.out, "%-6d %-9s %6d %7d %8d %10d\n", l.ID, l.Policy, l.Limit, l.Blocks, l.Keys, l.Bytes)
	}
}

func (s *shell) stats(args []string) error {
	var stats map[string]interface{}
	switch len(args) {
	case 0:
		stats = s.eng.GetStats()
	case 1:
		stats = s.eng.GetStatsFiltered(args[0])
	default:
		return errors.New("usage: .stats [PREFIX]")
	}

	keys := make([]string, 0, len(stats))
	for k := range stats {
		if k == "levels" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(s.out, "%-28s %v\n", k, stats[k])
	}
	return nil
}

func (s *shell) export(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: .export FILE [CODEC]")
	}
	codec := snapshot.CodecZstd
	if len(args) == 2 {
		var err error
		if codec, err = snapshot.ParseCodec(args[1]); err != nil {
			return err
		}
	}

	f, err := s.fs.Create(args[0])
	if err != nil {
		return err
	}
	stats, err := snapshot.Export(f, s.eng, snapshot.WithCodec(codec))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Exported %s to %s\n", stats, args[0])
	return nil
}

func (s *shell) importFile(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: .import FILE")
	}

	f, err := s.fs.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	stats, err := snapshot.Import(f, s.eng)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Imported %s from %s\n", stats, args[0])
	return nil
}
