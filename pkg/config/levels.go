package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/KevoDB/lsmkv/pkg/compaction"
	"github.com/spf13/afero"
)

// ErrInvalidLevelConfig is returned for a level configuration file that
// cannot be parsed.
var ErrInvalidLevelConfig = errors.New("invalid level configuration")

// LevelSpec configures one level: its position, how many blocks it holds
// before it is compacted, and how it is compacted.
type LevelSpec struct {
	ID     int               `json:"id"`
	Limit  int               `json:"limit"`
	Policy compaction.Policy `json:"policy"`
}

// String renders the spec as a level configuration line.
func (s LevelSpec) String() string {
	return fmt.Sprintf("%d %d %s", s.ID, s.Limit, s.Policy)
}

// DefaultLevels is used when no level configuration is given.
func DefaultLevels() []LevelSpec {
	return []LevelSpec{
		{ID: 0, Limit: 2, Policy: compaction.Tiering},
		{ID: 1, Limit: 4, Policy: compaction.Tiering},
		{ID: 2, Limit: 8, Policy: compaction.Leveling},
		{ID: 3, Limit: 16, Policy: compaction.Leveling},
	}
}

// ParseLevels reads records of the form "<id> <limit> <mode>", one per line.
// The mode "Leveling" selects Leveling and any other token selects Tiering.
// Blank lines and lines starting with '#' are skipped. Any other line must
// hold exactly three fields with a distinct integer id and a limit of at
// least 1. Record order alone defines the levels: the first record is level
// 0 whatever its id.
func ParseLevels(r io.Reader) ([]LevelSpec, error) {
	var specs []LevelSpec
	seen := make(map[int]int)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: line %d: expected \"<id> <limit> <mode>\", got %q", ErrInvalidLevelConfig, lineNo, line)
		}

		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad level id %q", ErrInvalidLevelConfig, lineNo, fields[0])
		}
		if first, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: line %d: level id %d already used on line %d", ErrInvalidLevelConfig, lineNo, id, first)
		}
		seen[id] = lineNo

		limit, err := strconv.Atoi(fields[1])
		if err != nil || limit < 1 {
			return nil, fmt.Errorf("%w: line %d: bad block limit %q", ErrInvalidLevelConfig, lineNo, fields[1])
		}

		specs = append(specs, LevelSpec{ID: len(specs), Limit: limit, Policy: compaction.ParsePolicy(fields[2])})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read level configuration: %w", err)
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no levels defined", ErrInvalidLevelConfig)
	}
	return specs, nil
}

// LoadLevels parses the level configuration file at path.
func LoadLevels(fs afero.Fs, path string) ([]LevelSpec, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open level configuration: %w", err)
	}
	defer f.Close()

	specs, err := ParseLevels(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}

// WriteLevels writes specs in the format ParseLevels reads.
func WriteLevels(w io.Writer, specs []LevelSpec) error {
	for _, s := range specs {
		if _, err := fmt.Fprintln(w, s.String()); err != nil {
			return err
		}
	}
	return nil
}

// EqualLevels reports whether a and b describe the same level shape.
func EqualLevels(a, b []LevelSpec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func validateLevels(specs []LevelSpec) error {
	for i, s := range specs {
		if s.ID != i {
			return fmt.Errorf("level %d has id %d", i, s.ID)
		}
		if s.Limit < 1 {
			return fmt.Errorf("level %d: block limit must be at least 1", i)
		}
	}
	return nil
}
