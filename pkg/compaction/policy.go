package compaction

import "fmt"

// Policy decides how a level hands blocks to the next level.
type Policy int

const (
	// Tiering merges every block of a level together and pushes the result
	// down, without looking at what the next level holds.
	Tiering Policy = iota
	// Leveling pushes only the oldest blocks beyond the limit and merges them
	// with the next-level blocks whose key ranges they overlap.
	Leveling
)

// String returns the name used in level configuration files.
func (p Policy) String() string {
	switch p {
	case Tiering:
		return "Tiering"
	case Leveling:
		return "Leveling"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a configuration token to a Policy. "Leveling" selects
// Leveling; every other token selects Tiering.
func ParsePolicy(mode string) Policy {
	if mode == "Leveling" {
		return Leveling
	}
	return Tiering
}

// Order tells Select which side of a compaction a level is on.
type Order int

const (
	// Prev selects victims from the level being compacted.
	Prev Order = iota
	// Next selects blocks of the target level that must join the merge.
	Next
)

func (o Order) String() string {
	if o == Prev {
		return "prev"
	}
	return "next"
}

// MarshalText encodes the policy by name.
func (p Policy) MarshalText() ([]byte, error) {
	if p != Tiering && p != Leveling {
		return nil, fmt.Errorf("unknown compaction policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a policy name with ParsePolicy.
func (p *Policy) UnmarshalText(text []byte) error {
	*p = ParsePolicy(string(text))
	return nil
}
