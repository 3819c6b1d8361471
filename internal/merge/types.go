package merge

import (
	"fmt"
	"strings"

	"ovc/internal/errors"
)

// Op selects which one-sided changes of the destination are applied.
type Op int

const (
	Insert Op = 1 << iota
	Remove
	Both = Insert | Remove
)

func (o Op) Inserts() bool { return o&Insert != 0 }
func (o Op) Removes() bool { return o&Remove != 0 }

func (o Op) String() string {
	switch o {
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// ParseOp parses insert, remove or both; empty means both.
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(s) {
	case "", "both":
		return Both, nil
	case "insert", "ins", "add":
		return Insert, nil
	case "remove", "rm", "delete":
		return Remove, nil
	}
	return 0, errors.User("unknown merge operation %q (insert, remove, both)", s)
}

// Policy resolves blocks changed on both sides.
type Policy int

const (
	Theirs Policy = iota // take the destination lines
	Mine                 // keep the source lines
	Ask                  // ask the Resolver per block
	Next                 // intra-line resolution; currently resolves as Theirs
)

func (p Policy) String() string {
	switch p {
	case Theirs:
		return "theirs"
	case Mine:
		return "mine"
	case Ask:
		return "ask"
	case Next:
		return "next"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses theirs, mine, ask or next; empty means theirs.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "theirs":
		return Theirs, nil
	case "mine":
		return Mine, nil
	case "ask":
		return Ask, nil
	case "next":
		return Next, nil
	}
	return 0, errors.User("unknown conflict policy %q (theirs, mine, ask, next)", s)
}

// BlockKind classifies a run of lines in the comparison of source and
// destination.
type BlockKind int

const (
	Keep    BlockKind = iota // in both
	Added                    // destination only
	Removed                  // source only
	Replace                  // source run substituted by an equal-length destination run
	Modify                   // like Replace, with similar lines and intra-line changes
)

func (k BlockKind) String() string {
	return [...]string{"keep", "insert", "remove", "replace", "modify"}[k]
}

// RangeKind summarises the intra-line changes of a Modify block.
type RangeKind int

const (
	RangeKeep RangeKind = iota
	RangeInsert
	RangeRemove
	RangeModify
)

// Range records the changed columns of a Modify block.
type Range struct {
	Kind    RangeKind
	Columns []int // ascending, no duplicates
}

// Block is one run of the comparison. For Replace and Modify, Lines are the
// destination lines and Replaced holds the source lines they substitute.
type Block struct {
	Kind      BlockKind
	Lines     []string
	StartLine int // 1-based position in the source
	Replaced  *Block
	Changes   *Range
}
