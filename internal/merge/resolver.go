package merge

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"ovc/internal/errors"
)

// Conflict is a block, or a whole binary file, changed on both sides.
type Conflict struct {
	Path   string
	Binary bool
	Mine   []string // source lines, nil for binary files
	Theirs []string // destination lines, nil for binary files
	Line   int
}

// Resolver decides a conflict for the Ask policy. It must answer Theirs
// or Mine.
type Resolver interface {
	Resolve(c Conflict) (Policy, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(c Conflict) (Policy, error)

func (f ResolverFunc) Resolve(c Conflict) (Policy, error) {
	return f(c)
}

// PromptResolver shows each conflict on out and reads the answer from in.
type PromptResolver struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPromptResolver(in io.Reader, out io.Writer) *PromptResolver {
	return &PromptResolver{in: bufio.NewReader(in), out: out}
}

func (p *PromptResolver) Resolve(c Conflict) (Policy, error) {
	if c.Binary {
		fmt.Fprintf(p.out, "Binary file %s differs.\n", c.Path)
	} else {
		fmt.Fprintf(p.out, "Conflict in %s at line %d:\n", c.Path, c.Line)
		for _, line := range c.Mine {
			fmt.Fprintf(p.out, "  mine   | %s\n", line)
		}
		for _, line := range c.Theirs {
			fmt.Fprintf(p.out, "  theirs | %s\n", line)
		}
	}

	for {
		fmt.Fprint(p.out, "Keep (m)ine or take (t)heirs? ")
		answer, err := p.in.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "m", "mine":
			return Mine, nil
		case "t", "theirs":
			return Theirs, nil
		}
		if err != nil {
			if err == io.EOF {
				return 0, errors.User("conflict in %s left unresolved", c.Path)
			}
			return 0, fmt.Errorf("reading answer: %w", err)
		}
	}
}
