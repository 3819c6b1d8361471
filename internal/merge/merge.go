// Package merge combines two versions of a text file line by line.
//
// The source is the live ("mine") version and the destination the version
// being merged in ("theirs"). Lines only in the destination pass when Op
// inserts and lines only in the source pass when Op removes. A replaced run
// contributes its destination lines on insert and its source lines on
// remove. Blocks changed on both sides are resolved according to Policy.
package merge

import (
	"fmt"

	"ovc/internal/diff"
	"ovc/internal/errors"
	"ovc/internal/logging"

	"go.uber.org/zap"
)

// Options configures one Merge call.
type Options struct {
	Op       Op
	Policy   Policy
	Resolver Resolver    // consulted for Ask
	Cutoff   float64     // line similarity for Modify blocks, default diff.DefaultCutoff
	Path     string      // shown in prompts and log fields
	Logger   *zap.Logger // warnings about line breaks, encodings and Next
}

// Merge merges dest into source. Output uses the destination's line
// break style and encoding when the two disagree.
func Merge(source, dest []byte, opts Options) ([]byte, error) {
	logger := logging.OrNop(opts.Logger).With(zap.String("path", opts.Path))
	if opts.Op == 0 {
		opts.Op = Both
	}
	if opts.Cutoff == 0 {
		opts.Cutoff = diff.DefaultCutoff
	}

	src, err := decode(source)
	if err != nil {
		return nil, errors.User("decoding source of %s: %v", opts.Path, err)
	}
	dst, err := decode(dest)
	if err != nil {
		return nil, errors.User("decoding destination of %s: %v", opts.Path, err)
	}

	eol, trailing := dst.eol, dst.trailing
	switch {
	case eol == "":
		eol = src.eol
	case src.eol != "" && src.eol != dst.eol:
		logger.Warn("line breaks differ, using destination style",
			zap.String("source", fmt.Sprintf("%q", src.eol)),
			zap.String("destination", fmt.Sprintf("%q", dst.eol)))
	}
	if eol == "" {
		eol = "\n"
	}
	if len(dst.lines) == 0 {
		trailing = src.trailing
	}
	if src.encName != dst.encName && len(src.lines) > 0 && len(dst.lines) > 0 {
		logger.Warn("encodings differ, using destination encoding",
			zap.String("source", src.encName),
			zap.String("destination", dst.encName))
	}
	enc := dst.enc
	if len(dst.lines) == 0 {
		enc = src.enc
	}

	lines, err := assemble(Blocks(src.lines, dst.lines, opts.Cutoff), opts, logger)
	if err != nil {
		return nil, err
	}

	out, lossy, err := encode(lines, eol, trailing, enc)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", opts.Path, err)
	}
	if lossy {
		logger.Warn("characters not representable in destination encoding were replaced")
	}
	return out, nil
}

func assemble(blocks []Block, opts Options, logger *zap.Logger) ([]string, error) {
	var out []string
	for _, block := range blocks {
		switch block.Kind {
		case Keep:
			out = append(out, block.Lines...)

		case Added:
			if opts.Op.Inserts() {
				out = append(out, block.Lines...)
			}

		case Removed:
			if opts.Op.Removes() {
				out = append(out, block.Lines...)
			}

		case Replace:
			// both sides may appear, destination first
			if opts.Op.Inserts() {
				out = append(out, block.Lines...)
			}
			if opts.Op.Removes() {
				out = append(out, block.Replaced.Lines...)
			}

		case Modify:
			policy, err := Choose(opts.Policy, opts.Resolver, Conflict{
				Path:   opts.Path,
				Mine:   block.Replaced.Lines,
				Theirs: block.Lines,
				Line:   block.StartLine,
			}, logger)
			if err != nil {
				return nil, err
			}
			if policy == Mine {
				out = append(out, block.Replaced.Lines...)
			} else {
				out = append(out, block.Lines...)
			}
		}
	}
	return out, nil
}

// Choose reduces policy to Theirs or Mine for one conflict.
func Choose(policy Policy, resolver Resolver, c Conflict, logger *zap.Logger) (Policy, error) {
	switch policy {
	case Theirs, Mine:
		return policy, nil

	case Ask:
		if resolver == nil {
			return 0, errors.Internal(nil, "ask policy needs a resolver")
		}
		answer, err := resolver.Resolve(c)
		if err != nil {
			return 0, err
		}
		if answer != Theirs && answer != Mine {
			return 0, errors.Internal(nil, fmt.Sprintf("resolver answered %s for %s", answer, c.Path))
		}
		return answer, nil

	case Next:
		logging.OrNop(logger).Warn("intra-line resolution not available, taking theirs",
			zap.Int("line", c.Line))
		return Theirs, nil
	}
	return 0, errors.Internal(nil, fmt.Sprintf("unknown policy %s", policy))
}
