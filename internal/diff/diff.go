// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
	"strings"
)

// Line represents a single line in a diff with its type and content
type Line struct {
	Type    LineType
	Content string
	OldNum  int    // 1-based line number in the old text, 0 if absent
	NewNum  int    // 1-based line number in the new text, 0 if absent
	Marks   []Mark // column marks of a Hint line
}

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
	Hint // intra-line marks for a deleted/added line pair
)

// DiffResult contains the complete diff information
type DiffResult struct {
	Hunks []Hunk
	Stats struct {
		Additions int
		Deletions int
		Changes   int
	}
}

// Hunk represents a continuous section of changes
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Engine provides diffing capabilities
type Engine struct {
	contextLines int
}

// NewEngine creates a new diff engine with specified context lines
func NewEngine(contextLines int) *Engine {
	return &Engine{
		contextLines: contextLines,
	}
}

// SplitLines splits content on '\n', dropping one trailing newline.
func SplitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	return strings.Split(string(bytes.TrimSuffix(content, []byte{'\n'})), "\n")
}

// Diff generates a line-by-line diff between two contents
func (e *Engine) Diff(oldContent, newContent []byte) (*DiffResult, error) {
	lines := Lines(SplitLines(oldContent), SplitLines(newContent))

	result := &DiffResult{}
	result.Hunks = e.hunks(lines)

	// Calculate stats
	for _, line := range lines {
		switch line.Type {
		case Addition:
			result.Stats.Additions++
		case Deletion:
			result.Stats.Deletions++
		}
	}
	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions

	return result, nil
}

// Lines aligns a and b along their longest common subsequence. Within a
// changed region deleted lines come before added lines.
func Lines(a, b []string) []Line {
	lcs := computeLCS(a, b)

	var out []Line
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case i < len(a) && j < len(b) && a[i] == b[j]:
			out = append(out, Line{Type: Context, Content: a[i], OldNum: i + 1, NewNum: j + 1})
			i++
			j++
		case i < len(a) && (j == len(b) || lcs[i+1][j] >= lcs[i][j+1]):
			out = append(out, Line{Type: Deletion, Content: a[i], OldNum: i + 1})
			i++
		default:
			out = append(out, Line{Type: Addition, Content: b[j], NewNum: j + 1})
			j++
		}
	}

	return groupChanges(out)
}

// computeLCS fills the suffix matrix: lcs[i][j] is the length of the
// longest common subsequence of a[i:] and b[j:].
func computeLCS(a, b []string) [][]int {
	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
	}

	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				matrix[i][j] = matrix[i+1][j+1] + 1
			} else {
				matrix[i][j] = max(matrix[i+1][j], matrix[i][j+1])
			}
		}
	}

	return matrix
}

// groupChanges reorders every run of non-context lines so that its
// deletions precede its additions.
func groupChanges(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for k := 0; k < len(lines); {
		if lines[k].Type == Context {
			out = append(out, lines[k])
			k++
			continue
		}
		end := k
		for end < len(lines) && lines[end].Type != Context {
			end++
		}
		for _, l := range lines[k:end] {
			if l.Type == Deletion {
				out = append(out, l)
			}
		}
		for _, l := range lines[k:end] {
			if l.Type == Addition {
				out = append(out, l)
			}
		}
		k = end
	}
	return out
}

// hunks cuts aligned lines into hunks with surrounding context. Changes
// separated by at most twice the context share a hunk.
func (e *Engine) hunks(lines []Line) []Hunk {
	var hunks []Hunk

	k := 0
	for k < len(lines) {
		if lines[k].Type == Context {
			k++
			continue
		}

		start := max(0, k-e.contextLines)
		end := k
		for end < len(lines) {
			if lines[end].Type != Context {
				end++
				continue
			}
			gap := end
			for gap < len(lines) && lines[gap].Type == Context {
				gap++
			}
			if gap == len(lines) || gap-end > 2*e.contextLines {
				break
			}
			end = gap
		}
		stop := min(len(lines), end+e.contextLines)

		hunks = append(hunks, newHunk(lines, start, stop))
		k = stop
	}

	return hunks
}

func newHunk(lines []Line, start, stop int) Hunk {
	hunk := Hunk{Lines: append([]Line(nil), lines[start:stop]...)}

	oldBefore, newBefore := 0, 0
	for _, l := range lines[:start] {
		if l.OldNum > 0 {
			oldBefore++
		}
		if l.NewNum > 0 {
			newBefore++
		}
	}
	for _, l := range hunk.Lines {
		if l.OldNum > 0 {
			hunk.OldLines++
		}
		if l.NewNum > 0 {
			hunk.NewLines++
		}
	}

	hunk.OldStart = oldBefore
	if hunk.OldLines > 0 {
		hunk.OldStart++
	}
	hunk.NewStart = newBefore
	if hunk.NewLines > 0 {
		hunk.NewStart++
	}
	return hunk
}

// Format returns a string representation of the diff
func (r *DiffResult) Format() string {
	var buf bytes.Buffer

	for _, hunk := range r.Hunks {
		buf.WriteString(hunk.Header())
		buf.WriteString("\n")

		for _, line := range hunk.Lines {
			buf.WriteString(line.Prefix())
			buf.WriteString(line.Content)
			buf.WriteString("\n")
		}
	}

	return buf.String()
}

func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
}

func (l Line) Prefix() string {
	switch l.Type {
	case Addition:
		return "+ "
	case Deletion:
		return "- "
	case Hint:
		return "? "
	default:
		return "  "
	}
}
