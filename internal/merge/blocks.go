package merge

import (
	"sort"

	"ovc/internal/diff"
)

// Blocks compares source and destination lines and coalesces the result
// into merge blocks.
func Blocks(source, dest []string, cutoff float64) []Block {
	lines := diff.Compare(source, dest, cutoff)

	var runs []run
	pos := 1
	for _, line := range lines {
		if len(runs) == 0 || runs[len(runs)-1].typ != line.Type {
			runs = append(runs, run{typ: line.Type, start: pos})
		}
		r := &runs[len(runs)-1]
		r.lines = append(r.lines, line)
		if line.Type == diff.Context || line.Type == diff.Deletion {
			pos++
		}
	}

	var blocks []Block
	for k := 0; k < len(runs); k++ {
		r := runs[k]
		switch r.typ {
		case diff.Context:
			blocks = append(blocks, Block{Kind: Keep, Lines: r.contents(), StartLine: r.start})

		case diff.Addition:
			blocks = append(blocks, Block{Kind: Added, Lines: r.contents(), StartLine: r.start})

		case diff.Deletion:
			removed := Block{Kind: Removed, Lines: r.contents(), StartLine: r.start}
			if k+1 >= len(runs) || runs[k+1].typ != diff.Addition || len(runs[k+1].lines) != len(r.lines) {
				blocks = append(blocks, removed)
				continue
			}

			block := Block{
				Kind:      Replace,
				Lines:     runs[k+1].contents(),
				StartLine: r.start,
				Replaced:  &removed,
			}
			k++
			if k+1 < len(runs) && runs[k+1].typ == diff.Hint {
				block.Kind = Modify
				block.Changes = parseHints(runs[k+1].lines)
				k++
			}
			blocks = append(blocks, block)

		case diff.Hint:
			// hints only follow a deletion/addition pair
		}
	}

	return blocks
}

type run struct {
	typ   diff.LineType
	start int
	lines []diff.Line
}

func (r run) contents() []string {
	out := make([]string, len(r.lines))
	for i, l := range r.lines {
		out[i] = l.Content
	}
	return out
}

// parseHints collects the changed columns of all hint lines.
func parseHints(hints []diff.Line) *Range {
	columns := make(map[int]bool)
	var inserts, removes, modifies bool

	for _, hint := range hints {
		for col, mark := range hint.Marks {
			switch mark {
			case diff.MarkInsert:
				inserts = true
			case diff.MarkRemove:
				removes = true
			case diff.MarkModify:
				modifies = true
			default:
				continue
			}
			columns[col] = true
		}
	}

	r := &Range{Kind: RangeKeep}
	switch {
	case modifies || inserts && removes:
		r.Kind = RangeModify
	case inserts:
		r.Kind = RangeInsert
	case removes:
		r.Kind = RangeRemove
	}
	for col := range columns {
		r.Columns = append(r.Columns, col)
	}
	sort.Ints(r.Columns)
	return r
}
