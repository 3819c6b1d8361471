package diff

// Mark classifies one column of an intra-line comparison.
type Mark byte

const (
	MarkKeep   Mark = ' '
	MarkInsert Mark = '+'
	MarkRemove Mark = '-'
	MarkModify Mark = '^'
)

// DefaultCutoff is the similarity at or above which a deleted/added line
// pair is treated as one modified line.
const DefaultCutoff = 0.6

// Compare is Lines plus intra-line hints: a changed region whose deleted
// and added runs have equal length, and whose lines pair up with a
// similarity of at least cutoff, is followed by one Hint line per pair.
func Compare(a, b []string, cutoff float64) []Line {
	lines := Lines(a, b)

	out := make([]Line, 0, len(lines))
	for k := 0; k < len(lines); {
		if lines[k].Type == Context {
			out = append(out, lines[k])
			k++
			continue
		}

		mid := k
		for mid < len(lines) && lines[mid].Type == Deletion {
			mid++
		}
		end := mid
		for end < len(lines) && lines[end].Type == Addition {
			end++
		}
		out = append(out, lines[k:end]...)

		deleted, added := lines[k:mid], lines[mid:end]
		if len(deleted) == len(added) && similar(deleted, added, cutoff) {
			for p := range deleted {
				marks := Columns(deleted[p].Content, added[p].Content)
				out = append(out, Line{
					Type:    Hint,
					Content: string(marks),
					OldNum:  deleted[p].OldNum,
					NewNum:  added[p].NewNum,
					Marks:   marks,
				})
			}
		}
		k = end
	}
	return out
}

func similar(deleted, added []Line, cutoff float64) bool {
	for p := range deleted {
		if Ratio(deleted[p].Content, added[p].Content) < cutoff {
			return false
		}
	}
	return true
}

// Ratio returns 2*M/T where M is the number of runes the strings share in
// order and T their total rune count. Two empty strings are identical.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	lcs := runeLCS(ra, rb)
	return 2 * float64(lcs[0][0]) / float64(total)
}

// Columns aligns two versions of a line rune by rune. Each column of the
// alignment is kept, inserted, removed, or modified (a removal paired with
// an insertion).
func Columns(before, after string) []Mark {
	ra, rb := []rune(before), []rune(after)
	lcs := runeLCS(ra, rb)

	var marks []Mark
	removed, inserted := 0, 0
	flush := func() {
		paired := min(removed, inserted)
		for k := 0; k < paired; k++ {
			marks = append(marks, MarkModify)
		}
		for k := 0; k < removed-paired; k++ {
			marks = append(marks, MarkRemove)
		}
		for k := 0; k < inserted-paired; k++ {
			marks = append(marks, MarkInsert)
		}
		removed, inserted = 0, 0
	}

	i, j := 0, 0
	for i < len(ra) || j < len(rb) {
		switch {
		case i < len(ra) && j < len(rb) && ra[i] == rb[j]:
			flush()
			marks = append(marks, MarkKeep)
			i++
			j++
		case i < len(ra) && (j == len(rb) || lcs[i+1][j] >= lcs[i][j+1]):
			removed++
			i++
		default:
			inserted++
			j++
		}
	}
	flush()

	return marks
}

func runeLCS(a, b []rune) [][]int {
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
