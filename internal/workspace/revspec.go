package workspace

import (
	"strconv"
	"strings"

	"ovc/internal/errors"
)

// Resolve turns the parts of a revision spec into a branch and revision
// number. An empty branch means the current branch; a branch is named by
// number, name, or its b<N> label. A nil revision means the latest one;
// negative revisions count back from the end, -1 being the latest.
func (r *Repository) Resolve(branch string, revision *int) (int, int, error) {
	number, err := r.resolveBranch(branch)
	if err != nil {
		return 0, 0, err
	}

	latest, err := r.LatestRevision(number)
	if err != nil {
		return 0, 0, err
	}
	if revision == nil {
		return number, latest, nil
	}

	rev := *revision
	if rev < 0 {
		rev = latest + 1 + rev
	}
	if rev < 0 || rev > latest {
		return 0, 0, errors.User("branch %d has revisions 0..%d, not %d", number, latest, *revision)
	}
	return number, rev, nil
}

func (r *Repository) resolveBranch(ref string) (int, error) {
	if ref == "" {
		return r.State.Branch, nil
	}
	if info, ok := r.State.FindByName(ref); ok {
		return info.Number, nil
	}

	digits := strings.TrimPrefix(ref, "b")
	if n, err := strconv.Atoi(digits); err == nil && n >= 0 {
		if _, ok := r.State.Find(n); ok {
			return n, nil
		}
	}
	return 0, errors.User("unknown branch %q", ref)
}
