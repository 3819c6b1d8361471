package parcel

import (
	"strconv"
	"strings"

	"ovc/internal/errors"
)

// Spec addresses a revision: [branch][/revision]. An empty Branch means
// the current branch and a nil Revision the latest one.
type Spec struct {
	Branch   string
	Revision *int
}

// ParseSpec parses a revision spec such as "trunk/2", "1/-1", "/3" or "".
func ParseSpec(s string) (Spec, error) {
	branch, rev, found := strings.Cut(strings.TrimSpace(s), "/")
	spec := Spec{Branch: branch}
	if !found || rev == "" {
		return spec, nil
	}

	n, err := strconv.Atoi(rev)
	if err != nil {
		return Spec{}, errors.User("invalid revision %q in %q", rev, s)
	}
	spec.Revision = &n
	return spec, nil
}
