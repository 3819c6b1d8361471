package validation

import (
	"path"
	"strconv"
	"strings"

	"ovc/internal/errors"
)

// BranchName rejects names that would be ambiguous in a revision spec.
func BranchName(name string) error {
	if name == "" {
		return nil
	}
	if strings.ContainsAny(name, `/\`) {
		return errors.User("branch name %q must not contain path separators", name)
	}
	if _, err := strconv.Atoi(name); err == nil {
		return errors.User("branch name %q must not be a number", name)
	}
	if strings.TrimSpace(name) != name {
		return errors.User("branch name %q must not start or end with whitespace", name)
	}
	return nil
}

// Pattern checks a tracking pattern: a relative slash path whose last
// element may be a glob.
func Pattern(pattern string) error {
	if pattern == "" {
		return errors.User("empty tracking pattern")
	}
	if strings.HasPrefix(pattern, "/") || strings.Contains(pattern, `\`) {
		return errors.User("tracking pattern %q must be a relative slash path", pattern)
	}
	for _, part := range strings.Split(pattern, "/") {
		if part == ".." {
			return errors.User("tracking pattern %q leaves the working tree", pattern)
		}
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return errors.User("invalid tracking pattern %q: %v", pattern, err)
	}
	return nil
}
