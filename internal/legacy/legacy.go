// Package legacy hands commands to the version control system that owns
// the working tree when it is not offline.
package legacy

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"ovc/internal/errors"
)

// VCS is a detected version control system.
type VCS struct {
	Name string // executable name
	Root string // directory holding the marker
}

// markers maps metadata entries to the executable that owns them, in
// lookup order.
var markers = []struct {
	marker string
	name   string
}{
	{".git", "git"},
	{".svn", "svn"},
	{".hg", "hg"},
	{".bzr", "bzr"},
	{".fslckout", "fossil"},
	{"_FOSSIL_", "fossil"},
}

// Discover finds the nearest version control system by walking up from cwd.
func Discover(cwd string) (VCS, error) {
	current, err := filepath.Abs(cwd)
	if err != nil {
		return VCS{}, fmt.Errorf("failed to get absolute path: %w", err)
	}

	for {
		for _, m := range markers {
			// .git can be a directory or a file (for worktrees/submodules)
			if _, err := os.Stat(filepath.Join(current, m.marker)); err == nil {
				return VCS{Name: m.name, Root: current}, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return VCS{}, errors.User("not offline and no version control system found")
		}
		current = parent
	}
}

// Runner executes the legacy tool.
type Runner interface {
	Run(ctx context.Context, dir string, vcs VCS, args []string) (int, error)
}

// ExecRunner runs the tool as a child process wired to the given streams.
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run passes args verbatim and returns the tool's exit status. A non-zero
// status is not an error; a tool that cannot be started is.
func (r ExecRunner) Run(ctx context.Context, dir string, vcs VCS, args []string) (int, error) {
	path, err := exec.LookPath(vcs.Name)
	if err != nil {
		return 0, errors.User("%s is not installed", vcs.Name)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	err = cmd.Run()
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return 0, fmt.Errorf("running %s: %w", vcs.Name, err)
	}
	return 0, nil
}

// IsCommit reports whether args invoke the tool's commit command.
func IsCommit(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "commit", "ci":
		return true
	}
	return false
}
