package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ovc/internal/errors"
	"ovc/internal/workspace"
	"ovc/shared/types"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func printChanges(changes shared.ChangeSet) {
	for _, path := range shared.SortedPaths(changes.Additions) {
		fmt.Printf("\t%s %s\n", green("A"), path)
	}
	for _, path := range shared.SortedPaths(changes.Modifications) {
		fmt.Printf("\t%s %s\n", yellow("M"), path)
	}
	for _, path := range shared.SortedPaths(changes.Deletions) {
		fmt.Printf("\t%s %s\n", red("D"), path)
	}
}

func printStatus(status *workspace.Status) {
	fmt.Printf("On branch %s, revision %d (%s mode", status.Branch.Label(), status.Revision, status.Mode)
	if status.Strict {
		fmt.Print(", strict")
	}
	if status.Compress {
		fmt.Print(", compressed")
	}
	fmt.Println(")")

	fmt.Println("\nBranches:")
	for _, b := range status.Branches {
		marker := " "
		if b.Current {
			marker = green("*")
		}
		sync := yellow("not committed to VCS")
		if b.Info.InSync {
			sync = green("in sync")
		}
		fmt.Printf("  %s %-16s %3d revision(s)  %s\n", marker, b.Info.Label(), b.Revisions, sync)
	}

	if len(status.Branch.TrackedPatterns) > 0 {
		fmt.Println("\nTracked patterns:")
		for _, p := range status.Branch.TrackedPatterns {
			fmt.Printf("\t%s\n", p)
		}
	}

	fmt.Println()
	if status.Changes.Empty() {
		fmt.Println("No changes detected (working tree clean)")
		return
	}
	fmt.Println("Uncommitted changes:")
	fmt.Println("  (use \"ovc commit <message>\" to record them)")
	printChanges(status.Changes)
}

func printList(entries []workspace.ListEntry) {
	for _, e := range entries {
		var state string
		switch e.State {
		case workspace.StateAdded:
			state = green("A")
		case workspace.StateModified:
			state = yellow("M")
		case workspace.StateDeleted:
			state = red("D")
		case workspace.StateUntracked:
			state = blue("?")
		case workspace.StateIgnored:
			state = faint("!")
		default:
			state = " "
		}

		line := fmt.Sprintf("\t%s %s", state, e.Path)
		if len(e.Patterns) > 0 {
			line += faint("  [" + strings.Join(e.Patterns, ", ") + "]")
		}
		fmt.Println(line)
	}
}

func printLog(branch string, entries []workspace.LogEntry) {
	fmt.Printf("Branch %s\n\n", branch)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		created := time.UnixMilli(e.Commit.CreatedAt).Format(time.RFC3339)
		fmt.Printf("%s  %s  %s %s  %s\n",
			yellow(fmt.Sprintf("r%-3d", e.Commit.Number)),
			created,
			green(fmt.Sprintf("+%d", e.Changed)),
			red(fmt.Sprintf("-%d", e.Deleted)),
			e.Commit.Message,
		)
	}
}

func printColoredDiff(diff string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)
	hint := color.New(color.Faint)

	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		case strings.HasPrefix(line, "?"):
			hint.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

// treeDir turns a directory argument given relative to the current
// directory into a slash path relative to root.
func treeDir(root, arg string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}

	rel, err := filepath.Rel(root, filepath.Join(cwd, arg))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.User("%s is outside the repository", arg)
	}
	return filepath.ToSlash(rel), nil
}
