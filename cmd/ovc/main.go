// cmd/ovc/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"ovc/internal/config"
	"ovc/internal/errors"
	"ovc/internal/legacy"
	"ovc/internal/logging"
	"ovc/internal/merge"
	"ovc/internal/parcel"
	"ovc/internal/workspace"
	"ovc/shared/types"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg    = config.Default()
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "ovc",
	Short: "ovc keeps a local history while the real repository is out of reach",
	Long: `ovc overlays an offline version control layer on a working tree.
Take the tree offline, branch and commit locally, then commit the result to
the real version control system and go back online.

Outside an offline tree every command is handed to the detected VCS.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(config.Path())
		if err != nil {
			return errors.User("loading config: %v", err)
		}
		cfg = loaded

		l, err := logging.NewLogger(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l.Logger
		return nil
	},
}

func init() {
	var offlineCmd = &cobra.Command{
		Use:   "offline [name]",
		Short: "Take the working tree offline",
		Long: `Records the current working tree as revision 0 of a new branch. The branch
name defaults to the configured default branch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			name := ""
			if len(args) == 1 {
				name = args[0]
			}

			p, err := parcel.Offline(dir, name, options())
			if err != nil {
				return err
			}
			defer p.Close()

			current := p.Repo.State.Current()
			fmt.Printf("Offline in %s on branch %s (%s mode)\n", p.Root, current.Label(), p.Repo.Mode())
			return nil
		},
	}

	var onlineCmd = &cobra.Command{
		Use:   "online",
		Short: "Delete the offline history and return to the real VCS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			if !force && !p.Repo.State.Current().InSync {
				color.Yellow("Branch %s was not committed to the real VCS", p.Repo.State.Current().Label())
			}
			if err := p.Online(force); err != nil {
				return err
			}

			fmt.Println("Back online")
			return nil
		},
	}

	var branchCmd = &cobra.Command{
		Use:   "branch [name]",
		Short: "Create a branch from the current one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromLast, _ := cmd.Flags().GetBool("from-last")
			stay, _ := cmd.Flags().GetBool("stay")

			name := ""
			if len(args) == 1 {
				name = args[0]
			}

			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			info, err := p.Branch(name, fromLast, stay)
			if err != nil {
				return err
			}

			if stay {
				fmt.Printf("Created branch %s\n", info.Label())
			} else {
				fmt.Printf("Created and switched to branch %s\n", info.Label())
			}
			return nil
		},
	}

	var changesCmd = &cobra.Command{
		Use:   "changes [branch][/revision]",
		Short: "List files that differ from a revision",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			changes, err := p.Changes(firstArg(args))
			if err != nil {
				return err
			}

			if changes.Empty() {
				fmt.Println("No changes")
				return nil
			}
			printChanges(changes)
			return nil
		},
	}

	var diffCmd = &cobra.Command{
		Use:   "diff [branch][/revision]",
		Short: "Show line differences against a revision",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			diffs, err := p.Diff(firstArg(args))
			if err != nil {
				return err
			}

			for _, d := range diffs {
				fmt.Printf("\ndiff --ovc a/%s b/%s\n", d.Path, d.Path)
				switch {
				case d.State == workspace.StateAdded:
					color.Green("new file")
				case d.State == workspace.StateDeleted:
					color.Red("deleted file")
				case d.Binary:
					fmt.Println("Binary files differ")
				default:
					printColoredDiff(d.Result.Format())
				}
			}
			return nil
		},
	}

	var commitCmd = &cobra.Command{
		Use:   "commit [message...]",
		Short: "Record the live changes as a new revision",
		RunE: func(cmd *cobra.Command, args []string) error {
			message, _ := cmd.Flags().GetString("message")
			if message == "" {
				message = strings.Join(args, " ")
			}

			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			revision, err := p.Commit(message)
			if err != nil {
				return err
			}

			fmt.Printf("Committed revision %d on branch %s\n", revision, p.Repo.State.Current().Label())
			return nil
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show branches and uncommitted changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			status, err := p.Status()
			if err != nil {
				return err
			}
			printStatus(status)
			return nil
		},
	}

	var switchCmd = &cobra.Command{
		Use:   "switch [branch][/revision]",
		Short: "Make the working tree match a revision",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.Switch(firstArg(args), force); err != nil {
				return err
			}

			fmt.Printf("Switched to branch %s\n", p.Repo.State.Current().Label())
			return nil
		},
	}

	var updateCmd = &cobra.Command{
		Use:   "update [branch][/revision]",
		Short: "Merge a revision into the working tree",
		Long: `Merges a revision into the working tree of the current branch.

--op selects which side of the difference is applied: insert, remove or
both. --policy decides lines changed on both sides: theirs, mine, ask or
next.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, _ := cmd.Flags().GetString("op")
			policy, _ := cmd.Flags().GetString("policy")
			force, _ := cmd.Flags().GetBool("force")

			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.Update(firstArg(args), op, policy, force); err != nil {
				return err
			}

			fmt.Println("Working tree updated")
			return nil
		},
	}

	var deleteCmd = &cobra.Command{
		Use:   "delete <branch>",
		Short: "Remove a branch and its revisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.Delete(args[0], force); err != nil {
				return err
			}

			fmt.Printf("Deleted branch %s, now on %s\n", args[0], p.Repo.State.Current().Label())
			return nil
		},
	}

	var addCmd = &cobra.Command{
		Use:   "add <pattern>...",
		Short: "Track files matching a pattern",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")

			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			for _, pattern := range args {
				if err := p.Add(pattern, force); err != nil {
					return err
				}
				fmt.Printf("Tracking %s\n", pattern)
			}
			return nil
		},
	}

	var removeCmd = &cobra.Command{
		Use:     "remove <pattern>...",
		Aliases: []string{"rm"},
		Short:   "Stop tracking a pattern",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			for _, pattern := range args {
				if err := p.Remove(pattern); err != nil {
					return err
				}
				fmt.Printf("Stopped tracking %s\n", pattern)
			}
			return nil
		},
	}

	var lsCmd = &cobra.Command{
		Use:   "ls [dir]",
		Short: "List files of a directory with their tracking state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			dir, err := treeDir(p.Root, firstArg(args))
			if err != nil {
				return err
			}

			entries, err := p.List(dir)
			if err != nil {
				return err
			}
			printList(entries)
			return nil
		},
	}

	var logCmd = &cobra.Command{
		Use:   "log",
		Short: "Show the revisions of the current branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			entries, err := p.Log()
			if err != nil {
				return err
			}
			printLog(p.Repo.State.Current().Label(), entries)
			return nil
		},
	}

	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Show uncommitted changes as files are edited",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			fmt.Println("Watching for changes, press Ctrl+C to stop")
			return p.Watch(ctx, func(changes shared.ChangeSet) {
				fmt.Println()
				if changes.Empty() {
					fmt.Println("No changes")
					return
				}
				printChanges(changes)
			})
		},
	}

	var vcsCmd = &cobra.Command{
		Use:                "vcs <command> [args...]",
		Short:              "Run a command of the real VCS",
		Long:               `Passes the arguments verbatim to the detected VCS, even where ovc has a command of the same name.`,
		DisableFlagParsing: true,
		Args:               cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.User("no version control system found")
		},
	}

	var syncCommitCmd = &cobra.Command{
		Use:   "sync-commit",
		Short: "Mark the current branch as committed to the real VCS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openParcel()
			if err != nil {
				return err
			}
			defer p.Close()

			return p.SyncCommit()
		},
	}

	onlineCmd.Flags().BoolP("force", "f", false, "Discard uncommitted changes")
	branchCmd.Flags().BoolP("from-last", "l", false, "Start from the latest revision instead of the working tree")
	branchCmd.Flags().BoolP("stay", "s", false, "Stay on the current branch")
	commitCmd.Flags().StringP("message", "m", "", "Commit message")
	switchCmd.Flags().BoolP("force", "f", false, "Overwrite uncommitted changes")
	updateCmd.Flags().StringP("op", "o", "both", "Merge operation (insert, remove, both)")
	updateCmd.Flags().StringP("policy", "p", "theirs", "Conflict policy (theirs, mine, ask, next)")
	updateCmd.Flags().BoolP("force", "f", false, "Merge over uncommitted changes")
	deleteCmd.Flags().BoolP("force", "f", false, "Delete the current branch despite uncommitted changes")
	addCmd.Flags().BoolP("force", "f", false, "Add patterns that match no file")

	rootCmd.AddCommand(offlineCmd)
	rootCmd.AddCommand(onlineCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(switchCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(vcsCmd)
	rootCmd.AddCommand(syncCommitCmd)
}

func options() parcel.Options {
	return parcel.Options{
		Config:   cfg,
		Resolver: merge.NewPromptResolver(os.Stdin, os.Stdout),
		Logger:   logger,
	}
}

func openParcel() (*parcel.Parcel, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}
	return parcel.Open(cwd, options())
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func main() {
	if code, handled := passthrough(os.Args[1:]); handled {
		os.Exit(code)
	}

	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		os.Exit(errors.ExitCode(err))
	}
}

// passthrough hands args to the real VCS when ovc should not handle them:
// anything outside an offline tree except offline itself, unknown commands
// inside one, and everything after "vcs". A successful commit inside an
// offline tree marks the current branch as in sync.
func passthrough(args []string) (int, bool) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return 0, false
	}

	cwd, err := os.Getwd()
	if err != nil {
		return 0, false
	}

	_, rootErr := workspace.FindRoot(cwd)
	offline := rootErr == nil
	switch {
	case args[0] == "help" || args[0] == "completion" || args[0] == "offline":
		return 0, false
	case args[0] == "vcs":
		if len(args) == 1 {
			return 0, false
		}
		args = args[1:]
	case offline && ownCommand(args[0]):
		return 0, false
	}

	vcs, err := legacy.Discover(cwd)
	if err != nil {
		if offline {
			return 0, false // let cobra report the unknown command
		}
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		return errors.ExitCode(err), true
	}

	runner := legacy.ExecRunner{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
	code, err := runner.Run(context.Background(), cwd, vcs, args)
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		return errors.ExitCode(err), true
	}

	if code == 0 && offline && legacy.IsCommit(args) {
		if err := markInSync(cwd); err != nil {
			color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
			return errors.ExitCode(err), true
		}
	}
	return code, true
}

func ownCommand(name string) bool {
	for _, c := range rootCmd.Commands() {
		if c.Name() == name || c.HasAlias(name) {
			return true
		}
	}
	return false
}

func markInSync(cwd string) error {
	loaded, err := config.Load(config.Path())
	if err != nil {
		return errors.User("loading config: %v", err)
	}
	cfg = loaded

	p, err := parcel.Open(cwd, parcel.Options{Config: cfg})
	if err != nil {
		return err
	}
	defer p.Close()
	return p.SyncCommit()
}
