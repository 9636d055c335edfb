package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ning0612/adbexplorer/internal/history"
	"github.com/Ning0612/adbexplorer/internal/progress"
)

func newDevicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices known to the bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := a.inv.ListConnectedDevices(cmd.Context(), a.state)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				a.printf("No devices attached.\n")
				return nil
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SERIAL\tSTATE\tMODEL")
			for _, d := range devices {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Serial, d.Status, d.Model)
			}
			return tw.Flush()
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the connected device and probed capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			a.info()
			return nil
		},
	}
}

func newLsCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "ls [remote-path]",
		Short: "List a remote directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			p := a.state.Config.SafeRoot
			if len(args) == 1 {
				p = resolveRemote(p, args[0])
			}
			return a.list(cmd.Context(), p, refresh)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the directory cache")
	return cmd
}

func newPullCmd(a *app) *cobra.Command {
	var (
		dest  string
		match string
		move  bool
		yes   bool
	)
	cmd := &cobra.Command{
		Use:   "pull <remote-path>...",
		Short: "Copy files or directories from the device",
		Long: `Copy files or directories from the device into a local directory.

With --match, directory arguments contribute only their children whose
names match the glob (for example "*.jpg" or "IMG_2024*").
With --move, each source is deleted from the device after the copy has
been verified, and only inside the safe root.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			items, err := a.selectRemote(ctx, a.state.Config.SafeRoot, args, match)
			if err != nil {
				return err
			}
			return a.pull(ctx, items, dest, move, yes)
		},
	}
	cmd.Flags().StringVarP(&dest, "dest", "d", ".", "Local destination directory")
	cmd.Flags().StringVar(&match, "match", "", "Glob applied to the children of directory arguments")
	cmd.Flags().BoolVar(&move, "move", false, "Delete sources after a verified copy")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newPushCmd(a *app) *cobra.Command {
	var (
		dest string
		move bool
		yes  bool
	)
	cmd := &cobra.Command{
		Use:   "push <local-path>...",
		Short: "Copy files or directories to the device",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				return err
			}
			return a.push(ctx, args, resolveRemote(a.state.Config.SafeRoot, dest), move, yes)
		},
	}
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "Remote destination directory")
	cmd.Flags().BoolVar(&move, "move", false, "Delete local sources after a verified copy")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("dest")
	return cmd
}

func newMkdirCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <remote-path>",
		Short: "Create a remote directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			return a.mkdir(cmd.Context(), resolveRemote(a.state.Config.SafeRoot, args[0]))
		},
	}
}

func newRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <remote-path> <new-name>",
		Short: "Rename a remote item in place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			return a.rename(cmd.Context(), resolveRemote(a.state.Config.SafeRoot, args[0]), args[1])
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rm <remote-path>...",
		Short: "Delete remote items",
		Long: `Delete remote files or directories inside the safe root.

Directories larger than safety.large_delete_threshold require typing the
directory name to confirm, even with --yes unset.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			return a.remove(cmd.Context(), a.state.Config.SafeRoot, args, yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without asking")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(a.cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			var records []history.Record
			if a.cfg.Bridge.Serial != "" {
				records, err = store.ForDevice(a.cfg.Bridge.Serial, limit)
			} else {
				records, err = store.Recent(limit)
			}
			if err != nil {
				return err
			}
			if len(records) == 0 {
				a.printf("No transfers recorded.\n")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tDEVICE\tOP\tSTATUS\tITEMS\tBYTES\tSOURCES")
			for _, r := range records {
				op := r.Direction
				if r.Move {
					op += " --move"
				}
				if r.DryRun {
					op += " (what-if)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
					r.StartTime.Local().Format(time.DateTime), r.Serial, op, r.Status,
					r.Succeeded, r.Succeeded+r.Failed, progress.FormatBytes(r.Bytes),
					strings.Join(r.Sources, ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records")
	return cmd
}
