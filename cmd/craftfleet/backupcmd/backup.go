package backupcmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"craftfleet/cmd/craftfleet/cmdutil"
	"craftfleet/cmd/craftfleet/ui"
	"craftfleet/internal/backup"
	"craftfleet/internal/controlplane"
)

const timeLayout = "2006-01-02 15:04:05"

// Cmd returns the parent "craftfleet backup" command.
func Cmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot and restore world groups",
	}
	cmd.AddCommand(listCmd(flags))
	cmd.AddCommand(createCmd(flags))
	cmd.AddCommand(restoreCmd(flags))
	cmd.AddCommand(recoverCmd(flags))
	return cmd
}

func listCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	var tags string

	cmd := &cobra.Command{
		Use:     "list <env>",
		Aliases: []string{"ls"},
		Short:   "List an environment's snapshots",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				var snaps []backup.Snapshot
				err := ui.RunWithSpinner(cmd.Context(), "Reading snapshots", func(ctx context.Context) error {
					var err error
					snaps, err = p.ListBackups(ctx, args[0], cmdutil.SplitList(tags))
					return err
				})
				if err != nil {
					return err
				}
				if len(snaps) == 0 {
					fmt.Println(ui.Muted("no snapshots"))
					return nil
				}

				rows := make([][]string, 0, len(snaps))
				for _, s := range snaps {
					rows = append(rows, []string{
						s.ShortID,
						s.Time.Local().Format(timeLayout),
						s.Hostname,
						strings.Join(s.Tags, ","),
						strings.Join(s.Paths, ","),
					})
				}
				fmt.Println(ui.Table([]string{"ID", "Time", "Host", "Tags", "Paths"}, rows))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tags, "tag", "", "Only snapshots carrying every one of these comma-separated tags")
	return cmd
}

func createCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "create <env> <world-group>",
		Short: "Take an ad-hoc snapshot of a world group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				var out string
				err := ui.RunWithSpinner(cmd.Context(), "Backing up "+args[1], func(ctx context.Context) error {
					var err error
					out, err = p.Backup(ctx, args[0], args[1])
					return err
				})
				if err != nil {
					return err
				}
				fmt.Println(ui.Output(out))
				fmt.Println(ui.SuccessMsg("backed up %s/%s", args[0], args[1]))
				return nil
			})
		},
	}
}

func restoreCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <env> <world-group> <snapshot-id>",
		Short: "Replace a stopped world group's files with a snapshot",
		Long: "Replace a stopped world group's files with a snapshot.\n\n" +
			"The live files are archived first. If the restore fails they stay in the\n" +
			"archive; run `craftfleet backup recover` to move them back.",
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				var out string
				err := ui.RunWithSpinner(cmd.Context(), "Restoring "+args[2], func(ctx context.Context) error {
					var err error
					out, err = p.Restore(ctx, args[0], args[1], args[2])
					return err
				})
				if out != "" {
					fmt.Println(ui.Output(out))
				}
				if err != nil {
					return err
				}
				fmt.Println(ui.SuccessMsg("restored %s into %s/%s", args[2], args[0], args[1]))
				return nil
			})
		},
	}
}

func recoverCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "recover <env> <world-group>",
		Short: "Move the newest archive of a world group back into place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				from, err := p.RecoverLatestArchive(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Println(ui.SuccessMsg("recovered %s from %s", args[1], from))
				return nil
			})
		},
	}
}
