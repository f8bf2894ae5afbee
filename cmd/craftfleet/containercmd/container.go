package containercmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"craftfleet/cmd/craftfleet/cmdutil"
	"craftfleet/cmd/craftfleet/ui"
	"craftfleet/internal/container"
	"craftfleet/internal/controlplane"
)

// Cmd returns the parent "craftfleet container" command.
func Cmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "container",
		Aliases: []string{"c"},
		Short:   "Run and inspect an environment's containers",
	}
	cmd.AddCommand(lifecycleCmd(flags, "up", "Start the cluster or one container", (*controlplane.Plane).ContainerUp))
	cmd.AddCommand(lifecycleCmd(flags, "down", "Stop the cluster or one container", (*controlplane.Plane).ContainerDown))
	cmd.AddCommand(lifecycleCmd(flags, "restart", "Restart the cluster or one container", (*controlplane.Plane).ContainerRestart))
	cmd.AddCommand(listCmd(flags))
	cmd.AddCommand(execCmd(flags))
	cmd.AddCommand(consoleCmd(flags))
	cmd.AddCommand(copyConfigsCmd(flags))
	cmd.AddCommand(attachCmd(flags))
	return cmd
}

type lifecycleFunc func(p *controlplane.Plane, ctx context.Context, env, name string) (string, error)

func lifecycleCmd(flags *cmdutil.GlobalFlags, use, short string, action lifecycleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <env> [container]",
		Short: short,
		Long: short + ". Without a container name the action applies to the whole\n" +
			"cluster through docker compose.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, name := args[0], ""
			if len(args) == 2 {
				name = args[1]
			}
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				out, err := action(p, cmd.Context(), env, name)
				if out != "" {
					fmt.Println(ui.Output(out))
				}
				if err != nil {
					return err
				}
				target := env
				if name != "" {
					target = name
				}
				fmt.Println(ui.SuccessMsg("%s %s", use, target))
				return nil
			})
		},
	}
}

func listCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	var defined bool

	cmd := &cobra.Command{
		Use:     "list <env>",
		Aliases: []string{"ls", "ps"},
		Short:   "List running containers, or the ones the compose file defines",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				var (
					containers []container.Container
					err        error
				)
				if defined {
					containers, err = p.ListDefinedContainers(cmd.Context(), args[0])
				} else {
					containers, err = p.ListActiveContainers(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				if len(containers) == 0 {
					fmt.Println(ui.Muted("no containers"))
					return nil
				}

				rows := make([][]string, 0, len(containers))
				for _, c := range containers {
					rows = append(rows, []string{
						c.Name,
						c.Type,
						c.Image,
						ui.State(c.State),
						strings.Join(c.Ports, ", "),
					})
				}
				fmt.Println(ui.Table([]string{"Name", "Type", "Image", "State", "Ports"}, rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&defined, "defined", false, "List containers from the generated compose file")
	return cmd
}

func execCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <container> -- <command>",
		Short: "Run a shell command inside a container",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				out, err := p.Exec(cmd.Context(), args[0], strings.Join(args[1:], " "))
				if out != "" {
					fmt.Println(ui.Output(out))
				}
				return err
			})
		},
	}
}

func consoleCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "console <container> <command>",
		Short: "Send a command to a server console",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				out, err := p.SendConsoleCommand(cmd.Context(), args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Println(ui.Output(out))
				return nil
			})
		},
	}
}

func copyConfigsCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "copy-configs <container> <plugin|mod|modfiles>",
		Short:     "Copy generated plugin or mod configs into the server's data",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(container.ConfigPlugin), string(container.ConfigMod), string(container.ConfigModFiles)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := container.ParseConfigKind(args[1])
			if err != nil {
				return err
			}
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				out, err := p.CopyConfigs(cmd.Context(), args[0], kind)
				if out != "" {
					fmt.Println(ui.Output(out))
				}
				if err != nil {
					return err
				}
				fmt.Println(ui.SuccessMsg("copied %s configs into %s", kind, args[0]))
				return nil
			})
		},
	}
}

func attachCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare-console <container>",
		Short: "Attach to a server console once so later attaches show output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				if err := p.PrepareConsole(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Println(ui.SuccessMsg("console of %s ready", args[0]))
				return nil
			})
		},
	}
}
