package envcmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"craftfleet/cmd/craftfleet/cmdutil"
	"craftfleet/cmd/craftfleet/ui"
	"craftfleet/internal/controlplane"
	"craftfleet/internal/envconfig"
	"craftfleet/internal/provision"
)

// Cmd returns the parent "craftfleet env" command.
func Cmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Provision and inspect environments",
	}
	cmd.AddCommand(createCmd(flags))
	cmd.AddCommand(deleteCmd(flags))
	cmd.AddCommand(regenerateCmd(flags))
	cmd.AddCommand(listCmd(flags))
	cmd.AddCommand(showCmd(flags))
	return cmd
}

func createCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	var (
		req     provision.Request
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a new environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				var res provision.Result
				err := ui.RunWithSpinner(cmd.Context(), "Provisioning", func(ctx context.Context) error {
					var err error
					res, err = p.Provision(ctx, req)
					return err
				})
				if err != nil {
					return err
				}

				if jsonOut {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(res.Report())
				}
				if len(res.Errors) == 0 {
					fmt.Println(ui.SuccessMsg("created %s (%s)", ui.Bold(res.Env.Name), res.Phase))
				} else {
					fmt.Println(ui.WarnMsg("created %s with failed steps, stopped at %s", ui.Bold(res.Env.Name), res.Phase))
					for _, stepErr := range res.Errors {
						fmt.Println("  " + ui.ErrorMsg("%s: %v", stepErr.Step, stepErr.Err))
					}
					fmt.Println(ui.Muted("  run `craftfleet env regenerate " + res.Env.Name + "` once the cause is fixed"))
				}
				fmt.Print(describe(res.Env))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&req.Port, "port", 0, "Proxy port on the host")
	cmd.Flags().StringVar(&req.Alias, "alias", "", "Human-friendly alias")
	cmd.Flags().StringVar(&req.Description, "description", "", "Free-form description")
	cmd.Flags().StringVar(&req.Flavor, "flavor", string(envconfig.FlavorPaper), "Server flavor")
	cmd.Flags().BoolVar(&req.Protect, "protect", false, "Refuse deletion of this environment")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the outcome as JSON")
	_ = cmd.MarkFlagRequired("port")
	return cmd
}

func deleteCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <env>",
		Short: "Delete an environment's data, source config and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				if _, err := p.DeleteEnvironment(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Println(ui.SuccessMsg("deleted %s", args[0]))
				return nil
			})
		},
	}
}

func regenerateCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "regenerate <env>",
		Aliases: []string{"regen"},
		Short:   "Recompile generated artifacts from the source config",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				if err := p.RegenerateArtifacts(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Println(ui.SuccessMsg("regenerated %s", args[0]))
				return nil
			})
		},
	}
}

func listCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List environments",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				envs, err := p.ListEnvironments(cmd.Context())
				if err != nil {
					return err
				}
				if len(envs) == 0 {
					fmt.Println(ui.Muted("no environments"))
					return nil
				}

				rows := make([][]string, 0, len(envs))
				for _, env := range envs {
					rows = append(rows, []string{
						env.Name,
						env.Alias,
						strconv.Itoa(env.ProxyPort),
						env.Flavor.String(),
						strings.Join(env.WorldGroupNames(), ","),
						ui.YesNo(env.Protected()),
						ui.YesNo(env.BackupsEnabled),
					})
				}
				fmt.Println(ui.Table([]string{"Env", "Alias", "Port", "Flavor", "World groups", "Protected", "Backups"}, rows))
				return nil
			})
		},
	}
}

func showCmd(flags *cmdutil.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <env>",
		Short: "Show an environment and its proxy routes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.WithPlane(cmd.Context(), flags, func(p *controlplane.Plane) error {
				env, err := p.Environment(args[0])
				if err != nil {
					return err
				}
				routes, err := p.ProxyRoutes(args[0])
				if err != nil {
					return err
				}
				fmt.Print(describe(env))

				hosts := make([]string, 0, len(routes.ForcedHosts))
				for host := range routes.ForcedHosts {
					hosts = append(hosts, host)
				}
				slices.Sort(hosts)
				rows := make([][]string, 0, len(hosts))
				for _, host := range hosts {
					servers := routes.ForcedHosts[host]
					backends := make([]string, 0, len(servers))
					for _, s := range servers {
						backends = append(backends, routes.Servers[s])
					}
					rows = append(rows, []string{host, strings.Join(servers, ","), strings.Join(backends, ",")})
				}
				fmt.Println()
				fmt.Println(ui.Table([]string{"Host", "Server", "Backend"}, rows))
				fmt.Println(ui.Muted("try order: " + strings.Join(routes.Try, ", ")))
				return nil
			})
		},
	}
}

func describe(env envconfig.Environment) string {
	return ui.KeyValues("  ",
		ui.KV("Name", env.Name),
		ui.KV("Alias", env.Alias),
		ui.KV("Description", env.Description),
		ui.KV("Flavor", env.Flavor.String()),
		ui.KV("Hostname", env.Hostname),
		ui.KV("Proxy port", strconv.Itoa(env.ProxyPort)),
		ui.KV("Data root", env.FSRoot),
		ui.KV("World groups", strings.Join(env.WorldGroupNames(), ", ")),
		ui.KV("Protected", ui.YesNo(env.Protected())),
		ui.KV("Backups", ui.YesNo(env.BackupsEnabled)),
	)
}
