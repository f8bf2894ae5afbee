package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"craftfleet/cmd/craftfleet/backupcmd"
	"craftfleet/cmd/craftfleet/cmdutil"
	"craftfleet/cmd/craftfleet/containercmd"
	"craftfleet/cmd/craftfleet/envcmd"
	"craftfleet/cmd/craftfleet/ui"
	"craftfleet/internal/buildinfo"
	"craftfleet/internal/logging"
)

func main() {
	var flags cmdutil.GlobalFlags
	if err := logging.Configure(logging.LevelWarn, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "craftfleet",
		Short:         "Provision and operate Minecraft server environments",
		Version:       buildinfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := logging.LevelWarn
			if flags.Debug {
				level = logging.LevelDebug
			}
			if err := logging.Configure(level, flags.LogFormat); err != nil {
				return err
			}
			ui.ConfigureInteraction(flags.NoInteraction)
			return nil
		},
	}
	flags.Bind(root)

	root.AddCommand(envcmd.Cmd(&flags))
	root.AddCommand(containercmd.Cmd(&flags))
	root.AddCommand(backupcmd.Cmd(&flags))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%s", cmdutil.Describe(err)))
		os.Exit(1)
	}
}
