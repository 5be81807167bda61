package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/slush-dev/pushbridge"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch the bridge and print every issued token (Ctrl+C to stop)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		sess, err := newSession(sessionParams{dir: sessionDir, logger: newLogger()})
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, "Launching push registration (Ctrl+C to stop)...")
		return sess.run(ctx, func(ev pushbridge.RegistrationEvent) bool {
			printEvent(os.Stdout, ev, useYAML)
			return true
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
