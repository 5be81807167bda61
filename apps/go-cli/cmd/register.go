package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/slush-dev/pushbridge"
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register once and print the first FCM token",
	Long: `Runs the full launch sequence: configure FCM, request notification
permission, obtain a device token and exchange it for an FCM token. Exits after
the first token, a permission denial, or the timeout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		sess, err := newSession(sessionParams{dir: sessionDir, logger: newLogger()})
		if err != nil {
			return err
		}

		var got *pushbridge.RegistrationEvent
		err = sess.run(ctx, func(ev pushbridge.RegistrationEvent) bool {
			got = &ev
			return false
		})
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		if got == nil {
			return fmt.Errorf("no FCM token received (state: %s)", sess.bridge.State())
		}

		if useYAML {
			yamlOut(os.Stdout, map[string]string{"fcm_token": got.Token})
		} else {
			fmt.Printf("FCM token: %s\n", got.Token)
		}
		return nil
	},
}

func init() {
	registerCmd.Flags().Duration("timeout", 90*time.Second, "Give up after this long")
	rootCmd.AddCommand(registerCmd)
}
