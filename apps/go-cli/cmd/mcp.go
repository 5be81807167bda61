package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/slush-dev/pushbridge"
	"github.com/slush-dev/pushbridge/apps/go-cli/internal/mcpserver"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP (Model Context Protocol) server on stdio",
	Long: `Launch the bridge and expose its registration state as MCP tools and
resources for LLM integration.

The server communicates via JSON-RPC over stdin/stdout, so the permission
policy must be grant or deny; interactive prompts are not available.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		sess, err := newSession(sessionParams{dir: sessionDir, logger: logger, in: emptyReader{}})
		if err != nil {
			return err
		}

		sess.exitOnDenial = false

		s := mcpserver.New(sess.bridge, rootCmd.Version, logger)
		events, unsubscribe := sess.bus.Subscribe()
		defer unsubscribe()
		go s.Watch(ctx, events)

		go func() {
			defer cancel()
			if err := s.Run(ctx); err != nil {
				logger.Error("MCP server stopped", "error", err)
			}
		}()

		return sess.run(ctx, func(ev pushbridge.RegistrationEvent) bool { return true })
	},
}

// emptyReader answers any prompt with EOF, which the host treats as a denial.
type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

func init() {
	rootCmd.AddCommand(mcpCmd)
}
