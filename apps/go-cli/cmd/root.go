package cmd

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
)

var (
	sessionDir string
	verbose    bool
	useYAML    bool
)

func defaultSessionDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pushbridge")
}

type cliEnv struct {
	SessionDir string `env:"PUSHBRIDGE_SESSION_DIR"`
}

// envSessionDir returns PUSHBRIDGE_SESSION_DIR, or fallback when it is unset.
func envSessionDir(fallback string) string {
	var e cliEnv
	if err := env.Parse(&e); err != nil || e.SessionDir == "" {
		return fallback
	}
	return e.SessionDir
}

var rootCmd = &cobra.Command{
	Use:   "pushbridge",
	Short: "Register this installation for remote push notifications via FCM",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			slog.SetDefault(newLogger())
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionDir, "session-dir", envSessionDir(defaultSessionDir()), "Directory holding pushbridge.yaml and FCM credentials")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&useYAML, "yaml", false, "Print output in YAML format")
}

// SetVersion sets the version string shown by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
