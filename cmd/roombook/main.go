// Command roombook serves the reservation API and its operator tooling.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/roombook/internal/config"
	"github.com/example/roombook/internal/logging"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// runtimeEnv is resolved once per invocation by the root command.
type runtimeEnv struct {
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	env := &runtimeEnv{out: out}

	root := &cobra.Command{
		Use:   "roombook",
		Short: "Conflict-free room reservations",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			env.cfg = cfg
			env.logger = logging.New(out, cfg.LogLevel, cfg.LogFormat)
			return nil
		},
		SilenceUsage: true,
	}
	root.SetOut(out)

	root.AddCommand(serveCmd(env))
	root.AddCommand(migrateCmd(env))
	root.AddCommand(usersCmd(env))
	return root
}
