// Package cli builds the rolesync root command. It owns the logger handed to the subcommands
// and runs the command tree with a context that is cancelled on interrupt.
package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/smartcontractkit/access-control-sync/engine/commands/reconcile"
	"github.com/smartcontractkit/access-control-sync/engine/commands/text"
	"github.com/smartcontractkit/access-control-sync/pkg/logger"
)

var rootLong = text.LongDesc(`
	rolesync keeps the access-control roles of a multi-chain contract fleet in line with a
	requested state.

	Set LOG_FORMAT=console for human readable logs and LOG_LEVEL to change the verbosity.
`)

// Base wraps the root command of the CLI application.
type Base struct {
	Log     logger.Logger
	rootCmd *cobra.Command
}

// NewBase creates the root command with every subcommand attached.
func NewBase(lggr logger.Logger) (*Base, error) {
	rootCmd := &cobra.Command{
		Use:           "rolesync",
		Short:         "Reconcile access-control roles across chains",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	reconcileCmd, err := reconcile.NewCommand(reconcile.Config{Logger: lggr})
	if err != nil {
		return nil, err
	}

	base := &Base{Log: lggr, rootCmd: rootCmd}
	base.AddCommand(reconcileCmd)

	return base, nil
}

// AddCommand adds one or more commands to the root command.
func (base *Base) AddCommand(cmds ...*cobra.Command) {
	base.rootCmd.AddCommand(cmds...)
}

// Run executes the root command. SIGINT and SIGTERM cancel the context of the running command.
func (base *Base) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return base.rootCmd.ExecuteContext(ctx)
}

// RootCmd returns the root command.
func (base *Base) RootCmd() *cobra.Command {
	return base.rootCmd
}

// NewLogger creates the runtime logger. LOG_FORMAT selects the console encoder when set to
// "console" or "human" and LOG_LEVEL overrides level.
func NewLogger(level zapcore.Level) (logger.Logger, error) {
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.Set(raw); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(os.Getenv("LOG_FORMAT"))

	return logger.Config{
		Level: level,
		JSON:  format != "console" && format != "human",
	}.New()
}
