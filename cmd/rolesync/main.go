package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"

	"github.com/smartcontractkit/access-control-sync/engine/commands/cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	lggr, err := cli.NewLogger(zapcore.InfoLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = lggr.Sync() }()

	base, err := cli.NewBase(lggr)
	if err != nil {
		return err
	}

	return base.Run(context.Background())
}
