// Package main is the bakery command, which hosts process instances and the
// journals they are recorded in.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bakerykit/bakery/internal/x/loggingx"
	"github.com/spf13/cobra"
)

// newContext returns a cancelable context that is canceled when the process
// receives a SIGTERM or SIGINT.
func newContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	ctx, cancel := newContext()
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}

// debug enables debug logging for every command.
var debug bool

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "bakery",
		Short:         "Host long-running process instances",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCommand(),
		newJournalCommand(),
		newInventoryCommand(),
	)

	return root
}

// newLogger returns the logger used by each command.
//
// The returned function flushes any buffered log messages.
func newLogger() (loggingx.Zap, func(), error) {
	l, err := loggingx.NewZap(debug)
	if err != nil {
		return loggingx.Zap{}, nil, fmt.Errorf("unable to configure logging: %w", err)
	}

	return l, func() { _ = l.Sync() }, nil
}
