// Package cli holds the process plumbing shared by the command binaries.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	ExitOK      = 0
	ExitRuntime = 1
	ExitConfig  = 2
)

// ConfigError marks failures caused by invalid flags, files or environment.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// InvalidConfig wraps err as a ConfigError; nil stays nil.
func InvalidConfig(err error) error {
	if err == nil {
		return nil
	}
	return &ConfigError{Err: err}
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}
	return ExitRuntime
}

// Override copies value into dst when the named flag was set on the command
// line, so flags win over file and environment settings.
func Override(cmd *cobra.Command, name string, dst *string, value string) {
	if cmd.Flags().Changed(name) {
		*dst = value
	}
}

// Run executes cmd with a context cancelled on SIGINT or SIGTERM and returns
// the process exit code.
func Run(cmd *cobra.Command) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return InvalidConfig(err)
	})
	err := cmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
	}
	return ExitCode(err)
}
