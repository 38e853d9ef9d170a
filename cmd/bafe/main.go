// Command bafe validates astrological engine configurations from the command
// line or serves the validation API over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bazodiac/bafe/pkg/compliance"
	"github.com/bazodiac/bafe/pkg/config"
	"github.com/bazodiac/bafe/pkg/ruleset"
)

// Exit codes.
const (
	exitOK           = 0
	exitNonCompliant = 1
	exitUsage        = 2
	exitDefect       = 3
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitf(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

// app is the state shared by every subcommand of one invocation.
type app struct {
	v      *viper.Viper
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfg    *config.Config
	logger *slog.Logger
}

// Run is the entrypoint for testing. args includes the program name.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{v: config.New(), stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.code != exitNonCompliant {
			_, _ = fmt.Fprintln(stderr, "error:", ee.err)
		}
		return ee.code
	}
	// Flag parsing and unknown commands.
	_, _ = fmt.Fprintln(stderr, "error:", err)
	return exitUsage
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bafe",
		Short:         "Contract-first compliance validator for astrological engine configurations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.String("log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	flags.String("log-format", "", "log format (text or json)")
	flags.String("ruleset-dir", "", "directory of ruleset documents overriding the built-in set")
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log_format", flags.Lookup("log-format"))
	_ = a.v.BindPFlag("ruleset_dir", flags.Lookup("ruleset-dir"))

	root.AddCommand(a.validateCmd())
	root.AddCommand(a.fingerprintCmd())
	root.AddCommand(a.rulesetsCmd())
	root.AddCommand(a.serveCmd())
	return root
}

// loadConfig resolves configuration from defaults, the optional file, BAFE_*
// environment variables and flags, in increasing precedence.
func (a *app) loadConfig(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		a.v.SetConfigType("yaml")
		if err := a.v.ReadInConfig(); err != nil {
			return exitf(exitUsage, "read config %s: %v", path, err)
		}
	}
	cfg, err := config.FromViper(a.v)
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(a.stderr)
	return nil
}

func (a *app) rulesets() *ruleset.Cache {
	return ruleset.NewCache(ruleset.DefaultStore(a.cfg.RulesetDir), a.logger)
}

// validationExit maps a validation error to an exit code.
func validationExit(err error) error {
	var inErr *compliance.InputError
	switch {
	case errors.As(err, &inErr):
		return &exitError{code: exitUsage, err: err}
	case errors.Is(err, compliance.ErrInternalContract):
		return &exitError{code: exitDefect, err: err}
	default:
		return &exitError{code: exitUsage, err: err}
	}
}
