package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ccptests/internal/app"
	"ccptests/internal/config"
	"ccptests/internal/underlay"
	"ccptests/pkg/keypath"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeTestsFailed indicates that at least one scenario failed.
	ExitCodeTestsFailed = 2
	// ExitCodeRemoteCommand indicates a command on a lab node exited with an unexpected code.
	ExitCodeRemoteCommand = 3
	// ExitCodeKeypath indicates a keypath could not be resolved or assigned.
	ExitCodeKeypath = 4
)

// TestsFailedError is returned by the test command when scenarios failed.
type TestsFailedError struct {
	Failed int
	Total  int
}

func (e *TestsFailedError) Error() string {
	return fmt.Sprintf("%d of %d scenarios failed", e.Failed, e.Total)
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	settingsPath  string
	envConfigPath string
	logLevel      string
	overrides     []string

	// appOptions are passed to every application the commands bootstrap.
	appOptions []app.Option
}

// rootCmd represents the base command for the ccptest application.
var rootCmd = newRootCmd(&globalOptions{})

func newRootCmd(g *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "ccptest",
		Short: "Drive and verify fuel-ccp lab environments",
		Long: `ccptest runs acceptance scenarios against a lab environment deployed with
fuel-ccp: underlay nodes reached over SSH, the Kubernetes cluster on top of them,
the ccp tool and the StackLight monitoring stack.

It also gives direct access to the lab: run commands on nodes, open a remote
shell, edit YAML configuration by keypath and manage environment snapshots.`,
		// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
		SilenceUsage: true,
	}
	root.SetVersionTemplate(`{{printf "ccptest version %s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVar(&g.settingsPath, "settings", "", "Harness settings file (default ./"+config.DefaultSettingsFile+" when present)")
	flags.StringVar(&g.envConfigPath, "env-config", "", "Environment configuration file (overrides the settings)")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringArrayVar(&g.overrides, "set", nil, "Override an environment configuration value (keypath=value, repeatable)")

	root.AddCommand(
		newVersionCmd(),
		newTestCmd(g),
		newExecCmd(g),
		newShellCmd(g),
		newConfigCmd(),
		newEnvCmd(g),
	)
	return root
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if report := settingsReport(err); report != "" {
			fmt.Fprintln(os.Stderr, report)
		}
		os.Exit(getExitCode(err))
	}
}

// settingsReport expands a settings error holding several problems. Cobra only prints
// the first one.
func settingsReport(err error) string {
	var errs *config.ConfigurationErrorCollection
	if !errors.As(err, &errs) || errs.Count() < 2 {
		return ""
	}
	return errs.GetDetailedReport()
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var testsFailed *TestsFailedError
	if errors.As(err, &testsFailed) {
		return ExitCodeTestsFailed
	}

	var execErr *underlay.ExecError
	if errors.As(err, &execErr) {
		return ExitCodeRemoteCommand
	}

	if errors.Is(err, keypath.ErrMissingKey) ||
		errors.Is(err, keypath.ErrTypeMismatch) ||
		errors.Is(err, keypath.ErrIndexOutOfRange) {
		return ExitCodeKeypath
	}

	return ExitCodeError
}

// newApplication bootstraps the harness from the persistent flags. Console logs go
// to the command's error stream.
func newApplication(cmd *cobra.Command, g *globalOptions) (*app.Application, error) {
	cfg := app.NewConfig(g.settingsPath)
	cfg.EnvConfigPath = g.envConfigPath
	cfg.LogLevel = g.logLevel
	cfg.Overrides = g.overrides
	cfg.LogOutput = cmd.ErrOrStderr()
	return app.NewApplication(cfg, g.appOptions...)
}
