package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"ccptests/internal/config"
	"ccptests/pkg/logging"
)

// LogFileName is the run log written inside the logs directory.
const LogFileName = "ccptest.log"

// Application represents the bootstrapped harness: settings loaded, logging
// configured and every environment service constructed.
//
// Example usage:
//
//	a, err := app.NewApplication(app.NewConfig(""))
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//	res, err := a.Services().Underlay.CheckCall(ctx, "master", "uptime")
type Application struct {
	config   *Config
	settings config.Settings
	services *Services
	closeLog func() error
}

// NewApplication creates and initializes a new application instance with the provided configuration.
// This function performs the complete bootstrap sequence:
//
//  1. Loads the settings (defaults, file, environment)
//  2. Configures logging to the console and the run log
//  3. Loads the environment configuration and applies overrides
//  4. Initializes all services
func NewApplication(cfg *Config, opts ...Option) (*Application, error) {
	settings, err := LoadSettings(cfg)
	if err != nil {
		return nil, err
	}

	closeLog, err := initLogging(settings, cfg.LogOutput)
	if err != nil {
		return nil, err
	}

	envCfg, err := config.LoadEnvironmentConfig(settings.EnvConfigPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load environment configuration from %s", settings.EnvConfigPath)
		return nil, multierr.Combine(fmt.Errorf("failed to load environment configuration: %w", err), closeLog())
	}
	if err := envCfg.ApplyOverrides(cfg.Overrides); err != nil {
		return nil, multierr.Combine(fmt.Errorf("failed to apply overrides: %w", err), closeLog())
	}

	services, err := InitializeServices(settings, envCfg, opts...)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, multierr.Combine(fmt.Errorf("failed to initialize services: %w", err), closeLog())
	}

	logging.Info("Bootstrap", "Environment %s ready (%d underlay nodes)", settings.EnvName, len(services.Underlay.Nodes()))
	return &Application{
		config:   cfg,
		settings: settings,
		services: services,
		closeLog: closeLog,
	}, nil
}

// LoadSettings loads the settings named by cfg and applies its overrides. The
// environment configuration path is always set on the result.
func LoadSettings(cfg *Config) (config.Settings, error) {
	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		return settings, fmt.Errorf("failed to load settings: %w", err)
	}
	if cfg.EnvConfigPath != "" {
		settings.EnvConfigPath = cfg.EnvConfigPath
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = cfg.LogLevel
	}
	if settings.EnvConfigPath == "" {
		settings.EnvConfigPath = DefaultEnvConfigPath(settings)
	}
	return settings, nil
}

// DefaultEnvConfigPath is the environment configuration used when none is set.
func DefaultEnvConfigPath(s config.Settings) string {
	return filepath.Join(s.LogsDir, s.EnvName+".env.yaml")
}

func initLogging(s config.Settings, out io.Writer) (func() error, error) {
	level, err := logging.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, err
	}
	format := logging.FormatText
	if strings.EqualFold(s.LogFormat, "json") {
		format = logging.FormatJSON
	}
	if out == nil {
		out = os.Stderr
	}

	opts := logging.Options{Level: level, Format: format, Output: out}
	if s.LogsDir != "" {
		opts.File = filepath.Join(s.LogsDir, LogFileName)
	}
	return logging.Init(opts)
}

// Settings returns the effective settings.
func (a *Application) Settings() config.Settings {
	return a.settings
}

// Services returns the initialized services.
func (a *Application) Services() *Services {
	return a.services
}

// Close releases SSH sessions and flushes the run log.
func (a *Application) Close() error {
	return multierr.Combine(a.services.Close(), a.closeLog())
}
