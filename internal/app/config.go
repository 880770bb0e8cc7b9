package app

import (
	"io"
)

// Config holds the application configuration
type Config struct {
	// SettingsPath is the harness settings file. Empty means ./ccptest.yaml when it
	// exists, defaults otherwise.
	SettingsPath string

	// EnvConfigPath overrides the environment configuration file from the settings.
	EnvConfigPath string

	// LogLevel overrides the log level from the settings.
	LogLevel string

	// Overrides are keypath=value assignments applied to the environment
	// configuration after it is loaded.
	Overrides []string

	// LogOutput receives console logs. Defaults to stderr.
	LogOutput io.Writer
}

// NewConfig creates a new application configuration
func NewConfig(settingsPath string) *Config {
	return &Config{
		SettingsPath: settingsPath,
	}
}
