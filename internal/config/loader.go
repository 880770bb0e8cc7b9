package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ccptests/pkg/logging"
)

// EnvPrefix is prepended to every setting's environment variable name. The unprefixed
// legacy name is honored when the prefixed one is not set.
const EnvPrefix = "CCPTEST_"

// DefaultSettingsFile is read by LoadSettings when no path is given and the file exists.
const DefaultSettingsFile = "ccptest.yaml"

// lookupEnv is replaced in tests.
var lookupEnv = os.LookupEnv

type envBinding struct {
	name  string
	apply func(s *Settings, value string) error
}

func stringVar(target func(s *Settings) *string) func(*Settings, string) error {
	return func(s *Settings, v string) error {
		*target(s) = v
		return nil
	}
}

func boolVar(target func(s *Settings) *bool) func(*Settings, string) error {
	return func(s *Settings, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return err
		}
		*target(s) = b
		return nil
	}
}

func intVar(target func(s *Settings) *int) func(*Settings, string) error {
	return func(s *Settings, v string) error {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%q is not an integer", v)
		}
		*target(s) = i
		return nil
	}
}

func durationVar(target func(s *Settings) *time.Duration) func(*Settings, string) error {
	return func(s *Settings, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%q is not a duration", v)
		}
		*target(s) = d
		return nil
	}
}

// parseBool also accepts the yes/no/on/off spellings used by shell-driven CI jobs.
func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on", "y":
		return true, nil
	case "0", "false", "no", "off", "n", "":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", v)
}

var envBindings = []envBinding{
	{"ENV_NAME", stringVar(func(s *Settings) *string { return &s.EnvName })},
	{"CONF_PATH", stringVar(func(s *Settings) *string { return &s.EnvConfigPath })},
	{"SNAPSHOT_ENABLED", boolVar(func(s *Settings) *bool { return &s.SnapshotsEnabled })},
	{"LOGS_DIR", stringVar(func(s *Settings) *string { return &s.LogsDir })},
	{"LOG_LEVEL", stringVar(func(s *Settings) *string { return &s.LogLevel })},
	{"LOG_FORMAT", stringVar(func(s *Settings) *string { return &s.LogFormat })},

	{"SSH_LOGIN", stringVar(func(s *Settings) *string { return &s.SSH.Login })},
	{"SSH_PASSWORD", stringVar(func(s *Settings) *string { return &s.SSH.Password })},
	{"SSH_KEY_FILE", stringVar(func(s *Settings) *string { return &s.SSH.KeyFile })},
	{"SSH_PORT", intVar(func(s *Settings) *int { return &s.SSH.Port })},
	{"SSH_DIAL_TIMEOUT", durationVar(func(s *Settings) *time.Duration { return &s.SSH.DialTimeout })},

	{"KUBECONFIG", stringVar(func(s *Settings) *string { return &s.Kube.Kubeconfig })},
	{"KUBE_HOST", stringVar(func(s *Settings) *string { return &s.Kube.Host })},
	{"KUBE_PORT", intVar(func(s *Settings) *int { return &s.Kube.Port })},
	{"KUBE_ADMIN_USER", stringVar(func(s *Settings) *string { return &s.Kube.AdminUser })},
	{"KUBE_ADMIN_PASS", stringVar(func(s *Settings) *string { return &s.Kube.AdminPassword })},
	{"KUBE_INSECURE", boolVar(func(s *Settings) *bool { return &s.Kube.Insecure })},
	{"KUBE_NAMESPACE", stringVar(func(s *Settings) *string { return &s.Kube.Namespace })},

	{"CCP_NODE", stringVar(func(s *Settings) *string { return &s.CCP.Node })},
	{"CCP_CONF", stringVar(func(s *Settings) *string { return &s.CCP.ConfigPath })},
	{"CCP_REMOTE_CONFIG_DIR", stringVar(func(s *Settings) *string { return &s.CCP.RemoteConfigDir })},
	{"REGISTRY", stringVar(func(s *Settings) *string { return &s.CCP.Registry })},
	{"IMAGES_NAMESPACE", stringVar(func(s *Settings) *string { return &s.CCP.ImagesNamespace })},
	{"IMAGES_TAG", stringVar(func(s *Settings) *string { return &s.CCP.ImagesTag })},
	{"CCP_REPOS_PATH", stringVar(func(s *Settings) *string { return &s.CCP.ReposPath })},
	{"CCP_INSTALL_SOURCE", stringVar(func(s *Settings) *string { return &s.CCP.InstallSource })},

	{"DEVOPS_COMMAND", stringVar(func(s *Settings) *string { return &s.Devops.Command })},

	{"ELASTICSEARCH_URL", stringVar(func(s *Settings) *string { return &s.Stacklight.ElasticsearchURL })},
	{"INFLUXDB_URL", stringVar(func(s *Settings) *string { return &s.Stacklight.InfluxDBURL })},
	{"INFLUXDB_USER", stringVar(func(s *Settings) *string { return &s.Stacklight.InfluxDBUser })},
	{"INFLUXDB_PASSWORD", stringVar(func(s *Settings) *string { return &s.Stacklight.InfluxDBPassword })},
	{"GRAFANA_URL", stringVar(func(s *Settings) *string { return &s.Stacklight.GrafanaURL })},
	{"GRAFANA_TOKEN", stringVar(func(s *Settings) *string { return &s.Stacklight.GrafanaToken })},
}

// LoadSettings builds Settings from the defaults, the optional YAML file at path and the
// environment, in that order of precedence (later wins). An empty path falls back to
// DefaultSettingsFile when it exists. The returned error is a
// *ConfigurationErrorCollection when anything is wrong.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	errs := NewConfigurationErrorCollection()

	if path == "" {
		if _, err := os.Stat(DefaultSettingsFile); err == nil {
			path = DefaultSettingsFile
		}
	}

	if path != "" {
		if err := loadSettingsFile(path, &settings); err != nil {
			errs.Add(*err)
			return settings, errs
		}
	}

	errs.Merge(applyEnv(&settings))
	errs.Merge(settings.Validate())

	if errs.HasErrors() {
		return settings, errs
	}
	return settings, nil
}

func loadSettingsFile(path string, settings *Settings) *ConfigurationError {
	data, err := os.ReadFile(path)
	if err != nil {
		ce := ConfigurationError{
			Source:    SourceFile,
			ErrorType: ErrorTypeIO,
			FilePath:  path,
			Message:   err.Error(),
		}
		if errors.Is(err, os.ErrNotExist) {
			ce.Message = "settings file does not exist"
			ce.Suggestions = []string{"check the --settings flag", "remove the flag to use defaults and environment variables"}
		}
		return &ce
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		ce := ConfigurationError{
			Source:    SourceFile,
			ErrorType: ErrorTypeParse,
			FilePath:  path,
			Message:   "malformed YAML",
			Details:   err.Error(),
		}
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
			ce.Details = strings.Join(typeErr.Errors, "; ")
		}
		return &ce
	}

	logging.Info("Config", "Loaded settings from %s", path)
	return nil
}

func applyEnv(settings *Settings) *ConfigurationErrorCollection {
	errs := NewConfigurationErrorCollection()
	for _, b := range envBindings {
		name, value, ok := lookupBinding(b.name)
		if !ok {
			continue
		}
		if err := b.apply(settings, value); err != nil {
			errs.Add(ConfigurationError{
				Source:    SourceEnv,
				Field:     name,
				ErrorType: ErrorTypeParse,
				Message:   err.Error(),
			})
			continue
		}
		logging.Debug("Config", "Setting from environment: %s", name)
	}
	return errs
}

func lookupBinding(name string) (string, string, bool) {
	if v, ok := lookupEnv(EnvPrefix + name); ok {
		return EnvPrefix + name, v, true
	}
	if v, ok := lookupEnv(name); ok {
		return name, v, true
	}
	return "", "", false
}
