package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"ccptests/pkg/logging"
)

// Validate checks the settings and returns every problem found.
func (s Settings) Validate() *ConfigurationErrorCollection {
	errs := NewConfigurationErrorCollection()

	required := []struct {
		field string
		value string
	}{
		{"envName", s.EnvName},
		{"logsDir", s.LogsDir},
		{"ssh.login", s.SSH.Login},
		{"ccp.node", s.CCP.Node},
		{"ccp.registry", s.CCP.Registry},
		{"ccp.imagesNamespace", s.CCP.ImagesNamespace},
		{"ccp.imagesTag", s.CCP.ImagesTag},
		{"kube.namespace", s.Kube.Namespace},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs.Add(validationError(r.field, "is required"))
		}
	}

	if s.SSH.Password == "" && s.SSH.KeyFile == "" {
		errs.Add(ConfigurationError{
			Source:      SourceSettings,
			Field:       "ssh",
			ErrorType:   ErrorTypeValidation,
			Message:     "either a password or a key file is required",
			Suggestions: []string{"set SSH_PASSWORD or CCPTEST_SSH_KEY_FILE"},
		})
	}

	if err := validatePort("ssh.port", s.SSH.Port); err != nil {
		errs.Add(*err)
	}
	if err := validatePort("kube.port", s.Kube.Port); err != nil {
		errs.Add(*err)
	}

	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		errs.Add(validationError("logLevel", err.Error()))
	}
	if !slices.Contains([]string{string(logging.FormatText), string(logging.FormatJSON)}, s.LogFormat) {
		errs.Add(validationError("logFormat", fmt.Sprintf("must be one of: %s, %s", logging.FormatText, logging.FormatJSON)))
	}

	urls := []struct {
		field string
		value string
	}{
		{"stacklight.elasticsearchURL", s.Stacklight.ElasticsearchURL},
		{"stacklight.influxdbURL", s.Stacklight.InfluxDBURL},
		{"stacklight.grafanaURL", s.Stacklight.GrafanaURL},
	}
	for _, u := range urls {
		if u.value == "" {
			continue
		}
		if parsed, err := url.Parse(u.value); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs.Add(validationError(u.field, fmt.Sprintf("%q is not an absolute URL", u.value)))
		}
	}

	return errs
}

func validationError(field, message string) ConfigurationError {
	return ConfigurationError{
		Source:    SourceSettings,
		Field:     field,
		ErrorType: ErrorTypeValidation,
		Message:   message,
	}
}

func validatePort(field string, port int) *ConfigurationError {
	if port < 1 || port > 65535 {
		err := validationError(field, fmt.Sprintf("%d is not a valid port", port))
		return &err
	}
	return nil
}
