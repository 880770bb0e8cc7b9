package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigurationError(t *testing.T) {
	err := ConfigurationError{
		Source:      SourceEnv,
		Field:       "SSH_PORT",
		ErrorType:   ErrorTypeParse,
		Message:     `"x" is not an integer`,
		Suggestions: []string{"use a number"},
	}
	assert.Equal(t, `[env] SSH_PORT: "x" is not an integer`, err.Error())

	detailed := err.DetailedError()
	assert.Contains(t, detailed, "Field: SSH_PORT")
	assert.Contains(t, detailed, "- use a number")
	assert.NotContains(t, detailed, "File:")

	assert.Equal(t, "[file] unreadable", ConfigurationError{Source: SourceFile, Message: "unreadable"}.Error())
}

func TestConfigurationErrorCollection(t *testing.T) {
	errs := NewConfigurationErrorCollection()
	assert.False(t, errs.HasErrors())
	assert.NoError(t, errs.ErrorOrNil())
	assert.Equal(t, "no configuration errors", errs.Error())

	errs.Add(validationError("envName", "is required"))
	assert.Equal(t, "[settings] envName: is required", errs.Error())

	other := NewConfigurationErrorCollection()
	other.Add(validationError("ccp.node", "is required"))
	errs.Merge(other)
	errs.Merge(nil)

	assert.Equal(t, 2, errs.Count())
	assert.Error(t, errs.ErrorOrNil())
	assert.Contains(t, errs.Error(), "2 configuration errors")
	assert.Contains(t, errs.GetDetailedReport(), "Error 2:")
}

func TestSettingsValidate(t *testing.T) {
	s := DefaultSettings()
	assert.False(t, s.Validate().HasErrors())

	s.SSH.Password = ""
	s.Kube.Port = 0
	s.LogFormat = "xml"
	s.Stacklight.InfluxDBURL = "influx:8086"
	errs := s.Validate()

	fields := make([]string, 0, errs.Count())
	for _, e := range errs.Errors {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"ssh", "kube.port", "logFormat", "stacklight.influxdbURL"}, fields)

	s = DefaultSettings()
	s.SSH.Password = ""
	s.SSH.KeyFile = "/root/.ssh/id_rsa"
	assert.False(t, s.Validate().HasErrors())
}
