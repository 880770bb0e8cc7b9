package config

import (
	"fmt"
	"strings"
)

// Error sources.
const (
	SourceFile     = "file"
	SourceEnv      = "env"
	SourceSettings = "settings"
)

// Error types.
const (
	ErrorTypeIO         = "io"
	ErrorTypeParse      = "parse"
	ErrorTypeValidation = "validation"
)

// ConfigurationError describes one problem found while building Settings.
type ConfigurationError struct {
	Source      string   `json:"source"`             // file, env or settings
	Field       string   `json:"field"`              // Setting or environment variable name
	ErrorType   string   `json:"errorType"`          // io, parse or validation
	Message     string   `json:"message"`            // Human-readable error message
	FilePath    string   `json:"filePath,omitempty"` // Settings file, when relevant
	Details     string   `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (ce ConfigurationError) Error() string {
	if ce.Field == "" {
		return fmt.Sprintf("[%s] %s", ce.Source, ce.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", ce.Source, ce.Field, ce.Message)
}

// DetailedError renders the error over several indented lines.
func (ce ConfigurationError) DetailedError() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s error from %s", ce.ErrorType, ce.Source)
	for _, kv := range [][2]string{
		{"File", ce.FilePath},
		{"Field", ce.Field},
		{"Message", ce.Message},
		{"Details", ce.Details},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&b, "\n  %s: %s", kv[0], kv[1])
		}
	}
	if len(ce.Suggestions) > 0 {
		b.WriteString("\n  Try:")
		for _, s := range ce.Suggestions {
			b.WriteString("\n    - " + s)
		}
	}
	return b.String()
}

// ConfigurationErrorCollection gathers every problem found while loading Settings, so
// a single run reports all of them.
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

func (cec ConfigurationErrorCollection) Error() string {
	switch len(cec.Errors) {
	case 0:
		return "no configuration errors"
	case 1:
		return cec.Errors[0].Error()
	default:
		return fmt.Sprintf("%d configuration errors, first: %s", len(cec.Errors), cec.Errors[0].Error())
	}
}

func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

func (cec *ConfigurationErrorCollection) Count() int {
	return len(cec.Errors)
}

func (cec *ConfigurationErrorCollection) Add(err ConfigurationError) {
	cec.Errors = append(cec.Errors, err)
}

// Merge appends all errors of other.
func (cec *ConfigurationErrorCollection) Merge(other *ConfigurationErrorCollection) {
	if other == nil {
		return
	}
	cec.Errors = append(cec.Errors, other.Errors...)
}

// ErrorOrNil returns the collection as an error, or nil when it is empty.
func (cec *ConfigurationErrorCollection) ErrorOrNil() error {
	if !cec.HasErrors() {
		return nil
	}
	return cec
}

// GetDetailedReport numbers every error and renders it with DetailedError.
func (cec *ConfigurationErrorCollection) GetDetailedReport() string {
	if len(cec.Errors) == 0 {
		return "settings are valid"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d problem(s) in ccptest settings", len(cec.Errors))
	for i, err := range cec.Errors {
		fmt.Fprintf(&b, "\n\nError %d: %s", i+1, err.DetailedError())
	}
	return b.String()
}

func NewConfigurationErrorCollection() *ConfigurationErrorCollection {
	return &ConfigurationErrorCollection{Errors: []ConfigurationError{}}
}
