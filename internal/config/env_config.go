package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"ccptests/internal/underlay"
	"ccptests/pkg/keypath"
	"ccptests/pkg/logging"
)

// Well-known keypaths of the environment configuration document.
const (
	UnderlaySSHPath = "underlay.ssh"
	KubeHostPath    = "k8s.kube_host"
	SnapshotsPath   = "snapshots"
	TemplatePath    = "template"
)

// EnvironmentConfig is the YAML document describing one lab environment: the devops
// template it was created from, the SSH credentials of its nodes, the Kubernetes
// endpoint and the snapshots taken so far. It is edited through keypaths.
type EnvironmentConfig struct {
	mu   sync.RWMutex
	path string
	doc  map[string]any
}

// NewEnvironmentConfig returns an empty document that saves to path.
func NewEnvironmentConfig(path string) *EnvironmentConfig {
	return &EnvironmentConfig{path: path, doc: map[string]any{}}
}

// LoadEnvironmentConfig reads the document at path. A missing file yields an empty
// document so that fixtures can populate it.
func LoadEnvironmentConfig(path string) (*EnvironmentConfig, error) {
	ec := NewEnvironmentConfig(path)
	if err := ec.Reload(); err != nil {
		return nil, err
	}
	return ec, nil
}

// Reload re-reads the document from disk.
func (ec *EnvironmentConfig) Reload() error {
	data, err := os.ReadFile(ec.path)
	if errors.Is(err, os.ErrNotExist) {
		logging.Info("Config", "No environment config at %s, starting empty", ec.path)
		ec.replace(map[string]any{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read environment config %s: %w", ec.path, err)
	}

	doc, err := DecodeDocument(data)
	if err != nil {
		return fmt.Errorf("failed to parse environment config %s: %w", ec.path, err)
	}
	ec.replace(doc)
	logging.Debug("Config", "Loaded environment config from %s", ec.path)
	return nil
}

func (ec *EnvironmentConfig) replace(doc map[string]any) {
	ec.mu.Lock()
	ec.doc = doc
	ec.mu.Unlock()
}

// Path returns the file the document is saved to.
func (ec *EnvironmentConfig) Path() string {
	return ec.path
}

// Save writes the document to its path, replacing the file atomically.
func (ec *EnvironmentConfig) Save() error {
	ec.mu.RLock()
	data, err := EncodeDocument(ec.doc)
	ec.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := writeFileAtomic(ec.path, data); err != nil {
		return fmt.Errorf("failed to save environment config: %w", err)
	}
	logging.Info("Config", "Saved environment config to %s", ec.path)
	return nil
}

// Set assigns value at keypath, creating missing keys.
func (ec *EnvironmentConfig) Set(path string, value any) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return keypath.Set(ec.doc, path, value)
}

// SetValue is Set with keypath options, e.g. keypath.WithNewOnMissing(false).
func (ec *EnvironmentConfig) SetValue(path string, value any, opts ...keypath.Option) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return keypath.SetValue(ec.doc, path, value, opts...)
}

// Get returns the value at keypath.
func (ec *EnvironmentConfig) Get(path string) (any, error) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return keypath.GetValue(ec.doc, path)
}

// Document returns a deep copy of the document.
func (ec *EnvironmentConfig) Document() map[string]any {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return deepCopy(ec.doc).(map[string]any)
}

// ApplyOverrides applies "keypath=value" assignments in order. Values are parsed as YAML
// scalars or flow collections, so "true" becomes a bool and "[1, 2]" a sequence.
func (ec *EnvironmentConfig) ApplyOverrides(overrides []string) error {
	for _, o := range overrides {
		path, value, err := ParseOverride(o)
		if err != nil {
			return err
		}
		if err := ec.Set(path, value); err != nil {
			return fmt.Errorf("override %q: %w", o, err)
		}
		logging.Debug("Config", "Applied override %s", path)
	}
	return nil
}

// ParseOverride splits "keypath=value" and decodes the value.
func ParseOverride(o string) (string, any, error) {
	path, raw, ok := strings.Cut(o, "=")
	if !ok || strings.TrimSpace(path) == "" {
		return "", nil, fmt.Errorf("override %q is not of the form keypath=value", o)
	}
	return strings.TrimSpace(path), ParseScalar(raw), nil
}

// ParseScalar decodes raw as a YAML value, falling back to the raw string.
func ParseScalar(raw string) any {
	if raw == "" {
		return ""
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return normalize(v)
}

// Underlay returns the SSH credentials stored under underlay.ssh.
func (ec *EnvironmentConfig) Underlay() ([]underlay.SSHCredential, error) {
	raw, err := ec.Get(UnderlaySSHPath)
	if errors.Is(err, keypath.ErrMissingKey) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var creds []underlay.SSHCredential
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("%s is not a list of SSH credentials: %w", UnderlaySSHPath, err)
	}
	return creds, nil
}

// SetUnderlay replaces the stored SSH credentials.
func (ec *EnvironmentConfig) SetUnderlay(creds []underlay.SSHCredential) error {
	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}
	var raw []any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		raw = []any{}
	}
	return ec.Set(UnderlaySSHPath, normalize(raw))
}

// KubeHost returns the Kubernetes API host recorded for the environment.
func (ec *EnvironmentConfig) KubeHost() string {
	v, err := ec.Get(KubeHostPath)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Snapshots returns the names of the snapshots taken for the environment.
func (ec *EnvironmentConfig) Snapshots() []string {
	v, err := ec.Get(SnapshotsPath)
	if err != nil {
		return nil
	}
	items, _ := v.([]any)
	names := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			names = append(names, s)
		}
	}
	return names
}

// HasSnapshot reports whether name was recorded by MarkSnapshot.
func (ec *EnvironmentConfig) HasSnapshot(name string) bool {
	return slices.Contains(ec.Snapshots(), name)
}

// MarkSnapshot records that the snapshot name exists.
func (ec *EnvironmentConfig) MarkSnapshot(name string) error {
	names := ec.Snapshots()
	if slices.Contains(names, name) {
		return nil
	}
	items := make([]any, 0, len(names)+1)
	for _, n := range names {
		items = append(items, n)
	}
	return ec.Set(SnapshotsPath, append(items, name))
}

// DecodeDocument parses YAML into the generic document shape. An empty input gives an
// empty mapping.
func DecodeDocument(data []byte) (map[string]any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if v == nil {
		return map[string]any{}, nil
	}
	doc, ok := normalize(v).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top level is a %T, not a mapping", v)
	}
	return doc, nil
}

// EncodeDocument renders a document as YAML with two-space indentation.
func EncodeDocument(doc any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// normalize converts map[any]any produced for non-string keys into map[string]any.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		for i, item := range t {
			t[i] = normalize(item)
		}
		return t
	default:
		return v
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
