package ccp

import (
	"fmt"
	"os"
	"sync"

	"ccptests/internal/config"
	"ccptests/pkg/keypath"
)

// Keypaths of the ccp configuration the harness fills in.
const (
	RegistryAddressPath = "registry.address"
	ImagesNamespacePath = "images.namespace"
	ImagesTagPath       = "images.tag"
	RepositoriesPath    = "repositories.path"
	KubeNamespacePath   = "kubernetes.namespace"
)

// Config is the ccp configuration document. Tests tweak it through keypaths before it
// is uploaded to the node.
type Config struct {
	mu  sync.RWMutex
	doc map[string]any
}

// NewConfig returns a configuration holding the harness defaults.
func NewConfig(s config.CCPSettings, kubeNamespace string) *Config {
	c := &Config{doc: map[string]any{}}
	defaults := []struct {
		path  string
		value string
	}{
		{RegistryAddressPath, s.Registry},
		{ImagesNamespacePath, s.ImagesNamespace},
		{ImagesTagPath, s.ImagesTag},
		{RepositoriesPath, s.ReposPath},
		{KubeNamespacePath, kubeNamespace},
	}
	for _, d := range defaults {
		if d.value == "" {
			continue
		}
		// Paths are static and the document starts empty, so Set cannot fail.
		_ = keypath.Set(c.doc, d.path, d.value)
	}
	return c
}

// LoadConfig reads a base ccp configuration from path and applies the harness defaults
// for keys it does not set.
func LoadConfig(path string, s config.CCPSettings, kubeNamespace string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ccp config %s: %w", path, err)
	}
	base, err := config.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ccp config %s: %w", path, err)
	}

	c := NewConfig(s, kubeNamespace)
	for _, p := range []string{RegistryAddressPath, ImagesNamespacePath, ImagesTagPath, RepositoriesPath, KubeNamespacePath} {
		if keypath.Has(base, p) {
			continue
		}
		if v, err := c.Get(p); err == nil {
			if err := keypath.Set(base, p, v); err != nil {
				return nil, fmt.Errorf("ccp config %s: %w", path, err)
			}
		}
	}
	c.doc = base
	return c, nil
}

// Set assigns value at keypath.
func (c *Config) Set(path string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return keypath.Set(c.doc, path, value)
}

// Get returns the value at keypath.
func (c *Config) Get(path string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return keypath.GetValue(c.doc, path)
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return config.EncodeDocument(c.doc)
}
