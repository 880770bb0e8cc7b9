// Package config builds the harness settings and manages the environment configuration
// document.
//
// # Settings
//
// Settings are resolved once at startup by LoadSettings and passed down explicitly.
// Sources, lowest precedence first:
//
//  1. DefaultSettings
//  2. an optional YAML settings file (ccptest.yaml in the working directory, or --settings)
//  3. environment variables
//
// Every environment variable may be given with the CCPTEST_ prefix or under its legacy
// name (ENV_NAME, CONF_PATH, SNAPSHOT_ENABLED, LOGS_DIR, SSH_LOGIN, SSH_PASSWORD,
// KUBE_ADMIN_USER, KUBE_ADMIN_PASS, CCP_CONF, REGISTRY, IMAGES_NAMESPACE, IMAGES_TAG and
// the others listed in loader.go). The prefixed name wins when both are set.
//
// Problems are collected rather than reported one at a time: LoadSettings returns a
// *ConfigurationErrorCollection holding every parse and validation error found.
//
// # Environment configuration
//
// EnvironmentConfig is a free-form YAML document edited with keypaths (see pkg/keypath).
// The harness relies on a few well-known locations:
//
//	template:       # devops environment template the lab was created from
//	underlay:
//	  ssh:          # list of node credentials
//	    - node_name: master
//	      host: 10.109.0.2
//	      login: vagrant
//	      password: vagrant
//	      roles: [k8s-master]
//	k8s:
//	  kube_host: 10.109.0.2
//	snapshots:      # snapshots taken so far
//	  - underlay
//
// ApplyOverrides takes "keypath=value" strings, for example from repeated --set flags:
//
//	ec.ApplyOverrides([]string{"template.devops_settings.env_name=ci-42", "k8s.port=6443"})
//
// A Watcher reloads the document when another process rewrites it.
package config
