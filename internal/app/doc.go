// Package app bootstraps the harness for one lab environment.
//
// NewApplication loads the settings, configures logging to the console and to the run
// log in the logs directory, loads the environment configuration (applying any
// keypath=value overrides) and builds the Services every command and scenario works
// through:
//
//   - Underlay: SSH access to the lab nodes listed under underlay.ssh
//   - Kube: the Kubernetes API, once the environment has one
//   - CCP: the ccp tool on the master node with its managed configuration
//   - Snapshots: revert/snapshot of environment stages through the devops tool
//   - Stacklight and Health: monitoring endpoints and cluster probes
//
// WatchEnvConfig keeps the underlay registry in sync with the environment
// configuration file while a run is in progress.
package app
