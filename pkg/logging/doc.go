// Package logging provides the subsystem-tagged leveled logger used across ccptest.
//
// It is a thin layer over log/slog: every entry carries a subsystem attribute and an
// optional error attribute, and output can be text or JSON. A run log file can be
// attached in addition to the console output, which is how test runs keep a full
// record of remote command output while the console stays readable.
//
// # Usage
//
//	closeLog, err := logging.Init(logging.Options{
//	    Level:  logging.LevelInfo,
//	    Output: os.Stderr,
//	    File:   filepath.Join(settings.LogsDir, "tests.log"),
//	})
//	defer closeLog()
//
//	logging.Info("Snapshot", "Reverting to %s", name)
//	logging.Error("Underlay", err, "Command failed on %s", node)
//
// LineWriter adapts the logger to an io.Writer so that streamed command output lands in
// the log line by line.
//
// # Subsystems
//
//   - Config: settings and environment configuration
//   - Underlay: SSH sessions and remote commands
//   - Kube: Kubernetes API calls and waits
//   - CCP: ccp tool invocations
//   - Snapshot: environment snapshot lifecycle
//   - Stacklight: Elasticsearch, InfluxDB and Grafana checks
//   - TestFramework: scenario execution
//
// Init also installs the handler as the controller-runtime logger so that Kubernetes
// client logging goes through the same output.
package logging
