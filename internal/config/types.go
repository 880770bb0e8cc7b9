package config

import "time"

// Settings is the harness configuration. It is built once by LoadSettings and passed
// down explicitly.
type Settings struct {
	// EnvName is the name of the lab environment, also used as the devops env name.
	EnvName string `yaml:"envName"`
	// EnvConfigPath is the environment configuration file (template, underlay
	// credentials, snapshot bookkeeping).
	EnvConfigPath string `yaml:"envConfigPath"`
	// SnapshotsEnabled makes fixtures revert to snapshots instead of rebuilding.
	SnapshotsEnabled bool `yaml:"snapshotsEnabled"`
	// LogsDir receives the run log and reports.
	LogsDir   string `yaml:"logsDir"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	SSH        SSHSettings        `yaml:"ssh"`
	Kube       KubeSettings       `yaml:"kube"`
	CCP        CCPSettings        `yaml:"ccp"`
	Devops     DevopsSettings     `yaml:"devops"`
	Stacklight StacklightSettings `yaml:"stacklight"`
}

// SSHSettings are the default credentials for underlay nodes.
type SSHSettings struct {
	Login       string        `yaml:"login"`
	Password    string        `yaml:"password"`
	KeyFile     string        `yaml:"keyFile"`
	Port        int           `yaml:"port"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
}

// KubeSettings describe how to reach the Kubernetes API of the lab.
type KubeSettings struct {
	// Kubeconfig, when set, takes precedence over Host and admin credentials.
	Kubeconfig    string `yaml:"kubeconfig"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	AdminUser     string `yaml:"adminUser"`
	AdminPassword string `yaml:"adminPassword"`
	Insecure      bool   `yaml:"insecure"`
	Namespace     string `yaml:"namespace"`
}

// CCPSettings configure the ccp tool on the master node.
type CCPSettings struct {
	// Node is the underlay node the ccp tool runs on.
	Node string `yaml:"node"`
	// ConfigPath is the local ccp configuration used as a base.
	ConfigPath      string `yaml:"configPath"`
	RemoteConfigDir string `yaml:"remoteConfigDir"`
	Registry        string `yaml:"registry"`
	ImagesNamespace string `yaml:"imagesNamespace"`
	ImagesTag       string `yaml:"imagesTag"`
	ReposPath       string `yaml:"reposPath"`
	InstallSource   string `yaml:"installSource"`
}

// DevopsSettings configure the external environment tool used for snapshots.
type DevopsSettings struct {
	Command string `yaml:"command"`
}

// StacklightSettings locate the monitoring endpoints.
type StacklightSettings struct {
	ElasticsearchURL string `yaml:"elasticsearchURL"`
	InfluxDBURL      string `yaml:"influxdbURL"`
	InfluxDBUser     string `yaml:"influxdbUser"`
	InfluxDBPassword string `yaml:"influxdbPassword"`
	GrafanaURL       string `yaml:"grafanaURL"`
	GrafanaToken     string `yaml:"grafanaToken"`
}
