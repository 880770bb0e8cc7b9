package app

import (
	"errors"
	"fmt"
	"os"

	"ccptests/internal/ccp"
	"ccptests/internal/config"
	"ccptests/internal/kube"
	"ccptests/internal/snapshot"
	"ccptests/internal/stacklight"
	"ccptests/internal/underlay"
	"ccptests/pkg/logging"
)

// ErrNoKubernetes is returned by RequireKube when no Kubernetes endpoint is configured.
var ErrNoKubernetes = errors.New("no Kubernetes endpoint configured")

// Services holds every client the harness talks to the lab through.
type Services struct {
	Settings  config.Settings
	EnvConfig *config.EnvironmentConfig

	Underlay *underlay.Manager
	// Kube is nil until the environment has a Kubernetes endpoint.
	Kube      *kube.Cluster
	CCP       *ccp.Manager
	Snapshots *snapshot.Manager

	Stacklight *stacklight.Client
	Health     *stacklight.Health
}

// Option customizes InitializeServices.
type Option func(*serviceOptions)

type serviceOptions struct {
	dialer  underlay.Dialer
	cluster *kube.Cluster
	runner  snapshot.CommandRunner
}

// WithDialer replaces the SSH dialer.
func WithDialer(d underlay.Dialer) Option {
	return func(o *serviceOptions) { o.dialer = d }
}

// WithCluster uses c instead of connecting to the configured endpoint.
func WithCluster(c *kube.Cluster) Option {
	return func(o *serviceOptions) { o.cluster = c }
}

// WithCommandRunner replaces the runner of the devops tool.
func WithCommandRunner(r snapshot.CommandRunner) Option {
	return func(o *serviceOptions) { o.runner = r }
}

// InitializeServices creates every service from the settings and the environment
// configuration.
//
// Initialization Sequence:
//  1. Underlay: credentials from underlay.ssh, completed with the SSH defaults
//  2. Kubernetes: kubeconfig file, else the configured or recorded API host
//  3. ccp: base configuration plus registry and image settings
//  4. Snapshots through the devops tool, recorded in the environment configuration
//  5. StackLight endpoints and cluster health probes
func InitializeServices(settings config.Settings, envCfg *config.EnvironmentConfig, opts ...Option) (*Services, error) {
	o := serviceOptions{
		dialer: underlay.SSHDialer(settings.SSH.DialTimeout),
		runner: snapshot.ExecRunner,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Services{
		Settings:  settings,
		EnvConfig: envCfg,
		Underlay:  underlay.NewManager(nil, underlay.WithDialer(o.dialer)),
	}
	if err := s.RefreshUnderlay(); err != nil {
		return nil, err
	}

	s.Kube = o.cluster
	if s.Kube == nil {
		cluster, err := buildCluster(settings, envCfg)
		if err != nil {
			return nil, err
		}
		s.Kube = cluster
	}

	ccpCfg := ccp.NewConfig(settings.CCP, settings.Kube.Namespace)
	if settings.CCP.ConfigPath != "" {
		loaded, err := ccp.LoadConfig(settings.CCP.ConfigPath, settings.CCP, settings.Kube.Namespace)
		if err != nil {
			return nil, fmt.Errorf("failed to load ccp config: %w", err)
		}
		ccpCfg = loaded
	}
	s.CCP = ccp.NewManager(s.Underlay, settings.CCP.Node, settings.CCP.RemoteConfigDir, settings.CCP.InstallSource, ccpCfg)

	provider := snapshot.NewDevopsProvider(settings.Devops.Command, settings.EnvName, o.runner)
	s.Snapshots = snapshot.NewManager(provider, envCfg, settings.SnapshotsEnabled)

	s.Stacklight = stacklight.NewClient(settings.Stacklight)
	s.Health = stacklight.NewHealth(s.Underlay, settings.CCP.Node, settings.Kube.Namespace)

	return s, nil
}

// RefreshUnderlay registers the credentials currently stored in the environment
// configuration. Fields left empty take the SSH defaults from the settings.
func (s *Services) RefreshUnderlay() error {
	creds, err := s.EnvConfig.Underlay()
	if err != nil {
		return fmt.Errorf("failed to read underlay credentials: %w", err)
	}
	for _, cred := range creds {
		s.Underlay.Add(withSSHDefaults(cred, s.Settings.SSH))
	}
	logging.Debug("Bootstrap", "Registered %d underlay nodes", len(creds))
	return nil
}

func withSSHDefaults(cred underlay.SSHCredential, d config.SSHSettings) underlay.SSHCredential {
	if cred.Login == "" {
		cred.Login = d.Login
	}
	if cred.Password == "" && cred.KeyFile == "" {
		cred.Password = d.Password
		cred.KeyFile = d.KeyFile
	}
	if cred.Port == 0 {
		cred.Port = d.Port
	}
	return cred
}

func buildCluster(settings config.Settings, envCfg *config.EnvironmentConfig) (*kube.Cluster, error) {
	if settings.Kube.Kubeconfig != "" {
		data, err := os.ReadFile(settings.Kube.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to read kubeconfig: %w", err)
		}
		return kube.NewClusterFromKubeconfig(data)
	}

	host := settings.Kube.Host
	if host == "" {
		host = envCfg.KubeHost()
	}
	if host == "" {
		logging.Debug("Bootstrap", "No Kubernetes endpoint configured yet")
		return nil, nil
	}
	k := settings.Kube
	return kube.NewCluster(kube.Endpoint(host, k.Port, k.AdminUser, k.AdminPassword, k.Insecure))
}

// RequireKube returns the cluster or ErrNoKubernetes.
func (s *Services) RequireKube() (*kube.Cluster, error) {
	if s.Kube == nil {
		return nil, ErrNoKubernetes
	}
	return s.Kube, nil
}

// Close releases the SSH sessions.
func (s *Services) Close() error {
	return s.Underlay.Close()
}
