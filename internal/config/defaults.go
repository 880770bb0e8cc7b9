package config

import "time"

const (
	DefaultEnvName         = "ccp-tests"
	DefaultLogsDir         = "logs"
	DefaultSSHLogin        = "vagrant"
	DefaultSSHPassword     = "vagrant"
	DefaultKubeAdminUser   = "root"
	DefaultKubeAdminPass   = "changeme"
	DefaultKubePort        = 443
	DefaultKubeNamespace   = "ccp"
	DefaultRegistry        = "127.0.0.1:31500"
	DefaultImagesNamespace = "mcp"
	DefaultImagesTag       = "latest"
	DefaultCCPNode         = "master"
	DefaultDevopsCommand   = "dos.py"
	DefaultCCPInstall      = "git+https://git.openstack.org/openstack/fuel-ccp"
)

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		EnvName:          DefaultEnvName,
		SnapshotsEnabled: true,
		LogsDir:          DefaultLogsDir,
		LogLevel:         "info",
		LogFormat:        "text",
		SSH: SSHSettings{
			Login:       DefaultSSHLogin,
			Password:    DefaultSSHPassword,
			Port:        22,
			DialTimeout: 30 * time.Second,
		},
		Kube: KubeSettings{
			Port:          DefaultKubePort,
			AdminUser:     DefaultKubeAdminUser,
			AdminPassword: DefaultKubeAdminPass,
			Insecure:      true,
			Namespace:     DefaultKubeNamespace,
		},
		CCP: CCPSettings{
			Node:            DefaultCCPNode,
			RemoteConfigDir: "/home/vagrant/.ccp",
			Registry:        DefaultRegistry,
			ImagesNamespace: DefaultImagesNamespace,
			ImagesTag:       DefaultImagesTag,
			ReposPath:       "/home/vagrant/ccp-repos",
			InstallSource:   DefaultCCPInstall,
		},
		Devops: DevopsSettings{
			Command: DefaultDevopsCommand,
		},
	}
}
