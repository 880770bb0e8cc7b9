package underlay

import (
	"net"
	"slices"
	"strconv"
)

// DefaultSSHPort is used when a credential does not set a port.
const DefaultSSHPort = 22

// SSHCredential describes how to reach one lab node.
type SSHCredential struct {
	Node     string   `yaml:"node_name" json:"node_name"`
	Host     string   `yaml:"host" json:"host"`
	Port     int      `yaml:"port,omitempty" json:"port,omitempty"`
	Login    string   `yaml:"login" json:"login"`
	Password string   `yaml:"password,omitempty" json:"password,omitempty"`
	KeyFile  string   `yaml:"keyfile,omitempty" json:"keyfile,omitempty"`
	Roles    []string `yaml:"roles,omitempty" json:"roles,omitempty"`
}

// Address returns host:port.
func (c SSHCredential) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// HasRole reports whether the node carries role.
func (c SSHCredential) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}
