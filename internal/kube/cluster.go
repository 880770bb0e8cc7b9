// Package kube is a thin wrapper over the Kubernetes clients used by the harness: typed
// access through client-go, generic manifests through controller-runtime, and the
// wait helpers fixtures and scenarios poll with.
package kube

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"ccptests/pkg/poll"
)

// Cluster gives access to one Kubernetes cluster.
type Cluster struct {
	clientset kubernetes.Interface
	client    client.Client

	pollInterval time.Duration
}

// Option configures a Cluster.
type Option func(*Cluster)

// WithPollInterval sets how often wait helpers query the API.
func WithPollInterval(d time.Duration) Option {
	return func(c *Cluster) {
		c.pollInterval = d
	}
}

// NewScheme returns the scheme with the built-in Kubernetes types.
func NewScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	return scheme
}

// NewCluster creates the clients for config.
func NewCluster(config *rest.Config, opts ...Option) (*Cluster, error) {
	cs, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}

	c, err := client.New(config, client.Options{Scheme: NewScheme()})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	return NewClusterForClients(cs, c, opts...), nil
}

// NewClusterFromKubeconfig creates the clients from kubeconfig file contents.
func NewClusterFromKubeconfig(kubeconfig []byte, opts ...Option) (*Cluster, error) {
	config, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kubeconfig: %w", err)
	}
	return NewCluster(config, opts...)
}

// NewClusterForClients wraps existing clients.
func NewClusterForClients(cs kubernetes.Interface, c client.Client, opts ...Option) *Cluster {
	cluster := &Cluster{
		clientset:    cs,
		client:       c,
		pollInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(cluster)
	}
	if cluster.pollInterval <= 0 {
		cluster.pollInterval = poll.DefaultInterval
	}
	return cluster
}

// Endpoint returns a REST config for an API server reached with basic auth, the way
// freshly deployed lab clusters are accessed.
func Endpoint(host string, port int, user, password string, insecure bool) *rest.Config {
	return &rest.Config{
		Host:     "https://" + net.JoinHostPort(host, strconv.Itoa(port)),
		Username: user,
		Password: password,
		TLSClientConfig: rest.TLSClientConfig{
			Insecure: insecure,
		},
		Timeout: 30 * time.Second,
	}
}

// Clientset returns the typed client.
func (c *Cluster) Clientset() kubernetes.Interface {
	return c.clientset
}

// Client returns the controller-runtime client.
func (c *Cluster) Client() client.Client {
	return c.client
}
