package stacklight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"ccptests/internal/underlay"
)

// Remote runs commands on underlay nodes. *underlay.Manager implements it.
type Remote interface {
	CheckCall(ctx context.Context, node, cmd string, expected ...int) (*underlay.ExecResult, error)
}

// Health checks clustered services by running their CLIs inside their pods with kubectl
// on a node that has cluster access.
type Health struct {
	remote    Remote
	node      string
	namespace string
	// MySQLArgs are passed to mysql for Galera checks.
	MySQLArgs string
}

// NewHealth creates checks that run kubectl on node against namespace.
func NewHealth(remote Remote, node, namespace string) *Health {
	return &Health{remote: remote, node: node, namespace: namespace, MySQLArgs: "-uroot"}
}

// firstPod returns the name of the first pod with label app=<app>.
func (h *Health) firstPod(ctx context.Context, app string) (string, error) {
	cmd := fmt.Sprintf("kubectl get pods -n %s -l app=%s -o jsonpath='{.items[0].metadata.name}'",
		shellescape.Quote(h.namespace), shellescape.Quote(app))
	res, err := h.remote.CheckCall(ctx, h.node, cmd)
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(res.StdoutString())
	if name == "" {
		return "", fmt.Errorf("no pod with app=%s in %s", app, h.namespace)
	}
	return name, nil
}

func (h *Health) execInPod(ctx context.Context, app, command string) (*underlay.ExecResult, error) {
	pod, err := h.firstPod(ctx, app)
	if err != nil {
		return nil, err
	}
	cmd := fmt.Sprintf("kubectl exec -n %s %s -- %s", shellescape.Quote(h.namespace), shellescape.Quote(pod), command)
	return h.remote.CheckCall(ctx, h.node, cmd)
}

var runningNodesPattern = regexp.MustCompile(`\{running_nodes,\s*\[([^\]]*)\]\}`)

// RabbitMQClusterSize returns the number of running RabbitMQ cluster members.
func (h *Health) RabbitMQClusterSize(ctx context.Context) (int, error) {
	res, err := h.execInPod(ctx, "rabbitmq", "rabbitmqctl cluster_status")
	if err != nil {
		return 0, err
	}
	return parseRabbitMQRunningNodes(res.StdoutString())
}

// parseRabbitMQRunningNodes understands both the JSON formatter output and the classic
// Erlang term output of rabbitmqctl cluster_status.
func parseRabbitMQRunningNodes(out string) (int, error) {
	var status struct {
		RunningNodes []string `json:"running_nodes"`
	}
	if err := json.Unmarshal([]byte(out), &status); err == nil && status.RunningNodes != nil {
		return len(status.RunningNodes), nil
	}

	m := runningNodesPattern.FindStringSubmatch(strings.Join(strings.Fields(out), " "))
	if m == nil {
		return 0, fmt.Errorf("running_nodes not found in rabbitmqctl output")
	}
	if strings.TrimSpace(m[1]) == "" {
		return 0, nil
	}
	return len(strings.Split(m[1], ",")), nil
}

// GaleraClusterSize returns wsrep_cluster_size reported by a MariaDB pod.
func (h *Health) GaleraClusterSize(ctx context.Context) (int, error) {
	query := shellescape.Quote("SHOW STATUS LIKE 'wsrep_cluster_size'")
	res, err := h.execInPod(ctx, "mariadb", fmt.Sprintf("mysql %s -N -e %s", h.MySQLArgs, query))
	if err != nil {
		return 0, err
	}
	return parseGaleraClusterSize(res.Stdout)
}

func parseGaleraClusterSize(lines []string) (int, error) {
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "wsrep_cluster_size" {
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return 0, fmt.Errorf("wsrep_cluster_size %q is not a number", fields[1])
			}
			return n, nil
		}
	}
	return 0, fmt.Errorf("wsrep_cluster_size not found in mysql output")
}

// EtcdHealthy reports whether etcdctl considers the cluster healthy. Unhealthy members
// are returned for diagnostics.
func (h *Health) EtcdHealthy(ctx context.Context) (bool, []string, error) {
	res, err := h.execInPod(ctx, "etcd", "etcdctl cluster-health")
	if err != nil {
		var execErr *underlay.ExecError
		if res == nil || !errors.As(err, &execErr) {
			return false, nil, err
		}
	}

	var unhealthy []string
	healthy := false
	for _, line := range res.Stdout {
		switch {
		case strings.Contains(line, "is unhealthy") || strings.Contains(line, "unreachable"):
			unhealthy = append(unhealthy, strings.TrimSpace(line))
		case strings.TrimSpace(line) == "cluster is healthy":
			healthy = true
		}
	}
	return healthy && len(unhealthy) == 0, unhealthy, nil
}
