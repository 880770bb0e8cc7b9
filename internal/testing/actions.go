package testing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"

	"ccptests/internal/app"
	"ccptests/internal/config"
	"ccptests/internal/underlay"
	"ccptests/pkg/keypath"
	"ccptests/pkg/poll"
)

// ActionFunc executes one step against the environment and returns a response built
// from mappings, sequences and scalars, so that keypaths can address it.
type ActionFunc func(ctx context.Context, env *app.Services, args Args) (any, error)

// Registry maps action names to their implementation.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]ActionFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]ActionFunc)}
}

// DefaultRegistry returns a registry holding every built-in action.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("ssh.exec", sshExec)
	r.Register("ssh.exec_all", sshExecAll)
	r.Register("kube.wait_pod_phase", kubeWaitPodPhase)
	r.Register("kube.wait_job", kubeWaitJob)
	r.Register("kube.apply", kubeApply)
	r.Register("config.set", configSet)
	r.Register("config.get", configGet)
	r.Register("ccp.run", ccpRun)
	r.Register("snapshot.revert", snapshotRevert)
	r.Register("stacklight.log_count", stacklightLogCount)
	r.Register("stacklight.influx_query", stacklightInfluxQuery)
	r.Register("stacklight.grafana_dashboard", stacklightGrafanaDashboard)
	r.Register("health.rabbitmq", healthRabbitMQ)
	r.Register("health.galera", healthGalera)
	r.Register("health.etcd", healthEtcd)
	r.Register("sleep", sleepAction)
	return r
}

// Register adds or replaces an action.
func (r *Registry) Register(name string, fn ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = fn
}

// Get returns the named action.
func (r *Registry) Get(name string) (ActionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[name]
	return fn, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// execResponse is the response shape of every remote command.
func execResponse(res *underlay.ExecResult) map[string]any {
	lines := make([]any, 0, len(res.Stdout))
	for _, l := range res.Stdout {
		lines = append(lines, l)
	}
	return map[string]any{
		"node":         res.Node,
		"command":      res.Command,
		"exit_code":    res.ExitCode,
		"stdout":       res.StdoutString(),
		"stderr":       res.StderrString(),
		"stdout_lines": lines,
	}
}

// sshExec runs a command on one node. The exit code must be one of expected_codes
// (default 0); a mismatch still returns the response.
func sshExec(ctx context.Context, env *app.Services, args Args) (any, error) {
	node, err := args.String("node")
	if err != nil {
		return nil, err
	}
	command, err := args.String("command")
	if err != nil {
		return nil, err
	}
	sudo, err := args.Bool("sudo", false)
	if err != nil {
		return nil, err
	}
	codes, err := args.Ints("expected_codes")
	if err != nil {
		return nil, err
	}

	call := env.Underlay.CheckCall
	if sudo {
		call = env.Underlay.SudoCheckCall
	}
	res, err := call(ctx, node, command, codes...)
	if res == nil {
		return nil, err
	}
	return execResponse(res), err
}

// sshExecAll runs a command on every node. Any non-zero exit fails the step unless
// allow_failure is set.
func sshExecAll(ctx context.Context, env *app.Services, args Args) (any, error) {
	command, err := args.String("command")
	if err != nil {
		return nil, err
	}
	allowFailure, err := args.Bool("allow_failure", false)
	if err != nil {
		return nil, err
	}

	results, execErr := env.Underlay.ExecuteOnAll(ctx, command)
	nodes := make(map[string]any, len(results))
	var failed []string
	for node, res := range results {
		nodes[node] = execResponse(res)
		if res.ExitCode != 0 {
			failed = append(failed, fmt.Sprintf("%s (exit %d)", node, res.ExitCode))
		}
	}
	sort.Strings(failed)

	resp := map[string]any{"command": command, "nodes": nodes}
	if execErr != nil {
		return resp, execErr
	}
	if len(failed) > 0 && !allowFailure {
		return resp, fmt.Errorf("command %q failed on %s", command, strings.Join(failed, ", "))
	}
	return resp, nil
}

func kubeWaitPodPhase(ctx context.Context, env *app.Services, args Args) (any, error) {
	cluster, err := env.RequireKube()
	if err != nil {
		return nil, err
	}
	ns, err := args.StringOr("namespace", env.Settings.Kube.Namespace)
	if err != nil {
		return nil, err
	}
	phase, err := args.StringOr("phase", string(corev1.PodRunning))
	if err != nil {
		return nil, err
	}
	timeout, err := args.Duration("timeout", poll.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	name, err := args.StringOr("name", "")
	if err != nil {
		return nil, err
	}
	selector, err := args.StringOr("selector", "")
	if err != nil {
		return nil, err
	}

	resp := map[string]any{"namespace": ns, "phase": phase}
	if name != "" {
		if err := cluster.WaitPodPhase(ctx, ns, name, corev1.PodPhase(phase), timeout); err != nil {
			return resp, err
		}
		resp["pods"] = []any{name}
		return resp, nil
	}

	if err := cluster.WaitPodsPhase(ctx, ns, selector, corev1.PodPhase(phase), timeout); err != nil {
		return resp, err
	}
	pods, err := cluster.Pods(ctx, ns, selector)
	if err != nil {
		return resp, err
	}
	names := make([]any, 0, len(pods))
	for _, p := range pods {
		names = append(names, p.Name)
	}
	resp["pods"] = names
	return resp, nil
}

func kubeWaitJob(ctx context.Context, env *app.Services, args Args) (any, error) {
	cluster, err := env.RequireKube()
	if err != nil {
		return nil, err
	}
	ns, err := args.StringOr("namespace", env.Settings.Kube.Namespace)
	if err != nil {
		return nil, err
	}
	name, err := args.String("name")
	if err != nil {
		return nil, err
	}
	timeout, err := args.Duration("timeout", poll.DefaultTimeout)
	if err != nil {
		return nil, err
	}

	resp := map[string]any{"namespace": ns, "name": name, "complete": false}
	if err := cluster.WaitJobComplete(ctx, ns, name, timeout); err != nil {
		return resp, err
	}
	resp["complete"] = true
	return resp, nil
}

// kubeApply creates or updates the objects of an inline manifest or a manifest file.
func kubeApply(ctx context.Context, env *app.Services, args Args) (any, error) {
	cluster, err := env.RequireKube()
	if err != nil {
		return nil, err
	}
	ns, err := args.StringOr("namespace", env.Settings.Kube.Namespace)
	if err != nil {
		return nil, err
	}

	var manifest []byte
	file, err := args.StringOr("file", "")
	if err != nil {
		return nil, err
	}
	if file != "" {
		manifest, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
	} else {
		inline, err := args.String("manifest")
		if err != nil {
			return nil, err
		}
		manifest = []byte(inline)
	}

	objs, err := cluster.Apply(ctx, ns, manifest)
	applied := make([]any, 0, len(objs))
	for _, obj := range objs {
		ref := obj.GetKind() + "/" + obj.GetName()
		if obj.GetNamespace() != "" {
			ref = obj.GetKind() + "/" + obj.GetNamespace() + "/" + obj.GetName()
		}
		applied = append(applied, ref)
	}
	return map[string]any{"objects": applied, "count": len(applied)}, err
}

// configSet assigns a value in a YAML file, or in the environment configuration when
// no file is given. create=false refuses to add missing keys.
func configSet(_ context.Context, env *app.Services, args Args) (any, error) {
	path, err := args.String("path")
	if err != nil {
		return nil, err
	}
	value, err := setValueArg(args)
	if err != nil {
		return nil, err
	}
	create, err := args.Bool("create", true)
	if err != nil {
		return nil, err
	}
	file, err := args.StringOr("file", "")
	if err != nil {
		return nil, err
	}

	resp := map[string]any{"path": path, "value": value}
	if file != "" {
		resp["file"] = file
		return resp, config.SetInFile(file, path, value, create)
	}

	resp["file"] = env.EnvConfig.Path()
	if err := env.EnvConfig.SetValue(path, value, keypath.WithNewOnMissing(create)); err != nil {
		return resp, err
	}
	return resp, env.EnvConfig.Save()
}

// setValueArg returns "value", or an empty structure shaped by the index list "shape":
// shape [1] seeds [null, {}] so that later steps can fill path[1].
func setValueArg(args Args) (any, error) {
	value, hasValue := args["value"]
	shape, hasShape := args["shape"]
	switch {
	case hasValue && hasShape:
		return nil, &ArgError{Key: "shape", Message: "cannot be combined with value"}
	case hasShape:
		skeleton, err := keypath.SkeletonOf(shape)
		if err != nil {
			return nil, &ArgError{Key: "shape", Message: err.Error()}
		}
		return skeleton, nil
	case hasValue:
		return value, nil
	default:
		return nil, &ArgError{Key: "value", Message: "is required"}
	}
}

func configGet(_ context.Context, env *app.Services, args Args) (any, error) {
	path, err := args.String("path")
	if err != nil {
		return nil, err
	}
	file, err := args.StringOr("file", "")
	if err != nil {
		return nil, err
	}

	var value any
	if file != "" {
		value, err = config.GetFromFile(file, path)
	} else {
		file = env.EnvConfig.Path()
		value, err = env.EnvConfig.Get(path)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"file": file, "path": path, "value": value}, nil
}

// ccpRun runs the ccp tool. "set" applies keypath assignments to the ccp configuration
// and uploads it first.
func ccpRun(ctx context.Context, env *app.Services, args Args) (any, error) {
	cmdArgs, err := args.Strings("args")
	if err != nil {
		return nil, err
	}
	if len(cmdArgs) == 0 {
		return nil, &ArgError{Key: "args", Message: "is required"}
	}
	set, err := args.Map("set")
	if err != nil {
		return nil, err
	}
	upload, err := args.Bool("put_config", len(set) > 0)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := env.CCP.Config().Set(p, set[p]); err != nil {
			return nil, fmt.Errorf("ccp config %s: %w", p, err)
		}
	}
	if upload {
		if err := env.CCP.PutConfig(ctx); err != nil {
			return nil, err
		}
	}

	res, err := env.CCP.Run(ctx, cmdArgs...)
	if res == nil {
		return nil, err
	}
	return execResponse(res), err
}

func snapshotRevert(ctx context.Context, env *app.Services, args Args) (any, error) {
	name, err := args.String("name")
	if err != nil {
		return nil, err
	}
	if err := env.Snapshots.Revert(ctx, name); err != nil {
		return nil, err
	}
	return map[string]any{"snapshot": name, "reverted": true}, nil
}

// stacklightLogCount counts matching log entries. With "timeout" it first waits for
// at least one entry to show up.
func stacklightLogCount(ctx context.Context, env *app.Services, args Args) (any, error) {
	index, err := args.StringOr("index", "_all")
	if err != nil {
		return nil, err
	}
	query, err := args.String("query")
	if err != nil {
		return nil, err
	}
	timeout, err := args.Duration("timeout", 0)
	if err != nil {
		return nil, err
	}
	interval, err := args.Duration("interval", 10*time.Second)
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		if err := env.Stacklight.WaitLogEntry(ctx, index, query, timeout, interval); err != nil {
			return nil, err
		}
	}
	count, err := env.Stacklight.CountLogs(ctx, index, query)
	if err != nil {
		return nil, err
	}
	return map[string]any{"index": index, "query": query, "count": count}, nil
}

func stacklightInfluxQuery(ctx context.Context, env *app.Services, args Args) (any, error) {
	db, err := args.String("db")
	if err != nil {
		return nil, err
	}
	query, err := args.String("query")
	if err != nil {
		return nil, err
	}

	series, err := env.Stacklight.Query(ctx, db, query)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(series))
	for _, s := range series {
		columns := make([]any, 0, len(s.Columns))
		for _, c := range s.Columns {
			columns = append(columns, c)
		}
		values := make([]any, 0, len(s.Values))
		for _, row := range s.Values {
			values = append(values, append([]any(nil), row...))
		}
		tags := make(map[string]any, len(s.Tags))
		for k, v := range s.Tags {
			tags[k] = v
		}
		out = append(out, map[string]any{
			"name":    s.Name,
			"tags":    tags,
			"columns": columns,
			"values":  values,
		})
	}
	return map[string]any{"series": out, "count": len(out)}, nil
}

// stacklightGrafanaDashboard fetches one dashboard by uid, or lists dashboard titles.
func stacklightGrafanaDashboard(ctx context.Context, env *app.Services, args Args) (any, error) {
	uid, err := args.StringOr("uid", "")
	if err != nil {
		return nil, err
	}
	if uid != "" {
		dashboard, err := env.Stacklight.Dashboard(ctx, uid)
		if err != nil {
			return nil, err
		}
		return dashboard, nil
	}

	titles, err := env.Stacklight.DashboardTitles(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]any, 0, len(titles))
	for _, t := range titles {
		list = append(list, t)
	}
	return map[string]any{"titles": list, "count": len(list)}, nil
}

func healthRabbitMQ(ctx context.Context, env *app.Services, _ Args) (any, error) {
	size, err := env.Health.RabbitMQClusterSize(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"cluster_size": size}, nil
}

func healthGalera(ctx context.Context, env *app.Services, _ Args) (any, error) {
	size, err := env.Health.GaleraClusterSize(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"cluster_size": size}, nil
}

func healthEtcd(ctx context.Context, env *app.Services, _ Args) (any, error) {
	healthy, members, err := env.Health.EtcdHealthy(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]any, 0, len(members))
	for _, m := range members {
		list = append(list, m)
	}
	resp := map[string]any{"healthy": healthy, "members": list}
	if !healthy {
		return resp, errors.New("etcd cluster is not healthy")
	}
	return resp, nil
}

func sleepAction(ctx context.Context, _ *app.Services, args Args) (any, error) {
	d, err := args.Duration("duration", 0)
	if err != nil {
		return nil, err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
	}
	return map[string]any{"slept": d.String()}, nil
}
