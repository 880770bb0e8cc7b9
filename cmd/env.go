package cmd

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"ccptests/internal/app"
	"ccptests/internal/config"
	"ccptests/internal/underlay"
)

func newEnvCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage the lab environment configuration and snapshots",
		Long: `Manage the environment configuration that describes the lab: the underlay
nodes and how to reach them, the Kubernetes endpoint and the snapshots taken.`,
	}
	cmd.AddCommand(
		newEnvInitCmd(g),
		newEnvShowCmd(g),
		newEnvSnapshotCmd(g),
		newEnvRevertCmd(g),
		newEnvSnapshotsCmd(g),
	)
	return cmd
}

// loadEnvironment reads the settings and the environment configuration without
// connecting to anything.
func loadEnvironment(g *globalOptions) (config.Settings, *config.EnvironmentConfig, error) {
	cfg := app.NewConfig(g.settingsPath)
	cfg.EnvConfigPath = g.envConfigPath
	cfg.LogLevel = g.logLevel
	settings, err := app.LoadSettings(cfg)
	if err != nil {
		return settings, nil, err
	}
	ec, err := config.LoadEnvironmentConfig(settings.EnvConfigPath)
	if err != nil {
		return settings, nil, fmt.Errorf("failed to load environment configuration: %w", err)
	}
	if err := ec.ApplyOverrides(g.overrides); err != nil {
		return settings, nil, fmt.Errorf("failed to apply overrides: %w", err)
	}
	return settings, ec, nil
}

// parseNode reads NAME=HOST[:PORT][,ROLE...].
func parseNode(arg string) (underlay.SSHCredential, error) {
	name, rest, ok := strings.Cut(arg, "=")
	if !ok || name == "" || rest == "" {
		return underlay.SSHCredential{}, fmt.Errorf("node %q is not of the form NAME=HOST[:PORT][,ROLE...]", arg)
	}
	parts := strings.Split(rest, ",")
	cred := underlay.SSHCredential{Node: name, Host: parts[0]}
	if host, port, ok := strings.Cut(parts[0], ":"); ok {
		cred.Host = host
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 {
			return underlay.SSHCredential{}, fmt.Errorf("node %q has an invalid port %q", arg, port)
		}
		cred.Port = n
	}
	for _, role := range parts[1:] {
		if role = strings.TrimSpace(role); role != "" {
			cred.Roles = append(cred.Roles, role)
		}
	}
	return cred, nil
}

func newEnvInitCmd(g *globalOptions) *cobra.Command {
	var (
		nodes    []string
		login    string
		password string
		keyFile  string
		kubeHost string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Record the underlay nodes of an environment",
		Long: `Write the underlay SSH credentials, and optionally the Kubernetes API host,
into the environment configuration. Credentials left out are taken from the SSH
settings when connecting.

Example:
  ccptest env init --node master=10.0.0.2,k8s-master --node slave-0=10.0.0.3,k8s-node \
    --kube-host 10.0.0.2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, ec, err := loadEnvironment(g)
			if err != nil {
				return err
			}

			existing, err := ec.Underlay()
			if err != nil {
				return err
			}
			if len(existing) > 0 && !force {
				return fmt.Errorf("%s already lists %d nodes, use --force to replace them", settings.EnvConfigPath, len(existing))
			}

			creds := make([]underlay.SSHCredential, 0, len(nodes))
			for _, arg := range nodes {
				cred, err := parseNode(arg)
				if err != nil {
					return err
				}
				cred.Login, cred.Password, cred.KeyFile = login, password, keyFile
				creds = append(creds, cred)
			}
			if err := ec.SetUnderlay(creds); err != nil {
				return err
			}
			if kubeHost != "" {
				if err := ec.Set(config.KubeHostPath, kubeHost); err != nil {
					return err
				}
			}
			if err := ec.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Environment %s: %d nodes written to %s\n", settings.EnvName, len(creds), settings.EnvConfigPath)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&nodes, "node", nil, "Underlay node as NAME=HOST[:PORT][,ROLE...] (repeatable)")
	cmd.Flags().StringVar(&login, "login", "", "SSH login for every node")
	cmd.Flags().StringVar(&password, "password", "", "SSH password for every node")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "SSH private key for every node")
	cmd.Flags().StringVar(&kubeHost, "kube-host", "", "Kubernetes API host")
	cmd.Flags().BoolVar(&force, "force", false, "Replace nodes already recorded")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}

func newEnvShowCmd(g *globalOptions) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the environment, its nodes and snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var status map[string]string
			if check {
				application, err := newApplication(cmd, g)
				if err != nil {
					return err
				}
				defer application.Close()
				status = nodeStatus(cmd, application.Services().Underlay)
			}

			settings, ec, err := loadEnvironment(g)
			if err != nil {
				return err
			}
			creds, err := ec.Underlay()
			if err != nil {
				return err
			}
			renderEnvironment(cmd.OutOrStdout(), settings, ec, creds, status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Connect to every node and report whether it answers")
	return cmd
}

// nodeStatus runs a trivial command everywhere and reports each node's state.
func nodeStatus(cmd *cobra.Command, nodes *underlay.Manager) map[string]string {
	results, _ := nodes.ExecuteOnAll(cmd.Context(), "true")
	status := make(map[string]string, len(results))
	for _, node := range nodes.Nodes() {
		res, ok := results[node]
		switch {
		case !ok:
			status[node] = text.FgRed.Sprint("unreachable")
		case res.ExitCode != 0:
			status[node] = text.FgYellow.Sprintf("exit %d", res.ExitCode)
		default:
			status[node] = text.FgGreen.Sprint("ok")
		}
	}
	return status
}

func renderEnvironment(out io.Writer, settings config.Settings, ec *config.EnvironmentConfig, creds []underlay.SSHCredential, status map[string]string) {
	info := table.NewWriter()
	info.SetStyle(table.StyleRounded)
	info.AppendRows([]table.Row{
		{text.FgHiCyan.Sprint("Environment"), settings.EnvName},
		{text.FgHiCyan.Sprint("Configuration"), ec.Path()},
		{text.FgHiCyan.Sprint("Kubernetes"), stringOr(ec.KubeHost(), settings.Kube.Host, "-")},
		{text.FgHiCyan.Sprint("Namespace"), settings.Kube.Namespace},
		{text.FgHiCyan.Sprint("Snapshots"), snapshotSummary(settings.SnapshotsEnabled, ec.Snapshots())},
	})
	fmt.Fprintln(out, info.Render())

	if len(creds) == 0 {
		fmt.Fprintln(out, "No underlay nodes recorded; run 'ccptest env init'.")
		return
	}

	nodes := table.NewWriter()
	nodes.SetStyle(table.StyleRounded)
	header := table.Row{
		text.FgHiCyan.Sprint("NODE"),
		text.FgHiCyan.Sprint("ADDRESS"),
		text.FgHiCyan.Sprint("LOGIN"),
		text.FgHiCyan.Sprint("ROLES"),
	}
	if status != nil {
		header = append(header, text.FgHiCyan.Sprint("STATUS"))
	}
	nodes.AppendHeader(header)

	sort.Slice(creds, func(i, j int) bool { return creds[i].Node < creds[j].Node })
	for _, c := range creds {
		row := table.Row{c.Node, c.Address(), stringOr(c.Login, settings.SSH.Login), strings.Join(c.Roles, ", ")}
		if status != nil {
			row = append(row, status[c.Node])
		}
		nodes.AppendRow(row)
	}
	fmt.Fprintln(out, nodes.Render())
}

func snapshotSummary(enabled bool, names []string) string {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	if len(names) == 0 {
		return state
	}
	return fmt.Sprintf("%s (%s)", state, strings.Join(names, ", "))
}

func stringOr(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func newEnvSnapshotCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot NAME",
		Short: "Snapshot the environment and record the snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(cmd, g)
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Services().Snapshots.Take(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "📸 Snapshot %s created\n", args[0])
			return nil
		},
	}
}

func newEnvRevertCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revert NAME",
		Short: "Revert the environment to a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(cmd, g)
			if err != nil {
				return err
			}
			defer application.Close()

			services := application.Services()
			if err := services.Snapshots.Revert(cmd.Context(), args[0]); err != nil {
				return err
			}
			if err := services.RefreshUnderlay(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "⏪ Reverted to snapshot %s\n", args[0])
			return nil
		},
	}
}

func newEnvSnapshotsCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "List the snapshots of the environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(cmd, g)
			if err != nil {
				return err
			}
			defer application.Close()

			names, err := application.Services().Snapshots.List(cmd.Context())
			if err != nil {
				return err
			}
			recorded := application.Services().EnvConfig
			for _, name := range names {
				marker := " "
				if recorded.HasSnapshot(name) {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			return nil
		},
	}
}
