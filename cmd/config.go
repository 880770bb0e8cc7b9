package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ccptests/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit YAML configuration files by keypath",
		Long: `Read and edit YAML documents such as the ccp configuration or the environment
configuration by keypath.

A keypath is a dot separated list of mapping keys, each optionally followed by
sequence indexes: 'images.tag', 'nodes[0].roles[-1]'. Missing keys and list
elements are created on the way unless --no-create is given.`,
	}
	cmd.AddCommand(newConfigSetCmd(), newConfigGetCmd())
	return cmd
}

func newConfigSetCmd() *cobra.Command {
	var (
		noCreate bool
		raw      bool
	)
	cmd := &cobra.Command{
		Use:   "set FILE KEYPATH VALUE",
		Short: "Assign a value at a keypath and write the file back",
		Long: `Assign VALUE at KEYPATH inside the YAML document FILE. VALUE is read as YAML, so
'true' becomes a boolean and '[a, b]' a list; use --raw to store it as a string.

Examples:
  ccptest config set ccp.yaml images.tag ocata
  ccptest config set ccp.yaml 'nodes[0].roles' '[controller, compute]'
  ccptest config set --no-create env.yaml k8s.kube_host 10.0.0.2`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any = args[2]
			if !raw {
				value = config.ParseScalar(args[2])
			}
			if err := config.SetInFile(args[0], args[1], value, !noCreate); err != nil {
				return fmt.Errorf("failed to set %s in %s: %w", args[1], args[0], err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCreate, "no-create", false, "Fail instead of creating missing keys and list elements")
	cmd.Flags().BoolVar(&raw, "raw", false, "Store VALUE as a string without YAML decoding")
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get FILE KEYPATH",
		Short: "Print the value at a keypath",
		Long: `Print the value at KEYPATH inside the YAML document FILE. Scalars are printed
as is; mappings and lists as YAML, or as JSON with --output json.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := config.GetFromFile(args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to get %s from %s: %w", args[1], args[0], err)
			}
			return printValue(cmd, value, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format for mappings and lists: yaml or json")
	return cmd
}

func printValue(cmd *cobra.Command, value any, output string) error {
	out := cmd.OutOrStdout()
	switch value.(type) {
	case map[string]any, []any:
	case nil:
		fmt.Fprintln(out, "null")
		return nil
	default:
		fmt.Fprintln(out, value)
		return nil
	}

	switch output {
	case "json":
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	case "yaml", "":
		data, err := config.EncodeDocument(value)
		if err != nil {
			return err
		}
		fmt.Fprint(out, string(data))
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", output)
	}
	return nil
}
