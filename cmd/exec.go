package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"ccptests/internal/underlay"
)

type execOptions struct {
	sudo     bool
	expected []int
	quiet    bool
	timeout  time.Duration
}

func newExecCmd(g *globalOptions) *cobra.Command {
	o := &execOptions{}
	cmd := &cobra.Command{
		Use:   "exec NODE -- COMMAND [ARGS...]",
		Short: "Run a command on an underlay node",
		Long: `Run a command on an underlay node over SSH and print its output.

NODE is a node name or host from the environment configuration. A single COMMAND
argument is passed to the remote shell as is; several arguments are quoted and
joined. The exit code must be one of --expect, otherwise ccptest exits with 3.

Examples:
  ccptest exec master -- kubectl get nodes
  ccptest exec slave-0 --sudo -- 'systemctl restart docker'
  ccptest exec master --expect 0,1 -- grep -q ERROR /var/log/ccp.log`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(cmd, g)
			if err != nil {
				return err
			}
			defer application.Close()

			ctx := cmd.Context()
			if o.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, o.timeout)
				defer cancel()
			}
			return runExec(ctx, cmd, application.Services().Underlay, args[0], remoteCommand(args[1:]), o)
		},
	}

	cmd.Flags().BoolVar(&o.sudo, "sudo", false, "Run the command through sudo")
	cmd.Flags().IntSliceVar(&o.expected, "expect", []int{0}, "Accepted exit codes")
	cmd.Flags().BoolVarP(&o.quiet, "quiet", "q", false, "Do not show a progress spinner")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 0, "Give up after this long (0 waits forever)")
	return cmd
}

// remoteCommand builds the remote command line from the arguments after the node.
func remoteCommand(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return shellescape.QuoteCommand(args)
}

func runExec(ctx context.Context, cmd *cobra.Command, nodes *underlay.Manager, node, command string, o *execOptions) error {
	var s *spinner.Spinner
	if !o.quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = fmt.Sprintf(" Running on %s...", node)
		s.Start()
	}

	var (
		res *underlay.ExecResult
		err error
	)
	if o.sudo {
		res, err = nodes.SudoCheckCall(ctx, node, command, o.expected...)
	} else {
		res, err = nodes.CheckCall(ctx, node, command, o.expected...)
	}

	if s != nil {
		if err != nil {
			s.FinalMSG = text.FgRed.Sprintf("✗ %s failed", node) + "\n"
		}
		s.Stop()
	}

	if res != nil {
		writeOutput(cmd.OutOrStdout(), res.Stdout)
		writeOutput(cmd.ErrOrStderr(), res.Stderr)
	}
	return err
}

func writeOutput(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}
