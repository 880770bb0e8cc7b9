package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"ccptests/internal/underlay"
)

// lineReader is the part of readline the shell loop needs.
type lineReader interface {
	Readline() (string, error)
}

func newShellCmd(g *globalOptions) *cobra.Command {
	var sudo bool
	cmd := &cobra.Command{
		Use:   "shell NODE",
		Short: "Open an interactive command prompt on an underlay node",
		Long: `Open an interactive prompt on an underlay node. Every line is run as a
separate remote command, so shell state such as the working directory does not
carry over between lines. Type 'exit' or press Ctrl+D to leave.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication(cmd, g)
			if err != nil {
				return err
			}
			defer application.Close()

			node := args[0]
			nodes := application.Services().Underlay
			if _, err := nodes.Credential(node); err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          text.FgHiCyan.Sprint(node) + "$ ",
				HistoryFile:     filepath.Join(os.TempDir(), ".ccptest_shell_history"),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          cmd.OutOrStdout(),
				Stderr:          cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("failed to create readline instance: %w", err)
			}
			defer rl.Close()

			return runShell(cmd.Context(), rl, nodes, node, sudo, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&sudo, "sudo", false, "Run every command through sudo")
	return cmd
}

// runShell reads commands from r and runs them on node until EOF or exit.
func runShell(ctx context.Context, r lineReader, nodes *underlay.Manager, node string, sudo bool, out, errOut io.Writer) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := r.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		switch input {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if sudo {
			input = "sudo -n " + input
		}

		res, err := nodes.Execute(ctx, node, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(errOut, text.FgRed.Sprintf("Error: %v", err))
			continue
		}
		writeOutput(out, res.Stdout)
		writeOutput(errOut, res.Stderr)
		if res.ExitCode != 0 {
			fmt.Fprintln(errOut, text.FgYellow.Sprintf("[exit %d]", res.ExitCode))
		}
	}
}
