// Command kvs-client is an interactive shell for a kvs server.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/0xRadioAc7iv/go-kvs/client"
	"github.com/0xRadioAc7iv/go-kvs/internal/config"
	"github.com/0xRadioAc7iv/go-kvs/internal/utils"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	cfg := config.DefaultClientConfig()

	cmd := &cobra.Command{
		Use:           "kvs-client",
		Short:         "Interactive shell for a kvs server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			c, err := client.Connect(
				client.WithHost(cfg.Host),
				client.WithPort(cfg.Port),
				client.WithDialTimeout(cfg.DialTimeout),
			)
			if err != nil {
				return err
			}
			defer c.Close()

			fmt.Fprintf(out, "Connected to %v:%d\n", cfg.Host, cfg.Port)
			fmt.Fprintln(out, "Type commands. 'help' for information or 'exit' to quit.")
			return repl(c, in, out)
		},
	}

	cmd.Flags().StringVar(&cfg.Host, "host", cfg.Host, "kvs server host")
	cmd.Flags().IntVar(&cfg.Port, "port", cfg.Port, "kvs server port")
	cmd.Flags().DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "how long to wait for the server")

	return cmd
}

type executor interface {
	Execute(cmd, key, value string) (string, error)
}

// repl reads commands from in until EOF or "exit". Server-side errors are
// printed and the loop goes on; transport errors end it.
func repl(c executor, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)

	for {
		fmt.Fprint(out, "> ")

		if !scanner.Scan() {
			fmt.Fprintln(out)
			return errors.Wrap(scanner.Err(), "reading input")
		}

		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		if line == "exit" {
			return nil
		}

		cmd, key, value, err := utils.SplitStringIntoCommandAndArguments(line)
		if err != nil {
			fmt.Fprintln(out, "parse error:", err)
			continue
		}

		resp, err := c.Execute(cmd, key, value)
		switch {
		case err == nil, errors.Is(err, client.ErrNotFound):
			fmt.Fprintln(out, resp)
		case errors.Is(err, client.ErrServer):
			fmt.Fprintln(out, "(error)", err)
		default:
			return err
		}
	}
}
