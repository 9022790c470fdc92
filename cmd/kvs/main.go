// Command kvs reads and writes a store directory directly.
//
//	kvs set <key> <value>
//	kvs get <key>
//	kvs rm <key>
//	kvs compact
//	kvs stats
//
// get and rm print "Key not found" and exit with status 1 when the key has no
// value.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/0xRadioAc7iv/go-kvs/core"
	"github.com/0xRadioAc7iv/go-kvs/internal/config"
	"github.com/0xRadioAc7iv/go-kvs/pkg/kvs"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var version = "dev"

// errKeyNotFound has already been reported on stdout; it only sets the exit
// status.
var errKeyNotFound = errors.New("key not found")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errKeyNotFound) {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

type cli struct {
	dir      string
	logLevel string
	stdout   io.Writer
	stderr   io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "kvs",
		Short:         "A log-structured key-value store",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&c.dir, "dir", "d", ".", "store directory")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Store a value",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				return c.withStore(func(s *kvs.Store) error {
					return s.Set([]byte(args[0]), []byte(args[1]))
				})
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print the value of a key",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return c.withStore(func(s *kvs.Store) error {
					value, found, err := s.Get([]byte(args[0]))
					if err != nil {
						return err
					}
					if !found {
						return c.notFound()
					}
					fmt.Fprintln(c.stdout, string(value))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "rm <key>",
			Short: "Remove a key",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return c.withStore(func(s *kvs.Store) error {
					err := s.Remove([]byte(args[0]))
					if errors.Is(err, kvs.ErrKeyNotFound) {
						return c.notFound()
					}
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "compact",
			Short: "Rewrite the log without stale records",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return c.withStore(func(s *kvs.Store) error {
					before := s.Stats().TotalBytes
					if err := s.Compact(); err != nil {
						return err
					}
					after := s.Stats().TotalBytes
					fmt.Fprintf(c.stdout, "compacted %s to %s\n",
						humanize.IBytes(uint64(before)), humanize.IBytes(uint64(after)))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Print store statistics",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return c.withStore(func(s *kvs.Store) error {
					st := s.Stats()
					fmt.Fprintf(c.stdout, "live keys:   %d\n", st.LiveKeys)
					fmt.Fprintf(c.stdout, "segments:    %d\n", st.Segments)
					fmt.Fprintf(c.stdout, "log size:    %s\n", humanize.IBytes(uint64(st.TotalBytes)))
					fmt.Fprintf(c.stdout, "stale:       %s\n", humanize.IBytes(uint64(st.StaleBytes)))
					return nil
				})
			},
		},
	)

	return root
}

func (c *cli) notFound() error {
	fmt.Fprintln(c.stdout, kvs.ErrKeyNotFound.Error())
	return errKeyNotFound
}

// withStore opens the store for the duration of fn.
func (c *cli) withStore(fn func(*kvs.Store) error) (err error) {
	logger, err := config.LogConfig{Level: c.logLevel, Format: "text"}.NewLogger(c.stderr)
	if err != nil {
		return err
	}

	s, err := kvs.Open(c.dir, core.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("closing store")
			err = errors.CombineErrors(err, closeErr)
		}
	}()

	return fn(s)
}
