/*
	Churn-heavy load generator. It overwrites and removes keys from a fixed
	universe so a running kvs-server accumulates stale records, rotates
	segments and compacts.

	go run ./scripts --port 9999 --workers 6 --cycles 5000
*/

package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/0xRadioAc7iv/go-kvs/client"
	"github.com/0xRadioAc7iv/go-kvs/internal/config"
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const (
	// Fixed universe
	totalKeys   = 100
	totalValues = 100

	// Per-cycle behavior
	keysPerCycleWrite  = 20
	keysPerCycleDelete = 10

	progressEvery = 500
)

type options struct {
	host    string
	port    int
	workers int
	cycles  int
	sleep   time.Duration
}

func main() {
	var opts options
	pflag.StringVar(&opts.host, "host", config.DefaultHost, "kvs server host")
	pflag.IntVar(&opts.port, "port", config.DefaultPort, "kvs server port")
	pflag.IntVar(&opts.workers, "workers", 6, "concurrent connections")
	pflag.IntVar(&opts.cycles, "cycles", 5000, "cycles per worker")
	pflag.DurationVar(&opts.sleep, "sleep", 10*time.Millisecond, "pause between cycles")
	pflag.Parse()

	start := time.Now()
	logrus.WithField("workers", opts.workers).Info("starting churn-heavy load generator")

	keys := makeKeys(totalKeys)
	values := makeValues(totalValues)

	var g errgroup.Group
	for i := 0; i < opts.workers; i++ {
		id := i
		g.Go(func() error {
			return runWorker(id, opts, keys, values)
		})
	}

	if err := g.Wait(); err != nil {
		logrus.WithError(err).Fatal("load generator failed")
	}

	c, err := client.Connect(client.WithHost(opts.host), client.WithPort(opts.port))
	if err != nil {
		logrus.WithError(err).Fatal("connecting for stats")
	}
	defer c.Close()

	stats, err := c.Stats()
	if err != nil {
		logrus.WithError(err).Fatal("fetching stats")
	}
	fmt.Println(stats)
	logrus.WithField("duration", time.Since(start)).Info("load finished")
}

func runWorker(id int, opts options, keys, values []string) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	logger := logrus.WithField("worker", id)

	c, err := client.Connect(client.WithHost(opts.host), client.WithPort(opts.port))
	if err != nil {
		return errors.Wrapf(err, "worker %d", id)
	}
	defer c.Close()

	set := func(phase string) error {
		key := keys[rng.Intn(len(keys))]
		val := values[rng.Intn(len(values))]
		return errors.Wrapf(c.Set([]byte(key), []byte(val)), "worker %d %s", id, phase)
	}

	for cycle := 1; cycle <= opts.cycles; cycle++ {
		for i := 0; i < keysPerCycleWrite; i++ {
			if err := set("write"); err != nil {
				return err
			}
		}

		for i := 0; i < keysPerCycleDelete; i++ {
			key := keys[rng.Intn(len(keys))]
			if err := c.Remove([]byte(key)); err != nil && !errors.Is(err, client.ErrNotFound) {
				return errors.Wrapf(err, "worker %d remove", id)
			}
		}

		// Overwrite garbage for the compactor.
		for i := 0; i < keysPerCycleWrite/2; i++ {
			if err := set("rewrite"); err != nil {
				return err
			}
		}

		if cycle%progressEvery == 0 {
			logger.WithField("cycle", cycle).Info("progress")
		}

		if opts.sleep > 0 {
			time.Sleep(opts.sleep)
		}
	}
	return nil
}

func makeKeys(n int) []string {
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("key-%03d", i)
	}
	return keys
}

func makeValues(n int) []string {
	values := make([]string, n)
	for i := 0; i < n; i++ {
		values[i] = fmt.Sprintf("value-%03d-xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", i)
	}
	return values
}
