package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/The127/ioc"
	"github.com/avast/retry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/the127/blobyard/internal/args"
	"github.com/the127/blobyard/internal/config"
	"github.com/the127/blobyard/internal/logging"
	"github.com/the127/blobyard/internal/server"
	"github.com/the127/blobyard/internal/setup"
	"github.com/the127/blobyard/internal/storageBackends"
)

var rootCmd = &cobra.Command{
	Use:   "blobyard",
	Short: "OCI blob upload registry",
	Run: func(cmd *cobra.Command, _ []string) {
		run()
	},
}

func init() {
	args.Bind(rootCmd.Flags())
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() {
	logging.Init()
	defer logging.Sync()

	config.Init()

	dc := ioc.NewDependencyCollection()

	kvStore := setup.Kv(dc, config.C.Kv)
	collector := setup.Metrics(dc, config.C.Metrics, prometheus.DefaultRegisterer)
	backend := setup.Storage(dc, config.C.Storage, kvStore, collector)
	setup.Mediator(dc)

	prepareStorage(backend)

	dp := dc.BuildProvider()

	srv := server.Serve(dp, config.C.Server, config.C.Metrics)
	waitForExit()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(ctx)
	if err != nil {
		logging.Logger.Errorf("failed to shut down server: %s", err)
	}
}

func prepareStorage(backend storageBackends.StorageBackend) {
	preparer, ok := backend.(storageBackends.Preparer)
	if !ok {
		return
	}

	err := retry.Do(
		func() error {
			return preparer.Prepare(context.Background())
		},
		retry.Attempts(5),
		retry.Delay(time.Second*5),
		retry.DelayType(retry.FixedDelay),
		retry.OnRetry(func(n uint, err error) {
			logging.Logger.Warnf("failed to prepare storage backend: %s, retrying in 5 seconds", err)
		}),
	)
	if err != nil {
		logging.Logger.Panicf("failed to prepare storage backend: %s", err)
	}
}

func waitForExit() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
