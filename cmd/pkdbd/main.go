// pkdbd is a long-running process that keeps one pakdb file open and
// exposes its Prometheus metrics over HTTP for scraping. It does not speak
// any wire protocol to clients - the sync server and any app-level access
// control are out of scope - it exists so the commit/query/encryption
// instrumentation in pkg/metrics has somewhere to run continuously instead
// of only existing inside short-lived CLI invocations.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/pakdb/pakdb/pkg/logging"
	"github.com/pakdb/pakdb/pkg/metrics"
	"github.com/pakdb/pakdb/pkg/pakdb"
)

var log = logging.For("pkdbd")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := flag.NewFlagSet("pkdbd", flag.ContinueOnError)

	configPath := flagSet.String("config", "", "Path to JSONC config file")
	dbPath := flagSet.String("db", "", "Path to the pakdb file to serve")
	metricsAddr := flagSet.String("metrics-addr", "", "Address for the Prometheus scrape endpoint")
	historyPath := flagSet.String("history", "", "Path to a bbolt changeset history file (optional)")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := LoadConfig(*configPath, Config{DBPath: *dbPath, MetricsAddr: *metricsAddr, HistoryPath: *historyPath},
		flagSet.Changed("db"), flagSet.Changed("metrics-addr"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := pakdb.Open(cfg.DBPath, pakdb.Options{HistoryPath: cfg.HistoryPath})
	if err != nil {
		return fmt.Errorf("opening database %s: %w", cfg.DBPath, err)
	}
	defer db.Close()

	log.Info().Str("path", cfg.DBPath).Str("metrics_addr", cfg.MetricsAddr).Msg("pkdbd starting")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serveErrCh:
		return fmt.Errorf("metrics server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return server.Shutdown(ctx)
}
