// The indexer binary syncs blocks from a Namada node into PostgreSQL.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/Zondax/namadexer/checksums"
	"github.com/Zondax/namadexer/config"
	"github.com/Zondax/namadexer/db"
	"github.com/Zondax/namadexer/indexer"
	"github.com/Zondax/namadexer/metrics"
)

func main() {
	app := &cli.App{
		Name:   "indexer",
		Usage:  "sync Namada blocks into PostgreSQL",
		Flags:  config.Flags(),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("indexer exited")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromContext(c)
	if err != nil {
		return err
	}
	if err := cfg.SetupLogging(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	go serveMetrics(cfg.Prometheus, m)

	sums, err := checksums.Load()
	if err != nil {
		return err
	}
	logrus.WithField("entries", len(sums)).Info("checksums loaded")

	database, err := db.New(ctx, cfg.Database, cfg.ChainName, m)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.CreateTables(ctx); err != nil {
		return err
	}

	client, err := indexer.NewClient(cfg.Indexer.TendermintAddr)
	if err != nil {
		return err
	}

	x := indexer.New(client, database, sums, m, cfg.Database.CreateIndex)
	return x.Run(ctx)
}

func serveMetrics(cfg config.PrometheusConfig, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	logrus.WithField("addr", cfg.Address()).Info("serving metrics")
	if err := http.ListenAndServe(cfg.Address(), mux); err != nil {
		logrus.WithError(err).Error("metrics server stopped")
	}
}
