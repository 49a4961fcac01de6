// The server binary serves the JSON API over an indexed database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/Zondax/namadexer/config"
	"github.com/Zondax/namadexer/db"
	"github.com/Zondax/namadexer/metrics"
	"github.com/Zondax/namadexer/server"
)

const shutdownGrace = 10 * time.Second

func main() {
	app := &cli.App{
		Name:   "server",
		Usage:  "serve the indexed chain over a JSON API",
		Flags:  config.Flags(),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("server exited")
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
	database, err := db.New(ctx, cfg.Database, cfg.ChainName, m)
	if err != nil {
		return err
	}
	defer database.Close()

	srv := server.New(database, cfg.Server, m)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("shutdown")
		}
	}()
	return srv.Start()
}
