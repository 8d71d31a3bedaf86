package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"golang.org/x/sync/errgroup"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/config"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/services/analytics"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/backend"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/influx"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/rabbitmq"
)

func main() {
	cfgPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analytics: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logger("analytics")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profiles, err := analytics.LoadProfiles(cfg.Analytics.ProfilesFile)
	if err != nil {
		logger.Error("loading plant profiles", "error", err)
		os.Exit(1)
	}

	var srcs []analytics.HistorySource

	// === InfluxDB ===
	if cfg.Influx.Enabled() {
		client := influxdb2.NewClient(cfg.Influx.URL, cfg.Influx.Token)
		defer client.Close()
		h := influx.NewHistory(client.QueryAPI(cfg.Influx.Org), cfg.Influx.Bucket)
		srcs = append(srcs, analytics.InfluxSource(h))
	}

	// === Backend ===
	if cfg.Backend.Enabled() {
		srcs = append(srcs, analytics.BackendSource(backend.New(cfg.Backend.Client(), logger), nil))
	}

	g, gctx := errgroup.WithContext(ctx)

	// === MQTT: reporter + finestra live ===
	if cfg.MQTT.Enabled() {
		client, err := rabbitmq.NewRabbitMQConn(ctx, cfg.MQTT.Broker("analytics"), logger)
		if err != nil {
			logger.Error("mqtt connection error", "error", err)
			os.Exit(1)
		}
		consumer := rabbitmq.NewConsumer(client, []string{rabbitmq.TopicReadings + "/#"}, nil, logger)
		reporter := analytics.NewReporter(consumer, rabbitmq.NewPublisher(client, logger),
			cfg.Analytics.ReportInterval, cfg.Analytics.LiveCapacity, logger)
		srcs = append(srcs, reporter.Live())
		g.Go(func() error {
			reporter.Start(gctx)
			return nil
		})
	}

	if len(srcs) == 0 {
		logger.Warn("no history source configured; analytics will return empty results")
	}
	api := analytics.NewAPI(analytics.NewSources(logger, srcs...), profiles, logger)

	hs := &http.Server{
		Addr:              cfg.Analytics.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("http listening", "addr", hs.Addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("analytics stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("analytics stopped")
}
