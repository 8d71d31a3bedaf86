package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/config"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/services/monitor"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/backend"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/influx"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/metrics"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/rabbitmq"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/wsconn"
)

func main() {
	cfgPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logger("monitor")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === Metrics ===
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sinks := monitor.Sinks{Metrics: m}
	extras := monitor.Extras{Metrics: m, Gatherer: reg}

	// === InfluxDB ===
	if cfg.Influx.Enabled() {
		opts := influxdb2.DefaultOptions().SetFlushInterval(uint(cfg.Influx.FlushInterval.Milliseconds()))
		client := influxdb2.NewClientWithOptions(cfg.Influx.URL, cfg.Influx.Token, opts)
		defer client.Close()
		w := influx.NewWriter(client.WriteAPI(cfg.Influx.Org, cfg.Influx.Bucket), logger)
		defer w.Flush()
		sinks.Store = w
		extras.Writer = w
	}

	// === MQTT ===
	if cfg.MQTT.Enabled() {
		client, err := rabbitmq.NewRabbitMQConn(ctx, cfg.MQTT.Broker("monitor"), logger)
		if err != nil {
			logger.Error("mqtt connection error", "error", err)
			os.Exit(1)
		}
		pub := rabbitmq.NewPublisher(client, logger)
		defer pub.Close()
		sinks.Publisher = pub
		extras.MQTT = client
	}

	// === Backend ===
	if cfg.Backend.Enabled() {
		extras.Backend = backend.New(cfg.Backend.Client(), logger)
	}

	p := monitor.NewPipeline(monitor.Options{
		ReadingCapacity:  cfg.Pipeline.ReadingCapacity,
		BioCapacity:      cfg.Pipeline.BioCapacity,
		AlertCapacity:    cfg.Pipeline.AlertCapacity,
		SmoothingWindow:  cfg.Pipeline.SmoothingWindow,
		OutlierThreshold: cfg.Pipeline.OutlierThreshold,
		DedupTTL:         cfg.Pipeline.DedupTTL,
	}, sinks, logger)

	conn := wsconn.New(cfg.Stream.WSConn(), logger)
	srv := monitor.NewServer(monitor.ServerConfig{
		HTTPAddr: cfg.Monitor.HTTPAddr,
		GRPCAddr: cfg.Monitor.GRPCAddr,
	}, conn, p, extras, logger)

	if err := srv.Run(ctx); err != nil {
		logger.Error("monitor stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("monitor stopped")
}
