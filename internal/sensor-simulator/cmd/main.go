package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/config"
	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/entities"
	sensorSimulator "github.com/LeonardoBeccarini/hydro_monitor/internal/sensor-simulator"
)

func main() {
	cfgPath := flag.String("config", "", "path to the YAML config file")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
	cfg.LogFormat = "text"
	logger := cfg.Logger("simulator")

	profile := entities.DefaultProfiles()[0]
	for _, p := range entities.DefaultProfiles() {
		if strings.EqualFold(p.Name, cfg.Simulator.PlantType) {
			profile = p
		}
	}

	sim := sensorSimulator.NewSensorSimulator(sensorSimulator.Options{
		Interval:  cfg.Simulator.Interval,
		SpikeRate: cfg.Simulator.SpikeRate,
		DeviceID:  cfg.Simulator.DeviceID,
		Profile:   profile,
		Seed:      *seed,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hs := &http.Server{
		Addr:              cfg.Simulator.Addr,
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shCtx)
	}()

	logger.Info("simulator listening", "addr", hs.Addr, "plant", profile.Name)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
}
