package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/LeonardoBeccarini/hydro_monitor/pkg/metrics"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/wsconn"
)

type ServerConfig struct {
	HTTPAddr      string
	GRPCAddr      string // empty disables the gRPC health server
	ShutdownGrace time.Duration
}

// Extras are the optional collaborators; leave a field nil when the
// dependency is not configured.
type Extras struct {
	Backend  Calibrator
	MQTT     Probe
	Writer   ErrorAger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Server ties the stream to the pipeline and serves HTTP and gRPC health.
type Server struct {
	cfg      ServerConfig
	conn     *wsconn.Manager
	pipeline *Pipeline
	metrics  *metrics.Metrics
	health   *GRPCHealth
	http     *http.Server
	log      *slog.Logger
	detach   []func()
}

func NewServer(cfg ServerConfig, conn *wsconn.Manager, p *Pipeline, ex Extras, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		conn:     conn,
		pipeline: p,
		metrics:  ex.Metrics,
		health:   NewGRPCHealth(logger),
		log:      logger.With("component", "monitor"),
	}

	r := NewAPI(p, conn, ex.Backend, logger).Router()
	r.Handle("/healthz", NewHealthHandler(conn, ex.MQTT, ex.Writer))
	r.Handle("/readyz", NewReadyHandler(conn))
	if ex.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(ex.Gatherer, promhttp.HandlerOpts{}))
	}
	s.http = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.detach = append(s.detach,
		conn.AddMessageHandler(p.HandleMessage),
		conn.AddErrorHandler(p.HandleError),
		conn.AddStateHandler(s.onState),
	)
	s.onState(conn.State())
	return s
}

func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) onState(st wsconn.State) {
	s.metrics.ConnectionState(st.String())
	s.health.OnState(st)
}

// Run blocks until ctx ends, then disconnects and shuts the servers down.
func (s *Server) Run(ctx context.Context) error {
	var grpcLis net.Listener
	if s.cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen %s: %w", s.cfg.GRPCAddr, err)
		}
		grpcLis = lis
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("http listening", "addr", s.cfg.HTTPAddr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if grpcLis != nil {
		g.Go(func() error { return s.health.Serve(grpcLis) })
	}

	dialed := make(chan struct{})
	g.Go(func() error {
		defer close(dialed)
		// un dial fallito pianifica già il reconnect
		if err := s.conn.Connect(gctx); err != nil {
			s.log.Warn("initial connect failed", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		<-dialed
		s.log.Info("shutting down")
		s.conn.Disconnect()
		for _, d := range s.detach {
			d()
		}
		shCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		err := s.http.Shutdown(shCtx)
		s.health.Stop()
		return err
	})

	return g.Wait()
}
