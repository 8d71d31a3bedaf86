// Package backend is the REST client of the hydro backend API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/LeonardoBeccarini/hydro_monitor/internal/model/messages"
)

const (
	pathReadings  = "/api/readings"
	pathHardware  = "/api/hardware/status"
	pathCalibrate = "/api/hardware/calibrate/"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("backend: circuit open")

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s %s: status %d %s", e.Method, e.Path, e.Code, e.Body)
}

type Config struct {
	BaseURL         string
	Timeout         time.Duration
	RatePerSecond   float64
	Burst           int
	BreakerFailures int
	BreakerOpen     time.Duration
	BreakerInterval time.Duration
}

type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
	log     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerOpen <= 0 {
		cfg.BreakerOpen = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "backend-client")
	return &Client{
		base:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		cb:      mkCB("backend", cfg.BreakerFailures, cfg.BreakerOpen, cfg.BreakerInterval, log),
		log:     log,
	}
}

func mkCB(name string, fails int, open, interval time.Duration, log *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: interval,
		Timeout:  open,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(fails)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// BreakerState is the current breaker state, e.g. "closed" or "open".
func (c *Client) BreakerState() string { return c.cb.State().String() }

// FetchReadings returns the stored plant samples.
func (c *Client) FetchReadings(ctx context.Context) ([]messages.PlantSample, error) {
	var out []messages.PlantSample
	if err := c.do(ctx, http.MethodGet, pathReadings, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PostReadings sends one sample as an object, several as an array.
func (c *Client) PostReadings(ctx context.Context, samples ...messages.PlantSample) error {
	switch len(samples) {
	case 0:
		return nil
	case 1:
		return c.do(ctx, http.MethodPost, pathReadings, samples[0], nil)
	default:
		return c.do(ctx, http.MethodPost, pathReadings, samples, nil)
	}
}

// FetchHardwareStatus accepts either an array of statuses or an object keyed by device id.
func (c *Client) FetchHardwareStatus(ctx context.Context) ([]messages.HardwareStatus, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, pathHardware, nil, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []messages.HardwareStatus
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("backend hardware status: %w", err)
		}
		return list, nil
	}
	var byID map[string]messages.HardwareStatus
	if err := json.Unmarshal(raw, &byID); err != nil {
		return nil, fmt.Errorf("backend hardware status: %w", err)
	}
	out := make([]messages.HardwareStatus, 0, len(byID))
	for id, st := range byID {
		if st.DeviceID == "" {
			st.DeviceID = id
		}
		out = append(out, st)
	}
	return out, nil
}

// CalibrateSensor asks the backend to calibrate a sensor. The result body is optional.
func (c *Client) CalibrateSensor(ctx context.Context, sensorID string) (*messages.CalibrationResult, error) {
	sensorID = strings.TrimSpace(sensorID)
	if sensorID == "" {
		return nil, errors.New("backend calibrate: empty sensor id")
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, pathCalibrate+url.PathEscape(sensorID), nil, &raw); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var res messages.CalibrationResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("backend calibrate: %w", err)
	}
	if res.SensorID == "" {
		res.SensorID = sensorID
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.base == "" {
		return errors.New("backend: base url not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s %s", ErrUnavailable, method, path)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("backend %s %s: %w", method, path, err)
		}
		*raw = b
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend %s %s decode: %w", method, path, err)
	}
	return nil
}
