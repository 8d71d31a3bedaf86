// Package config loads the settings shared by the hydro services: defaults,
// an optional YAML file, then HYDRO_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/LeonardoBeccarini/hydro_monitor/pkg/backend"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/rabbitmq"
	"github.com/LeonardoBeccarini/hydro_monitor/pkg/wsconn"
)

const envPrefix = "HYDRO"

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	LogFormat string          `mapstructure:"log_format"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Influx    InfluxConfig    `mapstructure:"influx"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

type StreamConfig struct {
	URL              string        `mapstructure:"url"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
}

func (s StreamConfig) WSConn() wsconn.Config {
	return wsconn.Config{
		URL:              s.URL,
		BaseDelay:        s.BaseDelay,
		MaxAttempts:      s.MaxAttempts,
		HandshakeTimeout: s.HandshakeTimeout,
		WriteTimeout:     s.WriteTimeout,
	}
}

type MonitorConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`
}

type PipelineConfig struct {
	ReadingCapacity  int           `mapstructure:"reading_capacity"`
	BioCapacity      int           `mapstructure:"bio_capacity"`
	AlertCapacity    int           `mapstructure:"alert_capacity"`
	SmoothingWindow  int           `mapstructure:"smoothing_window"`
	OutlierThreshold float64       `mapstructure:"outlier_threshold"`
	DedupTTL         time.Duration `mapstructure:"dedup_ttl"`
}

// InfluxConfig: an empty URL disables persistence.
type InfluxConfig struct {
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	Org           string        `mapstructure:"org"`
	Bucket        string        `mapstructure:"bucket"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// MQTTConfig: an empty host disables publishing.
type MQTTConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	ClientID   string `mapstructure:"client_id"`
	MaxRetries int    `mapstructure:"max_retries"`
}

func (c MQTTConfig) Enabled() bool { return c.Host != "" }

// Broker returns the connection settings; suffix keeps client ids unique per service.
func (c MQTTConfig) Broker(suffix string) rabbitmq.RabbitMQConfig {
	id := c.ClientID
	if suffix != "" {
		id += "-" + suffix
	}
	return rabbitmq.RabbitMQConfig{
		Host:       c.Host,
		Port:       c.Port,
		User:       c.User,
		Password:   c.Password,
		ClientID:   id,
		MaxRetries: c.MaxRetries,
	}
}

// BackendConfig: an empty base URL disables the REST client.
type BackendConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	Burst           int           `mapstructure:"burst"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerOpen     time.Duration `mapstructure:"breaker_open"`
}

func (c BackendConfig) Enabled() bool { return c.BaseURL != "" }

func (c BackendConfig) Client() backend.Config {
	return backend.Config{
		BaseURL:         c.BaseURL,
		Timeout:         c.Timeout,
		RatePerSecond:   c.RatePerSecond,
		Burst:           c.Burst,
		BreakerFailures: c.BreakerFailures,
		BreakerOpen:     c.BreakerOpen,
	}
}

type AnalyticsConfig struct {
	HTTPAddr       string        `mapstructure:"http_addr"`
	ProfilesFile   string        `mapstructure:"profiles_file"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
	LiveCapacity   int           `mapstructure:"live_capacity"`
}

type SimulatorConfig struct {
	Addr      string        `mapstructure:"addr"`
	Interval  time.Duration `mapstructure:"interval"`
	SpikeRate float64       `mapstructure:"spike_rate"`
	DeviceID  string        `mapstructure:"device_id"`
	PlantType string        `mapstructure:"plant_type"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("stream.url", "ws://localhost:8081/signals")
	v.SetDefault("stream.base_delay", "1s")
	v.SetDefault("stream.max_attempts", 5)
	v.SetDefault("stream.handshake_timeout", "10s")
	v.SetDefault("stream.write_timeout", "5s")

	v.SetDefault("monitor.http_addr", ":8080")
	v.SetDefault("monitor.grpc_addr", ":9090")

	v.SetDefault("pipeline.reading_capacity", 1000)
	v.SetDefault("pipeline.bio_capacity", 100)
	v.SetDefault("pipeline.alert_capacity", 50)
	v.SetDefault("pipeline.smoothing_window", 5)
	v.SetDefault("pipeline.outlier_threshold", 2.0)
	v.SetDefault("pipeline.dedup_ttl", "10m")

	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "hydro")
	v.SetDefault("influx.bucket", "plants")
	v.SetDefault("influx.flush_interval", "1s")

	v.SetDefault("mqtt.host", "")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.user", "guest")
	v.SetDefault("mqtt.password", "guest")
	v.SetDefault("mqtt.client_id", "hydro")
	v.SetDefault("mqtt.max_retries", 5)

	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.timeout", "5s")
	v.SetDefault("backend.rate_per_second", 10.0)
	v.SetDefault("backend.burst", 5)
	v.SetDefault("backend.breaker_failures", 3)
	v.SetDefault("backend.breaker_open", "10s")

	v.SetDefault("analytics.http_addr", ":8082")
	v.SetDefault("analytics.profiles_file", "")
	v.SetDefault("analytics.report_interval", "1m")
	v.SetDefault("analytics.live_capacity", 1000)

	v.SetDefault("simulator.addr", ":8081")
	v.SetDefault("simulator.interval", "1s")
	v.SetDefault("simulator.spike_rate", 0.02)
	v.SetDefault("simulator.device_id", "sim-01")
	v.SetDefault("simulator.plant_type", "lettuce")
}

// Load reads path when given, else HYDRO_CONFIG, else hydro.yaml from the
// working directory or /etc/hydro. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("hydro")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hydro")
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.Stream.URL == "" {
		return nil, errors.New("config: stream.url is required")
	}
	return &cfg, nil
}

// Logger builds the process logger; component loggers derive from it.
func (c *Config) Logger(service string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if strings.EqualFold(c.LogFormat, "text") {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(h).With("service", service)
}
