// Package config loads the flint.json configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/freekieb7/flint/http"
	"github.com/freekieb7/flint/net/reactor"
)

const DefaultPath = "flint.json"

// Duration is a time.Duration written as a string such as "5s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch v := v.(type) {
	case float64:
		*d = Duration(v)
		return nil
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
}

type Server struct {
	Addr            string   `json:"addr"`
	Name            string   `json:"name"`
	Shards          int      `json:"shards"`
	MaxConns        int      `json:"max_conns"`
	ReadBufferSize  int      `json:"read_buffer_size"`
	IdleTimeout     Duration `json:"idle_timeout"`
	RequestTimeout  Duration `json:"request_timeout"`
	SweepInterval   Duration `json:"sweep_interval"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
	MaxHeaderBytes  int      `json:"max_header_bytes"`
	MaxBodyBytes    int      `json:"max_body_bytes"`
	HighWatermark   int      `json:"high_watermark"`
	LowWatermark    int      `json:"low_watermark"`
	ChunkSize       int      `json:"chunk_size"`
}

// Admin is the side-channel HTTP server. An empty address disables it.
type Admin struct {
	Addr string `json:"addr"`
}

// Telemetry configures OTLP export. An empty endpoint disables it.
type Telemetry struct {
	OTLPEndpoint string `json:"otlp_endpoint"`
	ServiceName  string `json:"service_name"`
	Insecure     bool   `json:"insecure"`
}

func (t Telemetry) Enabled() bool { return t.OTLPEndpoint != "" }

type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return level, nil
}

type Auth struct {
	// PruneInterval is how often expired credentials are removed.
	PruneInterval Duration `json:"prune_interval"`
}

type Config struct {
	Server    Server    `json:"server"`
	Admin     Admin     `json:"admin"`
	Telemetry Telemetry `json:"telemetry"`
	Log       Log       `json:"log"`
	Auth      Auth      `json:"auth"`
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8542",
			Name:            "flint",
			Shards:          runtime.NumCPU(),
			MaxConns:        reactor.DefaultMaxConns,
			ReadBufferSize:  reactor.DefaultReadBufferSize,
			IdleTimeout:     Duration(reactor.DefaultIdleTimeout),
			SweepInterval:   Duration(reactor.DefaultSweepInterval),
			ShutdownTimeout: Duration(reactor.DefaultShutdownTimeout),
			MaxHeaderBytes:  http.DefaultMaxHeaderBytes,
			MaxBodyBytes:    http.DefaultMaxBodyBytes,
			HighWatermark:   reactor.DefaultHighWatermark,
			LowWatermark:    reactor.DefaultLowWatermark,
			ChunkSize:       http.DefaultChunkSize,
		},
		Admin: Admin{
			Addr: "127.0.0.1:8543",
		},
		Telemetry: Telemetry{
			ServiceName: "flint",
			Insecure:    true,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Auth: Auth{
			PruneInterval: Duration(time.Minute),
		},
	}
}

// Load reads the file at path over the defaults. A missing file at the
// default path is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
		return cfg, cfg.Validate()
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Decode(data); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Decode overlays the JSON document data. Unknown fields are rejected.
func (c *Config) Decode(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	s := c.Server
	if s.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if s.Shards < 0 {
		errs = append(errs, fmt.Errorf("server.shards must not be negative, got %d", s.Shards))
	}
	if s.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("server.max_conns must not be negative, got %d", s.MaxConns))
	}
	if s.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout must not be negative, got %s", s.RequestTimeout))
	}
	if s.MaxHeaderBytes < 0 || s.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("server message limits must not be negative"))
	}
	if s.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("server.chunk_size must not be negative, got %d", s.ChunkSize))
	}
	if s.HighWatermark > 0 && s.LowWatermark > s.HighWatermark {
		errs = append(errs, fmt.Errorf("server.low_watermark %d above server.high_watermark %d", s.LowWatermark, s.HighWatermark))
	}
	if c.Admin.Addr != "" && c.Admin.Addr == s.Addr {
		errs = append(errs, errors.New("admin.addr must differ from server.addr"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Auth.PruneInterval <= 0 {
		errs = append(errs, errors.New("auth.prune_interval must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// ReactorConfig converts the server section for the transport.
func (c Config) ReactorConfig() reactor.Config {
	s := c.Server
	return reactor.Config{
		Shards:          s.Shards,
		MaxConns:        s.MaxConns,
		ReadBufferSize:  s.ReadBufferSize,
		IdleTimeout:     s.IdleTimeout.Std(),
		RequestTimeout:  s.RequestTimeout.Std(),
		SweepInterval:   s.SweepInterval.Std(),
		ShutdownTimeout: s.ShutdownTimeout.Std(),
		HighWatermark:   s.HighWatermark,
		LowWatermark:    s.LowWatermark,
	}
}

// ServerOptions converts the server section to server options.
func (c Config) ServerOptions() []http.Option {
	return []http.Option{
		http.WithReactorConfig(c.ReactorConfig()),
		http.WithLimits(c.Server.MaxHeaderBytes, c.Server.MaxBodyBytes),
		http.WithChunkSize(c.Server.ChunkSize),
	}
}

// JSON returns the indented document of c.
func (c Config) JSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
