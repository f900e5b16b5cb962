// Package socketdemo parses demo command configuration and serves the demo
// modules over websockets.
package socketdemo

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"

	"github.com/bjaus/socketdispatch"
	"github.com/bjaus/socketdispatch/internal/demo"
	"github.com/bjaus/socketdispatch/otelhooks"
	"github.com/bjaus/socketdispatch/wsconn"
)

const (
	instrumentationName = "github.com/bjaus/socketdispatch/internal/cmd/socketdemo"
	shutdownTimeout     = 5 * time.Second
)

// Config holds socketdemo command configuration.
type Config struct {
	HTTPAddr     string        `env:"SOCKETDEMO_HTTP_ADDR"     envDefault:":8090"`
	Debug        bool          `env:"SOCKETDEMO_DEBUG"         envDefault:"false"`
	LogFormat    string        `env:"SOCKETDEMO_LOG_FORMAT"    envDefault:"json"`
	LogLevel     string        `env:"SOCKETDEMO_LOG_LEVEL"     envDefault:"info"`
	StageTimeout time.Duration `env:"SOCKETDEMO_STAGE_TIMEOUT" envDefault:"0s"`
}

// ParseConfig parses environment and flags into a Config. Flags win.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "log every socket event at debug level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json or text")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	fs.DurationVar(&cfg.StageTimeout, "stage-timeout", cfg.StageTimeout, "bound on pre-hook, handler and post-hook; 0 waits forever")
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewLogger builds a JSON or text logger at the given level.
func NewLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// NewHandler wires the demo modules into an HTTP handler. The websocket
// endpoint is /ws and the health check is /up.
func NewHandler(cfg Config, logger *slog.Logger) (http.Handler, error) {
	store := demo.NewStore(demo.User{
		ID:       demo.DefaultUserID,
		Name:     "demo",
		Settings: map[string]float64{"sounds": 50, "music": 50},
	})
	app := demo.New(store, demo.WithLogger(logger))

	rec, err := otelhooks.New(otel.Meter(instrumentationName), otel.Tracer(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("create telemetry hooks: %w", err)
	}

	opts := append(rec.Options(),
		socketdispatch.WithLogger(logger),
		socketdispatch.WithDebug(cfg.Debug),
		socketdispatch.WithStageTimeout(cfg.StageTimeout),
	)
	d := socketdispatch.New(app.Modules(), opts...)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsconn.Handler(d, wsconn.WithLogger(logger)))
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux, nil
}

// Run serves the demo until ctx is done.
func Run(ctx context.Context, cfg Config, logOutput io.Writer) error {
	logger, err := NewLogger(logOutput, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}

	handler, err := NewHandler(cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("socket demo listening", slog.String("addr", cfg.HTTPAddr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	logger.Info("socket demo stopped")
	return nil
}
