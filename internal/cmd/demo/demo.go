// Package demo wires the sample application into a runnable server.
package demo

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/loomwork/loom/internal/httpx"
	"github.com/loomwork/loom/internal/platform/otel"
	"github.com/loomwork/loom/internal/platform/timeouts"
	"github.com/loomwork/loom/session"
	"github.com/loomwork/loom/session/sqlite"
	"github.com/loomwork/loom/web"
)

const defaultHTTPAddr = "localhost:8080"

// Config holds the demo command configuration.
type Config struct {
	HTTPAddr      string
	StoragePath   string
	SigningKey    string
	Configuration string
	SourceFolder  string
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config, with environment fallbacks.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		HTTPAddr:     envOrDefault(lookup, "LOOM_DEMO_HTTP_ADDR", defaultHTTPAddr),
		StoragePath:  envOrDefault(lookup, "LOOM_DEMO_STORAGE_PATH", ""),
		SigningKey:   envOrDefault(lookup, "LOOM_SESSION_SIGNING_KEY", ""),
		SourceFolder: envOrDefault(lookup, "LOOM_DEMO_SOURCE_FOLDER", ""),
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "SQLite session database path (empty: in-memory sessions)")
	fs.StringVar(&cfg.SigningKey, "signing-key", cfg.SigningKey, "hex session signing key (empty: ephemeral per-process key)")
	fs.StringVar(&cfg.Configuration, "configuration", cfg.Configuration, "configuration mode init parameter (development or deployment)")
	fs.StringVar(&cfg.SourceFolder, "source-folder", cfg.SourceFolder, "comma-separated resource folders, watched in development")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the demo server and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(cfg.HTTPAddr)
	if httpAddr == "" {
		return errors.New("http address is required")
	}

	otelShutdown, err := otel.Setup(ctx, "loom-demo")
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			log.Printf("shutdown telemetry: %v", err)
		}
	}()

	opts, err := applicationOptions(cfg)
	if err != nil {
		return err
	}
	app, err := newApplication(opts...)
	if err != nil {
		return fmt.Errorf("build demo application: %w", err)
	}

	filter, err := web.NewFilter(web.FilterConfig{
		Name:       "demo",
		InitParams: filterParams(cfg),
	}, app)
	if err != nil {
		return fmt.Errorf("init filter: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := filter.Close(closeCtx); err != nil {
			log.Printf("close filter: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/healthz", httpx.Chain(healthHandler(), httpx.RequireMethod(http.MethodGet)))
	mux.Handle("/", filter)

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	serveErr := make(chan error, 1)
	log.Printf("demo listening on %s", httpAddr)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// applicationOptions maps config to application options: a persistent session
// store when a storage path is set, and a fixed signing key when provided.
func applicationOptions(cfg Config) ([]web.Option, error) {
	var opts []web.Option
	if path := strings.TrimSpace(cfg.StoragePath); path != "" {
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open session storage: %w", err)
		}
		opts = append(opts, web.WithSessionStore(store))
	}
	if key := strings.TrimSpace(cfg.SigningKey); key != "" {
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("decode signing key: %w", err)
		}
		opts = append(opts, web.WithSessionCookie(session.CookieConfig{SigningKey: decoded}))
	}
	return opts, nil
}

func filterParams(cfg Config) map[string]string {
	params := make(map[string]string)
	if mode := strings.TrimSpace(cfg.Configuration); mode != "" {
		params[web.ConfigurationParam] = mode
	}
	if folders := strings.TrimSpace(cfg.SourceFolder); folders != "" {
		params[web.SourceFolderParam] = folders
	}
	return params
}

func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
}

func envOrDefault(lookup EnvLookup, key, fallback string) string {
	if lookup == nil {
		return fallback
	}
	if value, ok := lookup(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
