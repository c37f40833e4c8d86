// Package main is the entry point for the avaclient command line tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/avaclient/internal/client"
	"github.com/vyrodovalexey/avaclient/internal/config"
	"github.com/vyrodovalexey/avaclient/internal/observability/logging"
	"github.com/vyrodovalexey/avaclient/internal/transport/tlsconn"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	method      string
	requestPath string
	tlsBackend  string
	logLevel    string
	logFormat   string
	watch       bool
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(flags.configPath, logger)
	c := buildClient(cfg, flags, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.watch {
		if err := runWatch(ctx, c, flags, logger); err != nil {
			logger.Fatal("watch mode failed", zap.Error(err))
		}
		return
	}

	if err := run(ctx, c, flags); err != nil {
		logger.Fatal("request failed", zap.Error(err))
	}
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AVACLIENT_CONFIG_PATH", "configs/client.yaml"),
		"Path to configuration file")
	method := flag.String("method", http.MethodGet, "HTTP method")
	requestPath := flag.String("path", "/", "Request path, resolved against the configured server")
	tlsBackend := flag.String("tls-backend", getEnvOrDefault("AVACLIENT_TLS_BACKEND", ""),
		"TLS connector backend (native, manual-verify, rootcerts)")
	logLevel := flag.String("log-level", getEnvOrDefault("AVACLIENT_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("AVACLIENT_LOG_FORMAT", "console"),
		"Log format (json, console)")
	watch := flag.Bool("watch", false,
		"Watch the configuration file and re-issue the request with a rebuilt client on change")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		method:      strings.ToUpper(*method),
		requestPath: *requestPath,
		tlsBackend:  *tlsBackend,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		watch:       *watch,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("avaclient version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger. Logs go to stderr so the response body
// on stdout stays clean.
func initLogger(flags cliFlags) *zap.Logger {
	logger, err := logging.NewLogger(&logging.Config{
		Level:  logging.Level(flags.logLevel),
		Format: logging.Format(flags.logFormat),
		Output: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// loadConfig loads the client configuration.
func loadConfig(configPath string, logger *zap.Logger) *config.Config {
	logger.Info("starting avaclient",
		zap.String("version", version),
		zap.String("config", configPath),
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	return cfg
}

// buildClient constructs the client from configuration and flags, exiting
// on failure.
func buildClient(cfg *config.Config, flags cliFlags, logger *zap.Logger) *client.Client {
	c, err := newClient(cfg, flags, logger)
	if err != nil {
		logger.Fatal("failed to build client", zap.Error(err))
	}
	return c
}

// newClient constructs the client from configuration and flags.
func newClient(cfg *config.Config, flags cliFlags, logger *zap.Logger) (*client.Client, error) {
	opts := []client.Option{client.WithLogger(logger)}

	if flags.tlsBackend != "" {
		backend, err := backendByName(flags.tlsBackend)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithBackend(backend))
	}

	c, err := client.New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	logger.Info("client ready",
		zap.String("server", c.BaseURL()),
		zap.String("authMode", c.AuthKind()),
		zap.String("tlsBackend", c.BackendName()),
	)
	return c, nil
}

// backendByName resolves a TLS backend by its name.
func backendByName(name string) (tlsconn.Backend, error) {
	for _, b := range []tlsconn.Backend{
		tlsconn.NativeBackend{},
		tlsconn.ManualVerifyBackend{},
		tlsconn.RootCertsBackend{},
	} {
		if b.Name() == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("unknown TLS backend %q", name)
}

// runWatch keeps the client in sync with the configuration file: the request
// is issued once up front and again with a freshly built client after every
// successful reload. A client is immutable, so a config change always means a
// replacement, never a mutation.
func runWatch(ctx context.Context, c *client.Client, flags cliFlags, logger *zap.Logger) error {
	issue := func(c *client.Client) {
		if err := run(ctx, c, flags); err != nil {
			logger.Error("request failed", zap.Error(err))
		}
	}
	issue(c)

	w, err := config.NewWatcher(flags.configPath,
		func(cfg *config.Config) {
			next, err := newClient(cfg, flags, logger)
			if err != nil {
				logger.Error("failed to rebuild client, keeping previous one", zap.Error(err))
				return
			}
			issue(next)
		},
		config.WithWatcherLogger(logger),
		config.WithErrorCallback(func(err error) {
			logger.Error("configuration reload failed", zap.Error(err))
		}),
	)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	<-ctx.Done()
	return nil
}

// run issues the request and writes the response body to stdout.
func run(ctx context.Context, c *client.Client, flags cliFlags) error {
	var body io.Reader
	if flags.method == http.MethodPost || flags.method == http.MethodPut || flags.method == http.MethodPatch {
		body = os.Stdin
	}

	req, err := http.NewRequestWithContext(ctx, flags.method, flags.requestPath, body)
	if err != nil {
		return err
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
