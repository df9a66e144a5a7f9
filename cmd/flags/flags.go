// Package flags defines CLI flags shared by the server and admin
// commands.
package flags

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/common"
)

// Server flags.
var (
	ListenAddr = &cli.StringFlag{
		Name:    "listen-addr",
		EnvVars: []string{"LISTEN_ADDR"},
		Value:   "127.0.0.1:8080",
		Usage:   "address for the API server to listen on",
	}

	MetricsAddr = &cli.StringFlag{
		Name:    "metrics-addr",
		EnvVars: []string{"METRICS_ADDR"},
		Value:   "127.0.0.1:8090",
		Usage:   "address for the Prometheus metrics server, empty to disable",
	}

	EnablePprof = &cli.BoolFlag{
		Name:    "pprof",
		EnvVars: []string{"ENABLE_PPROF"},
		Value:   false,
		Usage:   "enable pprof debug endpoints",
	}

	DrainSeconds = &cli.IntFlag{
		Name:    "drain-seconds",
		EnvVars: []string{"DRAIN_SECONDS"},
		Value:   45,
		Usage:   "seconds to wait in drain HTTP request",
	}

	Config = &cli.StringFlag{
		Name:    "config",
		EnvVars: []string{"CONFIG_FILE"},
		Usage:   "path to a YAML configuration file",
	}
)

// Logging flags.
var (
	LogJSON = &cli.BoolFlag{
		Name:    "log-json",
		EnvVars: []string{"LOG_JSON"},
		Value:   false,
		Usage:   "log in JSON format",
	}

	LogDebug = &cli.BoolFlag{
		Name:    "log-debug",
		EnvVars: []string{"LOG_DEBUG"},
		Value:   false,
		Usage:   "log debug messages",
	}

	LogUID = &cli.BoolFlag{
		Name:    "log-uid",
		EnvVars: []string{"LOG_UID"},
		Value:   false,
		Usage:   "generate a uuid and add to all log messages",
	}
)

// Admin client flags.
var (
	ServerURL = &cli.StringFlag{
		Name:    "server-url",
		EnvVars: []string{"SERVER_URL"},
		Value:   "http://127.0.0.1:8080",
		Usage:   "base URL of the API server",
	}
)

// LoggingFlags are the flags every command carries.
var LoggingFlags = []cli.Flag{LogJSON, LogDebug, LogUID}

// SetupLogger builds the service logger from CLI context.
func SetupLogger(cCtx *cli.Context, service string) *slog.Logger {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebug.Name),
		JSON:    cCtx.Bool(LogJSON.Name),
		Service: service,
		Version: common.Version,
	})
	if cCtx.Bool(LogUID.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}
