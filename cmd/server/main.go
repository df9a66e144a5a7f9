// The server command runs the biometric authentication and federated
// aggregation API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/bioauth"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/cmd/flags"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/common"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/cryptoutils"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/federation"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/httpserver"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/metrics"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/storage"
	"github.com/The-Web-Dev-Forge/federated-biometric-backend/store"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	app := &cli.App{
		Name:  "biometric-server",
		Usage: "Privacy-preserving biometric authentication service",
		Flags: append([]cli.Flag{
			flags.ListenAddr,
			flags.MetricsAddr,
			flags.EnablePprof,
			flags.DrainSeconds,
			flags.Config,
		}, flags.LoggingFlags...),
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(cCtx *cli.Context) error {
	log := flags.SetupLogger(cCtx, common.PackageName)
	ctx := context.Background()

	cfg, err := LoadConfig(cCtx.String(flags.Config.Name))
	if err != nil {
		return err
	}

	key, err := resolveKey(ctx, cfg)
	if err != nil {
		// Refusing to start without a key beats silently storing
		// plaintext-equivalent data.
		return fmt.Errorf("no usable encryption key: %w", err)
	}
	codec, err := cryptoutils.NewEmbeddingCodec(key, cfg.Biometric.EmbeddingDim)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	var snapshots interfaces.SnapshotBackend
	if len(cfg.SnapshotBackends) > 0 {
		locs := make([]interfaces.SnapshotLocation, 0, len(cfg.SnapshotBackends))
		for _, uri := range cfg.SnapshotBackends {
			loc, err := interfaces.NewSnapshotLocation(uri)
			if err != nil {
				return err
			}
			locs = append(locs, loc)
		}
		factory := storage.NewSnapshotBackendFactory(log)
		snapshots, err = factory.CreateMultiBackend(locs)
		if err != nil {
			return fmt.Errorf("creating snapshot backends: %w", err)
		}
	}

	core := metrics.NewCore(prometheus.DefaultRegisterer)
	auth := bioauth.NewService(st, codec, bioauth.Config{
		Threshold: cfg.Biometric.Threshold,
		Log:       log,
		Metrics:   core,
	})
	fed := federation.NewService(st, federation.Config{
		MinParticipants: cfg.Federation.MinParticipants,
		Log:             log,
		Metrics:         core,
		Snapshots:       snapshots,
	})
	if err := fed.EnsureInitialVersion(ctx); err != nil {
		return err
	}

	handler := httpserver.NewHandler(auth, fed, st, log)
	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String(flags.ListenAddr.Name),
		MetricsAddr:              cCtx.String(flags.MetricsAddr.Name),
		EnablePprof:              cCtx.Bool(flags.EnablePprof.Name),
		Log:                      log,
		DrainDuration:            time.Duration(cCtx.Int(flags.DrainSeconds.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              10 * time.Second,
		WriteTimeout:             30 * time.Second,
	}, handler)
	if err != nil {
		return err
	}

	srv.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	log.Info("Shutting down")
	srv.Shutdown()
	return nil
}

// resolveKey picks the first configured key source, with the
// EMBEDDING_KEY environment variable taking precedence over the file.
func resolveKey(ctx context.Context, cfg *ServerConfig) ([]byte, error) {
	if env := os.Getenv("EMBEDDING_KEY"); env != "" {
		return cryptoutils.KeyFromHex(env)
	}
	if cfg.Crypto.KeyHex != "" {
		return cryptoutils.KeyFromHex(cfg.Crypto.KeyHex)
	}
	if cfg.Crypto.KeyFile != "" {
		return cryptoutils.KeyFromFile(cfg.Crypto.KeyFile)
	}
	if cfg.Crypto.Vault.Address != "" {
		source := cryptoutils.VaultKeySource{
			Address: cfg.Crypto.Vault.Address,
			Token:   cfg.Crypto.Vault.Token,
			Mount:   cfg.Crypto.Vault.Mount,
			Path:    cfg.Crypto.Vault.Path,
			Field:   cfg.Crypto.Vault.Field,
		}
		return source.Fetch(ctx)
	}
	if cfg.Crypto.Passphrase != "" {
		return cryptoutils.KeyFromPassphrase(cfg.Crypto.Passphrase, common.PackageName), nil
	}
	return nil, interfaces.ErrMissingKey
}

func openStore(ctx context.Context, cfg *ServerConfig, log *slog.Logger) (interfaces.Store, error) {
	if cfg.Database.DSN == "" {
		log.Warn("No database DSN configured, using in-memory store")
		return store.NewMemoryStore(), nil
	}
	return store.NewPostgresStore(ctx, store.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
}
