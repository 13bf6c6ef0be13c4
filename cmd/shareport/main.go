// shareport is a self-hosted file sharing service for small teams.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shareport/shareport/internal/audit"
	"github.com/shareport/shareport/internal/auth"
	"github.com/shareport/shareport/internal/catalog"
	"github.com/shareport/shareport/internal/config"
	"github.com/shareport/shareport/internal/gateway"
	"github.com/shareport/shareport/internal/guardian"
	"github.com/shareport/shareport/internal/persist"
	"github.com/shareport/shareport/internal/reconcile"
	"github.com/shareport/shareport/internal/server"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "shareport",
		Short: "Shareport - team file sharing over a local disk or WebDAV store",
		Long: `Shareport serves a shared file catalog backed by a local directory or a
WebDAV share (e.g. NextCloud). Files, user accounts and audit logs live as
plain documents in the store; the catalog reconciles itself against the
store's actual contents.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the shareport server",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("shareport %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Build Time: %s\n", BuildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, errors.New("a config file is required (--config)")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newStoreClient selects the gateway backend from configuration.
func newStoreClient(cfg *config.Config) (gateway.Client, error) {
	switch cfg.Store.Backend {
	case config.BackendLocal:
		if err := os.MkdirAll(cfg.Store.Local.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		return gateway.NewBillyClient(osfs.New(cfg.Store.Local.Dir)), nil
	case config.BackendWebDAV:
		return gateway.NewWebDAVClient(
			cfg.Store.WebDAV.URL,
			cfg.Store.WebDAV.Username,
			cfg.Store.WebDAV.Password,
			cfg.StoreTimeout(),
		), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	setupLogging()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := newStoreClient(cfg)
	if err != nil {
		return err
	}
	gw := gateway.New(client, cfg.StoreTimeout(), log.Logger)
	layout := catalog.NewLayout(cfg.Store.Base)
	codec := catalog.NewCodec(gw, layout, log.Logger)
	store := persist.New(gw, persist.Options{
		MaxAttempts: cfg.Persistence.MaxAttempts,
		BaseDelay:   cfg.PersistBaseDelay(),
		VerifyDelay: cfg.PersistVerifyDelay(),
		KeepBackups: cfg.Persistence.KeepBackups,
	}, log.Logger)

	adminHash, err := auth.HashPassword(cfg.Auth.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	g := guardian.New(adminHash, log.Logger)

	recorder := audit.NewRecorder(log.Logger, store, layout.LogsDir(), layout.LogsBackupPath)
	facade := catalog.NewFacade(gw, codec, store, g, recorder, log.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := facade.Load(ctx); err != nil {
		return fmt.Errorf("load account state: %w", err)
	}

	reconciler := reconcile.New(gw, codec, facade, cfg.ReconcileInterval(), log.Logger)
	if _, err := reconciler.Run(ctx); err != nil {
		// The server still starts; the catalog fills in once the store
		// becomes reachable.
		log.Warn().Err(err).Msg("Initial reconciliation failed")
	}
	reconciler.Start(ctx)
	defer reconciler.Stop()

	recorder.Start(ctx, cfg.AuditFlushInterval())

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.TokenTTL())
	srv := server.NewServer(facade, reconciler, tokens, recorder, cfg.MaxUpload.Bytes(), log.Logger)
	srv.SetVersion(Version)
	srv.StartEventPump(ctx)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Listen).Str("backend", cfg.Store.Backend).
			Str("version", Version).Msg("Shareport server started")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown did not complete cleanly")
	}
	if err := recorder.ArchiveLocal(cfg.Audit.ArchiveDir, cfg.Audit.ArchiveKeep); err != nil {
		log.Warn().Err(err).Msg("Local audit archive failed")
	}
	return nil
}
