// Command peerhub serves the hub HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"peerhub/internal/adapters/httpapi"
	"peerhub/internal/auth"
	"peerhub/internal/blob"
	"peerhub/internal/config"
	"peerhub/internal/core"
	"peerhub/internal/docstore"
	"peerhub/internal/emailer"
	"peerhub/internal/logging"
	"peerhub/internal/metrics"
	"peerhub/internal/passport"
	"peerhub/internal/symbolize"
)

// version is set at build time.
var version = "dev"

var exitFunc = os.Exit

const readHeaderTimeout = 10 * time.Second

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("peerhub", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var envFile string
	var showVersion bool
	fs.StringVar(&envFile, "env", ".env", "path to an env file")
	fs.BoolVar(&showVersion, "version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if showVersion {
		_, _ = fmt.Fprintln(stdout, version)
		return 0
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "configuration: %v\n", err)
		return 2
	}
	logger, err := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "logging: %v\n", err)
		return 2
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("peerhub stopped")
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	store, err := docstore.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing document store")
		}
	}()
	reports, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open report archive: %w", err)
	}

	var issuer core.PassportIssuer
	binary, err := passport.Discover(ctx, passport.SearchPath(cfg.MemoDirs...), logger)
	if err != nil {
		logger.Warn().Err(err).Msg("passports for email invitations will not be issued")
	} else {
		issuer = passport.NewIssuer(binary, passport.DefaultTimeout, logger)
	}

	settings := core.DefaultSettings()
	settings.KeepDeletedUsers = cfg.KeepDeletedUsers
	settings.DelegateUser = cfg.DelegateUser
	settings.PairingTTL = cfg.PairingTTL
	if cfg.CrashRecipient != "" {
		settings.CrashRecipient = cfg.CrashRecipient
	}
	if cfg.PassportErrorRecipient != "" {
		settings.PassportErrorRecipient = cfg.PassportErrorRecipient
	}
	if cfg.SalesRecipient != "" {
		settings.SalesRecipient = cfg.SalesRecipient
	}

	svc, err := core.NewService(ctx, core.Dependencies{
		Store:      store,
		Mailer:     emailer.NewLogging(logger, cfg.Templates),
		Issuer:     issuer,
		Symbolizer: symbolize.New(cfg.SymbolizerBinary, cfg.SymbolsDir, 0, logger),
		Reports:    reports,
		Metrics:    metrics.Recorder{},
		Logger:     logger,
	}, settings)
	if err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	server := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: httpapi.New(httpapi.Options{
			Service:       svc,
			Authenticator: auth.New(cfg.AuthWindow, nil),
			Logger:        logger,
			Version:       version,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("version", version).Msg("listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
