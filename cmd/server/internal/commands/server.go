package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/rentdesk/internal/auth"
	"github.com/wolfeidau/rentdesk/internal/logger"
	"github.com/wolfeidau/rentdesk/internal/onboarding"
	"github.com/wolfeidau/rentdesk/internal/provision"
	"github.com/wolfeidau/rentdesk/internal/server"
	"github.com/wolfeidau/rentdesk/internal/telemetry"
	"github.com/wolfeidau/rentdesk/internal/worker"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"RENTDESK_LISTEN"`
	Cert   string `help:"path to TLS cert file; plain HTTP when empty" default:"" env:"RENTDESK_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"RENTDESK_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"RENTDESK_CORS_ORIGINS"`

	// Telemetry
	Tracing     bool    `help:"enable tracing and metrics export" default:"false" env:"RENTDESK_TRACING"`
	SampleRatio float64 `help:"fraction of root traces sampled" default:"1.0" env:"RENTDESK_TRACE_SAMPLE_RATIO"`

	// Onboarding workflow
	Onboarding OnboardingFlags `embed:"" prefix:"onboarding-"`

	// Access tokens
	JWT JWTFlags `embed:"" prefix:"jwt-"`

	// Store configuration
	Store StoreFlags `embed:""`
}

type OnboardingFlags struct {
	SessionTTL   time.Duration `help:"lifetime of an onboarding session" default:"24h" env:"RENTDESK_ONBOARDING_SESSION_TTL"`
	AbandonAfter time.Duration `help:"age after which sessions without owner details are abandoned" default:"1h" env:"RENTDESK_ONBOARDING_ABANDON_AFTER"`
	ReapInterval time.Duration `help:"interval between stale session sweeps; 0 disables the background reaper" default:"5m" env:"RENTDESK_ONBOARDING_REAP_INTERVAL"`
}

func (f *OnboardingFlags) Validate() error {
	if f.SessionTTL <= 0 {
		return errors.New("--onboarding-session-ttl must be positive")
	}
	if f.AbandonAfter <= 0 {
		return errors.New("--onboarding-abandon-after must be positive")
	}
	if f.ReapInterval < 0 {
		return errors.New("--onboarding-reap-interval must not be negative")
	}
	return nil
}

type JWTFlags struct {
	SigningKey string        `help:"path to PEM encoded ES256 private key; an ephemeral key is generated when empty" env:"RENTDESK_JWT_SIGNING_KEY"`
	Issuer     string        `help:"token issuer" default:"rentdesk" env:"RENTDESK_JWT_ISSUER"`
	TTL        time.Duration `help:"access token lifetime" default:"1h" env:"RENTDESK_JWT_TTL"`
}

func (f *JWTFlags) tokenIssuer() (*auth.TokenIssuer, error) {
	if f.SigningKey == "" {
		key, err := auth.GenerateSigningKey()
		if err != nil {
			return nil, err
		}
		return auth.NewTokenIssuer(key, f.Issuer, f.TTL)
	}

	key, err := auth.LoadSigningKey(f.SigningKey)
	if err != nil {
		return nil, err
	}
	return auth.NewTokenIssuer(key, f.Issuer, f.TTL)
}

func (c *ServerCmd) Validate() error {
	if (c.Cert == "") != (c.Key == "") {
		return errors.New("--cert and --key must be provided together")
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return errors.New("--sample-ratio must be between 0 and 1")
	}
	return c.Onboarding.Validate()
}

func (c *ServerCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	logger.Install(log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Float64("sample_ratio", c.SampleRatio).Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "rentdesk-api",
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	backend, err := c.Store.openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	issuer, err := c.JWT.tokenIssuer()
	if err != nil {
		return fmt.Errorf("failed to configure token issuer: %w", err)
	}
	if c.JWT.SigningKey == "" {
		log.Warn().Msg("No --jwt-signing-key configured; access tokens will not survive a restart")
	}

	orchestrator := newOrchestrator(backend, c.Onboarding.SessionTTL, onboarding.WithTokenIssuer(issuer))

	if c.Onboarding.ReapInterval > 0 {
		reaper := worker.NewReaper(worker.ReaperConfig{
			Interval:     c.Onboarding.ReapInterval,
			AbandonAfter: c.Onboarding.AbandonAfter,
		}, orchestrator)
		if err := reaper.Start(log.WithContext(ctx)); err != nil {
			return err
		}
		defer reaper.Stop()
	}

	srv := server.NewServer(server.Config{
		CORSOrigins:  c.CORSOrigins,
		AbandonAfter: c.Onboarding.AbandonAfter,
		Tracing:      c.Tracing,
	}, orchestrator, backend.plans, auth.NewJWTVerifier(issuer.PublicKey(), issuer.Issuer()))

	httpServer := configureHTTPServer(c.Listen, srv.Handler(log))

	return serve(ctx, log, httpServer, c.Cert, c.Key)
}

// serve runs httpServer until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, log zerolog.Logger, httpServer *http.Server, cert, key string) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Bool("tls", cert != "").Msg("Starting HTTP server")
		if cert != "" {
			errCh <- httpServer.ListenAndServeTLS(cert, key)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return nil
}

func newOrchestrator(b *backend, sessionTTL time.Duration, opts ...onboarding.Option) *onboarding.Orchestrator {
	return onboarding.NewOrchestrator(
		onboarding.Config{SessionTTL: sessionTTL},
		b.sessions,
		provision.NewIdentityProvisioner(b.users),
		provision.NewOrganizationProvisioner(b.organizations, b.agencies),
		provision.NewSubscriptionProvisioner(b.plans, b.subscriptions),
		opts...,
	)
}
