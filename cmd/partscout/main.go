package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elabx-org/partscout/internal/aggregate"
	"github.com/elabx-org/partscout/internal/api"
	"github.com/elabx-org/partscout/internal/audit"
	"github.com/elabx-org/partscout/internal/config"
	"github.com/elabx-org/partscout/internal/credential"
	"github.com/elabx-org/partscout/internal/metrics"
	"github.com/elabx-org/partscout/internal/processor"
	"github.com/elabx-org/partscout/internal/provider"
	"github.com/elabx-org/partscout/internal/secretref"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var version = "dev"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(os.Getenv("PARTSCOUT_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Resolve op:// references before anything reads secrets.
	var resolver secretref.Resolver
	var onePassword *secretref.OnePassword
	if cfg.ServiceAccountToken != "" {
		onePassword, err = secretref.NewOnePassword(ctx, cfg.ServiceAccountToken, version)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create 1password client")
		}
		resolver = onePassword
	}
	if err := secretref.ResolveConfig(ctx, resolver, cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to resolve secret references")
	}

	registry, err := processor.Build(cfg.Providers)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid provider registry")
	}
	for _, e := range registry.Entries() {
		d := e.Descriptor
		log.Info().
			Str("provider", d.Name).
			Str("kind", d.Kind).
			Int("priority", d.Priority).
			Bool("enabled", d.Enabled).
			Bool("configured", d.IsConfigured()).
			Msg("provider registered")
	}

	store := credential.NewStore()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		store.SetLoadHook(m.ObserveCredentialLoad)
	}

	var (
		repo      *credential.Repository
		source    provider.LoaderSource
		refresher *credential.Refresher
	)
	if cfg.Credentials.EncryptionKey != "" {
		repo, err = credential.OpenRepository(cfg.Credentials.Path, cfg.Credentials.EncryptionKey)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Credentials.Path).Msg("failed to open credential repository")
		}
		defer repo.Close()
		source = repo
		refresher = credential.NewRefresher(store, repo)
		log.Info().Str("path", cfg.Credentials.Path).Msg("credential repository initialized")
	} else {
		log.Warn().Msg("PARTSCOUT_CREDENTIALS_KEY not set, token-auth providers will fail")
	}

	factory := provider.NewFactory(cfg.Providers, store, source, refresher)

	var observers []aggregate.Observer
	if m != nil {
		observers = append(observers, m)
	}

	var auditor *audit.Logger
	if cfg.Audit.Enabled && cfg.Audit.Path != "" {
		auditor, err = audit.New(cfg.Audit.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Audit.Path).Msg("failed to initialize auditor")
		}
		defer auditor.Close()
		observers = append(observers, auditor)
		go pruneAudit(ctx, auditor, cfg.Audit.RetentionDays)
		log.Info().Str("path", cfg.Audit.Path).Msg("auditor initialized")
	}

	engine := aggregate.New(registry, factory, store, aggregate.Options{
		MaxConcurrency: cfg.Fetch.MaxConcurrency,
		DefaultTimeout: cfg.Fetch.DefaultTimeout,
	}, observers...)

	srv := api.NewServer(cfg, engine, registry)
	if repo != nil {
		srv.SetCredentials(repo, store)
	}
	if auditor != nil {
		srv.SetAuditor(auditor)
	}
	if m != nil {
		srv.SetMetrics(m.Handler())
	}
	if onePassword != nil {
		srv.SetSecretsCheck(onePassword.Healthy)
	}

	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}

func pruneAudit(ctx context.Context, auditor *audit.Logger, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if err := auditor.Prune(retentionDays); err != nil {
			log.Warn().Err(err).Msg("audit prune failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
