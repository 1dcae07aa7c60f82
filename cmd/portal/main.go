package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/wildshoppers/portal/catalog"
	"github.com/wildshoppers/portal/config"
	"github.com/wildshoppers/portal/flow"
	"github.com/wildshoppers/portal/logging"
	"github.com/wildshoppers/portal/profile"
	"github.com/wildshoppers/portal/provider"
	"github.com/wildshoppers/portal/session"
	"github.com/wildshoppers/portal/web"
)

func main() {
	logger := logging.NewZerolog(os.Stdout, "portal")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration: %v", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.Database.DSN)
	if err != nil {
		logger.Error("open database: %v", err)
		os.Exit(1)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	local := session.NewLocalState(db)
	if err := local.Init(ctx); err != nil {
		logger.Error("init client state: %v", err)
		os.Exit(1)
	}

	profiles := profile.New(db)
	if err := profiles.Init(ctx); err != nil {
		logger.Error("init profiles: %v", err)
		os.Exit(1)
	}

	providerOpts := []provider.ClientOption{
		provider.WithClientLogger(logger.Named("provider")),
	}
	if cfg.Provider.JWKSURL != "" {
		verifier, err := provider.NewTokenVerifierJWKS(ctx, cfg.Provider.JWKSURL)
		if err != nil {
			logger.Error("provider JWKS: %v", err)
			os.Exit(1)
		}
		providerOpts = append(providerOpts, provider.WithTokenVerifier(verifier))
	} else if cfg.Provider.JWTSecret != "" {
		providerOpts = append(providerOpts, provider.WithTokenVerifier(
			provider.NewTokenVerifier(cfg.Provider.JWTSecret),
		))
	}

	providerOpts = append(providerOpts, provider.WithTokenKeeper(local))

	prov, err := provider.NewClient(provider.Config{
		ProjectURL: cfg.Provider.ProjectURL,
		AnonKey:    cfg.Provider.AnonKey,
		RedirectTo: cfg.Provider.RedirectTo,
	}, providerOpts...)
	if err != nil {
		logger.Error("provider client: %v", err)
		os.Exit(1)
	}

	store := session.NewStore(
		session.WithPersistence(local),
		session.WithLogger(logger.Named("session")),
	)

	events, cancel := prov.Subscribe()
	listener := flow.NewListener(store, events, cancel,
		flow.WithListenerLogger(logger.Named("listener")),
	)
	listener.Run(ctx)

	// Restore the provider session saved by a previous run before the store
	// asks it for the current identity. A stale or revoked token just means
	// the user signs in again; Initialize clears the leftover row.
	if token, err := local.LoadRefreshToken(ctx); err != nil {
		logger.Error("load persisted refresh token: %v", err)
	} else if token != "" {
		if _, err := prov.RestoreSession(ctx, token); err != nil {
			logger.Info("persisted session no longer valid: %v", err)
		} else if identity, err := local.Load(ctx); err == nil && identity != nil {
			// Seed the store with the last known identity so screens render
			// immediately; Initialize confirms it against the provider and
			// the idempotent set makes the double write a no-op.
			if err := store.SetIdentity(ctx, identity); err != nil {
				logger.Error("seed persisted identity: %v", err)
			}
		}
	}

	store.Initialize(ctx, prov)

	recovery := flow.NewRecovery(store, prov, cfg.Campus.EmailDomain,
		flow.WithRecoveryLogger(logger.Named("recovery")),
	)

	cat, err := catalog.NewClient(cfg.Catalog.BaseURL,
		catalog.WithLogger(logger.Named("catalog")),
		catalog.WithTokenSource(func() string {
			if sess := prov.CurrentSession(); sess != nil {
				return sess.AccessToken
			}
			return ""
		}),
	)
	if err != nil {
		logger.Error("catalog client: %v", err)
		os.Exit(1)
	}

	controller := web.NewController(
		store, recovery, prov, cat, profiles,
		cfg.Campus.EmailDomain, cfg.Campus.PhoneRegion,
		web.WithLogger(logger.Named("web")),
		web.WithDebug(cfg.Debug),
	)

	engine := django.New(cfg.Server.Views, ".html")

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			StrictRouting:     false,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	srv.Router().Use(mflash.New(mflash.ConfigDefault))

	web.RegisterRoutes(srv.Router(), controller)

	srv.Serve(cfg.Server.Address)

	logger.Info("listening on %s", cfg.Server.Address)

	waitExitSignal(ctx)

	recovery.Close()
	listener.Close()
	store.Close()
}

func waitExitSignal(ctx context.Context) {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)

	select {
	case <-ch:
	case <-ctx.Done():
	}
}
