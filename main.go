// Command strata runs the headless CMS backend: it loads configuration,
// migrates the database schema, wires the registries and services together
// and serves the HTTP API until interrupted.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"strata.evalgo.org/api"
	"strata.evalgo.org/auth"
	"strata.evalgo.org/blueprint"
	"strata.evalgo.org/bus"
	"strata.evalgo.org/common"
	"strata.evalgo.org/config"
	"strata.evalgo.org/content"
	"strata.evalgo.org/db"
	"strata.evalgo.org/fields"
	"strata.evalgo.org/hooks"
	"strata.evalgo.org/media"
	"strata.evalgo.org/migrate"
	"strata.evalgo.org/plugin"
	"strata.evalgo.org/webhook"
)

// engineVersion is the host version plugin engine constraints are checked
// against.
const engineVersion = "1.0.0"

// afterEvents are the committed content events bridged to webhooks and the
// AMQP bus.
var afterEvents = []string{
	content.EventAfterCreate,
	content.EventAfterUpdate,
	content.EventAfterDelete,
	content.EventAfterPublish,
	content.EventAfterUnpublish,
}

func main() {
	cfgFile := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*cfgFile); err != nil {
		common.Logger.Fatal(err)
	}
}

func run(cfgFile string) error {
	cfg, err := config.LoadConfig("STRATA", cfgFile)
	if err != nil {
		return err
	}
	common.ConfigureLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger := common.Logger

	store, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	migrations := store.Migrations()
	if err := migrations.EnsureMigrationTable(); err != nil {
		return err
	}
	runner := migrate.NewRunner(migrations)
	result, err := runner.Migrate(db.CoreMigrations(), migrate.Options{Transactional: true, StopOnError: true})
	if err != nil {
		return err
	}
	if len(result.Applied) > 0 {
		logger.WithField("count", len(result.Applied)).Info("applied schema migrations")
	}

	fieldRegistry := fields.NewRegistry()
	hookRegistry := hooks.NewRegistry()
	engine := blueprint.NewEngine(fieldRegistry)

	var cache content.Cache
	if cfg.Redis.Enabled {
		redisCache, err := db.NewContentCache(cfg.Redis.URL, cfg.Redis.TTL)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		cache = redisCache
		logger.Info("content cache enabled")
	}

	blueprints := blueprint.NewService(store, engine, hookRegistry)
	contents := content.NewService(store, engine, hookRegistry, cache)

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration, cfg.Auth.RefreshExpiration)
	authSvc := auth.NewService(store, tokens)
	if err := bootstrapAdmin(authSvc); err != nil {
		return err
	}

	registries := map[string]interface{}{
		"blueprints": blueprints,
		"content":    contents,
	}

	if cfg.Media.Enabled {
		ctx := context.Background()
		client, err := media.NewS3Client(ctx, cfg.Media)
		if err != nil {
			return err
		}
		mediaStore := media.NewStore(client, cfg.Media.Bucket)
		if err := mediaStore.EnsureBucket(ctx); err != nil {
			return err
		}
		registries["media"] = mediaStore
		logger.WithField("bucket", cfg.Media.Bucket).Info("media store enabled")
	}

	if cfg.Bus.Enabled {
		publisher, err := bus.NewRabbitMQPublisher(cfg.Bus.URL, cfg.Bus.Queue)
		if err != nil {
			return err
		}
		defer publisher.Close()
		bus.Bridge(hookRegistry, publisher, afterEvents)
		logger.WithField("queue", cfg.Bus.Queue).Info("event bus enabled")
	}

	journal, err := webhook.OpenJournal(cfg.Webhook.JournalPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	deliveries := webhook.NewEngine(store, journal, hookRegistry, webhook.Config{
		MaxRetries:     cfg.Webhook.MaxRetries,
		InitialDelay:   cfg.Webhook.InitialDelay,
		Multiplier:     cfg.Webhook.Multiplier,
		RequestTimeout: cfg.Webhook.RequestTimeout,
		Workers:        cfg.Webhook.Workers,
	})
	if err := deliveries.Start(); err != nil {
		return err
	}
	defer deliveries.Stop()
	deliveries.RegisterContentHooks(hookRegistry, afterEvents)

	manager, err := plugin.NewManager(hookRegistry, fieldRegistry, engineVersion, registries)
	if err != nil {
		return err
	}
	manifests, err := plugin.LoadManifestDir(cfg.Plugins.ManifestDir)
	if err != nil {
		return err
	}
	for _, m := range manifests {
		if err := manager.Load(&plugin.Plugin{Manifest: *m}, nil); err != nil {
			logger.WithField("plugin", m.ID).Warn("plugin load failed: ", err)
		}
	}

	server := api.NewServer(cfg.Server, blueprints, contents, authSvc, store)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("shutting down")
	}

	return server.Shutdown()
}

// bootstrapAdmin creates the initial admin account from the environment when
// the user table is empty, so a fresh install is reachable.
func bootstrapAdmin(authSvc *auth.Service) error {
	users, err := authSvc.ListUsers(context.Background())
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	email := os.Getenv("STRATA_ADMIN_EMAIL")
	password := os.Getenv("STRATA_ADMIN_PASSWORD")
	if email == "" || password == "" {
		common.Logger.Warn("no users exist and STRATA_ADMIN_EMAIL/STRATA_ADMIN_PASSWORD are unset; API logins will fail")
		return nil
	}

	_, err = authSvc.CreateUser(context.Background(), auth.CreateUserRequest{
		Email:    email,
		Password: password,
		Role:     auth.RoleAdmin,
	})
	if err != nil {
		return err
	}
	common.Logger.WithField("email", email).Info("bootstrap admin created")
	return nil
}
