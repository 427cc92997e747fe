// Package bootstrap wires a mirror.Service from configuration. It is shared
// by the HTTP server and the mirrorctl CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	gogithub "github.com/google/go-github/v75/github"
	"github.com/redis/go-redis/v9"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
	ghadapter "github.com/tilsley/s3mirror/apps/server/internal/mirror/adapters/github"
	"github.com/tilsley/s3mirror/apps/server/internal/mirror/adapters/objectstore"
	"github.com/tilsley/s3mirror/apps/server/internal/mirror/credentials"
	"github.com/tilsley/s3mirror/apps/server/internal/mirror/store"
	"github.com/tilsley/s3mirror/apps/server/internal/mirror/store/pgmigrations"
	awsplatform "github.com/tilsley/s3mirror/apps/server/internal/platform/aws"
	"github.com/tilsley/s3mirror/apps/server/internal/platform/config"
	ghplatform "github.com/tilsley/s3mirror/apps/server/internal/platform/github"
	pgplatform "github.com/tilsley/s3mirror/apps/server/internal/platform/postgres"
)

// ErrNoCredentials is returned when no GitHub token source is configured.
var ErrNoCredentials = errors.New("no GitHub credentials configured: set github.token, github.token_ciphertext, github.token_secret_id or the github app settings")

// App is a wired mirror service and the resources it holds open.
type App struct {
	Service *mirror.Service
	Runs    mirror.RunStore

	closers []func()
}

// Close releases database and cache connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// New builds an App from cfg. Postgres and Redis are used when configured;
// otherwise runs and delivery IDs are kept in bounded in-memory caches.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	app := &App{}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	awsCfg := sync.OnceValues(func() (awssdk.Config, error) {
		return awsplatform.LoadConfig(ctx, awsOptions(cfg.Store))
	})

	creds, gh, err := newSource(ctx, cfg.GitHub, awsCfg)
	if err != nil {
		return nil, err
	}

	gateway, err := newGateway(cfg.Store, awsCfg)
	if err != nil {
		return nil, err
	}

	runs, err := app.newRunStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Runs = runs

	guard := app.newDeliveryGuard(cfg)

	source := ghadapter.New(gh, ghadapter.WithLogger(log))
	engine := mirror.NewEngine(source, gateway, mirror.EngineConfig{
		Concurrency: cfg.Sync.Concurrency,
		KeyPrefix:   cfg.Store.Prefix,
	}, log)
	opts := []mirror.ServiceOption{
		mirror.WithRunStore(runs),
		mirror.WithDeliveryGuard(guard),
	}
	if cfg.Sync.Archive {
		opts = append(opts, mirror.WithArchive(source))
	}
	app.Service = mirror.NewService(source, engine, creds, log, opts...)

	log.Info("mirror wired",
		"backend", cfg.Store.Backend,
		"bucket", cfg.Store.Bucket,
		"githubApp", cfg.GitHub.UsesApp(),
		"postgres", cfg.Postgres.URL != "",
		"redis", cfg.Redis.Addr != "",
		"archive", cfg.Sync.Archive,
	)
	ok = true
	return app, nil
}

// newSource picks the credential provider and builds the GitHub client that
// authenticates with it.
func newSource(ctx context.Context, cfg config.GitHubConfig, awsCfg func() (awssdk.Config, error)) (mirror.CredentialProvider, *gogithub.Client, error) {
	if cfg.UsesApp() {
		tr, err := ghplatform.NewAppTransport(cfg.AppID, cfg.InstallationID, cfg.PrivateKeyPath, cfg.APIURL)
		if err != nil {
			return nil, nil, err
		}
		return credentials.NewInstallation(tr), ghplatform.NewAppClient(tr, cfg.APIURL), nil
	}

	var provider mirror.CredentialProvider
	switch {
	case cfg.Token != "":
		provider = credentials.Static(cfg.Token)
	case cfg.TokenCiphertext != "":
		ac, err := awsCfg()
		if err != nil {
			return nil, nil, err
		}
		provider = credentials.NewKMS(awsplatform.NewKMS(ac), cfg.TokenCiphertext)
	case cfg.TokenSecretID != "":
		ac, err := awsCfg()
		if err != nil {
			return nil, nil, err
		}
		provider = credentials.NewSecretsManager(awsplatform.NewSecretsManager(ac), cfg.TokenSecretID, cfg.TokenSecretKey)
	default:
		return nil, nil, ErrNoCredentials
	}

	cached := credentials.NewCached(provider)
	return cached, ghplatform.NewTokenClient(ctx, credentials.TokenSource(ctx, cached), cfg.APIURL), nil
}

func newGateway(cfg config.StoreConfig, awsCfg func() (awssdk.Config, error)) (mirror.StorageGateway, error) {
	switch cfg.Backend {
	case config.BackendS3:
		ac, err := awsCfg()
		if err != nil {
			return nil, err
		}
		return objectstore.NewS3Gateway(awsplatform.NewS3(ac, awsOptions(cfg)), cfg.Bucket), nil
	case config.BackendMinio:
		mc, err := awsplatform.NewMinio(awsOptions(cfg))
		if err != nil {
			return nil, err
		}
		return objectstore.NewMinioGateway(mc, cfg.Bucket), nil
	case config.BackendFS:
		return objectstore.NewDirGateway(cfg.Root), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func (a *App) newRunStore(ctx context.Context, cfg *config.Config) (mirror.RunStore, error) {
	if cfg.Postgres.URL != "" {
		pool, err := pgplatform.New(ctx, cfg.Postgres.URL, pgmigrations.FS, pgplatform.Options{PingTimeout: 10 * time.Second})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		return store.NewPGRunStore(pool), nil
	}
	size := cfg.Runs.MemorySize
	if size <= 0 {
		size = store.DefaultMemoryRuns
	}
	return store.NewMemoryRunStore(size)
}

func (a *App) newDeliveryGuard(cfg *config.Config) mirror.DeliveryGuard {
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		return store.NewRedisDeliveryGuard(rdb, cfg.Redis.DeliveryTTL)
	}
	return store.NewMemoryDeliveryGuard(cfg.Runs.DeliveryMemory, cfg.Redis.DeliveryTTL)
}

func awsOptions(cfg config.StoreConfig) awsplatform.Options {
	return awsplatform.Options{
		Region:    cfg.Region,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Endpoint:  cfg.Endpoint,
		UseSSL:    cfg.UseSSL,
	}
}
