package app

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/sirupsen/logrus"

	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter"
	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter/dropbox"
	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter/googledrive"
	"github.com/n3m01726/cloudcaddy-sub000/internal/adapter/memory"
	"github.com/n3m01726/cloudcaddy-sub000/internal/auth"
	"github.com/n3m01726/cloudcaddy-sub000/internal/cache"
	"github.com/n3m01726/cloudcaddy-sub000/internal/config"
	"github.com/n3m01726/cloudcaddy-sub000/internal/crypto"
	"github.com/n3m01726/cloudcaddy-sub000/internal/handler"
	"github.com/n3m01726/cloudcaddy-sub000/internal/preview"
	"github.com/n3m01726/cloudcaddy-sub000/internal/secret"
	"github.com/n3m01726/cloudcaddy-sub000/internal/service"
	"github.com/n3m01726/cloudcaddy-sub000/internal/store"
)

const devJWTSecret = "default-dev-secret"

// App holds the dependencies for the Lambda function and the local server.
type App struct {
	cfg          config.Config
	log          logrus.FieldLogger
	originSecret string

	fileHandler         *handler.FileHandler
	batchHandler        *handler.BatchHandler
	notificationHandler *handler.NotificationHandler
	accountHandler      *handler.AccountHandler
	demoHandler         *handler.DemoHandler // DEV_MODE only

	routes []route
}

// NewLogger builds the process logger. The Lambda entry logs JSON, the local server text.
func NewLogger(level string, jsonFormat bool) *logrus.Logger {
	log := logrus.New()
	if jsonFormat {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// backends are the stateful pieces the services are built on.
type backends struct {
	accounts      *store.AccountStore
	metadata      *store.MetadataStore
	notifications *store.NotificationStore
	resolver      secret.Resolver
}

// NewApp initializes the application dependencies. In DEV_MODE every store is
// in-memory, secrets come from the environment and both vendors are served by the
// memory adapter, so no AWS account or vendor app is needed.
func NewApp(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	adapter.SetLogger(log.WithField("component", "adapter"))

	b, err := newBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	jwtSecret, err := b.resolver.GetSecret(ctx, cfg.JWTSecretParam)
	if err != nil {
		if !cfg.DevMode {
			return nil, fmt.Errorf("failed to resolve JWT secret: %w", err)
		}
		log.WithError(err).Warn("JWT secret not set, using the development default")
		jwtSecret = devJWTSecret
	}
	originSecret := ""
	if !cfg.DevMode {
		if originSecret, err = b.resolver.GetSecret(ctx, cfg.OriginVerifyParam); err != nil {
			return nil, fmt.Errorf("failed to resolve origin verify secret: %w", err)
		}
	}

	registry := adapter.NewRegistry()
	var googleSecret string
	if cfg.DevMode {
		mem := memory.NewProvider(true)
		for _, name := range []adapter.ProviderName{adapter.GoogleDrive, adapter.Dropbox, adapter.Memory} {
			registry.Register(name, mem.Constructor(name))
		}
		log.Info("Using memory-backed vendors (DEV_MODE=true)")
	} else {
		googleSecret = secret.Optional(ctx, b.resolver, cfg.GoogleClientSecretParam)
		dropboxSecret := secret.Optional(ctx, b.resolver, cfg.DropboxAppSecretParam)

		registry.Register(adapter.GoogleDrive, googledrive.NewConstructor(googledrive.Config{
			BaseURL: cfg.PublicBaseURL,
			Timeout: cfg.VendorCallTimeout,
		}))
		dbx := dropbox.Config{
			AppKey:    cfg.DropboxAppKey,
			AppSecret: dropboxSecret,
			BaseURL:   cfg.PublicBaseURL,
			Timeout:   cfg.VendorCallTimeout,
		}
		registry.Register(adapter.Dropbox, dropbox.NewConstructor(dbx))
	}

	guard := auth.NewRefreshGuard(b.accounts, refreshersFor(cfg, googleSecret), log.WithField("component", "refresh_guard"))
	opts := service.Options{
		Concurrency: cfg.AggregationConcurrency,
		CallTimeout: cfg.VendorCallTimeout,
	}
	svcLog := log.WithField("component", "service")

	files := service.NewFileService(registry, guard, b.metadata, opts, svcLog)
	batch := service.NewBatchService(registry, guard, b.metadata, opts, svcLog)
	notifications := service.NewNotificationService(registry, guard, b.notifications, b.accounts,
		newFeedCache(ctx, cfg, log), cfg.NotificationCacheTTL, opts, svcLog)

	hLog := log.WithField("component", "handler")
	a := &App{
		cfg:                 cfg,
		log:                 log,
		originSecret:        originSecret,
		fileHandler:         handler.NewFileHandler(files, preview.NewRenderer(), jwtSecret, hLog),
		batchHandler:        handler.NewBatchHandler(batch, jwtSecret, hLog),
		notificationHandler: handler.NewNotificationHandler(notifications, jwtSecret, hLog),
		accountHandler:      handler.NewAccountHandler(b.accounts, registry, jwtSecret, hLog),
	}
	if cfg.DevMode {
		a.demoHandler = handler.NewDemoHandler(b.accounts, registry, registry.ListSupported(), jwtSecret, hLog)
	}
	a.routes = a.buildRoutes()
	return a, nil
}

// refreshersFor returns the token refreshers the guard runs. Dropbox is absent:
// its SDK client refreshes through its own oauth2 token source.
func refreshersFor(cfg config.Config, googleSecret string) map[string]auth.TokenRefresher {
	refreshers := map[string]auth.TokenRefresher{}
	if cfg.DevMode {
		return refreshers
	}
	refreshers[string(adapter.GoogleDrive)] = auth.NewOAuth2Refresher(
		auth.GoogleOAuthConfig(cfg.GoogleClientID, googleSecret, cfg.GoogleRedirectURL))
	return refreshers
}

func newBackends(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*backends, error) {
	if cfg.DevMode {
		log.Info("Using in-memory stores, MockEncryptor and EnvResolver (DEV_MODE=true)")
		return &backends{
			accounts:      store.NewAccountStore(nil, cfg.AccountsTable, crypto.NewMockEncryptor()),
			metadata:      store.NewMetadataStore(nil, cfg.MetadataTable),
			notifications: store.NewNotificationStore(nil, cfg.NotificationsTable),
			resolver:      secret.NewEnvResolver(),
		}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	encryptor := crypto.NewKMSService(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)

	return &backends{
		accounts:      store.NewAccountStore(dynamoClient, cfg.AccountsTable, encryptor),
		metadata:      store.NewMetadataStore(dynamoClient, cfg.MetadataTable),
		notifications: store.NewNotificationStore(dynamoClient, cfg.NotificationsTable),
		resolver:      secret.NewCachedResolver(secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))),
	}, nil
}

// newFeedCache uses Redis when REDIS_ADDR is set and reachable, a process-local map otherwise.
func newFeedCache(ctx context.Context, cfg config.Config, log logrus.FieldLogger) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewLocal()
	}
	client, err := cache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.WithError(err).Warn("falling back to local notification cache")
		return cache.NewLocal()
	}
	log.WithField("addr", cfg.RedisAddr).Info("Using Redis notification cache")
	return cache.NewRedis(client, "cloudcaddy:", log.WithField("component", "cache"))
}

// corsHeaders adds CORS headers to a response.
func (app *App) corsHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		headers = make(map[string]string)
	}
	headers["Access-Control-Allow-Origin"] = app.cfg.FrontendURL
	headers["Access-Control-Allow-Credentials"] = "true"
	headers["Access-Control-Allow-Methods"] = "GET,POST,PUT,DELETE,OPTIONS,PATCH"
	headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization"
	return headers
}
