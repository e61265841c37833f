package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/boogy/health-journal/pkg/cache"
	"github.com/boogy/health-journal/pkg/config"
	"github.com/boogy/health-journal/pkg/keyset"
	"github.com/boogy/health-journal/pkg/principal"
	"github.com/boogy/health-journal/pkg/s3logger"
	"github.com/boogy/health-journal/pkg/store"
	"github.com/boogy/health-journal/pkg/utils"
	"github.com/boogy/health-journal/pkg/validator"
	"github.com/boogy/health-journal/pkg/version"
)

// Bootstrap contains all the initialized components needed by handlers
type Bootstrap struct {
	Config    *config.Config
	Store     *store.Client
	Keys      *keyset.Provider
	Validator validator.TokenValidatorInterface
	Resolver  *principal.Resolver
	Router    http.Handler
	S3Logger  *s3logger.S3Logger
	Logger    *slog.Logger
}

// NewBootstrap loads configuration and wires every component behind the router
func NewBootstrap(ctx context.Context) (*Bootstrap, error) {
	versionInfo := version.Get()

	// Configuration comes first so the logger knows where to ship
	cfg, err := config.NewConfig()
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	shipper, err := s3logger.New(ctx, cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 logger: %w", err)
	}
	logger := initializeLogger(shipper)

	logger.Info(
		fmt.Sprintf("Starting %s", versionInfo.BinName),
		slog.String("version", versionInfo.Version),
		slog.String("commit", versionInfo.Commit),
		slog.String("date", versionInfo.Date),
	)

	db, err := store.NewClient(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		logger.Error("Failed to migrate database", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// The fallback store keeps the last good key set across cold starts
	fallback, err := cache.NewCache(ctx, cfg)
	if err != nil {
		db.Close()
		logger.Error("Failed to initialize cache", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	keys := keyset.NewProvider(
		keyset.NewHTTPFetcher(cfg.JWKSURL(), cfg.KeySet.FetchTimeout),
		keyset.WithTTL(cfg.KeySet.TTL),
		keyset.WithMinRefreshInterval(cfg.KeySet.MinRefreshInterval),
		keyset.WithFallback(fallback, cfg.JWKSURL(), cfg.Cache.TTL),
	)
	tokenValidator := validator.NewTokenValidator(cfg, keys)
	resolver := principal.NewResolver(store.NewUsers(db))

	router := NewRouter(RouterConfig{
		Gate: NewGate(tokenValidator, resolver, cfg.Server.TokenPath),
		Resources: &Resources{
			Users:     store.NewUsers(db),
			Foods:     store.NewFoods(db),
			Meals:     store.NewMeals(db),
			Readings:  store.NewReadings(db),
			Favorites: store.NewFavorites(db),
		},
		TokenPath:      cfg.Server.TokenPath,
		TokenExchange:  NewTokenExchanger(cfg.Cognito, nil),
		Health:         db,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	logger.Info("Bootstrap complete",
		slog.String("issuer", cfg.Issuer()),
		slog.String("cacheType", cfg.Cache.Type),
		slog.String("tokenPath", cfg.Server.TokenPath),
		slog.Bool("logToS3", shipper.Enabled()))

	return &Bootstrap{
		Config:    cfg,
		Store:     db,
		Keys:      keys,
		Validator: tokenValidator,
		Resolver:  resolver,
		Router:    router,
		S3Logger:  shipper,
		Logger:    logger,
	}, nil
}

// Flush ships buffered logs; Lambda calls it after every invocation
func (b *Bootstrap) Flush(ctx context.Context) {
	if err := b.S3Logger.Flush(ctx); err != nil {
		b.Logger.Error("Failed to write logs to S3", slog.String("error", err.Error()))
	}
}

// Cleanup handles cleanup operations for the bootstrap components
func (b *Bootstrap) Cleanup() {
	b.Flush(context.Background())
	if b.Store != nil {
		b.Store.Close()
	}
}

// initializeLogger sets up the global JSON logger, teeing to S3 when enabled
func initializeLogger(shipper *s3logger.S3Logger) *slog.Logger {
	var programLevel = new(slog.LevelVar) // Default to Info
	programLevel.Set(slog.LevelInfo)

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel != "" {
		if level, err := utils.ParseLogLevel(logLevel); err == nil {
			programLevel.Set(level)
		} else {
			slog.Info("Invalid LOG_LEVEL, defaulting to Info", "value", logLevel, "error", err)
		}
	}

	var out io.Writer = os.Stdout
	if shipper.Enabled() {
		out = io.MultiWriter(os.Stdout, shipper)
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: programLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// NewAwsApiGatewayFromBootstrap creates a new API Gateway handler using bootstrap
func NewAwsApiGatewayFromBootstrap(bootstrap *Bootstrap) *AwsApiGateway {
	return NewAwsApiGateway(bootstrap.Router)
}
