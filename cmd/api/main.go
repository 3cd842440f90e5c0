package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/mural-go-api/internal/config"
	"github.com/noah-isme/mural-go-api/internal/database"
	"github.com/noah-isme/mural-go-api/internal/handler"
	"github.com/noah-isme/mural-go-api/internal/middleware"
	"github.com/noah-isme/mural-go-api/internal/models"
	"github.com/noah-isme/mural-go-api/internal/repository"
	"github.com/noah-isme/mural-go-api/internal/router"
	"github.com/noah-isme/mural-go-api/internal/service"
	"github.com/noah-isme/mural-go-api/pkg/ai"
	"github.com/noah-isme/mural-go-api/pkg/b2"
	cloud "github.com/noah-isme/mural-go-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("mural api stopped")
	}
}

// run wires the service and blocks until shutdown. Resources opened so far are closed on return.
func run(cfg config.Config, logger zerolog.Logger) (err error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].Close(); cerr != nil {
				logger.Warn().Err(cerr).Msg("failed to close resource")
			}
		}
	}()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, redisClient)
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		closers = append(closers, closerFunc(func() error {
			natsConn.Close()
			return nil
		}))
	}

	store, err := openActivityStore(ctx, cfg, &closers)
	if err != nil {
		return fmt.Errorf("open %s activity store: %w", cfg.StoreBackend, err)
	}

	blobs, err := openBlobStore(cfg, redisClient, &closers)
	if err != nil {
		return fmt.Errorf("open %s history store: %w", cfg.HistoryBackend, err)
	}

	storage, err := attachmentStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("configure %s attachment storage: %w", cfg.AttachmentBackend, err)
	}

	provider, err := chatProvider(ctx, cfg, logger, &closers)
	if err != nil {
		return fmt.Errorf("configure %s provider: %w", cfg.AIProvider, err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	feedService := service.NewActivityFeedService(store, service.FeedOptions{
		Redis:       redisClient,
		NATS:        natsConn,
		ChannelBase: cfg.EventsChannel,
		Location:    cfg.Location,
	}, logger)
	attachmentService := service.NewAttachmentService(storage, cfg.AttachmentBackend, logger)
	activityService := service.NewActivityService(store, attachmentService, feedService, validate, logger)
	aiConfigRepo := repository.NewAiConfigRepository(blobs, models.DefaultAiConfig())
	aiConfigService := service.NewAiConfigService(aiConfigRepo, validate, logger)
	authService := service.NewAuthService(service.AuthOptions{
		Passphrase: cfg.AdminPassphrase.Reveal(),
		Enabled:    cfg.AdminPassphrase.Present(),
		Secret:     cfg.JWTSecret,
		TTL:        cfg.JWTTTL,
	}, validate, logger)
	tutorService := service.NewTutorService(service.TutorOptions{
		Provider:    provider,
		Model:       cfg.AIModel,
		Feed:        feedService,
		AiConfig:    aiConfigRepo,
		History:     repository.NewTranscriptRepository(blobs),
		Attachments: attachmentService,
		Assembler:   service.ContextAssembler{Persona: cfg.AIPersona, Location: cfg.Location},
		Validator:   validate,
		IdleTTL:     cfg.TutorIdleTTL,
	}, logger)
	visionService := service.NewVisionService(provider, cfg.AIModel, logger)

	feedService.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    4 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		ActivityFeedHandler:  handler.NewActivityFeedHandler(feedService, activityService, attachmentService, logger),
		AdminActivityHandler: handler.NewAdminActivityHandler(activityService, logger),
		AiConfigHandler:      handler.NewAiConfigHandler(aiConfigService, logger),
		AuthHandler:          handler.NewAuthHandler(authService, logger),
		TutorHandler:         handler.NewTutorHandler(tutorService, visionService, logger),
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret, service.TokenIssuer),
		HealthProbes:         healthProbes(store, redisClient),
	})

	logger.Info().
		Str("store", cfg.StoreBackend).
		Str("history", cfg.HistoryBackend).
		Str("attachments", attachmentService.Backend()).
		Str("ai_provider", provider.Name()).
		Bool("demo_mode", tutorService.DemoMode()).
		Msg("mural api configured")

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(cfg.HTTPAddress())
	}()

	return waitForShutdown(app, listenErr, logger)
}

func healthProbes(store repository.ActivityStore, redisClient *redis.Client) []handler.HealthProbe {
	probes := []handler.HealthProbe{{
		Name: "store",
		Check: func(ctx context.Context) error {
			_, err := store.List(ctx)
			return err
		},
	}}
	if redisClient != nil {
		probes = append(probes, handler.HealthProbe{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	return probes
}

func openActivityStore(ctx context.Context, cfg config.Config, closers *[]io.Closer) (repository.ActivityStore, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := database.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
		return repository.NewActivityRepository(db), nil
	case config.StoreSQLite:
		db, err := database.ConnectSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
		return repository.NewActivityRepository(db), nil
	case config.StoreMongo:
		client, err := database.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, closerFunc(func() error { return client.Disconnect(context.Background()) }))
		db := client.Database(cfg.MongoDatabase)
		if err := repository.EnsureActivityIndexes(ctx, db); err != nil {
			return nil, err
		}
		return repository.NewMongoActivityStore(db), nil
	case config.StoreMemory:
		return repository.NewMemoryActivityStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func openBlobStore(cfg config.Config, redisClient *redis.Client, closers *[]io.Closer) (repository.BlobStore, error) {
	switch cfg.HistoryBackend {
	case config.HistoryRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis history backend requires MURAL_REDIS_URL")
		}
		return repository.NewRedisBlobStore(redisClient), nil
	case config.HistoryBolt:
		db, err := database.OpenBolt(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, db)
		return repository.NewBoltBlobStore(db)
	case config.HistoryMemory:
		return repository.NewMemoryBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}

func attachmentStorage(ctx context.Context, cfg config.Config, logger zerolog.Logger) (service.FileStorage, error) {
	switch cfg.AttachmentBackend {
	case config.AttachmentCloudinary:
		return cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret.Reveal(),
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
	case config.AttachmentB2:
		return b2.New(ctx, b2.Config{
			AccountID:      cfg.B2AccountID,
			ApplicationKey: cfg.B2ApplicationKey.Reveal(),
			Bucket:         cfg.B2Bucket,
			Prefix:         "attachments",
		}, logger)
	default:
		return nil, nil
	}
}

// chatProvider falls back to the demo provider when the selected provider has no key.
func chatProvider(ctx context.Context, cfg config.Config, logger zerolog.Logger, closers *[]io.Closer) (ai.Provider, error) {
	key := cfg.ProviderKey()
	if !key.Present() {
		logger.Warn().Str("provider", cfg.AIProvider).Msg("no ai api key configured, tutor runs in demo mode")
		return ai.NewDemoProvider(), nil
	}

	switch cfg.AIProvider {
	case config.ProviderOpenAI:
		return ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey: key.Reveal(),
			Model:  cfg.AIModel,
			Logger: logger,
		})
	default:
		provider, err := ai.NewGeminiProvider(ctx, ai.GeminiConfig{
			APIKey: key.Reveal(),
			Model:  cfg.AIModel,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, provider)
		return provider, nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

func waitForShutdown(app *fiber.App, listenErr <-chan error, logger zerolog.Logger) error {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-listenErr:
		return fmt.Errorf("listen: %w", err)
	case <-shutdownCtx.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
	return nil
}
