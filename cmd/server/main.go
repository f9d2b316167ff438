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

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vedran77/courier/internal/blob"
	"github.com/vedran77/courier/internal/config"
	"github.com/vedran77/courier/internal/database"
	"github.com/vedran77/courier/internal/domain"
	"github.com/vedran77/courier/internal/livequery"
	"github.com/vedran77/courier/internal/presence"
	"github.com/vedran77/courier/internal/repository"
	memoryrepo "github.com/vedran77/courier/internal/repository/memory"
	postgresrepo "github.com/vedran77/courier/internal/repository/postgres"
	"github.com/vedran77/courier/internal/service"
	"github.com/vedran77/courier/internal/telemetry"
	"github.com/vedran77/courier/internal/transport/http/handlers"
	"github.com/vedran77/courier/internal/transport/http/middleware"
	"github.com/vedran77/courier/internal/transport/ws"
	"github.com/vedran77/courier/pkg/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Repositories
	var (
		userRepo    repository.UserRepository
		convRepo    repository.ConversationRepository
		msgRepo     repository.MessageRepository
		blockRepo   repository.BlockRepository
		privacyRepo repository.PrivacyRepository
	)
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Log.Fatal("database connect failed", zap.Error(err))
		}
		defer pool.Close()
		logger.Log.Info("connected to postgres")

		userRepo = postgresrepo.NewUserRepo(pool)
		convRepo = postgresrepo.NewConversationRepo(pool)
		msgRepo = postgresrepo.NewMessageRepo(pool)
		blockRepo = postgresrepo.NewBlockRepo(pool)
		privacyRepo = postgresrepo.NewPrivacyRepo(pool)
	} else {
		store := memoryrepo.NewStore()
		logger.Log.Info("no DATABASE_URL, running on the in-memory store")

		userRepo = memoryrepo.NewUserRepo(store)
		convRepo = memoryrepo.NewConversationRepo(store)
		msgRepo = memoryrepo.NewMessageRepo(store)
		blockRepo = memoryrepo.NewBlockRepo(store)
		privacyRepo = memoryrepo.NewPrivacyRepo(store)
	}

	// Presence and typing state
	var liveness presence.Cache
	if cfg.RedisURL != "" {
		cache, err := presence.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("redis connect failed", zap.Error(err))
		}
		defer cache.Close()
		logger.Log.Info("presence backed by redis")
		liveness = cache
	} else {
		liveness = presence.NewMemoryCache()
	}

	// Media storage
	mediaStore, err := blob.Open(ctx, blob.Options{
		Driver:  cfg.StorageDriver,
		Bucket:  cfg.StorageBucket,
		Region:  cfg.StorageRegion,
		BaseDir: cfg.StorageBaseDir,
	})
	if err != nil {
		logger.Log.Fatal("opening media store failed", zap.Error(err))
	}
	defer mediaStore.Close()

	targets := blob.NewTargets(mediaStore, blob.TargetTTL)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				targets.Sweep(ctx)
			}
		}
	}()

	metrics := telemetry.NewMetrics()

	// Services
	identitySvc := service.NewIdentityService(userRepo, blockRepo, cfg.JWTSecret)
	privacySvc := service.NewPrivacyService(privacyRepo, blockRepo, userRepo)
	convSvc := service.NewConversationService(convRepo, userRepo, blockRepo, privacyRepo, liveness)
	msgSvc := service.NewMessageService(msgRepo, convRepo, userRepo, blockRepo, privacyRepo, liveness, domain.DefaultReactions(), targets, mediaStore)
	presenceSvc := service.NewPresenceService(convRepo, blockRepo, liveness)

	// Live queries: the broker re-runs these reads whenever a publish
	// touches their inputs and pushes the fresh result to subscribers.
	evaluate := func(ctx context.Context, userID uuid.UUID, q livequery.Query) (any, error) {
		switch q.Kind {
		case livequery.QueryMessages:
			page, err := msgSvc.List(ctx, userID, q.ConversationID, nil, q.Limit)
			if errors.Is(err, service.ErrConversationNotFound) {
				return nil, livequery.ErrGone
			}
			if err != nil {
				return nil, err
			}
			return page, nil
		case livequery.QueryConversations:
			return convSvc.List(ctx, userID)
		default:
			return nil, fmt.Errorf("unknown query kind %q", q.Kind)
		}
	}
	broker := livequery.NewBroker(evaluate, metrics.Subscriptions)
	go broker.Run(ctx)

	convSvc.SetPublisher(broker)
	msgSvc.SetPublisher(broker)
	presenceSvc.SetPublisher(broker)
	privacySvc.SetPublisher(broker)

	hub := ws.NewHub(broker, presenceSvc, metrics.WSConnections)
	go hub.Run(ctx)

	// Routes
	router := handlers.NewRouter(handlers.Deps{
		Identity:      identitySvc,
		Privacy:       privacySvc,
		Conversations: convSvc,
		Messages:      msgSvc,
		Presence:      presenceSvc,
		Targets:       targets,
		Store:         mediaStore,
		Hub:           hub,
		Metrics:       metrics,
	})

	handler := middleware.CORS(
		middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)(
			middleware.Instrument(metrics)(router)))

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	logger.Log.Info("starting server", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Fatal("server failed", zap.Error(err))
	}
	logger.Log.Info("server stopped")
}
