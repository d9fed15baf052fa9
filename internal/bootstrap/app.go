package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "collaborative-canvas/internal/handler/http"
	wsHandler "collaborative-canvas/internal/handler/websocket"
	"collaborative-canvas/internal/hub"
	s3blob "collaborative-canvas/internal/infra/blob/s3"
	gormpersistence "collaborative-canvas/internal/infra/persistence/gorm"
	"collaborative-canvas/internal/infra/persistence/memory"
	"collaborative-canvas/internal/infra/setup"
	redisstate "collaborative-canvas/internal/infra/state/redis"
	"collaborative-canvas/internal/middleware"
	"collaborative-canvas/internal/render"
	"collaborative-canvas/internal/repository"
	"collaborative-canvas/internal/service"
	"collaborative-canvas/internal/tasks"
	"collaborative-canvas/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config       *Config
	Log          *logrus.Logger
	DB           *gorm.DB      // DB_DRIVER=memory 时为 nil
	RedisClient  *redis.Client // 未配置 REDIS_ADDR 时为 nil
	AsynqClient  *asynq.Client
	WorkerServer *worker.WorkerServer
	Hub          *hub.Hub
	Router       *gin.Engine
	HttpServer   *http.Server

	stateRepo      *redisstate.RedisStateRepository
	localPreviews  *worker.LocalScheduler
	cancel         context.CancelFunc
	stopSubscriber func() error
}

type repositories struct {
	rooms        repository.RoomRepository
	events       repository.EventRepository
	participants repository.ParticipantRepository
	memStore     *memory.Store
}

// NewApp 创建并初始化应用的所有组件
func NewApp(cfg *Config) (*App, error) {
	// 1. 初始化 Logger
	log := NewLogger(cfg)
	log.WithFields(logrus.Fields{"env": cfg.AppEnv, "db_driver": cfg.DBDriver, "preview_backend": cfg.PreviewBackend}).Info("Configuration loaded successfully")
	app := &App{Config: cfg, Log: log}

	// 2. 初始化存储
	repos, err := app.initRepositories()
	if err != nil {
		app.Shutdown()
		return nil, err
	}

	if cfg.RedisAddr != "" {
		redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			app.Shutdown()
			return nil, fmt.Errorf("failed to init Redis: %w", err)
		}
		app.RedisClient = redisClient
		app.stateRepo = redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix, cfg.PreviewTTL)
		log.Info("Redis state repository initialized")
	} else {
		log.Info("REDIS_ADDR not set, running in single-node mode")
	}

	// 3. 变更提示：有 Redis 时经 Pub/Sub 广播到所有实例，否则直接交给本机 Hub
	app.Hub = hub.NewHub()
	var notifier repository.ChangeNotifier = app.Hub
	if app.stateRepo != nil {
		notifier = app.stateRepo
	}

	// 4. 预览渲染
	previewService, scheduler, err := app.initPreviews(repos)
	if err != nil {
		app.Shutdown()
		return nil, err
	}

	// 5. 初始化 Services
	roomService := service.NewRoomService(repos.rooms, repos.participants)
	canvasService := service.NewCanvasService(repos.rooms, repos.events, notifier, scheduler)
	presenceService := service.NewPresenceService(repos.rooms, repos.participants, service.WithPresenceWindow(cfg.PresenceWindow))
	log.Info("Services initialized")

	// 6. 初始化 Handlers 和路由
	roomHandler := httpHandler.NewRoomHandler(roomService)
	handlers := httpHandler.Handlers{
		Room:     roomHandler,
		Presence: httpHandler.NewPresenceHandler(roomHandler, presenceService),
		Canvas:   httpHandler.NewCanvasHandler(roomHandler, canvasService, previewService),
	}
	wsH := wsHandler.NewWebSocketHandler(app.Hub, roomService, cfg.CORSAllowedOrigin)
	app.Router = app.newRouter(handlers, wsH)

	app.HttpServer = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

func (a *App) initRepositories() (*repositories, error) {
	cfg := a.Config
	if cfg.DBDriver == setup.DriverMemory {
		store := memory.NewStore()
		a.Log.Warn("Using in-memory storage, data is lost on restart")
		return &repositories{
			rooms:        store.Rooms(),
			events:       store.Events(),
			participants: store.Participants(),
			memStore:     store,
		}, nil
	}

	db, err := setup.InitDB(cfg.DBConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	a.DB = db
	if cfg.DBAutoMigrate {
		if err := setup.MigrateDB(db, cfg.DBDriver); err != nil {
			return nil, fmt.Errorf("failed to migrate DB: %w", err)
		}
	}
	return &repositories{
		rooms:        gormpersistence.NewGormRoomRepository(db),
		events:       gormpersistence.NewGormEventRepository(db),
		participants: gormpersistence.NewGormParticipantRepository(db),
	}, nil
}

// initPreviews 选择预览存储和调度方式，PREVIEW_BACKEND=none 时返回 nil
func (a *App) initPreviews(repos *repositories) (*service.PreviewService, service.PreviewScheduler, error) {
	cfg := a.Config
	var store repository.PreviewStore
	switch cfg.PreviewBackend {
	case PreviewBackendNone:
		return nil, nil, nil
	case PreviewBackendMemory:
		if repos.memStore == nil {
			repos.memStore = memory.NewStore()
		}
		store = repos.memStore.Previews()
	case PreviewBackendRedis:
		store = a.stateRepo
	case PreviewBackendS3:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s3Store, err := s3blob.NewPreviewStore(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init S3 preview store: %w", err)
		}
		store = s3Store
	}

	font, err := render.LoadEmojiFont(cfg.EmojiFont)
	if err != nil {
		a.Log.WithError(err).WithField("path", cfg.EmojiFont).Warn("Failed to load emoji font, emoji strokes will not be rendered")
		font = nil
	}
	previews := service.NewPreviewService(repos.rooms, repos.events, store, cfg.PreviewWidth, cfg.PreviewHeight, font)

	if a.RedisClient == nil {
		a.localPreviews = worker.NewLocalScheduler(previews, cfg.PreviewDelay)
		a.Log.Info("Previews rendered in-process")
		return previews, a.localPreviews, nil
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	a.AsynqClient = asynq.NewClient(redisOpt)
	a.WorkerServer = worker.NewWorkerServer(redisOpt, cfg.WorkerConcurrency, worker.NewPreviewRenderHandler(previews, a.stateRepo), a.Log)
	a.Log.Info("Asynq preview pipeline initialized")
	return previews, tasks.NewPreviewScheduler(a.AsynqClient, a.stateRepo, cfg.PreviewDelay), nil
}

func (a *App) newRouter(handlers httpHandler.Handlers, ws *wsHandler.WebSocketHandler) *gin.Engine {
	if a.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(LoggerMiddleware(a.Log))
	router.Use(CORS(a.Config.CORSAllowedOrigin))
	if a.RedisClient != nil {
		router.Use(middleware.RateLimit(a.RedisClient, a.Config.KeyPrefix, a.Config.RateLimitMax, a.Config.RateLimitWindow))
	}

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	auth := middleware.Auth(a.Config.JWTSecret)
	httpHandler.RegisterRoutes(router.Group("/api", auth), handlers)
	router.GET("/ws/rooms/:code", auth, ws.HandleConnection)
	return router
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.Hub.Run(ctx)
	if a.stateRepo != nil {
		a.stopSubscriber = a.stateRepo.SubscribeAll(ctx, a.Hub.Deliver)
		a.Log.Info("Subscribed to change notices")
	}
	if a.WorkerServer != nil {
		go a.WorkerServer.Start()
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用，可以在部分初始化失败后调用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 停止接收请求
	if a.HttpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.HttpServer.Shutdown(ctx); err != nil {
			a.Log.Errorf("Error shutting down HTTP server: %v", err)
		}
		cancel()
	}

	// 2. 停止订阅和 Hub
	if a.stopSubscriber != nil {
		if err := a.stopSubscriber(); err != nil {
			a.Log.WithError(err).Warn("Error closing change notice subscription")
		}
	}
	if a.cancel != nil {
		a.cancel()
	}

	// 3. 停止预览渲染
	if a.localPreviews != nil {
		a.localPreviews.Stop()
	}
	if a.WorkerServer != nil {
		a.WorkerServer.Shutdown()
	}
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}

	// 4. 关闭连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}
	a.Log.Info("Application shutdown complete.")
}
