// Файл: main.go

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"helpdesk-system/internal/repositories"
	"helpdesk-system/internal/repositories/memory"
	"helpdesk-system/internal/routes"
	"helpdesk-system/internal/services"
	"helpdesk-system/pkg/config"
	"helpdesk-system/pkg/database/postgresql"
	apperrors "helpdesk-system/pkg/errors"
	"helpdesk-system/pkg/eventbus"
	applogger "helpdesk-system/pkg/logger"
	appmiddleware "helpdesk-system/pkg/middleware"
	"helpdesk-system/pkg/mq"
	"helpdesk-system/pkg/service"
	"helpdesk-system/pkg/utils"
	"helpdesk-system/pkg/validation"
	"helpdesk-system/pkg/websocket"
	"helpdesk-system/seeders"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const accessTokenTTL = 24 * time.Hour

func main() {
	// 1. Конфиг и логгер
	cfg := config.New()
	logger := applogger.NewLogger(cfg.Log.File)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Хранилище
	storage, closeStorage, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Не удалось инициализировать хранилище", zap.Error(err), zap.String("driver", cfg.Storage.Driver))
	}
	defer closeStorage()

	// 3. Уведомления: брокер, если задан AMQP_URL, иначе в лог
	var notificationService services.NotificationServiceInterface
	if cfg.AMQP.URL != "" {
		publisher, err := mq.NewRabbitPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			logger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
		}
		defer publisher.Close()
		notificationService = services.NewMQNotificationService(publisher, logger)
	} else {
		logger.Warn("AMQP_URL не задан, уведомления будут только в логе")
		notificationService = services.NewMockNotificationService(logger)
	}
	bus := eventbus.New(logger)
	hub := websocket.NewHub(logger.Named("ws"))
	go hub.Run(ctx)

	// 4. Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll: true,
		StackSize:       1 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("!!! ОБНАРУЖЕНА ПАНИКА (PANIC) !!!",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err),
				zap.String("stack", string(stack)),
			)
			if !c.Response().Committed {
				httpErr := apperrors.NewHttpError(http.StatusInternalServerError, "Внутренняя ошибка сервера", err, nil)
				utils.ErrorResponse(c, httpErr, logger)
			}
			return err
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"http://localhost:5173"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		ExposeHeaders:    []string{echo.HeaderContentDisposition},
	}))
	e.Use(appmiddleware.RequestLogger(logger))
	e.Validator = validation.New()

	// 5. Роуты
	jwtSvc := service.NewJWTService(cfg.JWT.SecretKey, accessTokenTTL, logger)
	loggers := &routes.Loggers{
		Main:        logger,
		Auth:        logger.Named("auth"),
		Ticket:      logger.Named("ticket"),
		Inventory:   logger.Named("inventory"),
		Requisition: logger.Named("requisition"),
	}
	routes.InitRouter(e, storage, jwtSvc, notificationService, hub, bus, loggers, cfg)

	// 6. Запуск и корректная остановка
	go func() {
		logger.Info("🚀 Сервер запущен", zap.String("port", cfg.Server.Port), zap.String("storage", cfg.Storage.Driver))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Ошибка запуска сервера", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Остановка сервера...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ошибка при остановке сервера", zap.Error(err))
	}
	// Дожидаемся уведомлений по уже закоммиченным операциям.
	bus.Wait()
	logger.Info("Сервер остановлен")
}

func buildStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (routes.Storage, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		store := memory.NewStore()
		storage := routes.Storage{
			TxManager:    memory.NewTxManager(store),
			Users:        memory.NewUserRepository(store),
			Tickets:      memory.NewTicketRepository(store),
			Materials:    memory.NewMaterialRepository(store),
			MaterialLogs: memory.NewMaterialLogRepository(store),
			Requisitions: memory.NewRequisitionRepository(store),
			Cache:        memory.NewCache(),
		}
		if err := seeders.SeedUsers(ctx, storage.Users, logger); err != nil {
			return routes.Storage{}, nil, err
		}
		logger.Warn("Используется in-memory хранилище: данные не переживут перезапуск")
		return storage, func() {}, nil

	case config.StorageDriverPostgres:
		dbConn, err := postgresql.ConnectDB(ctx, cfg.Postgres.DSN, logger)
		if err != nil {
			return routes.Storage{}, nil, err
		}
		if err := postgresql.Migrate(ctx, dbConn, logger); err != nil {
			dbConn.Close()
			return routes.Storage{}, nil, err
		}

		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			dbConn.Close()
			return routes.Storage{}, nil, err
		}

		storage := routes.Storage{
			TxManager:    repositories.NewTxManager(dbConn),
			Users:        repositories.NewUserRepository(dbConn, logger),
			Tickets:      repositories.NewTicketRepository(dbConn, logger),
			Materials:    repositories.NewMaterialRepository(dbConn, logger),
			MaterialLogs: repositories.NewMaterialLogRepository(dbConn, logger),
			Requisitions: repositories.NewRequisitionRepository(dbConn, logger),
			Cache:        repositories.NewRedisCacheRepository(redisClient),
		}
		return storage, func() {
			redisClient.Close()
			dbConn.Close()
		}, nil
	}
	return routes.Storage{}, nil, errors.New("неизвестный STORAGE_DRIVER: " + cfg.Storage.Driver)
}
