package routes

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"helpdesk-system/internal/controllers"
	"helpdesk-system/internal/listeners"
	"helpdesk-system/internal/repositories"
	"helpdesk-system/internal/services"
	"helpdesk-system/pkg/config"
	"helpdesk-system/pkg/eventbus"
	"helpdesk-system/pkg/middleware"
	"helpdesk-system/pkg/service"
	"helpdesk-system/pkg/websocket"
)

// Storage - набор репозиториев выбранного драйвера (postgres или memory).
type Storage struct {
	TxManager    repositories.TxManagerInterface
	Users        repositories.UserRepositoryInterface
	Tickets      repositories.TicketRepositoryInterface
	Materials    repositories.MaterialRepositoryInterface
	MaterialLogs repositories.MaterialLogRepositoryInterface
	Requisitions repositories.RequisitionRepositoryInterface
	Cache        repositories.CacheRepositoryInterface
}

type Loggers struct {
	Main        *zap.Logger
	Auth        *zap.Logger
	Ticket      *zap.Logger
	Inventory   *zap.Logger
	Requisition *zap.Logger
}

func InitRouter(
	e *echo.Echo,
	storage Storage,
	jwtSvc service.JWTService,
	notificationService services.NotificationServiceInterface,
	hub *websocket.Hub,
	bus *eventbus.Bus,
	loggers *Loggers,
	cfg *config.Config,
) {
	loggers.Main.Info("InitRouter: Начало создания маршрутов")

	// --- 0. ОБЩИЕ КОМПОНЕНТЫ ---
	api := e.Group("/api")
	authMW := middleware.NewAuthMiddleware(jwtSvc, loggers.Auth)

	// --- 1. СЕРВИСЫ ---
	roleResolver := services.NewRoleResolver(storage.Users, storage.Cache, loggers.Auth, cfg.Redis.RoleCacheTTL)
	base := services.NewBaseService(roleResolver, loggers.Main, cfg.Inventory.ConflictRetries)

	ticketService := services.NewTicketService(base, storage.TxManager, storage.Tickets, storage.Users, bus, loggers.Ticket)
	inventoryService := services.NewInventoryService(base, storage.TxManager, storage.Materials, storage.MaterialLogs, bus, loggers.Inventory)
	batchValidator := services.NewBatchValidator(base, storage.Materials, cfg.Inventory.LowStockWarningThreshold, loggers.Requisition)
	requisitionService := services.NewRequisitionService(
		base, storage.TxManager, storage.Requisitions, storage.Tickets, storage.Materials, storage.MaterialLogs,
		batchValidator, ticketService, bus, loggers.Requisition,
	)

	// --- 2. ПОДПИСЧИКИ СОБЫТИЙ ---
	notifier := services.NewFanoutNotificationService(
		notificationService,
		services.NewWebSocketNotificationService(hub, loggers.Main),
	)
	listeners.NewNotificationListener(notifier, storage.Users, loggers.Main).Register(bus)

	// --- 3. КОНТРОЛЛЕРЫ ---
	ticketController := controllers.NewTicketController(ticketService, loggers.Ticket)
	materialController := controllers.NewMaterialController(inventoryService, loggers.Inventory)
	requisitionController := controllers.NewRequisitionController(requisitionService, batchValidator, loggers.Requisition)
	webSocketController := controllers.NewWebSocketController(hub, jwtSvc, loggers.Main)

	// --- 4. РОУТЕРЫ ---
	api.GET("/ws", webSocketController.ServeWs)
	secureGroup := api.Group("", authMW.Auth)

	runTicketRouter(secureGroup, ticketController)
	runMaterialRouter(secureGroup, materialController)
	runRequisitionRouter(secureGroup, requisitionController)

	loggers.Main.Info("INIT_ROUTER: Создание маршрутов завершено")
}
