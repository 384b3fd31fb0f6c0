package controllers

import (
	"net/http"

	"helpdesk-system/pkg/service"
	appwebsocket "helpdesk-system/pkg/websocket"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WebSocketController struct {
	hub        *appwebsocket.Hub
	jwtService service.JWTService
	logger     *zap.Logger
}

func NewWebSocketController(hub *appwebsocket.Hub, jwtService service.JWTService, logger *zap.Logger) *WebSocketController {
	return &WebSocketController{
		hub:        hub,
		jwtService: jwtService,
		logger:     logger,
	}
}

// ServeWs принимает токен в query: браузерный WebSocket не умеет слать заголовок Authorization.
func (c *WebSocketController) ServeWs(ctx echo.Context) error {
	tokenString := ctx.QueryParam("token")
	if tokenString == "" {
		return ctx.String(http.StatusUnauthorized, "Missing token")
	}

	claims, err := c.jwtService.ValidateToken(tokenString)
	if err != nil {
		return ctx.String(http.StatusUnauthorized, "Invalid token")
	}

	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		c.logger.Error("WebSocket: не удалось улучшить соединение", zap.Error(err))
		return err
	}

	appwebsocket.NewClient(c.hub, conn, claims.UserID).Serve()
	c.logger.Info("WebSocket: клиент подключен", zap.String("userID", claims.UserID))
	return nil
}
