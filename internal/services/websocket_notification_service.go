package services

import (
	"context"

	"helpdesk-system/pkg/websocket"

	"go.uber.org/zap"
)

// webSocketNotificationService доставляет уведомление в открытые вкладки получателя.
type webSocketNotificationService struct {
	hub    *websocket.Hub
	logger *zap.Logger
}

func NewWebSocketNotificationService(hub *websocket.Hub, logger *zap.Logger) NotificationServiceInterface {
	return &webSocketNotificationService{
		hub:    hub,
		logger: logger,
	}
}

func (s *webSocketNotificationService) Notify(_ context.Context, n Notification) error {
	s.logger.Debug("Отправка WebSocket-уведомления",
		zap.String("userID", n.RecipientID),
		zap.String("type", string(n.Type)),
	)
	return s.hub.SendMessageToUser(n.RecipientID, n, string(n.Type))
}
