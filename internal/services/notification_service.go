// Файл: internal/services/notification_service.go
package services

import (
	"context"
	"errors"
	"time"

	"helpdesk-system/pkg/mq"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type NotificationType string

const (
	NotificationTicketAssigned NotificationType = "ticket_assigned"
	NotificationTicketRejected NotificationType = "ticket_rejected"
	NotificationTicketResolved NotificationType = "ticket_resolved"
	NotificationLowStock       NotificationType = "low_stock"
)

// Notification - запрос "уведомить" для внешнего сервиса доставки.
type Notification struct {
	ID          string                 `json:"id"`
	RecipientID string                 `json:"recipient_id"`
	Type        NotificationType       `json:"type"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
}

func NewNotification(recipientID string, t NotificationType, payload map[string]interface{}) Notification {
	return Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Type:        t,
		Payload:     payload,
		CreatedAt:   time.Now(),
	}
}

// NotificationServiceInterface - интерфейс нашего сервиса уведомлений
type NotificationServiceInterface interface {
	Notify(ctx context.Context, n Notification) error
}

type mqNotificationService struct {
	publisher mq.Publisher
	logger    *zap.Logger
}

// NewMQNotificationService отдаёт уведомления в брокер; доставка - забота подписчиков.
func NewMQNotificationService(publisher mq.Publisher, logger *zap.Logger) NotificationServiceInterface {
	return &mqNotificationService{publisher: publisher, logger: logger}
}

func (s *mqNotificationService) Notify(ctx context.Context, n Notification) error {
	if err := s.publisher.Publish(ctx, "notify."+string(n.Type), n); err != nil {
		return err
	}
	s.logger.Debug("Уведомление опубликовано", zap.String("type", string(n.Type)), zap.String("recipient", n.RecipientID))
	return nil
}

// mockNotificationService пишет в лог вместо реальной отправки. Используется без AMQP_URL.
type mockNotificationService struct {
	logger *zap.Logger
}

func NewMockNotificationService(logger *zap.Logger) NotificationServiceInterface {
	return &mockNotificationService{logger: logger}
}

func (s *mockNotificationService) Notify(_ context.Context, n Notification) error {
	s.logger.Info("!!! ИМИТАЦИЯ ОТПРАВКИ УВЕДОМЛЕНИЯ !!!",
		zap.String("кому", n.RecipientID),
		zap.String("тип", string(n.Type)),
		zap.Any("данные", n.Payload),
	)
	return nil
}

// fanoutNotificationService отдаёт уведомление во все каналы; сбой одного не отменяет остальные.
type fanoutNotificationService struct {
	channels []NotificationServiceInterface
}

func NewFanoutNotificationService(channels ...NotificationServiceInterface) NotificationServiceInterface {
	return &fanoutNotificationService{channels: channels}
}

func (s *fanoutNotificationService) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, ch := range s.channels {
		if err := ch.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
