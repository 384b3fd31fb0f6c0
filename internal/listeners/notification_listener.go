package listeners

import (
	"context"

	"go.uber.org/zap"

	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/events"
	"helpdesk-system/internal/repositories"
	"helpdesk-system/internal/services"
	"helpdesk-system/pkg/eventbus"
)

// NotificationListener превращает доменные события в запросы на уведомление.
// Ошибки доставки только логируются: основная операция уже закоммичена.
type NotificationListener struct {
	notificationService services.NotificationServiceInterface
	userRepo            repositories.UserRepositoryInterface
	logger              *zap.Logger
}

func NewNotificationListener(
	notificationService services.NotificationServiceInterface,
	userRepo repositories.UserRepositoryInterface,
	logger *zap.Logger,
) *NotificationListener {
	return &NotificationListener{
		notificationService: notificationService,
		userRepo:            userRepo,
		logger:              logger,
	}
}

func (l *NotificationListener) Register(bus *eventbus.Bus) {
	bus.Subscribe(events.TicketTransitioned, l.handleTicketTransitioned)
	bus.Subscribe(events.StockLow, l.handleStockLow)
	l.logger.Info("NotificationListener подписан на события", zap.Strings("events", []string{events.TicketTransitioned, events.StockLow}))
}

func (l *NotificationListener) handleTicketTransitioned(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.TicketTransitionedEvent)
	if !ok {
		return nil
	}

	var notificationType services.NotificationType
	recipients := make([]string, 0, 2)

	switch e.Action {
	case entities.HistoryActionAssigned:
		notificationType = services.NotificationTicketAssigned
		if e.Ticket.AssigneeID.Valid {
			recipients = append(recipients, e.Ticket.AssigneeID.String)
		}
	case entities.HistoryActionRejected:
		// Тикет вернулся в пул: автору и менеджерам, чтобы назначить заново.
		notificationType = services.NotificationTicketRejected
		recipients = append(recipients, e.Ticket.SubmitterID)
		managers, err := l.managerIDs(ctx)
		if err != nil {
			l.logger.Error("Не удалось получить список менеджеров", zap.Error(err))
		}
		recipients = append(recipients, managers...)
	case entities.HistoryActionResolved:
		notificationType = services.NotificationTicketResolved
		recipients = append(recipients, e.Ticket.SubmitterID)
	default:
		return nil
	}

	payload := map[string]interface{}{
		"ticket_id":     e.Ticket.ID,
		"ticket_no":     e.Ticket.TicketNo,
		"title":         e.Ticket.Title,
		"status":        e.Ticket.Status,
		"operator_id":   e.Actor.ID,
		"operator_name": e.Actor.Name,
	}
	if e.Ticket.RejectReason.Valid && e.Action == entities.HistoryActionRejected {
		payload["reason"] = e.Ticket.RejectReason.String
	}
	if e.Ticket.Solution.Valid && e.Action == entities.HistoryActionResolved {
		payload["solution"] = e.Ticket.Solution.String
	}

	l.send(ctx, recipients, e.Actor.ID, notificationType, payload)
	return nil
}

func (l *NotificationListener) handleStockLow(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.StockLowEvent)
	if !ok {
		return nil
	}

	managers, err := l.managerIDs(ctx)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"material_id":   e.MaterialID,
		"material_name": e.MaterialName,
		"variant_id":    e.VariantID,
		"variant_label": e.VariantLabel,
		"stock":         e.Stock,
		"safety_stock":  e.SafetyStock,
	}
	// Низкий остаток важен и тому менеджеру, который сам его списал.
	l.send(ctx, managers, "", services.NotificationLowStock, payload)
	return nil
}

func (l *NotificationListener) managerIDs(ctx context.Context) ([]string, error) {
	managers, err := l.userRepo.ListByRole(ctx, nil, entities.RoleManager)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(managers))
	for _, m := range managers {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// send рассылает уведомление без дублей и без самого инициатора действия.
func (l *NotificationListener) send(ctx context.Context, recipients []string, actorID string, t services.NotificationType, payload map[string]interface{}) {
	seen := make(map[string]struct{}, len(recipients))
	for _, id := range recipients {
		if id == "" || id == actorID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if err := l.notificationService.Notify(ctx, services.NewNotification(id, t, payload)); err != nil {
			l.logger.Error("Не удалось отправить уведомление",
				zap.String("recipient", id),
				zap.String("type", string(t)),
				zap.Error(err),
			)
		}
	}
}
