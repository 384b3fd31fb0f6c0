package listeners

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/events"
	"helpdesk-system/internal/repositories/memory"
	"helpdesk-system/internal/services"
	"helpdesk-system/pkg/eventbus"

	"github.com/aarondl/null/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturingNotifier struct {
	mu   sync.Mutex
	sent []services.Notification
	fail bool
}

func (c *capturingNotifier) Notify(_ context.Context, n services.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	if c.fail {
		return errors.New("брокер недоступен")
	}
	return nil
}

func (c *capturingNotifier) recipients(t services.NotificationType) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0)
	for _, n := range c.sent {
		if n.Type == t {
			ids = append(ids, n.RecipientID)
		}
	}
	sort.Strings(ids)
	return ids
}

func setup(t *testing.T) (*eventbus.Bus, *capturingNotifier) {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	users := memory.NewUserRepository(store)
	for _, u := range []entities.User{
		{ID: "u-1", Name: "Анна", Role: entities.RoleUser},
		{ID: "e-1", Name: "Борис", Role: entities.RoleEngineer},
		{ID: "m-1", Name: "Глеб", Role: entities.RoleManager},
		{ID: "m-2", Name: "Дина", Role: entities.RoleManager},
	} {
		u := u
		require.NoError(t, users.Create(context.Background(), nil, &u))
	}

	notifier := &capturingNotifier{}
	bus := eventbus.New(logger)
	NewNotificationListener(notifier, users, logger).Register(bus)
	return bus, notifier
}

func ticket() entities.Ticket {
	return entities.Ticket{
		ID:          "t-1",
		TicketNo:    "TK202610160001",
		Title:       "Нет сети",
		SubmitterID: "u-1",
		AssigneeID:  null.StringFrom("e-1"),
	}
}

func TestAssignedNotifiesAssignee(t *testing.T) {
	bus, notifier := setup(t)

	bus.Publish(context.Background(), events.TicketTransitionedEvent{
		Action: entities.HistoryActionAssigned,
		Ticket: ticket(),
		Actor:  entities.User{ID: "m-1", Role: entities.RoleManager},
	})
	bus.Wait()

	assert.Equal(t, []string{"e-1"}, notifier.recipients(services.NotificationTicketAssigned))
}

func TestRejectedNotifiesSubmitterAndManagers(t *testing.T) {
	bus, notifier := setup(t)

	tk := ticket()
	tk.AssigneeID = null.String{}
	tk.RejectReason = null.StringFrom("нужна эскалация")
	bus.Publish(context.Background(), events.TicketTransitionedEvent{
		Action: entities.HistoryActionRejected,
		Ticket: tk,
		Actor:  entities.User{ID: "m-2", Role: entities.RoleManager},
	})
	bus.Wait()

	assert.Equal(t, []string{"m-1", "u-1"}, notifier.recipients(services.NotificationTicketRejected), "инициатор не получает своё уведомление")
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, "нужна эскалация", notifier.sent[0].Payload["reason"])
}

func TestResolvedNotifiesSubmitterOnly(t *testing.T) {
	bus, notifier := setup(t)

	for _, action := range []entities.HistoryAction{entities.HistoryActionProcessing, entities.HistoryActionPaused, entities.HistoryActionResolved} {
		bus.Publish(context.Background(), events.TicketTransitionedEvent{
			Action: action,
			Ticket: ticket(),
			Actor:  entities.User{ID: "e-1", Role: entities.RoleEngineer},
		})
	}
	bus.Wait()

	assert.Equal(t, []string{"u-1"}, notifier.recipients(services.NotificationTicketResolved))
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Len(t, notifier.sent, 1)
}

func TestStockLowNotifiesAllManagers(t *testing.T) {
	bus, notifier := setup(t)
	notifier.fail = true

	bus.Publish(context.Background(), events.StockLowEvent{
		MaterialID: "mt-1", MaterialName: "Тонер", VariantID: "v-1", VariantLabel: "HP",
		Stock: 2, SafetyStock: 10, ActorID: "m-1",
	})
	bus.Wait()

	// Ошибка доставки одному получателю не мешает остальным.
	assert.Equal(t, []string{"m-1", "m-2"}, notifier.recipients(services.NotificationLowStock))
}
