package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"helpdesk-system/internal/dto"
	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/events"
	"helpdesk-system/internal/repositories"
	"helpdesk-system/internal/repositories/memory"
	"helpdesk-system/pkg/contextkeys"
	"helpdesk-system/pkg/eventbus"

	"github.com/aarondl/null/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	submitterID = "u-1"
	otherUserID = "u-2"
	engineerID  = "e-1"
	strangerID  = "e-2"
	managerID   = "m-1"
)

var testUsers = []entities.User{
	{ID: submitterID, Name: "Анна Петрова", Phone: "+992 900 000 001", Department: "Бухгалтерия", Role: entities.RoleUser},
	{ID: otherUserID, Name: "Олег Сидоров", Department: "Кадры", Role: entities.RoleUser},
	{ID: engineerID, Name: "Борис Инженеров", Department: "ИТ", Role: entities.RoleEngineer},
	{ID: strangerID, Name: "Вера Техникова", Department: "ИТ", Role: entities.RoleEngineer},
	{ID: managerID, Name: "Глеб Начальников", Department: "ИТ", Role: entities.RoleManager},
}

// eventRecorder собирает опубликованные события.
type eventRecorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *eventRecorder) listen(_ context.Context, e eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) all() []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]eventbus.Event(nil), r.events...)
}

type testEnv struct {
	store        *memory.Store
	bus          *eventbus.Bus
	recorder     *eventRecorder
	cache        *memory.Cache
	userRepo     repositories.UserRepositoryInterface
	ticketRepo   repositories.TicketRepositoryInterface
	materialRepo repositories.MaterialRepositoryInterface
	logRepo      repositories.MaterialLogRepositoryInterface
	reqRepo      repositories.RequisitionRepositoryInterface

	resolver     RoleResolverInterface
	tickets      TicketServiceInterface
	inventory    InventoryServiceInterface
	validator    *BatchValidator
	requisitions RequisitionServiceInterface
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()

	env := &testEnv{
		store:        store,
		bus:          eventbus.New(logger),
		recorder:     &eventRecorder{},
		cache:        memory.NewCache(),
		userRepo:     memory.NewUserRepository(store),
		ticketRepo:   memory.NewTicketRepository(store),
		materialRepo: memory.NewMaterialRepository(store),
		logRepo:      memory.NewMaterialLogRepository(store),
		reqRepo:      memory.NewRequisitionRepository(store),
	}
	env.bus.Subscribe(events.TicketTransitioned, env.recorder.listen)
	env.bus.Subscribe(events.StockLow, env.recorder.listen)

	for i := range testUsers {
		u := testUsers[i]
		require.NoError(t, env.userRepo.Create(context.Background(), nil, &u))
	}

	txManager := memory.NewTxManager(store)
	env.resolver = NewRoleResolver(env.userRepo, env.cache, logger, time.Minute)
	base := NewBaseService(env.resolver, logger, 3)

	env.tickets = NewTicketService(base, txManager, env.ticketRepo, env.userRepo, env.bus, logger)
	env.inventory = NewInventoryService(base, txManager, env.materialRepo, env.logRepo, env.bus, logger)
	env.validator = NewBatchValidator(base, env.materialRepo, 0.8, logger)
	env.requisitions = NewRequisitionService(base, txManager, env.reqRepo, env.ticketRepo,
		env.materialRepo, env.logRepo, env.validator, env.tickets, env.bus, logger)
	return env
}

func as(userID string) context.Context {
	return context.WithValue(context.Background(), contextkeys.UserIDKey, userID)
}

// seedTicket кладёт тикет в нужном статусе напрямую в хранилище.
func (env *testEnv) seedTicket(t *testing.T, status entities.TicketStatus) *entities.Ticket {
	t.Helper()
	now := time.Now()
	ticket := &entities.Ticket{
		ID:            uuid.NewString(),
		TicketNo:      "TK" + uuid.NewString()[:8],
		Title:         "Не печатает принтер",
		Description:   "Принтер в 204 кабинете выдаёт пустые листы",
		Category:      "printer",
		Priority:      entities.TicketPriorityMedium,
		Status:        status,
		SubmitterID:   submitterID,
		SubmitterName: "Анна Петрова",
		CreateTime:    now,
		UpdateTime:    now,
		ProcessHistory: []entities.ProcessHistoryEntry{{
			ID: uuid.NewString(), Action: entities.HistoryActionCreated, OperatorID: submitterID, Timestamp: now,
		}},
	}
	if status != entities.TicketStatusPending {
		ticket.AssigneeID = null.StringFrom(engineerID)
		ticket.AssigneeName = null.StringFrom("Борис Инженеров")
	}
	require.NoError(t, env.ticketRepo.Create(context.Background(), nil, ticket))
	return ticket
}

func (env *testEnv) reloadTicket(t *testing.T, id string) *entities.Ticket {
	t.Helper()
	ticket, err := env.ticketRepo.FindByID(context.Background(), nil, id)
	require.NoError(t, err)
	return ticket
}

// createMaterial создаёт материал от имени менеджера и возвращает его с ценами.
func (env *testEnv) createMaterial(t *testing.T, name string, variants ...dto.CreateVariantDTO) *dto.MaterialDTO {
	t.Helper()
	m, err := env.inventory.CreateMaterial(as(managerID), dto.CreateMaterialDTO{
		Name:     name,
		Category: "consumables",
		Unit:     "шт",
		Variants: variants,
	})
	require.NoError(t, err)
	return m
}

func newVariant(label string, stock, safety int, cost, sale string) dto.CreateVariantDTO {
	return dto.CreateVariantDTO{
		Label:       label,
		Stock:       stock,
		SafetyStock: safety,
		CostPrice:   decimal.RequireFromString(cost),
		SalePrice:   decimal.RequireFromString(sale),
	}
}

func (env *testEnv) stockOf(t *testing.T, materialID, variantID string) int {
	t.Helper()
	m, err := env.materialRepo.FindByID(context.Background(), nil, materialID, entities.AnyMaterialStatus)
	require.NoError(t, err)
	idx := m.VariantIndex(variantID)
	require.GreaterOrEqual(t, idx, 0)
	return m.Variants[idx].Stock
}

func (env *testEnv) logsOf(t *testing.T, filter entities.MaterialLogFilter) []entities.MaterialLog {
	t.Helper()
	logs, _, err := env.logRepo.List(context.Background(), nil, filter)
	require.NoError(t, err)
	return logs
}
