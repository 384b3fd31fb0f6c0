package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"helpdesk-system/internal/authz"
	"helpdesk-system/internal/dto"
	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/events"
	"helpdesk-system/internal/repositories"
	apperrors "helpdesk-system/pkg/errors"
	"helpdesk-system/pkg/eventbus"

	"github.com/aarondl/null/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type RequisitionServiceInterface interface {
	CreateRequisition(ctx context.Context, data dto.CreateRequisitionDTO) (*dto.RequisitionDTO, error)
	GetRequisition(ctx context.Context, id string) (*dto.RequisitionDTO, error)
	GetRequisitions(ctx context.Context, query dto.RequisitionQueryDTO) ([]dto.RequisitionDTO, uint64, error)
}

type RequisitionService struct {
	*BaseService
	txManager       repositories.TxManagerInterface
	requisitionRepo repositories.RequisitionRepositoryInterface
	ticketRepo      repositories.TicketRepositoryInterface
	ledger          *stockLedger
	validator       *BatchValidator
	ticketService   TicketServiceInterface
	eventBus        *eventbus.Bus
	logger          *zap.Logger
}

func NewRequisitionService(
	base *BaseService,
	txManager repositories.TxManagerInterface,
	requisitionRepo repositories.RequisitionRepositoryInterface,
	ticketRepo repositories.TicketRepositoryInterface,
	materialRepo repositories.MaterialRepositoryInterface,
	logRepo repositories.MaterialLogRepositoryInterface,
	validator *BatchValidator,
	ticketService TicketServiceInterface,
	eventBus *eventbus.Bus,
	logger *zap.Logger,
) RequisitionServiceInterface {
	return &RequisitionService{
		BaseService:     base,
		txManager:       txManager,
		requisitionRepo: requisitionRepo,
		ticketRepo:      ticketRepo,
		ledger:          newStockLedger(materialRepo, logRepo),
		validator:       validator,
		ticketService:   ticketService,
		eventBus:        eventBus,
		logger:          logger,
	}
}

// CreateRequisition проводит выдачу целиком или не проводит ничего:
// списания, журнал, сама заявка и закрытие тикета идут одной транзакцией.
func (s *RequisitionService) CreateRequisition(ctx context.Context, data dto.CreateRequisitionDTO) (*dto.RequisitionDTO, error) {
	actor, err := s.CheckPermission(ctx, authz.RequisitionsCreate)
	if err != nil {
		return nil, err
	}
	if len(data.Items) == 0 {
		return nil, apperrors.NewValidationError("Список позиций пуст")
	}
	ticketNo := strings.TrimSpace(data.TicketNo)
	if data.ResolveTicket && ticketNo == "" {
		return nil, apperrors.NewValidationError("Чтобы завершить тикет, укажите его номер")
	}

	report, err := s.validator.validate(ctx, actor, data.Items)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		return nil, &apperrors.AppError{
			Kind:    apperrors.ErrValidation,
			Message: "Подбор содержит ошибки, заявка не проведена",
			Details: report,
		}
	}

	var (
		requisition    *entities.Requisition
		lowStock       []stockOutcome
		resolvedTicket *entities.Ticket
	)
	err = s.WithConflictRetry(ctx, "createRequisition", func() error {
		now := time.Now()
		req := &entities.Requisition{
			ID:            uuid.NewString(),
			RequisitionNo: generateDailyNumber("RQ", now),
			ApplicantID:   actor.ID,
			ApplicantName: actor.Name,
			Department:    actor.Department,
			Items:         make([]entities.RequisitionItem, 0, len(data.Items)),
			TotalAmount:   decimal.Zero,
			Status:        entities.RequisitionStatusCompleted,
			Note:          data.Note,
			CreateTime:    now,
		}
		if ticketNo != "" {
			req.TicketNo = null.StringFrom(ticketNo)
		}
		lowStock = lowStock[:0]
		resolvedTicket = nil

		return s.txManager.RunInTransaction(ctx, func(tx repositories.Tx) error {
			if ticketNo != "" && !data.ResolveTicket {
				if _, err := s.ticketRepo.FindByTicketNo(ctx, tx, ticketNo); err != nil {
					if errors.Is(err, apperrors.ErrNotFound) {
						return apperrors.NewNotFoundError("Тикет %s не найден", ticketNo)
					}
					return err
				}
			}

			for _, item := range data.Items {
				outcome, err := s.ledger.mutate(ctx, tx, stockMutation{
					MaterialID:    item.MaterialID,
					VariantID:     item.VariantID,
					Type:          entities.MaterialLogOut,
					Quantity:      item.Quantity,
					Reason:        "Выдача по заявке " + req.RequisitionNo,
					OperatorID:    actor.ID,
					RequisitionNo: req.RequisitionNo,
				})
				if err != nil {
					return err
				}

				price := rolePrice(actor, outcome.Variant)
				subtotal := price.Mul(decimal.NewFromInt(int64(item.Quantity)))
				req.Items = append(req.Items, entities.RequisitionItem{
					MaterialID:   outcome.Material.ID,
					MaterialName: outcome.Material.Name,
					VariantID:    outcome.Variant.VariantID,
					VariantLabel: outcome.Variant.Label,
					Quantity:     item.Quantity,
					CostPrice:    outcome.Variant.CostPrice,
					SalePrice:    outcome.Variant.SalePrice,
					Subtotal:     subtotal,
				})
				req.TotalAmount = req.TotalAmount.Add(subtotal)
				if outcome.BecameLow {
					lowStock = append(lowStock, outcome)
				}
			}

			if err := s.requisitionRepo.Create(ctx, tx, req); err != nil {
				return err
			}

			if data.ResolveTicket {
				ticket, err := s.ticketService.ResolveInTransaction(ctx, tx, actor, ticketNo, data.Solution)
				if err != nil {
					return err
				}
				resolvedTicket = ticket
			}
			requisition = req
			return nil
		})
	})
	if err != nil {
		s.logger.Warn("Заявка на выдачу не проведена", zap.String("applicantID", actor.ID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Заявка на выдачу проведена",
		zap.String("requisitionNo", requisition.RequisitionNo),
		zap.Int("items", len(requisition.Items)),
		zap.String("applicantID", actor.ID),
	)

	for _, outcome := range lowStock {
		publishStockLow(ctx, s.eventBus, outcome, actor.ID)
	}
	if resolvedTicket != nil && s.eventBus != nil {
		s.eventBus.Publish(ctx, events.TicketTransitionedEvent{
			Action: entities.HistoryActionResolved,
			Ticket: resolvedTicket.Clone(),
			Actor:  *actor,
		})
	}

	result := toRequisitionDTO(requisition, authz.PermissionsFor(actor.Role)[authz.MaterialsPriceView])
	return &result, nil
}

func (s *RequisitionService) GetRequisition(ctx context.Context, id string) (*dto.RequisitionDTO, error) {
	actor, err := s.CheckPermission(ctx, authz.RequisitionsView)
	if err != nil {
		return nil, err
	}
	req, err := s.requisitionRepo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("Заявка %s не найдена", id)
		}
		return nil, err
	}
	if !authz.CanDo(authz.RequisitionsView, authz.NewContext(actor, req)) {
		return nil, apperrors.NewPermissionDeniedError("Нет доступа к заявке %s", req.RequisitionNo)
	}
	result := toRequisitionDTO(req, authz.PermissionsFor(actor.Role)[authz.MaterialsPriceView])
	return &result, nil
}

func (s *RequisitionService) GetRequisitions(ctx context.Context, query dto.RequisitionQueryDTO) ([]dto.RequisitionDTO, uint64, error) {
	actor, err := s.CheckPermission(ctx, authz.RequisitionsView)
	if err != nil {
		return nil, 0, err
	}
	perms := authz.PermissionsFor(actor.Role)

	filter := entities.RequisitionFilter{
		TicketNo: query.TicketNo,
		Limit:    query.Limit,
		Offset:   query.Offset,
	}
	if !perms[authz.ScopeAll] {
		filter.ApplicantID = actor.ID
	}

	list, total, err := s.requisitionRepo.List(ctx, nil, filter)
	if err != nil {
		s.logger.Error("Не удалось получить список заявок", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.RequisitionDTO, 0, len(list))
	for i := range list {
		result = append(result, toRequisitionDTO(&list[i], perms[authz.MaterialsPriceView]))
	}
	return result, total, nil
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func toRequisitionDTO(r *entities.Requisition, withPrices bool) dto.RequisitionDTO {
	items := make([]dto.RequisitionItemResponseDTO, 0, len(r.Items))
	for _, it := range r.Items {
		item := dto.RequisitionItemResponseDTO{
			MaterialID:   it.MaterialID,
			MaterialName: it.MaterialName,
			VariantID:    it.VariantID,
			VariantLabel: it.VariantLabel,
			Quantity:     it.Quantity,
		}
		if withPrices {
			item.CostPrice = decimalPtr(it.CostPrice)
			item.SalePrice = decimalPtr(it.SalePrice)
			item.Subtotal = decimalPtr(it.Subtotal)
		}
		items = append(items, item)
	}

	result := dto.RequisitionDTO{
		ID:            r.ID,
		RequisitionNo: r.RequisitionNo,
		Applicant:     dto.ShortUserDTO{ID: r.ApplicantID, Name: r.ApplicantName},
		Department:    r.Department,
		TicketNo:      nullStringPtr(r.TicketNo),
		Items:         items,
		Status:        string(r.Status),
		Note:          r.Note,
		CreateTime:    formatTime(r.CreateTime),
	}
	if withPrices {
		result.TotalAmount = decimalPtr(r.TotalAmount)
	}
	return result
}
