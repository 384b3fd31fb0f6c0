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
	"go.uber.org/zap"
)

type TicketServiceInterface interface {
	SubmitTicket(ctx context.Context, data dto.CreateTicketDTO) (*dto.TicketDTO, error)
	GetTicket(ctx context.Context, id string) (*dto.TicketDTO, error)
	GetTickets(ctx context.Context, query dto.TicketQueryDTO) ([]dto.TicketDTO, uint64, error)
	GetHistory(ctx context.Context, id string) ([]dto.ProcessHistoryDTO, error)
	UpdateTicketInfo(ctx context.Context, id string, data dto.UpdateTicketDTO) (*dto.TicketDTO, error)

	Assign(ctx context.Context, id string, data dto.AssignTicketDTO) (*dto.TicketDTO, error)
	StartProcess(ctx context.Context, id string, data dto.TicketActionDTO) (*dto.TicketDTO, error)
	Pause(ctx context.Context, id string, data dto.TicketActionDTO) (*dto.TicketDTO, error)
	Continue(ctx context.Context, id string, data dto.TicketActionDTO) (*dto.TicketDTO, error)
	Reject(ctx context.Context, id string, data dto.RejectTicketDTO) (*dto.TicketDTO, error)
	Resolve(ctx context.Context, id string, data dto.ResolveTicketDTO) (*dto.TicketDTO, error)
	Close(ctx context.Context, id string, data dto.CloseTicketDTO) (*dto.TicketDTO, error)

	// ResolveInTransaction завершает тикет внутри чужой транзакции. Событие публикует вызывающий.
	ResolveInTransaction(ctx context.Context, tx repositories.Tx, actor *entities.User, ticketNo, solution string) (*entities.Ticket, error)
}

type TicketService struct {
	*BaseService
	txManager  repositories.TxManagerInterface
	ticketRepo repositories.TicketRepositoryInterface
	userRepo   repositories.UserRepositoryInterface
	eventBus   *eventbus.Bus
	logger     *zap.Logger
}

func NewTicketService(
	base *BaseService,
	txManager repositories.TxManagerInterface,
	ticketRepo repositories.TicketRepositoryInterface,
	userRepo repositories.UserRepositoryInterface,
	eventBus *eventbus.Bus,
	logger *zap.Logger,
) TicketServiceInterface {
	return &TicketService{
		BaseService: base,
		txManager:   txManager,
		ticketRepo:  ticketRepo,
		userRepo:    userRepo,
		eventBus:    eventBus,
		logger:      logger,
	}
}

func ticketLookupError(err error, ref string) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NewNotFoundError("Тикет %s не найден", ref)
	}
	return err
}

func (s *TicketService) SubmitTicket(ctx context.Context, data dto.CreateTicketDTO) (*dto.TicketDTO, error) {
	actor, err := s.CheckPermission(ctx, authz.TicketsCreate)
	if err != nil {
		return nil, err
	}

	priority := entities.TicketPriorityMedium
	if data.Priority != "" {
		priority = entities.TicketPriority(data.Priority)
	}
	phone := data.SubmitterPhone
	if !phone.Valid && actor.Phone != "" {
		phone = null.StringFrom(actor.Phone)
	}

	now := time.Now()
	ticket := &entities.Ticket{
		ID:                  uuid.NewString(),
		Title:               strings.TrimSpace(data.Title),
		Description:         data.Description,
		Category:            data.Category,
		Priority:            priority,
		Status:              entities.TicketStatusPending,
		SubmitterID:         actor.ID,
		SubmitterName:       actor.Name,
		SubmitterPhone:      phone,
		Location:            data.Location,
		Attachments:         toAttachmentEntities(data.Attachments),
		SolutionAttachments: []entities.Attachment{},
		CreateTime:          now,
		UpdateTime:          now,
		ProcessHistory: []entities.ProcessHistoryEntry{{
			ID:           uuid.NewString(),
			Action:       entities.HistoryActionCreated,
			OperatorID:   actor.ID,
			OperatorName: actor.Name,
			Timestamp:    now,
			Description:  "Тикет создан",
		}},
	}

	// Конфликт здесь означает занятый номер: генерируем новый.
	err = s.WithConflictRetry(ctx, "submitTicket", func() error {
		ticket.TicketNo = generateDailyNumber("TK", now)
		ticket.Revision = 0
		return s.txManager.RunInTransaction(ctx, func(tx repositories.Tx) error {
			return s.ticketRepo.Create(ctx, tx, ticket)
		})
	})
	if err != nil {
		s.logger.Error("Не удалось создать тикет", zap.String("submitterID", actor.ID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Тикет создан", zap.String("ticketNo", ticket.TicketNo), zap.String("submitterID", actor.ID))
	result := toTicketDTO(ticket)
	return &result, nil
}

func (s *TicketService) findVisible(ctx context.Context, id string) (*entities.Ticket, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	ticket, err := s.ticketRepo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, ticketLookupError(err, id)
	}
	if !authz.CanDo(authz.TicketsView, authz.NewContext(actor, ticket)) {
		return nil, apperrors.NewPermissionDeniedError("Нет доступа к тикету %s", ticket.TicketNo)
	}
	return ticket, nil
}

func (s *TicketService) GetTicket(ctx context.Context, id string) (*dto.TicketDTO, error) {
	ticket, err := s.findVisible(ctx, id)
	if err != nil {
		return nil, err
	}
	result := toTicketDTO(ticket)
	return &result, nil
}

func (s *TicketService) GetHistory(ctx context.Context, id string) ([]dto.ProcessHistoryDTO, error) {
	ticket, err := s.findVisible(ctx, id)
	if err != nil {
		return nil, err
	}
	return toHistoryDTOs(ticket.ProcessHistory), nil
}

func (s *TicketService) GetTickets(ctx context.Context, query dto.TicketQueryDTO) ([]dto.TicketDTO, uint64, error) {
	actor, err := s.CheckPermission(ctx, authz.TicketsView)
	if err != nil {
		return nil, 0, err
	}

	filter := entities.TicketFilter{
		Category:    query.Category,
		SubmitterID: query.SubmitterID,
		AssigneeID:  query.AssigneeID,
		Search:      strings.TrimSpace(query.Search),
		Limit:       query.Limit,
		Offset:      query.Offset,
	}
	for _, raw := range query.Statuses {
		status := entities.TicketStatus(raw)
		if !isKnownStatus(status) {
			return nil, 0, apperrors.NewValidationError("Неизвестный статус тикета: %s", raw)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	// Область видимости списка совпадает с правилами просмотра одного тикета.
	perms := authz.PermissionsFor(actor.Role)
	switch {
	case perms[authz.ScopeAll]:
	case perms[authz.TicketsProcess]:
		if query.SubmitterID != actor.ID {
			filter.SubmitterID = ""
			filter.VisibleToEngineer = actor.ID
		}
	default:
		filter.SubmitterID = actor.ID
	}

	tickets, total, err := s.ticketRepo.List(ctx, nil, filter)
	if err != nil {
		s.logger.Error("Не удалось получить список тикетов", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.TicketDTO, 0, len(tickets))
	for i := range tickets {
		result = append(result, toTicketDTO(&tickets[i]))
	}
	return result, total, nil
}

func (s *TicketService) UpdateTicketInfo(ctx context.Context, id string, data dto.UpdateTicketDTO) (*dto.TicketDTO, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}

	var updated *entities.Ticket
	err = s.WithConflictRetry(ctx, "updateTicketInfo", func() error {
		return s.txManager.RunInTransaction(ctx, func(tx repositories.Tx) error {
			ticket, err := s.ticketRepo.FindByID(ctx, tx, id)
			if err != nil {
				return ticketLookupError(err, id)
			}

			authCtx := authz.NewContext(actor, ticket)
			if !authz.CanDo(authz.TicketsUpdate, authCtx) {
				return apperrors.NewPermissionDeniedError("Изменять тикет может только автор или менеджер")
			}
			if authCtx.HasPermission(authz.ScopeAll) {
				if ticket.Status == entities.TicketStatusClosed {
					return apperrors.NewPreconditionFailedError("Тикет %s закрыт и не может быть изменён", ticket.TicketNo)
				}
			} else if ticket.Status != entities.TicketStatusPending {
				return apperrors.NewPreconditionFailedError("Автор может менять тикет %s только до назначения исполнителя", ticket.TicketNo)
			}

			if data.Title != nil {
				ticket.Title = strings.TrimSpace(*data.Title)
			}
			if data.Description != nil {
				ticket.Description = *data.Description
			}
			if data.Category != nil {
				ticket.Category = *data.Category
			}
			if data.Priority != nil {
				ticket.Priority = entities.TicketPriority(*data.Priority)
			}
			if data.Location != nil {
				ticket.Location = null.StringFrom(*data.Location)
			}
			ticket.UpdateTime = time.Now()

			if err := s.ticketRepo.Update(ctx, tx, ticket); err != nil {
				return err
			}
			updated = ticket
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Тикет обновлён", zap.String("ticketNo", updated.TicketNo), zap.String("operatorID", actor.ID))
	result := toTicketDTO(updated)
	return &result, nil
}

func (s *TicketService) Assign(ctx context.Context, id string, data dto.AssignTicketDTO) (*dto.TicketDTO, error) {
	return s.runTransition(ctx, id, ActionAssign, transitionInput{AssigneeID: data.AssigneeID})
}

func (s *TicketService) StartProcess(ctx context.Context, id string, data dto.TicketActionDTO) (*dto.TicketDTO, error) {
	return s.runTransition(ctx, id, ActionStart, transitionInput{Description: data.Description})
}

func (s *TicketService) Pause(ctx context.Context, id string, data dto.TicketActionDTO) (*dto.TicketDTO, error) {
	return s.runTransition(ctx, id, ActionPause, transitionInput{Description: data.Description})
}

func (s *TicketService) Continue(ctx context.Context, id string, data dto.TicketActionDTO) (*dto.TicketDTO, error) {
	return s.runTransition(ctx, id, ActionContinue, transitionInput{Description: data.Description})
}

func (s *TicketService) Reject(ctx context.Context, id string, data dto.RejectTicketDTO) (*dto.TicketDTO, error) {
	return s.runTransition(ctx, id, ActionReject, transitionInput{Reason: strings.TrimSpace(data.Reason)})
}

func (s *TicketService) Resolve(ctx context.Context, id string, data dto.ResolveTicketDTO) (*dto.TicketDTO, error) {
	return s.runTransition(ctx, id, ActionResolve, transitionInput{
		Solution:            strings.TrimSpace(data.Solution),
		SolutionAttachments: toAttachmentEntities(data.SolutionAttachments),
	})
}

func (s *TicketService) Close(ctx context.Context, id string, data dto.CloseTicketDTO) (*dto.TicketDTO, error) {
	return s.runTransition(ctx, id, ActionClose, transitionInput{Reason: strings.TrimSpace(data.Reason)})
}

// runTransition: одна транзакция на переход, при конфликте перечитываем тикет
// и проверяем переход заново уже против нового состояния.
func (s *TicketService) runTransition(ctx context.Context, id string, action TicketAction, in transitionInput) (*dto.TicketDTO, error) {
	actor, err := s.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}

	var (
		ticket *entities.Ticket
		entry  entities.ProcessHistoryEntry
	)
	err = s.WithConflictRetry(ctx, string(action), func() error {
		return s.txManager.RunInTransaction(ctx, func(tx repositories.Tx) error {
			found, err := s.ticketRepo.FindByID(ctx, tx, id)
			if err != nil {
				return ticketLookupError(err, id)
			}
			entry, err = s.applyAction(ctx, tx, action, actor, found, in)
			if err != nil {
				return err
			}
			ticket = found
			return nil
		})
	})
	if err != nil {
		s.logger.Warn("Переход тикета отклонён",
			zap.String("ticketID", id),
			zap.String("action", string(action)),
			zap.String("operatorID", actor.ID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Переход тикета выполнен",
		zap.String("ticketNo", ticket.TicketNo),
		zap.String("action", string(action)),
		zap.String("status", string(ticket.Status)),
		zap.String("operatorID", actor.ID),
	)
	s.publishTransition(ctx, entry.Action, ticket, actor)

	result := toTicketDTO(ticket)
	return &result, nil
}

func (s *TicketService) applyAction(ctx context.Context, tx repositories.Tx, action TicketAction, actor *entities.User, ticket *entities.Ticket, in transitionInput) (entities.ProcessHistoryEntry, error) {
	tr, err := evaluateTransition(action, actor, ticket, in)
	if err != nil {
		return entities.ProcessHistoryEntry{}, err
	}

	if action == ActionAssign {
		assignee, err := s.userRepo.FindByID(ctx, tx, in.AssigneeID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return entities.ProcessHistoryEntry{}, apperrors.NewNotFoundError("Исполнитель %s не найден", in.AssigneeID)
			}
			return entities.ProcessHistoryEntry{}, err
		}
		if !assignee.Role.IsStaff() {
			return entities.ProcessHistoryEntry{}, apperrors.NewValidationError("Исполнителем может быть только инженер или менеджер")
		}
		in.Assignee = assignee
	}

	entry := applyTransition(tr, ticket, actor, in, time.Now())
	if err := s.ticketRepo.Update(ctx, tx, ticket); err != nil {
		return entities.ProcessHistoryEntry{}, err
	}
	return entry, nil
}

func (s *TicketService) ResolveInTransaction(ctx context.Context, tx repositories.Tx, actor *entities.User, ticketNo, solution string) (*entities.Ticket, error) {
	ticket, err := s.ticketRepo.FindByTicketNo(ctx, tx, ticketNo)
	if err != nil {
		return nil, ticketLookupError(err, ticketNo)
	}
	if _, err := s.applyAction(ctx, tx, ActionResolve, actor, ticket, transitionInput{Solution: strings.TrimSpace(solution)}); err != nil {
		return nil, err
	}
	return ticket, nil
}

// publishTransition вызывается только после коммита.
func (s *TicketService) publishTransition(ctx context.Context, action entities.HistoryAction, ticket *entities.Ticket, actor *entities.User) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(ctx, events.TicketTransitionedEvent{
		Action: action,
		Ticket: ticket.Clone(),
		Actor:  *actor,
	})
}

func isKnownStatus(status entities.TicketStatus) bool {
	for _, s := range entities.AllTicketStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func toAttachmentEntities(items []dto.AttachmentDTO) []entities.Attachment {
	result := make([]entities.Attachment, 0, len(items))
	for _, a := range items {
		result = append(result, entities.Attachment{ID: a.ID, URL: a.URL, Size: a.Size, Type: a.Type})
	}
	return result
}

func toAttachmentDTOs(items []entities.Attachment) []dto.AttachmentDTO {
	result := make([]dto.AttachmentDTO, 0, len(items))
	for _, a := range items {
		result = append(result, dto.AttachmentDTO{ID: a.ID, URL: a.URL, Size: a.Size, Type: a.Type})
	}
	return result
}

func toHistoryDTOs(history []entities.ProcessHistoryEntry) []dto.ProcessHistoryDTO {
	result := make([]dto.ProcessHistoryDTO, 0, len(history))
	for _, h := range history {
		result = append(result, dto.ProcessHistoryDTO{
			ID:          h.ID,
			Action:      string(h.Action),
			Operator:    dto.ShortUserDTO{ID: h.OperatorID, Name: h.OperatorName},
			Timestamp:   formatTime(h.Timestamp),
			Description: h.Description,
			Reason:      h.Reason,
			Solution:    h.Solution,
		})
	}
	return result
}

func nullStringPtr(s null.String) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func toTicketDTO(t *entities.Ticket) dto.TicketDTO {
	result := dto.TicketDTO{
		ID:                  t.ID,
		TicketNo:            t.TicketNo,
		Title:               t.Title,
		Description:         t.Description,
		Category:            t.Category,
		Priority:            string(t.Priority),
		Status:              string(t.Status),
		Submitter:           dto.ShortUserDTO{ID: t.SubmitterID, Name: t.SubmitterName},
		SubmitterPhone:      nullStringPtr(t.SubmitterPhone),
		Location:            nullStringPtr(t.Location),
		Solution:            nullStringPtr(t.Solution),
		CloseReason:         nullStringPtr(t.CloseReason),
		RejectReason:        nullStringPtr(t.RejectReason),
		Attachments:         toAttachmentDTOs(t.Attachments),
		SolutionAttachments: toAttachmentDTOs(t.SolutionAttachments),
		CreateTime:          formatTime(t.CreateTime),
		UpdateTime:          formatTime(t.UpdateTime),
		AssignTime:          formatNullTime(t.AssignTime.Valid, t.AssignTime.Time),
		StartTime:           formatNullTime(t.StartTime.Valid, t.StartTime.Time),
		CompleteTime:        formatNullTime(t.CompleteTime.Valid, t.CompleteTime.Time),
		CloseTime:           formatNullTime(t.CloseTime.Valid, t.CloseTime.Time),
		ProcessHistory:      toHistoryDTOs(t.ProcessHistory),
	}
	if t.AssigneeID.Valid {
		result.Assignee = &dto.ShortUserDTO{ID: t.AssigneeID.String, Name: t.AssigneeName.String}
	}
	return result
}
