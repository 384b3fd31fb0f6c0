package services

import (
	"strings"
	"time"

	"helpdesk-system/internal/authz"
	"helpdesk-system/internal/entities"
	apperrors "helpdesk-system/pkg/errors"

	"github.com/aarondl/null/v8"
	"github.com/google/uuid"
)

// TicketAction - переход жизненного цикла тикета.
type TicketAction string

const (
	ActionAssign   TicketAction = "assign"
	ActionStart    TicketAction = "start"
	ActionPause    TicketAction = "pause"
	ActionContinue TicketAction = "continue"
	ActionReject   TicketAction = "reject"
	ActionResolve  TicketAction = "resolve"
	ActionClose    TicketAction = "close"
)

var AllTicketActions = []TicketAction{
	ActionAssign, ActionStart, ActionPause, ActionContinue, ActionReject, ActionResolve, ActionClose,
}

const continueDescription = "Продолжение обработки"

type transitionInput struct {
	AssigneeID string
	// Assignee заполняется сервисом после проверки перехода.
	Assignee            *entities.User
	Description         string
	Reason              string
	Solution            string
	SolutionAttachments []entities.Attachment
}

type transition struct {
	permission string
	// from == nil: любой статус, кроме closed.
	from     []entities.TicketStatus
	validate func(in transitionInput) error
	apply    func(t *entities.Ticket, in transitionInput, now time.Time) entities.ProcessHistoryEntry
	// deniedMessage - ответ при отказе по владению.
	deniedMessage string
}

var transitions = map[TicketAction]transition{
	ActionAssign: {
		permission: authz.TicketsAssign,
		from:       []entities.TicketStatus{entities.TicketStatusPending},
		validate: func(in transitionInput) error {
			if strings.TrimSpace(in.AssigneeID) == "" {
				return apperrors.NewValidationError("Не указан исполнитель")
			}
			return nil
		},
		apply: func(t *entities.Ticket, in transitionInput, now time.Time) entities.ProcessHistoryEntry {
			t.Status = entities.TicketStatusAssigned
			t.AssigneeID = null.StringFrom(in.Assignee.ID)
			t.AssigneeName = null.StringFrom(in.Assignee.Name)
			t.AssignTime = null.TimeFrom(now)
			return entities.ProcessHistoryEntry{
				Action:      entities.HistoryActionAssigned,
				Description: orDefault(in.Description, "Назначен исполнитель: "+in.Assignee.Name),
			}
		},
		deniedMessage: "Назначать исполнителя может только менеджер",
	},
	ActionStart: {
		permission: authz.TicketsProcess,
		from:       []entities.TicketStatus{entities.TicketStatusAssigned, entities.TicketStatusProcessing},
		apply: func(t *entities.Ticket, in transitionInput, now time.Time) entities.ProcessHistoryEntry {
			t.Status = entities.TicketStatusProcessing
			t.StartTime = null.TimeFrom(now)
			return entities.ProcessHistoryEntry{Action: entities.HistoryActionProcessing, Description: orDefault(in.Description, "Начата обработка")}
		},
		deniedMessage: "Обрабатывать тикет может только назначенный исполнитель или менеджер",
	},
	ActionPause: {
		permission: authz.TicketsProcess,
		from:       []entities.TicketStatus{entities.TicketStatusProcessing},
		apply: func(t *entities.Ticket, in transitionInput, _ time.Time) entities.ProcessHistoryEntry {
			t.Status = entities.TicketStatusPaused
			return entities.ProcessHistoryEntry{Action: entities.HistoryActionPaused, Description: in.Description}
		},
		deniedMessage: "Приостановить тикет может только назначенный исполнитель или менеджер",
	},
	ActionContinue: {
		permission: authz.TicketsProcess,
		from:       []entities.TicketStatus{entities.TicketStatusPaused},
		apply: func(t *entities.Ticket, in transitionInput, _ time.Time) entities.ProcessHistoryEntry {
			t.Status = entities.TicketStatusProcessing
			return entities.ProcessHistoryEntry{Action: entities.HistoryActionProcessing, Description: orDefault(in.Description, continueDescription)}
		},
		deniedMessage: "Продолжить обработку может только назначенный исполнитель или менеджер",
	},
	ActionReject: {
		permission: authz.TicketsProcess,
		from:       []entities.TicketStatus{entities.TicketStatusProcessing},
		validate: func(in transitionInput) error {
			if strings.TrimSpace(in.Reason) == "" {
				return apperrors.NewValidationError("Укажите причину отклонения")
			}
			return nil
		},
		apply: func(t *entities.Ticket, in transitionInput, _ time.Time) entities.ProcessHistoryEntry {
			// Тикет возвращается в общий пул.
			t.Status = entities.TicketStatusPending
			t.AssigneeID = null.String{}
			t.AssigneeName = null.String{}
			t.AssignTime = null.Time{}
			t.RejectReason = null.StringFrom(in.Reason)
			return entities.ProcessHistoryEntry{Action: entities.HistoryActionRejected, Reason: in.Reason, Description: in.Description}
		},
		deniedMessage: "Отклонить тикет может только назначенный исполнитель или менеджер",
	},
	ActionResolve: {
		permission: authz.TicketsProcess,
		from:       []entities.TicketStatus{entities.TicketStatusProcessing},
		apply: func(t *entities.Ticket, in transitionInput, now time.Time) entities.ProcessHistoryEntry {
			t.Status = entities.TicketStatusResolved
			t.CompleteTime = null.TimeFrom(now)
			if in.Solution != "" {
				t.Solution = null.StringFrom(in.Solution)
			}
			if len(in.SolutionAttachments) > 0 {
				t.SolutionAttachments = append([]entities.Attachment(nil), in.SolutionAttachments...)
			}
			return entities.ProcessHistoryEntry{Action: entities.HistoryActionResolved, Solution: in.Solution, Description: in.Description}
		},
		deniedMessage: "Завершить тикет может только назначенный исполнитель или менеджер",
	},
	ActionClose: {
		permission: authz.TicketsClose,
		apply: func(t *entities.Ticket, in transitionInput, now time.Time) entities.ProcessHistoryEntry {
			t.Status = entities.TicketStatusClosed
			t.CloseTime = null.TimeFrom(now)
			if in.Reason != "" {
				t.CloseReason = null.StringFrom(in.Reason)
			}
			return entities.ProcessHistoryEntry{Action: entities.HistoryActionClosed, Reason: in.Reason, Description: in.Description}
		},
		deniedMessage: "Закрыть тикет может только его автор",
	},
}

func (tr transition) allowedFrom(status entities.TicketStatus) bool {
	if tr.from == nil {
		return status != entities.TicketStatusClosed
	}
	for _, s := range tr.from {
		if s == status {
			return true
		}
	}
	return false
}

// evaluateTransition проверяет переход в фиксированном порядке:
// право роли, статус, входные данные, владение. Ничего не пишет.
func evaluateTransition(action TicketAction, actor *entities.User, ticket *entities.Ticket, in transitionInput) (transition, error) {
	tr, ok := transitions[action]
	if !ok {
		return tr, apperrors.NewValidationError("Неизвестное действие: %s", action)
	}

	authCtx := authz.NewContext(actor, ticket)
	if !authCtx.HasPermission(tr.permission) {
		return tr, apperrors.NewPermissionDeniedError("Роль «%s» не позволяет выполнить действие «%s»", actor.Role, action)
	}

	if !tr.allowedFrom(ticket.Status) {
		return tr, apperrors.NewPreconditionFailedError("Действие «%s» недопустимо для тикета %s в статусе «%s»", action, ticket.TicketNo, ticket.Status)
	}

	if tr.validate != nil {
		if err := tr.validate(in); err != nil {
			return tr, err
		}
	}

	if !authz.CanDo(tr.permission, authCtx) {
		return tr, apperrors.NewPermissionDeniedError("%s", tr.deniedMessage)
	}
	return tr, nil
}

// applyTransition меняет статус и дописывает историю одним действием над документом.
func applyTransition(tr transition, ticket *entities.Ticket, actor *entities.User, in transitionInput, now time.Time) entities.ProcessHistoryEntry {
	entry := tr.apply(ticket, in, now)
	entry.ID = uuid.NewString()
	entry.OperatorID = actor.ID
	entry.OperatorName = actor.Name
	entry.Timestamp = now

	ticket.ProcessHistory = append(ticket.ProcessHistory, entry)
	ticket.UpdateTime = now
	return entry
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
