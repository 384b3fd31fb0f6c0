package authz

import (
	"helpdesk-system/internal/entities"
)

// Context - кто действует, какими правами и над чем.
// Роль актора всегда взята из справочника пользователей, а не из запроса.
type Context struct {
	Actor             *entities.User
	Permissions       map[string]bool
	Target            interface{}
	CurrentPermission string
}

func NewContext(actor *entities.User, target interface{}) Context {
	return Context{
		Actor:       actor,
		Permissions: PermissionsFor(actor.Role),
		Target:      target,
	}
}

func (c *Context) HasPermission(permission string) bool {
	if c.Permissions == nil {
		return false
	}
	return c.Permissions[permission]
}

// canAccessTicket - проверка владения тикетом
func canAccessTicket(ctx Context, target *entities.Ticket) bool {
	actor := ctx.Actor
	isSubmitter := target.SubmitterID == actor.ID

	switch ctx.CurrentPermission {
	case TicketsView:
		if ctx.HasPermission(ScopeAll) || isSubmitter || target.IsAssignee(actor.ID) {
			return true
		}
		// Инженер видит общий пул неназначенных тикетов.
		return ctx.HasPermission(TicketsProcess) && target.Status == entities.TicketStatusPending

	case TicketsUpdate:
		return ctx.HasPermission(ScopeAll) || isSubmitter

	case TicketsProcess:
		// Менеджер работает с любым тикетом, инженер только со своим.
		return ctx.HasPermission(ScopeAll) || target.IsAssignee(actor.ID)

	case TicketsClose:
		// Закрыть может только автор, без исключений для менеджера.
		return isSubmitter
	}

	return ctx.HasPermission(ScopeAll)
}

func canAccessRequisition(ctx Context, target *entities.Requisition) bool {
	if ctx.HasPermission(ScopeAll) {
		return true
	}
	return target.ApplicantID == ctx.Actor.ID
}

// CanDo - RBAC-проверка права плюс ABAC-проверка цели, если она задана.
func CanDo(permission string, ctx Context) bool {
	ctx.CurrentPermission = permission

	if ctx.Actor == nil || !ctx.HasPermission(permission) {
		return false
	}

	if ctx.Target == nil {
		return true
	}

	switch target := ctx.Target.(type) {
	case *entities.Ticket:
		return canAccessTicket(ctx, target)
	case *entities.Requisition:
		return canAccessRequisition(ctx, target)
	}

	return true
}
