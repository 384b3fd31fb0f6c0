package events

import (
	"helpdesk-system/internal/entities"
)

const (
	TicketTransitioned = "ticket.transitioned"
	StockLow           = "stock.low"
)

// TicketTransitionedEvent публикуется после коммита перехода тикета.
type TicketTransitionedEvent struct {
	Action entities.HistoryAction
	Ticket entities.Ticket
	Actor  entities.User
}

func (e TicketTransitionedEvent) Name() string {
	return TicketTransitioned
}

// StockLowEvent - остаток варианта опустился до порога пополнения.
type StockLowEvent struct {
	MaterialID   string
	MaterialName string
	VariantID    string
	VariantLabel string
	Stock        int
	SafetyStock  int
	ActorID      string
}

func (e StockLowEvent) Name() string {
	return StockLow
}
