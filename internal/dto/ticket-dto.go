package dto

import (
	"github.com/aarondl/null/v8"
)

type AttachmentDTO struct {
	ID   string `json:"id" validate:"required"`
	URL  string `json:"url" validate:"required"`
	Size int64  `json:"size" validate:"gte=0"`
	Type string `json:"type"`
}

type CreateTicketDTO struct {
	Title          string          `json:"title" validate:"required,min=3,max=200"`
	Description    string          `json:"description" validate:"required"`
	Category       string          `json:"category" validate:"required,max=100"`
	Priority       string          `json:"priority,omitempty" validate:"omitempty,ticket_priority"`
	SubmitterPhone null.String     `json:"submitter_phone,omitempty" validate:"omitempty,phone"`
	Location       null.String     `json:"location,omitempty" validate:"omitempty,max=255"`
	Attachments    []AttachmentDTO `json:"attachments,omitempty" validate:"omitempty,dive"`
}

// UpdateTicketDTO - частичное обновление описания тикета, статус здесь не меняется.
type UpdateTicketDTO struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=3,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,min=1"`
	Category    *string `json:"category,omitempty" validate:"omitempty,max=100"`
	Priority    *string `json:"priority,omitempty" validate:"omitempty,ticket_priority"`
	Location    *string `json:"location,omitempty" validate:"omitempty,max=255"`
}

type AssignTicketDTO struct {
	AssigneeID string `json:"assignee_id"`
}

type TicketActionDTO struct {
	Description string `json:"description,omitempty"`
}

// RejectTicketDTO: причину проверяет сервис, после проверки прав.
type RejectTicketDTO struct {
	Reason string `json:"reason"`
}

type ResolveTicketDTO struct {
	Solution            string          `json:"solution,omitempty"`
	SolutionAttachments []AttachmentDTO `json:"solution_attachments,omitempty" validate:"omitempty,dive"`
}

type CloseTicketDTO struct {
	Reason string `json:"reason,omitempty"`
}

type TicketQueryDTO struct {
	Statuses    []string
	Category    string
	SubmitterID string
	AssigneeID  string
	Search      string
	Limit       uint64
	Offset      uint64
}

type ShortUserDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ProcessHistoryDTO struct {
	ID          string       `json:"id"`
	Action      string       `json:"action"`
	Operator    ShortUserDTO `json:"operator"`
	Timestamp   string       `json:"timestamp"`
	Description string       `json:"description,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Solution    string       `json:"solution,omitempty"`
}

type TicketDTO struct {
	ID                  string              `json:"id"`
	TicketNo            string              `json:"ticket_no"`
	Title               string              `json:"title"`
	Description         string              `json:"description"`
	Category            string              `json:"category"`
	Priority            string              `json:"priority"`
	Status              string              `json:"status"`
	Submitter           ShortUserDTO        `json:"submitter"`
	SubmitterPhone      *string             `json:"submitter_phone,omitempty"`
	Location            *string             `json:"location,omitempty"`
	Assignee            *ShortUserDTO       `json:"assignee,omitempty"`
	Solution            *string             `json:"solution,omitempty"`
	CloseReason         *string             `json:"close_reason,omitempty"`
	RejectReason        *string             `json:"reject_reason,omitempty"`
	Attachments         []AttachmentDTO     `json:"attachments"`
	SolutionAttachments []AttachmentDTO     `json:"solution_attachments"`
	CreateTime          string              `json:"create_time"`
	UpdateTime          string              `json:"update_time"`
	AssignTime          *string             `json:"assign_time,omitempty"`
	StartTime           *string             `json:"start_time,omitempty"`
	CompleteTime        *string             `json:"complete_time,omitempty"`
	CloseTime           *string             `json:"close_time,omitempty"`
	ProcessHistory      []ProcessHistoryDTO `json:"process_history"`
}
