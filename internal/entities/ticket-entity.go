package entities

import (
	"time"

	"github.com/aarondl/null/v8"
)

type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "pending"
	TicketStatusAssigned   TicketStatus = "assigned"
	TicketStatusProcessing TicketStatus = "processing"
	TicketStatusPaused     TicketStatus = "paused"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

var AllTicketStatuses = []TicketStatus{
	TicketStatusPending,
	TicketStatusAssigned,
	TicketStatusProcessing,
	TicketStatusPaused,
	TicketStatusResolved,
	TicketStatusClosed,
}

type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// HistoryAction совпадает с названиями переходов.
type HistoryAction string

const (
	HistoryActionCreated    HistoryAction = "created"
	HistoryActionAssigned   HistoryAction = "assigned"
	HistoryActionProcessing HistoryAction = "processing"
	HistoryActionPaused     HistoryAction = "paused"
	HistoryActionRejected   HistoryAction = "rejected"
	HistoryActionResolved   HistoryAction = "resolved"
	HistoryActionClosed     HistoryAction = "closed"
)

// Attachment - непрозрачный дескриптор файла, хранится как есть.
type Attachment struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

type ProcessHistoryEntry struct {
	ID           string        `json:"id"`
	Action       HistoryAction `json:"action"`
	OperatorID   string        `json:"operator_id"`
	OperatorName string        `json:"operator_name"`
	Timestamp    time.Time     `json:"timestamp"`
	Description  string        `json:"description,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Solution     string        `json:"solution,omitempty"`
}

type Ticket struct {
	ID          string         `json:"id" db:"id"`
	TicketNo    string         `json:"ticket_no" db:"ticket_no"`
	Title       string         `json:"title" db:"title"`
	Description string         `json:"description" db:"description"`
	Category    string         `json:"category" db:"category"`
	Priority    TicketPriority `json:"priority" db:"priority"`
	Status      TicketStatus   `json:"status" db:"status"`

	SubmitterID    string      `json:"submitter_id" db:"submitter_id"`
	SubmitterName  string      `json:"submitter_name" db:"submitter_name"`
	SubmitterPhone null.String `json:"submitter_phone" db:"submitter_phone"`
	Location       null.String `json:"location" db:"location"`

	AssigneeID   null.String `json:"assignee_id" db:"assignee_id"`
	AssigneeName null.String `json:"assignee_name" db:"assignee_name"`

	Solution     null.String `json:"solution" db:"solution"`
	CloseReason  null.String `json:"close_reason" db:"close_reason"`
	RejectReason null.String `json:"reject_reason" db:"reject_reason"`

	Attachments         []Attachment `json:"attachments" db:"attachments"`
	SolutionAttachments []Attachment `json:"solution_attachments" db:"solution_attachments"`

	CreateTime   time.Time `json:"create_time" db:"create_time"`
	UpdateTime   time.Time `json:"update_time" db:"update_time"`
	AssignTime   null.Time `json:"assign_time" db:"assign_time"`
	StartTime    null.Time `json:"start_time" db:"start_time"`
	CompleteTime null.Time `json:"complete_time" db:"complete_time"`
	CloseTime    null.Time `json:"close_time" db:"close_time"`

	ProcessHistory []ProcessHistoryEntry `json:"process_history" db:"process_history"`

	Revision int64 `json:"-" db:"revision"`
}

// Clone возвращает копию, не разделяющую срезы с оригиналом.
func (t Ticket) Clone() Ticket {
	c := t
	c.Attachments = append([]Attachment(nil), t.Attachments...)
	c.SolutionAttachments = append([]Attachment(nil), t.SolutionAttachments...)
	c.ProcessHistory = append([]ProcessHistoryEntry(nil), t.ProcessHistory...)
	return c
}

func (t *Ticket) IsAssignee(userID string) bool {
	return t.AssigneeID.Valid && t.AssigneeID.String == userID
}

type TicketFilter struct {
	Statuses    []TicketStatus
	Category    string
	SubmitterID string
	AssigneeID  string
	// VisibleToEngineer: пул pending, назначенные на пользователя и поданные им самим.
	VisibleToEngineer string
	Search            string
	Limit             uint64
	Offset            uint64
}
