package entities

import (
	"time"

	"github.com/aarondl/null/v8"
	"github.com/shopspring/decimal"
)

type RequisitionStatus string

const (
	RequisitionStatusCompleted RequisitionStatus = "completed"
	RequisitionStatusCancelled RequisitionStatus = "cancelled"
)

type RequisitionItem struct {
	MaterialID   string          `json:"material_id"`
	MaterialName string          `json:"material_name"`
	VariantID    string          `json:"variant_id"`
	VariantLabel string          `json:"variant_label"`
	Quantity     int             `json:"quantity"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type Requisition struct {
	ID            string            `json:"id" db:"id"`
	RequisitionNo string            `json:"requisition_no" db:"requisition_no"`
	ApplicantID   string            `json:"applicant_id" db:"applicant_id"`
	ApplicantName string            `json:"applicant_name" db:"applicant_name"`
	Department    string            `json:"department" db:"department"`
	TicketNo      null.String       `json:"ticket_no" db:"ticket_no"`
	Items         []RequisitionItem `json:"items" db:"items"`
	TotalAmount   decimal.Decimal   `json:"total_amount" db:"total_amount"`
	Status        RequisitionStatus `json:"status" db:"status"`
	Note          string            `json:"note" db:"note"`
	CreateTime    time.Time         `json:"create_time" db:"create_time"`
}

func (r Requisition) Clone() Requisition {
	c := r
	c.Items = append([]RequisitionItem(nil), r.Items...)
	return c
}

type RequisitionFilter struct {
	ApplicantID string
	TicketNo    string
	Limit       uint64
	Offset      uint64
}
