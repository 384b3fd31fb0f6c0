package dto

import (
	"github.com/shopspring/decimal"
)

// RequisitionItemDTO - строка подбора. Снимки цены и остатка берутся с экрана,
// на котором пользователь собирал заявку.
type RequisitionItemDTO struct {
	MaterialID    string           `json:"material_id" validate:"required"`
	VariantID     string           `json:"variant_id" validate:"required"`
	Quantity      int              `json:"quantity" validate:"required,gt=0"`
	PriceSnapshot *decimal.Decimal `json:"price_snapshot,omitempty"`
	StockSnapshot *int             `json:"stock_snapshot,omitempty" validate:"omitempty,gte=0"`
}

type ValidateBatchDTO struct {
	Items []RequisitionItemDTO `json:"items" validate:"required,min=1,dive"`
}

type CreateRequisitionDTO struct {
	Items    []RequisitionItemDTO `json:"items" validate:"required,min=1,dive"`
	TicketNo string               `json:"ticket_no,omitempty" validate:"omitempty,max=32"`
	Note     string               `json:"note,omitempty" validate:"omitempty,max=500"`
	// ResolveTicket закрывает связанную заявку решением в той же транзакции.
	ResolveTicket bool   `json:"resolve_ticket,omitempty"`
	Solution      string `json:"solution,omitempty"`
}

type RequisitionQueryDTO struct {
	TicketNo string
	Limit    uint64
	Offset   uint64
}

type ValidationIssueDTO struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type ValidationItemResultDTO struct {
	Index        int                  `json:"index"`
	MaterialID   string               `json:"material_id"`
	VariantID    string               `json:"variant_id"`
	MaterialName string               `json:"material_name,omitempty"`
	VariantLabel string               `json:"variant_label,omitempty"`
	Quantity     int                  `json:"quantity"`
	CurrentStock *int                 `json:"current_stock,omitempty"`
	Valid        bool                 `json:"valid"`
	Errors       []ValidationIssueDTO `json:"errors"`
	Warnings     []ValidationIssueDTO `json:"warnings"`
}

type BatchValidationResultDTO struct {
	Valid        bool                      `json:"valid"`
	ErrorCount   int                       `json:"error_count"`
	WarningCount int                       `json:"warning_count"`
	Items        []ValidationItemResultDTO `json:"items"`
}

type RequisitionItemResponseDTO struct {
	MaterialID   string           `json:"material_id"`
	MaterialName string           `json:"material_name"`
	VariantID    string           `json:"variant_id"`
	VariantLabel string           `json:"variant_label"`
	Quantity     int              `json:"quantity"`
	CostPrice    *decimal.Decimal `json:"cost_price,omitempty"`
	SalePrice    *decimal.Decimal `json:"sale_price,omitempty"`
	Subtotal     *decimal.Decimal `json:"subtotal,omitempty"`
}

type RequisitionDTO struct {
	ID            string                       `json:"id"`
	RequisitionNo string                       `json:"requisition_no"`
	Applicant     ShortUserDTO                 `json:"applicant"`
	Department    string                       `json:"department"`
	TicketNo      *string                      `json:"ticket_no,omitempty"`
	Items         []RequisitionItemResponseDTO `json:"items"`
	TotalAmount   *decimal.Decimal             `json:"total_amount,omitempty"`
	Status        string                       `json:"status"`
	Note          string                       `json:"note"`
	CreateTime    string                       `json:"create_time"`
}
