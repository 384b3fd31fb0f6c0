package dto

import (
	"github.com/shopspring/decimal"
)

type CreateVariantDTO struct {
	Label       string          `json:"label" validate:"required,max=100"`
	CostPrice   decimal.Decimal `json:"cost_price" validate:"gte=0"`
	SalePrice   decimal.Decimal `json:"sale_price" validate:"gte=0"`
	Stock       int             `json:"stock" validate:"gte=0"`
	SafetyStock int             `json:"safety_stock" validate:"gte=0"`
	ImageURL    string          `json:"image_url,omitempty" validate:"omitempty,url"`
}

type CreateMaterialDTO struct {
	Name        string             `json:"name" validate:"required,max=200"`
	Category    string             `json:"category" validate:"required,max=100"`
	Unit        string             `json:"unit" validate:"required,max=20"`
	Description string             `json:"description,omitempty"`
	Variants    []CreateVariantDTO `json:"variants" validate:"required,min=1,dive"`
}

// UpdateVariantDTO: пустой VariantID означает новый вариант.
// У существующего варианта остаток и цены здесь не меняются.
type UpdateVariantDTO struct {
	VariantID   string           `json:"variant_id,omitempty"`
	Label       *string          `json:"label,omitempty" validate:"omitempty,max=100"`
	SafetyStock *int             `json:"safety_stock,omitempty" validate:"omitempty,gte=0"`
	ImageURL    *string          `json:"image_url,omitempty" validate:"omitempty,url"`
	Stock       *int             `json:"stock,omitempty" validate:"omitempty,gte=0"`
	CostPrice   *decimal.Decimal `json:"cost_price,omitempty" validate:"omitempty,gte=0"`
	SalePrice   *decimal.Decimal `json:"sale_price,omitempty" validate:"omitempty,gte=0"`
}

type UpdateMaterialDTO struct {
	Name        *string            `json:"name,omitempty" validate:"omitempty,max=200"`
	Category    *string            `json:"category,omitempty" validate:"omitempty,max=100"`
	Unit        *string            `json:"unit,omitempty" validate:"omitempty,max=20"`
	Description *string            `json:"description,omitempty"`
	Variants    []UpdateVariantDTO `json:"variants,omitempty" validate:"omitempty,dive"`
}

type UpdatePriceDTO struct {
	CostPrice *decimal.Decimal `json:"cost_price,omitempty" validate:"omitempty,gte=0"`
	SalePrice *decimal.Decimal `json:"sale_price,omitempty" validate:"omitempty,gte=0"`
	Reason    string           `json:"reason,omitempty" validate:"omitempty,max=255"`
}

type StockMutationDTO struct {
	Type     string `json:"type" validate:"required,stock_op"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason,omitempty" validate:"omitempty,max=255"`
}

type DeleteMaterialDTO struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=255"`
}

type MaterialQueryDTO struct {
	Category string
	Search   string
	// IncludeDeleted учитывается только для менеджера.
	IncludeDeleted bool
	Limit          uint64
	Offset         uint64
}

type MaterialLogQueryDTO struct {
	MaterialID string
	VariantID  string
	Types      []string
	From       string
	To         string
	Limit      uint64
	Offset     uint64
}

// VariantDTO: цены заполняются только для менеджера.
type VariantDTO struct {
	VariantID   string           `json:"variant_id"`
	Label       string           `json:"label"`
	CostPrice   *decimal.Decimal `json:"cost_price,omitempty"`
	SalePrice   *decimal.Decimal `json:"sale_price,omitempty"`
	Stock       int              `json:"stock"`
	SafetyStock int              `json:"safety_stock"`
	ImageURL    string           `json:"image_url,omitempty"`
	IsLow       bool             `json:"is_low"`
}

type MaterialDTO struct {
	ID          string       `json:"id"`
	MaterialNo  string       `json:"material_no"`
	Name        string       `json:"name"`
	Category    string       `json:"category"`
	Unit        string       `json:"unit"`
	Description string       `json:"description"`
	Status      string       `json:"status"`
	TotalStock  int          `json:"total_stock"`
	Variants    []VariantDTO `json:"variants"`
	CreatedBy   string       `json:"created_by"`
	CreateTime  string       `json:"create_time"`
	UpdateTime  string       `json:"update_time"`
}

type StockMutationResultDTO struct {
	LogID       string `json:"log_id"`
	MaterialID  string `json:"material_id"`
	VariantID   string `json:"variant_id"`
	Type        string `json:"type"`
	Quantity    int    `json:"quantity"`
	BeforeStock int    `json:"before_stock"`
	AfterStock  int    `json:"after_stock"`
}

type StockAlertDTO struct {
	MaterialID   string `json:"material_id"`
	MaterialNo   string `json:"material_no"`
	MaterialName string `json:"material_name"`
	Category     string `json:"category"`
	Unit         string `json:"unit"`
	VariantID    string `json:"variant_id"`
	VariantLabel string `json:"variant_label"`
	Stock        int    `json:"stock"`
	SafetyStock  int    `json:"safety_stock"`
	OutOfStock   bool   `json:"out_of_stock"`
}

type StockStatsDTO struct {
	MaterialCount   int             `json:"material_count"`
	DeletedCount    int             `json:"deleted_count"`
	VariantCount    int             `json:"variant_count"`
	TotalStock      int             `json:"total_stock"`
	LowStockCount   int             `json:"low_stock_count"`
	OutOfStockCount int             `json:"out_of_stock_count"`
	StockValue      decimal.Decimal `json:"stock_value"`
}

type MaterialLogDTO struct {
	ID            string `json:"id"`
	MaterialID    string `json:"material_id"`
	VariantID     string `json:"variant_id"`
	Type          string `json:"type"`
	Quantity      int    `json:"quantity"`
	BeforeStock   int    `json:"before_stock"`
	AfterStock    int    `json:"after_stock"`
	OperatorID    string `json:"operator_id"`
	Reason        string `json:"reason"`
	RequisitionNo string `json:"requisition_no,omitempty"`
	Timestamp     string `json:"timestamp"`
}
