package entities

import "time"

type MaterialLogType string

const (
	MaterialLogIn          MaterialLogType = "in"
	MaterialLogOut         MaterialLogType = "out"
	MaterialLogAdjust      MaterialLogType = "adjust"
	MaterialLogCreate      MaterialLogType = "create"
	MaterialLogUpdate      MaterialLogType = "update"
	MaterialLogDelete      MaterialLogType = "delete"
	MaterialLogPriceChange MaterialLogType = "price_change"
)

// IsStockOperation - типы, которые можно передать в MutateStock.
func (t MaterialLogType) IsStockOperation() bool {
	return t == MaterialLogIn || t == MaterialLogOut || t == MaterialLogAdjust
}

// MaterialLog - строка журнала движения остатков. Только добавление.
type MaterialLog struct {
	ID            string          `json:"id" db:"id"`
	MaterialID    string          `json:"material_id" db:"material_id"`
	VariantID     string          `json:"variant_id" db:"variant_id"`
	Type          MaterialLogType `json:"type" db:"type"`
	Quantity      int             `json:"quantity" db:"quantity"`
	BeforeStock   int             `json:"before_stock" db:"before_stock"`
	AfterStock    int             `json:"after_stock" db:"after_stock"`
	OperatorID    string          `json:"operator_id" db:"operator_id"`
	Reason        string          `json:"reason" db:"reason"`
	RequisitionNo string          `json:"requisition_no,omitempty" db:"requisition_no"`
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
}

type MaterialLogFilter struct {
	MaterialID string
	VariantID  string
	Types      []MaterialLogType
	From       *time.Time
	To         *time.Time
	Limit      uint64
	Offset     uint64
}
