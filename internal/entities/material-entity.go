package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaterialStatus - закрытое перечисление, удаление только мягкое.
type MaterialStatus string

const (
	MaterialStatusActive  MaterialStatus = "active"
	MaterialStatusDeleted MaterialStatus = "deleted"
)

// MaterialStatusFilter обязателен для каждого чтения материалов:
// пустой фильтр считается ошибкой вызывающего кода.
type MaterialStatusFilter []MaterialStatus

var (
	OnlyActiveMaterials = MaterialStatusFilter{MaterialStatusActive}
	AnyMaterialStatus   = MaterialStatusFilter{MaterialStatusActive, MaterialStatusDeleted}
)

func (f MaterialStatusFilter) Contains(status MaterialStatus) bool {
	for _, s := range f {
		if s == status {
			return true
		}
	}
	return false
}

func (f MaterialStatusFilter) Strings() []string {
	out := make([]string, len(f))
	for i, s := range f {
		out[i] = string(s)
	}
	return out
}

type Variant struct {
	VariantID   string          `json:"variant_id"`
	Label       string          `json:"label"`
	CostPrice   decimal.Decimal `json:"cost_price"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	Stock       int             `json:"stock"`
	SafetyStock int             `json:"safety_stock"`
	ImageURL    string          `json:"image_url"`
}

// IsLow - остаток на уровне порога пополнения или ниже.
func (v Variant) IsLow() bool {
	return v.Stock <= v.SafetyStock
}

type Material struct {
	ID          string         `json:"id" db:"id"`
	MaterialNo  string         `json:"material_no" db:"material_no"`
	Name        string         `json:"name" db:"name"`
	Category    string         `json:"category" db:"category"`
	Unit        string         `json:"unit" db:"unit"`
	Description string         `json:"description" db:"description"`
	Status      MaterialStatus `json:"status" db:"status"`
	TotalStock  int            `json:"total_stock" db:"total_stock"`
	Variants    []Variant      `json:"variants" db:"variants"`
	CreatedBy   string         `json:"created_by" db:"created_by"`
	CreateTime  time.Time      `json:"create_time" db:"create_time"`
	UpdateTime  time.Time      `json:"update_time" db:"update_time"`

	Revision int64 `json:"-" db:"revision"`
}

func (m Material) Clone() Material {
	c := m
	c.Variants = append([]Variant(nil), m.Variants...)
	return c
}

// VariantIndex возвращает индекс варианта или -1.
func (m *Material) VariantIndex(variantID string) int {
	for i := range m.Variants {
		if m.Variants[i].VariantID == variantID {
			return i
		}
	}
	return -1
}

// RecalculateTotalStock вызывается после любого изменения вариантов.
func (m *Material) RecalculateTotalStock() {
	total := 0
	for _, v := range m.Variants {
		total += v.Stock
	}
	m.TotalStock = total
}

type MaterialFilter struct {
	Statuses MaterialStatusFilter
	Category string
	Search   string
	Limit    uint64
	Offset   uint64
}
