package services

import (
	"context"
	"errors"
	"time"

	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/repositories"
	apperrors "helpdesk-system/pkg/errors"

	"github.com/google/uuid"
)

type stockMutation struct {
	MaterialID    string
	VariantID     string
	Type          entities.MaterialLogType
	Quantity      int
	Reason        string
	OperatorID    string
	RequisitionNo string
}

type stockOutcome struct {
	Log      entities.MaterialLog
	Material *entities.Material
	Variant  entities.Variant
	// BecameLow: до операции остаток был выше порога, после - на пороге или ниже.
	BecameLow bool
}

// stockLedger - единственное место, где меняется остаток варианта.
// Запись материала и строка журнала всегда идут в одной транзакции.
type stockLedger struct {
	materialRepo repositories.MaterialRepositoryInterface
	logRepo      repositories.MaterialLogRepositoryInterface
}

func newStockLedger(materialRepo repositories.MaterialRepositoryInterface, logRepo repositories.MaterialLogRepositoryInterface) *stockLedger {
	return &stockLedger{materialRepo: materialRepo, logRepo: logRepo}
}

func materialLookupError(err error, id string) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NewNotFoundError("Материал %s не найден", id)
	}
	return err
}

func variantNotFound(m *entities.Material, variantID string) error {
	return apperrors.NewNotFoundError("Вариант %s не найден у материала «%s»", variantID, m.Name)
}

// computeAfterStock: in прибавляет |q|, out вычитает |q|, adjust выставляет q.
func computeAfterStock(op entities.MaterialLogType, before, quantity int) (int, error) {
	switch op {
	case entities.MaterialLogIn:
		return before + abs(quantity), nil
	case entities.MaterialLogOut:
		return before - abs(quantity), nil
	case entities.MaterialLogAdjust:
		if quantity < 0 {
			return 0, apperrors.NewValidationError("Остаток после корректировки не может быть отрицательным")
		}
		return quantity, nil
	}
	return 0, apperrors.NewValidationError("Неизвестный тип складской операции: %s", op)
}

func (l *stockLedger) mutate(ctx context.Context, tx repositories.Tx, m stockMutation) (stockOutcome, error) {
	material, err := l.materialRepo.FindByID(ctx, tx, m.MaterialID, entities.OnlyActiveMaterials)
	if err != nil {
		return stockOutcome{}, materialLookupError(err, m.MaterialID)
	}
	idx := material.VariantIndex(m.VariantID)
	if idx < 0 {
		return stockOutcome{}, variantNotFound(material, m.VariantID)
	}

	variant := &material.Variants[idx]
	before := variant.Stock
	after, err := computeAfterStock(m.Type, before, m.Quantity)
	if err != nil {
		return stockOutcome{}, err
	}
	if after < 0 {
		return stockOutcome{}, apperrors.NewInsufficientStockError(
			"Недостаточно остатка «%s / %s»: на складе %d, требуется %d",
			material.Name, variant.Label, before, abs(m.Quantity),
		)
	}

	now := time.Now()
	variant.Stock = after
	material.RecalculateTotalStock()
	material.UpdateTime = now

	if err := l.materialRepo.Update(ctx, tx, material); err != nil {
		return stockOutcome{}, err
	}

	entry := entities.MaterialLog{
		ID:            uuid.NewString(),
		MaterialID:    material.ID,
		VariantID:     variant.VariantID,
		Type:          m.Type,
		Quantity:      after - before,
		BeforeStock:   before,
		AfterStock:    after,
		OperatorID:    m.OperatorID,
		Reason:        m.Reason,
		RequisitionNo: m.RequisitionNo,
		Timestamp:     now,
	}
	if err := l.logRepo.Append(ctx, tx, entry); err != nil {
		return stockOutcome{}, err
	}

	return stockOutcome{
		Log:       entry,
		Material:  material,
		Variant:   *variant,
		BecameLow: before > variant.SafetyStock && after <= variant.SafetyStock,
	}, nil
}

// auditEntry - строка журнала без движения остатка (update, delete, price_change).
func auditEntry(material *entities.Material, variant entities.Variant, t entities.MaterialLogType, operatorID, reason string, now time.Time) entities.MaterialLog {
	return entities.MaterialLog{
		ID:          uuid.NewString(),
		MaterialID:  material.ID,
		VariantID:   variant.VariantID,
		Type:        t,
		Quantity:    0,
		BeforeStock: variant.Stock,
		AfterStock:  variant.Stock,
		OperatorID:  operatorID,
		Reason:      reason,
		Timestamp:   now,
	}
}

// creationEntry несёт начальный остаток как приращение от нуля.
func creationEntry(material *entities.Material, variant entities.Variant, operatorID, reason string, now time.Time) entities.MaterialLog {
	return entities.MaterialLog{
		ID:          uuid.NewString(),
		MaterialID:  material.ID,
		VariantID:   variant.VariantID,
		Type:        entities.MaterialLogCreate,
		Quantity:    variant.Stock,
		BeforeStock: 0,
		AfterStock:  variant.Stock,
		OperatorID:  operatorID,
		Reason:      reason,
		Timestamp:   now,
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
