package services

import (
	"context"
	"errors"
	"fmt"

	"helpdesk-system/internal/authz"
	"helpdesk-system/internal/dto"
	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/repositories"
	apperrors "helpdesk-system/pkg/errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	IssueMaterialNotFound  = "MaterialNotFound"
	IssueVariantNotFound   = "VariantNotFound"
	IssueInsufficientStock = "InsufficientStock"
	IssuePriceChanged      = "PriceChanged"
	IssueStockChanged      = "StockChanged"
	IssueLowStockWarning   = "LowStockWarning"

	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Допустимое расхождение цены со снимком.
var priceTolerance = decimal.NewFromFloat(0.01)

type BatchValidatorInterface interface {
	ValidateBatch(ctx context.Context, data dto.ValidateBatchDTO) (*dto.BatchValidationResultDTO, error)
}

// BatchValidator - предварительная проверка подбора без блокировок.
// Между проверкой и проведением остаток может измениться: окончательно его проверяет транзакция списания.
type BatchValidator struct {
	*BaseService
	materialRepo repositories.MaterialRepositoryInterface
	threshold    float64
	logger       *zap.Logger
}

func NewBatchValidator(
	base *BaseService,
	materialRepo repositories.MaterialRepositoryInterface,
	lowStockThreshold float64,
	logger *zap.Logger,
) *BatchValidator {
	return &BatchValidator{
		BaseService:  base,
		materialRepo: materialRepo,
		threshold:    lowStockThreshold,
		logger:       logger,
	}
}

// rolePrice - цена, которую видит и по которой считает роль: менеджер закупочную, остальные продажную.
func rolePrice(actor *entities.User, v entities.Variant) decimal.Decimal {
	if authz.PermissionsFor(actor.Role)[authz.MaterialsPriceView] {
		return v.CostPrice
	}
	return v.SalePrice
}

func (b *BatchValidator) ValidateBatch(ctx context.Context, data dto.ValidateBatchDTO) (*dto.BatchValidationResultDTO, error) {
	actor, err := b.CheckPermission(ctx, authz.RequisitionsValidate)
	if err != nil {
		return nil, err
	}
	if len(data.Items) == 0 {
		return nil, apperrors.NewValidationError("Список позиций пуст")
	}
	return b.validate(ctx, actor, data.Items)
}

func (b *BatchValidator) validate(ctx context.Context, actor *entities.User, items []dto.RequisitionItemDTO) (*dto.BatchValidationResultDTO, error) {
	showPrices := authz.PermissionsFor(actor.Role)[authz.MaterialsPriceView]
	materials := make(map[string]*entities.Material)

	result := &dto.BatchValidationResultDTO{Valid: true, Items: make([]dto.ValidationItemResultDTO, 0, len(items))}
	for i, item := range items {
		material, ok := materials[item.MaterialID]
		if !ok {
			found, err := b.materialRepo.FindByID(ctx, nil, item.MaterialID, entities.OnlyActiveMaterials)
			switch {
			case err == nil:
				material = found
			case errors.Is(err, apperrors.ErrNotFound):
				material = nil
			default:
				b.logger.Error("Не удалось прочитать материал при проверке подбора", zap.String("materialID", item.MaterialID), zap.Error(err))
				return nil, err
			}
			materials[item.MaterialID] = material
		}

		itemResult := b.validateItem(i, item, material, actor, showPrices)
		if !itemResult.Valid {
			result.Valid = false
		}
		result.ErrorCount += len(itemResult.Errors)
		result.WarningCount += len(itemResult.Warnings)
		result.Items = append(result.Items, itemResult)
	}
	return result, nil
}

func (b *BatchValidator) validateItem(index int, item dto.RequisitionItemDTO, material *entities.Material, actor *entities.User, showPrices bool) dto.ValidationItemResultDTO {
	res := dto.ValidationItemResultDTO{
		Index:      index,
		MaterialID: item.MaterialID,
		VariantID:  item.VariantID,
		Quantity:   item.Quantity,
		Errors:     []dto.ValidationIssueDTO{},
		Warnings:   []dto.ValidationIssueDTO{},
	}
	add := func(code, severity, message string) {
		issue := dto.ValidationIssueDTO{Code: code, Severity: severity, Message: message}
		if severity == SeverityError {
			res.Errors = append(res.Errors, issue)
		} else {
			res.Warnings = append(res.Warnings, issue)
		}
	}

	if material == nil {
		add(IssueMaterialNotFound, SeverityError, "Материал не найден или удалён")
		res.Valid = false
		return res
	}
	res.MaterialName = material.Name

	idx := material.VariantIndex(item.VariantID)
	if idx < 0 {
		add(IssueVariantNotFound, SeverityError, "Вариант не найден у материала «"+material.Name+"»")
		res.Valid = false
		return res
	}
	variant := material.Variants[idx]
	res.VariantLabel = variant.Label
	stock := variant.Stock
	res.CurrentStock = &stock

	if item.Quantity <= 0 {
		add(IssueInsufficientStock, SeverityError, "Количество должно быть больше нуля")
	}

	insufficient := variant.Stock < item.Quantity
	if insufficient {
		add(IssueInsufficientStock, SeverityError, fmt.Sprintf("Недостаточно остатка: на складе %d, требуется %d", variant.Stock, item.Quantity))
	}

	if item.PriceSnapshot != nil {
		current := rolePrice(actor, variant)
		if current.Sub(*item.PriceSnapshot).Abs().GreaterThan(priceTolerance) {
			if showPrices {
				add(IssuePriceChanged, SeverityWarning, fmt.Sprintf("Цена изменилась: было %s, стало %s", item.PriceSnapshot.StringFixed(2), current.StringFixed(2)))
			} else {
				add(IssuePriceChanged, SeverityWarning, "Цена изменилась с момента подбора")
			}
		}
	}

	if item.StockSnapshot != nil && *item.StockSnapshot != variant.Stock {
		add(IssueStockChanged, SeverityInfo, fmt.Sprintf("Остаток изменился: было %d, стало %d", *item.StockSnapshot, variant.Stock))
	}

	if !insufficient && float64(variant.Stock-item.Quantity) <= float64(variant.SafetyStock)*b.threshold {
		add(IssueLowStockWarning, SeverityWarning, fmt.Sprintf("После выдачи останется %d при пороге %d", variant.Stock-item.Quantity, variant.SafetyStock))
	}

	res.Valid = len(res.Errors) == 0
	return res
}
