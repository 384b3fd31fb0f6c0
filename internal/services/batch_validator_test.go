package services

import (
	"errors"
	"testing"

	"helpdesk-system/internal/dto"
	apperrors "helpdesk-system/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueCodes(issues []dto.ValidationIssueDTO) []string {
	codes := make([]string, 0, len(issues))
	for _, i := range issues {
		codes = append(codes, i.Code)
	}
	return codes
}

func intPtr(n int) *int { return &n }

func TestValidateBatchStaleSnapshot(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Printer Toner", newVariant("HP 85A", 5, 1, "300", "450"))
	variantID := m.Variants[0].VariantID
	_, err := env.inventory.MutateStock(as(managerID), m.ID, variantID, out(3))
	require.NoError(t, err)

	report, err := env.validator.ValidateBatch(as(engineerID), dto.ValidateBatchDTO{Items: []dto.RequisitionItemDTO{{
		MaterialID: m.ID, VariantID: variantID, Quantity: 3, StockSnapshot: intPtr(5),
	}}})
	require.NoError(t, err)

	assert.False(t, report.Valid)
	assert.Equal(t, 1, report.ErrorCount)
	assert.Equal(t, 1, report.WarningCount)
	item := report.Items[0]
	assert.Equal(t, []string{IssueInsufficientStock}, issueCodes(item.Errors))
	require.Len(t, item.Warnings, 1)
	assert.Equal(t, IssueStockChanged, item.Warnings[0].Code)
	assert.Equal(t, SeverityInfo, item.Warnings[0].Severity)
	require.NotNil(t, item.CurrentStock)
	assert.Equal(t, 2, *item.CurrentStock)
	assert.Equal(t, "Printer Toner", item.MaterialName)
}

func TestValidateBatchPriceTolerance(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Мышь", newVariant("USB", 50, 1, "100.00", "150.00"))
	variantID := m.Variants[0].VariantID

	snapshot := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}
	items := []dto.RequisitionItemDTO{
		{MaterialID: m.ID, VariantID: variantID, Quantity: 1, PriceSnapshot: snapshot("150.005")},
		{MaterialID: m.ID, VariantID: variantID, Quantity: 1, PriceSnapshot: snapshot("149.95")},
		// Закупочная цена для инженера - это уже другая цена.
		{MaterialID: m.ID, VariantID: variantID, Quantity: 1, PriceSnapshot: snapshot("100.00")},
	}

	report, err := env.validator.ValidateBatch(as(engineerID), dto.ValidateBatchDTO{Items: items})
	require.NoError(t, err)
	assert.True(t, report.Valid, "изменение цены не блокирует выдачу")
	assert.Empty(t, report.Items[0].Warnings)
	assert.Equal(t, []string{IssuePriceChanged}, issueCodes(report.Items[1].Warnings))
	assert.NotContains(t, report.Items[1].Warnings[0].Message, "150", "инженер не видит цен")
	assert.Equal(t, []string{IssuePriceChanged}, issueCodes(report.Items[2].Warnings))

	report, err = env.validator.ValidateBatch(as(managerID), dto.ValidateBatchDTO{Items: items})
	require.NoError(t, err)
	assert.Equal(t, []string{IssuePriceChanged}, issueCodes(report.Items[0].Warnings), "менеджер сверяет закупочную цену")
	assert.Empty(t, report.Items[2].Warnings)
	assert.Contains(t, report.Items[0].Warnings[0].Message, "100.00")
}

func TestValidateBatchLowStockWarning(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Бумага", newVariant("A4", 10, 10, "1", "2"))
	variantID := m.Variants[0].VariantID

	report, err := env.validator.ValidateBatch(as(engineerID), dto.ValidateBatchDTO{Items: []dto.RequisitionItemDTO{
		{MaterialID: m.ID, VariantID: variantID, Quantity: 1},
		{MaterialID: m.ID, VariantID: variantID, Quantity: 2},
		{MaterialID: m.ID, VariantID: variantID, Quantity: 11},
	}})
	require.NoError(t, err)

	assert.Empty(t, report.Items[0].Warnings, "9 выше 0.8 × 10")
	assert.Equal(t, []string{IssueLowStockWarning}, issueCodes(report.Items[1].Warnings))
	assert.Empty(t, report.Items[2].Warnings, "при нехватке предупреждение не нужно")
	assert.Equal(t, []string{IssueInsufficientStock}, issueCodes(report.Items[2].Errors))
	assert.False(t, report.Valid)
}

func TestValidateBatchMissingReferences(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Клей", newVariant("ПВА", 5, 1, "1", "2"))
	gone := env.createMaterial(t, "Калька", newVariant("A4", 5, 1, "1", "2"))
	require.NoError(t, env.inventory.SoftDeleteMaterial(as(managerID), gone.ID, dto.DeleteMaterialDTO{}))

	report, err := env.validator.ValidateBatch(as(engineerID), dto.ValidateBatchDTO{Items: []dto.RequisitionItemDTO{
		{MaterialID: "missing", VariantID: "v", Quantity: 1},
		{MaterialID: m.ID, VariantID: "missing", Quantity: 1},
		{MaterialID: gone.ID, VariantID: gone.Variants[0].VariantID, Quantity: 1},
		{MaterialID: m.ID, VariantID: m.Variants[0].VariantID, Quantity: 1},
	}})
	require.NoError(t, err)

	assert.False(t, report.Valid)
	assert.Equal(t, 3, report.ErrorCount)
	assert.Equal(t, []string{IssueMaterialNotFound}, issueCodes(report.Items[0].Errors))
	assert.Equal(t, []string{IssueVariantNotFound}, issueCodes(report.Items[1].Errors))
	assert.Equal(t, []string{IssueMaterialNotFound}, issueCodes(report.Items[2].Errors))
	assert.True(t, report.Items[3].Valid)
	assert.Nil(t, report.Items[0].CurrentStock)
}

func TestValidateBatchRules(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.validator.ValidateBatch(as(engineerID), dto.ValidateBatchDTO{})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = env.validator.ValidateBatch(as(submitterID), dto.ValidateBatchDTO{Items: []dto.RequisitionItemDTO{{MaterialID: "x", VariantID: "y", Quantity: 1}}})
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied))
}
