package services

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"helpdesk-system/internal/dto"
	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/events"
	apperrors "helpdesk-system/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func out(q int) dto.StockMutationDTO {
	return dto.StockMutationDTO{Type: string(entities.MaterialLogOut), Quantity: q, Reason: "выдача"}
}

// ledgerSum складывает приращения журнала по варианту.
func ledgerSum(logs []entities.MaterialLog) int {
	sum := 0
	for _, l := range logs {
		sum += l.Quantity
	}
	return sum
}

func TestMutateStockOutBelowSafetyShowsInAlerts(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Printer Toner", newVariant("HP 85A", 5, 10, "300", "450"))
	variantID := m.Variants[0].VariantID

	res, err := env.inventory.MutateStock(as(engineerID), m.ID, variantID, out(3))
	require.NoError(t, err)
	assert.Equal(t, 5, res.BeforeStock)
	assert.Equal(t, 2, res.AfterStock)
	assert.Equal(t, -3, res.Quantity)
	assert.Equal(t, 2, env.stockOf(t, m.ID, variantID))

	outs := env.logsOf(t, entities.MaterialLogFilter{MaterialID: m.ID, Types: []entities.MaterialLogType{entities.MaterialLogOut}})
	require.Len(t, outs, 1)
	assert.Equal(t, -3, outs[0].Quantity)
	assert.Equal(t, engineerID, outs[0].OperatorID)

	alerts, err := env.inventory.GetStockAlerts(as(engineerID))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, variantID, alerts[0].VariantID)
	assert.Equal(t, 2, alerts[0].Stock)
	assert.False(t, alerts[0].OutOfStock)
}

func TestMutateStockNeverGoesNegative(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Бумага A4", newVariant("80 г/м²", 4, 1, "30", "45"))
	variantID := m.Variants[0].VariantID

	_, err := env.inventory.MutateStock(as(managerID), m.ID, variantID, out(5))
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientStock))
	assert.Equal(t, 4, env.stockOf(t, m.ID, variantID))
	assert.Empty(t, env.logsOf(t, entities.MaterialLogFilter{MaterialID: m.ID, Types: []entities.MaterialLogType{entities.MaterialLogOut}}))

	_, err = env.inventory.MutateStock(as(managerID), m.ID, variantID, dto.StockMutationDTO{Type: "adjust", Quantity: -1})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = env.inventory.MutateStock(as(managerID), m.ID, variantID, dto.StockMutationDTO{Type: "in", Quantity: 0})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = env.inventory.MutateStock(as(managerID), m.ID, variantID, dto.StockMutationDTO{Type: "transfer", Quantity: 1})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	res, err := env.inventory.MutateStock(as(managerID), m.ID, variantID, out(4))
	require.NoError(t, err)
	assert.Equal(t, 0, res.AfterStock)
}

func TestMutateStockSignConvention(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Кабель UTP", newVariant("1 м", 10, 2, "5", "8"))
	variantID := m.Variants[0].VariantID

	res, err := env.inventory.MutateStock(as(managerID), m.ID, variantID, dto.StockMutationDTO{Type: "in", Quantity: -5})
	require.NoError(t, err)
	assert.Equal(t, 15, res.AfterStock, "приход всегда увеличивает остаток")

	res, err = env.inventory.MutateStock(as(managerID), m.ID, variantID, dto.StockMutationDTO{Type: "out", Quantity: -3})
	require.NoError(t, err)
	assert.Equal(t, 12, res.AfterStock, "расход всегда уменьшает остаток")

	res, err = env.inventory.MutateStock(as(managerID), m.ID, variantID, dto.StockMutationDTO{Type: "adjust", Quantity: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, res.AfterStock)
	assert.Equal(t, -5, res.Quantity)
}

func TestLedgerMatchesStockAfterRandomOperations(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Батарейки", newVariant("AA", 20, 5, "2", "3"), newVariant("AAA", 3, 5, "2", "3"))

	rnd := rand.New(rand.NewSource(42))
	types := []string{"in", "out", "adjust"}
	for i := 0; i < 200; i++ {
		variantID := m.Variants[rnd.Intn(len(m.Variants))].VariantID
		op := dto.StockMutationDTO{Type: types[rnd.Intn(len(types))], Quantity: rnd.Intn(12)}
		if op.Type != "adjust" && op.Quantity == 0 {
			op.Quantity = 1
		}
		_, err := env.inventory.MutateStock(as(managerID), m.ID, variantID, op)
		if err != nil {
			require.True(t, errors.Is(err, apperrors.ErrInsufficientStock), "неожиданная ошибка: %v", err)
		}
	}

	for _, v := range m.Variants {
		stock := env.stockOf(t, m.ID, v.VariantID)
		assert.GreaterOrEqual(t, stock, 0)
		logs := env.logsOf(t, entities.MaterialLogFilter{MaterialID: m.ID, VariantID: v.VariantID})
		assert.Equal(t, stock, ledgerSum(logs), "сумма журнала по варианту %s", v.Label)
	}
}

func TestConcurrentOutOnlyOneSucceeds(t *testing.T) {
	for round := 0; round < 20; round++ {
		env := newTestEnv(t)
		m := env.createMaterial(t, "Мышь USB", newVariant("чёрная", 5, 1, "100", "150"))
		variantID := m.Variants[0].VariantID

		var wg sync.WaitGroup
		errs := make([]error, 2)
		start := make(chan struct{})
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, errs[i] = env.inventory.MutateStock(as(engineerID), m.ID, variantID, out(4))
			}(i)
		}
		close(start)
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, errors.Is(err, apperrors.ErrInsufficientStock) || errors.Is(err, apperrors.ErrConflict), "%v", err)
		}
		require.Equal(t, 1, succeeded)
		assert.Equal(t, 1, env.stockOf(t, m.ID, variantID))
		assert.Len(t, env.logsOf(t, entities.MaterialLogFilter{MaterialID: m.ID, Types: []entities.MaterialLogType{entities.MaterialLogOut}}), 1)
	}
}

func TestStockPermissionsByRole(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Клавиатура", newVariant("RU", 10, 2, "200", "300"))
	variantID := m.Variants[0].VariantID

	_, err := env.inventory.MutateStock(as(engineerID), m.ID, variantID, dto.StockMutationDTO{Type: "in", Quantity: 5})
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied), "инженер не оформляет приход")

	_, err = env.inventory.MutateStock(as(engineerID), m.ID, variantID, dto.StockMutationDTO{Type: "adjust", Quantity: 5})
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied))

	_, err = env.inventory.MutateStock(as(submitterID), m.ID, variantID, out(1))
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied))

	_, _, err = env.inventory.GetMaterials(as(submitterID), dto.MaterialQueryDTO{})
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied), "пользователь не видит склад")

	_, err = env.inventory.CreateMaterial(as(engineerID), dto.CreateMaterialDTO{Name: "x", Variants: []dto.CreateVariantDTO{newVariant("a", 1, 0, "1", "1")}})
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied))

	_, err = env.inventory.GetStats(as(engineerID))
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied))

	_, _, err = env.inventory.GetMaterialLogs(as(engineerID), dto.MaterialLogQueryDTO{})
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied))

	assert.Equal(t, 10, env.stockOf(t, m.ID, variantID))
}

func TestPricesHiddenFromEngineers(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Монитор", newVariant("24\"", 3, 1, "9000", "12000"))

	asEngineer, err := env.inventory.GetMaterial(as(engineerID), m.ID)
	require.NoError(t, err)
	assert.Nil(t, asEngineer.Variants[0].CostPrice)
	assert.Nil(t, asEngineer.Variants[0].SalePrice)

	asManager, err := env.inventory.GetMaterial(as(managerID), m.ID)
	require.NoError(t, err)
	require.NotNil(t, asManager.Variants[0].CostPrice)
	assert.True(t, decimal.NewFromInt(9000).Equal(*asManager.Variants[0].CostPrice))

	list, _, err := env.inventory.GetMaterials(as(engineerID), dto.MaterialQueryDTO{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Variants[0].SalePrice)
}

func TestSoftDeleteHidesMaterial(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Старый тонер", newVariant("Canon", 2, 1, "100", "150"))
	variantID := m.Variants[0].VariantID

	require.NoError(t, env.inventory.SoftDeleteMaterial(as(managerID), m.ID, dto.DeleteMaterialDTO{Reason: "снят с производства"}))

	_, err := env.inventory.GetMaterial(as(engineerID), m.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	deleted, err := env.inventory.GetMaterial(as(managerID), m.ID)
	require.NoError(t, err)
	assert.Equal(t, string(entities.MaterialStatusDeleted), deleted.Status)

	list, total, err := env.inventory.GetMaterials(as(managerID), dto.MaterialQueryDTO{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)

	_, total, err = env.inventory.GetMaterials(as(managerID), dto.MaterialQueryDTO{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)

	_, err = env.inventory.MutateStock(as(managerID), m.ID, variantID, out(1))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "удалённый материал не участвует в операциях")

	err = env.inventory.SoftDeleteMaterial(as(managerID), m.ID, dto.DeleteMaterialDTO{})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	deletes := env.logsOf(t, entities.MaterialLogFilter{MaterialID: m.ID, Types: []entities.MaterialLogType{entities.MaterialLogDelete}})
	require.Len(t, deletes, 1)
	assert.Equal(t, 0, deletes[0].Quantity)
	assert.Equal(t, "снят с производства", deletes[0].Reason)
}

func TestUpdatePriceAndMaterialWriteAuditRows(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Флешка", newVariant("32 ГБ", 10, 2, "50", "80"))
	variantID := m.Variants[0].VariantID

	newSale := decimal.NewFromInt(90)
	updated, err := env.inventory.UpdatePrice(as(managerID), m.ID, variantID, dto.UpdatePriceDTO{SalePrice: &newSale})
	require.NoError(t, err)
	assert.True(t, newSale.Equal(*updated.Variants[0].SalePrice))

	_, err = env.inventory.UpdatePrice(as(managerID), m.ID, variantID, dto.UpdatePriceDTO{})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = env.inventory.UpdatePrice(as(managerID), m.ID, "missing", dto.UpdatePriceDTO{SalePrice: &newSale})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	name := "Флешка USB 3.0"
	safety := 4
	label := "64 ГБ"
	updated, err = env.inventory.UpdateMaterial(as(managerID), m.ID, dto.UpdateMaterialDTO{
		Name: &name,
		Variants: []dto.UpdateVariantDTO{
			{VariantID: variantID, SafetyStock: &safety},
			{Label: &label},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	require.Len(t, updated.Variants, 2)
	assert.Equal(t, 4, updated.Variants[0].SafetyStock)
	assert.Equal(t, 10, updated.TotalStock)

	stock := 100
	_, err = env.inventory.UpdateMaterial(as(managerID), m.ID, dto.UpdateMaterialDTO{
		Variants: []dto.UpdateVariantDTO{{VariantID: variantID, Stock: &stock}},
	})
	assert.True(t, errors.Is(err, apperrors.ErrValidation), "остаток меняется только складскими операциями")

	logs := env.logsOf(t, entities.MaterialLogFilter{MaterialID: m.ID})
	counts := map[entities.MaterialLogType]int{}
	for _, l := range logs {
		counts[l.Type]++
	}
	assert.Equal(t, 2, counts[entities.MaterialLogCreate], "начальный вариант и добавленный")
	assert.Equal(t, 1, counts[entities.MaterialLogPriceChange])
	assert.Equal(t, 2, counts[entities.MaterialLogUpdate], "данные материала и данные варианта")
	assert.Equal(t, 10, env.stockOf(t, m.ID, variantID))
	assert.Equal(t, 10, ledgerSum(env.logsOf(t, entities.MaterialLogFilter{MaterialID: m.ID, VariantID: variantID})))
}

func TestUpdateMaterialRejectsNegativeNewVariant(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Кабель HDMI", newVariant("1 м", 6, 1, "20", "35"))
	variantID := m.Variants[0].VariantID

	label := "2 м"
	negativePrice := decimal.NewFromInt(-5)
	cases := map[string]dto.UpdateVariantDTO{
		"остаток":       {Label: &label, Stock: intPtr(-1)},
		"порог":         {Label: &label, SafetyStock: intPtr(-2)},
		"закупка":       {Label: &label, CostPrice: &negativePrice},
		"продажа":       {Label: &label, SalePrice: &negativePrice},
		"порог старого": {VariantID: variantID, SafetyStock: intPtr(-1)},
	}
	for name, variant := range cases {
		_, err := env.inventory.UpdateMaterial(as(managerID), m.ID, dto.UpdateMaterialDTO{
			Variants: []dto.UpdateVariantDTO{variant},
		})
		assert.True(t, errors.Is(err, apperrors.ErrValidation), name)
	}

	reloaded, err := env.inventory.GetMaterial(as(managerID), m.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Variants, 1)
	assert.Equal(t, 6, reloaded.TotalStock)
	assert.Equal(t, 1, reloaded.Variants[0].SafetyStock)
	assert.Len(t, env.logsOf(t, entities.MaterialLogFilter{MaterialID: m.ID}), 1, "только запись о создании")
}

func TestStockAlertsOrdering(t *testing.T) {
	env := newTestEnv(t)
	env.createMaterial(t, "Бумага", newVariant("A4", 3, 5, "1", "2"), newVariant("A3", 0, 5, "1", "2"), newVariant("A5", 50, 5, "1", "2"))
	env.createMaterial(t, "Антисептик", newVariant("0.5 л", 3, 3, "1", "2"))
	env.createMaterial(t, "Картридж", newVariant("black", 1, 2, "1", "2"))

	alerts, err := env.inventory.GetStockAlerts(as(managerID))
	require.NoError(t, err)
	require.Len(t, alerts, 4)

	assert.True(t, alerts[0].OutOfStock)
	assert.Equal(t, "A3", alerts[0].VariantLabel)
	assert.Equal(t, "Картридж", alerts[1].MaterialName)
	assert.Equal(t, "Антисептик", alerts[2].MaterialName, "при равном остатке - по названию")
	assert.Equal(t, "Бумага", alerts[3].MaterialName)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.createMaterial(t, "Бумага", newVariant("A4", 10, 5, "2.50", "4"), newVariant("A3", 0, 5, "5", "7"))
	gone := env.createMaterial(t, "Дискеты", newVariant("3.5", 100, 0, "1", "1"))
	require.NoError(t, env.inventory.SoftDeleteMaterial(as(managerID), gone.ID, dto.DeleteMaterialDTO{}))

	stats, err := env.inventory.GetStats(as(managerID))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaterialCount)
	assert.Equal(t, 1, stats.DeletedCount)
	assert.Equal(t, 2, stats.VariantCount)
	assert.Equal(t, 10, stats.TotalStock)
	assert.Equal(t, 1, stats.OutOfStockCount)
	assert.Equal(t, 1, stats.LowStockCount)
	assert.Equal(t, "25.00", stats.StockValue.StringFixed(2))
}

func TestCrossingSafetyStockPublishesEvent(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Тонер", newVariant("HP", 12, 10, "300", "450"))
	variantID := m.Variants[0].VariantID

	_, err := env.inventory.MutateStock(as(engineerID), m.ID, variantID, out(1))
	require.NoError(t, err)
	_, err = env.inventory.MutateStock(as(engineerID), m.ID, variantID, out(1))
	require.NoError(t, err)
	// Уже ниже порога: повторного события нет.
	_, err = env.inventory.MutateStock(as(engineerID), m.ID, variantID, out(1))
	require.NoError(t, err)
	env.bus.Wait()

	recorded := env.recorder.all()
	require.Len(t, recorded, 1)
	low, ok := recorded[0].(events.StockLowEvent)
	require.True(t, ok)
	assert.Equal(t, 10, low.Stock)
	assert.Equal(t, 10, low.SafetyStock)
	assert.Equal(t, engineerID, low.ActorID)
}

func TestMaterialLogsFilter(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Скотч", newVariant("узкий", 10, 1, "1", "2"))
	variantID := m.Variants[0].VariantID
	_, err := env.inventory.MutateStock(as(managerID), m.ID, variantID, dto.StockMutationDTO{Type: "in", Quantity: 5})
	require.NoError(t, err)

	logs, total, err := env.inventory.GetMaterialLogs(as(managerID), dto.MaterialLogQueryDTO{MaterialID: m.ID, Types: []string{"in"}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	assert.Equal(t, 5, logs[0].Quantity)

	_, _, err = env.inventory.GetMaterialLogs(as(managerID), dto.MaterialLogQueryDTO{Types: []string{"teleport"}})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, _, err = env.inventory.GetMaterialLogs(as(managerID), dto.MaterialLogQueryDTO{From: "вчера"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, total, err = env.inventory.GetMaterialLogs(as(managerID), dto.MaterialLogQueryDTO{From: "2000-01-01", To: "2000-01-02"})
	require.NoError(t, err)
	assert.Zero(t, total)
}
