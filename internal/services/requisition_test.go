package services

import (
	"errors"
	"testing"

	"helpdesk-system/internal/dto"
	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/events"
	apperrors "helpdesk-system/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRequisitionWritesTaggedLedger(t *testing.T) {
	env := newTestEnv(t)
	toner := env.createMaterial(t, "Тонер", newVariant("HP", 10, 2, "300", "450"))
	paper := env.createMaterial(t, "Бумага", newVariant("A4", 20, 5, "25", "40"))

	req, err := env.requisitions.CreateRequisition(as(engineerID), dto.CreateRequisitionDTO{
		Items: []dto.RequisitionItemDTO{
			{MaterialID: toner.ID, VariantID: toner.Variants[0].VariantID, Quantity: 2},
			{MaterialID: paper.ID, VariantID: paper.Variants[0].VariantID, Quantity: 5},
		},
		Note: "для 204 кабинета",
	})
	require.NoError(t, err)

	assert.Regexp(t, `^RQ\d{12}$`, req.RequisitionNo)
	assert.Equal(t, engineerID, req.Applicant.ID)
	assert.Equal(t, "ИТ", req.Department)
	assert.Equal(t, string(entities.RequisitionStatusCompleted), req.Status)
	assert.Nil(t, req.TotalAmount, "инженер не видит сумм")
	require.Len(t, req.Items, 2)
	assert.Nil(t, req.Items[0].Subtotal)

	assert.Equal(t, 8, env.stockOf(t, toner.ID, toner.Variants[0].VariantID))
	assert.Equal(t, 15, env.stockOf(t, paper.ID, paper.Variants[0].VariantID))

	outs := env.logsOf(t, entities.MaterialLogFilter{Types: []entities.MaterialLogType{entities.MaterialLogOut}})
	require.Len(t, outs, 2)
	for _, l := range outs {
		assert.Equal(t, req.RequisitionNo, l.RequisitionNo)
		assert.Contains(t, l.Reason, req.RequisitionNo)
	}

	// Суммы считаются по цене роли заявителя: для инженера это цена продажи.
	stored, err := env.reqRepo.FindByID(as(managerID), nil, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "900", stored.Items[0].Subtotal.String())
	assert.Equal(t, "200", stored.Items[1].Subtotal.String())
	assert.Equal(t, "1100", stored.TotalAmount.String())

	asManager, err := env.requisitions.GetRequisition(as(managerID), req.ID)
	require.NoError(t, err)
	require.NotNil(t, asManager.TotalAmount)
	assert.Equal(t, "1100", asManager.TotalAmount.String())
}

func TestCreateRequisitionManagerPaysCost(t *testing.T) {
	env := newTestEnv(t)
	toner := env.createMaterial(t, "Тонер", newVariant("HP", 10, 2, "300", "450"))

	req, err := env.requisitions.CreateRequisition(as(managerID), dto.CreateRequisitionDTO{
		Items: []dto.RequisitionItemDTO{{MaterialID: toner.ID, VariantID: toner.Variants[0].VariantID, Quantity: 3}},
	})
	require.NoError(t, err)
	require.NotNil(t, req.TotalAmount)
	assert.Equal(t, "900", req.TotalAmount.String())
}

func TestCreateRequisitionIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	toner := env.createMaterial(t, "Тонер", newVariant("HP", 5, 1, "300", "450"))
	paper := env.createMaterial(t, "Бумага", newVariant("A4", 20, 5, "25", "40"))
	tonerVariant := toner.Variants[0].VariantID

	// Каждая позиция по отдельности проходит проверку, а вместе - нет.
	_, err := env.requisitions.CreateRequisition(as(engineerID), dto.CreateRequisitionDTO{
		Items: []dto.RequisitionItemDTO{
			{MaterialID: paper.ID, VariantID: paper.Variants[0].VariantID, Quantity: 5},
			{MaterialID: toner.ID, VariantID: tonerVariant, Quantity: 3},
			{MaterialID: toner.ID, VariantID: tonerVariant, Quantity: 3},
		},
	})
	require.True(t, errors.Is(err, apperrors.ErrInsufficientStock), "%v", err)

	assert.Equal(t, 5, env.stockOf(t, toner.ID, tonerVariant))
	assert.Equal(t, 20, env.stockOf(t, paper.ID, paper.Variants[0].VariantID))
	assert.Empty(t, env.logsOf(t, entities.MaterialLogFilter{Types: []entities.MaterialLogType{entities.MaterialLogOut}}))

	list, total, err := env.requisitions.GetRequisitions(as(managerID), dto.RequisitionQueryDTO{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
}

func TestCreateRequisitionRejectsInvalidBatch(t *testing.T) {
	env := newTestEnv(t)
	toner := env.createMaterial(t, "Тонер", newVariant("HP", 2, 1, "300", "450"))

	_, err := env.requisitions.CreateRequisition(as(engineerID), dto.CreateRequisitionDTO{
		Items: []dto.RequisitionItemDTO{{MaterialID: toner.ID, VariantID: toner.Variants[0].VariantID, Quantity: 3}},
	})
	require.True(t, errors.Is(err, apperrors.ErrValidation))

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	report, ok := appErr.Details.(*dto.BatchValidationResultDTO)
	require.True(t, ok)
	assert.False(t, report.Valid)
	assert.Equal(t, IssueInsufficientStock, report.Items[0].Errors[0].Code)

	_, err = env.requisitions.CreateRequisition(as(engineerID), dto.CreateRequisitionDTO{})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = env.requisitions.CreateRequisition(as(submitterID), dto.CreateRequisitionDTO{
		Items: []dto.RequisitionItemDTO{{MaterialID: toner.ID, VariantID: toner.Variants[0].VariantID, Quantity: 1}},
	})
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied))
}

func TestCreateRequisitionResolvesTicket(t *testing.T) {
	env := newTestEnv(t)
	toner := env.createMaterial(t, "Тонер", newVariant("HP", 10, 2, "300", "450"))
	ticket := env.seedTicket(t, entities.TicketStatusProcessing)

	req, err := env.requisitions.CreateRequisition(as(engineerID), dto.CreateRequisitionDTO{
		Items:         []dto.RequisitionItemDTO{{MaterialID: toner.ID, VariantID: toner.Variants[0].VariantID, Quantity: 1}},
		TicketNo:      ticket.TicketNo,
		ResolveTicket: true,
		Solution:      "Заменён картридж",
	})
	require.NoError(t, err)
	require.NotNil(t, req.TicketNo)
	assert.Equal(t, ticket.TicketNo, *req.TicketNo)

	stored := env.reloadTicket(t, ticket.ID)
	assert.Equal(t, entities.TicketStatusResolved, stored.Status)
	assert.Equal(t, "Заменён картридж", stored.Solution.String)
	assert.Len(t, stored.ProcessHistory, 2)

	env.bus.Wait()
	var resolved []events.TicketTransitionedEvent
	for _, e := range env.recorder.all() {
		if ev, ok := e.(events.TicketTransitionedEvent); ok {
			resolved = append(resolved, ev)
		}
	}
	require.Len(t, resolved, 1)
	assert.Equal(t, entities.HistoryActionResolved, resolved[0].Action)
}

func TestCreateRequisitionRollsBackWhenTicketCannotResolve(t *testing.T) {
	env := newTestEnv(t)
	toner := env.createMaterial(t, "Тонер", newVariant("HP", 10, 2, "300", "450"))
	variantID := toner.Variants[0].VariantID
	paused := env.seedTicket(t, entities.TicketStatusPaused)

	_, err := env.requisitions.CreateRequisition(as(engineerID), dto.CreateRequisitionDTO{
		Items:         []dto.RequisitionItemDTO{{MaterialID: toner.ID, VariantID: variantID, Quantity: 1}},
		TicketNo:      paused.TicketNo,
		ResolveTicket: true,
		Solution:      "Заменён картридж",
	})
	require.True(t, errors.Is(err, apperrors.ErrPreconditionFailed), "%v", err)
	assert.Equal(t, 10, env.stockOf(t, toner.ID, variantID))
	assert.Equal(t, entities.TicketStatusPaused, env.reloadTicket(t, paused.ID).Status)

	// Чужой инженер не может завершить тикет через заявку.
	processing := env.seedTicket(t, entities.TicketStatusProcessing)
	_, err = env.requisitions.CreateRequisition(as(strangerID), dto.CreateRequisitionDTO{
		Items:         []dto.RequisitionItemDTO{{MaterialID: toner.ID, VariantID: variantID, Quantity: 1}},
		TicketNo:      processing.TicketNo,
		ResolveTicket: true,
		Solution:      "готово",
	})
	require.True(t, errors.Is(err, apperrors.ErrPermissionDenied), "%v", err)
	assert.Equal(t, 10, env.stockOf(t, toner.ID, variantID))

	_, err = env.requisitions.CreateRequisition(as(engineerID), dto.CreateRequisitionDTO{
		Items:    []dto.RequisitionItemDTO{{MaterialID: toner.ID, VariantID: variantID, Quantity: 1}},
		TicketNo: "TK000000000000",
	})
	require.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = env.requisitions.CreateRequisition(as(engineerID), dto.CreateRequisitionDTO{
		Items:         []dto.RequisitionItemDTO{{MaterialID: toner.ID, VariantID: variantID, Quantity: 1}},
		ResolveTicket: true,
	})
	require.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.Equal(t, 10, env.stockOf(t, toner.ID, variantID))
}

func TestRequisitionVisibility(t *testing.T) {
	env := newTestEnv(t)
	toner := env.createMaterial(t, "Тонер", newVariant("HP", 10, 2, "300", "450"))
	item := []dto.RequisitionItemDTO{{MaterialID: toner.ID, VariantID: toner.Variants[0].VariantID, Quantity: 1}}

	mine, err := env.requisitions.CreateRequisition(as(engineerID), dto.CreateRequisitionDTO{Items: item})
	require.NoError(t, err)
	_, err = env.requisitions.CreateRequisition(as(strangerID), dto.CreateRequisitionDTO{Items: item})
	require.NoError(t, err)

	list, total, err := env.requisitions.GetRequisitions(as(engineerID), dto.RequisitionQueryDTO{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	assert.Equal(t, mine.ID, list[0].ID)

	_, total, err = env.requisitions.GetRequisitions(as(managerID), dto.RequisitionQueryDTO{})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)

	_, err = env.requisitions.GetRequisition(as(strangerID), mine.ID)
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied))

	_, err = env.requisitions.GetRequisition(as(managerID), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	assert.Equal(t, 8, env.stockOf(t, toner.ID, toner.Variants[0].VariantID))
}
