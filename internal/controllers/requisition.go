package controllers

import (
	"net/http"

	"helpdesk-system/internal/dto"
	"helpdesk-system/internal/services"
	"helpdesk-system/pkg/utils"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type RequisitionController struct {
	requisitionService services.RequisitionServiceInterface
	validator          services.BatchValidatorInterface
	logger             *zap.Logger
}

func NewRequisitionController(
	requisitionService services.RequisitionServiceInterface,
	validator services.BatchValidatorInterface,
	logger *zap.Logger,
) *RequisitionController {
	return &RequisitionController{
		requisitionService: requisitionService,
		validator:          validator,
		logger:             logger,
	}
}

// ValidateBatch всегда отвечает 200: ошибки подбора - это содержимое отчёта, а не ошибка запроса.
func (c *RequisitionController) ValidateBatch(ctx echo.Context) error {
	var req dto.ValidateBatchDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.validator.ValidateBatch(ctx.Request().Context(), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	message := "Подбор можно проводить"
	if !res.Valid {
		message = "Подбор содержит ошибки"
	}
	return utils.SuccessResponse(ctx, res, message, http.StatusOK)
}

func (c *RequisitionController) CreateRequisition(ctx echo.Context) error {
	var req dto.CreateRequisitionDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.requisitionService.CreateRequisition(ctx.Request().Context(), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Заявка проведена", http.StatusCreated)
}

func (c *RequisitionController) GetRequisitions(ctx echo.Context) error {
	values := ctx.QueryParams()
	limit, offset := utils.ParsePaginationParams(values)

	list, total, err := c.requisitionService.GetRequisitions(ctx.Request().Context(), dto.RequisitionQueryDTO{
		TicketNo: values.Get("ticket_no"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.ListResponse(ctx, list, total, limit, offset)
}

func (c *RequisitionController) GetRequisition(ctx echo.Context) error {
	res, err := c.requisitionService.GetRequisition(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Успешно", http.StatusOK)
}
