package controllers

import (
	"net/http"
	"strings"

	"helpdesk-system/internal/dto"
	"helpdesk-system/internal/services"
	apperrors "helpdesk-system/pkg/errors"
	"helpdesk-system/pkg/utils"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type TicketController struct {
	ticketService services.TicketServiceInterface
	logger        *zap.Logger
}

func NewTicketController(ticketService services.TicketServiceInterface, logger *zap.Logger) *TicketController {
	return &TicketController{
		ticketService: ticketService,
		logger:        logger,
	}
}

// bindAndValidate - общий шаг всех POST/PUT ручек.
func bindAndValidate(ctx echo.Context, target interface{}) error {
	if err := ctx.Bind(target); err != nil {
		return apperrors.NewHttpError(http.StatusBadRequest, "Некорректное тело запроса", err, nil)
	}
	return ctx.Validate(target)
}

func (c *TicketController) SubmitTicket(ctx echo.Context) error {
	var req dto.CreateTicketDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.ticketService.SubmitTicket(ctx.Request().Context(), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Тикет создан", http.StatusCreated)
}

func (c *TicketController) GetTickets(ctx echo.Context) error {
	values := ctx.QueryParams()
	limit, offset := utils.ParsePaginationParams(values)

	query := dto.TicketQueryDTO{
		Category:    values.Get("category"),
		SubmitterID: values.Get("submitter_id"),
		AssigneeID:  values.Get("assignee_id"),
		Search:      values.Get("search"),
		Limit:       limit,
		Offset:      offset,
	}
	if raw := values.Get("status"); raw != "" {
		query.Statuses = strings.Split(raw, ",")
	}

	list, total, err := c.ticketService.GetTickets(ctx.Request().Context(), query)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.ListResponse(ctx, list, total, limit, offset)
}

func (c *TicketController) GetTicket(ctx echo.Context) error {
	res, err := c.ticketService.GetTicket(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Успешно", http.StatusOK)
}

func (c *TicketController) GetHistory(ctx echo.Context) error {
	res, err := c.ticketService.GetHistory(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Успешно", http.StatusOK)
}

func (c *TicketController) UpdateTicket(ctx echo.Context) error {
	var req dto.UpdateTicketDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.ticketService.UpdateTicketInfo(ctx.Request().Context(), ctx.Param("id"), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Тикет обновлён", http.StatusOK)
}

func (c *TicketController) Assign(ctx echo.Context) error {
	var req dto.AssignTicketDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	res, err := c.ticketService.Assign(ctx.Request().Context(), ctx.Param("id"), req)
	return c.transitionResponse(ctx, res, err, "Исполнитель назначен")
}

func (c *TicketController) Start(ctx echo.Context) error {
	var req dto.TicketActionDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	res, err := c.ticketService.StartProcess(ctx.Request().Context(), ctx.Param("id"), req)
	return c.transitionResponse(ctx, res, err, "Работа начата")
}

func (c *TicketController) Pause(ctx echo.Context) error {
	var req dto.TicketActionDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	res, err := c.ticketService.Pause(ctx.Request().Context(), ctx.Param("id"), req)
	return c.transitionResponse(ctx, res, err, "Тикет приостановлен")
}

func (c *TicketController) Continue(ctx echo.Context) error {
	var req dto.TicketActionDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	res, err := c.ticketService.Continue(ctx.Request().Context(), ctx.Param("id"), req)
	return c.transitionResponse(ctx, res, err, "Работа продолжена")
}

func (c *TicketController) Reject(ctx echo.Context) error {
	var req dto.RejectTicketDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	res, err := c.ticketService.Reject(ctx.Request().Context(), ctx.Param("id"), req)
	return c.transitionResponse(ctx, res, err, "Тикет возвращён в пул")
}

func (c *TicketController) Resolve(ctx echo.Context) error {
	var req dto.ResolveTicketDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	res, err := c.ticketService.Resolve(ctx.Request().Context(), ctx.Param("id"), req)
	return c.transitionResponse(ctx, res, err, "Тикет решён")
}

func (c *TicketController) Close(ctx echo.Context) error {
	var req dto.CloseTicketDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	res, err := c.ticketService.Close(ctx.Request().Context(), ctx.Param("id"), req)
	return c.transitionResponse(ctx, res, err, "Тикет закрыт")
}

func (c *TicketController) transitionResponse(ctx echo.Context, res *dto.TicketDTO, err error, message string) error {
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, message, http.StatusOK)
}
