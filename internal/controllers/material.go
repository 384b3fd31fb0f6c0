package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"helpdesk-system/internal/dto"
	"helpdesk-system/internal/services"
	"helpdesk-system/pkg/utils"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Потолок строк в выгрузке журнала.
const exportLimit = 100000

type MaterialController struct {
	inventoryService services.InventoryServiceInterface
	logger           *zap.Logger
}

func NewMaterialController(inventoryService services.InventoryServiceInterface, logger *zap.Logger) *MaterialController {
	return &MaterialController{
		inventoryService: inventoryService,
		logger:           logger,
	}
}

func (c *MaterialController) CreateMaterial(ctx echo.Context) error {
	var req dto.CreateMaterialDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.inventoryService.CreateMaterial(ctx.Request().Context(), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Материал создан", http.StatusCreated)
}

func (c *MaterialController) GetMaterials(ctx echo.Context) error {
	values := ctx.QueryParams()
	limit, offset := utils.ParsePaginationParams(values)

	query := dto.MaterialQueryDTO{
		Category:       values.Get("category"),
		Search:         values.Get("search"),
		IncludeDeleted: values.Get("include_deleted") == "true",
		Limit:          limit,
		Offset:         offset,
	}
	list, total, err := c.inventoryService.GetMaterials(ctx.Request().Context(), query)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.ListResponse(ctx, list, total, limit, offset)
}

func (c *MaterialController) GetMaterial(ctx echo.Context) error {
	res, err := c.inventoryService.GetMaterial(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Успешно", http.StatusOK)
}

func (c *MaterialController) UpdateMaterial(ctx echo.Context) error {
	var req dto.UpdateMaterialDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.inventoryService.UpdateMaterial(ctx.Request().Context(), ctx.Param("id"), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Материал обновлён", http.StatusOK)
}

func (c *MaterialController) DeleteMaterial(ctx echo.Context) error {
	var req dto.DeleteMaterialDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	if err := c.inventoryService.SoftDeleteMaterial(ctx.Request().Context(), ctx.Param("id"), req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, nil, "Материал удалён", http.StatusOK)
}

func (c *MaterialController) UpdatePrice(ctx echo.Context) error {
	var req dto.UpdatePriceDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.inventoryService.UpdatePrice(ctx.Request().Context(), ctx.Param("id"), ctx.Param("variantId"), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Цена обновлена", http.StatusOK)
}

func (c *MaterialController) MutateStock(ctx echo.Context) error {
	var req dto.StockMutationDTO
	if err := bindAndValidate(ctx, &req); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.inventoryService.MutateStock(ctx.Request().Context(), ctx.Param("id"), ctx.Param("variantId"), req)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Остаток изменён", http.StatusOK)
}

func (c *MaterialController) GetStockAlerts(ctx echo.Context) error {
	res, err := c.inventoryService.GetStockAlerts(ctx.Request().Context())
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Успешно", http.StatusOK)
}

func (c *MaterialController) GetStats(ctx echo.Context) error {
	res, err := c.inventoryService.GetStats(ctx.Request().Context())
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "Успешно", http.StatusOK)
}

func (c *MaterialController) GetMaterialLogs(ctx echo.Context) error {
	values := ctx.QueryParams()
	format := strings.ToLower(values.Get("format"))
	limit, offset := utils.ParsePaginationParams(values)
	if format == "xlsx" {
		limit, offset = exportLimit, 0
	}

	query := dto.MaterialLogQueryDTO{
		MaterialID: values.Get("material_id"),
		VariantID:  values.Get("variant_id"),
		From:       values.Get("date_from"),
		To:         values.Get("date_to"),
		Limit:      limit,
		Offset:     offset,
	}
	if raw := values.Get("type"); raw != "" {
		query.Types = strings.Split(raw, ",")
	}

	logs, total, err := c.inventoryService.GetMaterialLogs(ctx.Request().Context(), query)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	c.logger.Debug("Журнал склада", zap.Uint64("total", total), zap.String("format", format))

	if format == "xlsx" {
		return c.respondWithXLSX(ctx, logs)
	}
	return utils.ListResponse(ctx, logs, total, limit, offset)
}

var materialLogHeaders = []string{
	"Дата", "ID записи", "Материал", "Вариант", "Тип", "Количество", "Было", "Стало", "Оператор", "Причина", "Заявка",
}

func (c *MaterialController) respondWithXLSX(ctx echo.Context, logs []dto.MaterialLogDTO) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Журнал склада"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	f.SetSheetRow(sheet, "A1", &materialLogHeaders)
	style, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	f.SetCellStyle(sheet, "A1", "K1", style)

	for i, l := range logs {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			l.Timestamp, l.ID, l.MaterialID, l.VariantID, l.Type, l.Quantity,
			l.BeforeStock, l.AfterStock, l.OperatorID, l.Reason, l.RequisitionNo,
		}
		f.SetSheetRow(sheet, cell, &row)
	}
	f.SetColWidth(sheet, "A", "A", 20)
	f.SetColWidth(sheet, "B", "D", 38)
	f.SetColWidth(sheet, "J", "J", 40)

	fileName := fmt.Sprintf("material_logs_%s.xlsx", time.Now().Format("2006-01-02"))
	ctx.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ctx.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+fileName)
	ctx.Response().WriteHeader(http.StatusOK)
	return f.Write(ctx.Response().Writer)
}
