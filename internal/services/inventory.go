package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"helpdesk-system/internal/authz"
	"helpdesk-system/internal/dto"
	"helpdesk-system/internal/entities"
	"helpdesk-system/internal/events"
	"helpdesk-system/internal/repositories"
	apperrors "helpdesk-system/pkg/errors"
	"helpdesk-system/pkg/eventbus"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type InventoryServiceInterface interface {
	CreateMaterial(ctx context.Context, data dto.CreateMaterialDTO) (*dto.MaterialDTO, error)
	UpdateMaterial(ctx context.Context, id string, data dto.UpdateMaterialDTO) (*dto.MaterialDTO, error)
	UpdatePrice(ctx context.Context, id, variantID string, data dto.UpdatePriceDTO) (*dto.MaterialDTO, error)
	SoftDeleteMaterial(ctx context.Context, id string, data dto.DeleteMaterialDTO) error
	MutateStock(ctx context.Context, id, variantID string, data dto.StockMutationDTO) (*dto.StockMutationResultDTO, error)

	GetMaterial(ctx context.Context, id string) (*dto.MaterialDTO, error)
	GetMaterials(ctx context.Context, query dto.MaterialQueryDTO) ([]dto.MaterialDTO, uint64, error)
	GetMaterialLogs(ctx context.Context, query dto.MaterialLogQueryDTO) ([]dto.MaterialLogDTO, uint64, error)
	GetStockAlerts(ctx context.Context) ([]dto.StockAlertDTO, error)
	GetStats(ctx context.Context) (*dto.StockStatsDTO, error)
}

type InventoryService struct {
	*BaseService
	txManager    repositories.TxManagerInterface
	materialRepo repositories.MaterialRepositoryInterface
	logRepo      repositories.MaterialLogRepositoryInterface
	ledger       *stockLedger
	eventBus     *eventbus.Bus
	logger       *zap.Logger
}

func NewInventoryService(
	base *BaseService,
	txManager repositories.TxManagerInterface,
	materialRepo repositories.MaterialRepositoryInterface,
	logRepo repositories.MaterialLogRepositoryInterface,
	eventBus *eventbus.Bus,
	logger *zap.Logger,
) InventoryServiceInterface {
	return &InventoryService{
		BaseService:  base,
		txManager:    txManager,
		materialRepo: materialRepo,
		logRepo:      logRepo,
		ledger:       newStockLedger(materialRepo, logRepo),
		eventBus:     eventBus,
		logger:       logger,
	}
}

func (s *InventoryService) CreateMaterial(ctx context.Context, data dto.CreateMaterialDTO) (*dto.MaterialDTO, error) {
	actor, err := s.CheckPermission(ctx, authz.MaterialsManage)
	if err != nil {
		return nil, err
	}
	if len(data.Variants) == 0 {
		return nil, apperrors.NewValidationError("У материала должен быть хотя бы один вариант")
	}

	now := time.Now()
	material := &entities.Material{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(data.Name),
		Category:    data.Category,
		Unit:        data.Unit,
		Description: data.Description,
		Status:      entities.MaterialStatusActive,
		Variants:    make([]entities.Variant, 0, len(data.Variants)),
		CreatedBy:   actor.ID,
		CreateTime:  now,
		UpdateTime:  now,
	}
	for _, v := range data.Variants {
		if v.Stock < 0 || v.SafetyStock < 0 || v.CostPrice.IsNegative() || v.SalePrice.IsNegative() {
			return nil, apperrors.NewValidationError("Остаток, порог и цены варианта «%s» не могут быть отрицательными", v.Label)
		}
		material.Variants = append(material.Variants, entities.Variant{
			VariantID:   uuid.NewString(),
			Label:       v.Label,
			CostPrice:   v.CostPrice,
			SalePrice:   v.SalePrice,
			Stock:       v.Stock,
			SafetyStock: v.SafetyStock,
			ImageURL:    v.ImageURL,
		})
	}
	material.RecalculateTotalStock()

	err = s.WithConflictRetry(ctx, "createMaterial", func() error {
		material.MaterialNo = generateEpochNumber("MT", time.Now())
		material.Revision = 0
		return s.txManager.RunInTransaction(ctx, func(tx repositories.Tx) error {
			if err := s.materialRepo.Create(ctx, tx, material); err != nil {
				return err
			}
			logs := make([]entities.MaterialLog, 0, len(material.Variants))
			for _, v := range material.Variants {
				logs = append(logs, creationEntry(material, v, actor.ID, "Создание материала", now))
			}
			return s.logRepo.Append(ctx, tx, logs...)
		})
	})
	if err != nil {
		s.logger.Error("Не удалось создать материал", zap.String("name", material.Name), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Материал создан", zap.String("materialNo", material.MaterialNo), zap.String("operatorID", actor.ID))
	result := toMaterialDTO(material, true)
	return &result, nil
}

func (s *InventoryService) UpdateMaterial(ctx context.Context, id string, data dto.UpdateMaterialDTO) (*dto.MaterialDTO, error) {
	actor, err := s.CheckPermission(ctx, authz.MaterialsManage)
	if err != nil {
		return nil, err
	}
	for _, v := range data.Variants {
		if v.VariantID != "" && (v.Stock != nil || v.CostPrice != nil || v.SalePrice != nil) {
			return nil, apperrors.NewValidationError("Остаток и цены существующего варианта меняются только складскими операциями и изменением цены")
		}
		if v.VariantID == "" && (v.Label == nil || strings.TrimSpace(*v.Label) == "") {
			return nil, apperrors.NewValidationError("Для нового варианта нужно название")
		}
		if (v.Stock != nil && *v.Stock < 0) || (v.SafetyStock != nil && *v.SafetyStock < 0) ||
			(v.CostPrice != nil && v.CostPrice.IsNegative()) || (v.SalePrice != nil && v.SalePrice.IsNegative()) {
			return nil, apperrors.NewValidationError("Остаток, порог и цены варианта не могут быть отрицательными")
		}
	}

	var updated *entities.Material
	err = s.WithConflictRetry(ctx, "updateMaterial", func() error {
		return s.txManager.RunInTransaction(ctx, func(tx repositories.Tx) error {
			material, err := s.materialRepo.FindByID(ctx, tx, id, entities.OnlyActiveMaterials)
			if err != nil {
				return materialLookupError(err, id)
			}

			now := time.Now()
			logs := make([]entities.MaterialLog, 0)

			if data.Name != nil || data.Category != nil || data.Unit != nil || data.Description != nil {
				if data.Name != nil {
					material.Name = strings.TrimSpace(*data.Name)
				}
				if data.Category != nil {
					material.Category = *data.Category
				}
				if data.Unit != nil {
					material.Unit = *data.Unit
				}
				if data.Description != nil {
					material.Description = *data.Description
				}
				logs = append(logs, entities.MaterialLog{
					ID:          uuid.NewString(),
					MaterialID:  material.ID,
					Type:        entities.MaterialLogUpdate,
					BeforeStock: material.TotalStock,
					AfterStock:  material.TotalStock,
					OperatorID:  actor.ID,
					Reason:      "Изменены данные материала",
					Timestamp:   now,
				})
			}

			for _, v := range data.Variants {
				if v.VariantID == "" {
					variant := entities.Variant{VariantID: uuid.NewString(), Label: strings.TrimSpace(*v.Label)}
					if v.Stock != nil {
						variant.Stock = *v.Stock
					}
					if v.SafetyStock != nil {
						variant.SafetyStock = *v.SafetyStock
					}
					if v.CostPrice != nil {
						variant.CostPrice = *v.CostPrice
					}
					if v.SalePrice != nil {
						variant.SalePrice = *v.SalePrice
					}
					if v.ImageURL != nil {
						variant.ImageURL = *v.ImageURL
					}
					material.Variants = append(material.Variants, variant)
					logs = append(logs, creationEntry(material, variant, actor.ID, "Добавлен вариант", now))
					continue
				}

				idx := material.VariantIndex(v.VariantID)
				if idx < 0 {
					return variantNotFound(material, v.VariantID)
				}
				variant := &material.Variants[idx]
				if v.Label != nil {
					variant.Label = strings.TrimSpace(*v.Label)
				}
				if v.SafetyStock != nil {
					variant.SafetyStock = *v.SafetyStock
				}
				if v.ImageURL != nil {
					variant.ImageURL = *v.ImageURL
				}
				logs = append(logs, auditEntry(material, *variant, entities.MaterialLogUpdate, actor.ID, "Изменены данные варианта", now))
			}

			if len(logs) == 0 {
				updated = material
				return nil
			}

			material.RecalculateTotalStock()
			material.UpdateTime = now
			if err := s.materialRepo.Update(ctx, tx, material); err != nil {
				return err
			}
			if err := s.logRepo.Append(ctx, tx, logs...); err != nil {
				return err
			}
			updated = material
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Материал обновлён", zap.String("materialNo", updated.MaterialNo), zap.String("operatorID", actor.ID))
	result := toMaterialDTO(updated, true)
	return &result, nil
}

func (s *InventoryService) UpdatePrice(ctx context.Context, id, variantID string, data dto.UpdatePriceDTO) (*dto.MaterialDTO, error) {
	actor, err := s.CheckPermission(ctx, authz.MaterialsPriceUpdate)
	if err != nil {
		return nil, err
	}
	if data.CostPrice == nil && data.SalePrice == nil {
		return nil, apperrors.NewValidationError("Укажите новую цену закупки или продажи")
	}
	if (data.CostPrice != nil && data.CostPrice.IsNegative()) || (data.SalePrice != nil && data.SalePrice.IsNegative()) {
		return nil, apperrors.NewValidationError("Цена не может быть отрицательной")
	}

	var updated *entities.Material
	err = s.WithConflictRetry(ctx, "updatePrice", func() error {
		return s.txManager.RunInTransaction(ctx, func(tx repositories.Tx) error {
			material, err := s.materialRepo.FindByID(ctx, tx, id, entities.OnlyActiveMaterials)
			if err != nil {
				return materialLookupError(err, id)
			}
			idx := material.VariantIndex(variantID)
			if idx < 0 {
				return variantNotFound(material, variantID)
			}

			variant := &material.Variants[idx]
			changes := make([]string, 0, 3)
			if data.CostPrice != nil {
				changes = append(changes, fmt.Sprintf("закупка %s → %s", variant.CostPrice.StringFixed(2), data.CostPrice.StringFixed(2)))
				variant.CostPrice = *data.CostPrice
			}
			if data.SalePrice != nil {
				changes = append(changes, fmt.Sprintf("продажа %s → %s", variant.SalePrice.StringFixed(2), data.SalePrice.StringFixed(2)))
				variant.SalePrice = *data.SalePrice
			}
			if data.Reason != "" {
				changes = append(changes, data.Reason)
			}

			now := time.Now()
			material.UpdateTime = now
			if err := s.materialRepo.Update(ctx, tx, material); err != nil {
				return err
			}
			entry := auditEntry(material, *variant, entities.MaterialLogPriceChange, actor.ID, "Изменение цены: "+strings.Join(changes, "; "), now)
			if err := s.logRepo.Append(ctx, tx, entry); err != nil {
				return err
			}
			updated = material
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Цена варианта изменена",
		zap.String("materialNo", updated.MaterialNo),
		zap.String("variantID", variantID),
		zap.String("operatorID", actor.ID),
	)
	result := toMaterialDTO(updated, true)
	return &result, nil
}

// SoftDeleteMaterial только меняет статус: строки журнала и заявки продолжают ссылаться на материал.
func (s *InventoryService) SoftDeleteMaterial(ctx context.Context, id string, data dto.DeleteMaterialDTO) error {
	actor, err := s.CheckPermission(ctx, authz.MaterialsManage)
	if err != nil {
		return err
	}
	reason := data.Reason
	if reason == "" {
		reason = "Материал удалён"
	}

	var materialNo string
	err = s.WithConflictRetry(ctx, "softDeleteMaterial", func() error {
		return s.txManager.RunInTransaction(ctx, func(tx repositories.Tx) error {
			material, err := s.materialRepo.FindByID(ctx, tx, id, entities.OnlyActiveMaterials)
			if err != nil {
				return materialLookupError(err, id)
			}

			now := time.Now()
			material.Status = entities.MaterialStatusDeleted
			material.UpdateTime = now
			if err := s.materialRepo.Update(ctx, tx, material); err != nil {
				return err
			}

			logs := make([]entities.MaterialLog, 0, len(material.Variants))
			for _, v := range material.Variants {
				logs = append(logs, auditEntry(material, v, entities.MaterialLogDelete, actor.ID, reason, now))
			}
			materialNo = material.MaterialNo
			return s.logRepo.Append(ctx, tx, logs...)
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("Материал помечен удалённым", zap.String("materialNo", materialNo), zap.String("operatorID", actor.ID))
	return nil
}

func (s *InventoryService) MutateStock(ctx context.Context, id, variantID string, data dto.StockMutationDTO) (*dto.StockMutationResultDTO, error) {
	op := entities.MaterialLogType(data.Type)
	if !op.IsStockOperation() {
		return nil, apperrors.NewValidationError("Неизвестный тип складской операции: %s", data.Type)
	}
	actor, err := s.CheckPermission(ctx, authz.StockPermission(op))
	if err != nil {
		return nil, err
	}
	if op != entities.MaterialLogAdjust && data.Quantity == 0 {
		return nil, apperrors.NewValidationError("Количество должно быть больше нуля")
	}
	if op == entities.MaterialLogAdjust && data.Quantity < 0 {
		return nil, apperrors.NewValidationError("Остаток после корректировки не может быть отрицательным")
	}

	mutation := stockMutation{
		MaterialID: id,
		VariantID:  variantID,
		Type:       op,
		Quantity:   data.Quantity,
		Reason:     data.Reason,
		OperatorID: actor.ID,
	}

	// Повтор только при конфликте и всегда со свежим чтением остатка.
	var outcome stockOutcome
	err = s.WithConflictRetry(ctx, "mutateStock", func() error {
		return s.txManager.RunInTransaction(ctx, func(tx repositories.Tx) error {
			var err error
			outcome, err = s.ledger.mutate(ctx, tx, mutation)
			return err
		})
	})
	if err != nil {
		s.logger.Warn("Складская операция отклонена",
			zap.String("materialID", id),
			zap.String("variantID", variantID),
			zap.String("type", data.Type),
			zap.Int("quantity", data.Quantity),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Складская операция проведена",
		zap.String("materialNo", outcome.Material.MaterialNo),
		zap.String("variantID", variantID),
		zap.String("type", data.Type),
		zap.Int("before", outcome.Log.BeforeStock),
		zap.Int("after", outcome.Log.AfterStock),
		zap.String("operatorID", actor.ID),
	)
	if outcome.BecameLow {
		publishStockLow(ctx, s.eventBus, outcome, actor.ID)
	}

	return &dto.StockMutationResultDTO{
		LogID:       outcome.Log.ID,
		MaterialID:  outcome.Log.MaterialID,
		VariantID:   outcome.Log.VariantID,
		Type:        string(outcome.Log.Type),
		Quantity:    outcome.Log.Quantity,
		BeforeStock: outcome.Log.BeforeStock,
		AfterStock:  outcome.Log.AfterStock,
	}, nil
}

func publishStockLow(ctx context.Context, bus *eventbus.Bus, outcome stockOutcome, actorID string) {
	if bus == nil {
		return
	}
	bus.Publish(ctx, events.StockLowEvent{
		MaterialID:   outcome.Material.ID,
		MaterialName: outcome.Material.Name,
		VariantID:    outcome.Variant.VariantID,
		VariantLabel: outcome.Variant.Label,
		Stock:        outcome.Variant.Stock,
		SafetyStock:  outcome.Variant.SafetyStock,
		ActorID:      actorID,
	})
}

func (s *InventoryService) GetMaterial(ctx context.Context, id string) (*dto.MaterialDTO, error) {
	actor, err := s.CheckPermission(ctx, authz.MaterialsView)
	if err != nil {
		return nil, err
	}
	perms := authz.PermissionsFor(actor.Role)

	statuses := entities.OnlyActiveMaterials
	if perms[authz.MaterialsManage] {
		statuses = entities.AnyMaterialStatus
	}
	material, err := s.materialRepo.FindByID(ctx, nil, id, statuses)
	if err != nil {
		return nil, materialLookupError(err, id)
	}
	result := toMaterialDTO(material, perms[authz.MaterialsPriceView])
	return &result, nil
}

func (s *InventoryService) GetMaterials(ctx context.Context, query dto.MaterialQueryDTO) ([]dto.MaterialDTO, uint64, error) {
	actor, err := s.CheckPermission(ctx, authz.MaterialsView)
	if err != nil {
		return nil, 0, err
	}
	perms := authz.PermissionsFor(actor.Role)

	filter := entities.MaterialFilter{
		Statuses: entities.OnlyActiveMaterials,
		Category: query.Category,
		Search:   strings.TrimSpace(query.Search),
		Limit:    query.Limit,
		Offset:   query.Offset,
	}
	if query.IncludeDeleted && perms[authz.MaterialsManage] {
		filter.Statuses = entities.AnyMaterialStatus
	}

	materials, total, err := s.materialRepo.List(ctx, nil, filter)
	if err != nil {
		s.logger.Error("Не удалось получить список материалов", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.MaterialDTO, 0, len(materials))
	for i := range materials {
		result = append(result, toMaterialDTO(&materials[i], perms[authz.MaterialsPriceView]))
	}
	return result, total, nil
}

func parseDateBound(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return nil, apperrors.NewValidationError("Некорректная дата: %s", raw)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

func (s *InventoryService) GetMaterialLogs(ctx context.Context, query dto.MaterialLogQueryDTO) ([]dto.MaterialLogDTO, uint64, error) {
	if _, err := s.CheckPermission(ctx, authz.MaterialsLogsView); err != nil {
		return nil, 0, err
	}

	filter := entities.MaterialLogFilter{
		MaterialID: query.MaterialID,
		VariantID:  query.VariantID,
		Limit:      query.Limit,
		Offset:     query.Offset,
	}
	for _, raw := range query.Types {
		t := entities.MaterialLogType(raw)
		switch t {
		case entities.MaterialLogIn, entities.MaterialLogOut, entities.MaterialLogAdjust, entities.MaterialLogCreate,
			entities.MaterialLogUpdate, entities.MaterialLogDelete, entities.MaterialLogPriceChange:
			filter.Types = append(filter.Types, t)
		default:
			return nil, 0, apperrors.NewValidationError("Неизвестный тип записи журнала: %s", raw)
		}
	}
	var err error
	if filter.From, err = parseDateBound(query.From, false); err != nil {
		return nil, 0, err
	}
	if filter.To, err = parseDateBound(query.To, true); err != nil {
		return nil, 0, err
	}

	logs, total, err := s.logRepo.List(ctx, nil, filter)
	if err != nil {
		s.logger.Error("Не удалось получить журнал склада", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.MaterialLogDTO, 0, len(logs))
	for _, l := range logs {
		result = append(result, dto.MaterialLogDTO{
			ID:            l.ID,
			MaterialID:    l.MaterialID,
			VariantID:     l.VariantID,
			Type:          string(l.Type),
			Quantity:      l.Quantity,
			BeforeStock:   l.BeforeStock,
			AfterStock:    l.AfterStock,
			OperatorID:    l.OperatorID,
			Reason:        l.Reason,
			RequisitionNo: l.RequisitionNo,
			Timestamp:     formatTime(l.Timestamp),
		})
	}
	return result, total, nil
}

// GetStockAlerts: сначала закончившиеся, затем по возрастанию остатка.
func (s *InventoryService) GetStockAlerts(ctx context.Context) ([]dto.StockAlertDTO, error) {
	if _, err := s.CheckPermission(ctx, authz.MaterialsView); err != nil {
		return nil, err
	}

	materials, _, err := s.materialRepo.List(ctx, nil, entities.MaterialFilter{Statuses: entities.OnlyActiveMaterials})
	if err != nil {
		s.logger.Error("Не удалось получить материалы для оповещений", zap.Error(err))
		return nil, err
	}

	alerts := make([]dto.StockAlertDTO, 0)
	for _, m := range materials {
		for _, v := range m.Variants {
			if !v.IsLow() {
				continue
			}
			alerts = append(alerts, dto.StockAlertDTO{
				MaterialID:   m.ID,
				MaterialNo:   m.MaterialNo,
				MaterialName: m.Name,
				Category:     m.Category,
				Unit:         m.Unit,
				VariantID:    v.VariantID,
				VariantLabel: v.Label,
				Stock:        v.Stock,
				SafetyStock:  v.SafetyStock,
				OutOfStock:   v.Stock == 0,
			})
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.OutOfStock != b.OutOfStock {
			return a.OutOfStock
		}
		if a.Stock != b.Stock {
			return a.Stock < b.Stock
		}
		return a.MaterialName < b.MaterialName
	})
	return alerts, nil
}

func (s *InventoryService) GetStats(ctx context.Context) (*dto.StockStatsDTO, error) {
	if _, err := s.CheckPermission(ctx, authz.MaterialsStats); err != nil {
		return nil, err
	}

	materials, _, err := s.materialRepo.List(ctx, nil, entities.MaterialFilter{Statuses: entities.AnyMaterialStatus})
	if err != nil {
		s.logger.Error("Не удалось получить материалы для статистики", zap.Error(err))
		return nil, err
	}

	stats := &dto.StockStatsDTO{StockValue: decimal.Zero}
	for _, m := range materials {
		if m.Status == entities.MaterialStatusDeleted {
			stats.DeletedCount++
			continue
		}
		stats.MaterialCount++
		stats.TotalStock += m.TotalStock
		for _, v := range m.Variants {
			stats.VariantCount++
			if v.Stock == 0 {
				stats.OutOfStockCount++
			}
			if v.IsLow() {
				stats.LowStockCount++
			}
			stats.StockValue = stats.StockValue.Add(v.CostPrice.Mul(decimal.NewFromInt(int64(v.Stock))))
		}
	}
	stats.StockValue = stats.StockValue.Round(2)
	return stats, nil
}

func toMaterialDTO(m *entities.Material, withPrices bool) dto.MaterialDTO {
	variants := make([]dto.VariantDTO, 0, len(m.Variants))
	for _, v := range m.Variants {
		item := dto.VariantDTO{
			VariantID:   v.VariantID,
			Label:       v.Label,
			Stock:       v.Stock,
			SafetyStock: v.SafetyStock,
			ImageURL:    v.ImageURL,
			IsLow:       v.IsLow(),
		}
		if withPrices {
			cost, sale := v.CostPrice, v.SalePrice
			item.CostPrice = &cost
			item.SalePrice = &sale
		}
		variants = append(variants, item)
	}
	return dto.MaterialDTO{
		ID:          m.ID,
		MaterialNo:  m.MaterialNo,
		Name:        m.Name,
		Category:    m.Category,
		Unit:        m.Unit,
		Description: m.Description,
		Status:      string(m.Status),
		TotalStock:  m.TotalStock,
		Variants:    variants,
		CreatedBy:   m.CreatedBy,
		CreateTime:  formatTime(m.CreateTime),
		UpdateTime:  formatTime(m.UpdateTime),
	}
}
