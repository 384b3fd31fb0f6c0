package repositories

import (
	"context"
	"fmt"

	"helpdesk-system/internal/entities"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const materialLogTable = "material_logs"
const materialLogFields = `id, material_id, variant_id, type, quantity, before_stock, after_stock,
	operator_id, reason, requisition_no, timestamp`

// MaterialLogRepositoryInterface - журнал только на добавление: методов изменения и удаления нет.
type MaterialLogRepositoryInterface interface {
	Append(ctx context.Context, tx Tx, logs ...entities.MaterialLog) error
	List(ctx context.Context, tx Tx, filter entities.MaterialLogFilter) ([]entities.MaterialLog, uint64, error)
}

type MaterialLogRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewMaterialLogRepository(storage *pgxpool.Pool, logger *zap.Logger) MaterialLogRepositoryInterface {
	return &MaterialLogRepository{storage: storage, logger: logger}
}

func (r *MaterialLogRepository) Append(ctx context.Context, tx Tx, logs ...entities.MaterialLog) error {
	if len(logs) == 0 {
		return nil
	}
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return err
	}

	b := psql.Insert(materialLogTable).Columns("id", "material_id", "variant_id", "type", "quantity",
		"before_stock", "after_stock", "operator_id", "reason", "requisition_no", "timestamp")
	for _, l := range logs {
		b = b.Values(l.ID, l.MaterialID, l.VariantID, string(l.Type), l.Quantity,
			l.BeforeStock, l.AfterStock, l.OperatorID, l.Reason, l.RequisitionNo, l.Timestamp)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("ошибка сборки SQL для журнала остатков: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		r.logger.Error("не удалось записать журнал остатков", zap.Int("count", len(logs)), zap.Error(err))
		return mapStorageError(err)
	}
	return nil
}

func applyMaterialLogFilter(b sq.SelectBuilder, f entities.MaterialLogFilter) sq.SelectBuilder {
	if f.MaterialID != "" {
		b = b.Where(sq.Eq{"material_id": f.MaterialID})
	}
	if f.VariantID != "" {
		b = b.Where(sq.Eq{"variant_id": f.VariantID})
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		b = b.Where(sq.Eq{"type": types})
	}
	if f.From != nil {
		b = b.Where(sq.GtOrEq{"timestamp": *f.From})
	}
	if f.To != nil {
		b = b.Where(sq.Lt{"timestamp": *f.To})
	}
	return b
}

func (r *MaterialLogRepository) List(ctx context.Context, tx Tx, filter entities.MaterialLogFilter) ([]entities.MaterialLog, uint64, error) {
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return nil, 0, err
	}

	countQuery, countArgs, err := applyMaterialLogFilter(psql.Select("COUNT(*)").From(materialLogTable), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки SQL для подсчёта журнала: %w", err)
	}
	var total uint64
	if err := q.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, mapStorageError(err)
	}

	b := applyMaterialLogFilter(psql.Select(materialLogFields).From(materialLogTable), filter).OrderBy("timestamp DESC", "id DESC")
	if filter.Limit > 0 {
		b = b.Limit(filter.Limit).Offset(filter.Offset)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки SQL для журнала: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapStorageError(err)
	}
	defer rows.Close()

	logs := make([]entities.MaterialLog, 0)
	for rows.Next() {
		var l entities.MaterialLog
		if err := rows.Scan(&l.ID, &l.MaterialID, &l.VariantID, &l.Type, &l.Quantity, &l.BeforeStock,
			&l.AfterStock, &l.OperatorID, &l.Reason, &l.RequisitionNo, &l.Timestamp); err != nil {
			return nil, 0, mapStorageError(err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapStorageError(err)
	}
	return logs, total, nil
}
