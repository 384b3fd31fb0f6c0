package repositories

import (
	"context"
	"fmt"

	"helpdesk-system/internal/entities"
	apperrors "helpdesk-system/pkg/errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const materialTable = "materials"
const materialFields = `id, material_no, name, category, unit, description, status, total_stock,
	variants, created_by, create_time, update_time, revision`

// MaterialRepositoryInterface. Каждое чтение обязано явно указать допустимые статусы.
type MaterialRepositoryInterface interface {
	Create(ctx context.Context, tx Tx, material *entities.Material) error
	FindByID(ctx context.Context, tx Tx, id string, statuses entities.MaterialStatusFilter) (*entities.Material, error)
	Update(ctx context.Context, tx Tx, material *entities.Material) error
	List(ctx context.Context, tx Tx, filter entities.MaterialFilter) ([]entities.Material, uint64, error)
}

type MaterialRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewMaterialRepository(storage *pgxpool.Pool, logger *zap.Logger) MaterialRepositoryInterface {
	return &MaterialRepository{storage: storage, logger: logger}
}

// RequireStatusFilter отклоняет чтение без фильтра статусов.
func RequireStatusFilter(statuses entities.MaterialStatusFilter) error {
	if len(statuses) == 0 {
		return fmt.Errorf("%w: чтение материалов без фильтра статусов", apperrors.ErrInternalLogic)
	}
	return nil
}

func scanMaterial(row pgx.Row) (*entities.Material, error) {
	var m entities.Material
	var variants []byte
	err := row.Scan(
		&m.ID, &m.MaterialNo, &m.Name, &m.Category, &m.Unit, &m.Description, &m.Status, &m.TotalStock,
		&variants, &m.CreatedBy, &m.CreateTime, &m.UpdateTime, &m.Revision,
	)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if err := fromJSON(variants, &m.Variants); err != nil {
		return nil, err
	}
	return &m, nil
}

func materialVariants(m *entities.Material) ([]byte, error) {
	if m.Variants == nil {
		return toJSON([]entities.Variant{})
	}
	return toJSON(m.Variants)
}

func (r *MaterialRepository) Create(ctx context.Context, tx Tx, m *entities.Material) error {
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return err
	}
	variants, err := materialVariants(m)
	if err != nil {
		return err
	}
	if m.Revision == 0 {
		m.Revision = 1
	}

	query, args, err := psql.Insert(materialTable).
		Columns("id", "material_no", "name", "category", "unit", "description", "status", "total_stock",
			"variants", "created_by", "create_time", "update_time", "revision").
		Values(m.ID, m.MaterialNo, m.Name, m.Category, m.Unit, m.Description, string(m.Status), m.TotalStock,
			variants, m.CreatedBy, m.CreateTime, m.UpdateTime, m.Revision).
		ToSql()
	if err != nil {
		return fmt.Errorf("ошибка сборки SQL для создания материала: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		r.logger.Error("не удалось создать материал", zap.String("materialNo", m.MaterialNo), zap.Error(err))
		return mapStorageError(err)
	}
	return nil
}

func (r *MaterialRepository) FindByID(ctx context.Context, tx Tx, id string, statuses entities.MaterialStatusFilter) (*entities.Material, error) {
	if err := RequireStatusFilter(statuses); err != nil {
		return nil, err
	}
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return nil, err
	}
	b := psql.Select(materialFields).From(materialTable).
		Where(sq.Eq{"id": id, "status": statuses.Strings()})
	query, args, err := forUpdate(b, tx).ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки SQL для поиска материала: %w", err)
	}
	return scanMaterial(q.QueryRow(ctx, query, args...))
}

func (r *MaterialRepository) Update(ctx context.Context, tx Tx, m *entities.Material) error {
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return err
	}
	variants, err := materialVariants(m)
	if err != nil {
		return err
	}

	query, args, err := psql.Update(materialTable).
		SetMap(map[string]interface{}{
			"name":        m.Name,
			"category":    m.Category,
			"unit":        m.Unit,
			"description": m.Description,
			"status":      string(m.Status),
			"total_stock": m.TotalStock,
			"variants":    variants,
			"update_time": m.UpdateTime,
			"revision":    sq.Expr("revision + 1"),
		}).
		Where(sq.Eq{"id": m.ID, "revision": m.Revision}).
		ToSql()
	if err != nil {
		return fmt.Errorf("ошибка сборки SQL для обновления материала: %w", err)
	}

	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return mapStorageError(err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("ревизия материала устарела", zap.String("id", m.ID), zap.Int64("revision", m.Revision))
		return fmt.Errorf("%w: материал %s изменён другим запросом", apperrors.ErrConflict, m.MaterialNo)
	}
	m.Revision++
	return nil
}

func applyMaterialFilter(b sq.SelectBuilder, f entities.MaterialFilter) sq.SelectBuilder {
	b = b.Where(sq.Eq{"status": f.Statuses.Strings()})
	if f.Category != "" {
		b = b.Where(sq.Eq{"category": f.Category})
	}
	if f.Search != "" {
		p := searchPattern(f.Search)
		b = b.Where(sq.Or{sq.ILike{"name": p}, sq.ILike{"material_no": p}})
	}
	return b
}

func (r *MaterialRepository) List(ctx context.Context, tx Tx, filter entities.MaterialFilter) ([]entities.Material, uint64, error) {
	if err := RequireStatusFilter(filter.Statuses); err != nil {
		return nil, 0, err
	}
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return nil, 0, err
	}

	countQuery, countArgs, err := applyMaterialFilter(psql.Select("COUNT(*)").From(materialTable), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки SQL для подсчёта материалов: %w", err)
	}
	var total uint64
	if err := q.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, mapStorageError(err)
	}

	b := applyMaterialFilter(psql.Select(materialFields).From(materialTable), filter).OrderBy("name ASC", "id ASC")
	if filter.Limit > 0 {
		b = b.Limit(filter.Limit).Offset(filter.Offset)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки SQL для списка материалов: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapStorageError(err)
	}
	defer rows.Close()

	materials := make([]entities.Material, 0)
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, 0, err
		}
		materials = append(materials, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapStorageError(err)
	}
	return materials, total, nil
}
