package repositories

import (
	"context"
	"fmt"

	"helpdesk-system/internal/entities"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const requisitionTable = "requisitions"
const requisitionFields = `id, requisition_no, applicant_id, applicant_name, department, ticket_no,
	items, total_amount::text, status, note, create_time`

type RequisitionRepositoryInterface interface {
	Create(ctx context.Context, tx Tx, requisition *entities.Requisition) error
	FindByID(ctx context.Context, tx Tx, id string) (*entities.Requisition, error)
	List(ctx context.Context, tx Tx, filter entities.RequisitionFilter) ([]entities.Requisition, uint64, error)
}

type RequisitionRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewRequisitionRepository(storage *pgxpool.Pool, logger *zap.Logger) RequisitionRepositoryInterface {
	return &RequisitionRepository{storage: storage, logger: logger}
}

func scanRequisition(row pgx.Row) (*entities.Requisition, error) {
	var req entities.Requisition
	var items []byte
	var total string
	err := row.Scan(&req.ID, &req.RequisitionNo, &req.ApplicantID, &req.ApplicantName, &req.Department,
		&req.TicketNo, &items, &total, &req.Status, &req.Note, &req.CreateTime)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if err := fromJSON(items, &req.Items); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("некорректная сумма заявки %s: %w", req.RequisitionNo, err)
	}
	req.TotalAmount = amount
	return &req, nil
}

func (r *RequisitionRepository) Create(ctx context.Context, tx Tx, req *entities.Requisition) error {
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return err
	}
	items := req.Items
	if items == nil {
		items = []entities.RequisitionItem{}
	}
	itemsJSON, err := toJSON(items)
	if err != nil {
		return err
	}

	query, args, err := psql.Insert(requisitionTable).
		Columns("id", "requisition_no", "applicant_id", "applicant_name", "department", "ticket_no",
			"items", "total_amount", "status", "note", "create_time").
		Values(req.ID, req.RequisitionNo, req.ApplicantID, req.ApplicantName, req.Department, req.TicketNo,
			itemsJSON, req.TotalAmount.StringFixed(2), string(req.Status), req.Note, req.CreateTime).
		ToSql()
	if err != nil {
		return fmt.Errorf("ошибка сборки SQL для создания заявки на выдачу: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		r.logger.Error("не удалось создать заявку на выдачу", zap.String("requisitionNo", req.RequisitionNo), zap.Error(err))
		return mapStorageError(err)
	}
	return nil
}

func (r *RequisitionRepository) FindByID(ctx context.Context, tx Tx, id string) (*entities.Requisition, error) {
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return nil, err
	}
	query, args, err := psql.Select(requisitionFields).From(requisitionTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки SQL для поиска заявки: %w", err)
	}
	return scanRequisition(q.QueryRow(ctx, query, args...))
}

func applyRequisitionFilter(b sq.SelectBuilder, f entities.RequisitionFilter) sq.SelectBuilder {
	if f.ApplicantID != "" {
		b = b.Where(sq.Eq{"applicant_id": f.ApplicantID})
	}
	if f.TicketNo != "" {
		b = b.Where(sq.Eq{"ticket_no": f.TicketNo})
	}
	return b
}

func (r *RequisitionRepository) List(ctx context.Context, tx Tx, filter entities.RequisitionFilter) ([]entities.Requisition, uint64, error) {
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return nil, 0, err
	}

	countQuery, countArgs, err := applyRequisitionFilter(psql.Select("COUNT(*)").From(requisitionTable), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки SQL для подсчёта заявок: %w", err)
	}
	var total uint64
	if err := q.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, mapStorageError(err)
	}

	b := applyRequisitionFilter(psql.Select(requisitionFields).From(requisitionTable), filter).OrderBy("create_time DESC")
	if filter.Limit > 0 {
		b = b.Limit(filter.Limit).Offset(filter.Offset)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки SQL для списка заявок: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapStorageError(err)
	}
	defer rows.Close()

	list := make([]entities.Requisition, 0)
	for rows.Next() {
		req, err := scanRequisition(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapStorageError(err)
	}
	return list, total, nil
}
