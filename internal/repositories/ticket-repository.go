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

const ticketTable = "tickets"
const ticketFields = `id, ticket_no, title, description, category, priority, status,
	submitter_id, submitter_name, submitter_phone, location, assignee_id, assignee_name,
	solution, close_reason, reject_reason, attachments, solution_attachments, process_history,
	create_time, update_time, assign_time, start_time, complete_time, close_time, revision`

type TicketRepositoryInterface interface {
	Create(ctx context.Context, tx Tx, ticket *entities.Ticket) error
	// FindByID внутри транзакции берёт строку под блокировку.
	FindByID(ctx context.Context, tx Tx, id string) (*entities.Ticket, error)
	FindByTicketNo(ctx context.Context, tx Tx, ticketNo string) (*entities.Ticket, error)
	// Update пишет документ целиком при совпадении ревизии, иначе ErrConflict.
	Update(ctx context.Context, tx Tx, ticket *entities.Ticket) error
	List(ctx context.Context, tx Tx, filter entities.TicketFilter) ([]entities.Ticket, uint64, error)
}

type TicketRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewTicketRepository(storage *pgxpool.Pool, logger *zap.Logger) TicketRepositoryInterface {
	return &TicketRepository{storage: storage, logger: logger}
}

func scanTicket(row pgx.Row) (*entities.Ticket, error) {
	var t entities.Ticket
	var attachments, solutionAttachments, history []byte

	err := row.Scan(
		&t.ID, &t.TicketNo, &t.Title, &t.Description, &t.Category, &t.Priority, &t.Status,
		&t.SubmitterID, &t.SubmitterName, &t.SubmitterPhone, &t.Location, &t.AssigneeID, &t.AssigneeName,
		&t.Solution, &t.CloseReason, &t.RejectReason, &attachments, &solutionAttachments, &history,
		&t.CreateTime, &t.UpdateTime, &t.AssignTime, &t.StartTime, &t.CompleteTime, &t.CloseTime, &t.Revision,
	)
	if err != nil {
		return nil, mapStorageError(err)
	}

	if err := fromJSON(attachments, &t.Attachments); err != nil {
		return nil, err
	}
	if err := fromJSON(solutionAttachments, &t.SolutionAttachments); err != nil {
		return nil, err
	}
	if err := fromJSON(history, &t.ProcessHistory); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TicketRepository) findOne(ctx context.Context, tx Tx, where sq.Eq) (*entities.Ticket, error) {
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return nil, err
	}
	query, args, err := forUpdate(psql.Select(ticketFields).From(ticketTable).Where(where), tx).ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка сборки SQL для поиска тикета: %w", err)
	}
	return scanTicket(q.QueryRow(ctx, query, args...))
}

func (r *TicketRepository) FindByID(ctx context.Context, tx Tx, id string) (*entities.Ticket, error) {
	return r.findOne(ctx, tx, sq.Eq{"id": id})
}

func (r *TicketRepository) FindByTicketNo(ctx context.Context, tx Tx, ticketNo string) (*entities.Ticket, error) {
	return r.findOne(ctx, tx, sq.Eq{"ticket_no": ticketNo})
}

func ticketDocuments(t *entities.Ticket) (attachments, solutionAttachments, history []byte, err error) {
	if attachments, err = toJSON(nonNilAttachments(t.Attachments)); err != nil {
		return
	}
	if solutionAttachments, err = toJSON(nonNilAttachments(t.SolutionAttachments)); err != nil {
		return
	}
	if t.ProcessHistory == nil {
		history, err = toJSON([]entities.ProcessHistoryEntry{})
		return
	}
	history, err = toJSON(t.ProcessHistory)
	return
}

func nonNilAttachments(a []entities.Attachment) []entities.Attachment {
	if a == nil {
		return []entities.Attachment{}
	}
	return a
}

func (r *TicketRepository) Create(ctx context.Context, tx Tx, t *entities.Ticket) error {
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return err
	}
	attachments, solutionAttachments, history, err := ticketDocuments(t)
	if err != nil {
		return err
	}
	if t.Revision == 0 {
		t.Revision = 1
	}

	query, args, err := psql.Insert(ticketTable).
		Columns("id", "ticket_no", "title", "description", "category", "priority", "status",
			"submitter_id", "submitter_name", "submitter_phone", "location", "assignee_id", "assignee_name",
			"solution", "close_reason", "reject_reason", "attachments", "solution_attachments", "process_history",
			"create_time", "update_time", "assign_time", "start_time", "complete_time", "close_time", "revision").
		Values(t.ID, t.TicketNo, t.Title, t.Description, t.Category, string(t.Priority), string(t.Status),
			t.SubmitterID, t.SubmitterName, t.SubmitterPhone, t.Location, t.AssigneeID, t.AssigneeName,
			t.Solution, t.CloseReason, t.RejectReason, attachments, solutionAttachments, history,
			t.CreateTime, t.UpdateTime, t.AssignTime, t.StartTime, t.CompleteTime, t.CloseTime, t.Revision).
		ToSql()
	if err != nil {
		return fmt.Errorf("ошибка сборки SQL для создания тикета: %w", err)
	}

	if _, err := q.Exec(ctx, query, args...); err != nil {
		r.logger.Error("не удалось создать тикет", zap.String("ticketNo", t.TicketNo), zap.Error(err))
		return mapStorageError(err)
	}
	return nil
}

func (r *TicketRepository) Update(ctx context.Context, tx Tx, t *entities.Ticket) error {
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return err
	}
	attachments, solutionAttachments, history, err := ticketDocuments(t)
	if err != nil {
		return err
	}

	query, args, err := psql.Update(ticketTable).
		SetMap(map[string]interface{}{
			"title":                t.Title,
			"description":          t.Description,
			"category":             t.Category,
			"priority":             string(t.Priority),
			"status":               string(t.Status),
			"submitter_phone":      t.SubmitterPhone,
			"location":             t.Location,
			"assignee_id":          t.AssigneeID,
			"assignee_name":        t.AssigneeName,
			"solution":             t.Solution,
			"close_reason":         t.CloseReason,
			"reject_reason":        t.RejectReason,
			"attachments":          attachments,
			"solution_attachments": solutionAttachments,
			"process_history":      history,
			"update_time":          t.UpdateTime,
			"assign_time":          t.AssignTime,
			"start_time":           t.StartTime,
			"complete_time":        t.CompleteTime,
			"close_time":           t.CloseTime,
			"revision":             sq.Expr("revision + 1"),
		}).
		Where(sq.Eq{"id": t.ID, "revision": t.Revision}).
		ToSql()
	if err != nil {
		return fmt.Errorf("ошибка сборки SQL для обновления тикета: %w", err)
	}

	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return mapStorageError(err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("ревизия тикета устарела", zap.String("id", t.ID), zap.Int64("revision", t.Revision))
		return fmt.Errorf("%w: тикет %s изменён другим запросом", apperrors.ErrConflict, t.TicketNo)
	}
	t.Revision++
	return nil
}

func applyTicketFilter(b sq.SelectBuilder, f entities.TicketFilter) sq.SelectBuilder {
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		b = b.Where(sq.Eq{"status": statuses})
	}
	if f.Category != "" {
		b = b.Where(sq.Eq{"category": f.Category})
	}
	if f.SubmitterID != "" {
		b = b.Where(sq.Eq{"submitter_id": f.SubmitterID})
	}
	if f.AssigneeID != "" {
		b = b.Where(sq.Eq{"assignee_id": f.AssigneeID})
	}
	if f.VisibleToEngineer != "" {
		b = b.Where(sq.Or{
			sq.Eq{"status": string(entities.TicketStatusPending)},
			sq.Eq{"assignee_id": f.VisibleToEngineer},
			sq.Eq{"submitter_id": f.VisibleToEngineer},
		})
	}
	if f.Search != "" {
		p := searchPattern(f.Search)
		b = b.Where(sq.Or{
			sq.ILike{"title": p},
			sq.ILike{"ticket_no": p},
			sq.ILike{"description": p},
		})
	}
	return b
}

func (r *TicketRepository) List(ctx context.Context, tx Tx, filter entities.TicketFilter) ([]entities.Ticket, uint64, error) {
	q, err := getQuerier(r.storage, tx)
	if err != nil {
		return nil, 0, err
	}

	countQuery, countArgs, err := applyTicketFilter(psql.Select("COUNT(*)").From(ticketTable), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки SQL для подсчёта тикетов: %w", err)
	}
	var total uint64
	if err := q.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, mapStorageError(err)
	}

	b := applyTicketFilter(psql.Select(ticketFields).From(ticketTable), filter).OrderBy("create_time DESC")
	if filter.Limit > 0 {
		b = b.Limit(filter.Limit).Offset(filter.Offset)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка сборки SQL для списка тикетов: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapStorageError(err)
	}
	defer rows.Close()

	tickets := make([]entities.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, err
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapStorageError(err)
	}
	return tickets, total, nil
}
