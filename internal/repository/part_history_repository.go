package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repair-service/internal/domain"
)

// PartHistoryRepository reads the immutable spare part audit trail.
// Writes happen inside SparePartRepository transactions so a status
// change and its history row commit together.
type PartHistoryRepository interface {
	ListByPart(ctx context.Context, sparePartID string, limit, offset int) ([]domain.PartHistory, error)
}

type partHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewPartHistoryRepository builds repository.
func NewPartHistoryRepository(pool *pgxpool.Pool) PartHistoryRepository {
	return &partHistoryRepository{pool: pool}
}

func insertPartHistory(ctx context.Context, tx pgx.Tx, entry *domain.PartHistory) error {
	const query = `
        INSERT INTO part_history (spare_part_id, action, before_status, after_status, ticket_id, actor_id, notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return tx.QueryRow(ctx, query,
		entry.SparePartID,
		entry.Action,
		entry.BeforeStatus,
		entry.AfterStatus,
		entry.TicketID,
		entry.ActorID,
		entry.Notes,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *partHistoryRepository) ListByPart(ctx context.Context, sparePartID string, limit, offset int) ([]domain.PartHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, spare_part_id, action, before_status, after_status, ticket_id, actor_id, notes, created_at
        FROM part_history WHERE spare_part_id=$1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, sparePartID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PartHistory
	for rows.Next() {
		var entry domain.PartHistory
		if err := rows.Scan(
			&entry.ID,
			&entry.SparePartID,
			&entry.Action,
			&entry.BeforeStatus,
			&entry.AfterStatus,
			&entry.TicketID,
			&entry.ActorID,
			&entry.Notes,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
