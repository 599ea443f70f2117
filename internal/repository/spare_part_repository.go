package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repair-service/internal/domain"
)

// ErrStatusConflict signals that a guarded update found the row in a
// status outside the expected set. The caller decides which domain
// error that maps to.
var ErrStatusConflict = errors.New("status guard failed")

// SparePartFilter captures stock search parameters.
type SparePartFilter struct {
	PartType       *string
	Statuses       []domain.SparePartStatus
	Condition      *domain.PartCondition
	HostUnitID     *string
	WarrantyBefore *time.Time
	Limit          int
	Offset         int
}

// SparePartRepository encapsulates spare part persistence. Reserve and
// Transition are conditional updates: the status guard is evaluated at
// commit time, and the accompanying history row is written in the same
// transaction.
type SparePartRepository interface {
	Create(ctx context.Context, part *domain.SparePart, entry *domain.PartHistory) error
	GetByID(ctx context.Context, id string) (*domain.SparePart, error)
	GetBySerial(ctx context.Context, serial string) (*domain.SparePart, error)
	ListWithFilter(ctx context.Context, filter SparePartFilter) ([]domain.SparePart, error)
	ListReservedByTicket(ctx context.Context, ticketID string) ([]domain.SparePart, error)
	Reserve(ctx context.Context, partID, ticketID string, entry *domain.PartHistory) error
	Transition(ctx context.Context, part *domain.SparePart, expected []domain.SparePartStatus, entry *domain.PartHistory) error
}

type sparePartRepository struct {
	pool *pgxpool.Pool
}

// NewSparePartRepository instantiates repository.
func NewSparePartRepository(pool *pgxpool.Pool) SparePartRepository {
	return &sparePartRepository{pool: pool}
}

const partColumns = `id, part_type, manufacturer, model, serial, vendor_serial, status, condition,
       host_unit_id, reserved_ticket_id, correspondence_id, warranty_expiry, metadata, created_at, updated_at`

func (r *sparePartRepository) Create(ctx context.Context, part *domain.SparePart, entry *domain.PartHistory) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO spare_parts (part_type, manufacturer, model, serial, vendor_serial, status, condition,
            warranty_expiry, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		part.PartType,
		part.Manufacturer,
		part.Model,
		part.Serial,
		part.VendorSerial,
		part.Status,
		part.Condition,
		part.WarrantyExpiry,
		part.Metadata,
	).Scan(&part.ID, &part.CreatedAt, &part.UpdatedAt); err != nil {
		return err
	}

	if entry != nil {
		entry.SparePartID = part.ID
		if err := insertPartHistory(ctx, tx, entry); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *sparePartRepository) GetByID(ctx context.Context, id string) (*domain.SparePart, error) {
	query := fmt.Sprintf(`SELECT %s FROM spare_parts WHERE id=$1`, partColumns)
	return scanPartRow(r.pool.QueryRow(ctx, query, id))
}

func (r *sparePartRepository) GetBySerial(ctx context.Context, serial string) (*domain.SparePart, error) {
	query := fmt.Sprintf(`SELECT %s FROM spare_parts WHERE serial=$1`, partColumns)
	return scanPartRow(r.pool.QueryRow(ctx, query, serial))
}

func (r *sparePartRepository) ListWithFilter(ctx context.Context, filter SparePartFilter) ([]domain.SparePart, error) {
	base := fmt.Sprintf(`SELECT %s FROM spare_parts`, partColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.PartType != nil {
		args = append(args, *filter.PartType)
		clauses = append(clauses, fmt.Sprintf("part_type=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Condition != nil {
		args = append(args, *filter.Condition)
		clauses = append(clauses, fmt.Sprintf("condition=$%d", len(args)))
	}
	if filter.HostUnitID != nil {
		args = append(args, *filter.HostUnitID)
		clauses = append(clauses, fmt.Sprintf("host_unit_id=$%d", len(args)))
	}
	if filter.WarrantyBefore != nil {
		args = append(args, *filter.WarrantyBefore)
		clauses = append(clauses, fmt.Sprintf("warranty_expiry <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY part_type, serial LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanParts(rows)
}

func (r *sparePartRepository) ListReservedByTicket(ctx context.Context, ticketID string) ([]domain.SparePart, error) {
	query := fmt.Sprintf(`SELECT %s FROM spare_parts WHERE reserved_ticket_id=$1`, partColumns)
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanParts(rows)
}

// Reserve claims an AVAILABLE part for a ticket. The guard is part of
// the UPDATE itself, so two racing reservations cannot both succeed.
func (r *sparePartRepository) Reserve(ctx context.Context, partID, ticketID string, entry *domain.PartHistory) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        UPDATE spare_parts SET status=$1, reserved_ticket_id=$2, updated_at=NOW()
        WHERE id=$3 AND status=$4`
	cmd, err := tx.Exec(ctx, query, domain.PartStatusReserved, ticketID, partID, domain.PartStatusAvailable)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM spare_parts WHERE id=$1)`, partID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return pgx.ErrNoRows
		}
		return ErrStatusConflict
	}

	if err := insertPartHistory(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Transition writes the part's new state, guarded on the expected
// current statuses, together with its history entry.
func (r *sparePartRepository) Transition(ctx context.Context, part *domain.SparePart, expected []domain.SparePartStatus, entry *domain.PartHistory) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	guards := make([]string, len(expected))
	args := []any{
		part.Status,
		part.Condition,
		part.HostUnitID,
		part.ReservedTicketID,
		part.CorrespondenceID,
		part.Metadata,
		part.ID,
	}
	for i, status := range expected {
		args = append(args, status)
		guards[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`
        UPDATE spare_parts SET status=$1, condition=$2, host_unit_id=$3, reserved_ticket_id=$4,
            correspondence_id=$5, metadata=$6, updated_at=NOW()
        WHERE id=$7 AND status IN (%s)`, strings.Join(guards, ","))

	cmd, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM spare_parts WHERE id=$1)`, part.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return pgx.ErrNoRows
		}
		return ErrStatusConflict
	}

	if err := insertPartHistory(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanPartRow(row pgx.Row) (*domain.SparePart, error) {
	var part domain.SparePart
	if err := row.Scan(
		&part.ID,
		&part.PartType,
		&part.Manufacturer,
		&part.Model,
		&part.Serial,
		&part.VendorSerial,
		&part.Status,
		&part.Condition,
		&part.HostUnitID,
		&part.ReservedTicketID,
		&part.CorrespondenceID,
		&part.WarrantyExpiry,
		&part.Metadata,
		&part.CreatedAt,
		&part.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &part, nil
}

func scanParts(rows pgx.Rows) ([]domain.SparePart, error) {
	var result []domain.SparePart
	for rows.Next() {
		part, err := scanPartRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *part)
	}
	return result, rows.Err()
}
