package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repair-service/internal/domain"
)

// LoanerRepository encapsulates loaner pool persistence. Issue and
// Return are conditional updates guarded on current status.
type LoanerRepository interface {
	Create(ctx context.Context, loaner *domain.LoanerUnit) error
	GetByID(ctx context.Context, id string) (*domain.LoanerUnit, error)
	List(ctx context.Context, statuses []domain.LoanerStatus, limit, offset int) ([]domain.LoanerUnit, error)
	FindByTicket(ctx context.Context, ticketID string) (*domain.LoanerUnit, error)
	Issue(ctx context.Context, loanerID, ticketID string) error
	Return(ctx context.Context, loanerID string) error
	SetStatus(ctx context.Context, loanerID string, status domain.LoanerStatus, notes string, expected []domain.LoanerStatus) error
}

type loanerRepository struct {
	pool *pgxpool.Pool
}

// NewLoanerRepository instantiates repository.
func NewLoanerRepository(pool *pgxpool.Pool) LoanerRepository {
	return &loanerRepository{pool: pool}
}

const loanerColumns = `id, unit_id, status, current_ticket_id, usage_count, notes, created_at, updated_at`

func (r *loanerRepository) Create(ctx context.Context, loaner *domain.LoanerUnit) error {
	const query = `
        INSERT INTO loaner_units (unit_id, status, notes)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		loaner.UnitID,
		loaner.Status,
		loaner.Notes,
	).Scan(&loaner.ID, &loaner.CreatedAt, &loaner.UpdatedAt)
}

func (r *loanerRepository) GetByID(ctx context.Context, id string) (*domain.LoanerUnit, error) {
	query := fmt.Sprintf(`SELECT %s FROM loaner_units WHERE id=$1`, loanerColumns)
	return scanLoanerRow(r.pool.QueryRow(ctx, query, id))
}

func (r *loanerRepository) List(ctx context.Context, statuses []domain.LoanerStatus, limit, offset int) ([]domain.LoanerUnit, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM loaner_units WHERE %s ORDER BY created_at LIMIT %d OFFSET %d`,
		loanerColumns, strings.Join(clauses, " AND "), limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LoanerUnit
	for rows.Next() {
		loaner, err := scanLoanerRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *loaner)
	}
	return result, rows.Err()
}

func (r *loanerRepository) FindByTicket(ctx context.Context, ticketID string) (*domain.LoanerUnit, error) {
	query := fmt.Sprintf(`SELECT %s FROM loaner_units WHERE current_ticket_id=$1`, loanerColumns)
	return scanLoanerRow(r.pool.QueryRow(ctx, query, ticketID))
}

// Issue claims an AVAILABLE loaner for a ticket and bumps its usage
// counter in the same statement.
func (r *loanerRepository) Issue(ctx context.Context, loanerID, ticketID string) error {
	const query = `
        UPDATE loaner_units SET status=$1, current_ticket_id=$2, usage_count=usage_count+1, updated_at=NOW()
        WHERE id=$3 AND status=$4`
	cmd, err := r.pool.Exec(ctx, query, domain.LoanerStatusInUse, ticketID, loanerID, domain.LoanerStatusAvailable)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.guardFailure(ctx, loanerID)
	}
	return nil
}

func (r *loanerRepository) Return(ctx context.Context, loanerID string) error {
	const query = `
        UPDATE loaner_units SET status=$1, current_ticket_id=NULL, updated_at=NOW()
        WHERE id=$2 AND status=$3`
	cmd, err := r.pool.Exec(ctx, query, domain.LoanerStatusAvailable, loanerID, domain.LoanerStatusInUse)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.guardFailure(ctx, loanerID)
	}
	return nil
}

func (r *loanerRepository) SetStatus(ctx context.Context, loanerID string, status domain.LoanerStatus, notes string, expected []domain.LoanerStatus) error {
	guards := make([]string, len(expected))
	args := []any{status, notes, loanerID}
	for i, st := range expected {
		args = append(args, st)
		guards[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`
        UPDATE loaner_units SET status=$1, notes=$2, updated_at=NOW()
        WHERE id=$3 AND status IN (%s)`, strings.Join(guards, ","))
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.guardFailure(ctx, loanerID)
	}
	return nil
}

func (r *loanerRepository) guardFailure(ctx context.Context, loanerID string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM loaner_units WHERE id=$1)`, loanerID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}
	return ErrStatusConflict
}

func scanLoanerRow(row pgx.Row) (*domain.LoanerUnit, error) {
	var loaner domain.LoanerUnit
	if err := row.Scan(
		&loaner.ID,
		&loaner.UnitID,
		&loaner.Status,
		&loaner.CurrentTicketID,
		&loaner.UsageCount,
		&loaner.Notes,
		&loaner.CreatedAt,
		&loaner.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &loaner, nil
}
