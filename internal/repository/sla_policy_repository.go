package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repair-service/internal/domain"
)

// SlaPolicyRepository reads SLA reference data. The engine never writes
// policies.
type SlaPolicyRepository interface {
	Lookup(ctx context.Context, partType string, priority domain.TicketPriority) (*domain.SlaPolicy, error)
	List(ctx context.Context) ([]domain.SlaPolicy, error)
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSlaPolicyRepository instantiates repository.
func NewSlaPolicyRepository(pool *pgxpool.Pool) SlaPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

const policyColumns = `id, part_type, priority, max_diagnosis_hours, max_repair_hours, max_total_hours, escalation_after_hours`

// Lookup resolves the policy for (part type, priority), falling back to
// the '*' catch-all part type row when no exact match exists.
func (r *slaPolicyRepository) Lookup(ctx context.Context, partType string, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	const query = `
        SELECT id, part_type, priority, max_diagnosis_hours, max_repair_hours, max_total_hours, escalation_after_hours
        FROM sla_policies WHERE part_type=$1 AND priority=$2`
	policy, err := scanPolicyRow(r.pool.QueryRow(ctx, query, partType, priority))
	if err == nil {
		return policy, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return scanPolicyRow(r.pool.QueryRow(ctx, query, "*", priority))
}

func (r *slaPolicyRepository) List(ctx context.Context) ([]domain.SlaPolicy, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+policyColumns+` FROM sla_policies ORDER BY part_type, priority`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SlaPolicy
	for rows.Next() {
		policy, err := scanPolicyRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *policy)
	}
	return result, rows.Err()
}

func scanPolicyRow(row pgx.Row) (*domain.SlaPolicy, error) {
	var policy domain.SlaPolicy
	if err := row.Scan(
		&policy.ID,
		&policy.PartType,
		&policy.Priority,
		&policy.MaxDiagnosisHours,
		&policy.MaxRepairHours,
		&policy.MaxTotalHours,
		&policy.EscalationAfterHours,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}
