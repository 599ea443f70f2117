package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repair-service/internal/domain"
)

// ComponentMergePlan is the write set a merge reconciliation produced:
// targeted field updates for mismatches, inserts for new-in-live, and
// review flags for missing-from-live. Applied in one transaction.
type ComponentMergePlan struct {
	Updates []domain.InstalledComponent
	Inserts []domain.InstalledComponent
	Reviews []domain.InstalledComponent
}

// ComponentRepository persists the installed-component inventory that
// reconciliation reads and writes back to.
type ComponentRepository interface {
	ListByUnit(ctx context.Context, unitID string) ([]domain.InstalledComponent, error)
	ForceReplace(ctx context.Context, unitID string, preserveIDs []string, fresh []domain.InstalledComponent) error
	ApplyMerge(ctx context.Context, unitID string, plan ComponentMergePlan) error
}

type componentRepository struct {
	pool *pgxpool.Pool
}

// NewComponentRepository instantiates repository.
func NewComponentRepository(pool *pgxpool.Pool) ComponentRepository {
	return &componentRepository{pool: pool}
}

const componentColumns = `id, unit_id, serial, part_type, model, firmware, status, slot, source,
       needs_review, review_reason, created_at, updated_at`

func (r *componentRepository) ListByUnit(ctx context.Context, unitID string) ([]domain.InstalledComponent, error) {
	query := fmt.Sprintf(`SELECT %s FROM installed_components WHERE unit_id=$1 ORDER BY serial`, componentColumns)
	rows, err := r.pool.Query(ctx, query, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.InstalledComponent
	for rows.Next() {
		comp, err := scanComponentRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *comp)
	}
	return result, rows.Err()
}

// ForceReplace deletes every record for the unit except the preserved
// ones, then inserts one row per live component. Re-running with the
// same snapshot leaves the table in the same state.
func (r *componentRepository) ForceReplace(ctx context.Context, unitID string, preserveIDs []string, fresh []domain.InstalledComponent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM installed_components WHERE unit_id=$1 AND NOT (id = ANY($2))`,
		unitID, preserveIDs); err != nil {
		return err
	}

	for i := range fresh {
		if err := insertComponent(ctx, tx, &fresh[i]); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ApplyMerge writes the plan atomically. Updates touch only the fields
// reconciliation compares; review flags never delete anything.
func (r *componentRepository) ApplyMerge(ctx context.Context, unitID string, plan ComponentMergePlan) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for i := range plan.Updates {
		comp := &plan.Updates[i]
		cmd, err := tx.Exec(ctx, `
            UPDATE installed_components SET model=$1, firmware=$2, status=$3, slot=$4,
                needs_review=FALSE, review_reason='', updated_at=NOW()
            WHERE id=$5 AND unit_id=$6`,
			comp.Model, comp.Firmware, comp.Status, comp.Slot, comp.ID, unitID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
	}

	for i := range plan.Inserts {
		if err := insertComponent(ctx, tx, &plan.Inserts[i]); err != nil {
			return err
		}
	}

	for i := range plan.Reviews {
		comp := &plan.Reviews[i]
		cmd, err := tx.Exec(ctx, `
            UPDATE installed_components SET needs_review=TRUE, review_reason=$1, updated_at=NOW()
            WHERE id=$2 AND unit_id=$3`,
			comp.ReviewReason, comp.ID, unitID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
	}
	return tx.Commit(ctx)
}

func insertComponent(ctx context.Context, tx pgx.Tx, comp *domain.InstalledComponent) error {
	const query = `
        INSERT INTO installed_components (unit_id, serial, part_type, model, firmware, status, slot, source)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	return tx.QueryRow(ctx, query,
		comp.UnitID,
		comp.Serial,
		comp.PartType,
		comp.Model,
		comp.Firmware,
		comp.Status,
		comp.Slot,
		comp.Source,
	).Scan(&comp.ID, &comp.CreatedAt, &comp.UpdatedAt)
}

func scanComponentRow(row pgx.Row) (*domain.InstalledComponent, error) {
	var comp domain.InstalledComponent
	if err := row.Scan(
		&comp.ID,
		&comp.UnitID,
		&comp.Serial,
		&comp.PartType,
		&comp.Model,
		&comp.Firmware,
		&comp.Status,
		&comp.Slot,
		&comp.Source,
		&comp.NeedsReview,
		&comp.ReviewReason,
		&comp.CreatedAt,
		&comp.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &comp, nil
}
