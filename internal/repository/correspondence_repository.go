package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repair-service/internal/domain"
)

// CorrespondenceRepository persists vendor exchanges.
type CorrespondenceRepository interface {
	Create(ctx context.Context, corr *domain.VendorCorrespondence) error
	Update(ctx context.Context, corr *domain.VendorCorrespondence) error
	GetByID(ctx context.Context, id string) (*domain.VendorCorrespondence, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.VendorCorrespondence, error)
}

type correspondenceRepository struct {
	pool *pgxpool.Pool
}

// NewCorrespondenceRepository instantiates repository.
func NewCorrespondenceRepository(pool *pgxpool.Pool) CorrespondenceRepository {
	return &correspondenceRepository{pool: pool}
}

const corrColumns = `id, external_ref, ticket_id, request_type, status, component_type,
       sent_serial, sent_vendor_serial, received_serial, received_vendor_serial,
       sent_at, received_at, vendor_response, notes, created_at, updated_at`

func (r *correspondenceRepository) Create(ctx context.Context, corr *domain.VendorCorrespondence) error {
	const query = `
        INSERT INTO vendor_correspondence (external_ref, ticket_id, request_type, status, component_type,
            sent_serial, sent_vendor_serial, sent_at, vendor_response, notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		corr.ExternalRef,
		corr.TicketID,
		corr.RequestType,
		corr.Status,
		corr.ComponentType,
		corr.SentSerial,
		corr.SentVendorSerial,
		corr.SentAt,
		corr.VendorResponse,
		corr.Notes,
	).Scan(&corr.ID, &corr.CreatedAt, &corr.UpdatedAt)
}

func (r *correspondenceRepository) Update(ctx context.Context, corr *domain.VendorCorrespondence) error {
	const query = `
        UPDATE vendor_correspondence SET status=$1, received_serial=$2, received_vendor_serial=$3,
            received_at=$4, vendor_response=$5, notes=$6, updated_at=NOW()
        WHERE id=$7`
	cmd, err := r.pool.Exec(ctx, query,
		corr.Status,
		corr.ReceivedSerial,
		corr.ReceivedVendorSerial,
		corr.ReceivedAt,
		corr.VendorResponse,
		corr.Notes,
		corr.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *correspondenceRepository) GetByID(ctx context.Context, id string) (*domain.VendorCorrespondence, error) {
	query := fmt.Sprintf(`SELECT %s FROM vendor_correspondence WHERE id=$1`, corrColumns)
	return scanCorrespondenceRow(r.pool.QueryRow(ctx, query, id))
}

func (r *correspondenceRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.VendorCorrespondence, error) {
	query := fmt.Sprintf(`SELECT %s FROM vendor_correspondence WHERE ticket_id=$1 ORDER BY sent_at ASC`, corrColumns)
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.VendorCorrespondence
	for rows.Next() {
		corr, err := scanCorrespondenceRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *corr)
	}
	return result, rows.Err()
}

func scanCorrespondenceRow(row pgx.Row) (*domain.VendorCorrespondence, error) {
	var corr domain.VendorCorrespondence
	if err := row.Scan(
		&corr.ID,
		&corr.ExternalRef,
		&corr.TicketID,
		&corr.RequestType,
		&corr.Status,
		&corr.ComponentType,
		&corr.SentSerial,
		&corr.SentVendorSerial,
		&corr.ReceivedSerial,
		&corr.ReceivedVendorSerial,
		&corr.SentAt,
		&corr.ReceivedAt,
		&corr.VendorResponse,
		&corr.Notes,
		&corr.CreatedAt,
		&corr.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &corr, nil
}
