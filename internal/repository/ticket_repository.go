package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repair-service/internal/domain"
)

// TicketFilter captures ticket search parameters.
type TicketFilter struct {
	UnitID          *string
	PartType        *string
	DiagnosticianID *string
	Statuses        []domain.TicketStatus
	Priorities      []domain.TicketPriority
	DetectedFrom    *time.Time
	DetectedTo      *time.Time
	BreachedOnly    bool
	RepeatedOnly    bool
	OpenOnly        bool
	Limit           int
	Offset          int
}

// TicketStats aggregates counters over the ticket table. Breach counts
// are derived from the stored deadline at query time, never stored.
type TicketStats struct {
	CountsByStatus   map[domain.TicketStatus]int64
	CountsByPartType map[string]int64
	RepeatedCount    int64
	BreachedCount    int64
	AvgRepairMinutes *float64
}

// TicketRepository encapsulates defect ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.DefectTicket) error
	Update(ctx context.Context, ticket *domain.DefectTicket) error
	GetByID(ctx context.Context, id string) (*domain.DefectTicket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.DefectTicket, error)
	Stats(ctx context.Context) (*TicketStats, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, unit_id, detected_at, status, priority, problem_description, part_type,
       defective_serial, defective_vendor_serial, replacement_serial, replacement_vendor_serial,
       diagnostician_id, resolver_id, sla_deadline,
       diagnosis_started_at, diagnosis_ended_at, repair_started_at, repair_ended_at, resolved_at,
       downtime_minutes, is_repeated, previous_ticket_id, loaner_unit_id,
       vendor_sent, vendor_received, resolution, created_at, updated_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.DefectTicket) error {
	const query = `
        INSERT INTO defect_tickets (unit_id, detected_at, status, priority, problem_description, part_type,
            defective_serial, defective_vendor_serial, diagnostician_id, sla_deadline,
            diagnosis_started_at, is_repeated, previous_ticket_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.UnitID,
		ticket.DetectedAt,
		ticket.Status,
		ticket.Priority,
		ticket.ProblemDescription,
		ticket.PartType,
		ticket.DefectiveSerial,
		ticket.DefectiveVendorSerial,
		ticket.DiagnosticianID,
		ticket.SLADeadline,
		ticket.DiagnosisStarted,
		ticket.IsRepeated,
		ticket.PreviousTicketID,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.DefectTicket) error {
	const query = `
        UPDATE defect_tickets SET status=$1, priority=$2, problem_description=$3, part_type=$4,
            defective_serial=$5, defective_vendor_serial=$6, replacement_serial=$7, replacement_vendor_serial=$8,
            diagnostician_id=$9, resolver_id=$10,
            diagnosis_started_at=$11, diagnosis_ended_at=$12, repair_started_at=$13, repair_ended_at=$14,
            resolved_at=$15, downtime_minutes=$16, loaner_unit_id=$17,
            vendor_sent=$18, vendor_received=$19, resolution=$20, closed_at=$21, updated_at=NOW()
        WHERE id=$22`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Status,
		ticket.Priority,
		ticket.ProblemDescription,
		ticket.PartType,
		ticket.DefectiveSerial,
		ticket.DefectiveVendorSerial,
		ticket.ReplacementSerial,
		ticket.ReplacementVendorSerial,
		ticket.DiagnosticianID,
		ticket.ResolverID,
		ticket.DiagnosisStarted,
		ticket.DiagnosisEnded,
		ticket.RepairStarted,
		ticket.RepairEnded,
		ticket.ResolvedAt,
		ticket.DowntimeMinutes,
		ticket.LoanerUnitID,
		ticket.VendorSent,
		ticket.VendorReceived,
		ticket.Resolution,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.DefectTicket, error) {
	query := fmt.Sprintf(`SELECT %s FROM defect_tickets WHERE id=$1`, ticketColumns)
	row := r.pool.QueryRow(ctx, query, id)
	return scanTicketRow(row)
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.DefectTicket, error) {
	base := fmt.Sprintf(`SELECT %s FROM defect_tickets`, ticketColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UnitID != nil {
		args = append(args, *filter.UnitID)
		clauses = append(clauses, fmt.Sprintf("unit_id=$%d", len(args)))
	}
	if filter.PartType != nil {
		args = append(args, *filter.PartType)
		clauses = append(clauses, fmt.Sprintf("part_type=$%d", len(args)))
	}
	if filter.DiagnosticianID != nil {
		args = append(args, *filter.DiagnosticianID)
		clauses = append(clauses, fmt.Sprintf("diagnostician_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.DetectedFrom != nil {
		args = append(args, *filter.DetectedFrom)
		clauses = append(clauses, fmt.Sprintf("detected_at >= $%d", len(args)))
	}
	if filter.DetectedTo != nil {
		args = append(args, *filter.DetectedTo)
		clauses = append(clauses, fmt.Sprintf("detected_at <= $%d", len(args)))
	}
	if filter.OpenOnly {
		clauses = append(clauses, "status NOT IN ('RESOLVED','CLOSED')")
	}
	if filter.RepeatedOnly {
		clauses = append(clauses, "is_repeated = TRUE")
	}
	if filter.BreachedOnly {
		clauses = append(clauses, "((resolved_at IS NULL AND NOW() > sla_deadline) OR resolved_at > sla_deadline)")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY detected_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Stats(ctx context.Context) (*TicketStats, error) {
	stats := &TicketStats{
		CountsByStatus:   map[domain.TicketStatus]int64{},
		CountsByPartType: map[string]int64{},
	}

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM defect_tickets GROUP BY status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status domain.TicketStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.CountsByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `SELECT part_type, COUNT(*) FROM defect_tickets GROUP BY part_type`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var partType string
		var count int64
		if err := rows.Scan(&partType, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.CountsByPartType[partType] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const aggregate = `
        SELECT COUNT(*) FILTER (WHERE is_repeated),
               COUNT(*) FILTER (WHERE (resolved_at IS NULL AND NOW() > sla_deadline) OR resolved_at > sla_deadline),
               AVG(downtime_minutes) FILTER (WHERE downtime_minutes IS NOT NULL)
        FROM defect_tickets`
	if err := r.pool.QueryRow(ctx, aggregate).Scan(
		&stats.RepeatedCount,
		&stats.BreachedCount,
		&stats.AvgRepairMinutes,
	); err != nil {
		return nil, err
	}
	return stats, nil
}

func scanTicketRow(row pgx.Row) (*domain.DefectTicket, error) {
	var ticket domain.DefectTicket
	if err := row.Scan(
		&ticket.ID,
		&ticket.UnitID,
		&ticket.DetectedAt,
		&ticket.Status,
		&ticket.Priority,
		&ticket.ProblemDescription,
		&ticket.PartType,
		&ticket.DefectiveSerial,
		&ticket.DefectiveVendorSerial,
		&ticket.ReplacementSerial,
		&ticket.ReplacementVendorSerial,
		&ticket.DiagnosticianID,
		&ticket.ResolverID,
		&ticket.SLADeadline,
		&ticket.DiagnosisStarted,
		&ticket.DiagnosisEnded,
		&ticket.RepairStarted,
		&ticket.RepairEnded,
		&ticket.ResolvedAt,
		&ticket.DowntimeMinutes,
		&ticket.IsRepeated,
		&ticket.PreviousTicketID,
		&ticket.LoanerUnitID,
		&ticket.VendorSent,
		&ticket.VendorReceived,
		&ticket.Resolution,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.DefectTicket, error) {
	var result []domain.DefectTicket
	for rows.Next() {
		ticket, err := scanTicketRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
