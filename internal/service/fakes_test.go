package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/repository"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// In-memory repository fakes. Guarded updates take the same lock the
// reads do, so the conditional-update semantics of the SQL layer hold
// under concurrent test traffic.

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]domain.DefectTicket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: make(map[string]domain.DefectTicket)}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.DefectTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.DefectTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = time.Now()
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.DefectTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := ticket
	return &copied, nil
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.DefectTicket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.DefectTicket
	for _, ticket := range r.tickets {
		if filter.OpenOnly && !ticket.IsOpen() {
			continue
		}
		if filter.UnitID != nil && ticket.UnitID != *filter.UnitID {
			continue
		}
		result = append(result, ticket)
	}
	return result, nil
}

func (r *fakeTicketRepo) Stats(_ context.Context) (*repository.TicketStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &repository.TicketStats{
		CountsByStatus:   map[domain.TicketStatus]int64{},
		CountsByPartType: map[string]int64{},
	}
	for _, ticket := range r.tickets {
		stats.CountsByStatus[ticket.Status]++
		stats.CountsByPartType[ticket.PartType]++
		if ticket.IsRepeated {
			stats.RepeatedCount++
		}
		if ticket.SLABreached(time.Now()) {
			stats.BreachedCount++
		}
	}
	return stats, nil
}

type fakePartRepo struct {
	mu      sync.Mutex
	parts   map[string]domain.SparePart
	history []domain.PartHistory
}

func newFakePartRepo() *fakePartRepo {
	return &fakePartRepo{parts: make(map[string]domain.SparePart)}
}

func (r *fakePartRepo) Create(_ context.Context, part *domain.SparePart, entry *domain.PartHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	part.ID = uuid.NewString()
	part.CreatedAt = time.Now()
	part.UpdatedAt = part.CreatedAt
	r.parts[part.ID] = *part
	if entry != nil {
		entry.SparePartID = part.ID
		r.appendHistory(entry)
	}
	return nil
}

func (r *fakePartRepo) GetByID(_ context.Context, id string) (*domain.SparePart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	part, ok := r.parts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := part
	return &copied, nil
}

func (r *fakePartRepo) GetBySerial(_ context.Context, serial string) (*domain.SparePart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, part := range r.parts {
		if part.Serial == serial {
			copied := part
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakePartRepo) ListWithFilter(_ context.Context, filter repository.SparePartFilter) ([]domain.SparePart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.SparePart
	for _, part := range r.parts {
		if filter.PartType != nil && part.PartType != *filter.PartType {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, status := range filter.Statuses {
				if part.Status == status {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		result = append(result, part)
	}
	return result, nil
}

func (r *fakePartRepo) ListReservedByTicket(_ context.Context, ticketID string) ([]domain.SparePart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.SparePart
	for _, part := range r.parts {
		if part.ReservedTicketID != nil && *part.ReservedTicketID == ticketID {
			result = append(result, part)
		}
	}
	return result, nil
}

func (r *fakePartRepo) Reserve(_ context.Context, partID, ticketID string, entry *domain.PartHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	part, ok := r.parts[partID]
	if !ok {
		return pgx.ErrNoRows
	}
	if part.Status != domain.PartStatusAvailable {
		return repository.ErrStatusConflict
	}
	part.Status = domain.PartStatusReserved
	part.ReservedTicketID = &ticketID
	part.UpdatedAt = time.Now()
	r.parts[partID] = part
	r.appendHistory(entry)
	return nil
}

func (r *fakePartRepo) Transition(_ context.Context, part *domain.SparePart, expected []domain.SparePartStatus, entry *domain.PartHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.parts[part.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	match := false
	for _, status := range expected {
		if current.Status == status {
			match = true
		}
	}
	if !match {
		return repository.ErrStatusConflict
	}
	part.UpdatedAt = time.Now()
	r.parts[part.ID] = *part
	r.appendHistory(entry)
	return nil
}

func (r *fakePartRepo) appendHistory(entry *domain.PartHistory) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	r.history = append(r.history, *entry)
}

// ListByPart implements repository.PartHistoryRepository on the same
// store, mirroring the shared table in the SQL layer.
func (r *fakePartRepo) ListByPart(_ context.Context, partID string, _, _ int) ([]domain.PartHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.PartHistory
	for _, entry := range r.history {
		if entry.SparePartID == partID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type fakeLoanerRepo struct {
	mu      sync.Mutex
	loaners map[string]domain.LoanerUnit
}

func newFakeLoanerRepo() *fakeLoanerRepo {
	return &fakeLoanerRepo{loaners: make(map[string]domain.LoanerUnit)}
}

func (r *fakeLoanerRepo) Create(_ context.Context, loaner *domain.LoanerUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	loaner.ID = uuid.NewString()
	loaner.CreatedAt = time.Now()
	loaner.UpdatedAt = loaner.CreatedAt
	r.loaners[loaner.ID] = *loaner
	return nil
}

func (r *fakeLoanerRepo) GetByID(_ context.Context, id string) (*domain.LoanerUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	loaner, ok := r.loaners[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := loaner
	return &copied, nil
}

func (r *fakeLoanerRepo) List(_ context.Context, statuses []domain.LoanerStatus, _, _ int) ([]domain.LoanerUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.LoanerUnit
	for _, loaner := range r.loaners {
		if len(statuses) > 0 {
			match := false
			for _, status := range statuses {
				if loaner.Status == status {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		result = append(result, loaner)
	}
	return result, nil
}

func (r *fakeLoanerRepo) FindByTicket(_ context.Context, ticketID string) (*domain.LoanerUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, loaner := range r.loaners {
		if loaner.CurrentTicketID != nil && *loaner.CurrentTicketID == ticketID {
			copied := loaner
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeLoanerRepo) Issue(_ context.Context, loanerID, ticketID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	loaner, ok := r.loaners[loanerID]
	if !ok {
		return pgx.ErrNoRows
	}
	if loaner.Status != domain.LoanerStatusAvailable {
		return repository.ErrStatusConflict
	}
	loaner.Status = domain.LoanerStatusInUse
	loaner.CurrentTicketID = &ticketID
	loaner.UsageCount++
	r.loaners[loanerID] = loaner
	return nil
}

func (r *fakeLoanerRepo) Return(_ context.Context, loanerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	loaner, ok := r.loaners[loanerID]
	if !ok {
		return pgx.ErrNoRows
	}
	if loaner.Status != domain.LoanerStatusInUse {
		return repository.ErrStatusConflict
	}
	loaner.Status = domain.LoanerStatusAvailable
	loaner.CurrentTicketID = nil
	r.loaners[loanerID] = loaner
	return nil
}

func (r *fakeLoanerRepo) SetStatus(_ context.Context, loanerID string, status domain.LoanerStatus, notes string, expected []domain.LoanerStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	loaner, ok := r.loaners[loanerID]
	if !ok {
		return pgx.ErrNoRows
	}
	match := false
	for _, st := range expected {
		if loaner.Status == st {
			match = true
		}
	}
	if !match {
		return repository.ErrStatusConflict
	}
	loaner.Status = status
	loaner.Notes = notes
	r.loaners[loanerID] = loaner
	return nil
}

type fakeCorrespondenceRepo struct {
	mu      sync.Mutex
	entries map[string]domain.VendorCorrespondence
}

func newFakeCorrespondenceRepo() *fakeCorrespondenceRepo {
	return &fakeCorrespondenceRepo{entries: make(map[string]domain.VendorCorrespondence)}
}

func (r *fakeCorrespondenceRepo) Create(_ context.Context, corr *domain.VendorCorrespondence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	corr.ID = uuid.NewString()
	corr.CreatedAt = time.Now()
	corr.UpdatedAt = corr.CreatedAt
	r.entries[corr.ID] = *corr
	return nil
}

func (r *fakeCorrespondenceRepo) Update(_ context.Context, corr *domain.VendorCorrespondence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[corr.ID]; !ok {
		return pgx.ErrNoRows
	}
	corr.UpdatedAt = time.Now()
	r.entries[corr.ID] = *corr
	return nil
}

func (r *fakeCorrespondenceRepo) GetByID(_ context.Context, id string) (*domain.VendorCorrespondence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	corr, ok := r.entries[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := corr
	return &copied, nil
}

func (r *fakeCorrespondenceRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.VendorCorrespondence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.VendorCorrespondence
	for _, corr := range r.entries {
		if corr.TicketID != nil && *corr.TicketID == ticketID {
			result = append(result, corr)
		}
	}
	return result, nil
}

type fakePolicyRepo struct {
	policies map[string]domain.SlaPolicy
}

func newFakePolicyRepo(policies ...domain.SlaPolicy) *fakePolicyRepo {
	repo := &fakePolicyRepo{policies: make(map[string]domain.SlaPolicy)}
	for _, policy := range policies {
		repo.policies[policy.PartType+"/"+string(policy.Priority)] = policy
	}
	return repo
}

func (r *fakePolicyRepo) Lookup(_ context.Context, partType string, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	if policy, ok := r.policies[partType+"/"+string(priority)]; ok {
		return &policy, nil
	}
	if policy, ok := r.policies["*/"+string(priority)]; ok {
		return &policy, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *fakePolicyRepo) List(_ context.Context) ([]domain.SlaPolicy, error) {
	var result []domain.SlaPolicy
	for _, policy := range r.policies {
		result = append(result, policy)
	}
	return result, nil
}

type fakeAttachmentRepo struct {
	mu      sync.Mutex
	entries []domain.AttachmentReference
}

func (r *fakeAttachmentRepo) Create(_ context.Context, attachment *domain.AttachmentReference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	attachment.ID = uuid.NewString()
	attachment.CreatedAt = time.Now()
	r.entries = append(r.entries, *attachment)
	return nil
}

func (r *fakeAttachmentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.AttachmentReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.AttachmentReference
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type fakeRegistry struct {
	units map[string]domain.Unit
}

func newFakeRegistry(units ...domain.Unit) *fakeRegistry {
	reg := &fakeRegistry{units: make(map[string]domain.Unit)}
	for _, unit := range units {
		reg.units[unit.ID] = unit
	}
	return reg
}

func (r *fakeRegistry) GetUnit(_ context.Context, unitID string) (*domain.Unit, error) {
	unit, ok := r.units[unitID]
	if !ok {
		return nil, apperrors.NewNotFound("unit", map[string]any{"unit_id": unitID})
	}
	return &unit, nil
}

type fakeComponentRepo struct {
	mu         sync.Mutex
	components map[string][]domain.InstalledComponent
	failWrites bool
}

func newFakeComponentRepo() *fakeComponentRepo {
	return &fakeComponentRepo{components: make(map[string][]domain.InstalledComponent)}
}

func (r *fakeComponentRepo) seed(unitID string, comps ...domain.InstalledComponent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range comps {
		if comps[i].ID == "" {
			comps[i].ID = uuid.NewString()
		}
		comps[i].UnitID = unitID
	}
	r.components[unitID] = comps
}

func (r *fakeComponentRepo) ListByUnit(_ context.Context, unitID string) ([]domain.InstalledComponent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.InstalledComponent{}, r.components[unitID]...), nil
}

func (r *fakeComponentRepo) ForceReplace(_ context.Context, unitID string, preserveIDs []string, fresh []domain.InstalledComponent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return pgx.ErrTxClosed
	}
	preserved := make(map[string]bool, len(preserveIDs))
	for _, id := range preserveIDs {
		preserved[id] = true
	}
	var kept []domain.InstalledComponent
	for _, comp := range r.components[unitID] {
		if preserved[comp.ID] {
			kept = append(kept, comp)
		}
	}
	for i := range fresh {
		fresh[i].ID = uuid.NewString()
		fresh[i].CreatedAt = time.Now()
		fresh[i].UpdatedAt = fresh[i].CreatedAt
		kept = append(kept, fresh[i])
	}
	r.components[unitID] = kept
	return nil
}

func (r *fakeComponentRepo) ApplyMerge(_ context.Context, unitID string, plan repository.ComponentMergePlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites {
		return pgx.ErrTxClosed
	}
	byID := make(map[string]int)
	for i, comp := range r.components[unitID] {
		byID[comp.ID] = i
	}
	for _, update := range plan.Updates {
		idx, ok := byID[update.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		comp := r.components[unitID][idx]
		comp.Model = update.Model
		comp.Firmware = update.Firmware
		comp.Status = update.Status
		comp.Slot = update.Slot
		comp.NeedsReview = false
		comp.ReviewReason = ""
		r.components[unitID][idx] = comp
	}
	for _, insert := range plan.Inserts {
		insert.ID = uuid.NewString()
		r.components[unitID] = append(r.components[unitID], insert)
	}
	for _, review := range plan.Reviews {
		idx, ok := byID[review.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		comp := r.components[unitID][idx]
		comp.NeedsReview = true
		comp.ReviewReason = review.ReviewReason
		r.components[unitID][idx] = comp
	}
	return nil
}

type fakeReader struct {
	mu        sync.Mutex
	snapshots map[string]*domain.InventorySnapshot
	err       error
	reads     int
}

func newFakeReader() *fakeReader {
	return &fakeReader{snapshots: make(map[string]*domain.InventorySnapshot)}
}

func (r *fakeReader) ReadComponents(_ context.Context, address string) (*domain.InventorySnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.err != nil {
		return nil, r.err
	}
	snapshot, ok := r.snapshots[address]
	if !ok {
		return nil, apperrors.NewExternalReadFailure(address, pgx.ErrNoRows)
	}
	copied := *snapshot
	copied.TakenAt = time.Now()
	return &copied, nil
}
