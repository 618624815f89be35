// Package memstore keeps donations and ledger periods in process memory. It
// honours the same locking contract as the PostgreSQL stores and backs the
// engine tests and STORE_DRIVER=memory local runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"donasi/internal/domain"
)

// Store implements the donation, ledger and transition stores in memory.
type Store struct {
	mu          sync.Mutex
	donations   map[string]domain.Donation
	byRef       map[string]string
	periods     map[string]domain.LedgerPeriod
	rowLocks    map[string]*sync.Mutex
	periodLocks map[string]*sync.Mutex
	transitions []domain.Transition
	conflicts   []domain.ConflictRecord

	// CommitHook, when set, runs right before a unit of work commits. A
	// non-nil error aborts the commit as a storage failure would.
	CommitHook func(donationID string) error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		donations:   make(map[string]domain.Donation),
		byRef:       make(map[string]string),
		periods:     make(map[string]domain.LedgerPeriod),
		rowLocks:    make(map[string]*sync.Mutex),
		periodLocks: make(map[string]*sync.Mutex),
	}
}

// Create inserts a pending donation and makes sure its period exists.
func (s *Store) Create(_ context.Context, in domain.NewDonation, periodKey string) (*domain.Donation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.donations[in.ID]; ok {
		return nil, fmt.Errorf("%w: donation %s exists", domain.ErrInvalidRequest, in.ID)
	}
	if _, ok := s.byRef[in.ExternalTransactionRef]; ok {
		return nil, fmt.Errorf("%w: external ref %s exists", domain.ErrInvalidRequest, in.ExternalTransactionRef)
	}
	d := domain.Donation{
		ID:                     in.ID,
		DonorReference:         in.DonorReference,
		Amount:                 in.Amount,
		Note:                   in.Note,
		PeriodKey:              periodKey,
		Status:                 domain.StatusPending,
		ExternalTransactionRef: in.ExternalTransactionRef,
		CreatedAt:              in.CreatedAt,
		UpdatedAt:              in.CreatedAt,
	}
	s.donations[d.ID] = d
	s.byRef[d.ExternalTransactionRef] = d.ID
	if _, ok := s.periods[periodKey]; !ok {
		s.periods[periodKey] = domain.LedgerPeriod{PeriodKey: periodKey, UpdatedAt: in.CreatedAt}
	}
	out := d
	return &out, nil
}

// GetByID returns a copy of the donation.
func (s *Store) GetByID(_ context.Context, id string) (*domain.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

// GetByExternalRef resolves a gateway reference to its donation.
func (s *Store) GetByExternalRef(ctx context.Context, ref string) (*domain.Donation, error) {
	s.mu.Lock()
	id, ok := s.byRef[ref]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// ListStalePending returns pending donations created before the cutoff,
// oldest first.
func (s *Store) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]domain.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []domain.Donation
	for _, d := range s.donations {
		if d.Status == domain.StatusPending && d.CreatedAt.Before(createdBefore) {
			items = append(items, d)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// GetPeriod returns committed totals for the period.
func (s *Store) GetPeriod(_ context.Context, periodKey string) (*domain.LedgerPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.periods[periodKey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

// ListPeriods returns the latest periods first.
func (s *Store) ListPeriods(_ context.Context, limit int) ([]domain.LedgerPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]domain.LedgerPeriod, 0, len(s.periods))
	for _, p := range s.periods {
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].PeriodKey > items[j].PeriodKey })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Verify recomputes the accepted income of a period.
func (s *Store) Verify(_ context.Context, periodKey string) (*domain.LedgerDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.periods[periodKey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	accepted := decimal.Zero
	for _, d := range s.donations {
		if d.PeriodKey == periodKey && d.Status == domain.StatusAccepted {
			accepted = accepted.Add(d.Amount)
		}
	}
	return &domain.LedgerDrift{
		PeriodKey:      periodKey,
		StoredIncome:   p.TotalIncome,
		AcceptedIncome: accepted,
		StoredBalance:  p.Balance,
		TotalExpense:   p.TotalExpense,
	}, nil
}

// RecordConflict appends to the conflict audit trail.
func (s *Store) RecordConflict(_ context.Context, rec domain.ConflictRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = append(s.conflicts, rec)
	return nil
}

// Transitions returns a copy of the committed transition audit trail.
func (s *Store) Transitions() []domain.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Transition(nil), s.transitions...)
}

// Conflicts returns a copy of the conflict audit trail.
func (s *Store) Conflicts() []domain.ConflictRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ConflictRecord(nil), s.conflicts...)
}

// WithDonationLock serializes units of work per donation. Writes are staged
// on the tx and published together when fn succeeds.
func (s *Store) WithDonationLock(ctx context.Context, donationID string, fn func(tx domain.DonationTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rowLock := s.lockFor(s.rowLocks, donationID)
	rowLock.Lock()
	defer rowLock.Unlock()

	s.mu.Lock()
	current, ok := s.donations[donationID]
	s.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}

	tx := &memTx{store: s, current: current}
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	if s.CommitHook != nil {
		if err := s.CommitHook(donationID); err != nil {
			return err
		}
	}
	tx.commit()
	return nil
}

func (s *Store) lockFor(locks map[string]*sync.Mutex, key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := locks[key]
	if !ok {
		l = &sync.Mutex{}
		locks[key] = l
	}
	return l
}

type memTx struct {
	store       *Store
	current     domain.Donation
	dirty       bool
	period      *domain.LedgerPeriod
	periodLock  *sync.Mutex
	transitions []domain.Transition
}

func (t *memTx) Donation() domain.Donation { return t.current }

func (t *memTx) SetStatus(_ context.Context, status domain.DonationStatus, at time.Time) error {
	t.current.Status = status
	ts := at
	t.current.LastTransitionAt = &ts
	t.current.UpdatedAt = at
	t.dirty = true
	return nil
}

func (t *memTx) AddIncome(_ context.Context, periodKey string, amount decimal.Decimal, at time.Time) (*domain.LedgerPeriod, error) {
	if t.period != nil && t.period.PeriodKey != periodKey {
		return nil, fmt.Errorf("unit of work already bound to period %s", t.period.PeriodKey)
	}
	if t.period == nil {
		// Lock order is always donation then period.
		t.periodLock = t.store.lockFor(t.store.periodLocks, periodKey)
		t.periodLock.Lock()
		t.store.mu.Lock()
		p, ok := t.store.periods[periodKey]
		t.store.mu.Unlock()
		if !ok {
			p = domain.LedgerPeriod{PeriodKey: periodKey}
		}
		t.period = &p
	}
	t.period.AddIncome(amount)
	t.period.UpdatedAt = at
	out := *t.period
	return &out, nil
}

func (t *memTx) RecordTransition(_ context.Context, tr domain.Transition) error {
	t.transitions = append(t.transitions, tr)
	return nil
}

func (t *memTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.dirty {
		t.store.donations[t.current.ID] = t.current
	}
	if t.period != nil {
		t.store.periods[t.period.PeriodKey] = *t.period
	}
	t.store.transitions = append(t.store.transitions, t.transitions...)
}

func (t *memTx) release() {
	if t.periodLock != nil {
		t.periodLock.Unlock()
		t.periodLock = nil
	}
}

var (
	_ domain.DonationRepository = (*Store)(nil)
	_ domain.LedgerRepository   = (*Store)(nil)
	_ domain.TransitionStore    = (*Store)(nil)
)
