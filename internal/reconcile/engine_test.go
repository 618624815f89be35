package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"donasi/internal/adapter/memstore"
	"donasi/internal/domain"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Transition
	err    error
}

func (n *recordingNotifier) NotifyTransition(_ context.Context, t domain.Transition) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, t)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

var testCreatedAt = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *memstore.Store, *recordingNotifier) {
	t.Helper()
	store := memstore.New()
	notifier := &recordingNotifier{}
	engine := NewEngine(store, notifier, zerolog.New(io.Discard), Options{Backoff: time.Millisecond})
	return engine, store, notifier
}

func seedDonation(t *testing.T, store *memstore.Store, id string, amount int64) *domain.Donation {
	t.Helper()
	d, err := store.Create(context.Background(), domain.NewDonation{
		ID:                     id,
		Amount:                 decimal.NewFromInt(amount),
		ExternalTransactionRef: "DON-" + id,
		CreatedAt:              testCreatedAt,
	}, domain.PeriodKey(testCreatedAt, time.UTC))
	if err != nil {
		t.Fatalf("seed donation %s: %v", id, err)
	}
	return d
}

func periodIncome(t *testing.T, store *memstore.Store, key string) decimal.Decimal {
	t.Helper()
	p, err := store.GetPeriod(context.Background(), key)
	if err != nil {
		t.Fatalf("GetPeriod(%s): %v", key, err)
	}
	return p.TotalIncome
}

func TestRequestTransition_AcceptReplayIsIdempotent(t *testing.T) {
	engine, store, notifier := newTestEngine(t)
	a := seedDonation(t, store, "A", 50000)
	ctx := context.Background()

	res, err := engine.Accept(ctx, a.ID, "cb-1", domain.SourceGateway)
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if !res.Applied || res.Previous != domain.StatusPending || res.Donation.Status != domain.StatusAccepted {
		t.Fatalf("unexpected first result: %+v", res)
	}
	if got := periodIncome(t, store, a.PeriodKey); !got.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("total_income = %s, want 50000", got)
	}

	res, err = engine.Accept(ctx, a.ID, "cb-1", domain.SourceGateway)
	if err != nil {
		t.Fatalf("replay accept: %v", err)
	}
	if res.Applied {
		t.Fatalf("replay must not apply: %+v", res)
	}
	if _, err := engine.Accept(ctx, a.ID, "cb-2", domain.SourceGateway); err != nil {
		t.Fatalf("accept with new event id: %v", err)
	}
	if got := periodIncome(t, store, a.PeriodKey); !got.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("total_income after replays = %s, want 50000", got)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected exactly one notification, got %d", notifier.count())
	}
	if n := len(store.Transitions()); n != 1 {
		t.Fatalf("expected one transition audit row, got %d", n)
	}
}

func TestRequestTransition_ConflictLeavesLedgerUntouched(t *testing.T) {
	engine, store, notifier := newTestEngine(t)
	d := seedDonation(t, store, "C", 30000)
	ctx := context.Background()

	if _, err := engine.Expire(ctx, d.ID, "sweep:C:1", domain.SourceSweeper); err != nil {
		t.Fatalf("expire: %v", err)
	}
	_, err := engine.Accept(ctx, d.ID, "cb-late", domain.SourceGateway)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) || conflict.Current != domain.StatusExpired || conflict.Requested != domain.StatusAccepted {
		t.Fatalf("unexpected conflict detail: %#v", conflict)
	}
	if got := periodIncome(t, store, d.PeriodKey); !got.IsZero() {
		t.Fatalf("total_income = %s, want 0", got)
	}
	current, _ := store.GetByID(ctx, d.ID)
	if current.Status != domain.StatusExpired {
		t.Fatalf("status = %s, want EXPIRED", current.Status)
	}
	conflicts := store.Conflicts()
	if len(conflicts) != 1 || conflicts[0].SourceEventID != "cb-late" {
		t.Fatalf("expected conflict audit for cb-late, got %#v", conflicts)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected only the expiry notification, got %d", notifier.count())
	}
}

func TestRequestTransition_Validation(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	d := seedDonation(t, store, "V", 1000)
	ctx := context.Background()

	tests := []struct {
		name string
		req  TransitionRequest
		want error
	}{
		{
			name: "unknown donation",
			req:  TransitionRequest{DonationID: "missing", Target: domain.StatusAccepted, SourceEventID: "e"},
			want: domain.ErrNotFound,
		},
		{
			name: "empty donation id",
			req:  TransitionRequest{Target: domain.StatusAccepted, SourceEventID: "e"},
			want: domain.ErrNotFound,
		},
		{
			name: "pending target",
			req:  TransitionRequest{DonationID: d.ID, Target: domain.StatusPending, SourceEventID: "e"},
			want: domain.ErrInvalidTarget,
		},
		{
			name: "unknown target",
			req:  TransitionRequest{DonationID: d.ID, Target: "REFUNDED", SourceEventID: "e"},
			want: domain.ErrInvalidTarget,
		},
		{
			name: "missing event id",
			req:  TransitionRequest{DonationID: d.ID, Target: domain.StatusAccepted},
			want: domain.ErrInvalidRequest,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.RequestTransition(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("RequestTransition() error = %v, want %v", err, tc.want)
			}
		})
	}
	current, _ := store.GetByID(ctx, d.ID)
	if current.Status != domain.StatusPending {
		t.Fatalf("validation failures must not mutate, status = %s", current.Status)
	}
}

func TestRequestTransition_SweepRacesCallback(t *testing.T) {
	for i := 0; i < 50; i++ {
		engine, store, notifier := newTestEngine(t)
		b := seedDonation(t, store, "B", 20000)
		ctx := context.Background()

		var wg sync.WaitGroup
		start := make(chan struct{})
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, errs[0] = engine.Expire(ctx, b.ID, fmt.Sprintf("sweep:B:%d", i), domain.SourceSweeper)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, errs[1] = engine.Accept(ctx, b.ID, "cb-B", domain.SourceGateway)
		}()
		close(start)
		wg.Wait()

		var ok, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if ok != 1 || conflicts != 1 {
			t.Fatalf("expected one winner and one conflict, got ok=%d conflicts=%d", ok, conflicts)
		}

		final, _ := store.GetByID(ctx, b.ID)
		income := periodIncome(t, store, b.PeriodKey)
		switch final.Status {
		case domain.StatusAccepted:
			if !income.Equal(decimal.NewFromInt(20000)) {
				t.Fatalf("accepted won but income = %s", income)
			}
		case domain.StatusExpired:
			if !income.IsZero() {
				t.Fatalf("expired won but income = %s", income)
			}
		default:
			t.Fatalf("donation left in %s", final.Status)
		}
		if notifier.count() != 1 {
			t.Fatalf("expected one notification, got %d", notifier.count())
		}
	}
}

func TestRequestTransition_LedgerInvariantUnderConcurrentTraffic(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	const n = 40
	for i := 0; i < n; i++ {
		seedDonation(t, store, fmt.Sprintf("D%02d", i), int64(1000*(i+1)))
	}

	rng := rand.New(rand.NewSource(7))
	type call struct {
		id     string
		target domain.DonationStatus
		event  string
	}
	var calls []call
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("D%02d", i)
		for j := 0; j < 4; j++ {
			target := domain.StatusAccepted
			if rng.Intn(2) == 0 {
				target = domain.StatusExpired
			}
			calls = append(calls, call{id: id, target: target, event: fmt.Sprintf("%s-%d", id, j)})
		}
	}
	rng.Shuffle(len(calls), func(i, j int) { calls[i], calls[j] = calls[j], calls[i] })

	var wg sync.WaitGroup
	var unexpected atomic.Int32
	for _, c := range calls {
		wg.Add(1)
		go func(c call) {
			defer wg.Done()
			_, err := engine.RequestTransition(ctx, TransitionRequest{
				DonationID:    c.id,
				Target:        c.target,
				SourceEventID: c.event,
				Source:        domain.SourceGateway,
			})
			if err != nil && !errors.Is(err, domain.ErrConflict) {
				unexpected.Add(1)
			}
		}(c)
	}
	wg.Wait()
	if unexpected.Load() != 0 {
		t.Fatalf("%d calls failed with unexpected errors", unexpected.Load())
	}

	key := domain.PeriodKey(testCreatedAt, time.UTC)
	drift, err := store.Verify(ctx, key)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !drift.Consistent() {
		t.Fatalf("ledger drift: %s", drift)
	}
	if n := len(store.Transitions()); n != 40 {
		t.Fatalf("expected one transition per donation, got %d", n)
	}
}

func TestRequestTransition_RetriesTransientFailures(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	d := seedDonation(t, store, "R", 5000)
	var calls atomic.Int32
	store.CommitHook = func(string) error {
		if calls.Add(1) < 3 {
			return fmt.Errorf("commit: %w", domain.ErrTransientStorage)
		}
		return nil
	}

	res, err := engine.Accept(context.Background(), d.ID, "cb-R", domain.SourceGateway)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !res.Applied {
		t.Fatalf("expected applied result")
	}
	if got := periodIncome(t, store, d.PeriodKey); !got.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("total_income = %s, want 5000", got)
	}
}

func TestRequestTransition_GivesUpAfterMaxAttempts(t *testing.T) {
	engine, store, notifier := newTestEngine(t)
	d := seedDonation(t, store, "F", 5000)
	store.CommitHook = func(string) error { return domain.ErrTransientStorage }

	_, err := engine.Accept(context.Background(), d.ID, "cb-F", domain.SourceGateway)
	if !errors.Is(err, domain.ErrTransientStorage) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if got := periodIncome(t, store, d.PeriodKey); !got.IsZero() {
		t.Fatalf("failed commit leaked income %s", got)
	}
	if notifier.count() != 0 {
		t.Fatalf("failed commit must not notify")
	}

	// The gateway retries with the same event once storage recovers.
	store.CommitHook = nil
	if _, err := engine.Accept(context.Background(), d.ID, "cb-F", domain.SourceGateway); err != nil {
		t.Fatalf("retry accept: %v", err)
	}
	if got := periodIncome(t, store, d.PeriodKey); !got.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("total_income = %s, want 5000", got)
	}
}

func TestRequestTransition_NotifierFailureKeepsTransition(t *testing.T) {
	engine, store, notifier := newTestEngine(t)
	notifier.err = errors.New("smtp down")
	d := seedDonation(t, store, "N", 7000)

	res, err := engine.Accept(context.Background(), d.ID, "cb-N", domain.SourceGateway)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !res.Applied {
		t.Fatal("expected applied")
	}
	current, _ := store.GetByID(context.Background(), d.ID)
	if current.Status != domain.StatusAccepted {
		t.Fatalf("status = %s, want ACCEPTED", current.Status)
	}
}

func TestRequestTransition_LedgerStampMatchesTransition(t *testing.T) {
	store := memstore.New()
	acceptedAt := time.Date(2024, 3, 11, 4, 15, 0, 0, time.UTC)
	engine := NewEngine(store, nil, zerolog.New(io.Discard), Options{
		Backoff: time.Millisecond,
		Now:     func() time.Time { return acceptedAt },
	})
	d := seedDonation(t, store, "stamp", 15000)

	res, err := engine.Accept(context.Background(), d.ID, "cb-stamp", domain.SourceGateway)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Period == nil || !res.Period.UpdatedAt.Equal(acceptedAt) {
		t.Fatalf("result period = %+v, want updated_at %v", res.Period, acceptedAt)
	}
	p, err := store.GetPeriod(context.Background(), d.PeriodKey)
	if err != nil {
		t.Fatalf("GetPeriod: %v", err)
	}
	trs := store.Transitions()
	if len(trs) != 1 || !trs[0].At.Equal(p.UpdatedAt) {
		t.Fatalf("period updated_at %v does not match transition %+v", p.UpdatedAt, trs)
	}
}
