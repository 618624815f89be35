package notify

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"donasi/internal/domain"
)

type captureNotifier struct {
	mu      sync.Mutex
	got     []domain.Transition
	release chan struct{}
	err     error
}

func (c *captureNotifier) NotifyTransition(_ context.Context, t domain.Transition) error {
	if c.release != nil {
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, t)
	return c.err
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func transition(id string, to domain.DonationStatus, amount int64) domain.Transition {
	return domain.Transition{
		DonationID: id,
		To:         to,
		From:       domain.StatusPending,
		Amount:     decimal.NewFromInt(amount),
		PeriodKey:  "2024-03",
		At:         time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestAsyncDeliversAndDrainsOnClose(t *testing.T) {
	sink := &captureNotifier{}
	async := NewAsync(sink, 8, zerolog.New(io.Discard))
	for i := 0; i < 5; i++ {
		if err := async.NotifyTransition(context.Background(), transition("d", domain.StatusAccepted, 1000)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := async.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sink.count() != 5 {
		t.Fatalf("delivered %d, want 5", sink.count())
	}
	if err := async.NotifyTransition(context.Background(), transition("d", domain.StatusAccepted, 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestAsyncNeverBlocksWhenQueueIsFull(t *testing.T) {
	sink := &captureNotifier{release: make(chan struct{})}
	async := NewAsync(sink, 1, zerolog.New(io.Discard))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = async.NotifyTransition(context.Background(), transition("d", domain.StatusExpired, 1000))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyTransition blocked on a full queue")
	}
	close(sink.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := async.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if n := sink.count(); n < 1 || n > 2 {
		t.Fatalf("expected one in flight and at most one queued, delivered %d", n)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &captureNotifier{}
	bad := &captureNotifier{err: errors.New("sms gateway down")}
	err := Multi{ok, bad}.NotifyTransition(context.Background(), transition("d", domain.StatusAccepted, 1))
	if err == nil || !strings.Contains(err.Error(), "sms gateway down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if ok.count() != 1 || bad.count() != 1 {
		t.Fatal("every notifier must be called")
	}
}

func TestFormatterMessages(t *testing.T) {
	tests := []struct {
		locale string
		status domain.DonationStatus
		amount decimal.Decimal
		want   string
	}{
		{locale: "id", status: domain.StatusAccepted, amount: decimal.NewFromInt(50000), want: "Terima kasih, donasi sebesar Rp50.000 telah diterima."},
		{locale: "en", status: domain.StatusExpired, amount: decimal.NewFromInt(20000), want: "Your donation of Rp20,000 was not completed and has expired."},
		{locale: "en", status: domain.StatusPending, amount: decimal.NewFromInt(50000), want: "Waiting for payment of your Rp50,000 donation."},
		{locale: "fr", status: domain.StatusPending, amount: decimal.NewFromInt(1500), want: "Menunggu pembayaran donasi sebesar Rp1.500."},
	}
	for _, tc := range tests {
		if got := NewFormatter(tc.locale).Message(tc.status, tc.amount); got != tc.want {
			t.Fatalf("%s/%s: got %q, want %q", tc.locale, tc.status, got, tc.want)
		}
	}
}

func TestLogNotifierWritesMessage(t *testing.T) {
	var buf strings.Builder
	n := NewLogNotifier(zerolog.New(&buf), "id")
	if err := n.NotifyTransition(context.Background(), transition("d", domain.StatusAccepted, 50000)); err != nil {
		t.Fatalf("NotifyTransition error: %v", err)
	}
	if !strings.Contains(buf.String(), "Terima kasih, donasi sebesar Rp50.000 telah diterima.") {
		t.Fatalf("log line missing message: %s", buf.String())
	}
}
