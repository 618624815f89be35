package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"donasi/internal/adapter/memstore"
	"donasi/internal/domain"
	"donasi/internal/reconcile"
)

func TestVerifyPeriodsReportsConsistentLedger(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	created := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b"} {
		if _, err := store.Create(ctx, domain.NewDonation{
			ID:                     id,
			Amount:                 decimal.NewFromInt(50000),
			ExternalTransactionRef: "DON-" + id,
			CreatedAt:              created,
		}, "2024-03"); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	engine := reconcile.NewEngine(store, nil, zerolog.New(io.Discard), reconcile.Options{})
	if _, err := engine.Accept(ctx, "a", "gateway:tx-a:settlement", domain.SourceGateway); err != nil {
		t.Fatalf("accept: %v", err)
	}

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	if err := verifyPeriods(ctx, cmd, store, []string{"2024-03"}); err != nil {
		t.Fatalf("verifyPeriods: %v", err)
	}
	if !strings.HasPrefix(out.String(), "ok") || !strings.Contains(out.String(), "accepted=50000") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestVerifyPeriodsUnknownPeriod(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetOut(io.Discard)
	if err := verifyPeriods(context.Background(), cmd, memstore.New(), []string{"2020-01"}); err == nil {
		t.Fatal("expected error for unknown period")
	}
}
