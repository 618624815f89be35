package infra

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
)

func TestExtractMarker(t *testing.T) {
	query := `--sql 2c4f1f0e-6a43-4d0e-9b59-3f8e1c7d2a10
select 1;
`
	marker, body, err := extractMarker(query)
	if err != nil {
		t.Fatalf("extractMarker error: %v", err)
	}
	if marker != "2c4f1f0e-6a43-4d0e-9b59-3f8e1c7d2a10" {
		t.Fatalf("marker mismatch: %q", marker)
	}
	if body != "select 1;" {
		t.Fatalf("body mismatch: %q", body)
	}
}

func TestExtractMarkerRejectsUntaggedSQL(t *testing.T) {
	for _, q := range []string{"select 1;", "--sql not-a-uuid\nselect 1;", ""} {
		if _, _, err := extractMarker(q); err == nil {
			t.Fatalf("expected error for %q", q)
		}
	}
}

func TestSQLRunnerRejectsUntaggedQueryBeforeTouchingPool(t *testing.T) {
	runner := NewSQLRunner(nil, zerolog.New(io.Discard))
	if _, err := runner.Exec(context.Background(), "update donations set status = 'ACCEPTED'"); err == nil {
		t.Fatal("expected marker error")
	}
	row := runner.QueryRow(context.Background(), "select 1")
	var v int
	if err := row.Scan(&v); err == nil {
		t.Fatal("expected marker error from row")
	}
}

func TestSQLRunnerInTxRequiresPool(t *testing.T) {
	runner := NewSQLRunner(nil, zerolog.New(io.Discard))
	err := runner.InTx(context.Background(), func(SQLExecutor) error { return nil })
	if err == nil {
		t.Fatal("expected error without pool")
	}
}
