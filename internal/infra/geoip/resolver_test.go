package geoip

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenWithoutPathDisablesLookups(t *testing.T) {
	r, err := Open("  ")
	if err != nil || r != nil {
		t.Fatalf("Open(\"\") = %v, %v; want nil, nil", r, err)
	}
	if _, err := r.CountryCode("36.68.0.1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close on nil resolver: %v", err)
	}
}

func TestOpenMissingDatabase(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "GeoLite2-Country.mmdb")); err == nil {
		t.Fatal("expected error for missing database")
	}
}
