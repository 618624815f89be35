package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetectLocale(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *http.Request)
		fallback string
		country  string
		want     string
	}{
		{
			name: "x-locale overrides",
			setup: func(r *http.Request) {
				r.Header.Set("X-Locale", "EN")
				r.Header.Set("Accept-Language", "id-ID")
			},
			want: "en",
		},
		{
			name: "accept-language used",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "en-US,en;q=0.9")
			},
			want: "en",
		},
		{
			name: "accept-language id preference",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "id-ID,en;q=0.8")
			},
			want: "id",
		},
		{
			name: "wildcard skipped",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "*, en;q=0.5")
			},
			want: "en",
		},
		{
			name:     "country ID beats english fallback",
			fallback: "en",
			country:  "ID",
			want:     "id",
		},
		{
			name:    "foreign country",
			country: "SG",
			want:    "en",
		},
		{
			name: "headers beat country",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "id")
			},
			country: "US",
			want:    "id",
		},
		{
			name:     "configured fallback",
			fallback: "en",
			want:     "en",
		},
		{
			name: "default to id",
			want: "id",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.setup != nil {
				tc.setup(req)
			}
			got := detectLocale(req, tc.fallback, tc.country)
			if got != tc.want {
				t.Fatalf("detectLocale() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestI18NKeepsLocaleFromToken(t *testing.T) {
	var got string
	h := I18N("id", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = LocaleFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "id-ID")
	req = req.WithContext(context.WithValue(req.Context(), LocaleKey, "en"))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "en" {
		t.Fatalf("locale = %q, want en", got)
	}
}

func TestI18NUsesCountryLookup(t *testing.T) {
	lookups := map[string]string{"36.68.0.1": "id", "8.8.8.8": "US"}
	var asked []string
	lookup := func(ip string) (string, error) {
		asked = append(asked, ip)
		if c, ok := lookups[ip]; ok {
			return c, nil
		}
		return "", errors.New("address not found")
	}

	tests := []struct {
		name        string
		remoteAddr  string
		header      map[string]string
		wantLocale  string
		wantCountry string
		wantLookup  bool
	}{
		{name: "indonesian ip", remoteAddr: "36.68.0.1:5123", wantLocale: "id", wantCountry: "ID", wantLookup: true},
		{name: "foreign ip", remoteAddr: "8.8.8.8:443", wantLocale: "en", wantCountry: "US", wantLookup: true},
		{name: "lookup miss uses fallback", remoteAddr: "10.0.0.1:80", wantLocale: "en", wantLookup: true},
		{name: "edge header skips lookup", remoteAddr: "8.8.8.8:443", header: map[string]string{"CF-IPCountry": "id"}, wantLocale: "id", wantCountry: "ID"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			asked = nil
			var locale, country string
			h := I18N("en", lookup)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				locale = LocaleFromContext(r.Context())
				country = CountryFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if locale != tc.wantLocale || country != tc.wantCountry {
				t.Fatalf("locale=%q country=%q, want %q %q", locale, country, tc.wantLocale, tc.wantCountry)
			}
			if got := len(asked) > 0; got != tc.wantLookup {
				t.Fatalf("lookup called = %v, want %v", got, tc.wantLookup)
			}
		})
	}
}
