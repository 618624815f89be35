package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "test-secret"

func TestOptionalAuth(t *testing.T) {
	valid, err := SignJWT(testSecret, "donor-7", "en", time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	expired, err := SignJWT(testSecret, "donor-7", "", -time.Minute)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	foreign, err := SignJWT("other-secret", "donor-7", "", time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
		wantLocale string
	}{
		{name: "anonymous", wantStatus: http.StatusOK},
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK, wantUser: "donor-7", wantLocale: "en"},
		{name: "expired token", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + foreign, wantStatus: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", wantStatus: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var user, locale string
			h := OptionalAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				user = UserIDFromContext(r.Context())
				if v, ok := r.Context().Value(LocaleKey).(string); ok {
					locale = v
				}
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			if user != tc.wantUser || locale != tc.wantLocale {
				t.Fatalf("user=%q locale=%q, want %q/%q", user, locale, tc.wantUser, tc.wantLocale)
			}
		})
	}
}

func TestSignJWTRequiresSecret(t *testing.T) {
	if _, err := SignJWT("", "donor", "", time.Hour); err == nil {
		t.Fatal("expected error without secret")
	}
}
