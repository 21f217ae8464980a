package rhood

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testCreds() Credentials {
	return Credentials{
		DeviceID: "device-1",
		ClientID: "client-1",
		Username: "user",
		Password: "pass",
	}
}

func tokenBody(access string) string {
	return `{"access_token":"` + access + `","refresh_token":"refresh-1","expires_in":2592000,"scope":"internal"}`
}

// agedTokenBody builds a token document whose created_at lies age in the
// past, so freshness checks can be driven from the test.
func agedTokenBody(access string, age, lifetime time.Duration) string {
	return fmt.Sprintf(`{"access_token":%q,"refresh_token":"refresh-1","expires_in":%d,"scope":"internal","created_at":%d}`,
		access, int64(lifetime.Seconds()), time.Now().Add(-age).Unix())
}

func TestCredentialsValidateReportsAllMissing(t *testing.T) {
	err := Credentials{}.Validate()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if len(cfgErr.Missing) != 3 {
		t.Errorf("expected 3 missing items, got %v", cfgErr.Missing)
	}

	if err := testCreds().Validate(); err != nil {
		t.Errorf("complete credentials should validate, got %v", err)
	}
}

func TestAuthenticatorSingleFlight(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(tokenBody("access-1")))
	}))
	defer srv.Close()

	a, err := NewAuthenticator(AuthConfig{
		Credentials: testCreds(),
		TokenURL:    srv.URL + TokenPath,
		HTTP:        NewHTTPClient(),
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			access, err := a.Token(context.Background())
			if err == nil && access != "access-1" {
				err = errors.New("unexpected access token " + access)
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("concurrent callers should share one refresh, got %d calls", n)
	}
}

func TestAuthenticatorInvalidGrantFallsBackToPassword(t *testing.T) {
	var grants []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		grant, _ := body["grant_type"].(string)
		mu.Lock()
		grants = append(grants, grant)
		mu.Unlock()

		if grant == "refresh_token" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Write([]byte(tokenBody("access-2")))
	}))
	defer srv.Close()

	creds := testCreds()
	creds.Token = tokenBody("stale")
	a, err := NewAuthenticator(AuthConfig{
		Credentials: creds,
		TokenURL:    srv.URL + TokenPath,
		HTTP:        NewHTTPClient(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := a.ForceRefresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	access, err := a.Token(context.Background())
	if err != nil || access != "access-2" {
		t.Fatalf("got %q, %v", access, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(grants) != 2 || grants[0] != "refresh_token" || grants[1] != "password" {
		t.Errorf("grant sequence: %v", grants)
	}
}

func TestAuthenticatorPermanentFailure(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	a, err := NewAuthenticator(AuthConfig{
		Credentials: testCreds(),
		TokenURL:    srv.URL + TokenPath,
		HTTP:        NewHTTPClient(),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.Token(context.Background())
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}

	// Permanent failures short-circuit: no further network calls.
	if _, err := a.Token(context.Background()); !errors.As(err, &forbidden) {
		t.Fatalf("expected the same permanent error, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 token call, got %d", n)
	}
}

func TestProactiveRefreshPolicy(t *testing.T) {
	cases := []struct {
		name       string
		token      string
		wantCalls  int64
		wantAccess string
	}{
		{
			// Far from expiry and recently issued: served as-is.
			name:       "fresh token",
			token:      agedTokenBody("original", 0, 30*24*time.Hour),
			wantCalls:  0,
			wantAccess: "original",
		},
		{
			// Inside the 3-day margin before expiry.
			name:       "near expiry",
			token:      agedTokenBody("original", 0, 24*time.Hour),
			wantCalls:  1,
			wantAccess: "refreshed",
		},
		{
			// Long-lived but older than the refresh interval.
			name:       "over refresh interval",
			token:      agedTokenBody("original", 25*time.Hour, 90*24*time.Hour),
			wantCalls:  1,
			wantAccess: "refreshed",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var calls atomic.Int64
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Write([]byte(tokenBody("refreshed")))
			}))
			defer srv.Close()

			creds := testCreds()
			creds.Token = c.token
			a, err := NewAuthenticator(AuthConfig{
				Credentials: creds,
				TokenURL:    srv.URL + TokenPath,
				HTTP:        NewHTTPClient(),
			})
			if err != nil {
				t.Fatal(err)
			}

			access, err := a.Token(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if access != c.wantAccess {
				t.Errorf("access token: got %q, want %q", access, c.wantAccess)
			}
			if n := calls.Load(); n != c.wantCalls {
				t.Errorf("token calls: got %d, want %d", n, c.wantCalls)
			}
		})
	}
}

func TestAuthenticatorDefaultsHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(tokenBody("access-1")))
	}))
	defer srv.Close()

	a, err := NewAuthenticator(AuthConfig{
		Credentials: testCreds(),
		TokenURL:    srv.URL + TokenPath,
	})
	if err != nil {
		t.Fatal(err)
	}
	access, err := a.Token(context.Background())
	if err != nil || access != "access-1" {
		t.Fatalf("got %q, %v", access, err)
	}
}

func TestTokenDuringConcurrentForcedRefreshes(t *testing.T) {
	// Every forced refresh goes invalid_grant → clear token →
	// re-authenticate, so the shared token field is repeatedly nil for a
	// moment while readers are in flight.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if grant, _ := body["grant_type"].(string); grant == "refresh_token" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Write([]byte(tokenBody("access-ok")))
	}))
	defer srv.Close()

	creds := testCreds()
	creds.Token = tokenBody("seed")
	a, err := NewAuthenticator(AuthConfig{
		Credentials: creds,
		TokenURL:    srv.URL + TokenPath,
		HTTP:        NewHTTPClient(),
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var failures atomic.Int64
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				access, err := a.Token(context.Background())
				if err != nil || access == "" {
					failures.Add(1)
				}
			}
		}()
	}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := a.ForceRefresh(context.Background()); err != nil {
					failures.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if n := failures.Load(); n != 0 {
		t.Errorf("%d calls failed or returned an empty token", n)
	}
}
