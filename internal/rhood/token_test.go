package rhood

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseTokenRequiredKeys(t *testing.T) {
	cases := []string{
		`{"expires_in":86400,"scope":"internal"}`,
		`{"access_token":"a","scope":"internal"}`,
		`{"access_token":"a","expires_in":86400}`,
	}
	for _, raw := range cases {
		if _, err := ParseToken([]byte(raw), time.Now()); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}
}

func TestTokenExpiration(t *testing.T) {
	issued := time.Now().Add(-time.Hour)
	tok, err := ParseToken([]byte(`{"access_token":"a","refresh_token":"r","expires_in":86400,"scope":"internal"}`), issued)
	if err != nil {
		t.Fatal(err)
	}
	want := issued.Add(24 * time.Hour)
	if !tok.Expiration().Equal(want) {
		t.Errorf("expiration: got %v, want %v", tok.Expiration(), want)
	}
	if tok.UntilExpiry() > 23*time.Hour || tok.UntilExpiry() < 22*time.Hour {
		t.Errorf("until expiry: got %v", tok.UntilExpiry())
	}
}

func TestTokenUnknownIssueTimeIsExpired(t *testing.T) {
	tok, err := ParseToken([]byte(`{"access_token":"a","expires_in":86400,"scope":"internal"}`), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if tok.UntilExpiry() > time.Second {
		t.Errorf("token with unknown issue time should read as expired, got %v", tok.UntilExpiry())
	}
}

func TestTokenFileRoundTrip(t *testing.T) {
	issued := time.Now().Truncate(time.Second)
	tok, err := ParseToken([]byte(`{"access_token":"a","refresh_token":"r","expires_in":86400,"scope":"internal"}`), issued)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "token.json")
	if err := tok.WriteFile(path); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("token file mode: got %v", info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// created_at is stamped in, so a later load computes the same expiry.
	reloaded, err := ParseToken(data, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.Expiration().Equal(tok.Expiration()) {
		t.Errorf("expiration after reload: got %v, want %v", reloaded.Expiration(), tok.Expiration())
	}
	if reloaded.RefreshToken != "r" {
		t.Errorf("refresh token: got %q", reloaded.RefreshToken)
	}
}
