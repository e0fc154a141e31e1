package auth

import (
	"testing"
	"time"
)

func TestNormalizeUserToken(t *testing.T) {
	cases := map[string]string{
		"abc_DEF-123":  "abc_DEF-123",
		"  abc  ":      "abc",
		"abc%2D123":    "abc-123",
		"bad%zzescape": "bad%zzescape",
		"":             "",
	}
	for in, want := range cases {
		if got := normalizeUserToken(in); got != want {
			t.Fatalf("normalizeUserToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaxAge(t *testing.T) {
	if got := maxAge("public, max-age=19845, must-revalidate"); got != 19845*time.Second {
		t.Fatalf("unexpected max age: %v", got)
	}
	if got := maxAge("no-cache"); got != defaultCertsMaxAge {
		t.Fatalf("expected default max age, got %v", got)
	}
}

func TestRSAKeyFromJWK(t *testing.T) {
	if _, err := rsaKeyFromJWK("AQAB", "AQ"); err == nil {
		t.Fatalf("expected exponent 1 to be rejected")
	}
	if _, err := rsaKeyFromJWK("!!", "AQAB"); err == nil {
		t.Fatalf("expected invalid modulus to be rejected")
	}
	key, err := rsaKeyFromJWK("AQAB", "AQAB")
	if err != nil {
		t.Fatalf("rsaKeyFromJWK: %v", err)
	}
	if key.E != 65537 {
		t.Fatalf("unexpected exponent %d", key.E)
	}
}

func TestFlexBool(t *testing.T) {
	for in, want := range map[string]bool{`true`: true, `"true"`: true, `false`: false, `"false"`: false} {
		var b flexBool
		if err := b.UnmarshalJSON([]byte(in)); err != nil {
			t.Fatalf("UnmarshalJSON(%s): %v", in, err)
		}
		if bool(b) != want {
			t.Fatalf("UnmarshalJSON(%s) = %v", in, b)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	for _, pw := range []string{"", "Ab1", "abcdef1", "ABCDEF1", "Abcdefg"} {
		if ValidatePassword(pw) == nil {
			t.Fatalf("expected %q to be rejected", pw)
		}
	}
	if err := ValidatePassword("Abcdef1"); err != nil {
		t.Fatalf("ValidatePassword: %v", err)
	}
}
