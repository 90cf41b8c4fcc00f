package fieldcrypt

import (
	"strings"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestRoundTrip(t *testing.T) {
	c, err := New(testKey)
	if err != nil {
		t.Fatal(err)
	}
	ct, err := c.Encrypt("jane.doe@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if ct == "jane.doe@example.com" {
		t.Fatal("ciphertext equals plaintext")
	}
	pt, err := c.Decrypt(ct)
	if err != nil {
		t.Fatal(err)
	}
	if pt != "jane.doe@example.com" {
		t.Errorf("got %q after round trip", pt)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	c, _ := New(testKey)
	a, _ := c.Encrypt("same value")
	b, _ := c.Encrypt("same value")
	if a == b {
		t.Error("two encryptions of the same value must differ")
	}
}

func TestDecryptMalformed(t *testing.T) {
	c, _ := New(testKey)
	for _, bad := range []string{"", "not-base64!!", "aGVsbG8=", strings.Repeat("A", 40)} {
		if _, err := c.Decrypt(bad); err == nil {
			t.Errorf("Decrypt(%q) expected error", bad)
		}
	}
}

func TestKeyLength(t *testing.T) {
	if _, err := New("short"); err == nil {
		t.Error("expected error for short key")
	}
}

func TestSearchTokensDeterministic(t *testing.T) {
	c, _ := New(testKey)
	a := c.SearchTokens([]string{"Jane Doe", "  jane doe  ", ""})
	if len(a) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(a))
	}
	if a[0] != a[1] {
		t.Error("case/whitespace variants must produce the same token")
	}
	b := c.SearchTokens([]string{"john smith"})
	if b[0] == a[0] {
		t.Error("different values must produce different tokens")
	}
}
