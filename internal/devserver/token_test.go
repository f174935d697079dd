package devserver

import (
	"errors"
	"testing"
	"time"
)

func TestTokens_RoundTrip(t *testing.T) {
	tk := NewTokens("secret", time.Minute)
	s, err := tk.Issue("S1", 7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := tk.Verify(s)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.SessionID != "S1" || c.Handle != 7 {
		t.Fatalf("claims=%+v", c)
	}
}

func TestTokens_Rejects(t *testing.T) {
	tk := NewTokens("secret", time.Minute)
	s, _ := tk.Issue("S1", 7)

	if _, err := NewTokens("other", time.Minute).Verify(s); !errors.Is(err, ErrBadToken) {
		t.Fatalf("wrong key: %v", err)
	}
	if _, err := tk.Verify("not-a-token"); !errors.Is(err, ErrBadToken) {
		t.Fatalf("garbage: %v", err)
	}

	tk.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := tk.Verify(s); !errors.Is(err, ErrBadToken) {
		t.Fatalf("expired: %v", err)
	}
}
