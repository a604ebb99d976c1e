package authtoken

import (
	"strings"
	"testing"
)

func TestIssueAndVerify(t *testing.T) {
	s := NewSigner("test-secret")

	token, err := s.Issue("user-123")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	userID, err := s.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != "user-123" {
		t.Errorf("user id = %q, want %q", userID, "user-123")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := NewSigner("secret-a").Issue("user-123")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := NewSigner("secret-b").Verify(token); err == nil {
		t.Error("expected verification failure with wrong secret")
	}
}

func TestVerifyTamperedToken(t *testing.T) {
	s := NewSigner("test-secret")
	token, err := s.Issue("user-123")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + ".eyJzdWIiOiJ1c2VyLTk5OSJ9." + parts[2]
	if _, err := s.Verify(tampered); err == nil {
		t.Error("expected verification failure for tampered token")
	}
}

func TestVerifyGarbage(t *testing.T) {
	s := NewSigner("test-secret")
	if _, err := s.Verify("not-a-token"); err == nil {
		t.Error("expected verification failure for garbage input")
	}
}
