package api

import (
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testAuth(t *testing.T) *AuthService {
	t.Helper()
	s, err := NewAuthService(testSecret, "admin", "hunter2", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewAuthServiceValidation(t *testing.T) {
	if _, err := NewAuthService("short", "admin", "pw", time.Hour); err == nil {
		t.Error("short jwt secret accepted")
	}
	if _, err := NewAuthService(testSecret, "admin", "", time.Hour); err == nil {
		t.Error("empty admin password accepted")
	}
}

func TestLoginAndValidate(t *testing.T) {
	s := testAuth(t)

	resp, err := s.Login("admin", "hunter2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token")
	}

	claims, err := s.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("username = %q, want admin", claims.Username)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := testAuth(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "admin", "nope"},
		{"wrong username", "root", "hunter2"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Login(tt.username, tt.password); err == nil {
				t.Error("expected login failure")
			}
		})
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	s := testAuth(t)
	if _, err := s.ValidateToken("not.a.token"); err == nil {
		t.Error("garbage token accepted")
	}
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	s := testAuth(t)
	other, err := NewAuthService("ffffffffffffffffffffffffffffffff", "admin", "hunter2", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := other.Login("admin", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ValidateToken(resp.Token); err == nil {
		t.Error("token signed with a different secret accepted")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	s, err := NewAuthService(testSecret, "admin", "hunter2", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := s.Login("admin", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ValidateToken(resp.Token); err == nil {
		t.Error("expired token accepted")
	}
}
