package utils

import (
	"testing"
	"time"
)

func TestPasswordHashing(t *testing.T) {
	password := "secret123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	if hash == password {
		t.Error("Hash should not match plaintext password")
	}
	if !CheckPasswordHash(password, hash) {
		t.Error("Password should match hash")
	}
	if CheckPasswordHash("wrongpassword", hash) {
		t.Error("Wrong password should not match hash")
	}
}

func TestAdminToken(t *testing.T) {
	secret := "test-secret-key-12345"

	token, err := GenerateAdminToken(secret, "ops", time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := ValidateToken(token, secret)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if !IsAdmin(claims) {
		t.Errorf("expected admin role, got %v", claims["role"])
	}
	if claims["sub"] != "ops" {
		t.Errorf("sub = %v", claims["sub"])
	}

	if _, err := ValidateToken(token, "other-secret"); err == nil {
		t.Error("token signed with another secret should be rejected")
	}

	expired, err := GenerateAdminToken(secret, "ops", -time.Minute)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := ValidateToken(expired, secret); err == nil {
		t.Error("expired token should be rejected")
	}

	if _, err := GenerateAdminToken("", "ops", time.Hour); err == nil {
		t.Error("empty secret should fail")
	}
}
