package main

import (
	"testing"

	"tokosinar/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakSecret(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "short"}); err == nil {
		t.Fatalf("expected weak auth secret to be rejected")
	}
	if err := validateSecurityConfig(config.Config{}); err == nil {
		t.Fatalf("expected empty auth secret to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongSecret(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
