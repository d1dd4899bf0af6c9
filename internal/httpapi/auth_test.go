package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tokosinar/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func (s *userStoreStub) put(user domain.UserAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	stub := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret-key-with-enough-length!!", time.Hour, stub)
	_, err := manager.Login(domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := stub.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestLoginPicksUpAccountsCreatedAfterStartup(t *testing.T) {
	stub := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret-key-with-enough-length!!", time.Hour, stub)

	stub.put(domain.UserAccount{
		Username:  "nina",
		Password:  "supersecret",
		Role:      "staff",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})

	resp, err := manager.Login(domain.LoginRequest{Username: "nina", Password: "supersecret"})
	if err != nil {
		t.Fatalf("login should reload users from the store: %v", err)
	}
	if resp.Role != "staff" {
		t.Fatalf("unexpected role %q", resp.Role)
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	stub := &userStoreStub{
		users: map[string]domain.UserAccount{
			"former": {
				Username: "former",
				Password: "supersecret",
				Role:     "staff",
				Active:   false,
			},
		},
	}
	manager := NewAuthManager("test-secret-key-with-enough-length!!", time.Hour, stub)

	if _, err := manager.Login(domain.LoginRequest{Username: "former", Password: "supersecret"}); err == nil {
		t.Fatalf("expected login to fail for an inactive account")
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	stub := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {Username: "admin", Password: "admin123", Role: "admin", Active: true},
		},
	}
	manager := NewAuthManager("test-secret-key-with-enough-length!!", time.Hour, stub)

	resp, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	stub := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {Username: "admin", Password: "admin123", Role: "admin", Active: true},
		},
	}
	issuer := NewAuthManager("issuer-secret-key-with-enough-len!!!", time.Hour, stub)
	verifier := NewAuthManager("another-secret-key-with-enough-len!!", time.Hour, stub)

	resp, err := issuer.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
	if _, err := verifier.ParseToken("not.a.token"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
}

func TestLoginNormalizesUsername(t *testing.T) {
	stub := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {Username: "admin", Password: "admin123", Role: "admin", Active: true},
		},
	}
	manager := NewAuthManager("test-secret-key-with-enough-length!!", time.Hour, stub)

	if _, err := manager.Login(domain.LoginRequest{Username: "  Admin ", Password: "admin123"}); err != nil {
		t.Fatalf("login should trim and lowercase the username: %v", err)
	}
}
