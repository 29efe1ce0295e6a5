package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tillpoint/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
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

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	stub := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now(),
			},
		},
	}

	auth := NewAuthManager("test-secret-key", time.Hour, stub)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login with legacy password failed: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("role = %s, want admin", resp.Role)
	}

	stub.mu.Lock()
	stored := stub.users["admin"].Password
	updates := stub.updates
	stub.mu.Unlock()
	if !strings.HasPrefix(stored, "$2") {
		t.Fatalf("expected bcrypt hash in store, got %q", stored)
	}
	if updates == 0 {
		t.Fatalf("expected password upgrade write")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	stub := &userStoreStub{
		users: map[string]domain.UserAccount{
			"ghost": {
				Username: "ghost",
				Password: "ghost123",
				Role:     "cashier",
				Active:   false,
			},
		},
	}

	auth := NewAuthManager("test-secret-key", time.Hour, stub)

	if _, err := auth.Login(domain.LoginRequest{Username: "ghost", Password: "ghost123"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, nil)
	if err := auth.EnsureUser("kasir", "kasir123", "cashier"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}

	resp, err := auth.Login(domain.LoginRequest{Username: "kasir", Password: "kasir123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "kasir" || actor.Role != "cashier" {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, nil)

	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("issuer-secret-0123456789abcdef", time.Hour, nil)
	if err := issuer.EnsureUser("kasir", "kasir123", "cashier"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	resp, err := issuer.Login(domain.LoginRequest{Username: "kasir", Password: "kasir123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	verifier := NewAuthManager("other-secret-0123456789abcdef", time.Hour, nil)
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	stub := &userStoreStub{}
	auth := NewAuthManager("test-secret-key", time.Hour, stub)

	if err := auth.EnsureUser("admin", "admin123", "admin"); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := auth.EnsureUser("admin", "different", "admin"); err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	// The original password still works; the second call was a no-op.
	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login after duplicate ensure failed: %v", err)
	}
}
