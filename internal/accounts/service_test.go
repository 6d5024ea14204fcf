package accounts

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"kidnotes/api/internal/store"
)

// mockUserStore is a map-backed implementation of UserStore for testing
type mockUserStore struct {
	users map[string]store.User
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]store.User)}
}

func (m *mockUserStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	if user, ok := m.users[username]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	if _, ok := m.users[user.Username]; ok {
		return store.ErrDuplicate
	}
	m.users[user.Username] = user
	return nil
}

func registerParent(t *testing.T, svc *Service, username string) store.User {
	t.Helper()
	user, err := svc.Register(context.Background(), RegisterRequest{
		Username: username,
		Password: "parent-password",
		Role:     "parent",
	})
	if err != nil {
		t.Fatalf("register parent %q: %v", username, err)
	}
	return user
}

func TestRegisterNormalizesUsername(t *testing.T) {
	svc := NewService(newMockUserStore())
	user := registerParent(t, svc, "  MOM  ")
	if user.Username != "mom" {
		t.Fatalf("expected normalized username mom, got %q", user.Username)
	}
}

func TestRegisterRejectsDuplicateAfterNormalization(t *testing.T) {
	svc := NewService(newMockUserStore())
	registerParent(t, svc, "mom")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Username: " Mom ",
		Password: "another-password",
		Role:     "parent",
	})
	if !errors.Is(err, ErrDuplicateUser) {
		t.Fatalf("expected ErrDuplicateUser, got %v", err)
	}
}

func TestRegisterChildRequiresParent(t *testing.T) {
	svc := NewService(newMockUserStore())
	registerParent(t, svc, "mom")
	registerParent(t, svc, "dad")

	cases := []struct {
		name   string
		parent string
	}{
		{name: "missing parent", parent: ""},
		{name: "nonexistent parent", parent: "ghost"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), RegisterRequest{
				Username:       "kid1",
				Password:       "kid-password",
				Role:           "child",
				ParentUsername: tc.parent,
			})
			if !errors.Is(err, ErrInvalidParent) {
				t.Fatalf("expected ErrInvalidParent, got %v", err)
			}
		})
	}
}

func TestRegisterChildRejectsNonParentLink(t *testing.T) {
	ms := newMockUserStore()
	svc := NewService(ms)
	registerParent(t, svc, "mom")
	if _, err := svc.Register(context.Background(), RegisterRequest{
		Username:       "kid1",
		Password:       "kid-password",
		Role:           "child",
		ParentUsername: "mom",
	}); err != nil {
		t.Fatalf("register kid1: %v", err)
	}

	// Linking to another child must fail.
	_, err := svc.Register(context.Background(), RegisterRequest{
		Username:       "kid2",
		Password:       "kid-password",
		Role:           "child",
		ParentUsername: "kid1",
	})
	if !errors.Is(err, ErrInvalidParent) {
		t.Fatalf("expected ErrInvalidParent, got %v", err)
	}
}

func TestRegisterChildStoresNormalizedParentLink(t *testing.T) {
	ms := newMockUserStore()
	svc := NewService(ms)
	registerParent(t, svc, "mom")

	user, err := svc.Register(context.Background(), RegisterRequest{
		Username:       "Kid1",
		Password:       "kid-password",
		Role:           "child",
		ParentUsername: " MOM ",
	})
	if err != nil {
		t.Fatalf("register child: %v", err)
	}
	if user.ParentUsername == nil || *user.ParentUsername != "mom" {
		t.Fatalf("expected parent link mom, got %v", user.ParentUsername)
	}
}

func TestRegisterRejectsBlankUsername(t *testing.T) {
	svc := NewService(newMockUserStore())
	for _, username := range []string{"", "   ", "\t"} {
		_, err := svc.Register(context.Background(), RegisterRequest{
			Username: username,
			Password: "password",
			Role:     "parent",
		})
		if !errors.Is(err, ErrMissingCredentials) {
			t.Fatalf("username %q: expected ErrMissingCredentials, got %v", username, err)
		}
	}
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	svc := NewService(newMockUserStore())
	_, err := svc.Register(context.Background(), RegisterRequest{
		Username: "someone",
		Password: "password",
		Role:     "admin",
	})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestAuthenticateReturnsSameErrorForUnknownUserAndWrongPassword(t *testing.T) {
	svc := NewService(newMockUserStore())
	registerParent(t, svc, "mom")

	_, wrongPassword := svc.Authenticate(context.Background(), "mom", "not-the-password")
	_, unknownUser := svc.Authenticate(context.Background(), "nobody", "whatever")

	if !errors.Is(wrongPassword, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", wrongPassword)
	}
	if !errors.Is(unknownUser, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", unknownUser)
	}
	if wrongPassword.Error() != unknownUser.Error() {
		t.Fatalf("errors must be indistinguishable: %q vs %q", wrongPassword, unknownUser)
	}
}

func TestAuthenticateAcceptsUnnormalizedInput(t *testing.T) {
	svc := NewService(newMockUserStore())
	registerParent(t, svc, "mom")

	user, err := svc.Authenticate(context.Background(), "  MoM ", "parent-password")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.Username != "mom" {
		t.Fatalf("expected mom, got %q", user.Username)
	}
}
