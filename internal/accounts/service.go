// Package accounts provides username/password credential storage for the
// parent/child account model.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"kidnotes/api/internal/rbac"
	"kidnotes/api/internal/store"
)

var (
	// ErrDuplicateUser means the normalized username is already taken.
	ErrDuplicateUser = errors.New("username exists")
	// ErrInvalidParent means a child signup named a parent that is missing
	// or not role=parent, or named no parent at all.
	ErrInvalidParent = errors.New("parent_username not found or not a parent")
	// ErrInvalidCredentials is deliberately generic: callers cannot tell an
	// unknown username from a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRole means the requested role is neither child nor parent.
	ErrInvalidRole = errors.New("role must be child or parent")
	// ErrMissingCredentials means the username normalized to empty or the
	// password is empty.
	ErrMissingCredentials = errors.New("username and password are required")
)

// UserStore defines the storage interface for account management.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
}

type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// RegisterRequest contains signup parameters.
type RegisterRequest struct {
	Username       string
	Password       string
	Role           string
	ParentUsername string
}

// Register creates a new user account. Usernames are normalized (trim +
// lowercase) before any lookup or insert, so two signups differing only in
// case or surrounding whitespace collide.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.User, error) {
	username := Normalize(req.Username)
	if username == "" || req.Password == "" {
		return store.User{}, ErrMissingCredentials
	}
	if !rbac.Valid(req.Role) {
		return store.User{}, ErrInvalidRole
	}

	var parentUsername *string
	if req.Role == string(rbac.RoleChild) {
		parent := Normalize(req.ParentUsername)
		if parent == "" {
			return store.User{}, ErrInvalidParent
		}
		parentUser, err := s.store.GetUserByUsername(ctx, parent)
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, ErrInvalidParent
		}
		if err != nil {
			return store.User{}, fmt.Errorf("lookup parent: %w", err)
		}
		if parentUser.Role != string(rbac.RoleParent) {
			return store.User{}, ErrInvalidParent
		}
		parentUsername = &parent
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		Username:       username,
		PasswordHash:   string(hash),
		Role:           req.Role,
		ParentUsername: parentUsername,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		// The unique constraint is the authority for concurrent signups.
		if errors.Is(err, store.ErrDuplicate) {
			return store.User{}, ErrDuplicateUser
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies a username/password pair and returns the user record.
func (s *Service) Authenticate(ctx context.Context, username, password string) (store.User, error) {
	user, err := s.store.GetUserByUsername(ctx, Normalize(username))
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Normalize maps a username to its canonical form.
func Normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
