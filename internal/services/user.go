package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/siteops-app/apiserver/internal/store"
	"github.com/siteops-app/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials covers every authentication failure visible to a
// caller: unknown identifier, wrong password, deactivated account. They are
// indistinguishable on purpose.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	RecordLogin(ctx context.Context, id int, at time.Time) error
	Deactivate(ctx context.Context, id int) error
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

// Register creates an account with a bcrypt-hashed password. New accounts
// always start as active USERs; role elevation is a separate update.
func (s *UserService) Register(ctx context.Context, name, email, phone, password string) (types.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}
	user := types.User{
		Name:         strings.TrimSpace(name),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Phone:        strings.TrimSpace(phone),
		Role:         types.RoleUser,
		IsActive:     true,
		PasswordHash: string(hash),
	}
	return s.repo.Create(ctx, user)
}

// Authenticate resolves an identifier (email or phone) and verifies the
// password. Every failure path reports ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, identifier, password string) (types.User, error) {
	user, err := s.repo.GetByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if !user.IsActive {
		return types.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// RecordLogin bumps the user's login counter and last-login timestamp.
func (s *UserService) RecordLogin(ctx context.Context, id int) error {
	return s.repo.RecordLogin(ctx, id, time.Now().UTC())
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) Update(ctx context.Context, user types.User) (types.User, error) {
	return s.repo.Update(ctx, user)
}

func (s *UserService) Deactivate(ctx context.Context, id int) error {
	return s.repo.Deactivate(ctx, id)
}
