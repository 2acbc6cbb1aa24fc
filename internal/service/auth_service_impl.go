package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/santelle/santelle/internal/auth"
	"github.com/santelle/santelle/internal/domain"
	"github.com/santelle/santelle/internal/repository"
)

type authService struct {
	users    repository.UserRepo
	hasher   auth.Hasher
	tokens   *auth.TokenService
	observer UseCaseObserver
}

func NewAuthService(
	users repository.UserRepo,
	hasher auth.Hasher,
	tokens *auth.TokenService,
	observers ...UseCaseObserver,
) AuthService {
	return &authService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		observer: useCaseObserverOrNoop(observers),
	}
}

func (s *authService) Register(ctx context.Context, email, password string) (user *domain.User, err error) {
	defer observe(ctx, s.observer, "register-user", time.Now(), nil, &err)

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%q: %w", email, ErrInvalidEmail)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user = &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err = s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", email, ErrEmailTaken)
		}
		return nil, err
	}
	return user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (token string, user *domain.User, err error) {
	defer observe(ctx, s.observer, "login", time.Now(), nil, &err)

	user, err = s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err = s.hasher.Compare(user.PasswordHash, password); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err = s.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("issuing token: %w", err)
	}
	return token, user, nil
}

func (s *authService) Authenticate(ctx context.Context, token string) (string, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return "", err
	}
	if _, err := s.users.GetByID(ctx, claims.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: unknown user", auth.ErrInvalidToken)
		}
		return "", err
	}
	return claims.UserID, nil
}
