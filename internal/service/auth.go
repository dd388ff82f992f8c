// Package service holds the account rules that sit between the HTTP
// handlers and the stores:
//
//	AuthHandler    → AuthService    → UserRepository, TokenService
//	BillingHandler → BillingService → UserRepository, billing.Processor
//
// Neither service knows about HTTP. Cookies, redirects and status codes are
// the handlers' business.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/sql-snippets/internal/apperror"
	"github.com/sakif/sql-snippets/internal/auth"
	"github.com/sakif/sql-snippets/internal/model"
	"github.com/sakif/sql-snippets/internal/repository"
)

// AuthService turns a GitHub identity into a local account and a session.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

// NewAuthService wires an AuthService.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{users: users, tokens: tokens, logger: logger}
}

// AuthResult is the user record and the session token issued for it.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterGitHub upserts the user by GitHub id and issues a token.
//
// UPSERT ON github_id:
// GitHub ids are stable, so the first login inserts and every later login
// refreshes login, email and avatar. The paid flag is never touched here.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, errors.New("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Login:     ghUser.Login,
		Email:     ghUser.Email,
		AvatarURL: ghUser.AvatarURL,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)
	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID returns the account for id.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// ValidateToken returns the user id encoded in tokenStr.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}
