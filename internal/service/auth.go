package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"userapi/internal/apperr"
	"userapi/internal/auth"
	"userapi/internal/model"
	"userapi/internal/repository"
)

// RegisterInput carries the fields accepted at registration. Validation of
// shape (email format, password strength) happens at the HTTP boundary; the
// service owns uniqueness and hashing.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AuthResult is what a successful login or refresh yields.
type AuthResult struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

// AuthService owns registration and the credential/session lifecycle entry
// points.
type AuthService interface {
	// Register creates an account with a hashed password, default role and
	// active status. Duplicate emails conflict.
	Register(ctx context.Context, in RegisterInput) (*model.User, error)

	// Login authenticates by email and password, records a fresh refresh
	// token on the account (multi-device: existing records are untouched)
	// and mints an access token embedding it.
	Login(ctx context.Context, email, password string) (*AuthResult, error)

	// Refresh reissues an access token bound to the same, still-outstanding
	// refresh token record. Refresh tokens are not rotated.
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
}

type authService struct {
	users  repository.UserRepository
	issuer *auth.TokenIssuer
}

// NewAuthService constructs a new AuthService.
func NewAuthService(users repository.UserRepository, issuer *auth.TokenIssuer) AuthService {
	return &authService{users: users, issuer: issuer}
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	_, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return nil, apperr.Conflict("User with this email already exists")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Wrap(err, "failed to check existing user")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to hash password")
	}

	now := time.Now().UTC()
	user, err := s.users.Create(ctx, &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         model.RoleUser,
		Status:       model.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, apperr.Wrap(err, "failed to create user")
	}
	return user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Unauthorized("Invalid email or password")
		}
		return nil, apperr.Wrap(err, "failed to look up user")
	}

	if err := auth.ComparePassword(password, user.PasswordHash); err != nil {
		return nil, apperr.Unauthorized("Invalid email or password")
	}

	refreshToken, err := s.issuer.IssueRefresh(user.ID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to issue refresh token")
	}

	// Persist the record before minting the access token: an access token
	// whose refresh token is not on the account would be dead on arrival.
	if err := s.users.AddRefreshToken(ctx, user.ID, refreshToken); err != nil {
		return nil, apperr.Wrap(err, "failed to store refresh token")
	}

	accessToken, err := s.issuer.Issue(user.ID, refreshToken)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to issue access token")
	}

	return &AuthResult{User: user, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, apperr.BadRequest("Refresh token is required")
	}

	userID, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid token")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Unauthorized("Invalid token user not found")
		}
		return nil, apperr.Wrap(err, "failed to look up user")
	}

	if !user.HasRefreshToken(refreshToken) {
		return nil, apperr.NotFound("Token not found")
	}

	accessToken, err := s.issuer.Issue(user.ID, refreshToken)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to issue access token")
	}

	return &AuthResult{User: user, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
