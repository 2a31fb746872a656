package service

import (
	"context"
	"database/sql"
	"errors"
	"math"

	"userapi/internal/apperr"
	"userapi/internal/model"
	"userapi/internal/repository"
)

// ListUsersQuery narrows and pages the admin user listing.
type ListUsersQuery struct {
	Page   int
	Limit  int
	Status string
	Role   string
	Search string
}

// Pagination describes the page returned by ListUsers.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// UserListResult is the service-level DTO for a paginated user listing.
type UserListResult struct {
	Users      []model.User `json:"users"`
	Pagination Pagination   `json:"pagination"`
}

// AdminService owns the administrative user controls.
type AdminService interface {
	// ListUsers returns a filtered, paginated user listing.
	ListUsers(ctx context.Context, q ListUsersQuery) (*UserListResult, error)

	// GetUser returns a single account by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// ChangeStatus sets the account status to one of the closed enum
	// values.
	ChangeStatus(ctx context.Context, id string, status model.Status) (*model.User, error)
}

type adminService struct {
	users repository.UserRepository
}

// NewAdminService constructs a new AdminService.
func NewAdminService(users repository.UserRepository) AdminService {
	return &adminService{users: users}
}

func (s *adminService) ListUsers(ctx context.Context, q ListUsersQuery) (*UserListResult, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}

	res, err := s.users.List(ctx, repository.UserFilter{
		Status: model.Status(q.Status),
		Role:   model.Role(q.Role),
		Search: q.Search,
	}, repository.PageQuery{
		Limit:  q.Limit,
		Offset: (q.Page - 1) * q.Limit,
	})
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list users")
	}

	return &UserListResult{
		Users: res.Items,
		Pagination: Pagination{
			Page:       q.Page,
			Limit:      q.Limit,
			Total:      res.Total,
			TotalPages: int(math.Ceil(float64(res.Total) / float64(q.Limit))),
		},
	}, nil
}

func (s *adminService) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Wrap(err, "failed to look up user")
	}
	return user, nil
}

func (s *adminService) ChangeStatus(ctx context.Context, id string, status model.Status) (*model.User, error) {
	if !model.ValidStatus(status) {
		return nil, apperr.BadRequest("Invalid status value")
	}

	if err := s.users.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Wrap(err, "failed to update status")
	}
	return s.GetUser(ctx, id)
}
