package repository

import (
	"context"

	"userapi/internal/model"
)

// UserRepository defines data access for user accounts using SQL queries only.
// No business logic here — strictly persistence operations. Refresh tokens and
// documents are owned collections keyed by user ID; mutating them is row-scoped
// so concurrent session changes on one account do not clobber each other.
type UserRepository interface {
	// Create inserts a new user row. Returns the stored user.
	Create(ctx context.Context, user *model.User) (*model.User, error)

	// FindByID returns a user with refresh tokens and documents loaded.
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail returns a user by case-normalized email, collections loaded.
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Update writes the mutable profile fields (first/last name).
	Update(ctx context.Context, user *model.User) error

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// UpdateStatus sets the account status.
	UpdateStatus(ctx context.Context, id string, status model.Status) error

	// Delete removes a user row; owned collections cascade.
	Delete(ctx context.Context, id string) error

	// List returns a paginated, filtered page of users and the total count.
	List(ctx context.Context, f UserFilter, pq PageQuery) (*PageResult[model.User], error)

	// AddRefreshToken appends one outstanding session record.
	AddRefreshToken(ctx context.Context, userID, token string) error

	// RemoveRefreshToken removes one session record. Removing an absent
	// token is not an error.
	RemoveRefreshToken(ctx context.Context, userID, token string) error

	// ClearRefreshTokens removes every session record for the user.
	ClearRefreshTokens(ctx context.Context, userID string) error

	// SetProfileImage replaces the profile image reference; nil clears it.
	SetProfileImage(ctx context.Context, userID string, ref *model.FileRef) error

	// AddDocuments appends document references.
	AddDocuments(ctx context.Context, userID string, docs []model.Document) error

	// RemoveDocuments removes document rows by ID.
	RemoveDocuments(ctx context.Context, userID string, ids []string) error
}

// UserFilter narrows a List call. Zero values mean "no restriction"; Search
// matches name and email case-insensitively.
type UserFilter struct {
	Status model.Status
	Role   model.Role
	Search string
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
