package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"userapi/internal/apperr"
	"userapi/internal/auth"
	"userapi/internal/model"
	"userapi/internal/repository"
	"userapi/internal/storage"
	"userapi/internal/upload"
)

// UpdateProfileInput carries the self-service mutable fields. Password and
// role are deliberately not updatable through profile updates.
type UpdateProfileInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// UserService owns the account operations available to the account holder:
// profile, sessions, password and file attachments.
type UserService interface {
	// GetProfile returns the account.
	GetProfile(ctx context.Context, userID string) (*model.User, error)

	// UpdateProfile writes the mutable profile fields.
	UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*model.User, error)

	// Logout removes exactly the one matching refresh-token record.
	// Idempotent when the record is already absent.
	Logout(ctx context.Context, userID, refreshToken string) error

	// ChangePassword verifies the current password, replaces the hash and
	// clears every refresh-token record, invalidating all other sessions.
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error

	// UpdateProfileImage replaces the profile image. The previous file is
	// deleted best-effort before the new reference is saved.
	UpdateProfileImage(ctx context.Context, userID string, file upload.UploadedFile) (*model.User, error)

	// DeleteProfileImage removes the profile image file (best-effort) and
	// clears its reference.
	DeleteProfileImage(ctx context.Context, userID string) error

	// UploadDocuments appends document references; existing documents are
	// never replaced.
	UploadDocuments(ctx context.Context, userID string, files []upload.UploadedFile) (*model.User, error)

	// DeleteDocuments removes the given documents. Validation is strict and
	// all-or-nothing: one unknown ID fails the whole call before any file
	// is touched.
	DeleteDocuments(ctx context.Context, userID string, ids []string) error

	// DeleteUser removes the account, deleting its profile image and
	// document files best-effort first.
	DeleteUser(ctx context.Context, userID string) error
}

type userService struct {
	users      repository.UserRepository
	store      storage.Storage
	publicBase string
}

// NewUserService constructs a new UserService. publicBase is the URL prefix
// persisted references carry, needed to map URLs back to storage keys.
func NewUserService(users repository.UserRepository, store storage.Storage, publicBase string) UserService {
	return &userService{users: users, store: store, publicBase: publicBase}
}

func (s *userService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	return s.findUser(ctx, userID)
}

func (s *userService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*model.User, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.FirstName = in.FirstName
	user.LastName = in.LastName
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperr.Wrap(err, "failed to update user")
	}
	return user, nil
}

func (s *userService) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" {
		return apperr.BadRequest("Refresh token is required")
	}
	if _, err := s.findUser(ctx, userID); err != nil {
		return err
	}
	if err := s.users.RemoveRefreshToken(ctx, userID, refreshToken); err != nil {
		return apperr.Wrap(err, "failed to remove refresh token")
	}
	return nil
}

func (s *userService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := auth.ComparePassword(currentPassword, user.PasswordHash); err != nil {
		return apperr.Unauthorized("Current password is incorrect")
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return apperr.Wrap(err, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return apperr.Wrap(err, "failed to update password")
	}

	// Every other active session dies with the old password.
	if err := s.users.ClearRefreshTokens(ctx, userID); err != nil {
		return apperr.Wrap(err, "failed to clear refresh tokens")
	}
	return nil
}

func (s *userService) UpdateProfileImage(ctx context.Context, userID string, file upload.UploadedFile) (*model.User, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.ProfileImage != nil {
		s.deleteFile(ctx, user.ProfileImage.URL)
	}

	ref := &model.FileRef{
		Name:     file.OriginalName,
		URL:      file.URL,
		Size:     file.Size,
		MimeType: file.MimeType,
	}
	if err := s.users.SetProfileImage(ctx, userID, ref); err != nil {
		return nil, apperr.Wrap(err, "failed to save profile image")
	}
	user.ProfileImage = ref
	return user, nil
}

func (s *userService) DeleteProfileImage(ctx context.Context, userID string) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.ProfileImage == nil {
		return apperr.NotFound("No profile image found")
	}

	// Best-effort: a failed disk delete never blocks the record update.
	s.deleteFile(ctx, user.ProfileImage.URL)

	if err := s.users.SetProfileImage(ctx, userID, nil); err != nil {
		return apperr.Wrap(err, "failed to clear profile image")
	}
	return nil
}

func (s *userService) UploadDocuments(ctx context.Context, userID string, files []upload.UploadedFile) (*model.User, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	docs := make([]model.Document, 0, len(files))
	now := time.Now().UTC()
	for _, f := range files {
		docs = append(docs, model.Document{
			ID: uuid.New().String(),
			FileRef: model.FileRef{
				Name:     f.OriginalName,
				URL:      f.URL,
				Size:     f.Size,
				MimeType: f.MimeType,
			},
			CreatedAt: now,
		})
	}
	if err := s.users.AddDocuments(ctx, userID, docs); err != nil {
		return nil, apperr.Wrap(err, "failed to save documents")
	}
	user.Documents = append(user.Documents, docs...)
	return user, nil
}

func (s *userService) DeleteDocuments(ctx context.Context, userID string, ids []string) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}

	byID := make(map[string]model.Document, len(user.Documents))
	for _, d := range user.Documents {
		byID[d.ID] = d
	}
	// All-or-nothing: validate every ID before touching any file.
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return apperr.NotFound("Document not found")
		}
	}

	for _, id := range ids {
		s.deleteFile(ctx, byID[id].URL)
	}
	if err := s.users.RemoveDocuments(ctx, userID, ids); err != nil {
		return apperr.Wrap(err, "failed to remove documents")
	}
	return nil
}

func (s *userService) DeleteUser(ctx context.Context, userID string) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}

	if user.ProfileImage != nil {
		s.deleteFile(ctx, user.ProfileImage.URL)
	}
	for _, d := range user.Documents {
		s.deleteFile(ctx, d.URL)
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		return apperr.Wrap(err, "failed to delete user")
	}
	return nil
}

func (s *userService) findUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Wrap(err, "failed to look up user")
	}
	return user, nil
}

// deleteFile removes the stored file behind a persisted URL. Deletion is a
// non-fatal side effect: failures go to the log channel only and are never
// reflected in the operation's result.
func (s *userService) deleteFile(ctx context.Context, url string) {
	key := upload.KeyFromURL(s.publicBase, url)
	if err := s.store.Delete(ctx, key); err != nil {
		log.Printf("failed to delete file %s: %v", key, err)
	}
}
