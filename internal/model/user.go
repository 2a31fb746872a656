package model

import "time"

// Role is an opaque label checked by the authorization middleware.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Status is the closed set of admin-settable account states.
// Only active accounts pass authentication.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBlocked  Status = "blocked"
)

// ValidStatus reports whether s is a member of the closed status enum.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusInactive, StatusBlocked:
		return true
	}
	return false
}

// FileRef points at a stored file owned by a user. URL is the public path
// relative to the upload root; it is what gets persisted, not the disk path.
type FileRef struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// Document is a FileRef with its own identity so individual documents can be
// detached later.
type Document struct {
	ID        string    `json:"id"`
	FileRef
	CreatedAt time.Time `json:"created_at"`
}

// RefreshToken is one outstanding session record. Multiple records per user
// coexist (one per device). Presence of the record is what keeps any access
// token derived from it alive.
type RefreshToken struct {
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the identity root. This is a pure domain model with no
// database-specific dependencies or tags; it can be used across layers
// (HTTP, service, storage) without coupling to persistence.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	PasswordHash  string         `json:"-"`
	FirstName     string         `json:"first_name"`
	LastName      string         `json:"last_name"`
	Role          Role           `json:"role"`
	Status        Status         `json:"status"`
	ProfileImage  *FileRef       `json:"profile_image,omitempty"`
	Documents     []Document     `json:"documents"`
	RefreshTokens []RefreshToken `json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// HasRefreshToken reports whether token is in the user's outstanding record
// set. This set membership, not token signature validity, decides liveness.
func (u *User) HasRefreshToken(token string) bool {
	for _, t := range u.RefreshTokens {
		if t.Token == token {
			return true
		}
	}
	return false
}
