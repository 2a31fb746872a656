package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"userapi/internal/model"
	"userapi/internal/repository"
)

// UserPostgres is a PostgreSQL implementation of repository.UserRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type UserPostgres struct {
	db *sql.DB
}

// NewUserPostgres creates a new UserPostgres repository.
func NewUserPostgres(db *sql.DB) *UserPostgres {
	return &UserPostgres{db: db}
}

var _ repository.UserRepository = (*UserPostgres)(nil)

const userColumns = `id, email, password_hash, first_name, last_name, role, status,
		profile_image_name, profile_image_url, profile_image_size, profile_image_mime_type,
		created_at, updated_at`

// Create inserts a new user row and returns the stored record.
func (r *UserPostgres) Create(ctx context.Context, user *model.User) (*model.User, error) {
	const q = `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + userColumns
	row := r.db.QueryRowContext(ctx, q,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Status,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return scanUser(row)
}

// FindByID fetches a single user by ID with owned collections loaded.
func (r *UserPostgres) FindByID(ctx context.Context, id string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadCollections(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail fetches a single user by lower-cased email with owned collections loaded.
func (r *UserPostgres) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email = lower($1)`
	user, err := scanUser(r.db.QueryRowContext(ctx, q, email))
	if err != nil {
		return nil, err
	}
	if err := r.loadCollections(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Update writes the mutable profile fields.
func (r *UserPostgres) Update(ctx context.Context, user *model.User) error {
	const q = `
		UPDATE users
		SET first_name = $2, last_name = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, q, user.ID, user.FirstName, user.LastName)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdatePassword replaces the stored password hash.
func (r *UserPostgres) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateStatus sets the account status.
func (r *UserPostgres) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	const q = `UPDATE users SET status = $2, updated_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes a user by ID. Owned refresh tokens and documents cascade at
// the schema level.
func (r *UserPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM users WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// List returns users using LIMIT/OFFSET pagination, a total count and
// optional status/role/search filters.
func (r *UserPostgres) List(ctx context.Context, f repository.UserFilter, pq repository.PageQuery) (*repository.PageResult[model.User], error) {
	where, args := buildFilter(f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	q := `SELECT ` + userColumns + ` FROM users` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, pq.Limit, pq.Offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.User]{Items: items, Total: total}, nil
}

// AddRefreshToken appends one session record.
func (r *UserPostgres) AddRefreshToken(ctx context.Context, userID, token string) error {
	const q = `
		INSERT INTO user_refresh_tokens (user_id, token, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id, token) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, q, userID, token)
	return err
}

// RemoveRefreshToken removes one session record. Removing an absent token is
// a no-op, which is what makes logout idempotent.
func (r *UserPostgres) RemoveRefreshToken(ctx context.Context, userID, token string) error {
	const q = `DELETE FROM user_refresh_tokens WHERE user_id = $1 AND token = $2`
	_, err := r.db.ExecContext(ctx, q, userID, token)
	return err
}

// ClearRefreshTokens removes every session record for the user.
func (r *UserPostgres) ClearRefreshTokens(ctx context.Context, userID string) error {
	const q = `DELETE FROM user_refresh_tokens WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, q, userID)
	return err
}

// SetProfileImage replaces the profile image reference; a nil ref clears it.
func (r *UserPostgres) SetProfileImage(ctx context.Context, userID string, ref *model.FileRef) error {
	const q = `
		UPDATE users
		SET profile_image_name = $2, profile_image_url = $3,
		    profile_image_size = $4, profile_image_mime_type = $5,
		    updated_at = now()
		WHERE id = $1
	`
	var name, url, mimeType sql.NullString
	var size sql.NullInt64
	if ref != nil {
		name = sql.NullString{String: ref.Name, Valid: true}
		url = sql.NullString{String: ref.URL, Valid: true}
		size = sql.NullInt64{Int64: ref.Size, Valid: true}
		mimeType = sql.NullString{String: ref.MimeType, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, q, userID, name, url, size, mimeType)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// AddDocuments appends document reference rows. The batch is written in one
// transaction so a mid-batch failure leaves no partial attach behind.
func (r *UserPostgres) AddDocuments(ctx context.Context, userID string, docs []model.Document) error {
	const q = `
		INSERT INTO user_documents (id, user_id, name, url, size, mime_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if _, err := tx.ExecContext(ctx, q, d.ID, userID, d.Name, d.URL, d.Size, d.MimeType, d.CreatedAt); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// RemoveDocuments removes document rows by ID for the given user.
func (r *UserPostgres) RemoveDocuments(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	q := `DELETE FROM user_documents WHERE user_id = $1 AND id IN (` + strings.Join(placeholders, ", ") + `)`
	_, err := r.db.ExecContext(ctx, q, args...)
	return err
}

// loadCollections fills the user's refresh tokens and documents.
func (r *UserPostgres) loadCollections(ctx context.Context, user *model.User) error {
	const qTokens = `
		SELECT token, created_at FROM user_refresh_tokens
		WHERE user_id = $1
		ORDER BY created_at, token
	`
	rows, err := r.db.QueryContext(ctx, qTokens, user.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	user.RefreshTokens = make([]model.RefreshToken, 0)
	for rows.Next() {
		var t model.RefreshToken
		if err := rows.Scan(&t.Token, &t.CreatedAt); err != nil {
			return err
		}
		user.RefreshTokens = append(user.RefreshTokens, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	const qDocs = `
		SELECT id, name, url, size, mime_type, created_at FROM user_documents
		WHERE user_id = $1
		ORDER BY created_at, id
	`
	docRows, err := r.db.QueryContext(ctx, qDocs, user.ID)
	if err != nil {
		return err
	}
	defer docRows.Close()
	user.Documents = make([]model.Document, 0)
	for docRows.Next() {
		var d model.Document
		if err := docRows.Scan(&d.ID, &d.Name, &d.URL, &d.Size, &d.MimeType, &d.CreatedAt); err != nil {
			return err
		}
		user.Documents = append(user.Documents, d)
	}
	return docRows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	var imgName, imgURL, imgMime sql.NullString
	var imgSize sql.NullInt64
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Role,
		&u.Status,
		&imgName,
		&imgURL,
		&imgSize,
		&imgMime,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if imgURL.Valid {
		u.ProfileImage = &model.FileRef{
			Name:     imgName.String,
			URL:      imgURL.String,
			Size:     imgSize.Int64,
			MimeType: imgMime.String,
		}
	}
	return &u, nil
}

// requireRow translates a zero-row UPDATE/DELETE into sql.ErrNoRows so the
// service layer can map it to a not-found failure.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// buildFilter assembles the WHERE clause for List.
func buildFilter(f repository.UserFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Role != "" {
		args = append(args, f.Role)
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(lower(first_name) LIKE $%d OR lower(last_name) LIKE $%d OR lower(email) LIKE $%d)", n, n, n))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
