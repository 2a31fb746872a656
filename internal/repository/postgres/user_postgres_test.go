package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"userapi/internal/model"
	"userapi/internal/repository"
)

var userCols = []string{
	"id", "email", "password_hash", "first_name", "last_name", "role", "status",
	"profile_image_name", "profile_image_url", "profile_image_size", "profile_image_mime_type",
	"created_at", "updated_at",
}

func userRow(id, email string, now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow(id, email, "hash", "First", "Last", "user", "active", nil, nil, nil, nil, now, now)
}

func emptyCollections(mock sqlmock.Sqlmock, id string) {
	mock.ExpectQuery("SELECT token, created_at FROM user_refresh_tokens").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"token", "created_at"}))
	mock.ExpectQuery("SELECT id, name, url, size, mime_type, created_at FROM user_documents").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "url", "size", "mime_type", "created_at"}))
}

func TestUserPostgres_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewUserPostgres(db)
	ctx := context.Background()

	now := time.Now().UTC()
	user := &model.User{
		ID:           "test-uuid",
		Email:        "a@example.com",
		PasswordHash: "hash",
		FirstName:    "First",
		LastName:     "Last",
		Role:         model.RoleUser,
		Status:       model.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
			user.Role, user.Status, user.CreatedAt, user.UpdatedAt).
		WillReturnRows(userRow(user.ID, user.Email, now))

	result, err := repo.Create(ctx, user)

	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, user.ID, result.ID)
	assert.Equal(t, user.Email, result.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserPostgres_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewUserPostgres(db)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("found with collections", func(t *testing.T) {
		mock.ExpectQuery("(?s)SELECT (.+) FROM users WHERE id = ?").
			WithArgs("u1").
			WillReturnRows(userRow("u1", "a@example.com", now))
		mock.ExpectQuery("SELECT token, created_at FROM user_refresh_tokens").
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"token", "created_at"}).
				AddRow("rt-1", now).
				AddRow("rt-2", now))
		mock.ExpectQuery("SELECT id, name, url, size, mime_type, created_at FROM user_documents").
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "url", "size", "mime_type", "created_at"}).
				AddRow("d1", "cv.pdf", "/uploads/documents/cv.pdf", 100, "application/pdf", now))

		user, err := repo.FindByID(ctx, "u1")

		assert.NoError(t, err)
		assert.NotNil(t, user)
		assert.Len(t, user.RefreshTokens, 2)
		assert.True(t, user.HasRefreshToken("rt-2"))
		assert.Len(t, user.Documents, 1)
		assert.Equal(t, "cv.pdf", user.Documents[0].Name)
		assert.Nil(t, user.ProfileImage)
	})

	t.Run("profile image columns map to FileRef", func(t *testing.T) {
		rows := sqlmock.NewRows(userCols).
			AddRow("u2", "b@example.com", "hash", "First", "Last", "user", "active",
				"me.png", "/uploads/profiles/me.png", 123, "image/png", now, now)
		mock.ExpectQuery("(?s)SELECT (.+) FROM users WHERE id = ?").
			WithArgs("u2").
			WillReturnRows(rows)
		emptyCollections(mock, "u2")

		user, err := repo.FindByID(ctx, "u2")

		assert.NoError(t, err)
		assert.NotNil(t, user.ProfileImage)
		assert.Equal(t, "/uploads/profiles/me.png", user.ProfileImage.URL)
		assert.Equal(t, int64(123), user.ProfileImage.Size)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("(?s)SELECT (.+) FROM users WHERE id = ?").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		user, err := repo.FindByID(ctx, "missing")

		assert.Error(t, err)
		assert.True(t, errors.Is(err, sql.ErrNoRows))
		assert.Nil(t, user)
	})
}

func TestUserPostgres_FindByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewUserPostgres(db)
	ctx := context.Background()

	mock.ExpectQuery("(?s)SELECT (.+) FROM users WHERE email = lower").
		WithArgs("A@Example.com").
		WillReturnRows(userRow("u1", "a@example.com", time.Now().UTC()))
	emptyCollections(mock, "u1")

	user, err := repo.FindByEmail(ctx, "A@Example.com")

	assert.NoError(t, err)
	assert.Equal(t, "a@example.com", user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserPostgres_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewUserPostgres(db)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec("UPDATE users SET status").
			WithArgs("u1", model.StatusBlocked).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.UpdateStatus(ctx, "u1", model.StatusBlocked))
	})

	t.Run("zero rows means no such user", func(t *testing.T) {
		mock.ExpectExec("UPDATE users SET status").
			WithArgs("ghost", model.StatusBlocked).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateStatus(ctx, "ghost", model.StatusBlocked)
		assert.True(t, errors.Is(err, sql.ErrNoRows))
	})
}

func TestUserPostgres_RefreshTokens(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewUserPostgres(db)
	ctx := context.Background()

	t.Run("add", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO user_refresh_tokens").
			WithArgs("u1", "rt-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.AddRefreshToken(ctx, "u1", "rt-1"))
	})

	t.Run("remove absent token is a no-op", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM user_refresh_tokens WHERE user_id = (.+) AND token = ?").
			WithArgs("u1", "rt-gone").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, repo.RemoveRefreshToken(ctx, "u1", "rt-gone"))
	})

	t.Run("clear", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM user_refresh_tokens WHERE user_id = ?").
			WithArgs("u1").
			WillReturnResult(sqlmock.NewResult(0, 3))

		assert.NoError(t, repo.ClearRefreshTokens(ctx, "u1"))
	})
}

func TestUserPostgres_SetProfileImage(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewUserPostgres(db)
	ctx := context.Background()

	t.Run("set", func(t *testing.T) {
		mock.ExpectExec("UPDATE users").
			WithArgs("u1",
				sql.NullString{String: "me.png", Valid: true},
				sql.NullString{String: "/uploads/profiles/me.png", Valid: true},
				sql.NullInt64{Int64: 99, Valid: true},
				sql.NullString{String: "image/png", Valid: true}).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SetProfileImage(ctx, "u1", &model.FileRef{
			Name: "me.png", URL: "/uploads/profiles/me.png", Size: 99, MimeType: "image/png",
		})
		assert.NoError(t, err)
	})

	t.Run("clear writes nulls", func(t *testing.T) {
		mock.ExpectExec("UPDATE users").
			WithArgs("u1", sql.NullString{}, sql.NullString{}, sql.NullInt64{}, sql.NullString{}).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.SetProfileImage(ctx, "u1", nil))
	})
}

func TestUserPostgres_Documents(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewUserPostgres(db)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("add inserts the batch in one transaction", func(t *testing.T) {
		docs := []model.Document{
			{ID: "d1", FileRef: model.FileRef{Name: "a.pdf", URL: "/uploads/documents/a.pdf", Size: 1, MimeType: "application/pdf"}, CreatedAt: now},
			{ID: "d2", FileRef: model.FileRef{Name: "b.pdf", URL: "/uploads/documents/b.pdf", Size: 2, MimeType: "application/pdf"}, CreatedAt: now},
		}
		mock.ExpectBegin()
		for _, d := range docs {
			mock.ExpectExec("INSERT INTO user_documents").
				WithArgs(d.ID, "u1", d.Name, d.URL, d.Size, d.MimeType, d.CreatedAt).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectCommit()

		assert.NoError(t, repo.AddDocuments(ctx, "u1", docs))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("add rolls back when a row fails", func(t *testing.T) {
		docs := []model.Document{
			{ID: "d3", FileRef: model.FileRef{Name: "c.pdf", URL: "/uploads/documents/c.pdf", Size: 3, MimeType: "application/pdf"}, CreatedAt: now},
			{ID: "d4", FileRef: model.FileRef{Name: "d.pdf", URL: "/uploads/documents/d.pdf", Size: 4, MimeType: "application/pdf"}, CreatedAt: now},
		}
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO user_documents").
			WithArgs("d3", "u1", "c.pdf", "/uploads/documents/c.pdf", int64(3), "application/pdf", now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO user_documents").
			WithArgs("d4", "u1", "d.pdf", "/uploads/documents/d.pdf", int64(4), "application/pdf", now).
			WillReturnError(errors.New("pq: disk full"))
		mock.ExpectRollback()

		assert.Error(t, repo.AddDocuments(ctx, "u1", docs))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("remove builds one IN clause", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM user_documents WHERE user_id = (.+) AND id IN").
			WithArgs("u1", "d1", "d2").
			WillReturnResult(sqlmock.NewResult(0, 2))

		assert.NoError(t, repo.RemoveDocuments(ctx, "u1", []string{"d1", "d2"}))
	})

	t.Run("remove with no ids skips the query", func(t *testing.T) {
		assert.NoError(t, repo.RemoveDocuments(ctx, "u1", nil))
	})
}

func TestUserPostgres_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewUserPostgres(db)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("unfiltered page", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery("(?s)SELECT (.+) FROM users ORDER BY created_at DESC").
			WithArgs(10, 0).
			WillReturnRows(userRow("u1", "a@example.com", now).
				AddRow("u2", "b@example.com", "hash", "First", "Last", "admin", "active", nil, nil, nil, nil, now, now))

		res, err := repo.List(ctx, repository.UserFilter{}, repository.PageQuery{Limit: 10, Offset: 0})

		assert.NoError(t, err)
		assert.Equal(t, 2, res.Total)
		assert.Len(t, res.Items, 2)
	})

	t.Run("status and search filters share the WHERE clause", func(t *testing.T) {
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE status = (.+) AND").
			WithArgs(model.StatusActive, "%smith%").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery("(?s)SELECT (.+) FROM users WHERE status = (.+) AND").
			WithArgs(model.StatusActive, "%smith%", 5, 0).
			WillReturnRows(userRow("u1", "smith@example.com", now))

		res, err := repo.List(ctx,
			repository.UserFilter{Status: model.StatusActive, Search: "Smith"},
			repository.PageQuery{Limit: 5, Offset: 0})

		assert.NoError(t, err)
		assert.Equal(t, 1, res.Total)
		assert.Len(t, res.Items, 1)
	})
}
