package upload

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"userapi/internal/apperr"
	"userapi/internal/storage"
	storeMocks "userapi/internal/storage/mocks"
)

type filePart struct {
	field       string
	filename    string
	contentType string
	content     string
}

func multipartBody(t *testing.T, parts ...filePart) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		h.Set("Content-Type", p.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = io.Copy(part, strings.NewReader(p.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

// newUploadApp mounts the pipeline middleware for the given fields in front
// of a probe handler returning the accepted descriptors.
func newUploadApp(store storage.Storage, fields ...Field) *fiber.App {
	app := fiber.New(fiber.Config{
		// Large enough that per-file policy limits, not the server body cap,
		// decide rejection in these tests.
		BodyLimit: 64 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(apperr.Status(err)).JSON(fiber.Map{"message": apperr.MessageOf(err)})
		},
	})

	pipe := NewPipeline(store, "/uploads")
	app.Post("/upload", pipe.Fields(fields...), func(c *fiber.Ctx) error {
		out := map[string][]UploadedFile{}
		for _, f := range fields {
			out[f.Name] = Files(c, f.Name)
		}
		return c.JSON(out)
	})
	return app
}

func postUpload(t *testing.T, app *fiber.App, body *bytes.Buffer, contentType string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	return resp.StatusCode, decoded
}

func TestPipelineFields_AcceptsValidBatch(t *testing.T) {
	mStore := new(storeMocks.MockStorage)
	mStore.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "profiles/") && strings.HasSuffix(key, ".png")
	}), mock.Anything, storage.PutObjectOptions{Size: 4, ContentType: "image/png"}).
		Return(storage.ObjectInfo{}, nil)

	app := newUploadApp(mStore, Field{Name: "profileImage", MaxCount: 1, Type: TypeImage})

	body, ct := multipartBody(t, filePart{"profileImage", "My Pic!.png", "image/png", "data"})
	status, decoded := postUpload(t, app, body, ct)

	require.Equal(t, fiber.StatusOK, status)
	files := decoded["profileImage"].([]any)
	require.Len(t, files, 1)

	f := files[0].(map[string]any)
	assert.Equal(t, "My Pic!.png", f["original_name"])
	assert.Equal(t, "image/png", f["mime_type"])
	assert.Equal(t, float64(4), f["size"])

	// Sanitized stored name under the type's folder, reachable via the
	// public base.
	key := f["key"].(string)
	assert.True(t, strings.HasPrefix(key, "profiles/My_Pic_-"), "key %q", key)
	assert.Equal(t, "/uploads/"+key, f["url"])

	mStore.AssertExpectations(t)
}

func TestPipelineFields_DocumentsGoToDocumentsFolder(t *testing.T) {
	mStore := new(storeMocks.MockStorage)
	mStore.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "documents/")
	}), mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, nil).Twice()

	app := newUploadApp(mStore, Field{Name: "documents", MaxCount: 5, Type: TypeDocument})

	body, ct := multipartBody(t,
		filePart{"documents", "a.pdf", "application/pdf", "aaaa"},
		filePart{"documents", "b.txt", "text/plain", "bbbb"},
	)
	status, decoded := postUpload(t, app, body, ct)

	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, decoded["documents"], 2)
	mStore.AssertExpectations(t)
}

func TestPipelineFields_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		fields      []Field
		parts       []filePart
		wantMessage string
	}{
		{
			name:        "unexpected field",
			fields:      []Field{{Name: "profileImage", MaxCount: 1, Type: TypeImage}},
			parts:       []filePart{{"avatar", "pic.png", "image/png", "data"}},
			wantMessage: "Unexpected field: avatar",
		},
		{
			name:   "too many files",
			fields: []Field{{Name: "profileImage", MaxCount: 1, Type: TypeImage}},
			parts: []filePart{
				{"profileImage", "a.png", "image/png", "data"},
				{"profileImage", "b.png", "image/png", "data"},
			},
			wantMessage: "Unexpected file or too many files: profileImage",
		},
		{
			name:        "disallowed extension",
			fields:      []Field{{Name: "documents", MaxCount: 5, Type: TypeDocument}},
			parts:       []filePart{{"documents", "tool.exe", "application/pdf", "data"}},
			wantMessage: "documents: Only document files are allowed (pdf, doc, docx, xls, xlsx, txt, csv, ppt, pptx)",
		},
		{
			name:        "image mimetype mismatch",
			fields:      []Field{{Name: "profileImage", MaxCount: 1, Type: TypeImage}},
			parts:       []filePart{{"profileImage", "pic.png", "application/pdf", "data"}},
			wantMessage: "profileImage: Only image files are allowed (jpeg, jpg, png, gif, webp, svg)",
		},
		{
			name:        "oversized file",
			fields:      []Field{{Name: "profileImage", MaxCount: 1, Type: TypeImage}},
			parts:       []filePart{{"profileImage", "big.png", "image/png", strings.Repeat("x", 5*1024*1024+1)}},
			wantMessage: "File size exceeded the limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			app := newUploadApp(mStore, tt.fields...)

			body, ct := multipartBody(t, tt.parts...)
			status, decoded := postUpload(t, app, body, ct)

			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.Equal(t, tt.wantMessage, decoded["message"])
			// Rejected batches never touch storage.
			mStore.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestPipelineFields_OneBadFileFailsWholeBatch(t *testing.T) {
	mStore := new(storeMocks.MockStorage)
	app := newUploadApp(mStore, Field{Name: "documents", MaxCount: 5, Type: TypeDocument})

	body, ct := multipartBody(t,
		filePart{"documents", "good.pdf", "application/pdf", "data"},
		filePart{"documents", "bad.exe", "application/pdf", "data"},
	)
	status, _ := postUpload(t, app, body, ct)

	assert.Equal(t, fiber.StatusBadRequest, status)
	mStore.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPipelineFields_RollbackOnWriteFailure(t *testing.T) {
	mStore := new(storeMocks.MockStorage)

	// First write lands, second fails: the landed file must be deleted.
	mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{}, nil).Once()
	mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{}, errors.New("disk full")).Once()
	mStore.On("Delete", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "documents/")
	})).Return(nil).Once()

	app := newUploadApp(mStore, Field{Name: "documents", MaxCount: 5, Type: TypeDocument})

	body, ct := multipartBody(t,
		filePart{"documents", "a.pdf", "application/pdf", "aaaa"},
		filePart{"documents", "b.pdf", "application/pdf", "bbbb"},
	)
	status, _ := postUpload(t, app, body, ct)

	assert.Equal(t, fiber.StatusInternalServerError, status)
	mStore.AssertExpectations(t)
}

func TestPipelineFields_MisconfiguredFieldType(t *testing.T) {
	mStore := new(storeMocks.MockStorage)
	app := newUploadApp(mStore, Field{Name: "stuff", MaxCount: 1, Type: FileType("ARCHIVE")})

	body, ct := multipartBody(t, filePart{"stuff", "a.zip", "application/zip", "data"})
	status, _ := postUpload(t, app, body, ct)

	assert.Equal(t, fiber.StatusInternalServerError, status)
}

func TestGenerateName(t *testing.T) {
	name := generateName("Annual Report (final).PDF")

	assert.True(t, strings.HasPrefix(name, "Annual_Report__final_-"), "name %q", name)
	assert.True(t, strings.HasSuffix(name, ".pdf"), "extension must be lowercased: %q", name)

	// Collision resistance: two generations of the same input differ.
	assert.NotEqual(t, name, generateName("Annual Report (final).PDF"))
}

func TestKeyFromURL(t *testing.T) {
	assert.Equal(t, "profiles/me.png", KeyFromURL("/uploads", "/uploads/profiles/me.png"))
	assert.Equal(t, "profiles/me.png", KeyFromURL("/uploads/", "/uploads/profiles/me.png"))
}
