package upload

import (
	"fmt"
	"log"
	"math/rand"
	"mime/multipart"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"userapi/internal/apperr"
	"userapi/internal/storage"
)

// FilesKey is the ctx locals key under which accepted files are stored, as
// map[string][]UploadedFile keyed by field name.
const FilesKey = "uploaded_files"

// Field declares one accepted multipart field for a request.
type Field struct {
	Name     string
	MaxCount int
	Type     FileType
}

// UploadedFile describes one validated, persisted upload. It is owned by the
// pipeline until a service decides to persist its reference or delete the
// underlying file.
type UploadedFile struct {
	Field        string `json:"field"`
	Key          string `json:"key"`
	URL          string `json:"url"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type"`
}

// Pipeline turns a declared field set into a Fiber middleware that receives
// a multipart request, validates every file against its field policy,
// persists accepted files and exposes their descriptors downstream. A batch
// either lands completely or not at all: any rejection deletes every file
// the request already wrote.
type Pipeline struct {
	store      storage.Storage
	publicBase string
}

// NewPipeline builds a pipeline writing through store. publicBase is the URL
// prefix under which stored keys are publicly reachable (e.g. "/uploads").
func NewPipeline(store storage.Storage, publicBase string) *Pipeline {
	return &Pipeline{store: store, publicBase: strings.TrimSuffix(publicBase, "/")}
}

// resolvedField is a field with its policy resolved ahead of request time.
type resolvedField struct {
	Field
	policy Policy
}

// Fields returns the middleware for one declared field set. Policies are
// resolved here, once; a misconfigured field type turns every request into
// an Internal failure rather than panicking mid-upload.
func (p *Pipeline) Fields(fields ...Field) fiber.Handler {
	resolved := make(map[string]resolvedField, len(fields))
	var maxSize int64
	var configErr error
	for _, f := range fields {
		pol, err := resolvePolicy(f)
		if err != nil {
			configErr = err
			break
		}
		if pol.MaxSize > maxSize {
			maxSize = pol.MaxSize
		}
		resolved[f.Name] = resolvedField{Field: f, policy: pol}
	}

	return func(c *fiber.Ctx) error {
		if configErr != nil {
			return configErr
		}

		form, err := c.MultipartForm()
		if err != nil {
			return apperr.BadRequest("Upload error: %v", err)
		}

		// Validate the whole batch before writing anything.
		for name, headers := range form.File {
			rf, ok := resolved[name]
			if !ok {
				return apperr.BadRequest("Unexpected field: %s", name)
			}
			if rf.MaxCount > 0 && len(headers) > rf.MaxCount {
				return apperr.BadRequest("Unexpected file or too many files: %s", name)
			}
			for _, fh := range headers {
				if fh.Size > maxSize || fh.Size > rf.policy.MaxSize {
					return apperr.BadRequest("File size exceeded the limit")
				}
				if !rf.policy.validate(fh.Filename, contentType(fh)) {
					return apperr.BadRequest("%s: %s", rf.Name, rf.policy.ErrorMessage)
				}
			}
		}

		accepted := make(map[string][]UploadedFile, len(form.File))
		var written []string
		for name, headers := range form.File {
			rf := resolved[name]
			for _, fh := range headers {
				key := filepath.ToSlash(filepath.Join(destDir(rf.Field), generateName(fh.Filename)))
				if err := p.write(c, key, fh); err != nil {
					p.cleanup(c, written)
					return err
				}
				written = append(written, key)
				accepted[name] = append(accepted[name], UploadedFile{
					Field:        name,
					Key:          key,
					URL:          p.publicBase + "/" + key,
					OriginalName: fh.Filename,
					Size:         fh.Size,
					MimeType:     contentType(fh),
				})
			}
		}

		c.Locals(FilesKey, accepted)
		return c.Next()
	}
}

func (p *Pipeline) write(c *fiber.Ctx, key string, fh *multipart.FileHeader) error {
	f, err := fh.Open()
	if err != nil {
		return apperr.Wrap(err, "cannot open uploaded file")
	}
	defer f.Close()

	_, err = p.store.Put(c.UserContext(), key, f, storage.PutObjectOptions{
		Size:        fh.Size,
		ContentType: contentType(fh),
	})
	if err != nil {
		return apperr.Wrap(err, "failed to store uploaded file")
	}
	return nil
}

// cleanup removes every already-written file of a failed batch. Failures are
// logged only; the batch error is what propagates.
func (p *Pipeline) cleanup(c *fiber.Ctx, keys []string) {
	for _, key := range keys {
		if err := p.store.Delete(c.UserContext(), key); err != nil {
			log.Printf("failed to clean up rejected upload %s: %v", key, err)
		}
	}
}

// Files returns the accepted descriptors for one field, or nil when the
// request carried none.
func Files(c *fiber.Ctx, field string) []UploadedFile {
	m, ok := c.Locals(FilesKey).(map[string][]UploadedFile)
	if !ok {
		return nil
	}
	return m[field]
}

// destDir picks the destination subfolder from the field's classified type.
// Deterministic and side-effect free.
func destDir(f Field) string {
	switch f.Type {
	case TypeImage:
		if f.Name == "profileImage" || f.Name == "avatar" {
			return "profiles"
		}
		return "images"
	case TypeVideo:
		return "videos"
	case TypeDocument:
		return "documents"
	default:
		return "others"
	}
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// generateName builds a collision-resistant stored filename: the sanitized
// original base, a timestamp and a random component, then the original
// extension. Concurrent uploads of identically named files never collide.
func generateName(original string) string {
	ext := filepath.Ext(original)
	base := strings.TrimSuffix(filepath.Base(original), ext)
	sanitized := nonAlphanumeric.ReplaceAllString(base, "_")
	suffix := fmt.Sprintf("%d-%d", time.Now().UnixNano(), rand.Int63n(1e9))
	return sanitized + "-" + suffix + strings.ToLower(ext)
}

// KeyFromURL recovers the storage key from a persisted public URL. URLs, not
// keys, are what account records store.
func KeyFromURL(publicBase, url string) string {
	return strings.TrimPrefix(strings.TrimPrefix(url, strings.TrimSuffix(publicBase, "/")), "/")
}

func contentType(fh *multipart.FileHeader) string {
	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
