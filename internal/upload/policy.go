package upload

import (
	"path/filepath"
	"strings"

	"userapi/internal/apperr"
)

// FileType tags the closed set of logical upload categories. Every declared
// upload field names exactly one FileType; the type decides the acceptance
// policy and the destination subfolder.
type FileType string

const (
	TypeImage    FileType = "IMAGE"
	TypeDocument FileType = "DOCUMENT"
	TypeVideo    FileType = "VIDEO"
	TypeAll      FileType = "ALL"
)

// Policy is the closed rule set governing acceptance of one logical field:
// an extension whitelist, a mimetype whitelist (empty accepts any), a byte
// cap and the rejection message shown to clients.
type Policy struct {
	Extensions   map[string]struct{}
	MimeTypes    []string
	MaxSize      int64
	ErrorMessage string
}

func extSet(exts ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		s[e] = struct{}{}
	}
	return s
}

// policies is the full type table. Values mirror the product rules: images
// up to 5MB, documents up to 10MB, videos up to 50MB; ALL accepts any of
// the above extensions with no mimetype restriction.
var policies = map[FileType]Policy{
	TypeImage: {
		Extensions: extSet("jpeg", "jpg", "png", "gif", "webp", "svg"),
		MimeTypes: []string{
			"image/jpeg", "image/jpg", "image/png", "image/gif",
			"image/webp", "image/svg+xml",
		},
		MaxSize:      5 * 1024 * 1024,
		ErrorMessage: "Only image files are allowed (jpeg, jpg, png, gif, webp, svg)",
	},
	TypeDocument: {
		Extensions: extSet("pdf", "doc", "docx", "xls", "xlsx", "txt", "csv", "ppt", "pptx"),
		MimeTypes: []string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/vnd.ms-excel",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"text/plain",
			"text/csv",
			"application/vnd.ms-powerpoint",
			"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		},
		MaxSize:      10 * 1024 * 1024,
		ErrorMessage: "Only document files are allowed (pdf, doc, docx, xls, xlsx, txt, csv, ppt, pptx)",
	},
	TypeVideo: {
		Extensions: extSet("mp4", "avi", "mov", "wmv", "flv", "mkv", "webm"),
		MimeTypes: []string{
			"video/mp4", "video/x-msvideo", "video/quicktime", "video/x-ms-wmv",
			"video/x-flv", "video/x-matroska", "video/webm",
		},
		MaxSize:      50 * 1024 * 1024,
		ErrorMessage: "Only video files are allowed (mp4, avi, mov, wmv, flv, mkv, webm)",
	},
	TypeAll: {
		Extensions: extSet(
			"jpeg", "jpg", "png", "gif", "webp", "svg",
			"pdf", "doc", "docx", "xls", "xlsx", "txt", "csv", "ppt", "pptx",
			"mp4", "avi", "mov", "wmv", "flv", "mkv", "webm",
		),
		MimeTypes:    nil,
		MaxSize:      50 * 1024 * 1024,
		ErrorMessage: "Invalid file type",
	},
}

// resolvePolicy maps a declared field to its policy. Resolution happens once
// per field when the pipeline is configured, not per inspected file.
func resolvePolicy(field Field) (Policy, error) {
	p, ok := policies[field.Type]
	if !ok {
		return Policy{}, apperr.Internal("invalid file type configuration for field: %s", field.Name)
	}
	return p, nil
}

// validate checks filename extension and declared mimetype against the
// policy. Both must pass: an allowed extension with a disallowed mimetype is
// rejected, and vice versa.
func (p Policy) validate(filename, mimetype string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if _, ok := p.Extensions[ext]; !ok {
		return false
	}
	if len(p.MimeTypes) == 0 {
		return true
	}
	for _, m := range p.MimeTypes {
		if m == mimetype {
			return true
		}
	}
	return false
}
