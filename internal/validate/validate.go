// Package validate decides whether a candidate document may be submitted.
package validate

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/dharsanguruparan/pdfsummarizer/internal/model"
)

// ValidationError reports a document of the wrong type. It is recoverable:
// the user picks another file.
type ValidationError struct {
	Name        string
	ContentType string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("unsupported document %q (type %q)", e.Name, e.ContentType)
}

// Validator accepts documents by declared media type or file extension.
type Validator struct {
	mediaType string
	extension string
}

// New builds a Validator. The extension may be given with or without its dot.
func New(mediaType, extension string) *Validator {
	ext := strings.ToLower(strings.TrimSpace(extension))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &Validator{
		mediaType: strings.ToLower(strings.TrimSpace(mediaType)),
		extension: ext,
	}
}

// IsAcceptable reports whether doc's declared type or extension matches.
func (v *Validator) IsAcceptable(doc model.Document) bool {
	if v.mediaType != "" && baseMediaType(doc.ContentType) == v.mediaType {
		return true
	}
	if v.extension != "" && strings.ToLower(filepath.Ext(doc.Name)) == v.extension {
		return true
	}
	return false
}

// Check is IsAcceptable with an error for the rejection case.
func (v *Validator) Check(doc model.Document) error {
	if v.IsAcceptable(doc) {
		return nil
	}
	return &ValidationError{Name: doc.Name, ContentType: doc.ContentType}
}

// baseMediaType drops parameters such as "; charset=binary".
func baseMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
