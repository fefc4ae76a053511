package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dharsanguruparan/pdfsummarizer/internal/model"
)

func TestIsAcceptable(t *testing.T) {
	v := New("application/pdf", ".pdf")
	cases := []struct {
		name string
		doc  model.Document
		want bool
	}{
		{"declared type", model.Document{Name: "scan", ContentType: "application/pdf"}, true},
		{"declared type with params", model.Document{Name: "scan", ContentType: "Application/PDF; charset=binary"}, true},
		{"extension only", model.Document{Name: "report.pdf"}, true},
		{"extension upper case", model.Document{Name: "REPORT.PDF", ContentType: "application/octet-stream"}, true},
		{"text file", model.Document{Name: "notes.txt", ContentType: "text/plain"}, false},
		{"pdf in the middle", model.Document{Name: "report.pdf.txt", ContentType: "text/plain"}, false},
		{"no name no type", model.Document{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, v.IsAcceptable(tc.doc))
		})
	}
}

func TestNewNormalizesExtension(t *testing.T) {
	v := New("", "PDF")
	assert.True(t, v.IsAcceptable(model.Document{Name: "a.pdf"}))
	assert.False(t, v.IsAcceptable(model.Document{Name: "a.docx", ContentType: "application/pdf"}))
}

func TestCheckReturnsValidationError(t *testing.T) {
	v := New("application/pdf", ".pdf")
	err := v.Check(model.Document{Name: "notes.txt", ContentType: "text/plain"})
	var verr *ValidationError
	if assert.True(t, errors.As(err, &verr)) {
		assert.Equal(t, "notes.txt", verr.Name)
	}
	assert.NoError(t, v.Check(model.Document{Name: "ok.pdf"}))
}
