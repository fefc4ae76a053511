// Package model contains the struct definitions shared by the session,
// processing, and storage packages.
package model

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Source yields the raw bytes of a document. Each call to Open starts a fresh
// read from the beginning.
type Source interface {
	Open() (io.ReadCloser, error)
}

// Discarder is implemented by sources that hold resources (temp files) which
// must be released once the controller lets go of the document.
type Discarder interface {
	Discard() error
}

// FileSource reads a document from a path on disk.
type FileSource string

// Open opens the file for reading.
func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// TempFileSource is a FileSource that deletes its file when discarded. The
// HTTP surface spools uploads into one of these.
type TempFileSource string

// Open opens the temp file for reading.
func (t TempFileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(t))
}

// Discard removes the temp file.
func (t TempFileSource) Discard() error {
	if err := os.Remove(string(t)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// BytesSource serves an in-memory payload.
type BytesSource []byte

// Open returns a reader over the bytes.
func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Document is one candidate file: its bytes plus the declared media type,
// display name, and size. Values are never mutated after intake.
type Document struct {
	Name        string
	ContentType string
	Size        int64
	Source      Source
}

// SizeMB renders the size in megabytes with two decimals, e.g. "1.25 MB".
func (d Document) SizeMB() string {
	return fmt.Sprintf("%.2f MB", float64(d.Size)/1024/1024)
}

// Info strips the source so the document can be serialized.
func (d Document) Info() DocumentInfo {
	return DocumentInfo{Name: d.Name, ContentType: d.ContentType, Size: d.Size, SizeMB: d.SizeMB()}
}

// DocumentInfo is the JSON view of a held document.
type DocumentInfo struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	SizeMB      string `json:"sizeMB"`
}

// NewFileDocument stats path and builds a Document backed by it. The declared
// type is left empty; callers that know it set ContentType themselves.
func NewFileDocument(path string) (Document, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Document{}, fmt.Errorf("stat document: %w", err)
	}
	if st.IsDir() {
		return Document{}, fmt.Errorf("stat document: %s is a directory", path)
	}
	return Document{
		Name:   st.Name(),
		Size:   st.Size(),
		Source: FileSource(path),
	}, nil
}
