package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/pdfsummarizer/internal/model"
)

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	rec := &model.SubmissionRecord{ID: "a", Sequence: 1, FileName: "a.pdf", Status: model.SubmissionInFlight}
	require.NoError(t, m.Save(ctx, rec))
	first, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, first.CreatedAt.IsZero())

	rec.Status = model.SubmissionFailed
	rec.Detail = "HTTP 500"
	require.NoError(t, m.Save(ctx, rec))

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionFailed, got.Status)
	assert.Equal(t, "HTTP 500", got.Detail)
	assert.Equal(t, first.CreatedAt, got.CreatedAt)

	// Mutating the copy leaves the store alone.
	got.Status = model.SubmissionSucceeded
	again, _ := m.Get(ctx, "a")
	assert.Equal(t, model.SubmissionFailed, again.Status)
}

func TestSaveKeepsArchiveKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Save(ctx, &model.SubmissionRecord{ID: "b", Status: model.SubmissionSucceeded, ArchiveKey: "summaries/b/b.md"}))
	require.NoError(t, m.Save(ctx, &model.SubmissionRecord{ID: "b", Status: model.SubmissionSucceeded}))

	got, err := m.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "summaries/b/b.md", got.ArchiveKey)
}

func TestGetMissing(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
