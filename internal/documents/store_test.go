package documents

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caredraft/internal/storage"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newDoc(id string, minutes int) *Document {
	deadline := baseTime.Add(48 * time.Hour)
	return &Document{
		ID:             id,
		OrganizationID: "org-1",
		Title:          "Home care tender " + id,
		Status:         StatusDraft,
		Content:        "We deliver domiciliary care across the region.",
		Deadline:       &deadline,
		CreatedAt:      baseTime,
		UpdatedAt:      baseTime.Add(time.Duration(minutes) * time.Minute),
	}
}

// runStoreSuite exercises the behaviour every Store backend must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("CreateGet", func(t *testing.T) {
		s := newStore(t)
		doc := newDoc("doc-1", 0)
		require.NoError(t, s.Create(ctx, doc))

		got, err := s.Get(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, doc.Title, got.Title)
		assert.Equal(t, StatusDraft, got.Status)
		assert.Equal(t, "org-1", got.OrganizationID)
		require.NotNil(t, got.Deadline)
		assert.True(t, doc.Deadline.Equal(*got.Deadline))
		assert.True(t, doc.UpdatedAt.Equal(got.UpdatedAt))
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("CreateRejectsInvalid", func(t *testing.T) {
		s := newStore(t)
		assert.Error(t, s.Create(ctx, &Document{ID: "x", Status: StatusDraft}))
		assert.Error(t, s.Create(ctx, &Document{ID: "x", Title: "t", Status: "archived"}))
	})

	t.Run("UpdateReplacesFields", func(t *testing.T) {
		s := newStore(t)
		doc := newDoc("doc-1", 0)
		require.NoError(t, s.Create(ctx, doc))

		doc.Title = "Revised"
		doc.Status = StatusInReview
		doc.Deadline = nil
		doc.UpdatedAt = baseTime.Add(time.Hour)
		require.NoError(t, s.Update(ctx, doc))

		got, err := s.Get(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "Revised", got.Title)
		assert.Equal(t, StatusInReview, got.Status)
		assert.Nil(t, got.Deadline)
		assert.True(t, baseTime.Equal(got.CreatedAt))

		assert.ErrorIs(t, s.Update(ctx, newDoc("missing", 0)), ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, newDoc("doc-1", 0)))
		require.NoError(t, s.Delete(ctx, "doc-1"))
		assert.ErrorIs(t, s.Delete(ctx, "doc-1"), ErrNotFound)
		_, err := s.Get(ctx, "doc-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListOrderAndLimit", func(t *testing.T) {
		s := newStore(t)
		for i, id := range []string{"a", "b", "c", "d"} {
			require.NoError(t, s.Create(ctx, newDoc(id, i)))
		}
		// Same updated_at as "d": ties break on id desc.
		require.NoError(t, s.Create(ctx, newDoc("e", 3)))

		got, err := s.List(ctx, ListParams{Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"e", "d", "c"}, ids(got))

		all, err := s.List(ctx, ListParams{})
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})

	t.Run("ListFilters", func(t *testing.T) {
		s := newStore(t)

		soon := baseTime.Add(2 * time.Hour)
		late := baseTime.Add(200 * time.Hour)

		d1 := newDoc("d1", 1)
		d1.Title = "Mental health support"
		d1.Deadline = &soon
		d2 := newDoc("d2", 2)
		d2.Status = StatusSubmitted
		d2.Content = "Includes MENTAL health outreach"
		d2.Deadline = &soon
		d3 := newDoc("d3", 3)
		d3.Deadline = &late
		d4 := newDoc("d4", 4)
		d4.Deadline = nil
		d4.Title = "100% coverage_plan"
		for _, d := range []*Document{d1, d2, d3, d4} {
			require.NoError(t, s.Create(ctx, d))
		}

		got, err := s.List(ctx, ListParams{Query: "mental health"})
		require.NoError(t, err)
		assert.Equal(t, []string{"d2", "d1"}, ids(got))

		got, err = s.List(ctx, ListParams{Query: "mental", Statuses: []Status{StatusDraft}})
		require.NoError(t, err)
		assert.Equal(t, []string{"d1"}, ids(got))

		due := baseTime.Add(72 * time.Hour)
		got, err = s.List(ctx, ListParams{Statuses: OpenStatuses, DueBefore: &due})
		require.NoError(t, err)
		assert.Equal(t, []string{"d1"}, ids(got))

		got, err = s.List(ctx, ListParams{Query: "100%"})
		require.NoError(t, err)
		assert.Equal(t, []string{"d4"}, ids(got), "wildcards in the query are literal")

		got, err = s.List(ctx, ListParams{Query: "no such words"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func ids(docs []*Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(*testing.T) Store { return NewMemoryStore() })
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		st, err := storage.NewSQLite(storage.SQLiteConfig{Path: filepath.Join(t.TempDir(), "documents.db")})
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })

		s, err := NewSQLiteStore(st.SQLDB())
		require.NoError(t, err)
		return s
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	doc := newDoc("doc-1", 0)
	require.NoError(t, s.Create(ctx, doc))

	doc.Title = "mutated after create"
	got, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated after create", got.Title)

	*got.Deadline = got.Deadline.Add(time.Hour)
	again, _ := s.Get(ctx, "doc-1")
	assert.False(t, again.Deadline.Equal(*got.Deadline))
}

func TestNormalizeLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 20}, {-5, 20}, {1, 1}, {100, 100}, {101, 100}, {50, 50},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeLimit(tt.in))
		})
	}
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusDraft.Valid())
	assert.False(t, Status("archived").Valid())
	assert.True(t, StatusSubmitted.Final())
	assert.True(t, StatusExpired.Final())
	assert.False(t, StatusInReview.Final())
}

func TestNew(t *testing.T) {
	res, err := New(context.Background(), storage.Config{Type: storage.TypeMemory})
	require.NoError(t, err)
	_, ok := res.Store.(*MemoryStore)
	assert.True(t, ok)
	assert.Nil(t, res.Storage)
	assert.NoError(t, res.Close())

	res, err = New(context.Background(), storage.Config{
		Type:   storage.TypeSQLite,
		SQLite: storage.SQLiteConfig{Path: filepath.Join(t.TempDir(), "docs.db")},
	})
	require.NoError(t, err)
	_, ok = res.Store.(*SQLiteStore)
	assert.True(t, ok)
	assert.NoError(t, res.Close())

	_, err = New(context.Background(), storage.Config{Type: "oracle"})
	assert.Error(t, err)
}
