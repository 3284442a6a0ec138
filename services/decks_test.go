package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =====================
// Mock Implementations
// =====================

// MockDB represents a mock database connection for unit tests
type MockDB struct {
	mock.Mock
}

func (m *MockDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	callArgs := append([]interface{}{ctx, sql}, args...)
	mockArgs := m.Called(callArgs...)
	return mockArgs.Get(0).(pgx.Row)
}

func (m *MockDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	callArgs := append([]interface{}{ctx, sql}, args...)
	mockArgs := m.Called(callArgs...)
	return mockArgs.Get(0).(pgx.Rows), mockArgs.Error(1)
}

func (m *MockDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	callArgs := append([]interface{}{ctx, sql}, args...)
	mockArgs := m.Called(callArgs...)
	return pgconn.NewCommandTag(mockArgs.String(0)), mockArgs.Error(1)
}

func (m *MockDB) Begin(ctx context.Context) (pgx.Tx, error) {
	mockArgs := m.Called(ctx)
	return nil, mockArgs.Error(1)
}

// fakeRow runs a closure so tests can populate scan destinations
type fakeRow struct {
	scan func(dest ...interface{}) error
}

func (r *fakeRow) Scan(dest ...interface{}) error {
	return r.scan(dest...)
}

// fakeRows serves fixed row data through the pgx.Rows interface
type fakeRows struct {
	data    [][]interface{}
	pos     int
	scanErr error
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.data)
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.pos-1]
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = row[i].(string)
		case *time.Time:
			*v = row[i].(time.Time)
		}
	}
	return nil
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]interface{}, error)               { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

// =====================
// Deck model tests
// =====================

func TestNewDeck(t *testing.T) {
	t.Run("generates id when empty", func(t *testing.T) {
		deck := NewDeck("")
		assert.NotEmpty(t, deck.ID)
	})

	t.Run("keeps provided id", func(t *testing.T) {
		deck := NewDeck("deck-1")
		assert.Equal(t, "deck-1", deck.ID)
	})

	t.Run("starter content", func(t *testing.T) {
		deck := NewDeck("deck-1")
		assert.Equal(t, "Untitled deck", deck.Title)
		require.Len(t, deck.Slides, 1)

		slide := deck.Slides[0]
		assert.Equal(t, "Slide 1", slide.Title)
		assert.Equal(t, "#ffffff", slide.Background)
		require.Len(t, slide.Objects, 1)

		obj := slide.Objects[0]
		assert.Equal(t, "text", obj.Type)
		assert.Equal(t, "Double-click (or select) to edit", obj.Text)
		assert.Equal(t, float64(32), obj.FontSize)
	})
}

func TestMigrateLegacySlides(t *testing.T) {
	t.Run("converts text blocks to objects", func(t *testing.T) {
		slides := []Slide{
			{
				ID: "s1",
				Blocks: []LegacyBlock{
					{Type: "text", HTML: "<p>Old <b>content</b></p>"},
					{Type: "image", HTML: "ignored"},
				},
			},
		}

		migrated := migrateLegacySlides(slides)

		require.Len(t, migrated, 1)
		s := migrated[0]
		assert.Nil(t, s.Blocks)
		assert.Equal(t, "#ffffff", s.Background)
		require.Len(t, s.Objects, 1)
		assert.Equal(t, "Old content", s.Objects[0].Text)
		assert.Equal(t, "text", s.Objects[0].Type)
		assert.Equal(t, float64(28), s.Objects[0].FontSize)
	})

	t.Run("empty block text gets placeholder", func(t *testing.T) {
		slides := []Slide{{ID: "s1", Blocks: []LegacyBlock{{Type: "text", HTML: "<br/>"}}}}
		migrated := migrateLegacySlides(slides)
		require.Len(t, migrated[0].Objects, 1)
		assert.Equal(t, "Text", migrated[0].Objects[0].Text)
	})

	t.Run("leaves modern slides alone", func(t *testing.T) {
		slides := []Slide{
			{
				ID:         "s1",
				Background: "#000000",
				Objects:    []SlideObject{{ID: "o1", Type: "text", Text: "kept"}},
			},
		}
		migrated := migrateLegacySlides(slides)
		assert.Equal(t, "#000000", migrated[0].Background)
		assert.Equal(t, "kept", migrated[0].Objects[0].Text)
	})

	t.Run("explicitly empty objects list is not legacy", func(t *testing.T) {
		slides := []Slide{{ID: "s1", Objects: []SlideObject{}, Blocks: []LegacyBlock{{Type: "text", HTML: "x"}}}}
		migrated := migrateLegacySlides(slides)
		assert.Empty(t, migrated[0].Objects)
	})
}

// =====================
// DeckStore tests
// =====================

func TestDeckStoreGet(t *testing.T) {
	t.Run("returns ErrDeckNotFound for missing deck", func(t *testing.T) {
		db := new(MockDB)
		db.On("QueryRow", mock.Anything, mock.Anything, "missing").Return(&fakeRow{
			scan: func(dest ...interface{}) error { return pgx.ErrNoRows },
		})

		store := NewDeckStore(db, nil, 0)
		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrDeckNotFound)
	})

	t.Run("decodes stored content and migrates legacy slides", func(t *testing.T) {
		content, err := json.Marshal(map[string]interface{}{
			"title":   "My deck",
			"version": 3,
			"slides": []map[string]interface{}{
				{
					"id":     "s1",
					"blocks": []map[string]string{{"type": "text", "html": "<h1>Legacy</h1>"}},
				},
			},
		})
		require.NoError(t, err)

		db := new(MockDB)
		db.On("QueryRow", mock.Anything, mock.Anything, "d1").Return(&fakeRow{
			scan: func(dest ...interface{}) error {
				*(dest[0].(*string)) = "d1"
				*(dest[1].(*string)) = "My deck"
				*(dest[2].(*[]byte)) = content
				return nil
			},
		})

		store := NewDeckStore(db, nil, 0)
		deck, err := store.Get(context.Background(), "d1")
		require.NoError(t, err)

		assert.Equal(t, "d1", deck.ID)
		assert.Equal(t, "My deck", deck.Title)
		assert.Equal(t, 3, deck.Version)
		require.Len(t, deck.Slides, 1)
		require.Len(t, deck.Slides[0].Objects, 1)
		assert.Equal(t, "Legacy", deck.Slides[0].Objects[0].Text)
		assert.Nil(t, deck.Slides[0].Blocks)
	})
}

func TestDeckStoreUpsert(t *testing.T) {
	t.Run("first save gets version 1", func(t *testing.T) {
		db := new(MockDB)
		db.On("QueryRow", mock.Anything, mock.Anything, "d1").Return(&fakeRow{
			scan: func(dest ...interface{}) error { return pgx.ErrNoRows },
		})
		db.On("Exec", mock.Anything, mock.Anything, "d1", "Deck", mock.Anything).
			Return("INSERT 0 1", nil)

		store := NewDeckStore(db, nil, 0)
		saved, err := store.Upsert(context.Background(), "d1", "Deck", []Slide{}, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, saved.Version)
		db.AssertExpectations(t)
	})

	t.Run("subsequent save increments stored version", func(t *testing.T) {
		db := new(MockDB)
		db.On("QueryRow", mock.Anything, mock.Anything, "d1").Return(&fakeRow{
			scan: func(dest ...interface{}) error {
				v := 4
				*(dest[0].(**int)) = &v
				return nil
			},
		})
		db.On("Exec", mock.Anything, mock.Anything, "d1", "Deck", mock.Anything).
			Return("INSERT 0 1", nil)

		store := NewDeckStore(db, nil, 0)
		saved, err := store.Upsert(context.Background(), "d1", "Deck", nil, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, saved.Version)
	})

	t.Run("explicit version skips the counter lookup", func(t *testing.T) {
		db := new(MockDB)
		db.On("Exec", mock.Anything, mock.Anything, "d1", "Deck", mock.Anything).
			Return("INSERT 0 1", nil)

		store := NewDeckStore(db, nil, 0)
		saved, err := store.Upsert(context.Background(), "d1", "Deck", nil, 7)
		require.NoError(t, err)
		assert.Equal(t, 7, saved.Version)
		db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("empty title defaults", func(t *testing.T) {
		db := new(MockDB)
		db.On("Exec", mock.Anything, mock.Anything, "d1", "Untitled deck", mock.Anything).
			Return("INSERT 0 1", nil)

		store := NewDeckStore(db, nil, 0)
		saved, err := store.Upsert(context.Background(), "d1", "", nil, 2)
		require.NoError(t, err)
		assert.Equal(t, "Untitled deck", saved.Title)
	})
}

func TestDeckStoreGetOrCreate(t *testing.T) {
	t.Run("creates starter deck when missing", func(t *testing.T) {
		db := new(MockDB)
		// Get misses, then the version lookup misses too
		db.On("QueryRow", mock.Anything, mock.Anything, "fresh").Return(&fakeRow{
			scan: func(dest ...interface{}) error { return pgx.ErrNoRows },
		})
		db.On("Exec", mock.Anything, mock.Anything, "fresh", "Untitled deck", mock.Anything).
			Return("INSERT 0 1", nil)

		store := NewDeckStore(db, nil, 0)
		deck, err := store.GetOrCreate(context.Background(), "fresh")
		require.NoError(t, err)
		assert.Equal(t, "fresh", deck.ID)
		assert.Equal(t, 1, deck.Version)
		require.Len(t, deck.Slides, 1)
	})
}

func TestDeckStoreList(t *testing.T) {
	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	db := new(MockDB)
	db.On("Query", mock.Anything, mock.Anything).Return(&fakeRows{
		data: [][]interface{}{
			{"d2", "Newest", updated},
			{"d1", "Older", updated.Add(-time.Hour)},
		},
	}, nil)

	store := NewDeckStore(db, nil, 0)
	summaries, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "d2", summaries[0].ID)
	assert.Equal(t, "2026-01-02T03:04:05Z", summaries[0].UpdatedAt)
}

func TestDeckStoreListScanFailure(t *testing.T) {
	db := new(MockDB)
	db.On("Query", mock.Anything, mock.Anything).Return(&fakeRows{
		data:    [][]interface{}{{"d1", "Deck", time.Now()}},
		scanErr: errors.New("cannot decode updated_at"),
	}, nil)

	store := NewDeckStore(db, nil, 0)
	// A row that fails to scan must surface an error, not silently vanish
	// from the listing
	_, err := store.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to scan deck row")
}
