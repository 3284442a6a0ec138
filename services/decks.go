package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"slidesync/database"
	"slidesync/metrics"
	"slidesync/utils"
)

// ErrDeckNotFound is returned when the requested deck does not exist
var ErrDeckNotFound = errors.New("deck not found")

const (
	defaultDeckTitle  = "Untitled deck"
	defaultBackground = "#ffffff"
	defaultFontFamily = "system-ui, Segoe UI, Roboto, sans-serif"
	defaultTextColor  = "#111111"
)

// SlideObject is a positioned element on a slide. Only text objects are
// produced server-side; clients may round-trip richer kinds.
type SlideObject struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Rotation   float64 `json:"rotation"`
	Text       string  `json:"text,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty"`
	Color      string  `json:"color,omitempty"`
}

// LegacyBlock is the pre-objects slide element shape, still present in old
// rows. It is converted to SlideObject on read and never written back.
type LegacyBlock struct {
	Type string `json:"type"`
	HTML string `json:"html"`
}

// Slide is one page of a deck
type Slide struct {
	ID         string        `json:"id"`
	Title      string        `json:"title,omitempty"`
	Background string        `json:"background,omitempty"`
	Objects    []SlideObject `json:"objects"`
	Blocks     []LegacyBlock `json:"blocks,omitempty"`
}

// Deck is the full presentation document
type Deck struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Slides  []Slide `json:"slides"`
	Version int     `json:"version"`
}

// DeckSummary is the listing shape returned by List
type DeckSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updated_at"`
}

// deckContent is the JSONB payload stored in decks.content
type deckContent struct {
	Title   string  `json:"title"`
	Slides  []Slide `json:"slides"`
	Version int     `json:"version"`
}

// NewDeck builds a starter deck with a single editable text object. An
// empty id gets a fresh UUID.
func NewDeck(id string) *Deck {
	if id == "" {
		id = uuid.New().String()
	}
	return &Deck{
		ID:    id,
		Title: defaultDeckTitle,
		Slides: []Slide{
			{
				ID:         uuid.New().String(),
				Title:      "Slide 1",
				Background: defaultBackground,
				Objects: []SlideObject{
					{
						ID:         uuid.New().String(),
						Type:       "text",
						X:          120,
						Y:          120,
						Width:      520,
						Height:     70,
						Rotation:   0,
						Text:       "Double-click (or select) to edit",
						FontSize:   32,
						FontFamily: defaultFontFamily,
						Color:      defaultTextColor,
					},
				},
			},
		},
	}
}

// migrateLegacySlides converts slides still stored in the old "blocks"
// shape into the objects shape. A slide is legacy when its objects key was
// absent entirely; an explicitly empty objects list is left alone.
func migrateLegacySlides(slides []Slide) []Slide {
	for i := range slides {
		s := &slides[i]
		if s.Objects != nil {
			continue
		}
		if s.Background == "" {
			s.Background = defaultBackground
		}
		objs := make([]SlideObject, 0, len(s.Blocks))
		for _, b := range s.Blocks {
			if b.Type != "text" {
				continue
			}
			text := utils.StripHTML(b.HTML)
			if text == "" {
				text = "Text"
			}
			objs = append(objs, SlideObject{
				ID:         uuid.New().String(),
				Type:       "text",
				X:          100,
				Y:          100,
				Width:      500,
				Height:     80,
				Rotation:   0,
				Text:       text,
				FontSize:   28,
				FontFamily: defaultFontFamily,
				Color:      defaultTextColor,
			})
		}
		s.Objects = objs
		s.Blocks = nil
	}
	return slides
}

// DeckStore persists decks in PostgreSQL with a Redis read-through cache.
// Cache failures degrade to database reads and are never fatal.
type DeckStore struct {
	db       database.Database
	rdb      *redis.Client
	cacheTTL time.Duration
}

// NewDeckStore creates a deck store. rdb may be nil to disable caching.
func NewDeckStore(db database.Database, rdb *redis.Client, cacheTTL time.Duration) *DeckStore {
	return &DeckStore{
		db:       db,
		rdb:      rdb,
		cacheTTL: cacheTTL,
	}
}

func deckCacheKey(id string) string {
	return "deck:" + id
}

// Get fetches a deck by id, applying the legacy slide migration on read.
// Returns ErrDeckNotFound when no row exists.
func (s *DeckStore) Get(ctx context.Context, id string) (*Deck, error) {
	if deck := s.cacheGet(ctx, id); deck != nil {
		return deck, nil
	}

	var (
		deckID  string
		title   string
		content []byte
	)
	err := s.db.QueryRow(ctx, `SELECT id, title, content FROM decks WHERE id = $1`, id).
		Scan(&deckID, &title, &content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeckNotFound
		}
		return nil, fmt.Errorf("failed to fetch deck %s: %w", id, err)
	}

	var stored deckContent
	if err := json.Unmarshal(content, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode deck %s content: %w", id, err)
	}

	deck := &Deck{
		ID:      deckID,
		Title:   title,
		Slides:  migrateLegacySlides(stored.Slides),
		Version: stored.Version,
	}
	s.cacheSet(ctx, deck)
	return deck, nil
}

// Upsert inserts or replaces a deck. A zero version is assigned the
// previous stored version plus one (1 for a brand-new deck).
func (s *DeckStore) Upsert(ctx context.Context, id, title string, slides []Slide, version int) (*Deck, error) {
	if title == "" {
		title = defaultDeckTitle
	}
	if slides == nil {
		slides = []Slide{}
	}
	if version == 0 {
		next, err := s.nextVersion(ctx, id)
		if err != nil {
			return nil, err
		}
		version = next
	}

	payload, err := json.Marshal(deckContent{
		Title:   title,
		Slides:  slides,
		Version: version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode deck %s content: %w", id, err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO decks (id, title, content)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			updated_at = NOW()`,
		id, title, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert deck %s: %w", id, err)
	}

	metrics.IncrementDeckOperation("upsert")
	s.cacheInvalidate(ctx, id)

	return &Deck{
		ID:      id,
		Title:   title,
		Slides:  slides,
		Version: version,
	}, nil
}

// GetOrCreate returns the deck, creating and persisting a starter deck
// when it does not exist yet. Used when a client joins an unknown deck.
func (s *DeckStore) GetOrCreate(ctx context.Context, id string) (*Deck, error) {
	deck, err := s.Get(ctx, id)
	if err == nil {
		return deck, nil
	}
	if !errors.Is(err, ErrDeckNotFound) {
		return nil, err
	}

	fresh := NewDeck(id)
	saved, err := s.Upsert(ctx, fresh.ID, fresh.Title, fresh.Slides, 0)
	if err != nil {
		return nil, err
	}
	metrics.IncrementDeckOperation("create")
	return saved, nil
}

// List returns deck summaries ordered by most recently updated
func (s *DeckStore) List(ctx context.Context) ([]DeckSummary, error) {
	rows, err := s.db.Query(ctx, `SELECT id, title, updated_at FROM decks ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	defer rows.Close()

	summaries := []DeckSummary{}
	for rows.Next() {
		var (
			id        string
			title     string
			updatedAt time.Time
		)
		if err := rows.Scan(&id, &title, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		summaries = append(summaries, DeckSummary{
			ID:        id,
			Title:     title,
			UpdatedAt: utils.FormatUTC(updatedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read deck rows: %w", err)
	}
	return summaries, nil
}

// nextVersion reads the stored version counter for a deck
func (s *DeckStore) nextVersion(ctx context.Context, id string) (int, error) {
	var stored *int
	err := s.db.QueryRow(ctx, `SELECT (content->>'version')::int FROM decks WHERE id = $1`, id).
		Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 1, nil
		}
		return 0, fmt.Errorf("failed to read deck %s version: %w", id, err)
	}
	if stored == nil {
		return 1, nil
	}
	return *stored + 1, nil
}

func (s *DeckStore) cacheGet(ctx context.Context, id string) *Deck {
	if s.rdb == nil || s.cacheTTL <= 0 {
		return nil
	}
	data, err := s.rdb.Get(ctx, deckCacheKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			utils.LogError("DECK_CACHE_GET", err, "deck_id", id)
		}
		metrics.IncrementDeckCache("miss")
		return nil
	}
	var deck Deck
	if err := json.Unmarshal(data, &deck); err != nil {
		metrics.IncrementDeckCache("miss")
		return nil
	}
	metrics.IncrementDeckCache("hit")
	return &deck
}

func (s *DeckStore) cacheSet(ctx context.Context, deck *Deck) {
	if s.rdb == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(deck)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, deckCacheKey(deck.ID), data, s.cacheTTL).Err(); err != nil {
		utils.LogError("DECK_CACHE_SET", err, "deck_id", deck.ID)
	}
}

func (s *DeckStore) cacheInvalidate(ctx context.Context, id string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, deckCacheKey(id)).Err(); err != nil {
		utils.LogError("DECK_CACHE_DEL", err, "deck_id", id)
	}
}
