package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"slidesync/services"
	"slidesync/utils"
)

// DecksHandler handles deck CRUD requests
type DecksHandler struct {
	store *services.DeckStore
}

// NewDecksHandler creates a new decks handler
func NewDecksHandler(store *services.DeckStore) *DecksHandler {
	return &DecksHandler{store: store}
}

// UpdateDeckRequest is the JSON body accepted by UpdateDeck. The stored
// version counter is always advanced server-side.
type UpdateDeckRequest struct {
	Title  string           `json:"title"`
	Slides []services.Slide `json:"slides"`
}

// CreateDeck creates a starter deck and redirects the client to it
func (h *DecksHandler) CreateDeck(c *fiber.Ctx) error {
	deck := services.NewDeck(uuid.New().String())

	saved, err := h.store.Upsert(c.Context(), deck.ID, deck.Title, deck.Slides, 0)
	if err != nil {
		utils.LogRequestError(c, "DECK_CREATE", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create deck"})
	}

	return c.Redirect("/?deck="+saved.ID, fiber.StatusFound)
}

// GetDeck returns a deck by id, 404 when it does not exist
func (h *DecksHandler) GetDeck(c *fiber.Ctx) error {
	deckID := c.Params("id")

	deck, err := h.store.Get(c.Context(), deckID)
	if err != nil {
		if errors.Is(err, services.ErrDeckNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Deck not found"})
		}
		utils.LogRequestError(c, "DECK_GET", err, "deck_id", deckID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch deck"})
	}

	return c.JSON(deck)
}

// UpdateDeck upserts a deck from the request body and returns the saved
// document including its assigned version
func (h *DecksHandler) UpdateDeck(c *fiber.Ctx) error {
	deckID := c.Params("id")

	var req UpdateDeckRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	saved, err := h.store.Upsert(c.Context(), deckID, req.Title, req.Slides, 0)
	if err != nil {
		utils.LogRequestError(c, "DECK_UPDATE", err, "deck_id", deckID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save deck"})
	}

	return c.JSON(saved)
}

// ListDecks returns deck summaries ordered by most recently updated
func (h *DecksHandler) ListDecks(c *fiber.Ctx) error {
	summaries, err := h.store.List(c.Context())
	if err != nil {
		utils.LogRequestError(c, "DECK_LIST", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list decks"})
	}

	return c.JSON(summaries)
}
