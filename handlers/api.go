package handlers

import (
	"time"

	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"slidesync/database"
	"slidesync/services"
	"slidesync/websocket"
)

// API is the application handler injected into the server at startup. It
// owns the deck store, the collaboration hub, and all route registration.
type API struct {
	decks  *DecksHandler
	health *HealthHandler
	hub    *websocket.Hub
	store  *services.DeckStore
}

// NewAPI wires the deck service and its collaborators into a single
// injectable handler
func NewAPI(db database.Database, rdb *redis.Client, store *services.DeckStore, hub *websocket.Hub, startTime time.Time) *API {
	return &API{
		decks:  NewDecksHandler(store),
		health: NewHealthHandler(db, rdb, startTime),
		hub:    hub,
		store:  store,
	}
}

// Register mounts all application routes on the Fiber app
func (a *API) Register(app *fiber.App) {
	app.Get("/healthz", a.health.Healthz)

	app.Get("/new", a.decks.CreateDeck)

	api := app.Group("/api")
	api.Get("/decks", a.decks.ListDecks)
	api.Get("/deck/:id", a.decks.GetDeck)
	api.Post("/deck/:id", a.decks.UpdateDeck)

	// WebSocket endpoint for deck room collaboration
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/decks", fiberws.New(func(c *fiberws.Conn) {
		websocket.HandleConnection(c, a.hub, a.store)
	}))
}
