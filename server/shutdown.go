package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RunUntilSignal serves until a termination signal arrives, then stops
// accepting connections and drains in-flight work for up to the grace
// period. A bind or serve error is returned immediately; a clean signal
// shutdown returns nil.
func RunUntilSignal(app *fiber.App, port string, grace time.Duration) error {
	// A signal can land before the listener is serving, when Shutdown is
	// a no-op. Gate the drain on the listener actually being attached so
	// the shutdown always tears the listener down.
	ready := make(chan struct{})
	var readyOnce sync.Once
	app.Hooks().OnListen(func(fiber.ListenData) error {
		readyOnce.Do(func() { close(ready) })
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- Listen(app, port)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		select {
		case err := <-errCh:
			// Bind failed in the window before the signal was handled
			return err
		case <-ready:
		}
		log.Printf("Termination signal received, draining for up to %v", grace)
		if err := app.ShutdownWithTimeout(grace); err != nil {
			log.Printf("Forced shutdown after grace period: %v", err)
		}
		// Listener returns once shutdown completes
		if err := <-errCh; err != nil {
			return err
		}
		log.Println("Server stopped")
		return nil
	}
}
