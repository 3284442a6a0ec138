package main

import (
	"log"
	"os"
	"syscall"
	"time"
)

// A tiny entrypoint that ensures sane env defaults and then execs the server binary.
func main() {
	if os.Getenv("PORT") == "" {
		// Default when the platform doesn't inject PORT
		_ = os.Setenv("PORT", "5000")
	}

	// Optional startup delay for orchestrator compatibility
	if delay := os.Getenv("STARTUP_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil && d > 0 {
			log.Printf("Applying startup delay: %v", d)
			time.Sleep(d)
		}
	}

	target := os.Getenv("SERVER_BINARY")
	if target == "" {
		target = "/app/slidesync"
	}
	if err := syscall.Exec(target, []string{target}, os.Environ()); err != nil {
		log.Fatalf("failed to exec %s: %v", target, err)
	}
}
