package server

import (
	"context"
	"log"
	"net"
	"syscall"

	"github.com/gofiber/fiber/v2"
)

// Listen binds the single listening socket and serves on it. It attempts
// an IPv6 dual-stack bind first so both address families reach the same
// port, then falls back to plain IPv4. A failed bind is returned to the
// caller, which treats it as fatal.
func Listen(app *fiber.App, port string) error {
	addrIPv6 := "[::]:" + port

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			if network != "tcp6" {
				return nil
			}

			var sockErr error
			if controlErr := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_IPV6, syscall.IPV6_V6ONLY, 0)
			}); controlErr != nil {
				return controlErr
			}
			return sockErr
		},
	}

	ln6, err := lc.Listen(context.Background(), "tcp6", addrIPv6)
	if err == nil {
		log.Printf("HTTP server listening on %s (dual-stack)", addrIPv6)
		return app.Listener(ln6)
	}

	addrIPv4 := "0.0.0.0:" + port
	log.Printf("IPv6 bind on %s failed (%v), falling back to %s", addrIPv6, err, addrIPv4)

	ln4, err := net.Listen("tcp4", addrIPv4)
	if err != nil {
		log.Printf("IPv4 bind on %s failed: %v", addrIPv4, err)
		return err
	}

	log.Printf("HTTP server listening on %s", addrIPv4)
	return app.Listener(ln4)
}
