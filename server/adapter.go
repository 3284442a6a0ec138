package server

import (
	"bytes"
	"io"
	"net/http"
	neturl "net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FiberResponseWriter adapts Fiber's context to the http.ResponseWriter
// interface so standard net/http handlers (e.g. promhttp) can be mounted.
type FiberResponseWriter struct {
	ctx    *fiber.Ctx
	status int
	header http.Header
}

// NewFiberResponseWriter creates a new FiberResponseWriter adapter
func NewFiberResponseWriter(ctx *fiber.Ctx) *FiberResponseWriter {
	return &FiberResponseWriter{
		ctx:    ctx,
		status: 200,
		header: make(http.Header),
	}
}

// Header returns the header map that will be sent by WriteHeader
func (w *FiberResponseWriter) Header() http.Header {
	return w.header
}

// Write writes the data to the connection as part of an HTTP reply
func (w *FiberResponseWriter) Write(data []byte) (int, error) {
	for key, values := range w.header {
		for _, value := range values {
			w.ctx.Set(key, value)
		}
	}

	if w.status != 200 {
		w.ctx.Status(w.status)
	}

	return w.ctx.Write(data)
}

// WriteHeader sends an HTTP response header with the provided status code
func (w *FiberResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
}

// MetricsHandler mounts the Prometheus exposition handler behind the
// response writer adapter.
func MetricsHandler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		req := &http.Request{
			Method:     c.Method(),
			URL:        &neturl.URL{Path: c.Path(), RawQuery: string(c.Request().URI().QueryString())},
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader(c.Body())),
			Host:       string(c.Request().Host()),
			RequestURI: c.OriginalURL(),
		}

		c.Request().Header.VisitAll(func(key, value []byte) {
			req.Header.Add(string(key), string(value))
		})

		handler.ServeHTTP(NewFiberResponseWriter(c), req)
		return nil
	}
}
