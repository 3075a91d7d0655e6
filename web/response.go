package web

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
)

// BufferedResponse captures a complete response in memory so it can be
// stored and replayed on a later request. It implements http.ResponseWriter.
//
// Headers set during capture, cookies included, reach the browser when the
// buffer is streamed, not on the redirect that points at it.
type BufferedResponse struct {
	header      http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

// NewBufferedResponse returns an empty response buffer.
func NewBufferedResponse() *BufferedResponse {
	return &BufferedResponse{header: make(http.Header)}
}

// Header returns the captured header map.
func (b *BufferedResponse) Header() http.Header {
	return b.header
}

// WriteHeader captures the status code. Only the first call counts.
func (b *BufferedResponse) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.status = status
	b.wroteHeader = true
}

// Write captures body bytes, implying a 200 status when none was set.
func (b *BufferedResponse) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(p)
}

// Status returns the captured status code, defaulting to 200 OK.
func (b *BufferedResponse) Status() int {
	if !b.wroteHeader {
		return http.StatusOK
	}
	return b.status
}

// Len returns the captured body length in bytes.
func (b *BufferedResponse) Len() int {
	return b.body.Len()
}

// WriteTo streams the captured headers, status, and body to a live response.
func (b *BufferedResponse) WriteTo(w http.ResponseWriter) error {
	if w == nil {
		return fmt.Errorf("web: response writer is required")
	}
	for key, values := range b.header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(b.Status())
	if _, err := w.Write(b.body.Bytes()); err != nil {
		return fmt.Errorf("replay buffered response: %w", err)
	}
	return nil
}

// newBufferID generates the identifier a redirect carries to collect its
// buffered response.
func newBufferID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
