package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBufferedResponseDefaults(t *testing.T) {
	t.Parallel()

	b := NewBufferedResponse()
	if b.Status() != http.StatusOK {
		t.Fatalf("Status = %d, want %d", b.Status(), http.StatusOK)
	}
	if b.Len() != 0 {
		t.Fatalf("Len = %d, want 0", b.Len())
	}
}

func TestBufferedResponseFirstStatusWins(t *testing.T) {
	t.Parallel()

	b := NewBufferedResponse()
	b.WriteHeader(http.StatusCreated)
	b.WriteHeader(http.StatusInternalServerError)
	if b.Status() != http.StatusCreated {
		t.Fatalf("Status = %d, want %d", b.Status(), http.StatusCreated)
	}
}

func TestBufferedResponseWriteImpliesOK(t *testing.T) {
	t.Parallel()

	b := NewBufferedResponse()
	if _, err := b.Write([]byte("<p>hi</p>")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if b.Status() != http.StatusOK {
		t.Fatalf("Status = %d, want %d", b.Status(), http.StatusOK)
	}
	if b.Len() != len("<p>hi</p>") {
		t.Fatalf("Len = %d, want %d", b.Len(), len("<p>hi</p>"))
	}
}

func TestBufferedResponseWriteTo(t *testing.T) {
	t.Parallel()

	b := NewBufferedResponse()
	b.Header().Set("Content-Type", "text/html; charset=utf-8")
	b.Header().Add("Set-Cookie", "a=1")
	b.Header().Add("Set-Cookie", "b=2")
	b.WriteHeader(http.StatusTeapot)
	if _, err := b.Write([]byte("<p>brewing</p>")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rec := httptest.NewRecorder()
	if err := b.WriteTo(rec); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	res := rec.Result()
	if res.StatusCode != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusTeapot)
	}
	if got := res.Header.Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Fatalf("Content-Type = %q", got)
	}
	if cookies := res.Header.Values("Set-Cookie"); len(cookies) != 2 {
		t.Fatalf("Set-Cookie values = %v, want both", cookies)
	}
	if body := rec.Body.String(); body != "<p>brewing</p>" {
		t.Fatalf("body = %q, want the captured body", body)
	}
}

func TestBufferedResponseWriteToNilWriter(t *testing.T) {
	t.Parallel()

	if err := NewBufferedResponse().WriteTo(nil); err == nil {
		t.Fatal("expected error for nil writer")
	}
}

func TestNewBufferID(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		id := newBufferID()
		if len(id) != 16 {
			t.Fatalf("id length = %d, want 16", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate buffer id %q", id)
		}
		seen[id] = true
	}
}
