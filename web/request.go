package web

import (
	"net/http"
	"net/url"

	"golang.org/x/text/language"

	"github.com/loomwork/loom/internal/httpx"
	"github.com/loomwork/loom/session"
)

// Request pairs the container request with the framework state resolved for
// it.
type Request struct {
	httpRequest *http.Request
	session     *session.Session
}

func newRequest(r *http.Request, sess *session.Session) *Request {
	return &Request{httpRequest: r, session: sess}
}

// HTTP returns the underlying container request.
func (r *Request) HTTP() *http.Request {
	return r.httpRequest
}

// Path returns the request path.
func (r *Request) Path() string {
	return r.httpRequest.URL.Path
}

// Params returns the merged query and form parameters.
func (r *Request) Params() url.Values {
	if r.httpRequest.Form == nil {
		_ = r.httpRequest.ParseForm()
	}
	return r.httpRequest.Form
}

// IsFragment reports whether the request asks for a page fragment rather
// than a full document.
func (r *Request) IsFragment() bool {
	return httpx.IsHTMXRequest(r.httpRequest)
}

// Session returns the session resolved for this request.
func (r *Request) Session() *session.Session {
	return r.session
}

// Locale returns the session locale.
func (r *Request) Locale() language.Tag {
	return r.session.Locale()
}
