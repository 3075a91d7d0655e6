// Package pages defines the page contract used by the web integration layer.
//
// A page is anything that can render a document for a request. The framework
// does not model components or markup; it hands a request-scoped Context to a
// Factory and renders whatever component comes back.
package pages

import (
	"net/url"

	"github.com/a-h/templ"
	"golang.org/x/text/message"
)

// Context carries request-scoped data into a page factory.
type Context struct {
	// Path is the request path the page is rendered for.
	Path string
	// Params holds decoded request parameters.
	Params url.Values
	// AppName is the owning application's name.
	AppName string
	// Printer localizes page copy for the session locale.
	Printer *message.Printer
}

// Factory produces a renderable page component for a request.
type Factory func(Context) templ.Component

// Sprintf localizes format through the context printer, falling back to the
// plain format string when no printer is set.
func (c Context) Sprintf(format string, args ...any) string {
	if c.Printer == nil {
		return message.NewPrinter(message.MatchLanguage("en")).Sprintf(format, args...)
	}
	return c.Printer.Sprintf(format, args...)
}
