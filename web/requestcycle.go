package web

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/text/message"

	"github.com/loomwork/loom/internal/autolink"
	"github.com/loomwork/loom/internal/httpx"
	"github.com/loomwork/loom/mount"
	"github.com/loomwork/loom/pages"
	"github.com/loomwork/loom/session"
	"github.com/loomwork/loom/settings"
)

const htmlContentType = "text/html; charset=utf-8"

// RequestCycle processes one request against one application.
//
// A cycle stages its outcome, either a document or a redirect, and the
// filter writes it out after session state is settled. With response
// buffering disabled the document streams during Execute instead, so
// session mutations made while rendering cannot reach the cookie and
// automatic link rewriting is skipped.
type RequestCycle struct {
	app      *Application
	request  *Request
	response http.ResponseWriter
	printer  *message.Printer

	staged   *BufferedResponse
	redirect string
	streamed bool
}

func (app *Application) newRequestCycle(w http.ResponseWriter, req *Request) *RequestCycle {
	return &RequestCycle{
		app:      app,
		request:  req,
		response: w,
		printer:  message.NewPrinter(req.Locale()),
	}
}

// Request returns the request the cycle processes.
func (c *RequestCycle) Request() *Request {
	return c.request
}

// Session returns the session resolved for the request.
func (c *RequestCycle) Session() *session.Session {
	return c.request.Session()
}

// Application returns the owning application.
func (c *RequestCycle) Application() *Application {
	return c.app
}

// Redirect stages a redirect to location, written when the cycle flushes.
// The last staged redirect wins.
func (c *RequestCycle) Redirect(location string) {
	c.redirect = location
}

// Execute renders the page target per the configured render strategy. Safe
// methods render in place; other methods follow the redirect strategy so a
// reload does not repeat the action.
func (c *RequestCycle) Execute(target mount.PageTarget) error {
	method := c.request.HTTP().Method
	safe := method == http.MethodGet || method == http.MethodHead
	strategy := c.app.settings.RequestCycle.RenderStrategy
	if safe || strategy == settings.OnePassRender {
		return c.renderNow(target)
	}
	if strategy == settings.RedirectToRender {
		c.Redirect(c.request.Path())
		return nil
	}
	return c.renderToBuffer(target)
}

// flush writes the staged outcome to the container response.
func (c *RequestCycle) flush() error {
	if c.redirect != "" {
		httpx.WriteRedirect(c.response, c.request.HTTP(), c.redirect)
		return nil
	}
	if c.staged != nil {
		return c.staged.WriteTo(c.response)
	}
	if c.streamed {
		return nil
	}
	return fmt.Errorf("request cycle produced no response for %s", c.request.Path())
}

// renderNow renders the target into this response.
func (c *RequestCycle) renderNow(target mount.PageTarget) error {
	if !c.app.settings.RequestCycle.BufferResponse {
		component := target.Factory(c.pageContext())
		if component == nil {
			return fmt.Errorf("page %s returned no component", target.Page)
		}
		c.response.Header().Set("Content-Type", htmlContentType)
		c.streamed = true
		ctx := WithApplication(c.request.HTTP().Context(), c.app)
		if err := component.Render(ctx, c.response); err != nil {
			return fmt.Errorf("render page %s: %w", target.Page, err)
		}
		return nil
	}
	markup, err := c.render(target)
	if err != nil {
		return err
	}
	staged := NewBufferedResponse()
	staged.Header().Set("Content-Type", htmlContentType)
	_, _ = staged.Write(markup)
	c.staged = staged
	return nil
}

// renderToBuffer renders the target into a stored buffer and stages a
// redirect whose follow-up request collects it.
func (c *RequestCycle) renderToBuffer(target mount.PageTarget) error {
	markup, err := c.render(target)
	if err != nil {
		return err
	}
	buffered := NewBufferedResponse()
	buffered.Header().Set("Content-Type", htmlContentType)
	_, _ = buffered.Write(markup)
	bufferID := newBufferID()
	c.app.AddBufferedResponse(c.Session().ID(), bufferID, buffered)
	c.Redirect(c.request.Path() + "?" + settings.BufferParam + "=" + url.QueryEscape(bufferID))
	return nil
}

// render produces the final page markup, link rewriting included.
func (c *RequestCycle) render(target mount.PageTarget) ([]byte, error) {
	component := target.Factory(c.pageContext())
	if component == nil {
		return nil, fmt.Errorf("page %s returned no component", target.Page)
	}
	var buf bytes.Buffer
	ctx := WithApplication(c.request.HTTP().Context(), c.app)
	if err := component.Render(ctx, &buf); err != nil {
		return nil, fmt.Errorf("render page %s: %w", target.Page, err)
	}
	markup := buf.Bytes()
	if c.app.settings.Application.AutoLinkPages {
		rewritten, err := autolink.Rewrite(markup, c.app.table)
		if err != nil {
			return nil, fmt.Errorf("rewrite links for page %s: %w", target.Page, err)
		}
		markup = rewritten
	}
	return markup, nil
}

func (c *RequestCycle) pageContext() pages.Context {
	return pages.Context{
		Path:    c.request.Path(),
		Params:  c.request.Params(),
		AppName: c.app.name,
		Printer: c.printer,
	}
}
