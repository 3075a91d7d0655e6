package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/message"

	"github.com/loomwork/loom/internal/httpx"
	"github.com/loomwork/loom/mount"
	"github.com/loomwork/loom/pages"
	"github.com/loomwork/loom/session"
	"github.com/loomwork/loom/settings"
)

// FilterConfig carries the deployment inputs for one filter.
type FilterConfig struct {
	// Name identifies the filter; it becomes the application key.
	Name string
	// InitParams are the filter-scoped init parameters.
	InitParams map[string]string
	// Context is the container-wide deployment context, shared when several
	// filters run in one process.
	Context *ContainerContext
	// Next handles requests no mount resolves. Nil means unresolved requests
	// get a plain 404.
	Next http.Handler
}

// Filter is the http.Handler that drives request cycles for one application.
type Filter struct {
	app     *Application
	name    string
	next    http.Handler
	handler http.Handler
	tracer  trace.Tracer
}

// NewFilter validates the config, attaches the application, and runs
// application init. The application must not be attached elsewhere.
func NewFilter(cfg FilterConfig, app *Application) (*Filter, error) {
	if app == nil {
		return nil, fmt.Errorf("web: application is required")
	}
	name := strings.TrimSpace(cfg.Name)
	if err := app.attach(name, cfg.InitParams, cfg.Context); err != nil {
		return nil, err
	}
	if err := app.internalInit(); err != nil {
		return nil, err
	}
	f := &Filter{
		app:    app,
		name:   name,
		next:   cfg.Next,
		tracer: otel.Tracer("loom/web"),
	}
	f.handler = httpx.Chain(http.HandlerFunc(f.serve), httpx.RequestID(), httpx.RecoverPanic())
	return f, nil
}

// Name returns the filter name.
func (f *Filter) Name() string {
	return f.name
}

// Application returns the application the filter drives.
func (f *Filter) Application() *Application {
	return f.app
}

// ServeHTTP handles one container request.
func (f *Filter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.handler.ServeHTTP(w, r)
}

// Close destroys the application, bounded by the context. The server owning
// the filter should stop accepting requests first.
func (f *Filter) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan struct{})
	go func() {
		f.app.internalDestroy()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("destroy application %s: %w", f.app.name, ctx.Err())
	}
}

func (f *Filter) serve(w http.ResponseWriter, r *http.Request) {
	if f.app.table.Ignored(r.URL.Path) {
		f.fallThrough(w, r)
		return
	}
	enc, ok := f.app.table.Lookup(r.URL.Path)
	if !ok {
		f.fallThrough(w, r)
		return
	}

	started := f.app.now()
	ctx, span := f.tracer.Start(r.Context(), "loom.request")
	defer span.End()
	ctx = WithApplication(ctx, f.app)
	r = r.WithContext(ctx)

	sess := f.resolveSession(w, r)
	r = r.WithContext(WithSession(r.Context(), sess))
	span.SetAttributes(attribute.String("loom.session_id", sess.ID()))

	// A redirect follow-up collects its buffered response here. Absent
	// buffers fall through to a fresh render of the same URL.
	if r.Method == http.MethodGet {
		if bufferID := r.URL.Query().Get(settings.BufferParam); bufferID != "" {
			if buffered, ok := f.app.PopBufferedResponse(sess.ID(), bufferID); ok {
				span.SetAttributes(attribute.String("loom.target", "buffer"))
				f.finishSession(w, r, sess)
				if err := buffered.WriteTo(w); err != nil {
					log.Printf("[%s] stream buffered response: %v", f.app.name, err)
				}
				f.logResponse(sess, "buffer:"+bufferID, started)
				return
			}
		}
	}

	target, err := enc.Decode(r)
	if err != nil {
		f.finishSession(w, r, sess)
		f.writeError(w, r, sess, err)
		return
	}
	span.SetAttributes(attribute.String("loom.target", target.Name()))
	if f.app.logger != nil {
		f.app.logger.EventTarget(sess.ID(), target.Name())
	}

	switch target := target.(type) {
	case mount.PageTarget:
		cycle := f.app.newRequestCycle(w, newRequest(r, sess))
		execErr := cycle.Execute(target)
		f.finishSession(w, r, sess)
		if execErr != nil {
			log.Printf("[%s] execute %s: %v", f.app.name, target.Name(), execErr)
			f.renderErrorPage(w, r, sess, http.StatusInternalServerError, f.app.errorPage(errorSlotInternal))
			break
		}
		if err := cycle.flush(); err != nil {
			log.Printf("[%s] flush %s: %v", f.app.name, target.Name(), err)
		}
	case mount.ResourceTarget:
		f.finishSession(w, r, sess)
		f.serveResource(w, r, sess, target)
	default:
		f.finishSession(w, r, sess)
		log.Printf("[%s] unhandled target type %T for %s", f.app.name, target, r.URL.Path)
		f.renderErrorPage(w, r, sess, http.StatusInternalServerError, f.app.errorPage(errorSlotInternal))
	}
	f.logResponse(sess, target.Name(), started)
}

// resolveSession returns the live session for the request, creating one when
// the cookie is absent, tampered, expired, or references a session the store
// no longer holds.
func (f *Filter) resolveSession(w http.ResponseWriter, r *http.Request) *session.Session {
	now := f.app.now()
	if id, ok := f.app.codec.Read(r); ok {
		sess, err := f.app.store.Get(r.Context(), id)
		if err == nil {
			sess.Touch(now)
			return sess
		}
		if !errors.Is(err, session.ErrNotFound) {
			log.Printf("[%s] load session: %v", f.app.name, err)
		}
	}

	locale, persist := f.app.locales.Resolve(r)
	sess := f.app.newSession(r, session.NewID(), now, locale)
	if persist {
		f.app.locales.SetLocaleCookie(w, locale)
	}
	if err := f.app.codec.Write(w, r, sess.ID()); err != nil {
		log.Printf("[%s] write session cookie: %v", f.app.name, err)
	}
	if f.app.logger != nil {
		f.app.logger.SessionCreated(sess.ID())
	}
	return sess
}

// finishSession settles session state before the response body is written:
// invalidated sessions are deleted and their cookie cleared, live ones are
// persisted.
func (f *Filter) finishSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	ctx := r.Context()
	if sess.Invalidated() {
		if err := f.app.store.Delete(ctx, sess.ID()); err != nil {
			log.Printf("[%s] delete session: %v", f.app.name, err)
		}
		f.app.codec.Clear(w, r)
		f.app.SessionDestroyed(sess.ID())
		return
	}
	if err := f.app.store.Put(ctx, sess); err != nil {
		log.Printf("[%s] save session: %v", f.app.name, err)
	}
}

// writeError maps a decode failure to its error page. Unresolvable targets
// fall through to the next handler.
func (f *Filter) writeError(w http.ResponseWriter, r *http.Request, sess *session.Session, err error) {
	switch {
	case errors.Is(err, mount.ErrNotFound):
		f.fallThrough(w, r)
	case errors.Is(err, mount.ErrAccessDenied):
		f.renderErrorPage(w, r, sess, http.StatusForbidden, f.app.errorPage(errorSlotAccessDenied))
	case errors.Is(err, mount.ErrPageExpired):
		f.renderErrorPage(w, r, sess, http.StatusGone, f.app.errorPage(errorSlotExpired))
	default:
		log.Printf("[%s] decode %s: %v", f.app.name, r.URL.Path, err)
		f.renderErrorPage(w, r, sess, http.StatusInternalServerError, f.app.errorPage(errorSlotInternal))
	}
}

func (f *Filter) renderErrorPage(w http.ResponseWriter, r *http.Request, sess *session.Session, status int, factory pages.Factory) {
	pctx := pages.Context{
		Path:    r.URL.Path,
		Params:  r.URL.Query(),
		AppName: f.app.name,
		Printer: message.NewPrinter(sess.Locale()),
	}
	component := factory(pctx)
	if component == nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	var buf bytes.Buffer
	if err := component.Render(r.Context(), &buf); err != nil {
		log.Printf("[%s] render error page: %v", f.app.name, err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", htmlContentType)
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("[%s] write error page: %v", f.app.name, err)
	}
}

// serveResource streams a shared resource to the response.
func (f *Filter) serveResource(w http.ResponseWriter, r *http.Request, sess *session.Session, target mount.ResourceTarget) {
	res, ok := f.app.resources.Get(target.Key)
	if !ok {
		f.fallThrough(w, r)
		return
	}
	content, err := res.Open()
	if err != nil {
		log.Printf("[%s] open resource %s: %v", f.app.name, target.Key, err)
		f.renderErrorPage(w, r, sess, http.StatusInternalServerError, f.app.errorPage(errorSlotInternal))
		return
	}
	defer content.Close()
	if contentType := res.ContentType(); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if _, err := io.Copy(w, content); err != nil {
		log.Printf("[%s] stream resource %s: %v", f.app.name, target.Key, err)
	}
}

func (f *Filter) fallThrough(w http.ResponseWriter, r *http.Request) {
	if f.next != nil {
		f.next.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

func (f *Filter) logResponse(sess *session.Session, target string, started time.Time) {
	if f.app.logger == nil {
		return
	}
	f.app.logger.ResponseTarget(sess.ID(), target)
	f.app.logger.RequestTime(f.app.now().Sub(started))
}
