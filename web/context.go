package web

import (
	"context"
	"errors"
	"io/fs"

	"github.com/loomwork/loom/session"
)

// ErrNoApplication indicates a context without an attached application.
var ErrNoApplication = errors.New("web: no application in context")

// applicationContextKey is the context key for the serving application.
type applicationContextKey struct{}

// WithApplication stores the application in a context. The filter attaches
// the application to every request context it handles.
func WithApplication(ctx context.Context, app *Application) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, applicationContextKey{}, app)
}

// FromContext returns the application attached to the context. Code running
// outside a handled request gets ErrNoApplication.
func FromContext(ctx context.Context) (*Application, error) {
	if ctx == nil {
		return nil, ErrNoApplication
	}
	app, ok := ctx.Value(applicationContextKey{}).(*Application)
	if !ok || app == nil {
		return nil, ErrNoApplication
	}
	return app, nil
}

// sessionContextKey is the context key for the request session.
type sessionContextKey struct{}

// WithSession stores the request session in a context. The filter attaches
// the resolved session before rendering, so page components can reach it.
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the session attached to the context, or nil
// outside a handled request.
func SessionFromContext(ctx context.Context) *session.Session {
	if ctx == nil {
		return nil
	}
	sess, _ := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess
}

// ContainerContext is the deployment-wide context shared by every filter in
// one process: container init parameters plus the deployed filesystem.
type ContainerContext struct {
	initParams map[string]string
	files      fs.FS
}

// NewContainerContext builds a container context. The init parameter map is
// copied.
func NewContainerContext(initParams map[string]string, files fs.FS) *ContainerContext {
	params := make(map[string]string, len(initParams))
	for key, value := range initParams {
		params[key] = value
	}
	return &ContainerContext{initParams: params, files: files}
}

// InitParameter returns a container-scoped init parameter. Absent keys read
// as empty.
func (c *ContainerContext) InitParameter(key string) string {
	if c == nil {
		return ""
	}
	return c.initParams[key]
}

// Files returns the deployed filesystem, or nil when the deployment carries
// no files.
func (c *ContainerContext) Files() fs.FS {
	if c == nil {
		return nil
	}
	return c.files
}
