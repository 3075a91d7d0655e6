package web

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/loomwork/loom/internal/platform/branding"
	"github.com/loomwork/loom/mount"
	"github.com/loomwork/loom/pages"
	"github.com/loomwork/loom/requestlog"
	"github.com/loomwork/loom/resource"
	"github.com/loomwork/loom/responsebuffer"
	"github.com/loomwork/loom/session"
	"github.com/loomwork/loom/settings"
)

const (
	// ConfigurationEnv is the environment variable consulted first when
	// resolving the configuration mode.
	ConfigurationEnv = "LOOM_CONFIGURATION"
	// ConfigurationParam is the namespaced init parameter carrying the
	// configuration mode, checked on the filter before the container.
	ConfigurationParam = "loom.configuration"
	// configurationFallbackParam is the plain-named parameter checked after
	// the namespaced one.
	configurationFallbackParam = "configuration"
	// SourceFolderParam is the init parameter naming extra resource folders,
	// comma separated.
	SourceFolderParam = "sourceFolder"
)

// ErrNotAttached indicates filter-scoped state was accessed before a filter
// attached the application.
var ErrNotAttached = errors.New("web: application is not attached to a filter")

// SessionFactory builds the session object for a first-time visitor.
type SessionFactory func(r *http.Request, id string, now time.Time, locale language.Tag) *session.Session

// Application is a Loom application bound to at most one filter.
//
// Construct it with NewApplication, mount pages and resources, then hand it
// to NewFilter. Filter-scoped state (key, init parameters, settings) exists
// only after the filter attaches; accessing it earlier is an error.
type Application struct {
	name string

	table     *mount.Table
	buffers   *responsebuffer.Store[*BufferedResponse]
	resources *resource.Registry
	finder    *resource.Path

	store      session.Store
	cookie     session.CookieConfig
	codec      *session.CookieCodec
	locales    *session.LocaleResolver
	logger     requestlog.Logger
	newSession SessionFactory

	initHook    func(*Application) error
	destroyHook func(*Application)

	now func() time.Time

	mu          sync.RWMutex
	attached    bool
	destroyed   bool
	filterName  string
	initParams  map[string]string
	container   *ContainerContext
	settings    settings.Settings
	mode        settings.Mode
	attrPrefix  string
	watcher     *resource.Watcher
	janitorStop chan struct{}
	janitorDone chan struct{}
}

// Option configures an Application.
type Option func(*Application)

// WithName sets the application display name.
func WithName(name string) Option {
	return func(app *Application) {
		if name = strings.TrimSpace(name); name != "" {
			app.name = name
		}
	}
}

// WithInit sets the hook run once after the filter attaches, with settings
// and init parameters available. Returning an error fails filter creation.
func WithInit(hook func(*Application) error) Option {
	return func(app *Application) { app.initHook = hook }
}

// WithDestroy sets the hook run during teardown, while the session store is
// still usable.
func WithDestroy(hook func(*Application)) Option {
	return func(app *Application) { app.destroyHook = hook }
}

// WithSessionStore replaces the in-memory session store.
func WithSessionStore(store session.Store) Option {
	return func(app *Application) {
		if store != nil {
			app.store = store
		}
	}
}

// WithSessionCookie sets the session cookie configuration. Omitted fields
// are defaulted when the filter attaches; without a signing key a random
// per-process key is generated, so sessions do not survive restarts.
func WithSessionCookie(cfg session.CookieConfig) Option {
	return func(app *Application) { app.cookie = cfg }
}

// WithSessionFactory replaces how session objects are built for first-time
// visitors.
func WithSessionFactory(factory SessionFactory) Option {
	return func(app *Application) {
		if factory != nil {
			app.newSession = factory
		}
	}
}

// WithLocales sets the locales the application serves. The fallback is used
// when no supported locale matches the request.
func WithLocales(fallback language.Tag, others ...language.Tag) Option {
	return func(app *Application) {
		app.locales = session.NewLocaleResolver(fallback, others...)
	}
}

// WithRequestLogger installs a request logger. Without one, session and
// target events are not recorded.
func WithRequestLogger(logger requestlog.Logger) Option {
	return func(app *Application) { app.logger = logger }
}

// WithResourceFinder replaces the resource search path.
func WithResourceFinder(finder *resource.Path) Option {
	return func(app *Application) {
		if finder != nil {
			app.finder = finder
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(app *Application) {
		if now != nil {
			app.now = now
		}
	}
}

// NewApplication builds an application with the given options applied.
func NewApplication(opts ...Option) *Application {
	app := &Application{
		name:      branding.AppName,
		table:     mount.NewTable(),
		buffers:   &responsebuffer.Store[*BufferedResponse]{},
		resources: resource.NewRegistry(),
		finder:    resource.NewPath(),
		store:     session.NewMemoryStore(),
		locales:   session.NewLocaleResolver(language.English),
		now:       time.Now,
		newSession: func(_ *http.Request, id string, now time.Time, locale language.Tag) *session.Session {
			return session.New(id, now, locale)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}

// Name returns the application display name.
func (app *Application) Name() string {
	return app.name
}

// Key returns the key under which filter-scoped state is namespaced. The key
// is the owning filter's name, so it errors before a filter attaches.
func (app *Application) Key() (string, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if !app.attached {
		return "", ErrNotAttached
	}
	return app.filterName, nil
}

// InitParameter returns a filter init parameter. Absent keys read as empty;
// parameters exist only once a filter attaches.
func (app *Application) InitParameter(key string) (string, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if !app.attached {
		return "", ErrNotAttached
	}
	return app.initParams[key], nil
}

// Context returns the container context the filter was deployed with.
func (app *Application) Context() (*ContainerContext, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if !app.attached {
		return nil, ErrNotAttached
	}
	return app.container, nil
}

// SessionAttributePrefix returns the namespace prefix for session attributes
// written by this application. The prefix embeds the filter name, so it is
// available only after a filter attaches, and is cached on first use.
func (app *Application) SessionAttributePrefix() (string, error) {
	app.mu.Lock()
	defer app.mu.Unlock()
	if !app.attached {
		return "", ErrNotAttached
	}
	if app.attrPrefix == "" {
		app.attrPrefix = "loom:" + app.filterName + ":"
	}
	return app.attrPrefix, nil
}

// Settings returns the mutable settings groups. Settings are created when
// the filter attaches; tune them in the Init hook.
func (app *Application) Settings() (*settings.Settings, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if !app.attached {
		return nil, ErrNotAttached
	}
	return &app.settings, nil
}

// Mode reports the configuration mode. Before a filter attaches it resolves
// the mode fresh; afterwards it returns the mode pinned at attach time.
func (app *Application) Mode() settings.Mode {
	app.mu.RLock()
	mode := app.mode
	app.mu.RUnlock()
	if mode == "" {
		return app.ConfigurationType()
	}
	return mode
}

// ConfigurationType resolves the configuration mode. Resolution order: the
// LOOM_CONFIGURATION environment variable, the loom.configuration filter
// then container parameter, the configuration filter then container
// parameter, and finally development. Values compare case-insensitively and
// anything other than deployment is development.
func (app *Application) ConfigurationType() settings.Mode {
	if value, ok := os.LookupEnv(ConfigurationEnv); ok && strings.TrimSpace(value) != "" {
		return settings.ParseMode(value)
	}
	app.mu.RLock()
	params := app.initParams
	container := app.container
	app.mu.RUnlock()
	for _, key := range []string{ConfigurationParam, configurationFallbackParam} {
		if value := params[key]; strings.TrimSpace(value) != "" {
			return settings.ParseMode(value)
		}
		if value := container.InitParameter(key); strings.TrimSpace(value) != "" {
			return settings.ParseMode(value)
		}
	}
	return settings.Development
}

// Mount registers an encoder in the application's mount table.
func (app *Application) Mount(enc mount.Encoder) error {
	return app.table.Mount(enc)
}

// MountPage mounts a single page factory at path.
func (app *Application) MountPage(path string, page pages.Factory, opts ...mount.PageEncoderOption) error {
	enc, err := mount.NewPageEncoder(path, page, opts...)
	if err != nil {
		return err
	}
	return app.table.Mount(enc)
}

// MountPageGroup mounts a named page registry under path. The guard, when
// non-nil, is evaluated for every page in the group.
func (app *Application) MountPageGroup(path string, group *mount.PageGroup, guard mount.Guard) error {
	enc, err := mount.NewPageGroupEncoder(path, group, guard)
	if err != nil {
		return err
	}
	return app.table.Mount(enc)
}

// MountResource mounts the shared resource key at path. The resource itself
// is registered through SharedResources.
func (app *Application) MountResource(path, key string) error {
	enc, err := mount.NewResourceEncoder(path, key)
	if err != nil {
		return err
	}
	return app.table.Mount(enc)
}

// Unmount removes whatever is mounted at path. It reports whether a mount
// was removed.
func (app *Application) Unmount(path string) bool {
	return app.table.Unmount(path)
}

// AddIgnoreMountPath excludes a path subtree from mount resolution. Requests
// under it always fall through to the filter's next handler.
func (app *Application) AddIgnoreMountPath(path string) {
	app.table.AddIgnorePath(path)
}

// PageURL resolves the mounted URL for a named page.
func (app *Application) PageURL(name string) (string, bool) {
	return app.table.PageURL(name)
}

// ResourceURL resolves the mounted URL for a shared resource key.
func (app *Application) ResourceURL(key string) (string, bool) {
	return app.table.ResourceURL(key)
}

// SharedResources returns the application's shared resource registry.
func (app *Application) SharedResources() *resource.Registry {
	return app.resources
}

// ResourceFinder returns the search path resources resolve through.
func (app *Application) ResourceFinder() *resource.Path {
	return app.finder
}

// SessionStore returns the session store.
func (app *Application) SessionStore() session.Store {
	return app.store
}

// RequestLogger returns the request logger, or nil when none is installed.
func (app *Application) RequestLogger() requestlog.Logger {
	return app.logger
}

// AddBufferedResponse stores a rendered response awaiting the follow-up
// request of a redirect.
func (app *Application) AddBufferedResponse(sessionID, bufferID string, response *BufferedResponse) {
	app.buffers.Add(sessionID, bufferID, response)
}

// PopBufferedResponse removes and returns the buffered response stored under
// the given ids. It reports false when no such buffer exists.
func (app *Application) PopBufferedResponse(sessionID, bufferID string) (*BufferedResponse, bool) {
	return app.buffers.Pop(sessionID, bufferID)
}

// SessionDestroyed releases per-session state after a session ends: its
// buffered responses are dropped and the request logger is notified.
func (app *Application) SessionDestroyed(sessionID string) {
	app.buffers.DropSession(sessionID)
	if app.logger != nil {
		app.logger.SessionDestroyed(sessionID)
	}
}

// errorPage returns the configured factory for the given error page slot,
// falling back to the built-in pages before settings exist.
func (app *Application) errorPage(slot errorSlot) pages.Factory {
	app.mu.RLock()
	defer app.mu.RUnlock()
	var factory pages.Factory
	switch slot {
	case errorSlotExpired:
		factory = app.settings.Application.PageExpiredPage
		if factory == nil {
			factory = pages.PageExpired
		}
	case errorSlotAccessDenied:
		factory = app.settings.Application.AccessDeniedPage
		if factory == nil {
			factory = pages.AccessDenied
		}
	default:
		factory = app.settings.Application.InternalErrorPage
		if factory == nil {
			factory = pages.InternalError
		}
	}
	return factory
}

type errorSlot int

const (
	errorSlotInternal errorSlot = iota
	errorSlotExpired
	errorSlotAccessDenied
)

// sessionTTL returns the session lifetime, shared by cookie expiry and the
// expired-session sweep.
func (app *Application) sessionTTL() time.Duration {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.cookie.TTL
}
