package mount

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/loomwork/loom/pages"
)

// PageTarget resolves to a named page rendered by a factory.
type PageTarget struct {
	// Page is the mounted page name.
	Page string
	// Factory renders the page.
	Factory pages.Factory
	// Params holds the decoded request parameters.
	Params url.Values
}

// Name identifies the target for request logging.
func (t PageTarget) Name() string { return "page:" + t.Page }

// ResourceTarget resolves to a shared resource by key.
type ResourceTarget struct {
	// Key is the shared resource key.
	Key string
}

// Name identifies the target for request logging.
func (t ResourceTarget) Name() string { return "resource:" + t.Key }

// Guard authorizes a decoded request before its target is served. Returning
// ErrAccessDenied or ErrPageExpired selects the matching error page; any
// other error is treated as an internal failure.
type Guard func(r *http.Request) error

// PageEncoderOption configures a page encoder.
type PageEncoderOption func(*PageEncoder)

// WithPageName overrides the page name derived from the mount path.
func WithPageName(name string) PageEncoderOption {
	return func(e *PageEncoder) { e.name = name }
}

// WithGuard adds an authorization guard evaluated on every decode.
func WithGuard(guard Guard) PageEncoderOption {
	return func(e *PageEncoder) { e.guard = guard }
}

// PageEncoder mounts a single page factory at a path. The page name defaults
// to the mount path with slashes collapsed to dots ("/shop/cart" becomes
// "shop.cart").
type PageEncoder struct {
	path    string
	name    string
	factory pages.Factory
	guard   Guard
}

// NewPageEncoder builds a page encoder for the given path and factory.
func NewPageEncoder(path string, factory pages.Factory, opts ...PageEncoderOption) (*PageEncoder, error) {
	if factory == nil {
		return nil, fmt.Errorf("mount %q: page factory is required", path)
	}
	if err := ValidatePath(path); err != nil {
		return nil, fmt.Errorf("mount %q: %w", path, err)
	}
	enc := &PageEncoder{path: path, factory: factory, name: pageNameForPath(path)}
	for _, opt := range opts {
		opt(enc)
	}
	return enc, nil
}

// Path returns the mount path this encoder owns.
func (e *PageEncoder) Path() string { return e.path }

// Decode resolves requests at the mount path to the page target. Requests
// deeper than the mount path do not resolve.
func (e *PageEncoder) Decode(r *http.Request) (Target, error) {
	if r.URL.Path != e.path {
		return nil, ErrNotFound
	}
	if e.guard != nil {
		if err := e.guard(r); err != nil {
			return nil, err
		}
	}
	return PageTarget{Page: e.name, Factory: e.factory, Params: r.URL.Query()}, nil
}

// PageURL returns the mount path when the name addresses this page.
func (e *PageEncoder) PageURL(name string) (string, bool) {
	if name != e.name {
		return "", false
	}
	return e.path, true
}

// PageGroup is a registry of named page factories mounted together under one
// path prefix. It is safe for concurrent use.
type PageGroup struct {
	mu          sync.RWMutex
	factories   map[string]pages.Factory
	defaultPage string
}

// NewPageGroup returns an empty page group.
func NewPageGroup() *PageGroup {
	return &PageGroup{factories: make(map[string]pages.Factory)}
}

// Add registers a named page in the group.
func (g *PageGroup) Add(name string, factory pages.Factory) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("page group: page name is required")
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("page group: page name %q must not contain /", name)
	}
	if factory == nil {
		return fmt.Errorf("page group: factory for %q is required", name)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.factories[name]; ok {
		return fmt.Errorf("page group: page %q is already registered", name)
	}
	g.factories[name] = factory
	return nil
}

// SetDefault selects the page served at the bare group path.
func (g *PageGroup) SetDefault(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.factories[name]; !ok {
		return fmt.Errorf("page group: default page %q is not registered", name)
	}
	g.defaultPage = name
	return nil
}

// Lookup returns the factory registered under name.
func (g *PageGroup) Lookup(name string) (pages.Factory, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	factory, ok := g.factories[name]
	return factory, ok
}

// PageGroupEncoder mounts all pages of a group under one path prefix. A page
// named "cart" in a group mounted at "/shop" is served at "/shop/cart".
type PageGroupEncoder struct {
	path  string
	group *PageGroup
	guard Guard
}

// NewPageGroupEncoder builds an encoder serving a page group at path.
func NewPageGroupEncoder(path string, group *PageGroup, guard Guard) (*PageGroupEncoder, error) {
	if group == nil {
		return nil, fmt.Errorf("mount %q: page group is required", path)
	}
	if err := ValidatePath(path); err != nil {
		return nil, fmt.Errorf("mount %q: %w", path, err)
	}
	return &PageGroupEncoder{path: path, group: group, guard: guard}, nil
}

// Path returns the mount path this encoder owns.
func (e *PageGroupEncoder) Path() string { return e.path }

// Decode resolves /<path>/<name> to the named page in the group. The bare
// group path resolves to the group's default page when one is set.
func (e *PageGroupEncoder) Decode(r *http.Request) (Target, error) {
	name, ok := e.pageName(r.URL.Path)
	if !ok {
		return nil, ErrNotFound
	}
	factory, ok := e.group.Lookup(name)
	if !ok {
		return nil, ErrNotFound
	}
	if e.guard != nil {
		if err := e.guard(r); err != nil {
			return nil, err
		}
	}
	return PageTarget{Page: name, Factory: factory, Params: r.URL.Query()}, nil
}

// PageURL returns the group URL for a page name registered in the group.
func (e *PageGroupEncoder) PageURL(name string) (string, bool) {
	if _, ok := e.group.Lookup(name); !ok {
		return "", false
	}
	if e.path == "/" {
		return "/" + name, true
	}
	return e.path + "/" + name, true
}

func (e *PageGroupEncoder) pageName(requestPath string) (string, bool) {
	if requestPath == e.path {
		e.group.mu.RLock()
		defaultPage := e.group.defaultPage
		e.group.mu.RUnlock()
		if defaultPage == "" {
			return "", false
		}
		return defaultPage, true
	}
	prefix := e.path + "/"
	if e.path == "/" {
		prefix = "/"
	}
	rest, ok := strings.CutPrefix(requestPath, prefix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// ResourceEncoder mounts a shared resource key at a path.
type ResourceEncoder struct {
	path string
	key  string
}

// NewResourceEncoder builds an encoder serving the shared resource key at
// path.
func NewResourceEncoder(path, key string) (*ResourceEncoder, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("mount %q: resource key is required", path)
	}
	if err := ValidatePath(path); err != nil {
		return nil, fmt.Errorf("mount %q: %w", path, err)
	}
	return &ResourceEncoder{path: path, key: key}, nil
}

// Path returns the mount path this encoder owns.
func (e *ResourceEncoder) Path() string { return e.path }

// Decode resolves requests at the mount path to the resource target.
func (e *ResourceEncoder) Decode(r *http.Request) (Target, error) {
	if r.URL.Path != e.path {
		return nil, ErrNotFound
	}
	return ResourceTarget{Key: e.key}, nil
}

// ResourceURL returns the mount path when the key addresses this resource.
func (e *ResourceEncoder) ResourceURL(key string) (string, bool) {
	if key != e.key {
		return "", false
	}
	return e.path, true
}

// pageNameForPath derives a page name from a mount path.
func pageNameForPath(path string) string {
	name := strings.Trim(path, "/")
	if name == "" {
		return "home"
	}
	return strings.ReplaceAll(name, "/", ".")
}
