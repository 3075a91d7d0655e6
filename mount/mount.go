// Package mount maps URL paths to encoders that resolve request targets.
//
// An encoder owns one mount path and decodes requests under that path into
// page or resource targets. The table keeps all active mounts, resolves
// requests by longest matching path, and honors ignore paths that shadow
// mounts above them.
package mount

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotFound indicates no target exists for the decoded request.
	ErrNotFound = errors.New("mount: target not found")
	// ErrAccessDenied indicates the request is not authorized for its target.
	ErrAccessDenied = errors.New("mount: access denied")
	// ErrPageExpired indicates the request references session state that no
	// longer exists.
	ErrPageExpired = errors.New("mount: page expired")
)

// Target is a resolved request destination produced by an encoder.
type Target interface {
	// Name identifies the target for request logging.
	Name() string
}

// Encoder resolves requests mounted at a fixed path into targets.
type Encoder interface {
	// Path returns the mount path this encoder owns.
	Path() string
	// Decode resolves a request under this mount into a target.
	Decode(r *http.Request) (Target, error)
}

// PageResolver is implemented by encoders that can address named pages.
type PageResolver interface {
	// PageURL returns the URL path for a named page it can encode.
	PageURL(name string) (string, bool)
}

// ResourceResolver is implemented by encoders that can address shared
// resources.
type ResourceResolver interface {
	// ResourceURL returns the URL path for a shared resource key it can encode.
	ResourceURL(key string) (string, bool)
}

// Table holds the active mounts and ignore paths for one application.
// It is safe for concurrent use; mounts may be added or removed while
// requests resolve.
type Table struct {
	mu       sync.RWMutex
	encoders map[string]Encoder
	ignored  map[string]struct{}
}

// NewTable returns an empty mount table.
func NewTable() *Table {
	return &Table{
		encoders: make(map[string]Encoder),
		ignored:  make(map[string]struct{}),
	}
}

// Mount registers an encoder under its path. The encoder must not be nil,
// its path must be valid, and the path must not already be mounted.
func (t *Table) Mount(enc Encoder) error {
	if enc == nil {
		return fmt.Errorf("mount: encoder is required")
	}
	path := enc.Path()
	if err := ValidatePath(path); err != nil {
		return fmt.Errorf("mount %q: %w", path, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.encoders[path]; ok {
		return fmt.Errorf("mount %q: path is already mounted", path)
	}
	t.encoders[path] = enc
	return nil
}

// Unmount removes whatever encoder is mounted at the given path. It reports
// whether a mount was removed.
func (t *Table) Unmount(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.encoders[path]; !ok {
		return false
	}
	delete(t.encoders, path)
	return true
}

// AddIgnorePath marks a path that must not resolve to any mount, even when
// a mount above it matches. Requests under an ignored path fall through to
// the next handler.
func (t *Table) AddIgnorePath(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	t.mu.Lock()
	t.ignored[strings.TrimSuffix(path, "/")] = struct{}{}
	t.mu.Unlock()
}

// Ignored reports whether the request path falls under an ignore path.
func (t *Table) Ignored(requestPath string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for path := range t.ignored {
		if pathCovers(path, requestPath) {
			return true
		}
	}
	return false
}

// Lookup returns the encoder with the longest path covering the request
// path. It reports false when no mount matches or the path is ignored.
func (t *Table) Lookup(requestPath string) (Encoder, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for path := range t.ignored {
		if pathCovers(path, requestPath) {
			return nil, false
		}
	}
	var best Encoder
	bestLen := -1
	for path, enc := range t.encoders {
		if pathCovers(path, requestPath) && len(path) > bestLen {
			best = enc
			bestLen = len(path)
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// PageURL resolves a mounted URL path for a named page.
func (t *Table) PageURL(name string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, path := range t.sortedPaths() {
		if resolver, ok := t.encoders[path].(PageResolver); ok {
			if url, ok := resolver.PageURL(name); ok {
				return url, true
			}
		}
	}
	return "", false
}

// ResourceURL resolves a mounted URL path for a shared resource key.
func (t *Table) ResourceURL(key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, path := range t.sortedPaths() {
		if resolver, ok := t.encoders[path].(ResourceResolver); ok {
			if url, ok := resolver.ResourceURL(key); ok {
				return url, true
			}
		}
	}
	return "", false
}

// Paths returns the mounted paths in lexical order.
func (t *Table) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sortedPaths()
}

// sortedPaths must be called with the table lock held.
func (t *Table) sortedPaths() []string {
	paths := make([]string, 0, len(t.encoders))
	for path := range t.encoders {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// ValidatePath checks that a mount path is usable: non-empty, rooted, no
// surrounding whitespace, and no trailing slash.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	if strings.TrimSpace(path) != path {
		return fmt.Errorf("path must not include surrounding whitespace")
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must begin with /")
	}
	if path != "/" && strings.HasSuffix(path, "/") {
		return fmt.Errorf("path must not end with /")
	}
	return nil
}

// pathCovers reports whether a mount path covers the request path on
// segment boundaries: "/shop" covers "/shop" and "/shop/cart" but not
// "/shopping".
func pathCovers(mountPath, requestPath string) bool {
	if mountPath == "/" {
		return true
	}
	if requestPath == mountPath {
		return true
	}
	return strings.HasPrefix(requestPath, mountPath+"/")
}
