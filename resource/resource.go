// Package resource locates and serves shared application resources.
package resource

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"sync"
)

// A Resource is a servable piece of static content.
type Resource interface {
	// ContentType returns the MIME type served with the content.
	ContentType() string
	// Open returns a fresh reader over the content.
	Open() (io.ReadCloser, error)
}

// BytesResource serves fixed in-memory content.
type BytesResource struct {
	contentType string
	data        []byte
}

// NewBytesResource creates a resource over a byte slice.
func NewBytesResource(contentType string, data []byte) *BytesResource {
	return &BytesResource{contentType: contentType, data: data}
}

// ContentType returns the MIME type.
func (r *BytesResource) ContentType() string {
	return r.contentType
}

// Open returns a reader over the bytes.
func (r *BytesResource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(r.data)), nil
}

// FileResource serves a named file resolved through a finder on every open,
// so edits to watched folders show up without re-registration.
type FileResource struct {
	finder      Finder
	name        string
	contentType string
}

// NewFileResource creates a resource resolved through the finder. An empty
// contentType is derived from the file extension.
func NewFileResource(finder Finder, name string, contentType string) (*FileResource, error) {
	if finder == nil {
		return nil, fmt.Errorf("finder is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("resource name is required")
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	}
	return &FileResource{finder: finder, name: name, contentType: contentType}, nil
}

// ContentType returns the MIME type.
func (r *FileResource) ContentType() string {
	return r.contentType
}

// Open resolves the file through the finder.
func (r *FileResource) Open() (io.ReadCloser, error) {
	return r.finder.Find(r.name)
}

// Registry maps shared resource keys to resources.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]Resource
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]Resource)}
}

// Add registers a resource under key, replacing any previous registration.
func (reg *Registry) Add(key string, res Resource) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("resource key is required")
	}
	if res == nil {
		return fmt.Errorf("resource is required")
	}
	reg.mu.Lock()
	reg.resources[key] = res
	reg.mu.Unlock()
	return nil
}

// Get returns the resource registered under key.
func (reg *Registry) Get(key string) (Resource, bool) {
	reg.mu.RLock()
	res, ok := reg.resources[key]
	reg.mu.RUnlock()
	return res, ok
}

// Remove drops the registration for key.
func (reg *Registry) Remove(key string) {
	reg.mu.Lock()
	delete(reg.resources, key)
	reg.mu.Unlock()
}

// Keys returns all registered keys.
func (reg *Registry) Keys() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	keys := make([]string, 0, len(reg.resources))
	for key := range reg.resources {
		keys = append(keys, key)
	}
	return keys
}
