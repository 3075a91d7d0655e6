package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
)

// ErrNotFound indicates no searched filesystem contains the named file.
var ErrNotFound = errors.New("resource: not found")

// Finder resolves resource names to file content.
type Finder interface {
	// Find opens the named file, or returns ErrNotFound.
	Find(name string) (fs.File, error)
}

// Path searches an ordered list of filesystems. The first filesystem
// containing the name wins, so folders added later can shadow embedded
// defaults only if prepended.
type Path struct {
	mu          sync.RWMutex
	filesystems []fs.FS
}

// NewPath creates a finder over the given filesystems.
func NewPath(filesystems ...fs.FS) *Path {
	return &Path{filesystems: filesystems}
}

// Add appends a filesystem to the search order.
func (p *Path) Add(fsys fs.FS) {
	if fsys == nil {
		return
	}
	p.mu.Lock()
	p.filesystems = append(p.filesystems, fsys)
	p.mu.Unlock()
}

// Prepend puts a filesystem at the front of the search order.
func (p *Path) Prepend(fsys fs.FS) {
	if fsys == nil {
		return
	}
	p.mu.Lock()
	p.filesystems = append([]fs.FS{fsys}, p.filesystems...)
	p.mu.Unlock()
}

// Find opens the named file from the first filesystem that has it.
func (p *Path) Find(name string) (fs.File, error) {
	cleaned, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	filesystems := make([]fs.FS, len(p.filesystems))
	copy(filesystems, p.filesystems)
	p.mu.RUnlock()

	for _, fsys := range filesystems {
		file, err := fsys.Open(cleaned)
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open resource %s: %w", cleaned, err)
		}
	}
	return nil, ErrNotFound
}

// cleanName normalizes a resource name and rejects escapes above the root.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "", fmt.Errorf("resource name is required")
	}
	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("resource name %q escapes the search root", name)
	}
	if !fs.ValidPath(cleaned) {
		return "", fmt.Errorf("resource name %q is not a valid path", name)
	}
	return cleaned, nil
}
