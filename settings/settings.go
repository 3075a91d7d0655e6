// Package settings groups tunable application behavior.
package settings

import (
	"strings"
	"time"

	"github.com/loomwork/loom/pages"
)

// Mode is the application configuration mode.
type Mode string

const (
	// Development favors fast feedback: resources are watched for changes.
	Development Mode = "development"
	// Deployment is the hardened production mode.
	Deployment Mode = "deployment"
)

// ParseMode normalizes a raw configuration value. Any value other than
// deployment, compared case-insensitively, is development.
func ParseMode(value string) Mode {
	if strings.EqualFold(strings.TrimSpace(value), string(Deployment)) {
		return Deployment
	}
	return Development
}

// BufferParam is the query parameter carrying a buffered response ID on the
// follow-up request after a redirect.
const BufferParam = "loom_buffer"

// RenderStrategy controls how page renders reach the browser.
type RenderStrategy int

const (
	// RedirectToBuffer renders into a server-side buffer and redirects the
	// browser to a URL that replays it. The default.
	RedirectToBuffer RenderStrategy = iota
	// OnePassRender streams the render directly in the same response.
	OnePassRender
	// RedirectToRender redirects first and renders on the follow-up request.
	RedirectToRender
)

// String returns the strategy name.
func (rs RenderStrategy) String() string {
	switch rs {
	case RedirectToBuffer:
		return "redirect-to-buffer"
	case OnePassRender:
		return "one-pass-render"
	case RedirectToRender:
		return "redirect-to-render"
	default:
		return "unknown"
	}
}

// Application holds application-wide page settings.
type Application struct {
	// InternalErrorPage renders unexpected errors. Nil selects the built-in page.
	InternalErrorPage pages.Factory
	// PageExpiredPage renders stale buffered-response requests. Nil selects
	// the built-in page.
	PageExpiredPage pages.Factory
	// AccessDeniedPage renders guard rejections. Nil selects the built-in page.
	AccessDeniedPage pages.Factory
	// AutoLinkPages rewrites loom: hrefs in rendered markup to mounted URLs.
	AutoLinkPages bool
}

// RequestCycle holds per-request processing settings.
type RequestCycle struct {
	// RenderStrategy selects how non-idempotent renders reach the browser.
	RenderStrategy RenderStrategy
	// BufferResponse captures renders in memory before writing them out, so
	// late errors can still swap in an error page.
	BufferResponse bool
	// Timeout bounds request processing.
	Timeout time.Duration
}

// Resource holds resource loading settings.
type Resource struct {
	// PollFrequency is the debounce window for change notifications.
	// Zero disables watching.
	PollFrequency time.Duration
	// Folders are extra filesystem folders searched for resources and,
	// in development mode, watched for changes.
	Folders []string
}

// Settings aggregates all setting groups.
type Settings struct {
	Application  Application
	RequestCycle RequestCycle
	Resource     Resource
}

// Defaults returns the settings for the given mode. Development mode turns
// resource watching on.
func Defaults(mode Mode) Settings {
	s := Settings{
		Application: Application{
			AutoLinkPages: true,
		},
		RequestCycle: RequestCycle{
			RenderStrategy: RedirectToBuffer,
			BufferResponse: true,
			Timeout:        time.Minute,
		},
	}
	if mode == Development {
		s.Resource.PollFrequency = time.Second
	}
	return s
}
