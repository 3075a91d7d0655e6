package web

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/a-h/templ"
	"golang.org/x/text/language"

	"github.com/loomwork/loom/pages"
	"github.com/loomwork/loom/settings"
)

// staticPage returns a factory rendering fixed markup, for mtable wiring.
func staticPage(html string) pages.Factory {
	return func(pages.Context) templ.Component {
		return templ.Raw(html)
	}
}

func TestFromContextMissing(t *testing.T) {
	t.Parallel()

	if _, err := FromContext(context.Background()); !errors.Is(err, ErrNoApplication) {
		t.Fatalf("FromContext error = %v, want %v", err, ErrNoApplication)
	}
	if _, err := FromContext(nil); !errors.Is(err, ErrNoApplication) {
		t.Fatalf("FromContext(nil) error = %v, want %v", err, ErrNoApplication)
	}
}

func TestFromContextRoundTrip(t *testing.T) {
	t.Parallel()

	app := NewApplication(WithName("shop"))
	ctx := WithApplication(context.Background(), app)
	got, err := FromContext(ctx)
	if err != nil {
		t.Fatalf("FromContext() error = %v", err)
	}
	if got != app {
		t.Fatal("FromContext returned a different application")
	}
}

func TestSessionFromContextMissing(t *testing.T) {
	t.Parallel()

	if sess := SessionFromContext(context.Background()); sess != nil {
		t.Fatalf("SessionFromContext = %v, want nil", sess)
	}
	if sess := SessionFromContext(nil); sess != nil {
		t.Fatalf("SessionFromContext(nil) = %v, want nil", sess)
	}
}

func TestContainerContextInitParameter(t *testing.T) {
	t.Parallel()

	cc := NewContainerContext(map[string]string{"configuration": "deployment"}, nil)
	if got := cc.InitParameter("configuration"); got != "deployment" {
		t.Fatalf("InitParameter = %q, want %q", got, "deployment")
	}
	if got := cc.InitParameter("missing"); got != "" {
		t.Fatalf("InitParameter(missing) = %q, want empty", got)
	}

	var nilCC *ContainerContext
	if got := nilCC.InitParameter("configuration"); got != "" {
		t.Fatalf("nil InitParameter = %q, want empty", got)
	}
	if nilCC.Files() != nil {
		t.Fatal("nil Files should be nil")
	}
}

func TestFilterScopedStateBeforeAttach(t *testing.T) {
	t.Parallel()

	app := NewApplication()

	if _, err := app.Key(); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("Key error = %v, want %v", err, ErrNotAttached)
	}
	if _, err := app.InitParameter("configuration"); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("InitParameter error = %v, want %v", err, ErrNotAttached)
	}
	if _, err := app.Context(); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("Context error = %v, want %v", err, ErrNotAttached)
	}
	if _, err := app.Settings(); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("Settings error = %v, want %v", err, ErrNotAttached)
	}
	if _, err := app.SessionAttributePrefix(); !errors.Is(err, ErrNotAttached) {
		t.Fatalf("SessionAttributePrefix error = %v, want %v", err, ErrNotAttached)
	}
}

func TestFilterScopedStateAfterAttach(t *testing.T) {
	t.Parallel()

	app := NewApplication()
	cc := NewContainerContext(map[string]string{"brand": "container"}, nil)
	if err := app.attach("checkout", map[string]string{"brand": "filter"}, cc); err != nil {
		t.Fatalf("attach: %v", err)
	}

	key, err := app.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if key != "checkout" {
		t.Fatalf("Key = %q, want %q", key, "checkout")
	}

	value, err := app.InitParameter("brand")
	if err != nil {
		t.Fatalf("InitParameter() error = %v", err)
	}
	if value != "filter" {
		t.Fatalf("InitParameter = %q, want %q", value, "filter")
	}

	absent, err := app.InitParameter("missing")
	if err != nil {
		t.Fatalf("InitParameter() error = %v", err)
	}
	if absent != "" {
		t.Fatalf("InitParameter(missing) = %q, want empty", absent)
	}

	got, err := app.Context()
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if got != cc {
		t.Fatal("Context returned a different container context")
	}
}

func TestSessionAttributePrefix(t *testing.T) {
	t.Parallel()

	app := NewApplication()
	if err := app.attach("checkout", nil, nil); err != nil {
		t.Fatalf("attach: %v", err)
	}

	prefix, err := app.SessionAttributePrefix()
	if err != nil {
		t.Fatalf("SessionAttributePrefix() error = %v", err)
	}
	if prefix != "loom:checkout:" {
		t.Fatalf("SessionAttributePrefix = %q, want %q", prefix, "loom:checkout:")
	}

	again, err := app.SessionAttributePrefix()
	if err != nil {
		t.Fatalf("SessionAttributePrefix() error = %v", err)
	}
	if again != prefix {
		t.Fatalf("cached prefix = %q, want %q", again, prefix)
	}
}

func TestAttachRequiresName(t *testing.T) {
	t.Parallel()

	app := NewApplication()
	if err := app.attach("  ", nil, nil); err == nil {
		t.Fatal("expected error for blank filter name")
	}
}

func TestAttachTwiceFails(t *testing.T) {
	t.Parallel()

	app := NewApplication()
	if err := app.attach("first", nil, nil); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := app.attach("second", nil, nil); err == nil {
		t.Fatal("expected error for second attach")
	}
}

func TestConfigurationTypeDefault(t *testing.T) {
	t.Setenv(ConfigurationEnv, "")

	app := NewApplication()
	if got := app.ConfigurationType(); got != settings.Development {
		t.Fatalf("ConfigurationType = %q, want %q", got, settings.Development)
	}
}

func TestConfigurationTypeResolutionOrder(t *testing.T) {
	tests := []struct {
		name            string
		env             string
		filterParams    map[string]string
		containerParams map[string]string
		want            settings.Mode
	}{
		{
			name: "environment wins over everything",
			env:  "deployment",
			filterParams: map[string]string{
				ConfigurationParam: "development",
			},
			containerParams: map[string]string{
				ConfigurationParam: "development",
			},
			want: settings.Deployment,
		},
		{
			name: "namespaced filter param beats namespaced container param",
			filterParams: map[string]string{
				ConfigurationParam: "deployment",
			},
			containerParams: map[string]string{
				ConfigurationParam: "development",
			},
			want: settings.Deployment,
		},
		{
			name: "namespaced container param beats plain filter param",
			filterParams: map[string]string{
				"configuration": "development",
			},
			containerParams: map[string]string{
				ConfigurationParam: "deployment",
			},
			want: settings.Deployment,
		},
		{
			name: "plain filter param beats plain container param",
			filterParams: map[string]string{
				"configuration": "deployment",
			},
			containerParams: map[string]string{
				"configuration": "development",
			},
			want: settings.Deployment,
		},
		{
			name: "plain container param used last",
			containerParams: map[string]string{
				"configuration": "deployment",
			},
			want: settings.Deployment,
		},
		{
			name: "values compare case-insensitively",
			filterParams: map[string]string{
				ConfigurationParam: "DEPLOYMENT",
			},
			want: settings.Deployment,
		},
		{
			name: "unknown values behave as development",
			filterParams: map[string]string{
				ConfigurationParam: "staging",
			},
			want: settings.Development,
		},
		{
			name: "nothing set defaults to development",
			want: settings.Development,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(ConfigurationEnv, tc.env)

			app := NewApplication()
			if err := app.attach("cfg", tc.filterParams, NewContainerContext(tc.containerParams, nil)); err != nil {
				t.Fatalf("attach: %v", err)
			}
			if got := app.ConfigurationType(); got != tc.want {
				t.Fatalf("ConfigurationType = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMountNilEncoder(t *testing.T) {
	t.Parallel()

	app := NewApplication()
	if err := app.Mount(nil); err == nil {
		t.Fatal("expected error for nil encoder")
	}
}

func TestMountPageDuplicatePath(t *testing.T) {
	t.Parallel()

	app := NewApplication()
	page := staticPage("<p>one</p>")
	if err := app.MountPage("/shop", page); err != nil {
		t.Fatalf("MountPage: %v", err)
	}
	if err := app.MountPage("/shop", page); err == nil {
		t.Fatal("expected error for duplicate mount path")
	}
}

func TestUnmountRemovesMount(t *testing.T) {
	t.Parallel()

	app := NewApplication()
	if err := app.MountPage("/shop", staticPage("<p>shop</p>")); err != nil {
		t.Fatalf("MountPage: %v", err)
	}
	if !app.Unmount("/shop") {
		t.Fatal("Unmount should report removal")
	}
	if app.Unmount("/shop") {
		t.Fatal("second Unmount should report nothing removed")
	}
}

func TestPageURLResolvesMountedPage(t *testing.T) {
	t.Parallel()

	app := NewApplication()
	if err := app.MountPage("/shop/cart", staticPage("<p>cart</p>")); err != nil {
		t.Fatalf("MountPage: %v", err)
	}

	url, ok := app.PageURL("shop.cart")
	if !ok {
		t.Fatal("expected shop.cart to resolve")
	}
	if url != "/shop/cart" {
		t.Fatalf("PageURL = %q, want %q", url, "/shop/cart")
	}
	if _, ok := app.PageURL("unknown"); ok {
		t.Fatal("unknown page should not resolve")
	}
}

func TestBufferedResponseDelegation(t *testing.T) {
	t.Parallel()

	app := NewApplication()
	buffered := NewBufferedResponse()
	app.AddBufferedResponse("sess-1", "buf-1", buffered)

	got, ok := app.PopBufferedResponse("sess-1", "buf-1")
	if !ok {
		t.Fatal("expected buffered response")
	}
	if got != buffered {
		t.Fatal("popped a different buffered response")
	}
	if _, ok := app.PopBufferedResponse("sess-1", "buf-1"); ok {
		t.Fatal("second pop should miss")
	}
	if _, ok := app.PopBufferedResponse("sess-1", "missing"); ok {
		t.Fatal("popping a non-existent buffer should miss")
	}
}

func TestSessionDestroyedDropsBuffersAndNotifiesLogger(t *testing.T) {
	t.Parallel()

	logger := &recordingLogger{}
	app := NewApplication(WithRequestLogger(logger))
	app.AddBufferedResponse("sess-1", "buf-1", NewBufferedResponse())

	app.SessionDestroyed("sess-1")

	if _, ok := app.PopBufferedResponse("sess-1", "buf-1"); ok {
		t.Fatal("buffers should be dropped when the session ends")
	}
	if got := logger.destroyedIDs(); len(got) != 1 || got[0] != "sess-1" {
		t.Fatalf("destroyed sessions = %v, want [sess-1]", got)
	}
}

func TestSweepExpiredSessions(t *testing.T) {
	t.Parallel()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	logger := &recordingLogger{}
	app := NewApplication(
		WithRequestLogger(logger),
		WithNow(func() time.Time { return clock }),
	)
	if err := app.attach("sweep", nil, nil); err != nil {
		t.Fatalf("attach: %v", err)
	}
	app.cookieConfig()

	stale := app.newSession(nil, "stale-id", clock.Add(-2*app.sessionTTL()), language.English)
	fresh := app.newSession(nil, "fresh-id", clock, language.English)
	ctx := context.Background()
	if err := app.store.Put(ctx, stale); err != nil {
		t.Fatalf("put stale: %v", err)
	}
	if err := app.store.Put(ctx, fresh); err != nil {
		t.Fatalf("put fresh: %v", err)
	}
	app.AddBufferedResponse("stale-id", "buf-1", NewBufferedResponse())

	app.sweepExpiredSessions(ctx)

	if _, err := app.store.Get(ctx, "stale-id"); err == nil {
		t.Fatal("stale session should be expired")
	}
	if _, err := app.store.Get(ctx, "fresh-id"); err != nil {
		t.Fatalf("fresh session should survive: %v", err)
	}
	if _, ok := app.PopBufferedResponse("stale-id", "buf-1"); ok {
		t.Fatal("expired session buffers should be dropped")
	}
	if got := logger.destroyedIDs(); len(got) != 1 || got[0] != "stale-id" {
		t.Fatalf("destroyed sessions = %v, want [stale-id]", got)
	}
}

// recordingLogger captures request logger calls for assertions.
type recordingLogger struct {
	mu        sync.Mutex
	created   []string
	destroyed []string
	events    []string
	responses []string
	times     []time.Duration
}

func (l *recordingLogger) SessionCreated(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created = append(l.created, sessionID)
}

func (l *recordingLogger) SessionDestroyed(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.destroyed = append(l.destroyed, sessionID)
}

func (l *recordingLogger) EventTarget(sessionID, target string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, target)
}

func (l *recordingLogger) ResponseTarget(sessionID, target string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.responses = append(l.responses, target)
}

func (l *recordingLogger) RequestTime(elapsed time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.times = append(l.times, elapsed)
}

func (l *recordingLogger) destroyedIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.destroyed...)
}

func (l *recordingLogger) eventTargets() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *recordingLogger) responseTargets() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.responses...)
}
