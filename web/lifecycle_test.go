package web

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/loomwork/loom/session"
	"github.com/loomwork/loom/settings"
)

func TestInternalInitPinsModeAndDefaults(t *testing.T) {
	t.Setenv(ConfigurationEnv, "")

	app := NewApplication()
	params := map[string]string{ConfigurationParam: "deployment"}
	if err := app.attach("shop", params, nil); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := app.internalInit(); err != nil {
		t.Fatalf("internalInit: %v", err)
	}
	defer app.internalDestroy()

	if got := app.Mode(); got != settings.Deployment {
		t.Fatalf("Mode = %q, want %q", got, settings.Deployment)
	}

	s, err := app.Settings()
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if !s.RequestCycle.BufferResponse {
		t.Fatal("BufferResponse should default on")
	}
	if s.RequestCycle.RenderStrategy != settings.RedirectToBuffer {
		t.Fatalf("RenderStrategy = %v, want %v", s.RequestCycle.RenderStrategy, settings.RedirectToBuffer)
	}
	if s.Application.InternalErrorPage == nil || s.Application.PageExpiredPage == nil || s.Application.AccessDeniedPage == nil {
		t.Fatal("error pages should be populated with the built-ins")
	}
	if s.Resource.PollFrequency != 0 {
		t.Fatal("deployment mode should not watch resources")
	}
}

func TestInternalInitRunsInitHookWithSettings(t *testing.T) {
	t.Setenv(ConfigurationEnv, "deployment")

	var hookRan bool
	app := NewApplication(WithInit(func(app *Application) error {
		hookRan = true
		s, err := app.Settings()
		if err != nil {
			return err
		}
		s.RequestCycle.BufferResponse = false
		return nil
	}))
	if err := app.attach("shop", nil, nil); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := app.internalInit(); err != nil {
		t.Fatalf("internalInit: %v", err)
	}
	defer app.internalDestroy()

	if !hookRan {
		t.Fatal("init hook should run")
	}
	s, err := app.Settings()
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if s.RequestCycle.BufferResponse {
		t.Fatal("init hook changes should stick")
	}
}

func TestInternalInitHookErrorAborts(t *testing.T) {
	t.Setenv(ConfigurationEnv, "deployment")

	hookErr := errors.New("boom")
	app := NewApplication(WithInit(func(*Application) error { return hookErr }))
	if err := app.attach("shop", nil, nil); err != nil {
		t.Fatalf("attach: %v", err)
	}

	err := app.internalInit()
	if !errors.Is(err, hookErr) {
		t.Fatalf("internalInit error = %v, want %v", err, hookErr)
	}
}

func TestInternalInitAppendsSourceFolders(t *testing.T) {
	t.Setenv(ConfigurationEnv, "deployment")

	app := NewApplication()
	params := map[string]string{SourceFolderParam: " themes , , overrides "}
	if err := app.attach("shop", params, nil); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := app.internalInit(); err != nil {
		t.Fatalf("internalInit: %v", err)
	}
	defer app.internalDestroy()

	s, err := app.Settings()
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	want := []string{"themes", "overrides"}
	if len(s.Resource.Folders) != len(want) {
		t.Fatalf("Folders = %v, want %v", s.Resource.Folders, want)
	}
	for i, folder := range want {
		if s.Resource.Folders[i] != folder {
			t.Fatalf("Folders[%d] = %q, want %q", i, s.Resource.Folders[i], folder)
		}
	}
}

func TestCookieConfigDefaults(t *testing.T) {
	t.Parallel()

	app := NewApplication()
	cfg := app.cookieConfig()

	if cfg.Name != "loom_session" {
		t.Fatalf("Name = %q, want %q", cfg.Name, "loom_session")
	}
	if len(cfg.SigningKey) != 32 {
		t.Fatalf("SigningKey length = %d, want 32", len(cfg.SigningKey))
	}
	if cfg.TTL != defaultSessionTTL {
		t.Fatalf("TTL = %v, want %v", cfg.TTL, defaultSessionTTL)
	}
	if cfg.Now == nil {
		t.Fatal("Now should be set")
	}

	// The filled config is kept, so the key is stable across calls.
	again := app.cookieConfig()
	if string(again.SigningKey) != string(cfg.SigningKey) {
		t.Fatal("signing key should not change between calls")
	}
}

func TestCookieConfigKeepsConfiguredValues(t *testing.T) {
	t.Parallel()

	app := NewApplication(WithSessionCookie(session.CookieConfig{
		Name:       "shop_sid",
		SigningKey: []byte(strings.Repeat("k", 32)),
		TTL:        time.Hour,
	}))
	cfg := app.cookieConfig()

	if cfg.Name != "shop_sid" {
		t.Fatalf("Name = %q, want %q", cfg.Name, "shop_sid")
	}
	if cfg.TTL != time.Hour {
		t.Fatalf("TTL = %v, want %v", cfg.TTL, time.Hour)
	}
	if string(cfg.SigningKey) != strings.Repeat("k", 32) {
		t.Fatal("configured signing key should be kept")
	}
}

func TestInternalDestroyOrdering(t *testing.T) {
	t.Setenv(ConfigurationEnv, "deployment")

	var order []string
	store := &destroyRecordingStore{
		Store:     session.NewMemoryStore(),
		onDestroy: func() { order = append(order, "store") },
	}
	app := NewApplication(
		WithSessionStore(store),
		WithDestroy(func(*Application) { order = append(order, "hook") }),
	)
	if err := app.attach("shop", nil, nil); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := app.internalInit(); err != nil {
		t.Fatalf("internalInit: %v", err)
	}
	app.AddBufferedResponse("sess-1", "buf-1", NewBufferedResponse())

	app.internalDestroy()

	if len(order) != 2 || order[0] != "hook" || order[1] != "store" {
		t.Fatalf("teardown order = %v, want [hook store]", order)
	}
	if _, ok := app.PopBufferedResponse("sess-1", "buf-1"); ok {
		t.Fatal("buffered responses should be cleared on destroy")
	}
}

func TestInternalDestroyIdempotent(t *testing.T) {
	t.Setenv(ConfigurationEnv, "deployment")

	var hookCalls int
	app := NewApplication(WithDestroy(func(*Application) { hookCalls++ }))
	if err := app.attach("shop", nil, nil); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := app.internalInit(); err != nil {
		t.Fatalf("internalInit: %v", err)
	}

	app.internalDestroy()
	app.internalDestroy()

	if hookCalls != 1 {
		t.Fatalf("destroy hook ran %d times, want 1", hookCalls)
	}
}

func TestSplitFolders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		want  []string
	}{
		{"themes,overrides", []string{"themes", "overrides"}},
		{" themes , , overrides ", []string{"themes", "overrides"}},
		{"", nil},
		{" , ", nil},
	}
	for _, tc := range tests {
		got := splitFolders(tc.value)
		if len(got) != len(tc.want) {
			t.Fatalf("splitFolders(%q) = %v, want %v", tc.value, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("splitFolders(%q) = %v, want %v", tc.value, got, tc.want)
			}
		}
	}
}

// destroyRecordingStore wraps a store to observe Destroy calls.
type destroyRecordingStore struct {
	session.Store
	onDestroy func()
}

func (s *destroyRecordingStore) Destroy() error {
	if s.onDestroy != nil {
		s.onDestroy()
	}
	return s.Store.Destroy()
}
