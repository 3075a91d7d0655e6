package web

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/loomwork/loom/internal/platform/timeouts"
	"github.com/loomwork/loom/pages"
	"github.com/loomwork/loom/resource"
	"github.com/loomwork/loom/session"
	"github.com/loomwork/loom/settings"
)

// defaultSessionTTL bounds sessions when no cookie TTL is configured.
const defaultSessionTTL = 720 * time.Hour

// attach binds the application to its filter. An application serves exactly
// one filter.
func (app *Application) attach(name string, initParams map[string]string, container *ContainerContext) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("web: filter name is required")
	}
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.attached {
		return fmt.Errorf("web: application %q is already attached to filter %q", app.name, app.filterName)
	}
	params := make(map[string]string, len(initParams))
	for key, value := range initParams {
		params[key] = value
	}
	app.attached = true
	app.filterName = name
	app.initParams = params
	app.container = container
	return nil
}

// internalInit brings the attached application up: mode defaults, error
// pages, the session cookie codec, and the resource search path, then the
// user Init hook, then the development watcher and the session janitor.
func (app *Application) internalInit() error {
	mode := app.ConfigurationType()

	app.mu.Lock()
	app.mode = mode
	app.settings = settings.Defaults(mode)
	app.mu.Unlock()

	s := &app.settings
	if s.Application.InternalErrorPage == nil {
		s.Application.InternalErrorPage = pages.InternalError
	}
	if s.Application.PageExpiredPage == nil {
		s.Application.PageExpiredPage = pages.PageExpired
	}
	if s.Application.AccessDeniedPage == nil {
		s.Application.AccessDeniedPage = pages.AccessDenied
	}

	codec, err := session.NewCookieCodec(app.cookieConfig())
	if err != nil {
		return fmt.Errorf("session cookie for %s: %w", app.name, err)
	}
	app.codec = codec

	if folders, err := app.InitParameter(SourceFolderParam); err == nil {
		s.Resource.Folders = append(s.Resource.Folders, splitFolders(folders)...)
	}

	if app.initHook != nil {
		if err := app.initHook(app); err != nil {
			return fmt.Errorf("init application %s: %w", app.name, err)
		}
	}

	// Source folders are searched before deployed files, in declared order.
	for _, folder := range s.Resource.Folders {
		app.finder.Add(os.DirFS(folder))
	}
	if container, err := app.Context(); err == nil {
		app.finder.Add(container.Files())
	}

	if mode == settings.Development {
		app.startWatcher(s)
	}
	app.startJanitor()
	app.logStarted()
	return nil
}

// internalDestroy tears the application down. Ordering matters: the watcher
// stops first so no change callbacks fire mid-teardown, the user hook runs
// while stores are still usable, buffered responses are cleared before the
// store closes, and the session janitor stops last.
func (app *Application) internalDestroy() {
	app.mu.Lock()
	if app.destroyed {
		app.mu.Unlock()
		return
	}
	app.destroyed = true
	watcher := app.watcher
	app.watcher = nil
	app.mu.Unlock()

	if watcher != nil {
		if err := watcher.Close(); err != nil {
			log.Printf("[%s] close resource watcher: %v", app.name, err)
		}
	}
	if app.destroyHook != nil {
		app.destroyHook(app)
	}
	app.buffers.Clear()
	if err := app.store.Destroy(); err != nil {
		log.Printf("[%s] destroy session store: %v", app.name, err)
	}
	app.stopJanitor()
	log.Printf("[%s] stopped", app.name)
}

// cookieConfig fills the configured cookie settings with defaults. A missing
// signing key gets a random per-process key, so sessions survive only as
// long as the process.
func (app *Application) cookieConfig() session.CookieConfig {
	cfg := app.cookie
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "loom_session"
	}
	if len(cfg.SigningKey) == 0 {
		key := make([]byte, 32)
		_, _ = rand.Read(key)
		cfg.SigningKey = key
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = app.now
	}
	app.cookie = cfg
	return cfg
}

// startWatcher watches the configured source folders for changes. Watch
// failures are logged and skipped so one bad folder does not block startup.
func (app *Application) startWatcher(s *settings.Settings) {
	if s.Resource.PollFrequency <= 0 || len(s.Resource.Folders) == 0 {
		return
	}
	watcher, err := resource.NewWatcher(s.Resource.PollFrequency, func(path string) {
		log.Printf("[%s] resource changed path=%s", app.name, path)
	})
	if err != nil {
		log.Printf("[%s] resource watcher: %v", app.name, err)
		return
	}
	watched := 0
	for _, folder := range s.Resource.Folders {
		if err := watcher.Watch(folder); err != nil {
			log.Printf("[%s] watch folder %s: %v", app.name, folder, err)
			continue
		}
		watched++
	}
	if watched == 0 {
		_ = watcher.Close()
		return
	}
	watcher.Start(context.Background())
	app.mu.Lock()
	app.watcher = watcher
	app.mu.Unlock()
}

// startJanitor begins the periodic sweep that expires idle sessions and
// releases their buffered responses.
func (app *Application) startJanitor() {
	stop := make(chan struct{})
	done := make(chan struct{})
	app.mu.Lock()
	app.janitorStop = stop
	app.janitorDone = done
	app.mu.Unlock()
	go app.sweepSessions(stop, done)
}

func (app *Application) sweepSessions(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(timeouts.SessionSweep)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			app.sweepExpiredSessions(context.Background())
		}
	}
}

// sweepExpiredSessions expires sessions idle past the session TTL and
// releases their per-session state.
func (app *Application) sweepExpiredSessions(ctx context.Context) {
	cutoff := app.now().Add(-app.sessionTTL())
	expired, err := app.store.ExpireBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[%s] expire sessions: %v", app.name, err)
		return
	}
	for _, id := range expired {
		app.SessionDestroyed(id)
	}
}

func (app *Application) stopJanitor() {
	app.mu.Lock()
	stop, done := app.janitorStop, app.janitorDone
	app.janitorStop, app.janitorDone = nil, nil
	app.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// logStarted announces the application and warns loudly when it is running
// in development mode.
func (app *Application) logStarted() {
	key, _ := app.Key()
	log.Printf("[%s] started in %s mode (filter %s)", app.name, app.mode, key)
	if app.mode != settings.Development {
		return
	}
	for _, line := range developmentBanner {
		log.Print(line)
	}
}

var developmentBanner = []string{
	"********************************************************************",
	"*** WARNING: application is running in DEVELOPMENT mode.         ***",
	"***                                   ^^^^^^^^^^^                ***",
	"*** Do NOT deploy to your live server(s) without changing this.  ***",
	"*** See Application.ConfigurationType for how modes resolve.     ***",
	"********************************************************************",
}

// splitFolders parses a comma-separated folder list.
func splitFolders(value string) []string {
	var folders []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			folders = append(folders, part)
		}
	}
	return folders
}
