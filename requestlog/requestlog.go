// Package requestlog records request and session activity.
package requestlog

import (
	"log"
	"sync"
	"time"
)

// Logger observes request cycle and session lifecycle activity.
//
// Implementations must be safe for concurrent use; the web layer calls them
// from request goroutines and from the session janitor.
type Logger interface {
	// SessionCreated records that a session started.
	SessionCreated(sessionID string)
	// SessionDestroyed records that a session ended.
	SessionDestroyed(sessionID string)
	// EventTarget records the target that handled the request event phase.
	EventTarget(sessionID, target string)
	// ResponseTarget records the target that produced the response.
	ResponseTarget(sessionID, target string)
	// RequestTime records how long one request cycle took.
	RequestTime(elapsed time.Duration)
}

// Recorder is the default Logger. It keeps live-session and request counters
// and writes one line per session lifecycle event.
type Recorder struct {
	mu            sync.Mutex
	live          map[string]time.Time
	peak          int
	requests      int
	totalDuration time.Duration
	out           *log.Logger
	now           func() time.Time
}

// NewRecorder creates a recorder writing to out. A nil out uses the standard
// logger.
func NewRecorder(out *log.Logger) *Recorder {
	if out == nil {
		out = log.Default()
	}
	return &Recorder{
		live: make(map[string]time.Time),
		out:  out,
		now:  time.Now,
	}
}

// SessionCreated records a new live session.
func (r *Recorder) SessionCreated(sessionID string) {
	r.mu.Lock()
	r.live[sessionID] = r.now()
	if len(r.live) > r.peak {
		r.peak = len(r.live)
	}
	r.mu.Unlock()
	r.out.Printf("session created id=%s", sessionID)
}

// SessionDestroyed removes a live session.
func (r *Recorder) SessionDestroyed(sessionID string) {
	r.mu.Lock()
	delete(r.live, sessionID)
	r.mu.Unlock()
	r.out.Printf("session destroyed id=%s", sessionID)
}

// EventTarget records the event-phase target for a request.
func (r *Recorder) EventTarget(sessionID, target string) {
	r.out.Printf("event target session=%s target=%s", sessionID, target)
}

// ResponseTarget records the response-phase target for a request.
func (r *Recorder) ResponseTarget(sessionID, target string) {
	r.out.Printf("response target session=%s target=%s", sessionID, target)
}

// RequestTime accumulates request timing counters.
func (r *Recorder) RequestTime(elapsed time.Duration) {
	r.mu.Lock()
	r.requests++
	r.totalDuration += elapsed
	r.mu.Unlock()
}

// ActiveSessions returns the number of live sessions.
func (r *Recorder) ActiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// PeakSessions returns the highest live-session count seen.
func (r *Recorder) PeakSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peak
}

// RequestCount returns the number of recorded requests.
func (r *Recorder) RequestCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

// AverageRequestTime returns the mean recorded request duration.
func (r *Recorder) AverageRequestTime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.requests == 0 {
		return 0
	}
	return r.totalDuration / time.Duration(r.requests)
}
