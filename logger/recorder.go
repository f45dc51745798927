package logger

import (
	"bytes"
	"sync"
	"time"
)

// SessionRecorder is a Sink that captures the log lines of one session at a time. Start begins a
// new recording and discards the previous one, Write appends and Text returns what was captured.
// A recorder is injected where it is needed rather than shared process wide.
type SessionRecorder struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	session  string
	started  time.Time
	maxBytes int
	dropped  int
}

var _ Sink = (*SessionRecorder)(nil)

// NewSessionRecorder returns a recorder that keeps at most maxBytes per session. Zero means
// unbounded.
func NewSessionRecorder(maxBytes int) *SessionRecorder {
	return &SessionRecorder{maxBytes: maxBytes}
}

// Start clears the recording and stamps it with the session id.
func (r *SessionRecorder) Start(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf.Reset()
	r.session = session
	r.started = time.Now()
	r.dropped = 0
}

// Write appends p. Bytes beyond the limit are counted and discarded, never reported as an
// error, so a full recorder cannot fail the logger writing into it.
func (r *SessionRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keep := p
	if r.maxBytes > 0 {
		room := r.maxBytes - r.buf.Len()
		if room < 0 {
			room = 0
		}
		if len(keep) > room {
			r.dropped += len(keep) - room
			keep = keep[:room]
		}
	}
	r.buf.Write(keep)
	return len(p), nil
}

// Text returns everything recorded since the last Start.
func (r *SessionRecorder) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

// Session returns the id passed to the last Start.
func (r *SessionRecorder) Session() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Started returns when the current recording began.
func (r *SessionRecorder) Started() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Dropped returns how many bytes were discarded because the limit was reached.
func (r *SessionRecorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
