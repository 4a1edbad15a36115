package ytsearch

import (
	"sync"
	"time"

	"github.com/ejv2/ytsearch/internal/domain"
)

// ProgressState is one state in a scope or per-video progress machine
// (design §4.E).
type ProgressState int

const (
	Queued ProgressState = iota
	PreValidated
	Loading
	Downloading
	Validated
	Refreshing
	Indexing
	Searching
	IndexingAndSearching
	Searched
	Canceled
)

func (s ProgressState) String() string {
	switch s {
	case Queued:
		return "queued"
	case PreValidated:
		return "pre_validated"
	case Loading:
		return "loading"
	case Downloading:
		return "downloading"
	case Validated:
		return "validated"
	case Refreshing:
		return "refreshing"
	case Indexing:
		return "indexing"
	case Searching:
		return "searching"
	case IndexingAndSearching:
		return "indexing_and_searching"
	case Searched:
		return "searched"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ProgressEvent is one progress transition, either scope-wide (VideoID
// empty) or for a single video.
type ProgressEvent struct {
	// CommandID correlates every event emitted by one Engine.Search or
	// Engine.ListKeywords call, across all of its scopes.
	CommandID string
	Scope     string
	VideoID   domain.VideoId
	State     ProgressState
}

// NotificationLevel classifies a Notification's severity.
type NotificationLevel int

const (
	LevelInfo NotificationLevel = iota
	LevelWarning
	LevelError
)

func (l NotificationLevel) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is a user-facing message attached to a scope (§4.E).
type Notification struct {
	CommandID string
	Scope     string
	Title     string
	Message   string
	Errors    []error
	Video     domain.VideoId
	Level     NotificationLevel
}

// throttleKey identifies the sender (scope, plus video for per-video
// events) whose latest event the throttle keeps; the event's state is
// not part of the key.
type throttleKey struct {
	scope string
	video domain.VideoId
}

// Throttle is a multi-producer single-consumer dispatcher that collapses
// bursts of progress events to at most one emission per interval,
// keeping only the latest per sender (see throttleKey), per §4.E and
// §5. Notifications do not pass through it (see NotificationSink).
type Throttle struct {
	interval time.Duration
	out      chan ProgressEvent

	mu      sync.Mutex
	pending map[throttleKey]ProgressEvent
	timer   *time.Timer
	closed  bool
}

// NewThrottle starts a Throttle dispatching to a buffered channel of the
// given capacity, at most once per interval.
func NewThrottle(interval time.Duration, capacity int) *Throttle {
	return &Throttle{
		interval: interval,
		out:      make(chan ProgressEvent, capacity),
		pending:  make(map[throttleKey]ProgressEvent),
	}
}

// Events is the consumer-side channel of dispatched events.
func (t *Throttle) Events() <-chan ProgressEvent { return t.out }

// Emit records ev as the latest event for its (scope, video) pair and
// schedules a dispatch no later than interval from now.
func (t *Throttle) Emit(ev ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	t.pending[throttleKey{scope: ev.Scope, video: ev.VideoID}] = ev
	if t.timer == nil {
		t.timer = time.AfterFunc(t.interval, t.flush)
	}
}

func (t *Throttle) flush() {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[throttleKey]ProgressEvent)
	t.timer = nil
	closed := t.closed
	t.mu.Unlock()

	for _, ev := range pending {
		if closed {
			return
		}
		t.out <- ev
	}
}

// Close flushes any pending event and closes the consumer channel. No
// further Emit calls are honoured afterwards.
func (t *Throttle) Close() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	pending := t.pending
	t.pending = nil
	t.closed = true
	t.mu.Unlock()

	for _, ev := range pending {
		t.out <- ev
	}
	close(t.out)
}

// NotificationSink is a multi-producer single-consumer channel of
// Notification values. Unlike progress, notifications are never
// coalesced (each is individually actionable), only serialised.
type NotificationSink struct {
	out chan Notification
}

// NewNotificationSink starts a sink with the given channel capacity.
func NewNotificationSink(capacity int) *NotificationSink {
	return &NotificationSink{out: make(chan Notification, capacity)}
}

func (n *NotificationSink) Notifications() <-chan Notification { return n.out }

func (n *NotificationSink) Emit(note Notification) {
	select {
	case n.out <- note:
	default:
		// Drop rather than block a producer goroutine; the channel is
		// sized generously and a dropped notification is not fatal
		// the way a dropped error would be.
	}
}

func (n *NotificationSink) Close() { close(n.out) }
