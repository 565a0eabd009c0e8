package session

import (
	"context"
	"time"
)

// never is the "armed to never expire" duration used when an idle
// timer should not fire; a year is long enough to never trip in
// practice while still being a finite, resettable duration.
const never = 365 * 24 * time.Hour

// onMoveDebounce is the fixed on_move debounce (50ms), independent of
// the provider's on_typed debounce.
const onMoveDebounce = 50 * time.Millisecond

// Event is the sum type the Loop consumes. Exactly one of its fields
// is meaningful per event, matching the closed event set a provider
// session reacts to.
type Event struct {
	Kind     EventKind
	Input    string // OnTyped
	Key      string // Key
	Internal InternalEvent
}

// EventKind discriminates an Event.
type EventKind int

const (
	EventOnMove EventKind = iota
	EventOnTyped
	EventKey
	EventInternal
	EventExit
)

// InternalEvent carries an internally synthesized adjustment, such as
// a runtime debounce reconfiguration. Mid-session reconfiguration is
// left to this module's own decision (see DESIGN.md): a new value
// takes effect starting with the next event, never retroactively.
type InternalEvent struct {
	SetDebounce time.Duration // zero means "no change"
}

// Loop is the single task that owns the session's on-move and on-typed
// timers and processes events in receive order, with the sole
// exception of debounced coalescing: consecutive OnTyped events within
// the debounce window collapse to the latest payload, and likewise for
// OnMove within 50ms.
type Loop struct {
	sess   *Session
	events chan Event
}

// NewLoop creates a Loop bound to sess. Run must be called (typically
// in its own goroutine) to start processing.
func NewLoop(sess *Session) *Loop {
	return &Loop{sess: sess, events: make(chan Event, 256)}
}

// Send enqueues an event for the loop to process. The channel is
// buffered but finite: when it is full, Send blocks until there is
// room or ctx is done.
func (l *Loop) Send(ctx context.Context, ev Event) {
	select {
	case l.events <- ev:
	case <-ctx.Done():
	}
}

// Run drives the debounced event loop until an Exit event arrives or
// ctx is cancelled. It keeps both timers armed to "never" when idle
// and resets them on each dirty event, so an idle session never
// busy-loops waiting on a timer that has nothing to fire.
func (l *Loop) Run(ctx context.Context) {
	onMoveTimer := time.NewTimer(never)
	onTypedTimer := time.NewTimer(never)
	defer onMoveTimer.Stop()
	defer onTypedTimer.Stop()

	var (
		moveDirty  bool
		typedDirty bool
		lastInput  string
	)

	debounce := l.sess.debounceTyped

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-l.events:
			switch ev.Kind {
			case EventOnMove:
				moveDirty = true
				resetTimer(onMoveTimer, onMoveDebounce)

			case EventOnTyped:
				typedDirty = true
				lastInput = ev.Input
				resetTimer(onTypedTimer, debounce)

			case EventKey:
				_ = l.sess.dispatchKey(ctx, ev.Key)

			case EventInternal:
				if ev.Internal.SetDebounce > 0 {
					debounce = ev.Internal.SetDebounce
				}

			case EventExit:
				l.sess.dispatchTerminate(ctx)
				return
			}

		case <-onMoveTimer.C:
			resetTimer(onMoveTimer, never)
			if moveDirty {
				moveDirty = false
				_ = l.sess.dispatchMove(ctx)
			}

		case <-onTypedTimer.C:
			resetTimer(onTypedTimer, never)
			if typedDirty {
				typedDirty = false
				l.sess.history.Record(lastInput)
				_ = l.sess.dispatchTyped(ctx, lastInput)
				_ = l.sess.dispatchMove(ctx)
			}
		}
	}
}

// resetTimer drains a possibly-already-fired timer before resetting it,
// the standard idiom for reusing a time.Timer safely.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
