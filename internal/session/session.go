// Package session implements the provider session lifecycle: the
// per-invocation state machine that turns editor events (on_typed,
// on_move, key events, autocmds, exit) into ordered, debounced work
// for the rank engine, preview assembly, and searchers, with
// cooperative cancellation of in-flight searches.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liuchengxu/vim-clap-sub000/internal/event/dispatch"
)

// State is a provider session's lifecycle state.
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateActive
	StateExited
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Environment is the immutable-after-construction record shared by
// reference across every task belonging to one session.
type Environment struct {
	ProviderID    string
	DisplayBufnr  int
	InputBufnr    int
	StartBufnr    int
	Winwidth      int
	IconEnabled   bool
	IconWidth     int
	PreviewEnabled bool
	Cwd           string
}

// Hooks are the provider-supplied callbacks a Session drives. All are
// optional except OnTyped; a nil hook is simply skipped.
type Hooks struct {
	// OnInitialize runs once after Initialize and reports a size class
	// used to narrow the debounce (see SourceSize).
	OnInitialize func(ctx context.Context) (SourceSize, error)
	// OnTyped runs on a debounced on_typed firing, with the current
	// editor input.
	OnTyped func(ctx context.Context, input string) error
	// OnMove runs on a debounced on_move firing (and once right after
	// Initialize) to refresh the preview.
	OnMove func(ctx context.Context) error
	// OnKey handles a key event synchronously; it may scroll the
	// preview or step input history, so it is invoked directly rather
	// than going through the debounced timers.
	OnKey func(ctx context.Context, key string) error
	// OnTerminate runs once when the session exits.
	OnTerminate func(ctx context.Context)
}

// SourceSize classifies a provider's in-memory source, used to narrow
// the on_typed debounce adaptively.
type SourceSize int

const (
	SourceSizeUnknown SourceSize = iota
	SourceSizeSmall              // < 10k items
	SourceSizeMedium              // < 100k items
	SourceSizeLarge              // < 200k items
)

// hookEvent labels a dispatched hook invocation for PanicHandler/stats
// purposes; Session never inspects the value itself.
type hookEvent string

const (
	eventInitialize hookEvent = "on_initialize"
	eventTyped      hookEvent = "on_typed"
	eventMove       hookEvent = "on_move"
	eventKey        hookEvent = "on_key"
	eventTerminate  hookEvent = "on_terminate"
)

// debounceForSize maps a SourceSize to its narrowed debounce: larger
// sources get a longer on_typed debounce so a fast typist doesn't
// trigger an expensive rescan on every keystroke.
func debounceForSize(size SourceSize, fallback time.Duration) time.Duration {
	switch size {
	case SourceSizeSmall:
		return 10 * time.Millisecond
	case SourceSizeMedium:
		return 50 * time.Millisecond
	case SourceSizeLarge:
		return 100 * time.Millisecond
	default:
		return fallback
	}
}

// SearcherControl is the (stop-flag, task-handle) pair used to cancel
// one in-flight search. Starting a new searcher first sets the stop
// flag on the previous one, then lets it die in the background without
// being awaited synchronously.
type SearcherControl struct {
	stop   atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSearcherControl creates a control bound to a derived, cancellable
// context.
func NewSearcherControl(parent context.Context) (context.Context, *SearcherControl) {
	ctx, cancel := context.WithCancel(parent)
	return ctx, &SearcherControl{cancel: cancel, done: make(chan struct{})}
}

// Stopped reports whether this control has been asked to stop. Searcher
// worker loops must check this on every walk entry and at every channel
// send.
func (c *SearcherControl) Stopped() bool { return c.stop.Load() }

// Stop sets the stop flag and cancels the associated context. It does
// not wait for the searcher to actually finish.
func (c *SearcherControl) Stop() {
	c.stop.Store(true)
	if c.cancel != nil {
		c.cancel()
	}
}

// MarkDone closes the done channel; the searcher goroutine must call
// this exactly once when it exits.
func (c *SearcherControl) MarkDone() { close(c.done) }

// Session owns one rank engine (held by the caller's provider
// implementation, not by Session itself) and at most one outstanding
// SearcherControl; replacing the searcher cancels the previous one.
type Session struct {
	mu    sync.Mutex
	state State
	env   Environment
	hooks Hooks
	log   *logrus.Entry

	searcher *SearcherControl

	debounceTyped time.Duration
	history       *History

	dispatcher dispatch.Dispatcher
}

// Option configures a new Session.
type Option func(*Session)

// WithDebounce sets the base on_typed debounce (default 200ms); it may
// be narrowed per SourceSize after Initialize.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounceTyped = d }
}

// WithLogger attaches a structured logger; a discarding logger is used
// if omitted.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Session) { s.log = log }
}

// New creates a Session in StateCreated.
func New(env Environment, hooks Hooks, opts ...Option) *Session {
	s := &Session{
		state:         StateCreated,
		env:           env,
		hooks:         hooks,
		debounceTyped: 200 * time.Millisecond,
		history:       NewHistory(),
		dispatcher:    dispatch.NewSyncDispatcher(),
		log:           logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize runs the provider's on_initialize hook, narrows the
// debounce by reported source size, then synthesizes an on_move to
// populate the preview, transitioning Created -> Initialized -> Active.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateCreated {
		s.mu.Unlock()
		return nil
	}
	s.state = StateInitialized
	s.mu.Unlock()

	if s.hooks.OnInitialize != nil {
		var size SourceSize
		result := s.dispatcher.Dispatch(ctx, eventInitialize, dispatch.HandlerFunc(func(ctx context.Context, _ any) error {
			var err error
			size, err = s.hooks.OnInitialize(ctx)
			return err
		}))
		if result.Panicked {
			s.log.WithField("panic", result.PanicValue).Error("session: on_initialize hook panicked")
			return nil
		}
		if result.Error != nil {
			return result.Error
		}
		s.mu.Lock()
		s.debounceTyped = debounceForSize(size, s.debounceTyped)
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()

	return s.dispatchMove(ctx)
}

// dispatchMove runs the on_move hook, if any, through the dispatcher
// so a panicking preview renderer cannot bring down the whole daemon.
func (s *Session) dispatchMove(ctx context.Context) error {
	if s.hooks.OnMove == nil {
		return nil
	}
	result := s.dispatcher.Dispatch(ctx, eventMove, dispatch.HandlerFunc(func(ctx context.Context, _ any) error {
		return s.hooks.OnMove(ctx)
	}))
	if result.Panicked {
		s.log.WithField("panic", result.PanicValue).Error("session: on_move hook panicked")
		return nil
	}
	return result.Error
}

// dispatchTyped runs the on_typed hook, if any, through the dispatcher
// with the given input. Shared by InitialQuery and Loop.Run's debounced
// firing.
func (s *Session) dispatchTyped(ctx context.Context, input string) error {
	if s.hooks.OnTyped == nil {
		return nil
	}
	result := s.dispatcher.Dispatch(ctx, eventTyped, dispatch.HandlerFunc(func(ctx context.Context, _ any) error {
		return s.hooks.OnTyped(ctx, input)
	}))
	if result.Panicked {
		s.log.WithField("panic", result.PanicValue).Error("session: on_typed hook panicked")
		return nil
	}
	return result.Error
}

// dispatchKey runs the on_key hook, if any, through the dispatcher. A
// panicking key handler is swallowed rather than let through, since it
// runs inline on Loop.Run's single goroutine.
func (s *Session) dispatchKey(ctx context.Context, key string) error {
	if s.hooks.OnKey == nil {
		return nil
	}
	result := s.dispatcher.Dispatch(ctx, eventKey, dispatch.HandlerFunc(func(ctx context.Context, _ any) error {
		return s.hooks.OnKey(ctx, key)
	}))
	if result.Panicked {
		s.log.WithField("panic", result.PanicValue).Error("session: on_key hook panicked")
		return nil
	}
	return result.Error
}

// dispatchTerminate runs the on_terminate hook, if any, through the
// dispatcher. OnTerminate has no error return, so only the panic case
// is reported.
func (s *Session) dispatchTerminate(ctx context.Context) {
	if s.hooks.OnTerminate == nil {
		return
	}
	result := s.dispatcher.Dispatch(ctx, eventTerminate, dispatch.HandlerFunc(func(ctx context.Context, _ any) error {
		s.hooks.OnTerminate(ctx)
		return nil
	}))
	if result.Panicked {
		s.log.WithField("panic", result.PanicValue).Error("session: on_terminate hook panicked")
	}
}

// InitialQuery sets the editor input to text and synthesizes an
// on_typed, per the session's internal InitialQuery(s) event.
func (s *Session) InitialQuery(ctx context.Context, text string) error {
	return s.dispatchTyped(ctx, text)
}

// StartSearcher stops any previous outstanding searcher (without
// waiting for it) and returns a fresh control for the caller's new
// search task.
func (s *Session) StartSearcher(ctx context.Context) (context.Context, *SearcherControl) {
	s.mu.Lock()
	prev := s.searcher
	searchCtx, ctrl := NewSearcherControl(ctx)
	s.searcher = ctrl
	s.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	return searchCtx, ctrl
}

// Terminate runs on_terminate and transitions to StateExited, merging
// this session's input history into the process-wide store.
func (s *Session) Terminate(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateExited {
		s.mu.Unlock()
		return
	}
	s.state = StateExited
	ctrl := s.searcher
	s.searcher = nil
	s.mu.Unlock()

	if ctrl != nil {
		ctrl.Stop()
	}
	s.dispatchTerminate(ctx)
	s.logDispatchStats()
	GlobalHistory.Merge(s.history)
}

// logDispatchStats reports how many hook dispatches this session ran and
// how they resolved. Only *dispatch.SyncDispatcher exposes Stats(); a
// session never installs anything else, but the type assertion keeps this
// independent of the dispatcher field's interface type.
func (s *Session) logDispatchStats() {
	sd, ok := s.dispatcher.(*dispatch.SyncDispatcher)
	if !ok {
		return
	}
	stats := sd.Stats()
	if stats.Dispatched == 0 {
		return
	}
	s.log.WithField("dispatched", stats.Dispatched).
		WithField("succeeded", stats.Succeeded).
		WithField("failed", stats.Failed).
		WithField("panicked", stats.Panicked).
		WithField("avg_duration", stats.AvgDuration).
		Debug("session: hook dispatch stats")
}

// History returns this session's input history recorder.
func (s *Session) History() *History { return s.history }

// Env returns the session's immutable environment record.
func (s *Session) Env() Environment { return s.env }
