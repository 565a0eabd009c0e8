package mdserver

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ChangeEvent is pushed whenever the watched file is believed to have
// changed, by whichever of the two watch strategies is active.
type ChangeEvent struct {
	Path string
	Time time.Time
}

// fileWatcher watches one file's parent directory (to survive
// write-rename editors, per §4.6) for change notifications, falling
// back to a polling loop when the filesystem notifier cannot be
// established. Like internal/project/watcher it delivers changes on an
// Events channel, but it has no Errors channel and no debouncing:
// every matching notification is emitted, and dropped if the
// channel's buffer is full.
type fileWatcher struct {
	path string
	dir  string
	name string

	pollInterval time.Duration
	log          *logrus.Entry

	mu       sync.Mutex
	events   chan ChangeEvent
	shutdown chan struct{}
	once     sync.Once
}

func newFileWatcher(path string, pollInterval time.Duration, log *logrus.Entry) *fileWatcher {
	return &fileWatcher{
		path:         path,
		dir:          filepath.Dir(path),
		name:         filepath.Base(path),
		pollInterval: pollInterval,
		log:          log,
		events:       make(chan ChangeEvent, 8),
		shutdown:     make(chan struct{}),
	}
}

// Events returns the channel of change notifications. The channel is
// never closed by normal operation; Close stops delivery but leaves
// the channel open to avoid a send-on-closed-channel race with an
// in-flight emit.
func (w *fileWatcher) Events() <-chan ChangeEvent { return w.events }

// Start launches the watch loop: fsnotify on the parent directory if
// available, otherwise a 1s (configurable) polling loop.
func (w *fileWatcher) Start() {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.WithError(err).Warn("mdserver: fsnotify unavailable, falling back to polling")
		go w.pollLoop()
		return
	}
	if err := fsw.Add(w.dir); err != nil {
		w.log.WithError(err).Warn("mdserver: failed to watch parent directory, falling back to polling")
		_ = fsw.Close()
		go w.pollLoop()
		return
	}
	go w.fsnotifyLoop(fsw)
}

func (w *fileWatcher) fsnotifyLoop(fsw *fsnotify.Watcher) {
	defer fsw.Close()
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.emit()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("mdserver: watcher error")
		case <-w.shutdown:
			return
		}
	}
}

func (w *fileWatcher) pollLoop() {
	interval := w.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	var lastMod time.Time
	if fi, err := os.Stat(w.path); err == nil {
		lastMod = fi.ModTime()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fi, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if fi.ModTime().After(lastMod) {
				lastMod = fi.ModTime()
				w.emit()
			}
		case <-w.shutdown:
			return
		}
	}
}

func (w *fileWatcher) emit() {
	select {
	case w.events <- ChangeEvent{Path: w.path, Time: time.Now()}:
	default:
		// A send would block because the consumer is behind; drop
		// the duplicate, the next tick/event will still carry the
		// latest state.
	}
}

// Close stops the watch loop. Safe to call more than once.
func (w *fileWatcher) Close() {
	w.once.Do(func() { close(w.shutdown) })
}
