package mdserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/liuchengxu/vim-clap-sub000/internal/event/dispatch"
)

// Message discriminators for the websocket protocol (§4.6).
const (
	TypeUpdateContent = "update_content"
	TypeScroll        = "scroll"
	TypeFocusWindow   = "focus_window"
	TypeSwitchFile    = "switch_file"
)

// Message is the envelope every websocket frame uses, keyed by a
// "type" discriminator.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// UpdateContentPayload carries a fresh render to the browser tab.
type UpdateContentPayload struct {
	HTML    string `json:"html"`
	LineMap []int  `json:"line_map,omitempty"`
	Stats   Stats  `json:"stats"`
}

// ScrollPayload asks the browser tab to scroll to a rendered line.
type ScrollPayload struct {
	Line int `json:"line"`
}

// switchFileRequest is the inbound payload for a TypeSwitchFile
// message: the client asks the server to point at a different file.
type switchFileRequest struct {
	Path string `json:"path"`
}

// Server is the markdown live-preview websocket server (§4.6): it
// renders a markdown file, watches it for changes, and pushes
// re-renders to every connected browser tab, while also serving the
// images the markdown references from disk under a path-traversal
// guard.
type Server struct {
	log      *logrus.Entry
	renderer *Renderer

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	path    string
	baseDir string
	last    Rendered
	watcher *fileWatcher

	clientsMu sync.Mutex
	clients   map[*wsClient]struct{}

	pollInterval time.Duration

	httpSrv  *http.Server
	shutdown chan struct{}
	closeOne sync.Once

	// broadcaster fans a re-render out to every connected client on its
	// own worker, so one stalled websocket write cannot delay the
	// others, and a write that panics cannot take down watchLoop.
	broadcaster *dispatch.AsyncDispatcher
}

// broadcastEvent is the event value a broadcaster handler receives;
// carried only for the panic handler's log line.
type broadcastEvent struct {
	clientCount int
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// New constructs a Server bound to path, initially serving images out
// of path's directory. addr is the bind address ("host:port" or
// "host:0" for an ephemeral port).
func New(path string, pollInterval time.Duration, log *logrus.Entry) *Server {
	return &Server{
		log:          log,
		renderer:     NewRenderer(),
		upgrader:     websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
		path:         path,
		baseDir:      filepath.Dir(path),
		clients:      make(map[*wsClient]struct{}),
		pollInterval: pollInterval,
		shutdown:     make(chan struct{}),
		broadcaster: dispatch.NewAsyncDispatcher(
			dispatch.WithWorkerCount(4),
			dispatch.WithQueueSize(256),
			dispatch.WithAsyncTimeout(2*time.Second),
			dispatch.WithAsyncPanicHandler(func(event any, panicValue any, stack []byte) {
				log.WithField("panic", panicValue).Error("mdserver: broadcast handler panicked")
			}),
		),
	}
}

// ListenAndServe starts the HTTP/websocket server on addr and blocks
// until ctx is cancelled, Shutdown is called, or the listener fails.
// It returns the bound address once listening has begun via boundAddr
// (useful when addr requests an ephemeral port), or an error if the
// listener could not be created.
func (s *Server) ListenAndServe(ctx context.Context, addr string, boundAddr chan<- string) error {
	if err := s.broadcaster.Start(); err != nil {
		return fmt.Errorf("mdserver: start broadcaster: %w", err)
	}

	if err := s.renderCurrent(); err != nil {
		s.log.WithError(err).Warn("mdserver: initial render failed")
	}

	s.mu.Lock()
	w := newFileWatcher(s.path, s.pollInterval, s.log)
	s.watcher = w
	s.mu.Unlock()
	w.Start()
	go s.watchLoop(w)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/files/", s.handleFiles)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mdserver: listen: %w", err)
	}
	if boundAddr != nil {
		boundAddr <- ln.Addr().String()
	}

	s.httpSrv = &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.Serve(ln) }()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case <-s.shutdown:
		return s.Shutdown()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown tears down the watcher and gracefully stops the HTTP
// server. Safe to call more than once.
func (s *Server) Shutdown() error {
	s.closeOne.Do(func() { close(s.shutdown) })
	s.mu.RLock()
	w := s.watcher
	s.mu.RUnlock()
	if w != nil {
		w.Close()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := s.broadcaster.Stop(stopCtx); err != nil && !errors.Is(err, dispatch.ErrNotRunning) {
		s.log.WithError(err).Warn("mdserver: broadcaster stop")
	}

	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) watchLoop(w *fileWatcher) {
	for {
		select {
		case <-w.Events():
			if err := s.renderCurrent(); err != nil {
				s.log.WithError(err).Warn("mdserver: re-render failed")
				continue
			}
			s.broadcastUpdate()
		case <-s.shutdown:
			return
		}
	}
}

func (s *Server) renderCurrent() error {
	s.mu.RLock()
	path := s.path
	s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("mdserver: read %s: %w", path, err)
	}
	rendered, err := s.renderer.Render(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.last = rendered
	s.mu.Unlock()
	return nil
}

func (s *Server) currentUpdateMessage() Message {
	s.mu.RLock()
	r := s.last
	s.mu.RUnlock()
	return Message{Type: TypeUpdateContent, Payload: UpdateContentPayload{HTML: r.HTML, LineMap: r.LineMap, Stats: r.Stats}}
}

func (s *Server) broadcastUpdate() {
	msg := s.currentUpdateMessage()
	body, err := json.Marshal(msg)
	if err != nil {
		s.log.WithError(err).Error("mdserver: marshal update")
		return
	}

	s.clientsMu.Lock()
	targets := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.clientsMu.Unlock()

	event := broadcastEvent{clientCount: len(targets)}
	for _, c := range targets {
		client := c
		err := s.broadcaster.Enqueue(context.Background(), event, dispatch.HandlerFunc(func(ctx context.Context, _ any) error {
			select {
			case client.send <- body:
				return nil
			default:
				return fmt.Errorf("mdserver: client send buffer full")
			}
		}))
		if err != nil {
			s.log.WithError(err).Warn("mdserver: dropping update for a slow client")
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("mdserver: websocket upgrade failed")
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, 8)}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	s.clientsMu.Unlock()

	// §4.6: on connect, immediately send the current rendered payload.
	if body, err := json.Marshal(s.currentUpdateMessage()); err == nil {
		client.send <- body
	}

	go s.writePump(client)
	s.readPump(client)
}

func (s *Server) writePump(c *wsClient) {
	defer c.conn.Close()
	for body := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return
		}
	}
}

func (s *Server) readPump(c *wsClient) {
	defer s.dropClient(c)
	for {
		_, body, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req switchFileRequest
		var envelope struct {
			Type string `json:"type"`
			Path string `json:"path"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			s.log.WithError(err).Debug("mdserver: malformed client message")
			continue
		}
		if envelope.Type != TypeSwitchFile {
			continue
		}
		req.Path = envelope.Path
		s.switchFile(req.Path)
	}
}

func (s *Server) dropClient(c *wsClient) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
	close(c.send)
}

// Switch is the exported entry point for redirecting the server at a
// different file from outside the websocket protocol (the compute
// core's "markdown/switch" action call).
func (s *Server) Switch(path string) { s.switchFile(path) }

// switchFile updates the server's watched file and base directory
// (§4.6 "switch_file"), restarting the watcher and pushing a fresh
// render to every connected client.
func (s *Server) switchFile(path string) {
	s.mu.Lock()
	prev := s.watcher
	s.path = path
	s.baseDir = filepath.Dir(path)
	w := newFileWatcher(path, s.pollInterval, s.log)
	s.watcher = w
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	w.Start()
	go s.watchLoop(w)

	if err := s.renderCurrent(); err != nil {
		s.log.WithError(err).Warn("mdserver: render after switch_file failed")
		return
	}
	s.broadcastUpdate()
}

// handleFiles serves files referenced by the markdown (typically
// images) under a path-traversal guard: the candidate path's
// canonical form must fall under the canonical base directory, and
// any canonicalization failure (including a missing file) is a 404,
// never a best-effort serve.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/files/")
	decoded, err := url.PathUnescape(rel)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	base := s.baseDir
	s.mu.RUnlock()

	absBase, err := filepath.Abs(base)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	canonicalBase, err := filepath.EvalSymlinks(absBase)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	candidate := filepath.Join(absBase, decoded)
	canonicalCandidate, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if canonicalCandidate != canonicalBase && !strings.HasPrefix(canonicalCandidate, canonicalBase+string(filepath.Separator)) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	f, err := os.Open(canonicalCandidate)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil && fi.IsDir() {
		http.NotFound(w, r)
		return
	}

	if ctype := mime.TypeByExtension(filepath.Ext(canonicalCandidate)); ctype != "" {
		w.Header().Set("Content-Type", ctype)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeContent(w, r, canonicalCandidate, time.Time{}, f)
}

const indexHTML = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>markdown preview</title></head>
<body>
<div id="content"></div>
<script>
(function() {
  var sock = new WebSocket("ws://" + location.host + "/ws");
  sock.onmessage = function(ev) {
    var msg = JSON.parse(ev.data);
    if (msg.type === "update_content") {
      document.getElementById("content").innerHTML = msg.payload.html;
    } else if (msg.type === "scroll") {
      var el = document.querySelector("[data-line='" + msg.payload.line + "']");
      if (el) { el.scrollIntoView(); }
    }
  };
})();
</script>
</body>
</html>
`
