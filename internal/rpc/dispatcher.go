package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	methodNewProvider  = "new_provider"
	methodExitProvider = "exit_provider"
	methodOnTyped      = "on_typed"
	methodOnMove       = "on_move"
	methodKeyEvent     = "key_event"
	methodAutocmd      = "autocmd_event"
)

var lifecycleMethods = map[string]bool{methodNewProvider: true, methodExitProvider: true}
var eventMethods = map[string]bool{methodOnTyped: true, methodOnMove: true, methodKeyEvent: true, methodAutocmd: true}

// maxFrameBytes bounds a single newline-delimited JSON-RPC frame; a
// runaway editor-side bug should not grow the scanner's buffer
// without limit.
const maxFrameBytes = 16 * 1024 * 1024

// Dispatcher reads newline-framed JSON-RPC 2.0 requests/notifications
// from an editor on one stream, routes them to the registered
// handlers by method category (§6), and writes responses (and
// core-initiated notifications, via Notify) on another stream.
type Dispatcher struct {
	scanner *bufio.Scanner

	outMu sync.Mutex
	out   io.Writer

	log *logrus.Entry

	providers ProviderHandler
	events    EventHandler

	actionsMu sync.RWMutex
	actions   map[string]ActionHandler
}

// New constructs a Dispatcher reading frames from r and writing
// frames to w. Both are typically the editor's stdio pipe (r = stdin,
// w = stdout); nothing else may write to w once Run is called, or the
// JSON-RPC stream will be corrupted.
func New(r io.Reader, w io.Writer, log *logrus.Entry) *Dispatcher {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	return &Dispatcher{
		scanner: scanner,
		out:     w,
		log:     log,
		actions: make(map[string]ActionHandler),
	}
}

// SetProviderHandler registers the handler for new_provider/
// exit_provider.
func (d *Dispatcher) SetProviderHandler(h ProviderHandler) { d.providers = h }

// SetEventHandler registers the handler for on_typed/on_move/
// key_event/autocmd_event.
func (d *Dispatcher) SetEventHandler(h EventHandler) { d.events = h }

// RegisterAction registers an ActionHandler for every "<pluginID>/*"
// method.
func (d *Dispatcher) RegisterAction(pluginID string, h ActionHandler) {
	d.actionsMu.Lock()
	defer d.actionsMu.Unlock()
	d.actions[pluginID] = h
}

// Run reads frames until r is exhausted or ctx is cancelled,
// dispatching each to the registered handlers. It returns nil on a
// clean EOF (the editor closed the transport, per §7's only-fatal
// condition (a)).
func (d *Dispatcher) Run(ctx context.Context) error {
	for d.scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// Copy: the scanner reuses its buffer on the next Scan.
		frame := append([]byte(nil), line...)
		d.handleFrame(ctx, frame)
	}
	if err := d.scanner.Err(); err != nil {
		return fmt.Errorf("rpc: read: %w", err)
	}
	return nil
}

func (d *Dispatcher) handleFrame(ctx context.Context, frame []byte) {
	if !gjson.ValidBytes(frame) {
		d.log.Warn("rpc: dropping invalid JSON frame")
		d.writeError(nil, CodeParseError, "invalid json")
		return
	}

	method := gjson.GetBytes(frame, "method").String()
	idField := gjson.GetBytes(frame, "id")
	hasID := idField.Exists()
	var id json.RawMessage
	if hasID {
		id = json.RawMessage(idField.Raw)
	}

	params := json.RawMessage(gjson.GetBytes(frame, "params").Raw)
	if len(params) == 0 {
		params = json.RawMessage(`null`)
	}

	if method == "" {
		if hasID {
			d.writeError(id, CodeInvalidRequest, "missing method")
		}
		return
	}

	result, err := d.route(ctx, method, params)
	if !hasID {
		// A notification from the editor: no reply expected, even on
		// error (§7 "Invalid RPC payload" only responds when a
		// response was expected).
		if err != nil {
			d.log.WithError(err).WithField("method", method).Debug("rpc: notification handler error")
		}
		return
	}
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			d.writeErrorObj(id, rpcErr)
		} else {
			d.writeError(id, CodeInternalError, err.Error())
		}
		return
	}
	d.writeResult(id, result)
}

// route classifies method into one of the three categories in §6 and
// dispatches to the matching handler.
func (d *Dispatcher) route(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch {
	case lifecycleMethods[method]:
		if d.providers == nil {
			return nil, &Error{Code: CodeMethodNotFound, Message: "no provider handler registered"}
		}
		switch method {
		case methodNewProvider:
			return d.providers.NewProvider(ctx, params)
		case methodExitProvider:
			return d.providers.ExitProvider(ctx, params)
		}
	case eventMethods[method]:
		if d.events == nil {
			return nil, &Error{Code: CodeMethodNotFound, Message: "no event handler registered"}
		}
		switch method {
		case methodOnTyped:
			return d.events.OnTyped(ctx, params)
		case methodOnMove:
			return d.events.OnMove(ctx, params)
		case methodKeyEvent:
			return d.events.KeyEvent(ctx, params)
		case methodAutocmd:
			return d.events.AutocmdEvent(ctx, params)
		}
	default:
		pluginID, action, ok := splitAction(method)
		if !ok {
			return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", method)}
		}
		d.actionsMu.RLock()
		h, ok := d.actions[pluginID]
		d.actionsMu.RUnlock()
		if !ok {
			return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("no action handler for plugin %q", pluginID)}
		}
		return h(ctx, action, params)
	}
	return nil, &Error{Code: CodeInternalError, Message: "unreachable method classification"}
}

// splitAction splits an action-call method "<plugin-id>/<action>" on
// its first slash.
func splitAction(method string) (plugin, action string, ok bool) {
	idx := strings.IndexByte(method, '/')
	if idx < 0 {
		return "", "", false
	}
	return method[:idx], method[idx+1:], true
}

func (d *Dispatcher) writeResult(id json.RawMessage, result any) {
	body, err := json.Marshal(Response{ID: id, Result: result})
	if err != nil {
		d.log.WithError(err).Error("rpc: marshal result")
		return
	}
	d.writeLine(body)
}

func (d *Dispatcher) writeErrorObj(id json.RawMessage, e *Error) {
	body, err := json.Marshal(Response{ID: id, Error: e})
	if err != nil {
		d.log.WithError(err).Error("rpc: marshal error response")
		return
	}
	d.writeLine(body)
}

func (d *Dispatcher) writeError(id json.RawMessage, code int, msg string) {
	d.writeErrorObj(id, &Error{Code: code, Message: msg})
}

func (d *Dispatcher) writeLine(body []byte) {
	d.outMu.Lock()
	defer d.outMu.Unlock()
	_, _ = d.out.Write(body)
	_, _ = d.out.Write([]byte("\n"))
}
