package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/liuchengxu/vim-clap-sub000/internal/config"
	"github.com/liuchengxu/vim-clap-sub000/internal/grep"
	"github.com/liuchengxu/vim-clap-sub000/internal/logging"
	"github.com/liuchengxu/vim-clap-sub000/internal/lsp"
	"github.com/liuchengxu/vim-clap-sub000/internal/mdserver"
	"github.com/liuchengxu/vim-clap-sub000/internal/query"
	"github.com/liuchengxu/vim-clap-sub000/internal/rpc"
	"github.com/liuchengxu/vim-clap-sub000/internal/session"
)

// newProviderParams is the new_provider request payload (§6): the
// editor-supplied environment plus a source kind that selects which
// provider implementation (grep, history, or files for any other
// value) this session runs.
type newProviderParams struct {
	ProviderID     string   `json:"provider_id"`
	Cwd            string   `json:"cwd"`
	DisplayBufnr   int      `json:"display_bufnr"`
	InputBufnr     int      `json:"input_bufnr"`
	StartBufnr     int      `json:"start_bufnr"`
	Winwidth       int      `json:"winwidth"`
	IconEnabled    bool     `json:"icon_enabled"`
	IconWidth      int      `json:"icon_width"`
	PreviewEnabled bool     `json:"preview_enabled"`
	Source         string   `json:"source"`
	Lines          []string `json:"lines,omitempty"`
	Roots          []string `json:"roots,omitempty"`
	Query          string   `json:"query,omitempty"`
	IncludeGlobs   []string `json:"include_globs,omitempty"`
	ExcludeGlobs   []string `json:"exclude_globs,omitempty"`
}

type exitProviderParams struct {
	ProviderID string `json:"provider_id"`
}

type onTypedParams struct {
	ProviderID string `json:"provider_id"`
	Input      string `json:"input"`
}

type onMoveParams struct {
	ProviderID string `json:"provider_id"`
	CurLine    string `json:"curline"`
	Lnum       int    `json:"lnum"`
}

type keyEventParams struct {
	ProviderID string `json:"provider_id"`
	Key        string `json:"key"`
}

// providerInstance is one live provider session: the state machine and
// debounced loop from internal/session, plus whatever the concrete
// provider kind (files, grep) needs to answer on_typed/on_move.
type providerInstance struct {
	id     string
	kind   string
	sess   *session.Session
	loop   *session.Loop
	cancel context.CancelFunc

	terminateOnce sync.Once

	// selection is the most recently reported on_move selection; the
	// debounced OnMove hook reads it when the timer actually fires,
	// since session.Event carries no per-event payload for moves
	// (Loop's debounce coalescing already implies "read the latest
	// state at fire time", so the provider keeping its own latest
	// selection alongside the event is equivalent and avoids changing
	// the session package's event shape).
	mu        sync.Mutex
	selection onMoveParams
	lastQuery string

	// prevQuery/prevPool cache the grep provider's last best-K result
	// set so a refining keystroke (§3.3's "new query is a refinement of
	// the previous one") can be re-scored against this small in-memory
	// pool instead of re-walking the filesystem. Unused by the files
	// provider, which already holds its full candidate list in memory
	// and has no walk to skip.
	prevQuery query.Query
	prevPool  []grep.FileResult
}

func (p *providerInstance) setSelection(sel onMoveParams) {
	p.mu.Lock()
	p.selection = sel
	p.mu.Unlock()
}

func (p *providerInstance) getSelection() onMoveParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selection
}

func (p *providerInstance) setLastQuery(q string) {
	p.mu.Lock()
	p.lastQuery = q
	p.mu.Unlock()
}

func (p *providerInstance) getLastQuery() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastQuery
}

func (p *providerInstance) setSearchCache(q query.Query, pool []grep.FileResult) {
	p.mu.Lock()
	p.prevQuery = q
	p.prevPool = pool
	p.mu.Unlock()
}

func (p *providerInstance) getSearchCache() (query.Query, []grep.FileResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prevQuery, p.prevPool
}

// registry owns every active provider, the lazily-started LSP broker,
// and the markdown live-preview server, and implements rpc.
// ProviderHandler/rpc.EventHandler by routing to the right provider
// instance.
type registry struct {
	rootCtx context.Context
	cfg     config.Snapshot
	disp    *rpc.Dispatcher
	log     *logrus.Logger
	entry   *logrus.Entry

	mu        sync.Mutex
	providers map[string]*providerInstance
	active    string

	lspMu     sync.Mutex
	lspClient *lsp.Client
	lspBroker *lsp.Broker

	mdMu     sync.Mutex
	mdServer *mdserver.Server
}

func newRegistry(ctx context.Context, cfg config.Snapshot, disp *rpc.Dispatcher, log *logrus.Logger) *registry {
	return &registry{
		rootCtx:   ctx,
		cfg:       cfg,
		disp:      disp,
		log:       log,
		entry:     logging.Component(log, "registry"),
		providers: make(map[string]*providerInstance),
	}
}

// NewProvider implements rpc.ProviderHandler. Per §5's ordering
// guarantee, every previous session is terminated before the new one
// is registered.
func (r *registry) NewProvider(ctx context.Context, raw json.RawMessage) (any, error) {
	var p newProviderParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("new_provider: decode params: %w", err)
	}
	if p.ProviderID == "" {
		return nil, fmt.Errorf("new_provider: missing provider_id")
	}
	r.entry.WithField("provider_id", p.ProviderID).WithField("source", p.Source).Info("new_provider")

	r.terminateAll(ctx)

	env := session.Environment{
		ProviderID:     p.ProviderID,
		DisplayBufnr:   p.DisplayBufnr,
		InputBufnr:     p.InputBufnr,
		StartBufnr:     p.StartBufnr,
		Winwidth:       p.Winwidth,
		IconEnabled:    p.IconEnabled,
		IconWidth:      p.IconWidth,
		PreviewEnabled: p.PreviewEnabled,
		Cwd:            p.Cwd,
	}

	providerCtx, cancel := context.WithCancel(r.rootCtx)
	inst := &providerInstance{id: p.ProviderID, kind: p.Source, cancel: cancel}

	log := logging.Component(r.log, "session").WithField("provider_id", p.ProviderID)

	var hooks session.Hooks
	switch p.Source {
	case "grep":
		hooks = r.buildGrepHooks(providerCtx, inst, env, p, log)
	case "history":
		hooks = r.buildHistoryHooks(providerCtx, inst, env, p, log)
	default:
		hooks = r.buildFilesHooks(providerCtx, inst, env, p, log)
	}
	hooks.OnTerminate = func(ctx context.Context) {
		inst.terminateOnce.Do(func() {
			r.mu.Lock()
			delete(r.providers, inst.id)
			r.mu.Unlock()
		})
	}

	inst.sess = session.New(env, hooks, session.WithDebounce(r.cfg.DebounceTyped), session.WithLogger(log))
	inst.loop = session.NewLoop(inst.sess)
	go inst.loop.Run(providerCtx)

	r.mu.Lock()
	r.providers[p.ProviderID] = inst
	r.active = p.ProviderID
	r.mu.Unlock()

	if err := inst.sess.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("new_provider: initialize: %w", err)
	}
	if p.Query != "" {
		if err := inst.sess.InitialQuery(ctx, p.Query); err != nil {
			return nil, fmt.Errorf("new_provider: initial query: %w", err)
		}
	}

	return map[string]any{"provider_id": p.ProviderID}, nil
}

// ExitProvider implements rpc.ProviderHandler.
func (r *registry) ExitProvider(ctx context.Context, raw json.RawMessage) (any, error) {
	var p exitProviderParams
	_ = json.Unmarshal(raw, &p)
	id := p.ProviderID
	if id == "" {
		r.mu.Lock()
		id = r.active
		r.mu.Unlock()
	}
	r.terminate(ctx, id)
	return nil, nil
}

func (r *registry) terminateAll(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.terminate(ctx, id)
	}
}

func (r *registry) terminate(ctx context.Context, id string) {
	r.mu.Lock()
	inst, ok := r.providers[id]
	if ok {
		delete(r.providers, id)
		if r.active == id {
			r.active = ""
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	inst.loop.Send(ctx, session.Event{Kind: session.EventExit})
	inst.sess.Terminate(ctx)
	inst.cancel()
}

func (r *registry) closeAll() {
	r.terminateAll(context.Background())

	r.lspMu.Lock()
	if r.lspClient != nil {
		_ = r.lspClient.Shutdown(context.Background())
	}
	r.lspMu.Unlock()

	r.mdMu.Lock()
	if r.mdServer != nil {
		_ = r.mdServer.Shutdown()
	}
	r.mdMu.Unlock()
}

func (r *registry) lookup(providerID string) (*providerInstance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if providerID == "" {
		providerID = r.active
	}
	inst, ok := r.providers[providerID]
	return inst, ok
}

// OnTyped implements rpc.EventHandler.
func (r *registry) OnTyped(ctx context.Context, raw json.RawMessage) (any, error) {
	var p onTypedParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("on_typed: decode params: %w", err)
	}
	inst, ok := r.lookup(p.ProviderID)
	if !ok {
		return nil, nil
	}
	inst.loop.Send(ctx, session.Event{Kind: session.EventOnTyped, Input: p.Input})
	return nil, nil
}

// OnMove implements rpc.EventHandler.
func (r *registry) OnMove(ctx context.Context, raw json.RawMessage) (any, error) {
	var p onMoveParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("on_move: decode params: %w", err)
	}
	inst, ok := r.lookup(p.ProviderID)
	if !ok {
		return nil, nil
	}
	inst.setSelection(p)
	inst.loop.Send(ctx, session.Event{Kind: session.EventOnMove})
	return nil, nil
}

// KeyEvent implements rpc.EventHandler.
func (r *registry) KeyEvent(ctx context.Context, raw json.RawMessage) (any, error) {
	var p keyEventParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("key_event: decode params: %w", err)
	}
	inst, ok := r.lookup(p.ProviderID)
	if !ok {
		return nil, nil
	}
	inst.loop.Send(ctx, session.Event{Kind: session.EventKey, Key: p.Key})
	return nil, nil
}

// AutocmdEvent implements rpc.EventHandler. The only autocmd this core
// acts on is a debounce reconfiguration request; anything else is
// logged and dropped, since autocmd handling beyond that is the
// editor plugin's responsibility, not the compute core's.
func (r *registry) AutocmdEvent(ctx context.Context, raw json.RawMessage) (any, error) {
	var p struct {
		ProviderID  string `json:"provider_id"`
		SetDebounce int64  `json:"set_debounce_ms"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("autocmd_event: decode params: %w", err)
	}
	inst, ok := r.lookup(p.ProviderID)
	if !ok || p.SetDebounce <= 0 {
		return nil, nil
	}
	inst.loop.Send(ctx, session.Event{
		Kind:     session.EventInternal,
		Internal: session.InternalEvent{SetDebounce: msToDuration(p.SetDebounce)},
	})
	return nil, nil
}
