package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/liuchengxu/vim-clap-sub000/internal/logging"
	"github.com/liuchengxu/vim-clap-sub000/internal/mdserver"
)

type markdownStartParams struct {
	Path string `json:"path"`
	Addr string `json:"addr,omitempty"`
}

type markdownSwitchParams struct {
	Path string `json:"path"`
}

// markdownAction implements rpc.ActionHandler for the "markdown"
// plugin ID: starting the live-preview websocket server, switching it
// to a different file, and stopping it.
func (r *registry) markdownAction(ctx context.Context, action string, raw json.RawMessage) (any, error) {
	switch action {
	case "start":
		var p markdownStartParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("markdown/start: decode params: %w", err)
		}
		return r.startMarkdownServer(ctx, p)

	case "switch":
		var p markdownSwitchParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("markdown/switch: decode params: %w", err)
		}
		r.mdMu.Lock()
		srv := r.mdServer
		r.mdMu.Unlock()
		if srv == nil {
			return nil, fmt.Errorf("markdown/switch: server not started")
		}
		srv.Switch(p.Path)
		return nil, nil

	case "stop":
		r.mdMu.Lock()
		srv := r.mdServer
		r.mdServer = nil
		r.mdMu.Unlock()
		if srv == nil {
			return nil, nil
		}
		return nil, srv.Shutdown()

	default:
		return nil, fmt.Errorf("markdown/%s: unknown action", action)
	}
}

func (r *registry) startMarkdownServer(ctx context.Context, p markdownStartParams) (any, error) {
	r.mdMu.Lock()
	if r.mdServer != nil {
		srv := r.mdServer
		r.mdMu.Unlock()
		srv.Switch(p.Path)
		return map[string]any{"addr": p.Addr}, nil
	}
	r.mdMu.Unlock()

	addr := p.Addr
	if addr == "" {
		addr = r.cfg.MarkdownServerAddr
	}

	log := logging.Component(r.log, "mdserver")
	srv := mdserver.New(p.Path, r.cfg.MarkdownPollInterval, log)

	bound := make(chan string, 1)
	go func() {
		if err := srv.ListenAndServe(r.rootCtx, addr, bound); err != nil {
			log.WithError(err).Error("markdown server exited")
		}
	}()

	r.mdMu.Lock()
	r.mdServer = srv
	r.mdMu.Unlock()

	select {
	case boundAddr := <-bound:
		return map[string]any{"addr": boundAddr}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
