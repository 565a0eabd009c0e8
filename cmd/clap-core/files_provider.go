package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/liuchengxu/vim-clap-sub000/internal/item"
	"github.com/liuchengxu/vim-clap-sub000/internal/preview"
	"github.com/liuchengxu/vim-clap-sub000/internal/query"
	"github.com/liuchengxu/vim-clap-sub000/internal/rank"
	"github.com/liuchengxu/vim-clap-sub000/internal/rpc"
	"github.com/liuchengxu/vim-clap-sub000/internal/session"
)

// buildFilesHooks wires an in-memory candidate list (the "files"
// provider kind, also used for any source the editor collects and
// sends up front as plain lines) to the streaming fuzzy-rank engine.
// Each on_typed firing re-scores the whole source under a scorer
// derived from the freshly typed query, with the previous scan
// cancelled cooperatively through session.StartSearcher before the new
// one begins.
func (r *registry) buildFilesHooks(providerCtx context.Context, inst *providerInstance, env session.Environment, p newProviderParams, log *logrus.Entry) session.Hooks {
	lines := p.Lines
	renderer := preview.NewRenderer(preview.Options{
		PreviewHeight:    r.cfg.PreviewHeight,
		DisplayLineWidth: r.cfg.PreviewLineWidth,
		Cwd:              p.Cwd,
	}, preview.NewCache(128))

	return session.Hooks{
		OnInitialize: func(ctx context.Context) (session.SourceSize, error) {
			switch n := len(lines); {
			case n < 10_000:
				return session.SourceSizeSmall, nil
			case n < 100_000:
				return session.SourceSizeMedium, nil
			case n < 200_000:
				return session.SourceSizeLarge, nil
			default:
				return session.SourceSizeUnknown, nil
			}
		},

		OnTyped: func(ctx context.Context, input string) error {
			searchCtx, ctrl := inst.sess.StartSearcher(providerCtx)
			defer ctrl.MarkDone()

			scorer := query.NewScorer(query.Parse(input))
			engine := rank.New(scorer, rank.Options{
				Capacity:  r.cfg.ItemsToShow,
				Icon:      "",
				IconWidth: env.IconWidth,
			})

			stream := make(chan rank.StreamItem)
			go func() {
				defer close(stream)
				for _, line := range lines {
					if ctrl.Stopped() {
						return
					}
					select {
					case stream <- rank.StreamItem{Item: item.Item{RawText: line}}:
					case <-searchCtx.Done():
						return
					}
				}
			}()

			_, err := engine.CollectAll(searchCtx, stream, func(snap rank.Snapshot) {
				if ctrl.Stopped() {
					return
				}
				payload := rpc.UpdatePayload{
					Matched:   uint64(snap.Matched),
					Processed: uint64(snap.Processed),
					IconAdded: env.IconEnabled,
				}
				if !snap.LinesUnchanged {
					payload.Lines = snap.Lines
					payload.Indices = snap.Indices
				}
				if err := r.disp.NotifyPickerUpdateMsg(payload); err != nil {
					log.WithError(err).Warn("files: notify picker update")
				}
			})
			if err != nil && ctx.Err() == nil {
				log.WithError(err).Debug("files: collect ended")
			}
			return nil
		},

		OnMove: func(ctx context.Context) error {
			sel := inst.getSelection()
			if sel.CurLine == "" {
				return nil
			}
			rendered, err := renderer.Render(preview.Target{Kind: preview.TargetStartOfFile, Path: sel.CurLine})
			if err != nil {
				log.WithError(err).Debug("files: preview render")
				return nil
			}
			return r.disp.Notify(rpc.NotifyPickerUpdatePreview, rendered)
		},

		OnKey: nil,
	}
}
