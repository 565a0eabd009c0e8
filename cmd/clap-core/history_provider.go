package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/liuchengxu/vim-clap-sub000/internal/input/fuzzy"
	"github.com/liuchengxu/vim-clap-sub000/internal/rpc"
	"github.com/liuchengxu/vim-clap-sub000/internal/session"
)

// historyParallelThreshold is the entry count above which the history
// provider matches on AsyncMatcher's worker pool instead of Matcher's
// single-goroutine path; GlobalHistory rarely grows this large within
// one process lifetime, but a long-running daemon across many editor
// sessions eventually will.
const historyParallelThreshold = 2000

// buildHistoryHooks wires the "history" provider kind to the
// process-wide input history recorded by every terminated session
// (internal/session.GlobalHistory), fuzzy-filtering past on_typed
// entries the same way the "files"/"grep" providers filter their own
// sources.
func (r *registry) buildHistoryHooks(providerCtx context.Context, inst *providerInstance, env session.Environment, p newProviderParams, log *logrus.Entry) session.Hooks {
	matcher := fuzzy.NewMatcher(fuzzy.DefaultOptions())
	async := fuzzy.NewAsyncMatcher(matcher, 0)

	return session.Hooks{
		OnTyped: func(ctx context.Context, input string) error {
			entries := session.GlobalHistory.Entries()
			items := make([]fuzzy.Item, len(entries))
			for i, e := range entries {
				items[i] = fuzzy.Item{Text: e}
			}

			var results []fuzzy.Result
			if len(items) >= historyParallelThreshold {
				results = async.MatchParallel(ctx, input, items, r.cfg.ItemsToShow)
			} else {
				results = matcher.Match(input, items, r.cfg.ItemsToShow)
			}

			lines := make([]string, len(results))
			indices := make([][]int, len(results))
			for i, res := range results {
				lines[i] = res.Item.Text
				indices[i] = res.Matches
			}

			return r.disp.NotifyPickerUpdateMsg(rpc.UpdatePayload{
				Matched:   uint64(len(results)),
				Processed: uint64(len(items)),
				Lines:     lines,
				Indices:   indices,
				IconAdded: env.IconEnabled,
			})
		},
	}
}
