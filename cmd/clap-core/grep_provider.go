package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liuchengxu/vim-clap-sub000/internal/grep"
	"github.com/liuchengxu/vim-clap-sub000/internal/preview"
	"github.com/liuchengxu/vim-clap-sub000/internal/project/watcher"
	"github.com/liuchengxu/vim-clap-sub000/internal/query"
	"github.com/liuchengxu/vim-clap-sub000/internal/rpc"
	"github.com/liuchengxu/vim-clap-sub000/internal/session"
)

// grepRewalkDebounce is the delay given to watcher.DebouncedWatcher:
// repeated changes to one path within it become a single event. Events
// for different paths each send an on_typed, and the session loop's
// on_typed debounce collapses a burst of them (a build, a git
// checkout) into a single re-search.
const grepRewalkDebounce = 300 * time.Millisecond

// startRewalkWatcher watches roots recursively and re-triggers the
// session's on_typed firing (under the most recently typed query)
// whenever a file changes, so a live grep session sees new matches
// without the editor having to resend on_typed itself. It is closed
// when providerCtx is cancelled.
func startRewalkWatcher(providerCtx context.Context, inst *providerInstance, roots []string, log *logrus.Entry) {
	fsw, err := watcher.NewFSNotifyWatcher()
	if err != nil {
		log.WithError(err).Debug("grep: rewalk watcher unavailable")
		return
	}
	dw := watcher.NewDebouncedWatcher(fsw, grepRewalkDebounce)

	for _, root := range roots {
		if err := dw.WatchRecursive(root); err != nil {
			log.WithError(err).WithField("root", root).Debug("grep: watch root failed")
		}
	}

	go func() {
		<-providerCtx.Done()
		_ = dw.Close()
	}()

	go func() {
		for {
			select {
			case <-providerCtx.Done():
				return
			case _, ok := <-dw.Events():
				if !ok {
					return
				}
				q := inst.getLastQuery()
				inst.loop.Send(providerCtx, session.Event{Kind: session.EventOnTyped, Input: q})
			case err, ok := <-dw.Errors():
				if !ok {
					return
				}
				log.WithError(err).Debug("grep: rewalk watcher error")
			}
		}
	}()
}

// buildGrepHooks wires the parallel grep searcher (a directory walk
// under the provider's roots, scored line by line) to a bounded best-K
// buffer, emitting diff-suppressed picker updates exactly like the
// files provider but sourced from disk instead of an in-memory list.
func (r *registry) buildGrepHooks(providerCtx context.Context, inst *providerInstance, env session.Environment, p newProviderParams, log *logrus.Entry) session.Hooks {
	roots := p.Roots
	if len(roots) == 0 && p.Cwd != "" {
		roots = []string{p.Cwd}
	}
	includeGlobs, excludeGlobs := p.IncludeGlobs, p.ExcludeGlobs

	renderer := preview.NewRenderer(preview.Options{
		PreviewHeight:    r.cfg.PreviewHeight,
		DisplayLineWidth: r.cfg.PreviewLineWidth,
		Cwd:              p.Cwd,
	}, preview.NewCache(128))

	return session.Hooks{
		OnInitialize: func(ctx context.Context) (session.SourceSize, error) {
			startRewalkWatcher(providerCtx, inst, roots, log)
			return session.SourceSizeUnknown, nil
		},

		OnTyped: func(ctx context.Context, input string) error {
			inst.setLastQuery(input)
			newQuery := query.Parse(input)
			matcher := grep.BuildMatcher(newQuery)
			bestK := grep.NewBestK(r.cfg.GrepItemPoolSize)

			prevQuery, prevPool := inst.getSearchCache()
			if !prevQuery.Empty() && prevQuery.IsSuperset(newQuery) && len(prevPool) > 0 {
				// The previous query's result set is guaranteed to be a
				// superset of this one's (only terms were added), so
				// re-score the small cached best-K pool instead of
				// re-walking the filesystem. This trades completeness
				// (a line outside the previous top-K can never resurface)
				// for speed, the same tradeoff an incremental fuzzy
				// filter makes.
				for _, prev := range prevPool {
					scored, ok := matcher(prev.Path, []byte(prev.Text))
					if !ok {
						continue
					}
					bestK.Insert(grep.FileResult{
						Path:        prev.Path,
						Line:        prev.Line,
						Rank:        scored.Rank,
						Text:        prev.Text,
						PathIndices: scored.ExactIndices,
						LineIndices: scored.FuzzyIndices,
					})
					bestK.ProcessedOne()
				}
				inst.setSearchCache(newQuery, r.emitGrepSnapshot(bestK, env))
				return nil
			}

			searchCtx, sessCtrl := inst.sess.StartSearcher(providerCtx)
			defer sessCtrl.MarkDone()

			grepCtrl := &grep.Control{}
			go func() {
				<-searchCtx.Done()
				grepCtrl.Stop()
			}()

			messages := grep.Search(searchCtx, grep.Options{
				Roots:        roots,
				Matcher:      matcher,
				Control:      grepCtrl,
				IncludeGlobs: includeGlobs,
				ExcludeGlobs: excludeGlobs,
			}, log)

			var lastNotify time.Time
			for msg := range messages {
				if sessCtrl.Stopped() {
					continue
				}
				switch msg.Kind {
				case grep.MessageMatch:
					bestK.Insert(msg.Match)
				case grep.MessageProcessedOne:
					bestK.ProcessedOne()
				}
				if time.Since(lastNotify) >= r.cfg.GrepUpdateInterval {
					r.emitGrepSnapshot(bestK, env)
					lastNotify = time.Now()
				}
			}
			inst.setSearchCache(newQuery, r.emitGrepSnapshot(bestK, env))
			return nil
		},

		OnMove: func(ctx context.Context) error {
			sel := inst.getSelection()
			if sel.CurLine == "" {
				return nil
			}
			rendered, err := renderer.Render(preview.Target{
				Kind: preview.TargetLocationInFile,
				Path: sel.CurLine,
				Line: sel.Lnum,
			})
			if err != nil {
				log.WithError(err).Debug("grep: preview render")
				return nil
			}
			return r.disp.Notify(rpc.NotifyPickerUpdatePreview, rendered)
		},
	}
}

// emitGrepSnapshot renders bestK's current state, notifying the editor
// only when the visible content actually changed, and always returns
// the current result set so the caller can cache it for a later
// refinement query.
func (r *registry) emitGrepSnapshot(bestK *grep.BestK, env session.Environment) []grep.FileResult {
	snap := bestK.Render()
	if snap.LinesUnchanged {
		return snap.Results
	}
	lines := make([]string, len(snap.Results))
	indices := make([][]int, len(snap.Results))
	for i, res := range snap.Results {
		lines[i] = res.Text
		indices[i] = res.LineIndices
	}
	_ = r.disp.NotifyPickerUpdateMsg(rpc.UpdatePayload{
		Matched:   uint64(snap.Matched),
		Processed: uint64(snap.Processed),
		Lines:     lines,
		Indices:   indices,
		IconAdded: env.IconEnabled,
	})
	return snap.Results
}
