// Package analyzer orchestrates a market analysis run: it selects candidate
// threads, leases them, classifies new posts, recomputes the rolling window,
// and refreshes snapshots and narratives. A run never aborts on a single
// thread; every per-thread error is captured in the run report.
package analyzer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forumkita/marketpulse/internal/model"
	"github.com/forumkita/marketpulse/internal/scanner"
	"github.com/forumkita/marketpulse/internal/stats"
	"github.com/forumkita/marketpulse/internal/store"
	"github.com/forumkita/marketpulse/internal/trade"
	"github.com/forumkita/marketpulse/pkg/aiassist"
	"github.com/forumkita/marketpulse/pkg/forum"
)

// Options bundle the run-level knobs.
type Options struct {
	// MaxThreadsPerRun caps how many candidate threads one run touches.
	MaxThreadsPerRun int

	// LeaseTTL is how long a thread lease lives. A lease is deliberately
	// kept after a successful run; its remaining lifetime is the per-thread
	// debounce window.
	LeaseTTL time.Duration

	// RescanInterval forces a window rescan for threads with no new posts
	// once this much time has passed since the last cutoff.
	RescanInterval time.Duration

	// WindowDays is the rolling-window width for threads that don't carry
	// their own.
	WindowDays int

	// MinValidTrades is the unlock threshold for threads that don't carry
	// their own.
	MinValidTrades int

	// Refresh holds the narrative refresh thresholds.
	Refresh stats.RefreshConfig
}

// DefaultOptions returns the standard run options.
func DefaultOptions() Options {
	return Options{
		MaxThreadsPerRun: 10,
		LeaseTTL:         5 * time.Minute,
		RescanInterval:   time.Hour,
		WindowDays:       30,
		MinValidTrades:   10,
		Refresh:          stats.DefaultRefreshConfig(),
	}
}

// Analyzer runs the market analysis pipeline.
type Analyzer struct {
	forum   forum.Client
	scanner *scanner.Scanner
	builder *trade.Builder
	store   store.Store
	ai      aiassist.Client
	opts    Options
	clock   func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClock injects a clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(a *Analyzer) {
		a.clock = clock
	}
}

// New creates an Analyzer. ai may be nil; narratives are then skipped and
// snapshots still refresh.
func New(fc forum.Client, sc *scanner.Scanner, b *trade.Builder, st store.Store, ai aiassist.Client, opts Options, extra ...Option) *Analyzer {
	a := &Analyzer{
		forum:   fc,
		scanner: sc,
		builder: b,
		store:   st,
		ai:      ai,
		opts:    opts,
		clock:   time.Now,
	}
	for _, o := range extra {
		o(a)
	}
	return a
}

// Run executes one full analysis pass and persists the report. The returned
// report is always non-nil; only a candidate-listing failure sets its Error
// field, and even then the report is saved.
func (a *Analyzer) Run(ctx context.Context) (*model.RunReport, error) {
	runID := uuid.NewString()
	report := &model.RunReport{
		ID:        runID,
		StartedAt: a.clock().UTC(),
	}

	zap.L().Info("analyzer: run started", zap.String("run_id", runID))

	candidates, err := a.listCandidates(ctx)
	if err != nil {
		report.Error = err.Error()
		report.FinishedAt = a.clock().UTC()
		a.saveReport(ctx, report)
		return report, err
	}
	report.Candidates = len(candidates)

	for _, thread := range candidates {
		result := a.processThread(ctx, runID, thread)
		report.Results = append(report.Results, result)
		switch result.Outcome {
		case model.OutcomeProcessed:
			report.Processed++
		case model.OutcomeSkipped:
			report.Skipped++
		case model.OutcomeFailed:
			report.Failed++
		}
	}

	report.FinishedAt = a.clock().UTC()
	a.saveReport(ctx, report)

	zap.L().Info("analyzer: run finished",
		zap.String("run_id", runID),
		zap.Int("candidates", report.Candidates),
		zap.Int("processed", report.Processed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// listCandidates pages through all threads and keeps the market-enabled ones,
// up to the per-run cap.
func (a *Analyzer) listCandidates(ctx context.Context) ([]model.Thread, error) {
	var candidates []model.Thread
	cursor := ""

	for {
		page, err := a.forum.ListThreads(ctx, forum.ThreadListParams{Cursor: cursor})
		if err != nil {
			return nil, eris.Wrap(err, "analyzer: list threads")
		}
		for _, t := range page.Threads {
			market := t.ExtendedData.Market
			if market == nil || !market.MarketEnabled {
				continue
			}
			candidates = append(candidates, t)
			if len(candidates) >= a.opts.MaxThreadsPerRun {
				return candidates, nil
			}
		}
		cursor = page.NextThreadCursor
		if cursor == "" {
			return candidates, nil
		}
	}
}

func (a *Analyzer) processThread(ctx context.Context, owner string, thread model.Thread) model.ThreadResult {
	started := a.clock()
	result := model.ThreadResult{ThreadID: thread.ID}

	acquired, err := a.store.AcquireLease(ctx, thread.ID, owner, a.opts.LeaseTTL)
	if err != nil {
		result.Outcome = model.OutcomeFailed
		result.Error = err.Error()
		return result
	}
	if !acquired {
		result.Outcome = model.OutcomeSkipped
		result.SkipReason = "lease held"
		zap.L().Debug("analyzer: thread lease held, skipping", zap.String("thread_id", thread.ID))
		return result
	}

	if err := a.analyzeThread(ctx, thread, &result); err != nil {
		result.Outcome = model.OutcomeFailed
		result.Error = err.Error()
		zap.L().Warn("analyzer: thread failed",
			zap.String("thread_id", thread.ID),
			zap.Error(err),
		)
		// Release on failure so the next run can retry immediately. On
		// success the lease is kept: its TTL is the debounce.
		if relErr := a.store.ReleaseLease(ctx, thread.ID, owner); relErr != nil {
			zap.L().Warn("analyzer: lease release failed",
				zap.String("thread_id", thread.ID),
				zap.Error(relErr),
			)
		}
	} else {
		result.Outcome = model.OutcomeProcessed
	}

	result.DurationMs = a.clock().Sub(started).Milliseconds()
	return result
}

// analyzeThread runs the incremental scan, the conditional window rescan, and
// the snapshot/narrative refresh for a single thread, then persists the
// updated market state.
func (a *Analyzer) analyzeThread(ctx context.Context, thread model.Thread, result *model.ThreadResult) error {
	state := *thread.ExtendedData.Market
	now := a.clock().UTC()

	newPosts, checkpoint, err := a.scanner.ScanNew(ctx, thread.ID, state.LastProcessed)
	if err != nil {
		return err
	}
	result.NewPosts = len(newPosts)

	for _, post := range newPosts {
		if err := a.classifyAndPersist(ctx, post); err != nil {
			return err
		}
	}

	rescan := len(newPosts) > 0 ||
		state.LastWindowCutoffAt.IsZero() ||
		now.Sub(state.LastWindowCutoffAt) > a.opts.RescanInterval

	if rescan {
		if err := a.rescanWindow(ctx, thread.ID, &state, result); err != nil {
			return err
		}
		state.LastWindowCutoffAt = now
	} else {
		result.ValidCount = state.ValidCount
	}

	state.LastProcessed = checkpoint

	patch := map[string]any{"market": &state}
	if err := a.forum.UpdateThreadExtendedData(ctx, thread.ID, patch); err != nil {
		return eris.Wrapf(err, "analyzer: persist market state thread %s", thread.ID)
	}
	return nil
}

// rescanWindow re-derives the valid trade set from the rolling window and
// refreshes analytics against the unlock threshold.
func (a *Analyzer) rescanWindow(ctx context.Context, threadID string, state *model.ThreadMarketState, result *model.ThreadResult) error {
	result.Rescanned = true

	posts, err := a.scanner.ScanWindow(ctx, threadID, a.windowDays(state))
	if err != nil {
		return err
	}

	// Older posts inside the window may never have been classified; the
	// strong-record guard makes re-runs over classified posts cheap.
	for i := range posts {
		rec, changed, err := a.classifyPost(ctx, &posts[i])
		if err != nil {
			return err
		}
		if changed {
			posts[i].ExtendedData.Trade = rec
		}
	}

	valid := scanner.ValidTrades(posts)
	state.ValidCount = len(valid)
	result.ValidCount = len(valid)

	threshold := a.minValidTrades(state)
	wasLocked := state.Analytics.Locked

	if len(valid) < threshold {
		state.Analytics.Locked = true
		return nil
	}

	snapshot := stats.Compute(state.MarketType(), valid)
	previous := state.Analytics.Snapshot
	now := a.clock().UTC()

	result.SnapshotComputed = true
	state.Analytics.Snapshot = snapshot
	state.Analytics.UpdatedAt = now
	state.Analytics.Locked = false
	state.Analytics.Version++
	result.AnalyticsUnlocked = wasLocked

	if stats.NeedsRefresh(previous, snapshot, a.opts.Refresh) {
		a.refreshNarrative(ctx, threadID, state, snapshot, previous, result)
	}
	return nil
}

// refreshNarrative regenerates the AI narrative. Failures keep the previous
// narrative in place; a stale narrative beats none.
func (a *Analyzer) refreshNarrative(ctx context.Context, threadID string, state *model.ThreadMarketState, cur, prev *model.Snapshot, result *model.ThreadResult) {
	if a.ai == nil {
		return
	}

	narrative, err := a.ai.Narrate(ctx, aiassist.NarrativeInput{
		MarketType: state.MarketType(),
		Current:    cur,
		Previous:   prev,
	})
	if err != nil {
		zap.L().Warn("analyzer: narrative generation failed, keeping previous",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		return
	}

	state.Analytics.Narrative = narrative
	state.Analytics.NarrativeUpdatedAt = a.clock().UTC()
	result.NarrativeRefresh = true
}

func (a *Analyzer) classifyAndPersist(ctx context.Context, post model.Post) error {
	_, _, err := a.classifyPost(ctx, &post)
	return err
}

func (a *Analyzer) classifyPost(ctx context.Context, post *model.Post) (*model.TradeRecord, bool, error) {
	rec, changed := a.builder.Build(ctx, *post)
	if !changed {
		return rec, false, nil
	}
	patch := map[string]any{"trade": rec}
	if err := a.forum.UpdatePostExtendedData(ctx, post.ID, patch); err != nil {
		return nil, false, eris.Wrapf(err, "analyzer: persist trade record post %s", post.ID)
	}
	return rec, true, nil
}

func (a *Analyzer) windowDays(state *model.ThreadMarketState) int {
	if state.WindowDays > 0 {
		return state.WindowDays
	}
	return a.opts.WindowDays
}

func (a *Analyzer) minValidTrades(state *model.ThreadMarketState) int {
	if state.ThresholdValid > 0 {
		return state.ThresholdValid
	}
	return a.opts.MinValidTrades
}

func (a *Analyzer) saveReport(ctx context.Context, report *model.RunReport) {
	if err := a.store.SaveRun(ctx, report); err != nil {
		zap.L().Error("analyzer: save run report failed",
			zap.String("run_id", report.ID),
			zap.Error(err),
		)
	}
}
