// Package scanner implements the two bounded, newest-first walks over a
// thread's posts: the incremental scan that resumes from a checkpoint, and
// the rolling-window scan that re-derives the trailing window from scratch.
package scanner

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forumkita/marketpulse/internal/model"
	"github.com/forumkita/marketpulse/pkg/forum"
)

const (
	// defaultIncrementalCap bounds the incremental scan: it covers the case
	// where the checkpoint post was deleted and would never be encountered.
	defaultIncrementalCap = 100

	defaultPageSize = 25

	modeIncremental = "incremental"
)

// Scanner walks thread posts through the forum API.
type Scanner struct {
	forum          forum.Client
	clock          func() time.Time
	incrementalCap int
	pageSize       int
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithClock injects a clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Scanner) {
		s.clock = clock
	}
}

// WithIncrementalCap overrides the incremental scan's post cap.
func WithIncrementalCap(n int) Option {
	return func(s *Scanner) {
		s.incrementalCap = n
	}
}

// WithPageSize overrides the listing page size.
func WithPageSize(n int) Option {
	return func(s *Scanner) {
		s.pageSize = n
	}
}

// New creates a Scanner over the given forum client.
func New(fc forum.Client, opts ...Option) *Scanner {
	s := &Scanner{
		forum:          fc,
		clock:          time.Now,
		incrementalCap: defaultIncrementalCap,
		pageSize:       defaultPageSize,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ScanNew returns the posts strictly newer than the checkpoint, newest
// first, and the advanced checkpoint. It pages newest-first and stops the
// moment it sees the checkpointed post id, or after the safety cap. The
// checkpoint only ever advances: with no new posts the input checkpoint is
// returned unchanged.
func (s *Scanner) ScanNew(ctx context.Context, threadID string, cp model.Checkpoint) ([]model.Post, model.Checkpoint, error) {
	var collected []model.Post
	cursor := ""

scan:
	for {
		page, err := s.forum.ListPosts(ctx, threadID, forum.PostListParams{
			Filter: forum.SortNewest,
			Cursor: cursor,
			Limit:  s.pageSize,
		})
		if err != nil {
			return nil, cp, eris.Wrapf(err, "scanner: incremental scan thread %s", threadID)
		}
		if len(page.Posts) == 0 {
			break
		}

		for _, post := range page.Posts {
			if post.ID == cp.LastPostIDProcessed {
				break scan
			}
			collected = append(collected, post)
			if len(collected) >= s.incrementalCap {
				zap.L().Warn("scanner: incremental scan hit post cap",
					zap.String("thread_id", threadID),
					zap.Int("cap", s.incrementalCap),
				)
				break scan
			}
		}

		cursor = page.NextPostCursor
		if cursor == "" {
			break
		}
	}

	if len(collected) == 0 {
		return nil, cp, nil
	}

	next := model.Checkpoint{
		Mode:                modeIncremental,
		LastPostIDProcessed: collected[0].ID,
		At:                  s.clock().UTC(),
	}
	return collected, next, nil
}

// ScanWindow returns all posts within the trailing windowDays-day window,
// newest first. It walks newest-first and stops as soon as a post's creation
// time falls before the cutoff; unlike the incremental scan there is no page
// cap, the window bound is the bound.
func (s *Scanner) ScanWindow(ctx context.Context, threadID string, windowDays int) ([]model.Post, error) {
	cutoff := s.clock().UTC().AddDate(0, 0, -windowDays)

	var collected []model.Post
	cursor := ""

scan:
	for {
		page, err := s.forum.ListPosts(ctx, threadID, forum.PostListParams{
			Filter: forum.SortNewest,
			Cursor: cursor,
			Limit:  s.pageSize,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "scanner: window scan thread %s", threadID)
		}
		if len(page.Posts) == 0 {
			break
		}

		for _, post := range page.Posts {
			if post.CreatedAt.Before(cutoff) {
				break scan
			}
			collected = append(collected, post)
		}

		cursor = page.NextPostCursor
		if cursor == "" {
			break
		}
	}

	return collected, nil
}

// ValidTrades extracts the valid trade records from posts, preserving post
// order (newest first): classified as a trade, still ACTIVE, with a
// normalized price.
func ValidTrades(posts []model.Post) []model.TradeRecord {
	var out []model.TradeRecord
	for _, p := range posts {
		if rec := p.ExtendedData.Trade; rec.IsValid() {
			out = append(out, *rec)
		}
	}
	return out
}
