package scanner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumkita/marketpulse/internal/model"
	"github.com/forumkita/marketpulse/pkg/forum"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// fakeForum serves a fixed post list, newest first, in pages.
type fakeForum struct {
	posts    []model.Post
	pageSize int
	calls    int
	err      error
}

func (f *fakeForum) ListPosts(ctx context.Context, threadID string, params forum.PostListParams) (*forum.PostPage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	start := 0
	if params.Cursor != "" {
		fmt.Sscanf(params.Cursor, "%d", &start)
	}
	size := f.pageSize
	if params.Limit > 0 && params.Limit < size {
		size = params.Limit
	}
	end := start + size
	next := ""
	if end >= len(f.posts) {
		end = len(f.posts)
	} else {
		next = fmt.Sprintf("%d", end)
	}
	return &forum.PostPage{Posts: f.posts[start:end], NextPostCursor: next}, nil
}

func (f *fakeForum) ListThreads(ctx context.Context, params forum.ThreadListParams) (*forum.ThreadPage, error) {
	return &forum.ThreadPage{}, nil
}

func (f *fakeForum) UpdateThreadExtendedData(ctx context.Context, threadID string, patch map[string]any) error {
	return nil
}

func (f *fakeForum) UpdatePostExtendedData(ctx context.Context, postID string, patch map[string]any) error {
	return nil
}

// makePosts builds n posts, newest first, spaced an hour apart.
func makePosts(n int) []model.Post {
	posts := make([]model.Post, n)
	for i := range posts {
		posts[i] = model.Post{
			ID:        fmt.Sprintf("p%03d", n-i),
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
			Body:      "WTS something",
		}
	}
	return posts
}

func TestScanNew_StopsAtCheckpoint(t *testing.T) {
	ff := &fakeForum{posts: makePosts(20), pageSize: 5}
	s := New(ff, WithClock(clock))

	cp := model.Checkpoint{LastPostIDProcessed: "p013"} // 7 posts are newer
	posts, next, err := s.ScanNew(context.Background(), "t1", cp)

	require.NoError(t, err)
	assert.Len(t, posts, 7)
	// Newest first, checkpoint post itself excluded.
	assert.Equal(t, "p020", posts[0].ID)
	assert.Equal(t, "p014", posts[len(posts)-1].ID)
	assert.Equal(t, "p020", next.LastPostIDProcessed)
	assert.Equal(t, now, next.At)
}

func TestScanNew_NoNewPostsLeavesCheckpointUnchanged(t *testing.T) {
	ff := &fakeForum{posts: makePosts(5), pageSize: 5}
	s := New(ff, WithClock(clock))

	cp := model.Checkpoint{LastPostIDProcessed: "p005", At: now.Add(-time.Hour)}
	posts, next, err := s.ScanNew(context.Background(), "t1", cp)

	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Equal(t, cp, next, "checkpoint must not move without observed posts")
}

func TestScanNew_CapWhenCheckpointPostDeleted(t *testing.T) {
	ff := &fakeForum{posts: makePosts(200), pageSize: 25}
	s := New(ff, WithClock(clock))

	// Checkpoint id that no longer exists: the cap bounds the walk.
	posts, next, err := s.ScanNew(context.Background(), "t1", model.Checkpoint{LastPostIDProcessed: "deleted"})

	require.NoError(t, err)
	assert.Len(t, posts, 100)
	assert.Equal(t, "p200", next.LastPostIDProcessed)
}

func TestScanNew_EmptyCheckpointWalksFromNewest(t *testing.T) {
	ff := &fakeForum{posts: makePosts(3), pageSize: 5}
	s := New(ff, WithClock(clock))

	posts, next, err := s.ScanNew(context.Background(), "t1", model.Checkpoint{})

	require.NoError(t, err)
	assert.Len(t, posts, 3)
	assert.Equal(t, "p003", next.LastPostIDProcessed)
}

func TestScanNew_PropagatesForumError(t *testing.T) {
	ff := &fakeForum{err: eris.New("forum down")}
	s := New(ff, WithClock(clock))

	_, cp, err := s.ScanNew(context.Background(), "t1", model.Checkpoint{LastPostIDProcessed: "x"})
	assert.Error(t, err)
	assert.Equal(t, "x", cp.LastPostIDProcessed)
}

func TestScanWindow_StopsAtCutoff(t *testing.T) {
	// 20 posts spaced 4 hours apart against a 1-day window.
	posts := make([]model.Post, 20)
	for i := range posts {
		posts[i] = model.Post{
			ID:        fmt.Sprintf("p%03d", 20-i),
			CreatedAt: now.Add(-time.Duration(i*4) * time.Hour),
		}
	}
	ff := &fakeForum{posts: posts, pageSize: 6}
	s := New(ff, WithClock(clock))

	got, err := s.ScanWindow(context.Background(), "t1", 1)

	require.NoError(t, err)
	// Posts at 0,4,...,24h ago; the 24h-old one is not before the cutoff.
	assert.Len(t, got, 7)
	cutoff := now.AddDate(0, 0, -1)
	for _, p := range got {
		assert.False(t, p.CreatedAt.Before(cutoff))
	}
}

func TestScanWindow_AllPostsInsideWindow(t *testing.T) {
	ff := &fakeForum{posts: makePosts(10), pageSize: 4}
	s := New(ff, WithClock(clock))

	got, err := s.ScanWindow(context.Background(), "t1", 7)
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestValidTrades_FiltersByStatusAndPrice(t *testing.T) {
	valid := &model.TradeRecord{
		IsTrade:         true,
		Status:          model.TradeStatusActive,
		NormalizedPrice: model.Float64Ptr(100),
	}
	sold := &model.TradeRecord{
		IsTrade:         true,
		Status:          model.TradeStatusSold,
		NormalizedPrice: model.Float64Ptr(100),
	}
	noPrice := &model.TradeRecord{
		IsTrade: true,
		Status:  model.TradeStatusActive,
	}
	posts := []model.Post{
		{ID: "a", ExtendedData: model.PostExtended{Trade: valid}},
		{ID: "b", ExtendedData: model.PostExtended{Trade: sold}},
		{ID: "c", ExtendedData: model.PostExtended{Trade: noPrice}},
		{ID: "d"}, // never classified
		{ID: "e", ExtendedData: model.PostExtended{Trade: valid}},
	}

	got := ValidTrades(posts)
	assert.Len(t, got, 2)
}
