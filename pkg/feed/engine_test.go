package feed

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/meower-media/feedsync/pkg/events"
	"github.com/meower-media/feedsync/pkg/fetcher"
	"github.com/meower-media/feedsync/pkg/posts"
	"github.com/meower-media/feedsync/pkg/realtime"
	"github.com/rs/zerolog"
)

var testKey = posts.FeedKey{ChannelId: "c1", Date: "20240301"}

type quietStream struct {
	frames chan []byte
}

func (s quietStream) Frames() <-chan []byte { return s.frames }
func (s quietStream) Err() error            { return nil }
func (s quietStream) Resumed() bool         { return false }
func (s quietStream) Close() error          { return nil }

type quietTransport struct{}

func (quietTransport) Open(ctx context.Context, channelId string, relation events.Relation) (realtime.Stream, error) {
	return quietStream{frames: make(chan []byte)}, nil
}

// server is a Fetcher over an in-memory newest-first post list.
type server struct {
	mu        sync.Mutex
	posts     []posts.Post
	comments  map[string][]posts.Comment
	pageLoads int
	// gate, when set, holds every page load until it is closed
	gate chan struct{}
}

func newServer(n int) *server {
	s := &server{comments: make(map[string][]posts.Comment)}
	for i := 0; i < n; i++ {
		s.posts = append(s.posts, posts.Post{Id: fmt.Sprint("p", i), ChannelId: "c1"})
	}
	return s
}

func (s *server) loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageLoads
}

func (s *server) LoadPage(ctx context.Context, key posts.FeedKey, page int, limit int) ([]posts.Post, error) {
	s.mu.Lock()
	s.pageLoads++
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	from := page * limit
	if from >= len(s.posts) {
		return nil, nil
	}
	to := min(from+limit, len(s.posts))
	return append([]posts.Post(nil), s.posts[from:to]...), nil
}

func (s *server) LoadComments(ctx context.Context, postId string) ([]posts.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]posts.Comment(nil), s.comments[postId]...), nil
}

func (s *server) CreatePost(ctx context.Context, input fetcher.PostInput) (posts.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := posts.Post{Id: fmt.Sprint("p", 100+len(s.posts)), ChannelId: input.ChannelId, AuthorId: "me", Caption: input.Caption}
	s.posts = append([]posts.Post{p}, s.posts...)
	return p, nil
}

func (s *server) CreateComment(ctx context.Context, input fetcher.CommentInput) (posts.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cm := posts.Comment{Id: fmt.Sprint("cm", len(s.comments[input.PostId])), PostId: input.PostId, AuthorId: "me", Body: input.Body}
	s.comments[input.PostId] = append(s.comments[input.PostId], cm)
	return cm, nil
}

func (s *server) AddReaction(ctx context.Context, target posts.Target, emoji string) (posts.ReactionGroup, error) {
	return posts.ReactionGroup{Emoji: emoji, Count: 1, UserIds: []string{"me"}}, nil
}

func (s *server) RemoveReaction(ctx context.Context, target posts.Target, emoji string) error {
	return nil
}

func newTestEngine(t *testing.T, srv *server) *Engine {
	t.Helper()
	e := New(srv, quietTransport{}, zerolog.Nop(), Options{UserId: "me", PageSize: 10, Location: time.UTC})
	t.Cleanup(e.Subscriber().DisableAll)
	return e
}

func TestOpenAndPaginate(t *testing.T) {
	srv := newServer(25)
	e := newTestEngine(t, srv)

	snap, err := e.Open(context.Background(), testKey)
	assert.Equal(t, nil, err)
	assert.Equal(t, 10, len(snap.Posts()))
	assert.Equal(t, false, snap.Done)

	more, err := e.LoadMore(context.Background(), testKey)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, more)

	more, err = e.LoadMore(context.Background(), testKey)
	assert.Equal(t, nil, err)
	assert.Equal(t, false, more)

	more, err = e.LoadMore(context.Background(), testKey)
	assert.Equal(t, nil, err)
	assert.Equal(t, false, more)
	assert.Equal(t, 3, srv.loads())

	snap, _ = e.Cache().Feed(testKey)
	assert.Equal(t, 25, len(snap.Posts()))

	_, err = e.LoadMore(context.Background(), posts.FeedKey{ChannelId: "nope"})
	assert.Equal(t, ErrFeedNotLoaded, err)
}

func TestRefreshSplicesNewPosts(t *testing.T) {
	srv := newServer(12)
	e := newTestEngine(t, srv)
	_, err := e.Open(context.Background(), testKey)
	assert.Equal(t, nil, err)

	srv.mu.Lock()
	srv.posts = append([]posts.Post{{Id: "fresh", ChannelId: "c1"}}, srv.posts...)
	srv.mu.Unlock()
	e.Cache().Merge(events.ChangeEvent{
		Table:      events.TablePost,
		Op:         events.OpInsert,
		Originator: "other",
		Post:       &srv.posts[0],
	})

	snap, _ := e.Cache().Feed(testKey)
	assert.Equal(t, 1, snap.PendingNewCount)
	assert.Equal(t, "p0", snap.Pages[0][0].Id)

	assert.Equal(t, nil, e.Refresh(context.Background(), testKey))
	snap, _ = e.Cache().Feed(testKey)
	assert.Equal(t, 0, snap.PendingNewCount)
	assert.Equal(t, "fresh", snap.Pages[0][0].Id)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
}

func TestRefreshWaitsOutLoadMore(t *testing.T) {
	srv := newServer(25)
	e := newTestEngine(t, srv)
	_, err := e.Open(context.Background(), testKey)
	assert.Equal(t, nil, err)

	gate := make(chan struct{})
	srv.mu.Lock()
	srv.gate = gate
	srv.mu.Unlock()

	loaded := make(chan error)
	go func() {
		_, err := e.LoadMore(context.Background(), testKey)
		loaded <- err
	}()
	waitFor(t, func() bool { return srv.loads() == 2 })

	assert.Equal(t, ErrLoadInFlight, e.Refresh(context.Background(), testKey))
	assert.Equal(t, 2, srv.loads())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- e.Run(ctx) }()
	e.Cache().Revalidate("c1", "test")

	close(gate)
	assert.Equal(t, nil, <-loaded)

	// the parked revalidation refetches both pages once the load ends
	waitFor(t, func() bool { return srv.loads() == 4 })
	assert.Equal(t, 4, srv.loads())
	snap, _ := e.Cache().Feed(testKey)
	assert.Equal(t, 20, len(snap.Posts()))

	cancel()
	assert.Equal(t, context.Canceled, <-done)
}

func TestRunServesRevalidation(t *testing.T) {
	srv := newServer(5)
	e := newTestEngine(t, srv)
	_, err := e.Open(context.Background(), testKey)
	assert.Equal(t, nil, err)
	srv.comments["p1"] = []posts.Comment{{Id: "cm0", PostId: "p1"}}
	_, err = e.OpenComments(context.Background(), "p1")
	assert.Equal(t, nil, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- e.Run(ctx) }()

	srv.mu.Lock()
	srv.comments["p1"] = append(srv.comments["p1"], posts.Comment{Id: "cm1", PostId: "p1"})
	srv.mu.Unlock()
	e.Cache().Revalidate("c1", "test")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if comments, _ := e.Cache().Comments("p1"); len(comments) == 2 && srv.loads() == 2 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	comments, _ := e.Cache().Comments("p1")
	assert.Equal(t, 2, len(comments))
	assert.Equal(t, 2, srv.loads())

	cancel()
	assert.Equal(t, context.Canceled, <-done)
}

func TestEngineMutations(t *testing.T) {
	srv := newServer(3)
	e := newTestEngine(t, srv)
	_, err := e.Open(context.Background(), testKey)
	assert.Equal(t, nil, err)

	p, err := e.CreatePost(context.Background(), testKey, "hello", nil)
	assert.Equal(t, nil, err)
	snap, _ := e.Cache().Feed(testKey)
	assert.Equal(t, p.Id, snap.Pages[0][0].Id)

	_, err = e.OpenComments(context.Background(), p.Id)
	assert.Equal(t, nil, err)
	_, err = e.CreateComment(context.Background(), p.Id, "first")
	assert.Equal(t, nil, err)
	comments, _ := e.Cache().Comments(p.Id)
	assert.Equal(t, 1, len(comments))

	added, err := e.ToggleReaction(context.Background(), posts.Target{Kind: posts.TargetComment, Id: comments[0].Id}, "👍")
	assert.Equal(t, nil, err)
	assert.Equal(t, true, added)

	e.CloseComments(p.Id)
	_, open := e.Cache().Comments(p.Id)
	assert.Equal(t, false, open)

	e.Close("c1")
	_, ok := e.Cache().Feed(testKey)
	assert.Equal(t, false, ok)
}
