package feed

import (
	"context"
	"sync"
	"time"

	"github.com/meower-media/feedsync/pkg/cache"
	"github.com/meower-media/feedsync/pkg/fetcher"
	"github.com/meower-media/feedsync/pkg/metrics"
	"github.com/meower-media/feedsync/pkg/mutations"
	"github.com/meower-media/feedsync/pkg/posts"
	"github.com/meower-media/feedsync/pkg/realtime"
	"github.com/rs/zerolog"
)

const DefaultPageSize = 10

type Options struct {
	UserId       string
	PageSize     int
	Location     *time.Location
	WriteTimeout time.Duration
	Backoff      realtime.Options
}

// Engine ties the cache to its three sources: pages fetched on demand,
// local mutations and the change feed. It also runs the revalidations the
// cache asks for.
type Engine struct {
	cache      *cache.Cache
	fetcher    fetcher.Fetcher
	mutations  *mutations.Coordinator
	subscriber *realtime.Subscriber
	log        zerolog.Logger
	pageSize   int

	mu       sync.Mutex
	loading  map[posts.FeedKey]bool
	requests map[string]cache.Invalidation
	signal   chan struct{}
}

func New(f fetcher.Fetcher, transport realtime.Transport, logger zerolog.Logger, opts Options) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	e := &Engine{
		fetcher:  f,
		log:      logger.With().Str("component", "feed").Logger(),
		pageSize: opts.PageSize,
		loading:  make(map[posts.FeedKey]bool),
		requests: make(map[string]cache.Invalidation),
		signal:   make(chan struct{}, 1),
	}
	e.cache = cache.New(cache.Config{
		UserId:       opts.UserId,
		Location:     opts.Location,
		Logger:       logger,
		OnInvalidate: e.enqueue,
	})
	e.mutations = mutations.New(e.cache, f, logger, opts.WriteTimeout)
	e.subscriber = realtime.NewSubscriber(transport, e.cache, logger, opts.Backoff)
	return e
}

func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

func (e *Engine) Mutations() *mutations.Coordinator {
	return e.mutations
}

func (e *Engine) Subscriber() *realtime.Subscriber {
	return e.subscriber
}

func (e *Engine) PageSize() int {
	return e.pageSize
}

// Open loads the first page of a feed and starts watching its channel. A
// feed that is already loaded is returned as is.
func (e *Engine) Open(ctx context.Context, key posts.FeedKey) (cache.FeedSnapshot, error) {
	if key.Date == "" {
		key.Date = posts.Today(e.cache.Location())
	}

	// Subscribe first so nothing committed after the fetch is missed
	e.subscriber.Enable(context.WithoutCancel(ctx), key.ChannelId)

	if snap, ok := e.cache.Feed(key); ok {
		return snap, nil
	}
	page, err := e.fetcher.LoadPage(ctx, key, 0, e.pageSize)
	if err != nil {
		return cache.FeedSnapshot{}, err
	}
	e.cache.ReplaceFeed(key, e.pageSize, [][]posts.Post{page})

	snap, _ := e.cache.Feed(key)
	return snap, nil
}

// LoadMore appends the next page of a feed. It reports whether further pages
// may follow.
func (e *Engine) LoadMore(ctx context.Context, key posts.FeedKey) (bool, error) {
	pages, done, ok := e.cache.PageCount(key)
	if !ok {
		return false, ErrFeedNotLoaded
	}
	if done {
		return false, nil
	}

	if !e.beginLoad(key) {
		return true, ErrLoadInFlight
	}
	defer e.endLoad(key)

	page, err := e.fetcher.LoadPage(ctx, key, pages, e.pageSize)
	if err != nil {
		return true, err
	}
	if !e.cache.AppendPage(key, pages, e.pageSize, page) {
		// the feed was replaced or dropped meanwhile
		e.log.Debug().Stringer("feed", key).Int("page", pages).Msg("discarded stale page")
	}
	_, done, _ = e.cache.PageCount(key)
	return !done, nil
}

// Refresh refetches every loaded page of a feed, bringing in posts announced
// by pendingNewCount. It shares LoadMore's guard, so it fails with
// ErrLoadInFlight while a page load for the same feed is running.
func (e *Engine) Refresh(ctx context.Context, key posts.FeedKey) error {
	if !e.beginLoad(key) {
		return ErrLoadInFlight
	}
	defer e.endLoad(key)

	pages, _, ok := e.cache.PageCount(key)
	if !ok {
		return ErrFeedNotLoaded
	}
	if pages == 0 {
		pages = 1
	}

	var fetched [][]posts.Post
	for i := 0; i < pages; i++ {
		page, err := e.fetcher.LoadPage(ctx, key, i, e.pageSize)
		if err != nil {
			return err
		}
		fetched = append(fetched, page)
		if len(page) < e.pageSize {
			break
		}
	}
	e.cache.ReplaceFeed(key, e.pageSize, fetched)
	return nil
}

// OpenComments fetches a post's comments and keeps them live until
// CloseComments.
func (e *Engine) OpenComments(ctx context.Context, postId string) ([]posts.Comment, error) {
	comments, err := e.fetcher.LoadComments(ctx, postId)
	if err != nil {
		return nil, err
	}
	e.cache.SetComments(postId, comments)
	comments, _ = e.cache.Comments(postId)
	return comments, nil
}

func (e *Engine) CloseComments(postId string) {
	e.cache.CloseComments(postId)
}

// Close stops watching a channel and forgets its feeds.
func (e *Engine) Close(channelId string) {
	e.subscriber.Disable(channelId)
	for _, key := range e.cache.Keys(channelId) {
		e.cache.DropFeed(key)
	}
}

func (e *Engine) CreatePost(ctx context.Context, key posts.FeedKey, caption string, image *fetcher.Upload) (posts.Post, error) {
	return e.mutations.CreatePost(ctx, key, fetcher.PostInput{Caption: caption, Image: image})
}

func (e *Engine) CreateComment(ctx context.Context, postId string, body string) (posts.Comment, error) {
	return e.mutations.CreateComment(ctx, fetcher.CommentInput{PostId: postId, Body: body})
}

func (e *Engine) ToggleReaction(ctx context.Context, target posts.Target, emoji string) (bool, error) {
	return e.mutations.ToggleReaction(ctx, target, emoji)
}

func (e *Engine) beginLoad(key posts.FeedKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loading[key] {
		return false
	}
	e.loading[key] = true
	return true
}

// endLoad releases the feed's load guard and wakes the worker for any
// revalidation parked behind it.
func (e *Engine) endLoad(key posts.FeedKey) {
	e.mu.Lock()
	delete(e.loading, key)
	parked := len(e.requests) > 0
	e.mu.Unlock()
	if parked {
		e.wake()
	}
}

// enqueue records a revalidation request. Requests for the same feed or
// panel coalesce until the worker picks them up.
func (e *Engine) enqueue(inv cache.Invalidation) {
	e.mu.Lock()
	e.requests[requestId(inv)] = inv
	e.mu.Unlock()
	e.wake()
}

// park holds a feed request until the load running on that feed ends. The
// worker is woken at once if the load has already ended.
func (e *Engine) park(inv cache.Invalidation) {
	e.mu.Lock()
	e.requests[requestId(inv)] = inv
	busy := e.loading[*inv.Feed]
	e.mu.Unlock()
	if !busy {
		e.wake()
	}
}

func requestId(inv cache.Invalidation) string {
	if inv.Feed != nil {
		return "feed:" + inv.Feed.String()
	}
	return "comments:" + inv.CommentsOf
}

func (e *Engine) wake() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

func (e *Engine) takeRequests() []cache.Invalidation {
	e.mu.Lock()
	defer e.mu.Unlock()
	reqs := make([]cache.Invalidation, 0, len(e.requests))
	for id, inv := range e.requests {
		reqs = append(reqs, inv)
		delete(e.requests, id)
	}
	return reqs
}

// Run performs requested revalidations until ctx is done, then tears down
// every subscription.
func (e *Engine) Run(ctx context.Context) error {
	defer e.subscriber.DisableAll()
	for {
		select {
		case <-e.signal:
			for _, inv := range e.takeRequests() {
				e.revalidate(ctx, inv)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) revalidate(ctx context.Context, inv cache.Invalidation) {
	metrics.ObserveRevalidation(inv.Reason)

	if inv.Feed != nil {
		switch err := e.Refresh(ctx, *inv.Feed); err {
		case nil, ErrFeedNotLoaded:
		case ErrLoadInFlight:
			// retried when the running load ends
			e.park(inv)
		default:
			e.log.Warn().Err(err).Stringer("feed", inv.Feed).Str("reason", inv.Reason).Msg("revalidate feed")
		}
		return
	}

	if _, open := e.cache.Comments(inv.CommentsOf); !open {
		return
	}
	comments, err := e.fetcher.LoadComments(ctx, inv.CommentsOf)
	if err != nil {
		e.log.Warn().Err(err).Str("post", inv.CommentsOf).Str("reason", inv.Reason).Msg("revalidate comments")
		return
	}
	// the panel may have closed during the fetch
	if _, open := e.cache.Comments(inv.CommentsOf); open {
		e.cache.SetComments(inv.CommentsOf, comments)
	}
}
