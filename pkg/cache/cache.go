package cache

import (
	"sync"
	"time"

	"github.com/meower-media/feedsync/pkg/posts"
	"github.com/rs/zerolog"
)

// Cache is the feed store and its reconciler. It is the only place feed,
// comment and pending-mutation state is written. Every exported method runs
// start to finish under one lock, so readers never observe a half-applied
// patch and a push merge can never land in the middle of an optimistic patch.
type Cache struct {
	mu sync.Mutex

	userId string
	loc    *time.Location
	log    zerolog.Logger

	feeds   map[posts.FeedKey]*feed
	panels  map[string]*panel // post id -> open comment panel
	pending map[string]*PendingMutation
	guards  map[guardKey]string // (target, emoji) -> token
	stale   map[string]bool     // channel id

	version      uint64
	listeners    map[int]chan struct{}
	nextListener int

	onInvalidate func(Invalidation)
}

type Config struct {
	// UserId is the signed-in user. It decides reactedByMe and self-echo
	// suppression.
	UserId string

	// Location is used to assign posts to a feed's calendar day.
	Location *time.Location

	Logger zerolog.Logger

	// OnInvalidate receives revalidation requests. It is called without the
	// cache lock held.
	OnInvalidate func(Invalidation)
}

// Invalidation asks the owner of the cache to refetch server state because
// a change could not be applied as a point patch.
type Invalidation struct {
	Feed       *posts.FeedKey
	CommentsOf string // post id of an open comment panel
	Reason     string
}

type feed struct {
	key      posts.FeedKey
	pageSize int
	pages    [][]posts.Post
	done     bool
	newIds   map[string]bool // pushed inserts not spliced into any page
}

type panel struct {
	postId   string
	comments []posts.Comment
}

func New(cfg Config) *Cache {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Cache{
		userId:       cfg.UserId,
		loc:          loc,
		log:          cfg.Logger.With().Str("component", "cache").Logger(),
		feeds:        make(map[posts.FeedKey]*feed),
		panels:       make(map[string]*panel),
		pending:      make(map[string]*PendingMutation),
		guards:       make(map[guardKey]string),
		stale:        make(map[string]bool),
		listeners:    make(map[int]chan struct{}),
		onInvalidate: cfg.OnInvalidate,
	}
}

func (c *Cache) UserId() string {
	return c.userId
}

func (c *Cache) Location() *time.Location {
	return c.loc
}

// Version increases every time the cache changes.
func (c *Cache) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Subscribe returns a channel that receives a signal after changes. Signals
// coalesce: a reader should take a fresh snapshot on every receive.
func (c *Cache) Subscribe() (<-chan struct{}, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextListener
	c.nextListener++
	ch := make(chan struct{}, 1)
	c.listeners[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// changed must be called with the lock held.
func (c *Cache) changed() {
	c.version++
	for _, ch := range c.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (c *Cache) invalidate(reqs []Invalidation) {
	if c.onInvalidate == nil {
		return
	}
	for _, req := range reqs {
		c.onInvalidate(req)
	}
}

// SetStale marks a channel's push stream as disconnected (or recovered).
func (c *Cache) SetStale(channelId string, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale[channelId] == stale {
		return
	}
	if stale {
		c.stale[channelId] = true
	} else {
		delete(c.stale, channelId)
	}
	c.changed()
}

func (c *Cache) Stale(channelId string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale[channelId]
}
