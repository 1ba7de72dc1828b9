package cache

import (
	"sort"
	"strings"
	"time"

	"github.com/meower-media/feedsync/pkg/posts"
	"github.com/oklog/ulid/v2"
)

// TempIdPrefix marks ids of entities that exist only as optimistic patches.
const TempIdPrefix = "tmp_"

func IsTempId(id string) bool {
	return strings.HasPrefix(id, TempIdPrefix)
}

type MutationKind uint8

const (
	MutationCreatePost MutationKind = iota
	MutationCreateComment
	MutationToggleReaction
)

func (k MutationKind) String() string {
	switch k {
	case MutationCreatePost:
		return "create_post"
	case MutationCreateComment:
		return "create_comment"
	case MutationToggleReaction:
		return "toggle_reaction"
	}
	return "unknown"
}

// PendingMutation is an optimistic patch awaiting its server write. It exists
// from the moment the patch is applied until it is confirmed or rolled back.
type PendingMutation struct {
	Token string
	Kind  MutationKind

	// Target is the temporary entity for creates and the reacted entity for
	// toggles.
	Target posts.Target
	Emoji  string
	Add    bool // toggle direction

	Feed   posts.FeedKey // create post
	PostId string        // create comment: owning post

	// PreSnapshot is the emoji's group before the toggle, nil when the group
	// did not exist.
	PreSnapshot *posts.ReactionGroup
	IssuedAt    time.Time

	preIndex int
	post     *posts.Post
	comment  *posts.Comment
	// rebased is set once a reload replaced the bumped comment count with
	// the server's, which may or may not include the comment already.
	rebased bool
}

type guardKey struct {
	target posts.Target
	emoji  string
}

func newToken() string {
	return ulid.Make().String()
}

func (m *PendingMutation) copy() PendingMutation {
	cp := *m
	if m.PreSnapshot != nil {
		g := m.PreSnapshot.Clone()
		cp.PreSnapshot = &g
	}
	cp.post = nil
	cp.comment = nil
	return cp
}

func (c *Cache) register(m *PendingMutation) {
	c.pending[m.Token] = m
	if m.Kind == MutationToggleReaction {
		c.guards[guardKey{m.Target, m.Emoji}] = m.Token
	}
}

// settle removes a mutation from the pending set. Must hold the lock.
func (c *Cache) settle(token string, kind MutationKind) (*PendingMutation, error) {
	m := c.pending[token]
	if m == nil || m.Kind != kind && kind != anyKind {
		return nil, ErrUnknownMutation
	}
	delete(c.pending, token)
	if m.Kind == MutationToggleReaction {
		delete(c.guards, guardKey{m.Target, m.Emoji})
	}
	return m, nil
}

const anyKind MutationKind = 255

// Pending lists in-flight mutations, oldest first.
func (c *Cache) Pending() []PendingMutation {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := make([]PendingMutation, 0, len(c.pending))
	for _, m := range c.pending {
		list = append(list, m.copy())
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Token < list[j].Token
	})
	return list
}

// PendingFor returns the in-flight toggle for a (target, emoji) pair.
func (c *Cache) PendingFor(target posts.Target, emoji string) (PendingMutation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token, ok := c.guards[guardKey{target, emoji}]
	if !ok {
		return PendingMutation{}, false
	}
	return c.pending[token].copy(), true
}

// reapplyFeed re-asserts in-flight mutations on pages [from, len) which were
// just received from the server. Must hold the lock.
func (c *Cache) reapplyFeed(f *feed, from int) {
	for _, m := range c.pending {
		switch m.Kind {
		case MutationCreatePost:
			if from == 0 && m.Feed == f.key && f.index(m.Target.Id) == nil {
				if len(f.pages) == 0 {
					f.pages = append(f.pages, nil)
				}
				f.pages[0] = append([]posts.Post{m.post.Clone()}, f.pages[0]...)
			}
		case MutationCreateComment:
			for p := from; p < len(f.pages); p++ {
				for i := range f.pages[p] {
					if f.pages[p][i].Id == m.PostId {
						m.rebased = true
					}
				}
			}
		case MutationToggleReaction:
			if m.Target.Kind != posts.TargetPost {
				continue
			}
			for p := from; p < len(f.pages); p++ {
				for i := range f.pages[p] {
					if f.pages[p][i].Id == m.Target.Id {
						m.reassert(&f.pages[p][i].Reactions, c.userId)
					}
				}
			}
		}
	}
}

// recount requests a reload of every feed holding the post of a settled
// comment create whose count was rebased, so the server's count wins.
// Must hold the lock.
func (c *Cache) recount(m *PendingMutation, reason string) []Invalidation {
	if !m.rebased {
		return nil
	}
	var reqs []Invalidation
	for _, key := range c.feedsHolding(m.PostId) {
		key := key
		reqs = append(reqs, Invalidation{Feed: &key, Reason: reason})
	}
	return reqs
}

// reapplyPanel re-asserts in-flight comment mutations on a freshly loaded
// comment panel. Must hold the lock.
func (c *Cache) reapplyPanel(pn *panel) {
	for _, m := range c.pending {
		switch m.Kind {
		case MutationCreateComment:
			if m.PostId == pn.postId && pn.find(m.Target.Id) < 0 {
				pn.comments = append(pn.comments, m.comment.Clone())
			}
		case MutationToggleReaction:
			if m.Target.Kind != posts.TargetComment {
				continue
			}
			if i := pn.find(m.Target.Id); i >= 0 {
				m.reassert(&pn.comments[i].Reactions, c.userId)
			}
		}
	}
}

// reassert captures the server's version of the group as the new rollback
// point and applies the toggle on top of it.
func (m *PendingMutation) reassert(reactions *[]posts.ReactionGroup, userId string) {
	m.preIndex = posts.FindReaction(*reactions, m.Emoji)
	m.PreSnapshot = nil
	if m.preIndex >= 0 {
		g := (*reactions)[m.preIndex].Clone()
		m.PreSnapshot = &g
	}
	applyToggle(reactions, m.Emoji, userId, m.Add)
}

func applyToggle(reactions *[]posts.ReactionGroup, emoji string, userId string, add bool) bool {
	var changed bool
	if add {
		*reactions, changed = posts.AddReaction(*reactions, emoji, userId)
	} else {
		*reactions, changed = posts.RemoveReaction(*reactions, emoji, userId)
	}
	return changed
}

func (pn *panel) find(commentId string) int {
	for i := range pn.comments {
		if pn.comments[i].Id == commentId {
			return i
		}
	}
	return -1
}
