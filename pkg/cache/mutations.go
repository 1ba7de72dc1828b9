package cache

import (
	"time"

	"github.com/meower-media/feedsync/pkg/posts"
)

// BeginCreatePost puts a temporary post at the top of a loaded feed. The
// returned mutation carries the token to confirm or roll it back with.
func (c *Cache) BeginCreatePost(key posts.FeedKey, draft posts.Post) (PendingMutation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := c.feeds[key]
	if f == nil {
		return PendingMutation{}, ErrFeedNotLoaded
	}

	token := newToken()
	draft.Id = TempIdPrefix + token
	draft.ChannelId = key.ChannelId
	draft.AuthorId = c.userId
	draft.CommentCount = 0
	draft.Reactions = nil
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now()
	}

	if len(f.pages) == 0 {
		f.pages = append(f.pages, nil)
	}
	f.pages[0] = append([]posts.Post{draft.Clone()}, f.pages[0]...)

	m := &PendingMutation{
		Token:    token,
		Kind:     MutationCreatePost,
		Target:   posts.Target{Kind: posts.TargetPost, Id: draft.Id},
		Feed:     key,
		IssuedAt: time.Now(),
		post:     &draft,
	}
	c.register(m)
	c.changed()
	return m.copy(), nil
}

// ConfirmPost swaps the temporary post of a create for the server's post. The
// temporary post is found by its id, wherever concurrent changes moved it.
func (c *Cache) ConfirmPost(token string, confirmed posts.Post) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.settle(token, MutationCreatePost)
	if err != nil {
		return err
	}

	confirmed = confirmed.Clone()
	confirmed.Reactions = posts.NormalizeReactions(confirmed.Reactions)
	if f := c.feeds[m.Feed]; f != nil {
		if f.index(confirmed.Id) != nil {
			f.remove(m.Target.Id)
		} else if tmp := f.index(m.Target.Id); tmp != nil {
			*tmp = confirmed
		}
		delete(f.newIds, confirmed.Id)
	}
	c.changed()
	return nil
}

// BeginCreateComment adds a temporary comment to the post's open panel and
// bumps the post's comment count.
func (c *Cache) BeginCreateComment(draft posts.Comment) (PendingMutation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	owners := c.locatePosts(draft.PostId)
	pn := c.panels[draft.PostId]
	if len(owners) == 0 && pn == nil {
		return PendingMutation{}, ErrTargetNotLoaded
	}

	token := newToken()
	draft.Id = TempIdPrefix + token
	draft.AuthorId = c.userId
	draft.Reactions = nil
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now()
	}
	if draft.ChannelId == "" && len(owners) > 0 {
		draft.ChannelId = owners[0].ChannelId
	}

	for _, p := range owners {
		p.CommentCount++
	}
	if pn != nil {
		pn.comments = append(pn.comments, draft.Clone())
	}

	m := &PendingMutation{
		Token:    token,
		Kind:     MutationCreateComment,
		Target:   posts.Target{Kind: posts.TargetComment, Id: draft.Id},
		PostId:   draft.PostId,
		IssuedAt: time.Now(),
		comment:  &draft,
	}
	c.register(m)
	c.changed()
	return m.copy(), nil
}

// ConfirmComment swaps the temporary comment for the server's copy. The
// post's comment count keeps the optimistic bump unless a reload rebased
// it, in which case the holding feeds are invalidated.
func (c *Cache) ConfirmComment(token string, confirmed posts.Comment) error {
	reqs, err := c.confirmComment(token, confirmed)
	if err != nil {
		return err
	}
	c.invalidate(reqs)
	return nil
}

func (c *Cache) confirmComment(token string, confirmed posts.Comment) ([]Invalidation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.settle(token, MutationCreateComment)
	if err != nil {
		return nil, err
	}

	confirmed = confirmed.Clone()
	confirmed.Reactions = posts.NormalizeReactions(confirmed.Reactions)
	if pn := c.panels[m.PostId]; pn != nil {
		i := pn.find(m.Target.Id)
		switch {
		case i < 0:
		case pn.find(confirmed.Id) >= 0:
			pn.comments = append(pn.comments[:i], pn.comments[i+1:]...)
		default:
			pn.comments[i] = confirmed
		}
	}
	c.changed()
	return c.recount(m, "comment_confirmed"), nil
}

// BeginToggle flips the signed-in user's reaction with emoji on a target.
// The direction is read from the cache: a user already in the group removes
// their reaction, anyone else adds one. Only one toggle per (target, emoji)
// may be in flight.
func (c *Cache) BeginToggle(target posts.Target, emoji string) (PendingMutation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.guards[guardKey{target, emoji}]; busy {
		return PendingMutation{}, ErrMutationInFlight
	}
	lists := c.reactionsOf(target)
	if len(lists) == 0 {
		return PendingMutation{}, ErrTargetNotLoaded
	}

	m := &PendingMutation{
		Token:    newToken(),
		Kind:     MutationToggleReaction,
		Target:   target,
		Emoji:    emoji,
		IssuedAt: time.Now(),
		preIndex: posts.FindReaction(*lists[0], emoji),
	}
	if m.preIndex >= 0 {
		pre := (*lists[0])[m.preIndex]
		m.Add = !pre.ReactedBy(c.userId)
		g := pre.Clone()
		m.PreSnapshot = &g
	} else {
		m.Add = true
	}

	for _, reactions := range lists {
		applyToggle(reactions, emoji, c.userId, m.Add)
	}
	c.register(m)
	c.changed()
	return m.copy(), nil
}

// ConfirmReaction settles a toggle. An add may carry the server's group, which
// replaces the optimistic one.
func (c *Cache) ConfirmReaction(token string, group *posts.ReactionGroup) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.settle(token, MutationToggleReaction)
	if err != nil {
		return err
	}
	if m.Add && group != nil && group.Emoji == m.Emoji {
		g := posts.NormalizeReactions([]posts.ReactionGroup{*group})
		if len(g) == 0 {
			g = []posts.ReactionGroup{{Emoji: m.Emoji}}
		}
		g[0].AddContributor(c.userId)
		for _, reactions := range c.reactionsOf(m.Target) {
			*reactions = posts.SetReaction(*reactions, m.Emoji, &g[0], len(*reactions))
		}
	}
	c.changed()
	return nil
}

// Rollback undoes an optimistic patch. A toggle's group is restored exactly
// as captured before the patch; creates remove their temporary entity.
func (c *Cache) Rollback(token string) error {
	reqs, err := c.rollback(token)
	if err != nil {
		return err
	}
	c.invalidate(reqs)
	return nil
}

func (c *Cache) rollback(token string) ([]Invalidation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.settle(token, anyKind)
	if err != nil {
		return nil, err
	}

	var reqs []Invalidation

	switch m.Kind {
	case MutationCreatePost:
		for _, f := range c.feeds {
			f.remove(m.Target.Id)
		}
	case MutationCreateComment:
		if reqs = c.recount(m, "comment_rolled_back"); !m.rebased {
			for _, p := range c.locatePosts(m.PostId) {
				if p.CommentCount > 0 {
					p.CommentCount--
				}
			}
		}
		if pn := c.panels[m.PostId]; pn != nil {
			if i := pn.find(m.Target.Id); i >= 0 {
				pn.comments = append(pn.comments[:i], pn.comments[i+1:]...)
			}
		}
	case MutationToggleReaction:
		for _, reactions := range c.reactionsOf(m.Target) {
			*reactions = posts.SetReaction(*reactions, m.Emoji, m.PreSnapshot, m.preIndex)
		}
	}
	c.log.Debug().Str("token", m.Token).Stringer("kind", m.Kind).Str("target", m.Target.Id).Msg("rolled back")
	c.changed()
	return reqs, nil
}
