package cache

import (
	"github.com/meower-media/feedsync/pkg/events"
	"github.com/meower-media/feedsync/pkg/posts"
)

// Outcome says what Merge did with a push event.
type Outcome uint8

const (
	Applied Outcome = iota
	SelfEcho
	Orphan     // target not loaded
	Duplicate  // already reflected
	OutOfScope // no loaded feed covers it
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case SelfEcho:
		return "self_echo"
	case Orphan:
		return "orphan"
	case Duplicate:
		return "duplicate"
	case OutOfScope:
		return "out_of_scope"
	}
	return "unknown"
}

// Merge applies a change-feed event from another client. Events originated
// by the signed-in user are dropped: they echo a change this client already
// applied optimistically.
func (c *Cache) Merge(ev events.ChangeEvent) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Originator != "" && ev.Originator == c.userId {
		c.log.Debug().Stringer("event", ev).Msg("dropped self echo")
		return SelfEcho
	}

	var outcome Outcome
	switch ev.Table {
	case events.TablePost:
		if ev.Op == events.OpInsert {
			outcome = c.mergePostInsert(ev)
		} else {
			outcome = c.mergePostDelete(ev)
		}
	case events.TableComment:
		if ev.Op == events.OpInsert {
			outcome = c.mergeCommentInsert(ev)
		} else {
			outcome = c.mergeCommentDelete(ev)
		}
	case events.TableReaction, events.TableCommentReaction:
		outcome = c.mergeReaction(ev)
	}

	if outcome == Applied {
		c.changed()
	} else {
		c.log.Debug().Stringer("event", ev).Stringer("outcome", outcome).Msg("event not applied")
	}
	return outcome
}

// A pushed post is never spliced into a page, it is only counted. The caller
// reloads to bring it in.
func (c *Cache) mergePostInsert(ev events.ChangeEvent) Outcome {
	outcome := OutOfScope
	for key, f := range c.feeds {
		if key.ChannelId != ev.Post.ChannelId || !key.Contains(ev.Post.CreatedAt, c.loc) {
			continue
		}
		if f.index(ev.Post.Id) != nil || f.newIds[ev.Post.Id] {
			if outcome != Applied {
				outcome = Duplicate
			}
			continue
		}
		f.newIds[ev.Post.Id] = true
		outcome = Applied
	}
	return outcome
}

func (c *Cache) mergePostDelete(ev events.ChangeEvent) Outcome {
	outcome := Orphan
	for _, f := range c.feeds {
		if f.newIds[ev.Post.Id] {
			delete(f.newIds, ev.Post.Id)
			outcome = Applied
		}
		if f.remove(ev.Post.Id) {
			outcome = Applied
		}
	}
	if _, ok := c.panels[ev.Post.Id]; ok {
		delete(c.panels, ev.Post.Id)
		outcome = Applied
	}
	return outcome
}

// A pushed comment bumps its post's count; the list itself is only patched
// while its panel is open.
func (c *Cache) mergeCommentInsert(ev events.ChangeEvent) Outcome {
	cm := ev.Comment
	pn := c.panels[cm.PostId]
	if pn != nil && pn.find(cm.Id) >= 0 {
		return Duplicate
	}

	owners := c.locatePosts(cm.PostId)
	for _, p := range owners {
		p.CommentCount++
	}
	if pn != nil {
		pn.comments = append(pn.comments, cm.Clone())
	}
	if len(owners) == 0 && pn == nil {
		return Orphan
	}
	return Applied
}

func (c *Cache) mergeCommentDelete(ev events.ChangeEvent) Outcome {
	cm := ev.Comment
	pn := c.panels[cm.PostId]
	if pn != nil {
		i := pn.find(cm.Id)
		if i < 0 {
			// count already reflects the panel contents
			return Duplicate
		}
		pn.comments = append(pn.comments[:i], pn.comments[i+1:]...)
	}

	owners := c.locatePosts(cm.PostId)
	for _, p := range owners {
		if p.CommentCount > 0 {
			p.CommentCount--
		}
	}
	if len(owners) == 0 && pn == nil {
		return Orphan
	}
	return Applied
}

func (c *Cache) mergeReaction(ev events.ChangeEvent) Outcome {
	target := posts.Target{Kind: posts.TargetPost, Id: ev.Reaction.TargetId}
	if ev.Table == events.TableCommentReaction {
		target.Kind = posts.TargetComment
	}

	lists := c.reactionsOf(target)
	if len(lists) == 0 {
		return Orphan
	}

	outcome := Duplicate
	for _, reactions := range lists {
		if applyToggle(reactions, ev.Reaction.Emoji, ev.Reaction.UserId, ev.Op == events.OpInsert) {
			outcome = Applied
		}
	}
	return outcome
}

// Invalidate handles an event that could not be decoded into a point patch
// by asking for the affected state to be refetched.
func (c *Cache) Invalidate(channelId string, derr *events.DecodeError) {
	reqs := c.invalidations(channelId, derr)
	c.invalidate(reqs)
}

func (c *Cache) invalidations(channelId string, derr *events.DecodeError) []Invalidation {
	c.mu.Lock()
	defer c.mu.Unlock()

	reason := "insufficient_data"
	if derr.CommentId != "" {
		for postId, pn := range c.panels {
			if pn.find(derr.CommentId) >= 0 {
				return []Invalidation{{CommentsOf: postId, Reason: reason}}
			}
		}
	}

	var reqs []Invalidation
	if derr.PostId != "" {
		if _, ok := c.panels[derr.PostId]; ok && derr.Table == events.TableComment {
			reqs = append(reqs, Invalidation{CommentsOf: derr.PostId, Reason: reason})
		}
		for _, key := range c.feedsHolding(derr.PostId) {
			key := key
			reqs = append(reqs, Invalidation{Feed: &key, Reason: reason})
		}
		if len(reqs) > 0 {
			return reqs
		}
		// An unknown post may be a new arrival for any feed of the channel.
		if derr.Table != events.TablePost || derr.Op != events.OpInsert {
			c.log.Debug().Err(derr).Msg("dropped undecodable event for unloaded post")
			return nil
		}
	}
	if derr.CommentId != "" && derr.Table == events.TableCommentReaction {
		// the comment is in no open panel
		return nil
	}

	for key := range c.feeds {
		if key.ChannelId == channelId {
			key := key
			reqs = append(reqs, Invalidation{Feed: &key, Reason: reason})
		}
	}
	return reqs
}

// Revalidate asks for every loaded feed of a channel, and the open comment
// panels of its posts, to be refetched.
func (c *Cache) Revalidate(channelId string, reason string) {
	c.mu.Lock()
	var reqs []Invalidation
	for key := range c.feeds {
		if key.ChannelId == channelId {
			key := key
			reqs = append(reqs, Invalidation{Feed: &key, Reason: reason})
		}
	}
	for postId := range c.panels {
		for _, p := range c.locatePosts(postId) {
			if p.ChannelId == channelId {
				reqs = append(reqs, Invalidation{CommentsOf: postId, Reason: reason})
				break
			}
		}
	}
	c.mu.Unlock()

	c.invalidate(reqs)
}
