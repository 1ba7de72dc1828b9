package cache

import "github.com/meower-media/feedsync/pkg/posts"

// FeedSnapshot is an immutable copy of one feed.
type FeedSnapshot struct {
	Key             posts.FeedKey
	Pages           [][]posts.Post
	Done            bool
	PendingNewCount int
	Stale           bool

	userId string
}

// Posts flattens the loaded pages in display order.
func (s FeedSnapshot) Posts() []posts.Post {
	var all []posts.Post
	for _, page := range s.Pages {
		all = append(all, page...)
	}
	return all
}

// Locate returns the page and index holding a post.
func (s FeedSnapshot) Locate(postId string) (page int, index int, ok bool) {
	for p, page := range s.Pages {
		for i := range page {
			if page[i].Id == postId {
				return p, i, true
			}
		}
	}
	return 0, 0, false
}

// Reaction returns the emoji's group on a post together with whether the
// signed-in user is one of its contributors.
func (s FeedSnapshot) Reaction(postId string, emoji string) (group posts.ReactionGroup, reactedByMe bool, ok bool) {
	p, i, found := s.Locate(postId)
	if !found {
		return posts.ReactionGroup{}, false, false
	}
	reactions := s.Pages[p][i].Reactions
	if j := posts.FindReaction(reactions, emoji); j >= 0 {
		return reactions[j], reactions[j].ReactedBy(s.userId), true
	}
	return posts.ReactionGroup{}, false, false
}

func (s FeedSnapshot) ReactedByMe(postId string, emoji string) bool {
	_, mine, _ := s.Reaction(postId, emoji)
	return mine
}

// Feed returns a snapshot of a loaded feed.
func (c *Cache) Feed(key posts.FeedKey) (FeedSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := c.feeds[key]
	if f == nil {
		return FeedSnapshot{}, false
	}
	snap := FeedSnapshot{
		Key:             key,
		Pages:           make([][]posts.Post, len(f.pages)),
		Done:            f.done,
		PendingNewCount: len(f.newIds),
		Stale:           c.stale[key.ChannelId],
		userId:          c.userId,
	}
	for p, page := range f.pages {
		snap.Pages[p] = make([]posts.Post, len(page))
		for i := range page {
			snap.Pages[p][i] = page[i].Clone()
		}
	}
	return snap, true
}

// Comments returns a copy of an open comment panel.
func (c *Cache) Comments(postId string) ([]posts.Comment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pn := c.panels[postId]
	if pn == nil {
		return nil, false
	}
	comments := make([]posts.Comment, len(pn.comments))
	for i := range pn.comments {
		comments[i] = pn.comments[i].Clone()
	}
	return comments, true
}

// Keys lists the loaded feeds of a channel.
func (c *Cache) Keys(channelId string) []posts.FeedKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []posts.FeedKey
	for key := range c.feeds {
		if key.ChannelId == channelId {
			keys = append(keys, key)
		}
	}
	return keys
}

// locatePosts returns every loaded copy of a post. Must hold the lock.
func (c *Cache) locatePosts(postId string) []*posts.Post {
	var found []*posts.Post
	for _, f := range c.feeds {
		for p := range f.pages {
			for i := range f.pages[p] {
				if f.pages[p][i].Id == postId {
					found = append(found, &f.pages[p][i])
				}
			}
		}
	}
	return found
}

// locateComments returns every open copy of a comment. Must hold the lock.
func (c *Cache) locateComments(commentId string) []*posts.Comment {
	var found []*posts.Comment
	for _, pn := range c.panels {
		for i := range pn.comments {
			if pn.comments[i].Id == commentId {
				found = append(found, &pn.comments[i])
			}
		}
	}
	return found
}

// reactionsOf returns the reaction lists of every loaded copy of a target.
func (c *Cache) reactionsOf(target posts.Target) []*[]posts.ReactionGroup {
	var lists []*[]posts.ReactionGroup
	if target.Kind == posts.TargetComment {
		for _, cm := range c.locateComments(target.Id) {
			lists = append(lists, &cm.Reactions)
		}
	} else {
		for _, p := range c.locatePosts(target.Id) {
			lists = append(lists, &p.Reactions)
		}
	}
	return lists
}

func (c *Cache) feedsHolding(postId string) []posts.FeedKey {
	var keys []posts.FeedKey
	for key, f := range c.feeds {
		if f.index(postId) != nil {
			keys = append(keys, key)
		}
	}
	return keys
}

func (f *feed) index(postId string) *posts.Post {
	for p := range f.pages {
		for i := range f.pages[p] {
			if f.pages[p][i].Id == postId {
				return &f.pages[p][i]
			}
		}
	}
	return nil
}
