package cache

import (
	"slices"

	"github.com/meower-media/feedsync/pkg/posts"
)

// AppendPage stores page index of a feed as fetched from the server. Only the
// next page in sequence is accepted; posts already present on an earlier page
// are skipped. A page shorter than pageSize marks the end of the feed. It
// reports whether the page was stored.
func (c *Cache) AppendPage(key posts.FeedKey, index int, pageSize int, fetched []posts.Post) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := c.feeds[key]
	if f == nil {
		if index != 0 {
			return false
		}
		f = &feed{key: key, pageSize: pageSize, newIds: make(map[string]bool)}
		c.feeds[key] = f
	}
	if index != len(f.pages) || f.done {
		return false
	}

	f.pages = append(f.pages, f.dedupe(fetched))
	f.done = len(fetched) < pageSize
	c.reapplyFeed(f, index)
	c.changed()
	return true
}

// ReplaceFeed swaps every page of a feed for freshly fetched ones and clears
// its pending-new count. Optimistic patches still in flight are applied on top
// of the new pages.
func (c *Cache) ReplaceFeed(key posts.FeedKey, pageSize int, pages [][]posts.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := &feed{key: key, pageSize: pageSize, newIds: make(map[string]bool)}
	for _, fetched := range pages {
		f.pages = append(f.pages, f.dedupe(fetched))
	}
	f.done = len(pages) == 0 || len(pages[len(pages)-1]) < pageSize
	c.feeds[key] = f
	c.reapplyFeed(f, 0)
	c.changed()
}

// DropFeed forgets a feed.
func (c *Cache) DropFeed(key posts.FeedKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.feeds[key]; ok {
		delete(c.feeds, key)
		c.changed()
	}
}

// PageCount returns how many pages of a feed are loaded and whether the end
// of the feed was reached.
func (c *Cache) PageCount(key posts.FeedKey) (pages int, done bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.feeds[key]
	if f == nil {
		return 0, false, false
	}
	return len(f.pages), f.done, true
}

// SetComments opens (or refreshes) the comment panel of a post.
func (c *Cache) SetComments(postId string, comments []posts.Comment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pn := &panel{postId: postId, comments: make([]posts.Comment, 0, len(comments))}
	for _, cm := range comments {
		if pn.find(cm.Id) >= 0 {
			continue
		}
		cm = cm.Clone()
		cm.Reactions = posts.NormalizeReactions(cm.Reactions)
		pn.comments = append(pn.comments, cm)
	}
	c.panels[postId] = pn
	c.reapplyPanel(pn)
	c.changed()
}

func (c *Cache) CloseComments(postId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.panels[postId]; ok {
		delete(c.panels, postId)
		c.changed()
	}
}

// dedupe copies a fetched page, dropping posts the feed already holds.
func (f *feed) dedupe(fetched []posts.Post) []posts.Post {
	page := make([]posts.Post, 0, len(fetched))
	for _, p := range fetched {
		if f.index(p.Id) != nil || slices.ContainsFunc(page, func(q posts.Post) bool { return q.Id == p.Id }) {
			continue
		}
		p = p.Clone()
		p.Reactions = posts.NormalizeReactions(p.Reactions)
		page = append(page, p)
		delete(f.newIds, p.Id)
	}
	return page
}

// remove deletes a post from whichever page holds it.
func (f *feed) remove(postId string) bool {
	for p := range f.pages {
		if i := slices.IndexFunc(f.pages[p], func(q posts.Post) bool { return q.Id == postId }); i >= 0 {
			f.pages[p] = slices.Delete(f.pages[p], i, i+1)
			return true
		}
	}
	return false
}
