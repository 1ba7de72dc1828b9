package cache

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/meower-media/feedsync/pkg/events"
	"github.com/meower-media/feedsync/pkg/posts"
)

var day = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var testKey = posts.FeedKey{ChannelId: "c1", Date: "20240301"}

func makePosts(from, n int) []posts.Post {
	page := make([]posts.Post, n)
	for i := range page {
		page[i] = posts.Post{
			Id:        fmt.Sprint("p", from+i),
			ChannelId: "c1",
			AuthorId:  "someone",
			CreatedAt: day.Add(-time.Duration(from+i) * time.Minute),
		}
	}
	return page
}

func newTestCache(t *testing.T, userId string, invalidations *[]Invalidation) *Cache {
	t.Helper()
	c := New(Config{
		UserId:   userId,
		Location: time.UTC,
		OnInvalidate: func(inv Invalidation) {
			if invalidations != nil {
				*invalidations = append(*invalidations, inv)
			}
		},
	})
	assert.Equal(t, true, c.AppendPage(testKey, 0, 10, makePosts(0, 10)))
	return c
}

func reactionEvent(op events.Op, userId string, postId string, emoji string) events.ChangeEvent {
	return events.ChangeEvent{
		Table:      events.TableReaction,
		Op:         op,
		Originator: userId,
		Reaction:   &events.Reaction{TargetId: postId, UserId: userId, Emoji: emoji},
	}
}

func postTarget(id string) posts.Target {
	return posts.Target{Kind: posts.TargetPost, Id: id}
}

func assertGroupsConsistent(t *testing.T, snap FeedSnapshot) {
	t.Helper()
	for _, p := range snap.Posts() {
		for _, g := range p.Reactions {
			assert.Equal(t, true, g.Count > 0)
			assert.Equal(t, len(g.UserIds), g.Count)
		}
	}
}

func TestToggleWriteFailureRestoresGroup(t *testing.T) {
	c := newTestCache(t, "me", nil)

	m, err := c.BeginToggle(postTarget("p1"), "👍")
	assert.Equal(t, nil, err)
	assert.Equal(t, true, m.Add)

	snap, _ := c.Feed(testKey)
	g, mine, ok := snap.Reaction("p1", "👍")
	assert.Equal(t, true, ok)
	assert.Equal(t, 1, g.Count)
	assert.Equal(t, true, mine)

	assert.Equal(t, nil, c.Rollback(m.Token))

	snap, _ = c.Feed(testKey)
	_, mine, ok = snap.Reaction("p1", "👍")
	assert.Equal(t, false, ok)
	assert.Equal(t, false, mine)
	assert.Equal(t, 0, len(c.Pending()))
}

func TestMergeReactionFromOtherUser(t *testing.T) {
	c := newTestCache(t, "B", nil)

	assert.Equal(t, Applied, c.Merge(reactionEvent(events.OpInsert, "A", "p1", "👍")))

	snap, _ := c.Feed(testKey)
	g, mine, _ := snap.Reaction("p1", "👍")
	assert.Equal(t, 1, g.Count)
	assert.Equal(t, false, mine)
}

func TestSelfEchoDropped(t *testing.T) {
	c := newTestCache(t, "A", nil)

	m, err := c.BeginToggle(postTarget("p1"), "👍")
	assert.Equal(t, nil, err)

	// echo arrives before the write returns
	assert.Equal(t, SelfEcho, c.Merge(reactionEvent(events.OpInsert, "A", "p1", "👍")))
	assert.Equal(t, nil, c.ConfirmReaction(m.Token, &posts.ReactionGroup{Emoji: "👍", Count: 1, UserIds: []string{"A"}}))
	// and after
	assert.Equal(t, SelfEcho, c.Merge(reactionEvent(events.OpInsert, "A", "p1", "👍")))

	snap, _ := c.Feed(testKey)
	g, mine, _ := snap.Reaction("p1", "👍")
	assert.Equal(t, 1, g.Count)
	assert.Equal(t, true, mine)
}

func TestCommentInsertWithClosedPanel(t *testing.T) {
	c := newTestCache(t, "me", nil)

	ev := events.ChangeEvent{
		Table:      events.TableComment,
		Op:         events.OpInsert,
		Originator: "other",
		ChannelId:  "c1",
		Comment:    &posts.Comment{Id: "cm1", PostId: "p2", ChannelId: "c1", AuthorId: "other", Body: "hi"},
	}
	assert.Equal(t, Applied, c.Merge(ev))

	snap, _ := c.Feed(testKey)
	p, i, _ := snap.Locate("p2")
	assert.Equal(t, 1, snap.Pages[p][i].CommentCount)

	_, open := c.Comments("p2")
	assert.Equal(t, false, open)
}

func TestPostInsertKeepsPagePositions(t *testing.T) {
	c := newTestCache(t, "me", nil)
	assert.Equal(t, true, c.AppendPage(testKey, 1, 10, makePosts(10, 10)))

	before, _ := c.Feed(testKey)

	ev := events.ChangeEvent{
		Table:      events.TablePost,
		Op:         events.OpInsert,
		Originator: "other",
		ChannelId:  "c1",
		Post:       &posts.Post{Id: "fresh", ChannelId: "c1", AuthorId: "other", CreatedAt: day},
	}
	assert.Equal(t, Applied, c.Merge(ev))
	assert.Equal(t, Duplicate, c.Merge(ev))

	after, _ := c.Feed(testKey)
	assert.Equal(t, 1, after.PendingNewCount)
	assert.Equal(t, 2, len(after.Pages))
	for _, p := range before.Posts() {
		bp, bi, _ := before.Locate(p.Id)
		ap, ai, ok := after.Locate(p.Id)
		assert.Equal(t, true, ok)
		assert.Equal(t, bp, ap)
		assert.Equal(t, bi, ai)
	}
	_, _, found := after.Locate("fresh")
	assert.Equal(t, false, found)
}

func TestPostInsertOtherDayOutOfScope(t *testing.T) {
	c := newTestCache(t, "me", nil)

	ev := events.ChangeEvent{
		Table:      events.TablePost,
		Op:         events.OpInsert,
		Originator: "other",
		ChannelId:  "c1",
		Post:       &posts.Post{Id: "old", ChannelId: "c1", CreatedAt: day.AddDate(0, 0, -3)},
	}
	assert.Equal(t, OutOfScope, c.Merge(ev))

	ev.Post = &posts.Post{Id: "x", ChannelId: "c2", CreatedAt: day}
	assert.Equal(t, OutOfScope, c.Merge(ev))
}

func TestPostDeleteInPlace(t *testing.T) {
	c := newTestCache(t, "me", nil)

	ev := events.ChangeEvent{Table: events.TablePost, Op: events.OpDelete, Post: &posts.Post{Id: "p3"}}
	assert.Equal(t, Applied, c.Merge(ev))
	assert.Equal(t, Orphan, c.Merge(ev))

	snap, _ := c.Feed(testKey)
	assert.Equal(t, 1, len(snap.Pages))
	assert.Equal(t, 9, len(snap.Pages[0]))
	_, _, found := snap.Locate("p3")
	assert.Equal(t, false, found)
}

func TestRepeatedReactionDelete(t *testing.T) {
	c := newTestCache(t, "me", nil)
	c.Merge(reactionEvent(events.OpInsert, "a", "p1", "🔥"))
	c.Merge(reactionEvent(events.OpInsert, "b", "p1", "🔥"))

	del := reactionEvent(events.OpDelete, "a", "p1", "🔥")
	assert.Equal(t, Applied, c.Merge(del))
	assert.Equal(t, Duplicate, c.Merge(del))

	snap, _ := c.Feed(testKey)
	g, _, _ := snap.Reaction("p1", "🔥")
	assert.Equal(t, 1, g.Count)
	assert.Equal(t, []string{"b"}, g.UserIds)

	c.Merge(reactionEvent(events.OpDelete, "b", "p1", "🔥"))
	c.Merge(reactionEvent(events.OpDelete, "b", "p1", "🔥"))
	snap, _ = c.Feed(testKey)
	_, _, ok := snap.Reaction("p1", "🔥")
	assert.Equal(t, false, ok)
}

func TestRollbackIgnoresConcurrentPush(t *testing.T) {
	c := newTestCache(t, "me", nil)
	c.Merge(reactionEvent(events.OpInsert, "a", "p1", "👍"))
	c.Merge(reactionEvent(events.OpInsert, "a", "p1", "❤️"))

	before, _ := c.Feed(testKey)
	pre, _, _ := before.Reaction("p1", "👍")

	m, err := c.BeginToggle(postTarget("p1"), "👍")
	assert.Equal(t, nil, err)
	assert.Equal(t, true, m.Add)

	// unrelated change to the same post while the write is in flight
	c.Merge(reactionEvent(events.OpInsert, "z", "p1", "❤️"))

	assert.Equal(t, nil, c.Rollback(m.Token))

	after, _ := c.Feed(testKey)
	restored, _, _ := after.Reaction("p1", "👍")
	assert.Equal(t, pre, restored)
	p, i, _ := after.Locate("p1")
	assert.Equal(t, "👍", after.Pages[p][i].Reactions[0].Emoji)
	heart, _, _ := after.Reaction("p1", "❤️")
	assert.Equal(t, 2, heart.Count)
}

func TestToggleGuard(t *testing.T) {
	c := newTestCache(t, "me", nil)

	m, err := c.BeginToggle(postTarget("p1"), "👍")
	assert.Equal(t, nil, err)

	_, err = c.BeginToggle(postTarget("p1"), "👍")
	assert.Equal(t, ErrMutationInFlight, err)

	// a different emoji is independent
	_, err = c.BeginToggle(postTarget("p1"), "🔥")
	assert.Equal(t, nil, err)

	_, ok := c.PendingFor(postTarget("p1"), "👍")
	assert.Equal(t, true, ok)

	assert.Equal(t, nil, c.ConfirmReaction(m.Token, nil))
	_, ok = c.PendingFor(postTarget("p1"), "👍")
	assert.Equal(t, false, ok)

	// second toggle now removes the reaction
	m, err = c.BeginToggle(postTarget("p1"), "👍")
	assert.Equal(t, nil, err)
	assert.Equal(t, false, m.Add)

	_, err = c.BeginToggle(postTarget("missing"), "👍")
	assert.Equal(t, ErrTargetNotLoaded, err)
	assert.Equal(t, ErrUnknownMutation, c.Rollback("nope"))
}

func TestCreatePostConfirm(t *testing.T) {
	c := newTestCache(t, "me", nil)

	m, err := c.BeginCreatePost(testKey, posts.Post{Caption: "draft"})
	assert.Equal(t, nil, err)
	assert.Equal(t, true, IsTempId(m.Target.Id))

	snap, _ := c.Feed(testKey)
	assert.Equal(t, m.Target.Id, snap.Pages[0][0].Id)
	assert.Equal(t, "me", snap.Pages[0][0].AuthorId)

	// a pushed delete shifts the page before the write returns
	c.Merge(events.ChangeEvent{Table: events.TablePost, Op: events.OpDelete, Post: &posts.Post{Id: "p0"}})

	confirmed := posts.Post{Id: "real", ChannelId: "c1", AuthorId: "me", Caption: "draft", CreatedAt: day}
	assert.Equal(t, nil, c.ConfirmPost(m.Token, confirmed))
	assert.Equal(t, ErrUnknownMutation, c.ConfirmPost(m.Token, confirmed))

	snap, _ = c.Feed(testKey)
	assert.Equal(t, "real", snap.Pages[0][0].Id)
	assert.Equal(t, 10, len(snap.Pages[0]))
}

func TestCreatePostRollback(t *testing.T) {
	c := newTestCache(t, "me", nil)

	_, err := c.BeginCreatePost(posts.FeedKey{ChannelId: "c9"}, posts.Post{})
	assert.Equal(t, ErrFeedNotLoaded, err)

	m, err := c.BeginCreatePost(testKey, posts.Post{Caption: "draft"})
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, c.Rollback(m.Token))

	snap, _ := c.Feed(testKey)
	assert.Equal(t, "p0", snap.Pages[0][0].Id)
	assert.Equal(t, 10, len(snap.Pages[0]))
}

func TestCreateCommentLifecycle(t *testing.T) {
	c := newTestCache(t, "me", nil)
	c.SetComments("p1", []posts.Comment{{Id: "cm1", PostId: "p1", Body: "first"}})

	m, err := c.BeginCreateComment(posts.Comment{PostId: "p1", Body: "second"})
	assert.Equal(t, nil, err)

	comments, _ := c.Comments("p1")
	assert.Equal(t, 2, len(comments))
	snap, _ := c.Feed(testKey)
	_, i, _ := snap.Locate("p1")
	assert.Equal(t, 1, snap.Pages[0][i].CommentCount)

	assert.Equal(t, nil, c.ConfirmComment(m.Token, posts.Comment{Id: "cm2", PostId: "p1", AuthorId: "me", Body: "second"}))
	comments, _ = c.Comments("p1")
	assert.Equal(t, "cm2", comments[1].Id)

	m, err = c.BeginCreateComment(posts.Comment{PostId: "p1", Body: "third"})
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, c.Rollback(m.Token))

	comments, _ = c.Comments("p1")
	assert.Equal(t, 2, len(comments))
	snap, _ = c.Feed(testKey)
	assert.Equal(t, 1, snap.Pages[0][i].CommentCount)
}

func TestCreateCommentAcrossRefresh(t *testing.T) {
	var got []Invalidation
	c := newTestCache(t, "me", &got)

	m, err := c.BeginCreateComment(posts.Comment{PostId: "p1", Body: "hi"})
	assert.Equal(t, nil, err)
	snap, _ := c.Feed(testKey)
	assert.Equal(t, 1, snap.Pages[0][1].CommentCount)

	// the refreshed page already counts the comment
	page := makePosts(0, 10)
	page[1].CommentCount = 1
	c.ReplaceFeed(testKey, 10, [][]posts.Post{page})
	snap, _ = c.Feed(testKey)
	assert.Equal(t, 1, snap.Pages[0][1].CommentCount)

	assert.Equal(t, nil, c.ConfirmComment(m.Token, posts.Comment{Id: "cm1", PostId: "p1", AuthorId: "me", Body: "hi"}))
	snap, _ = c.Feed(testKey)
	assert.Equal(t, 1, snap.Pages[0][1].CommentCount)
	assert.Equal(t, 1, len(got))
	assert.Equal(t, testKey, *got[0].Feed)
	assert.Equal(t, "comment_confirmed", got[0].Reason)
}

func TestRollbackCommentAcrossRefresh(t *testing.T) {
	var got []Invalidation
	c := newTestCache(t, "me", &got)

	m, err := c.BeginCreateComment(posts.Comment{PostId: "p1", Body: "hi"})
	assert.Equal(t, nil, err)

	page := makePosts(0, 10)
	page[1].CommentCount = 3
	c.ReplaceFeed(testKey, 10, [][]posts.Post{page})

	assert.Equal(t, nil, c.Rollback(m.Token))
	snap, _ := c.Feed(testKey)
	assert.Equal(t, 3, snap.Pages[0][1].CommentCount)
	assert.Equal(t, 1, len(got))
	assert.Equal(t, testKey, *got[0].Feed)

	// without a reload the bump is undone in place
	got = nil
	m, err = c.BeginCreateComment(posts.Comment{PostId: "p1", Body: "again"})
	assert.Equal(t, nil, err)
	assert.Equal(t, nil, c.Rollback(m.Token))
	snap, _ = c.Feed(testKey)
	assert.Equal(t, 3, snap.Pages[0][1].CommentCount)
	assert.Equal(t, 0, len(got))
}

func TestCommentEventsWithOpenPanel(t *testing.T) {
	c := newTestCache(t, "me", nil)
	c.SetComments("p1", nil)

	insert := events.ChangeEvent{
		Table:      events.TableComment,
		Op:         events.OpInsert,
		Originator: "other",
		ChannelId:  "c1",
		Comment:    &posts.Comment{Id: "cm1", PostId: "p1", AuthorId: "other"},
	}
	assert.Equal(t, Applied, c.Merge(insert))
	assert.Equal(t, Duplicate, c.Merge(insert))

	react := events.ChangeEvent{
		Table:      events.TableCommentReaction,
		Op:         events.OpInsert,
		Originator: "other",
		Reaction:   &events.Reaction{TargetId: "cm1", UserId: "other", Emoji: "😂"},
	}
	assert.Equal(t, Applied, c.Merge(react))

	comments, _ := c.Comments("p1")
	assert.Equal(t, 1, len(comments))
	assert.Equal(t, 1, comments[0].Reactions[0].Count)

	del := events.ChangeEvent{Table: events.TableComment, Op: events.OpDelete, Comment: &posts.Comment{Id: "cm1", PostId: "p1"}}
	assert.Equal(t, Applied, c.Merge(del))

	comments, _ = c.Comments("p1")
	assert.Equal(t, 0, len(comments))
	snap, _ := c.Feed(testKey)
	_, i, _ := snap.Locate("p1")
	assert.Equal(t, 0, snap.Pages[0][i].CommentCount)

	c.CloseComments("p1")
	assert.Equal(t, Orphan, c.Merge(react))
}

func TestAppendPageDedupeAndEnd(t *testing.T) {
	c := newTestCache(t, "me", nil)

	// out of sequence
	assert.Equal(t, false, c.AppendPage(testKey, 2, 10, makePosts(20, 10)))

	// server offsets moved by one: p9 shows up again
	assert.Equal(t, true, c.AppendPage(testKey, 1, 10, makePosts(9, 10)))
	pages, done, _ := c.PageCount(testKey)
	assert.Equal(t, 2, pages)
	assert.Equal(t, false, done)

	snap, _ := c.Feed(testKey)
	assert.Equal(t, 9, len(snap.Pages[1]))
	assert.Equal(t, "p10", snap.Pages[1][0].Id)

	assert.Equal(t, true, c.AppendPage(testKey, 2, 10, makePosts(19, 3)))
	_, done, _ = c.PageCount(testKey)
	assert.Equal(t, true, done)
	assert.Equal(t, false, c.AppendPage(testKey, 3, 10, nil))
}

func TestReplaceFeedKeepsPendingToggle(t *testing.T) {
	c := newTestCache(t, "me", nil)
	c.Merge(events.ChangeEvent{
		Table:      events.TablePost,
		Op:         events.OpInsert,
		Originator: "other",
		Post:       &posts.Post{Id: "fresh", ChannelId: "c1", CreatedAt: day},
	})

	m, err := c.BeginToggle(postTarget("p1"), "👍")
	assert.Equal(t, nil, err)

	// server state still has a reaction from someone else and no reaction from us
	page := makePosts(0, 10)
	page[1].Reactions = []posts.ReactionGroup{{Emoji: "👍", Count: 1, UserIds: []string{"x"}}}
	c.ReplaceFeed(testKey, 10, [][]posts.Post{append([]posts.Post{{Id: "fresh", ChannelId: "c1"}}, page[:9]...)})

	snap, _ := c.Feed(testKey)
	assert.Equal(t, 0, snap.PendingNewCount)
	g, mine, _ := snap.Reaction("p1", "👍")
	assert.Equal(t, 2, g.Count)
	assert.Equal(t, true, mine)
	assertGroupsConsistent(t, snap)

	// rollback lands on the refreshed server state
	assert.Equal(t, nil, c.Rollback(m.Token))
	snap, _ = c.Feed(testKey)
	g, mine, _ = snap.Reaction("p1", "👍")
	assert.Equal(t, 1, g.Count)
	assert.Equal(t, false, mine)
}

func TestInvalidateRouting(t *testing.T) {
	var got []Invalidation
	c := newTestCache(t, "me", &got)
	c.SetComments("p1", []posts.Comment{{Id: "cm1", PostId: "p1"}})

	c.Invalidate("c1", &events.DecodeError{Table: events.TableCommentReaction, Op: events.OpDelete, CommentId: "cm1"})
	assert.Equal(t, 1, len(got))
	assert.Equal(t, "p1", got[0].CommentsOf)

	got = nil
	c.Invalidate("c1", &events.DecodeError{Table: events.TableReaction, Op: events.OpDelete, PostId: "p4"})
	assert.Equal(t, 1, len(got))
	assert.Equal(t, testKey, *got[0].Feed)

	got = nil
	c.Invalidate("c1", &events.DecodeError{Table: events.TableReaction, Op: events.OpDelete, PostId: "unknown"})
	assert.Equal(t, 0, len(got))

	got = nil
	c.Invalidate("c1", &events.DecodeError{Err: events.ErrEmptyFrame})
	assert.Equal(t, 1, len(got))
	assert.Equal(t, testKey, *got[0].Feed)
}

func TestInvalidateIncompletePostInsert(t *testing.T) {
	var got []Invalidation
	c := newTestCache(t, "me", &got)

	id, channelId := "pNew", "c1"
	frame, err := events.Encode(events.OpPostInsert, events.PostRecord{Id: &id, ChannelId: &channelId})
	assert.Equal(t, nil, err)
	_, err = events.Decode(frame)
	var derr *events.DecodeError
	assert.Equal(t, true, errors.As(err, &derr))

	c.Invalidate("c1", derr)
	assert.Equal(t, 1, len(got))
	assert.Equal(t, testKey, *got[0].Feed)

	// a delete of a post nobody holds needs no reload
	got = nil
	c.Invalidate("c1", &events.DecodeError{Table: events.TablePost, Op: events.OpDelete, PostId: "gone"})
	assert.Equal(t, 0, len(got))
}

func TestInvariantUnderMixedTraffic(t *testing.T) {
	c := newTestCache(t, "me", nil)
	users := []string{"a", "b", "me", "c"}
	emojis := []string{"👍", "🔥"}

	var tokens []string
	for i := 0; i < 40; i++ {
		u := users[i%len(users)]
		e := emojis[i%len(emojis)]
		op := events.OpInsert
		if i%3 == 0 {
			op = events.OpDelete
		}
		c.Merge(reactionEvent(op, u, "p1", e))

		if m, err := c.BeginToggle(postTarget("p1"), e); err == nil {
			tokens = append(tokens, m.Token)
		}
		if i%5 == 0 && len(tokens) > 0 {
			if i%2 == 0 {
				c.Rollback(tokens[0])
			} else {
				c.ConfirmReaction(tokens[0], nil)
			}
			tokens = tokens[1:]
		}
		snap, _ := c.Feed(testKey)
		assertGroupsConsistent(t, snap)
	}
}

func TestSubscribeSignals(t *testing.T) {
	c := newTestCache(t, "me", nil)
	ch, cancel := c.Subscribe()
	defer cancel()

	v := c.Version()
	c.SetStale("c1", true)
	c.SetStale("c1", true)
	<-ch
	assert.Equal(t, v+1, c.Version())

	snap, _ := c.Feed(testKey)
	assert.Equal(t, true, snap.Stale)
}
