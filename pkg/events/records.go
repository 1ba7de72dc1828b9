package events

import (
	"time"

	"github.com/meower-media/feedsync/pkg/posts"
)

// Row records as they travel on the change feed. Every field is optional on
// the wire: delete events may only carry the primary key.

type PostRecord struct {
	Id        *string    `msgpack:"id,omitempty"`
	ChannelId *string    `msgpack:"channel_id,omitempty"`
	AuthorId  *string    `msgpack:"author_id,omitempty"`
	Caption   *string    `msgpack:"caption,omitempty"`
	MediaRef  *string    `msgpack:"image_key,omitempty"`
	CreatedAt *time.Time `msgpack:"created_at,omitempty"`
}

type CommentRecord struct {
	Id        *string    `msgpack:"id,omitempty"`
	PostId    *string    `msgpack:"post_id,omitempty"`
	ChannelId *string    `msgpack:"channel_id,omitempty"`
	AuthorId  *string    `msgpack:"author_id,omitempty"`
	Body      *string    `msgpack:"body,omitempty"`
	CreatedAt *time.Time `msgpack:"created_at,omitempty"`
}

// ReactionRecord covers both post_reactions (PostId set) and
// comment_reactions (CommentId set).
type ReactionRecord struct {
	PostId    *string    `msgpack:"post_id,omitempty"`
	CommentId *string    `msgpack:"comment_id,omitempty"`
	UserId    *string    `msgpack:"user_id,omitempty"`
	Emoji     *string    `msgpack:"emoji,omitempty"`
	CreatedAt *time.Time `msgpack:"created_at,omitempty"`
}

func PostRow(p *posts.Post) PostRecord {
	return PostRecord{
		Id:        &p.Id,
		ChannelId: &p.ChannelId,
		AuthorId:  &p.AuthorId,
		Caption:   &p.Caption,
		MediaRef:  &p.MediaRef,
		CreatedAt: &p.CreatedAt,
	}
}

func CommentRow(c *posts.Comment) CommentRecord {
	return CommentRecord{
		Id:        &c.Id,
		PostId:    &c.PostId,
		ChannelId: &c.ChannelId,
		AuthorId:  &c.AuthorId,
		Body:      &c.Body,
		CreatedAt: &c.CreatedAt,
	}
}

func ReactionRow(target posts.Target, userId string, emoji string) ReactionRecord {
	now := time.Now()
	r := ReactionRecord{
		UserId:    &userId,
		Emoji:     &emoji,
		CreatedAt: &now,
	}
	targetId := target.Id
	if target.Kind == posts.TargetComment {
		r.CommentId = &targetId
	} else {
		r.PostId = &targetId
	}
	return r
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
