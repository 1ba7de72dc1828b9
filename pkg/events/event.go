package events

import (
	"fmt"

	"github.com/meower-media/feedsync/pkg/posts"
)

type Table uint8

const (
	TablePost Table = iota
	TableReaction
	TableComment
	TableCommentReaction
)

func (t Table) String() string {
	switch t {
	case TablePost:
		return "post"
	case TableReaction:
		return "reaction"
	case TableComment:
		return "comment"
	case TableCommentReaction:
		return "comment_reaction"
	}
	return fmt.Sprint("table(", uint8(t), ")")
}

type Op uint8

const (
	OpInsert Op = iota
	OpDelete
)

func (o Op) String() string {
	if o == OpDelete {
		return "delete"
	}
	return "insert"
}

// Relation is a watched store relation. Each (channel, relation) pair is one
// logical push channel.
type Relation string

const (
	RelationPosts            Relation = "posts"
	RelationPostReactions    Relation = "post_reactions"
	RelationComments         Relation = "comments"
	RelationCommentReactions Relation = "comment_reactions"
)

// Relations lists every relation a channel subscription watches.
var Relations = []Relation{
	RelationPosts,
	RelationPostReactions,
	RelationComments,
	RelationCommentReactions,
}

// ChannelName is the pub/sub channel carrying a relation's changes for one
// feed channel.
func ChannelName(channelId string, relation Relation) string {
	return fmt.Sprint("feed:", channelId, ":", relation)
}

// Reaction is a single (target, user, emoji) reaction row.
type Reaction struct {
	TargetId string
	UserId   string
	Emoji    string
}

// ChangeEvent is a decoded change-feed event. Exactly one of Post, Comment and
// Reaction is set, selected by Table:
//
//	TablePost            -> Post
//	TableComment         -> Comment
//	TableReaction        -> Reaction (TargetId is a post id)
//	TableCommentReaction -> Reaction (TargetId is a comment id)
//
// Delete events only guarantee the key fields of the entity.
type ChangeEvent struct {
	Table      Table
	Op         Op
	Originator string
	ChannelId  string // empty when the row does not carry it

	Post     *posts.Post
	Comment  *posts.Comment
	Reaction *Reaction
}

func (e ChangeEvent) String() string {
	var id string
	switch {
	case e.Post != nil:
		id = e.Post.Id
	case e.Comment != nil:
		id = e.Comment.Id
	case e.Reaction != nil:
		id = e.Reaction.TargetId + "/" + e.Reaction.Emoji
	}
	return fmt.Sprint(e.Table, " ", e.Op, " ", id)
}

// Relation returns the relation a table's changes are published on.
func (t Table) Relation() Relation {
	switch t {
	case TableReaction:
		return RelationPostReactions
	case TableComment:
		return RelationComments
	case TableCommentReaction:
		return RelationCommentReactions
	}
	return RelationPosts
}
