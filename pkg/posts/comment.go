package posts

import "time"

type Comment struct {
	Id        string          `bson:"_id" json:"id" msgpack:"id"`
	PostId    string          `bson:"post_id" json:"postId" msgpack:"post_id"`
	ChannelId string          `bson:"channel_id" json:"channelId" msgpack:"channel_id"`
	AuthorId  string          `bson:"author_id" json:"authorId" msgpack:"author_id"`
	Body      string          `bson:"body" json:"body" msgpack:"body"`
	CreatedAt time.Time       `bson:"created_at" json:"createdAt" msgpack:"created_at"`
	Reactions []ReactionGroup `bson:"-" json:"reactions" msgpack:"reactions"`
}

func (c Comment) Clone() Comment {
	c.Reactions = CloneReactions(c.Reactions)
	return c
}

type TargetKind uint8

const (
	TargetPost TargetKind = iota
	TargetComment
)

func (k TargetKind) String() string {
	if k == TargetComment {
		return "comment"
	}
	return "post"
}

// Target addresses a reactable entity.
type Target struct {
	Kind TargetKind
	Id   string
}
