package posts

import "time"

// DateLayout is the calendar-day format used by feed keys.
const DateLayout = "20060102"

type Post struct {
	Id           string          `bson:"_id" json:"id" msgpack:"id"`
	ChannelId    string          `bson:"channel_id" json:"channelId" msgpack:"channel_id"`
	AuthorId     string          `bson:"author_id" json:"authorId" msgpack:"author_id"`
	Caption      string          `bson:"caption" json:"caption" msgpack:"caption"`
	MediaRef     string          `bson:"media_ref,omitempty" json:"mediaRef,omitempty" msgpack:"media_ref,omitempty"`
	CreatedAt    time.Time       `bson:"created_at" json:"createdAt" msgpack:"created_at"`
	CommentCount int             `bson:"-" json:"commentCount" msgpack:"comment_count"`
	Reactions    []ReactionGroup `bson:"-" json:"reactions" msgpack:"reactions"`
}

// Clone returns a copy that shares no reaction state with p.
func (p Post) Clone() Post {
	p.Reactions = CloneReactions(p.Reactions)
	return p
}

// FeedKey identifies one paginated feed: a channel on a calendar day.
type FeedKey struct {
	ChannelId string
	Date      string // DateLayout
}

func (k FeedKey) String() string {
	return k.ChannelId + "@" + k.Date
}

// Contains reports whether a post created at t belongs to the feed's day.
func (k FeedKey) Contains(t time.Time, loc *time.Location) bool {
	if k.Date == "" || t.IsZero() {
		return true
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout) == k.Date
}

func Today(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format(DateLayout)
}
