package fetcher

import (
	"context"
	"fmt"

	"github.com/meower-media/feedsync/pkg/posts"
)

// Fetcher reads pages and performs single-entity writes against the backing
// store. It holds no state: every call either returns the server's canonical
// entity or fails with an error (a *TransportError for transport failures).
type Fetcher interface {
	// LoadPage returns page (0-based) of a feed. Fewer than limit posts means
	// the feed has no further pages.
	LoadPage(ctx context.Context, key posts.FeedKey, page int, limit int) ([]posts.Post, error)
	LoadComments(ctx context.Context, postId string) ([]posts.Comment, error)
	CreatePost(ctx context.Context, input PostInput) (posts.Post, error)
	CreateComment(ctx context.Context, input CommentInput) (posts.Comment, error)
	AddReaction(ctx context.Context, target posts.Target, emoji string) (posts.ReactionGroup, error)
	RemoveReaction(ctx context.Context, target posts.Target, emoji string) error
}

type PostInput struct {
	ChannelId string `validate:"required,max=64"`
	Caption   string `validate:"max=2000"`
	Image     *Upload
}

// Upload is an image sent with a new post.
type Upload struct {
	Filename string `validate:"required,max=255"`
	Data     []byte `validate:"required"`
}

type CommentInput struct {
	PostId string `validate:"required,max=64"`
	Body   string `validate:"required,max=1000"`
}

// Validate checks a PostInput or CommentInput without sending it.
func Validate(input any) error {
	if err := validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
