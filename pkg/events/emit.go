package events

import (
	"context"

	"github.com/meower-media/feedsync/pkg/posts"
	"github.com/meower-media/feedsync/pkg/rdb"
)

// Emit publishes a row change on the channel's relation.
func Emit(ctx context.Context, channelId string, code uint8, record any) error {
	relation, ok := RelationOf(code)
	if !ok {
		return ErrUnknownOpCode
	}

	// Marshal packet
	marshaledPacket, err := Encode(code, record)
	if err != nil {
		return err
	}

	// Send packet
	return rdb.Client.Publish(ctx, ChannelName(channelId, relation), marshaledPacket).Err()
}

func EmitPost(ctx context.Context, op Op, p *posts.Post) error {
	code := OpPostInsert
	if op == OpDelete {
		code = OpPostDelete
	}
	return Emit(ctx, p.ChannelId, code, PostRow(p))
}

func EmitComment(ctx context.Context, op Op, c *posts.Comment) error {
	code := OpCommentInsert
	if op == OpDelete {
		code = OpCommentDelete
	}
	return Emit(ctx, c.ChannelId, code, CommentRow(c))
}

func EmitReaction(ctx context.Context, op Op, channelId string, target posts.Target, userId string, emoji string) error {
	table := TableReaction
	if target.Kind == posts.TargetComment {
		table = TableCommentReaction
	}
	code, _ := OpCode(table, op)
	return Emit(ctx, channelId, code, ReactionRow(target, userId, emoji))
}
