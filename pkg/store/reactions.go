package store

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/meower-media/feedsync/pkg/db"
	"github.com/meower-media/feedsync/pkg/events"
	"github.com/meower-media/feedsync/pkg/posts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Reaction is one stored reaction. The compound id makes a user's reaction
// with an emoji unique per target.
type Reaction struct {
	Id        ReactionIdCompound `bson:"_id"`
	ChannelId string             `bson:"channel_id"`
	CreatedAt time.Time          `bson:"created_at"`
}

type ReactionIdCompound struct {
	TargetId string `bson:"target"`
	Emoji    string `bson:"emoji"`
	UserId   string `bson:"user"`
}

func reactionsCollection(kind posts.TargetKind) *mongo.Collection {
	if kind == posts.TargetComment {
		return db.CommentReactions
	}
	return db.PostReactions
}

// AddReaction stores a reaction and returns the emoji's updated group.
func AddReaction(ctx context.Context, channelId string, target posts.Target, userId string, emoji string) (posts.ReactionGroup, error) {
	r := Reaction{
		Id: ReactionIdCompound{
			TargetId: target.Id,
			Emoji:    emoji,
			UserId:   userId,
		},
		ChannelId: channelId,
		CreatedAt: time.Now().UTC(),
	}
	coll := reactionsCollection(target.Kind)
	if _, err := coll.InsertOne(ctx, &r); mongo.IsDuplicateKeyError(err) {
		return posts.ReactionGroup{}, posts.ErrReactionAlreadyExists
	} else if err != nil {
		return posts.ReactionGroup{}, err
	}

	// Emit event
	if err := events.EmitReaction(ctx, events.OpInsert, channelId, target, userId, emoji); err != nil {
		sentry.CaptureException(err)
	}

	return reactionGroup(ctx, coll, target.Id, emoji)
}

func RemoveReaction(ctx context.Context, channelId string, target posts.Target, userId string, emoji string) error {
	res, err := reactionsCollection(target.Kind).DeleteOne(ctx, bson.M{"_id": ReactionIdCompound{
		TargetId: target.Id,
		Emoji:    emoji,
		UserId:   userId,
	}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return posts.ErrReactionNotFound
	}

	// Emit event
	if err := events.EmitReaction(ctx, events.OpDelete, channelId, target, userId, emoji); err != nil {
		sentry.CaptureException(err)
	}

	return nil
}

func reactionGroup(ctx context.Context, coll *mongo.Collection, targetId string, emoji string) (posts.ReactionGroup, error) {
	groups, err := reactionGroups(ctx, coll, []string{targetId})
	if err != nil {
		return posts.ReactionGroup{}, err
	}
	for _, g := range groups[targetId] {
		if g.Emoji == emoji {
			return g, nil
		}
	}
	return posts.ReactionGroup{Emoji: emoji}, nil
}

// reactionGroups aggregates reactions into per-target groups. Groups are
// ordered by their first reaction, contributors by reaction time.
func reactionGroups(ctx context.Context, coll *mongo.Collection, targetIds []string) (map[string][]posts.ReactionGroup, error) {
	cur, err := coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id.target": bson.M{"$in": targetIds}}}},
		{{Key: "$sort", Value: bson.M{"created_at": 1}}},
		{{Key: "$group", Value: bson.M{
			"_id":      bson.M{"target": "$_id.target", "emoji": "$_id.emoji"},
			"user_ids": bson.M{"$push": "$_id.user"},
			"first":    bson.M{"$min": "$created_at"},
		}}},
		{{Key: "$sort", Value: bson.M{"first": 1}}},
	})
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Id struct {
			Target string `bson:"target"`
			Emoji  string `bson:"emoji"`
		} `bson:"_id"`
		UserIds []string `bson:"user_ids"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	groups := make(map[string][]posts.ReactionGroup)
	for _, row := range rows {
		groups[row.Id.Target] = append(groups[row.Id.Target], posts.ReactionGroup{
			Emoji:   row.Id.Emoji,
			Count:   len(row.UserIds),
			UserIds: row.UserIds,
		})
	}
	return groups, nil
}
