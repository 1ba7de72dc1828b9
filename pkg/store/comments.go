package store

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/meower-media/feedsync/pkg/db"
	"github.com/meower-media/feedsync/pkg/events"
	"github.com/meower-media/feedsync/pkg/meowid"
	"github.com/meower-media/feedsync/pkg/posts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const maxComments = 500

// GetComments returns a post's comments, oldest first.
func GetComments(ctx context.Context, postId string) ([]posts.Comment, error) {
	opts := options.Find()
	opts.SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	opts.SetLimit(maxComments)
	cur, err := db.Comments.Find(ctx, bson.M{"post_id": postId}, opts)
	if err != nil {
		return nil, err
	}
	list := []posts.Comment{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}

	ids := make([]string, len(list))
	for i := range list {
		ids[i] = list[i].Id
	}
	reactions, err := reactionGroups(ctx, db.CommentReactions, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Reactions = reactions[list[i].Id]
	}
	return list, nil
}

func GetComment(ctx context.Context, id string) (posts.Comment, error) {
	var c posts.Comment
	err := db.Comments.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return c, posts.ErrCommentNotFound
	}
	return c, err
}

func CreateComment(ctx context.Context, p *posts.Post, authorId string, body string) (posts.Comment, error) {
	c := posts.Comment{
		Id:        meowid.New(),
		PostId:    p.Id,
		ChannelId: p.ChannelId,
		AuthorId:  authorId,
		Body:      body,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := db.Comments.InsertOne(ctx, &c); err != nil {
		return c, err
	}

	// Emit event
	if err := events.EmitComment(ctx, events.OpInsert, &c); err != nil {
		sentry.CaptureException(err)
	}

	return c, nil
}

func DeleteComment(ctx context.Context, c *posts.Comment) error {
	if _, err := db.Comments.DeleteOne(ctx, bson.M{"_id": c.Id}); err != nil {
		return err
	}
	if _, err := db.CommentReactions.DeleteMany(ctx, bson.M{"_id.target": c.Id}); err != nil {
		return err
	}

	// Emit event
	id, postId := c.Id, c.PostId
	if err := events.Emit(ctx, c.ChannelId, events.OpCommentDelete, events.CommentRecord{Id: &id, PostId: &postId}); err != nil {
		sentry.CaptureException(err)
	}

	return nil
}

func commentCounts(ctx context.Context, postIds []string) (map[string]int, error) {
	cur, err := db.Comments.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"post_id": bson.M{"$in": postIds}}}},
		{{Key: "$group", Value: bson.M{"_id": "$post_id", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	var rows []struct {
		PostId string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.PostId] = row.Count
	}
	return counts, nil
}

func commentIdsOf(ctx context.Context, postId string) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := db.Comments.Find(ctx, bson.M{"post_id": postId}, opts)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Id string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.Id
	}
	return ids, nil
}
