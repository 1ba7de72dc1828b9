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

// DayRange returns the bounds of a feed day.
func DayRange(date string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(posts.DateLayout, date, loc)
	if err != nil {
		return start, start, ErrInvalidDate
	}
	return start, start.AddDate(0, 0, 1), nil
}

// GetPosts returns page (0-based) of a channel's posts on a day, newest
// first, with comment counts and reaction groups filled in.
func GetPosts(ctx context.Context, key posts.FeedKey, loc *time.Location, page int64, limit int64) ([]posts.Post, error) {
	f := bson.M{"channel_id": key.ChannelId}
	if key.Date != "" {
		start, end, err := DayRange(key.Date, loc)
		if err != nil {
			return nil, err
		}
		f["created_at"] = bson.M{"$gte": start, "$lt": end}
	}

	opts := options.Find()
	opts.SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	opts.SetSkip(page * limit)
	opts.SetLimit(limit)
	cur, err := db.Posts.Find(ctx, f, opts)
	if err != nil {
		return nil, err
	}
	list := []posts.Post{}
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
	counts, err := commentCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	reactions, err := reactionGroups(ctx, db.PostReactions, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].CommentCount = counts[list[i].Id]
		list[i].Reactions = reactions[list[i].Id]
	}
	return list, nil
}

func GetPost(ctx context.Context, id string) (posts.Post, error) {
	var p posts.Post
	err := db.Posts.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return p, posts.ErrPostNotFound
	}
	return p, err
}

func CreatePost(ctx context.Context, channelId string, authorId string, caption string, mediaRef string) (posts.Post, error) {
	p := posts.Post{
		Id:        meowid.New(),
		ChannelId: channelId,
		AuthorId:  authorId,
		Caption:   caption,
		MediaRef:  mediaRef,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := db.Posts.InsertOne(ctx, &p); err != nil {
		return p, err
	}

	// Emit event
	if err := events.EmitPost(ctx, events.OpInsert, &p); err != nil {
		sentry.CaptureException(err)
	}

	return p, nil
}

// DeletePost removes a post with its comments and reactions.
func DeletePost(ctx context.Context, p *posts.Post) error {
	if _, err := db.Posts.DeleteOne(ctx, bson.M{"_id": p.Id}); err != nil {
		return err
	}

	// Clean up children
	commentIds, err := commentIdsOf(ctx, p.Id)
	if err != nil {
		return err
	}
	if _, err := db.Comments.DeleteMany(ctx, bson.M{"post_id": p.Id}); err != nil {
		return err
	}
	if _, err := db.PostReactions.DeleteMany(ctx, bson.M{"_id.target": p.Id}); err != nil {
		return err
	}
	if len(commentIds) > 0 {
		if _, err := db.CommentReactions.DeleteMany(ctx, bson.M{"_id.target": bson.M{"$in": commentIds}}); err != nil {
			return err
		}
	}

	// Emit event with the key only, as a change feed would
	id := p.Id
	channelId := p.ChannelId
	if err := events.Emit(ctx, channelId, events.OpPostDelete, events.PostRecord{Id: &id, ChannelId: &channelId}); err != nil {
		sentry.CaptureException(err)
	}

	return nil
}
