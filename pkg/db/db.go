package db

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var Client *mongo.Client
var Database *mongo.Database

var (
	Posts            *mongo.Collection
	Comments         *mongo.Collection
	PostReactions    *mongo.Collection
	CommentReactions *mongo.Collection
	Files            *mongo.Collection
)

func Init(uri string, db string) error {
	var err error

	// Connect to MongoDB
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)
	Client, err = mongo.Connect(context.TODO(), opts)
	if err != nil {
		return err
	}

	// Ping MongoDB
	var result bson.M
	if err := Client.Database("admin").RunCommand(context.TODO(), bson.D{{Key: "ping", Value: 1}}).Decode(&result); err != nil {
		return err
	}

	// Set database
	Database = Client.Database(db)

	// Set collections
	Posts = Database.Collection("posts")
	Comments = Database.Collection("comments")
	PostReactions = Database.Collection("post_reactions")
	CommentReactions = Database.Collection("comment_reactions")
	Files = Database.Collection("files")

	return ensureIndexes(context.TODO())
}

// Reaction uniqueness comes from the compound _id; these only serve reads.
func ensureIndexes(ctx context.Context) error {
	if _, err := Posts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return err
	}
	if _, err := Comments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "post_id", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return err
	}
	return nil
}
