package files

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"time"

	"github.com/meower-media/feedsync/pkg/db"
	"github.com/meower-media/feedsync/pkg/posts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/sha3"
)

const bucketName = "media"

// File is the stored metadata of an uploaded image. Its bytes live in the
// media GridFS bucket under the same id.
type File struct {
	Id         string `bson:"_id"`
	Mime       string `bson:"mime"`
	Filename   string `bson:"filename,omitempty"`
	Size       int64  `bson:"size"`
	UploaderId string `bson:"uploader"`
	UploadedAt int64  `bson:"uploaded_at"`
}

func (f File) Attachment() posts.Attachment {
	return posts.Attachment{
		Ref:      f.Id,
		Mime:     f.Mime,
		Filename: f.Filename,
		Size:     f.Size,
	}
}

func bucket() (*gridfs.Bucket, error) {
	return gridfs.NewBucket(db.Database, options.GridFSBucket().SetName(bucketName))
}

// Save stores an upload. Identical bytes are stored once; the id is the
// content hash.
func Save(ctx context.Context, uploaderId string, filename string, mime string, data []byte) (File, error) {
	sum := sha3.Sum256(data)
	f := File{
		Id:         hex.EncodeToString(sum[:]),
		Mime:       mime,
		Filename:   filename,
		Size:       int64(len(data)),
		UploaderId: uploaderId,
		UploadedAt: time.Now().UnixMilli(),
	}

	// Already stored?
	existing, err := GetFile(ctx, f.Id)
	if err == nil {
		return existing, nil
	} else if err != ErrFileNotFound {
		return f, err
	}

	b, err := bucket()
	if err != nil {
		return f, err
	}
	if err := b.UploadFromStreamWithID(f.Id, filename, bytes.NewReader(data)); err != nil {
		return f, err
	}
	if _, err := db.Files.InsertOne(ctx, &f); err != nil && !mongo.IsDuplicateKeyError(err) {
		return f, err
	}
	return f, nil
}

func GetFile(ctx context.Context, id string) (File, error) {
	var f File
	err := db.Files.FindOne(ctx, bson.M{"_id": id}).Decode(&f)
	if err == mongo.ErrNoDocuments {
		return f, ErrFileNotFound
	}
	return f, err
}

// Download writes a stored file's bytes to w.
func Download(id string, w io.Writer) (int64, error) {
	b, err := bucket()
	if err != nil {
		return 0, err
	}
	n, err := b.DownloadToStream(id, w)
	if err == gridfs.ErrFileNotFound {
		return n, ErrFileNotFound
	}
	return n, err
}
