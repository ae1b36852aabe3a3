package mongodb

import (
	"context"
	"errors"
	"fmt"
	"io"

	"house-marketplace/internal/application/uploads"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrBlobNotFound is returned by Open for unknown keys.
var ErrBlobNotFound = errors.New("image not found")

// ImagesPath is the route prefix GridFS images are served under.
const ImagesPath = "/api/v1/images/"

// GridFSStore is an uploads.BlobStore keeping images in a GridFS bucket, using the object key as file name.
// Images are served back through the API at {PublicBaseURL}/api/v1/images/{key}.
type GridFSStore struct {
	DB            *mongo.Database
	PublicBaseURL string
}

var _ uploads.BlobStore = (*GridFSStore)(nil)

func NewGridFSStore(client *mongo.Client, dbName, publicBaseURL string) *GridFSStore {
	return &GridFSStore{DB: client.Database(dbName), PublicBaseURL: publicBaseURL}
}

// a bucket per call; gridfs.Bucket keeps per-operation state
func (s *GridFSStore) bucket() (*gridfs.Bucket, error) {
	return gridfs.NewBucket(s.DB)
}

func (s *GridFSStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64, progress uploads.ProgressFunc) (string, error) {
	bucket, err := s.bucket()
	if err != nil {
		return "", err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := bucket.SetWriteDeadline(deadline); err != nil {
			return "", err
		}
	}
	uploads.Report(progress, uploads.Progress{Key: key, TotalBytes: size, State: uploads.StateRunning})
	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	if _, err := bucket.UploadFromStream(key, uploads.NewProgressReader(body, key, size, progress), opts); err != nil {
		uploads.Report(progress, uploads.Progress{Key: key, TotalBytes: size, State: uploads.StateError})
		return "", fmt.Errorf("gridfs upload %s: %w", key, err)
	}
	uploads.Report(progress, uploads.Progress{Key: key, BytesTransferred: size, TotalBytes: size, State: uploads.StateSuccess})
	return s.PublicBaseURL + ImagesPath + key, nil
}

type gridfsFile struct {
	ID primitive.ObjectID `bson:"_id"`
}

func (s *GridFSStore) Delete(ctx context.Context, key string) error {
	bucket, err := s.bucket()
	if err != nil {
		return err
	}
	cur, err := bucket.Find(bson.M{"filename": key})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	var files []gridfsFile
	if err := cur.All(ctx, &files); err != nil {
		return err
	}
	for _, f := range files {
		if err := bucket.Delete(f.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return fmt.Errorf("gridfs delete %s: %w", key, err)
		}
	}
	return nil
}

// Open streams the newest revision of key. The caller closes the reader.
func (s *GridFSStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	bucket, err := s.bucket()
	if err != nil {
		return nil, "", err
	}
	stream, err := bucket.OpenDownloadStreamByName(key)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, "", ErrBlobNotFound
		}
		return nil, "", err
	}
	contentType := "application/octet-stream"
	if meta := stream.GetFile().Metadata; meta != nil {
		if ct, ok := meta.Lookup("contentType").StringValueOK(); ok && ct != "" {
			contentType = ct
		}
	}
	return stream, contentType, nil
}
