package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"strata.evalgo.org/common"
)

// Object describes a stored media object.
type Object struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// Store puts and gets media objects in one bucket.
type Store struct {
	client S3Client
	bucket string
	logger *logrus.Logger
}

// NewStore creates a media store over an S3 client.
func NewStore(client S3Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket, logger: common.Logger}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return common.WrapError(common.KindStorage, fmt.Sprintf("create bucket %s", s.bucket), err)
	}
	return nil
}

// Upload stores a file and returns the generated opaque key the media field
// kind references. The original file name only survives in the key's suffix.
func (s *Store) Upload(ctx context.Context, filename, contentType string, body io.Reader) (*Object, error) {
	key := fmt.Sprintf("%s/%s-%s", time.Now().UTC().Format("2006/01"), uuid.NewString(), path.Base(filename))

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, common.WrapError(common.KindStorage, "read upload body", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"original-filename": path.Base(filename)},
	})
	if err != nil {
		return nil, common.WrapError(common.KindStorage, fmt.Sprintf("upload %s", key), err)
	}

	s.logger.WithFields(logrus.Fields{"key": key, "size": humanize.Bytes(uint64(len(data)))}).Info("media uploaded")
	return &Object{Key: key, Size: int64(len(data)), ContentType: contentType}, nil
}

// Download streams an object. The caller closes the reader.
func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, common.NewError(common.KindNotFound, fmt.Sprintf("media %s not found", key))
		}
		return nil, common.WrapError(common.KindStorage, fmt.Sprintf("download %s", key), err)
	}
	return out.Body, nil
}

// Exists reports whether an object is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, common.WrapError(common.KindStorage, fmt.Sprintf("head %s", key), err)
	}
	return true, nil
}

// Delete removes an object. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return common.WrapError(common.KindStorage, fmt.Sprintf("delete %s", key), err)
	}
	return nil
}

// List returns the keys under a prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]Object, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, common.WrapError(common.KindStorage, fmt.Sprintf("list %s", prefix), err)
	}

	objects := make([]Object, 0, len(out.Contents))
	for _, item := range out.Contents {
		objects = append(objects, Object{
			Key:  aws.ToString(item.Key),
			Size: aws.ToInt64(item.Size),
		})
	}
	return objects, nil
}

func isNoSuchKey(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
