package media

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MockS3Client is a mock implementation of S3Client for testing
type MockS3Client struct {
	mu sync.Mutex

	// Objects stores mock S3 objects with their content and metadata
	Objects map[string]*MockS3Object
	// Buckets stores the list of buckets
	Buckets map[string]bool
	// Error to return from operations
	Err error
	// Store last call parameters
	LastBucket    string
	LastObjectKey string
	LastMetadata  map[string]string
}

// MockS3Object represents a mock S3 object with content and metadata
type MockS3Object struct {
	Key         string
	Content     string
	ContentType string
	Metadata    map[string]string
	Size        int64
}

// NewMockS3Client creates a new mock S3 client
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		Objects: make(map[string]*MockS3Object),
		Buckets: make(map[string]bool),
	}
}

// HeadBucket mocks checking bucket existence
func (m *MockS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastBucket = aws.ToString(params.Bucket)

	if m.Err != nil {
		return nil, m.Err
	}
	if m.Buckets[aws.ToString(params.Bucket)] {
		return &s3.HeadBucketOutput{}, nil
	}
	return nil, &types.NoSuchBucket{}
}

// CreateBucket mocks creating a bucket
func (m *MockS3Client) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastBucket = aws.ToString(params.Bucket)

	if m.Err != nil {
		return nil, m.Err
	}
	m.Buckets[aws.ToString(params.Bucket)] = true
	return &s3.CreateBucketOutput{}, nil
}

// PutObject mocks uploading an object
func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastBucket = aws.ToString(params.Bucket)
	m.LastObjectKey = aws.ToString(params.Key)
	m.LastMetadata = params.Metadata

	if m.Err != nil {
		return nil, m.Err
	}

	content := ""
	if params.Body != nil {
		data, err := io.ReadAll(params.Body)
		if err == nil {
			content = string(data)
		}
	}

	m.Objects[aws.ToString(params.Key)] = &MockS3Object{
		Key:         aws.ToString(params.Key),
		Content:     content,
		ContentType: aws.ToString(params.ContentType),
		Metadata:    params.Metadata,
		Size:        int64(len(content)),
	}
	return &s3.PutObjectOutput{}, nil
}

// GetObject mocks retrieving an object
func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastBucket = aws.ToString(params.Bucket)
	m.LastObjectKey = aws.ToString(params.Key)

	if m.Err != nil {
		return nil, m.Err
	}

	if obj, exists := m.Objects[aws.ToString(params.Key)]; exists {
		return &s3.GetObjectOutput{
			Body:     io.NopCloser(strings.NewReader(obj.Content)),
			Metadata: obj.Metadata,
		}, nil
	}
	return nil, &types.NoSuchKey{}
}

// HeadObject mocks retrieving object metadata
func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastBucket = aws.ToString(params.Bucket)
	m.LastObjectKey = aws.ToString(params.Key)

	if m.Err != nil {
		return nil, m.Err
	}

	if obj, exists := m.Objects[aws.ToString(params.Key)]; exists {
		return &s3.HeadObjectOutput{
			Metadata:      obj.Metadata,
			ContentLength: aws.Int64(obj.Size),
		}, nil
	}
	return nil, &types.NotFound{}
}

// DeleteObject mocks removing an object
func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastBucket = aws.ToString(params.Bucket)
	m.LastObjectKey = aws.ToString(params.Key)

	if m.Err != nil {
		return nil, m.Err
	}

	delete(m.Objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 mocks listing objects
func (m *MockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastBucket = aws.ToString(params.Bucket)

	if m.Err != nil {
		return nil, m.Err
	}

	prefix := aws.ToString(params.Prefix)
	var contents []types.Object
	for key, obj := range m.Objects {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			contents = append(contents, types.Object{
				Key:  aws.String(obj.Key),
				Size: aws.Int64(obj.Size),
			})
		}
	}
	return &s3.ListObjectsV2Output{Contents: contents}, nil
}
