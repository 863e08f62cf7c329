package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

const (
	metaFilename  = "original-filename"
	metaCreatedAt = "upload-time"
)

// S3Store stores uploads in an S3 bucket under a key prefix.
type S3Store struct {
	client  S3API
	bucket  string
	prefix  string
	maxSize int64
}

// NewS3Store creates an S3 upload store.
//
//	client, err := upload.NewS3Client(ctx, upload.S3Options{Region: "eu-west-1"})
//	store := upload.NewS3Store(client, "my-bucket", "staging/", 32<<20)
func NewS3Store(client S3API, bucket, prefix string, maxSize int64) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		maxSize: maxSize,
	}
}

// S3Options configures NewS3Client.
type S3Options struct {
	Region string

	// Endpoint overrides the service endpoint, e.g. for MinIO.
	Endpoint string

	UsePathStyle bool
}

// NewS3Client builds an S3 client from the default AWS configuration
// chain: environment, shared config and credentials files, SSO, web
// identity and instance roles.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.UsePathStyle
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// Save streams the bytes to S3 and returns a temp ID. size must be the
// exact body length; it is sent as the object's Content-Length.
func (s *S3Store) Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	if size < 0 {
		return "", errors.New("s3: unknown content length")
	}
	if s.maxSize > 0 && size > s.maxSize {
		return "", ErrTooLarge
	}

	tempID := NewTempID()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(tempID)),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			metaFilename:  filename,
			metaCreatedAt: strconv.FormatInt(time.Now().Unix(), 10),
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return tempID, nil
}

// Stat returns the metadata of a temp object.
func (s *S3Store) Stat(ctx context.Context, tempID string) (*File, error) {
	if !ValidTempID(tempID) {
		return nil, ErrInvalidID
	}
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(tempID)),
	})
	if err != nil {
		return nil, s.notFound(err)
	}
	return s.fileFromHead(tempID, head), nil
}

// Open reads a temp object without consuming it.
func (s *S3Store) Open(ctx context.Context, tempID string) (io.ReadCloser, error) {
	if !ValidTempID(tempID) {
		return nil, ErrInvalidID
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(tempID)),
	})
	if err != nil {
		return nil, s.notFound(err)
	}
	return out.Body, nil
}

// Cleanup removes temp objects older than maxAge.
func (s *S3Store) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var toDelete []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && obj.LastModified != nil && obj.LastModified.Before(cutoff) {
				toDelete = append(toDelete, *obj.Key)
			}
		}
	}

	removed := 0
	var errs []error
	for _, key := range toDelete {
		if err := s.deleteKey(ctx, key); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (s *S3Store) key(tempID string) string {
	return s.prefix + tempID
}

func (s *S3Store) deleteKey(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *S3Store) fileFromHead(tempID string, head *s3.HeadObjectOutput) *File {
	file := &File{
		ID:          tempID,
		Filename:    tempID,
		ContentType: "application/octet-stream",
	}
	if fn, ok := head.Metadata[metaFilename]; ok {
		file.Filename = fn
	}
	if head.ContentType != nil {
		file.ContentType = *head.ContentType
	}
	if head.ContentLength != nil {
		file.Size = *head.ContentLength
	}
	if ts, err := strconv.ParseInt(head.Metadata[metaCreatedAt], 10, 64); err == nil {
		file.CreatedAt = time.Unix(ts, 0)
	} else if head.LastModified != nil {
		file.CreatedAt = *head.LastModified
	}
	return file
}

func (s *S3Store) notFound(err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return ErrNotFound
	}
	return fmt.Errorf("s3: %w", err)
}
