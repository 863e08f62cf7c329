package upload_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vango-dev/projectform/pkg/upload"
)

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]*fakeObject
	deleted []string

	// lastBody and lastLength are the Body and ContentLength of the
	// latest PutObject.
	lastBody   io.Reader
	lastLength int64
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]*fakeObject)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	f.lastBody, f.lastLength = in.Body, aws.ToInt64(in.ContentLength)
	f.mu.Unlock()

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = &fakeObject{
		body:        data,
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
		modified:    time.Now(),
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) get(key *string) (*fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(key)]
	return obj, ok
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := f.get(in.Key)
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentType:   aws.String(obj.contentType),
		ContentLength: aws.Int64(int64(len(obj.body))),
		Metadata:      obj.metadata,
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := f.get(in.Key)
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.body))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	f.deleted = append(f.deleted, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for key, obj := range f.objects {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}

func TestS3Store_SaveStatOpen(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := upload.NewS3Store(client, "bucket", "staging/", 1<<20)

	content := []byte("\x89PNG\r\n\x1a\nbytes")
	tempID, err := store.Save(ctx, "cover.png", "image/png", int64(len(content)), bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := client.objects["staging/"+tempID]; !ok {
		t.Fatalf("object not stored under prefix; have %v", client.objects)
	}

	info, err := store.Stat(ctx, tempID)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Filename != "cover.png" || info.ContentType != "image/png" || info.Size != int64(len(content)) {
		t.Errorf("Stat = %+v", info)
	}
	if info.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	rc, err := store.Open(ctx, tempID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(data, content) {
		t.Error("Open content mismatch")
	}
}

func TestS3Store_Errors(t *testing.T) {
	ctx := context.Background()
	store := upload.NewS3Store(newFakeS3(), "bucket", "", 8)

	if _, err := store.Save(ctx, "big.png", "image/png", 100, bytes.NewReader(make([]byte, 100))); err != upload.ErrTooLarge {
		t.Errorf("declared too large: err = %v", err)
	}
	if _, err := store.Save(ctx, "unknown.png", "image/png", -1, bytes.NewReader(nil)); err == nil {
		t.Error("unknown length accepted")
	}
	if _, err := store.Stat(ctx, upload.NewTempID()); err != upload.ErrNotFound {
		t.Errorf("Stat missing: err = %v", err)
	}
	if _, err := store.Open(ctx, upload.NewTempID()); err != upload.ErrNotFound {
		t.Errorf("Open missing: err = %v", err)
	}
	if _, err := store.Open(ctx, "../secret"); err != upload.ErrInvalidID {
		t.Errorf("Open invalid: err = %v", err)
	}
}

func TestS3Store_Cleanup(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := upload.NewS3Store(client, "bucket", "staging/", 0)

	oldID, _ := store.Save(ctx, "old.png", "image/png", 3, bytes.NewReader([]byte("old")))
	newID, _ := store.Save(ctx, "new.png", "image/png", 3, bytes.NewReader([]byte("new")))
	client.objects["staging/"+oldID].modified = time.Now().Add(-2 * time.Hour)

	removed, err := store.Cleanup(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := store.Stat(ctx, oldID); err != upload.ErrNotFound {
		t.Error("old object should be gone")
	}
	if _, err := store.Stat(ctx, newID); err != nil {
		t.Errorf("new object should remain: %v", err)
	}
}

func TestS3Store_SaveStreamsBody(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := upload.NewS3Store(client, "bucket", "", 1<<20)

	body := bytes.NewReader(bytes.Repeat([]byte{7}, 4096))
	if _, err := store.Save(ctx, "big.png", "image/png", 4096, body); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if client.lastBody != io.Reader(body) {
		t.Errorf("PutObject body = %T, want the caller's reader", client.lastBody)
	}
	if client.lastLength != 4096 {
		t.Errorf("ContentLength = %d, want 4096", client.lastLength)
	}
}

func TestNewS3Client(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))

	client, err := upload.NewS3Client(context.Background(), upload.S3Options{
		Region:       "eu-west-1",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
	})
	if err != nil {
		t.Fatalf("NewS3Client: %v", err)
	}
	opts := client.Options()
	if opts.Region != "eu-west-1" || !opts.UsePathStyle || aws.ToString(opts.BaseEndpoint) != "http://localhost:9000" {
		t.Errorf("options = region %q path-style %v endpoint %q", opts.Region, opts.UsePathStyle, aws.ToString(opts.BaseEndpoint))
	}

	creds, err := opts.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if creds.AccessKeyID != "AKIDEXAMPLE" {
		t.Errorf("AccessKeyID = %q", creds.AccessKeyID)
	}
}
