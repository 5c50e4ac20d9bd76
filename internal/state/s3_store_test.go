package state

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/release-engineering/starmap-client-go/internal/models"
)

type fakeObject struct {
	data     []byte
	modified time.Time
}

// fakeS3 keeps objects of a single bucket in memory and lists one object per page
type fakeS3 struct {
	mu       sync.Mutex
	bucket   string
	objects  map[string]fakeObject
	clock    time.Time
	failPuts string
	puts     []*s3.PutObjectInput
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{bucket: bucket, objects: map[string]fakeObject{}, clock: fixedNow}
}

func (f *fakeS3) checkBucket(bucket *string) error {
	if aws.ToString(bucket) != f.bucket {
		return &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "The specified bucket does not exist"}
	}
	return nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	if f.failPuts != "" && strings.HasPrefix(key, f.failPuts) {
		return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.clock = f.clock.Add(time.Minute)
	f.objects[key] = fakeObject{data: data, modified: f.clock}
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start = sort.SearchStrings(keys, aws.ToString(in.ContinuationToken))
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if start < len(keys) {
		k := keys[start]
		obj := f.objects[k]
		out.Contents = []types.Object{{
			Key:          aws.String(k),
			LastModified: aws.Time(obj.modified),
			Size:         aws.Int64(int64(len(obj.data))),
		}}
		if start+1 < len(keys) {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(keys[start+1])
		}
	}
	return out, nil
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri    string
		bucket string
		key    string
		ok     bool
	}{
		{uri: "s3://bucket/content.json", bucket: "bucket", key: "content.json", ok: true},
		{uri: "s3://bucket/dir/content.yaml", bucket: "bucket", key: "dir/content.yaml", ok: true},
		{uri: "s3://bucket", ok: false},
		{uri: "s3://bucket/dir/", ok: false},
		{uri: "https://bucket/content.json", ok: false},
		{uri: "s3:///content.json", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseS3URI(tt.uri)
			if !tt.ok {
				var cerr *models.ConfigurationError
				require.True(t, errors.As(err, &cerr), "got %v", err)
				assert.Equal(t, "s3_uri", cerr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestS3StoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3("starmap")
	s := NewS3Store(fake, "starmap", "content/policies.json")
	s.now = func() time.Time { return fixedNow }
	assert.Equal(t, "s3://starmap/content/policies.json", s.Location())

	require.NoError(t, s.Save(ctx, content()))
	require.Len(t, fake.puts, 2)
	assert.Equal(t, "content/policies.json", aws.ToString(fake.puts[0].Key))
	assert.Equal(t, "content/policies.json.versions/v1714564800.json", aws.ToString(fake.puts[1].Key))
	assert.Equal(t, types.ServerSideEncryptionAes256, fake.puts[0].ServerSideEncryption)
	assert.Equal(t, "application/json", aws.ToString(fake.puts[0].ContentType))

	policies, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, content(), policies)

	policies, err = s.LoadVersion(ctx, "v1714564800")
	require.NoError(t, err)
	assert.Equal(t, content(), policies)

	_, err = s.LoadVersion(ctx, "v1")
	var nerr *models.NotFoundError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "s3 object", nerr.Resource)
	assert.Equal(t, "s3://starmap/content/policies.json.versions/v1.json", nerr.Key)
}

func TestS3StoreErrors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3("starmap")

	_, err := NewS3Store(fake, "starmap", "missing.yaml").Load(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = NewS3Store(fake, "other", "content.json").Load(ctx)
	var nerr *models.NotFoundError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "s3 bucket", nerr.Resource)

	// losing the versioned copy does not fail the save
	fake.failPuts = "content.json.versions/"
	s := NewS3Store(fake, "starmap", "content.json")
	require.NoError(t, s.Save(ctx, content()))
	assert.Len(t, fake.puts, 1)

	// other API errors are passed through
	fake.failPuts = "content.json"
	err = s.Save(ctx, content())
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrNotFound))
	var apiErr smithy.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "AccessDenied", apiErr.ErrorCode())
}

func TestS3StoreHistory(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3("starmap")
	s := NewS3Store(fake, "starmap", "content.yaml")

	history, err := s.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)

	for i := 0; i < 3; i++ {
		now := fixedNow.Add(time.Duration(i) * time.Hour)
		s.now = func() time.Time { return now }
		require.NoError(t, s.Save(ctx, content()))
	}
	assert.Equal(t, "application/yaml", aws.ToString(fake.puts[0].ContentType))

	history, err = s.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "v1714572000", history[0].Version)
	assert.Equal(t, "v1714568400", history[1].Version)
	assert.Equal(t, "v1714564800", history[2].Version)
	assert.True(t, history[0].UpdatedAt.After(history[1].UpdatedAt))
	assert.Positive(t, history[0].Size)
}
