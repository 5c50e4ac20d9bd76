package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/release-engineering/starmap-client-go/internal/models"
)

// S3API is the subset of the S3 client used by S3Store
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps content in an S3 object. Every Save also writes a versioned copy
// under "<key>.versions/".
type S3Store struct {
	client S3API
	bucket string
	key    string
	format Format
	now    func() time.Time
}

// NewS3Store creates a store for the object bucket/key
func NewS3Store(client S3API, bucket, key string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		key:    key,
		format: FormatFor(key),
		now:    time.Now,
	}
}

// ParseS3URI splits s3://bucket/key
func ParseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", &models.ConfigurationError{Field: "s3_uri", Message: err.Error()}
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", &models.ConfigurationError{Field: "s3_uri", Message: fmt.Sprintf("expected s3://bucket/key, got %q", uri)}
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", &models.ConfigurationError{Field: "s3_uri", Message: fmt.Sprintf("missing object key in %q", uri)}
	}
	return u.Host, key, nil
}

func (s *S3Store) Location() string {
	return "s3://" + s.bucket + "/" + s.key
}

func (s *S3Store) versionsPrefix() string {
	return s.key + ".versions/"
}

// Load reads the current object. A missing bucket or key is a NotFoundError.
func (s *S3Store) Load(ctx context.Context) ([]models.Policy, error) {
	data, err := s.getObject(ctx, s.key)
	if err != nil {
		return nil, err
	}
	policies, err := Decode(data, s.format)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", s.Location(), err)
	}
	slogcontext.FromCtx(ctx).Log(ctx, slog.LevelDebug, "loaded content",
		slog.String("realm", "state"),
		slog.String("location", s.Location()),
		slog.Int("policies", len(policies)),
	)
	return policies, nil
}

// LoadVersion reads a versioned copy written by an earlier Save
func (s *S3Store) LoadVersion(ctx context.Context, version string) ([]models.Policy, error) {
	data, err := s.getObject(ctx, s.versionsPrefix()+version+path.Ext(s.key))
	if err != nil {
		return nil, err
	}
	return Decode(data, s.format)
}

// Save writes the current object and a versioned copy of it
func (s *S3Store) Save(ctx context.Context, policies []models.Policy) error {
	data, meta, err := Encode(policies, s.format, s.now())
	if err != nil {
		return err
	}
	logger := slogcontext.FromCtx(ctx).With(slog.String("realm", "state"))

	if err := s.putObject(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", s.Location(), err)
	}

	versionKey := s.versionsPrefix() + meta.Version + path.Ext(s.key)
	if err := s.putObject(ctx, versionKey, data); err != nil {
		// the current object is already written
		logger.Log(ctx, slog.LevelWarn, "failed to save versioned copy",
			slog.String("key", versionKey),
			slog.Any("error", err),
		)
	}

	logger.Log(ctx, slog.LevelDebug, "saved content",
		slog.String("location", s.Location()),
		slog.String("version", meta.Version),
		slog.Int64("size", meta.Size),
	)
	return nil
}

// History lists the versioned copies, newest first
func (s *S3Store) History(ctx context.Context) ([]ContentMetadata, error) {
	prefix := s.versionsPrefix()
	var history []ContentMetadata
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, s.mapError(err, prefix)
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			history = append(history, ContentMetadata{
				Version:   strings.TrimSuffix(name, path.Ext(name)),
				UpdatedAt: aws.ToTime(obj.LastModified),
				Size:      aws.ToInt64(obj.Size),
			})
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].UpdatedAt.After(history[j].UpdatedAt)
	})
	return history, nil
}

func (s *S3Store) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.mapError(err, key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

func (s *S3Store) putObject(ctx context.Context, key string, data []byte) error {
	contentType := "application/json"
	if s.format == FormatYAML {
		contentType = "application/yaml"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return s.mapError(err, key)
	}
	return nil
}

// mapError turns missing bucket or key API errors into NotFoundError
func (s *S3Store) mapError(err error, key string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return &models.NotFoundError{Resource: "s3 object", Key: "s3://" + s.bucket + "/" + key, Cause: err}
		case "NoSuchBucket":
			return &models.NotFoundError{Resource: "s3 bucket", Key: s.bucket, Cause: err}
		}
	}
	return fmt.Errorf("s3://%s/%s: %w", s.bucket, key, err)
}
