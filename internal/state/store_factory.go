package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/release-engineering/starmap-client-go/internal/models"
)

// AWSOption is a functional option for AWS configuration loading
type AWSOption func(*awsOptions)

type awsOptions struct {
	profile string
	region  string
}

// WithProfile selects a shared config profile
func WithProfile(profile string) AWSOption {
	return func(o *awsOptions) { o.profile = profile }
}

// WithRegion overrides the configured region
func WithRegion(region string) AWSOption {
	return func(o *awsOptions) { o.region = region }
}

// LoadAWSConfig loads the default AWS configuration chain. The region falls back to us-east-1.
func LoadAWSConfig(ctx context.Context, options ...AWSOption) (aws.Config, error) {
	opts := &awsOptions{}
	for _, opt := range options {
		opt(opts)
	}

	var optFns []func(*config.LoadOptions) error
	if opts.profile != "" {
		optFns = append(optFns, config.WithSharedConfigProfile(opts.profile))
	}
	if opts.region != "" {
		optFns = append(optFns, config.WithRegion(opts.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, &models.ConfigurationError{
			Field:   "aws_profile",
			Message: fmt.Sprintf("failed to load AWS config for profile %q: %v", opts.profile, err),
		}
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return cfg, nil
}

// ValidateCredentials checks that cfg resolves to a valid identity and returns its ARN
func ValidateCredentials(ctx context.Context, cfg aws.Config) (string, error) {
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("invalid AWS credentials: %w", err)
	}
	return aws.ToString(out.Arn), nil
}

// OpenS3Store loads AWS configuration, checks the credentials and returns a store for uri
func OpenS3Store(ctx context.Context, uri string, options ...AWSOption) (*S3Store, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadAWSConfig(ctx, options...)
	if err != nil {
		return nil, err
	}
	if _, err := ValidateCredentials(ctx, cfg); err != nil {
		return nil, err
	}
	return NewS3Store(s3.NewFromConfig(cfg), bucket, key), nil
}

// Open returns the store for location: an s3:// URI or a local path
func Open(ctx context.Context, location string, options ...AWSOption) (Store, error) {
	if strings.HasPrefix(location, "s3://") {
		return OpenS3Store(ctx, location, options...)
	}
	if location == "" {
		return nil, &models.ConfigurationError{Field: "content", Message: "a content location is required"}
	}
	return NewFileStore(location), nil
}
