package media

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Uploader is the opaque media capability consumed by the message pipeline:
// store a blob, get back a stable reference; delete by that reference.
type Uploader interface {
	Upload(ctx context.Context, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
}

// Config holds S3/MinIO connection settings.
type Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	PublicURL       string `mapstructure:"public_url"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

// S3Uploader stores attachments in S3 or MinIO.
type S3Uploader struct {
	client    *s3.Client
	bucket    string
	publicURL string
	keyPrefix string
}

// NewS3Uploader builds the client. Static credentials and a custom endpoint
// are optional; path-style addressing is required for MinIO.
func NewS3Uploader(ctx context.Context, cfg Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("media bucket is not configured")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "chat"
	}

	return &S3Uploader{
		client:    s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:    cfg.Bucket,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		keyPrefix: strings.Trim(prefix, "/"),
	}, nil
}

// Upload stores the blob under a fresh key and returns its reference.
func (u *S3Uploader) Upload(ctx context.Context, contentType string, data []byte) (string, error) {
	key := fmt.Sprintf("%s/%s%s", u.keyPrefix, uuid.NewString(), extensionFor(contentType))
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	if u.publicURL != "" {
		return u.publicURL + "/" + key, nil
	}
	return key, nil
}

// Delete removes the object behind a reference produced by Upload.
func (u *S3Uploader) Delete(ctx context.Context, ref string) error {
	key := ref
	if u.publicURL != "" {
		key = strings.TrimPrefix(key, u.publicURL+"/")
	}
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// Unavailable stands in when no media store is configured. Text-only chat
// keeps working; any send that carries an attachment fails cleanly.
type Unavailable struct{}

func (Unavailable) Upload(context.Context, string, []byte) (string, error) {
	return "", fmt.Errorf("media storage is not configured")
}

func (Unavailable) Delete(context.Context, string) error { return nil }

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}
