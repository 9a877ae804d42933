// Package media loads attachment bytes referenced by outbound payloads.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Object is a fetched attachment.
type Object struct {
	Data        []byte
	ContentType string
	Name        string
}

type Fetcher interface {
	Fetch(ctx context.Context, ref string) (Object, error)
}

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// S3 fetches refs of the form s3://bucket/key, or a bare key in the
// configured bucket.
type S3 struct {
	client *s3.Client
	bucket string
}

func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		// a bucket-prefixed host is a common misconfiguration
		opts.BaseEndpoint = aws.String(strings.Replace(cfg.Endpoint, cfg.Bucket+".", "", 1))
	}
	return &S3{client: s3.New(opts), bucket: cfg.Bucket}, nil
}

// SplitRef returns the bucket and key a ref points at.
func SplitRef(ref, defaultBucket string) (string, string, error) {
	ref = strings.TrimSpace(ref)
	if rest, ok := strings.CutPrefix(ref, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || bucket == "" || key == "" {
			return "", "", fmt.Errorf("malformed s3 ref %q", ref)
		}
		return bucket, key, nil
	}
	key := strings.TrimPrefix(ref, "/")
	if key == "" {
		return "", "", fmt.Errorf("empty media ref")
	}
	return defaultBucket, key, nil
}

func (s *S3) Fetch(ctx context.Context, ref string) (Object, error) {
	bucket, key, err := SplitRef(ref, s.bucket)
	if err != nil {
		return Object{}, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Object{}, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Object{}, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	return Object{
		Data:        data,
		ContentType: ContentType(aws.ToString(out.ContentType), key),
		Name:        path.Base(key),
	}, nil
}

// ContentType prefers a specific stored type and falls back to the key's
// extension.
func ContentType(stored, key string) string {
	if stored != "" && stored != "application/octet-stream" && stored != "binary/octet-stream" {
		return stored
	}
	if t := mime.TypeByExtension(path.Ext(key)); t != "" {
		return t
	}
	return "application/octet-stream"
}
