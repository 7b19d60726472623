// Package archive uploads closed recording files to S3-compatible
// object storage. Adapted from the teacher's S3Sink (which formatted
// and wrote one CDC message at a time) into a plain file uploader: the
// consumer hands it a path once a file is fully closed, never a
// per-record stream.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader pushes closed recording files to a bucket, under an
// optional key prefix.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds an uploader for bucket in region, optionally against a
// custom endpoint (e.g. MinIO) when endpoint is non-empty. Empty
// accessKey/secretKey fall back to the default AWS credential chain.
func New(ctx context.Context, region, bucket, prefix, endpoint, accessKey, secretKey string) (*Uploader, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	if endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...any) (aws.Endpoint, error) {
			return aws.Endpoint{PartitionID: "aws", URL: endpoint, SigningRegion: region}, nil
		})
		opts = append(opts, config.WithEndpointResolverWithOptions(resolver))
	}
	if accessKey != "" || secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load SDK config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return &Uploader{client: client, bucket: bucket, prefix: prefix}, nil
}

// UploadFile uploads the file at path under key prefix+basename(path).
// Failures are returned for the caller to log; per the consumer's
// archival expansion, an upload failure is never fatal and never
// blocks the next recording.
func (u *Uploader) UploadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()

	key := u.prefix + filepath.Base(path)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("archive: put %s: %w", key, err)
	}
	return nil
}
