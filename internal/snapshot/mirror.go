package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Mirror copies a freshly published snapshot somewhere else. Mirroring is
// best effort and never affects the local published file.
type Mirror interface {
	Mirror(ctx context.Context, snap Snapshot) error
}

// S3PutObjectAPI is the subset of the S3 client the mirror needs.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror overwrites a single object with each new snapshot.
type S3Mirror struct {
	client S3PutObjectAPI
	bucket string
	key    string
}

// NewS3Mirror builds an S3Mirror from the default AWS credential chain,
// falling back to anonymous credentials when none are available.
func NewS3Mirror(ctx context.Context, bucket, region, key string) *S3Mirror {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		cfg = aws.Config{Region: region, Credentials: aws.AnonymousCredentials{}}
	} else if creds, err := cfg.Credentials.Retrieve(ctx); err != nil || creds.AccessKeyID == "" {
		cfg.Credentials = aws.AnonymousCredentials{}
	}
	return NewS3MirrorWithClient(s3.NewFromConfig(cfg), bucket, key)
}

// NewS3MirrorWithClient wraps an existing client.
func NewS3MirrorWithClient(client S3PutObjectAPI, bucket, key string) *S3Mirror {
	return &S3Mirror{client: client, bucket: bucket, key: key}
}

// Mirror uploads snap.Data to the configured bucket and key.
func (m *S3Mirror) Mirror(ctx context.Context, snap Snapshot) error {
	if len(snap.Data) == 0 {
		return fmt.Errorf("mirror: snapshot has no data")
	}
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(m.key),
		Body:          bytes.NewReader(snap.Data),
		ContentLength: aws.Int64(int64(len(snap.Data))),
		ContentType:   aws.String(snap.ContentType),
		CacheControl:  aws.String("no-store"),
		Metadata: map[string]string{
			"digest":       snap.Digest,
			"generated-at": snap.GeneratedAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("mirror: put s3://%s/%s: %w", m.bucket, m.key, err)
	}
	return nil
}
