// Package objectstore implements mirror.StorageGateway for S3, MinIO and a
// local filesystem.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

// Compile-time check: *S3Gateway implements mirror.StorageGateway.
var _ mirror.StorageGateway = (*S3Gateway)(nil)

// S3API is the subset of the S3 client used by S3Gateway.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Gateway stores objects in one S3 bucket.
type S3Gateway struct {
	client S3API
	bucket string
}

// NewS3Gateway creates an S3Gateway for bucket.
func NewS3Gateway(client S3API, bucket string) *S3Gateway {
	return &S3Gateway{client: client, bucket: bucket}
}

// Put uploads data under key, replacing any existing object.
func (g *S3Gateway) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(g.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", g.bucket, key, err)
	}
	return nil
}

// Delete removes key. A missing key is not an error.
func (g *S3Gateway) Delete(ctx context.Context, key string) error {
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("delete s3://%s/%s: %w", g.bucket, key, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
