package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"

	"github.com/tilsley/s3mirror/apps/server/internal/mirror"
)

// Compile-time check: *MinioGateway implements mirror.StorageGateway.
var _ mirror.StorageGateway = (*MinioGateway)(nil)

// MinioAPI is the subset of *minio.Client used by MinioGateway.
type MinioAPI interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// MinioGateway stores objects in a MinIO (or other S3-compatible) bucket.
type MinioGateway struct {
	client MinioAPI
	bucket string
}

// NewMinioGateway creates a MinioGateway for bucket.
func NewMinioGateway(client MinioAPI, bucket string) *MinioGateway {
	return &MinioGateway{client: client, bucket: bucket}
}

// Put uploads data under key, replacing any existing object.
func (g *MinioGateway) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := g.client.PutObject(ctx, g.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", g.bucket, key, err)
	}
	return nil
}

// Delete removes key. A missing key is not an error.
func (g *MinioGateway) Delete(ctx context.Context, key string) error {
	err := g.client.RemoveObject(ctx, g.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("remove %s/%s: %w", g.bucket, key, err)
	}
	return nil
}
