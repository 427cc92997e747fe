// Package aws builds AWS SDK clients from service configuration.
package aws

import (
	"context"
	"fmt"
	"net/url"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
)

// Options selects region, credentials and endpoint. Empty keys fall back to
// the default credential chain (env, shared config, instance role).
type Options struct {
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
	UseSSL    bool
}

// LoadConfig resolves an aws.Config.
func LoadConfig(ctx context.Context, opts Options) (awssdk.Config, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return awssdk.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// NewS3 creates an S3 client. A custom endpoint (LocalStack, MinIO in S3 mode)
// switches to path-style addressing.
func NewS3(cfg awssdk.Config, opts Options) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = awssdk.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
}

// NewKMS creates a KMS client.
func NewKMS(cfg awssdk.Config) *kms.Client {
	return kms.NewFromConfig(cfg)
}

// NewSecretsManager creates a Secrets Manager client.
func NewSecretsManager(cfg awssdk.Config) *secretsmanager.Client {
	return secretsmanager.NewFromConfig(cfg)
}

// NewMinio creates a MinIO client. Endpoint may be "host:port" or a URL.
func NewMinio(opts Options) (*minio.Client, error) {
	host, secure := opts.Endpoint, opts.UseSSL
	if u, err := url.Parse(opts.Endpoint); err == nil && u.Host != "" {
		host, secure = u.Host, u.Scheme == "https"
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  miniocreds.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return client, nil
}
