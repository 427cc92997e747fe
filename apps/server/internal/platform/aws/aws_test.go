package aws_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awsplatform "github.com/tilsley/s3mirror/apps/server/internal/platform/aws"
)

func TestLoadConfig_StaticCredentials(t *testing.T) {
	cfg, err := awsplatform.LoadConfig(context.Background(), awsplatform.Options{
		Region:    "eu-west-1",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)
}

func TestNewMinio_ParsesURLEndpoint(t *testing.T) {
	client, err := awsplatform.NewMinio(awsplatform.Options{
		Endpoint:  "http://localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		UseSSL:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", client.EndpointURL().Host)
	assert.Equal(t, "http", client.EndpointURL().Scheme)
}
