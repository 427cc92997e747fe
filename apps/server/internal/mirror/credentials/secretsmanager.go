package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
)

// AWS error codes mapped to clearer messages.
const (
	resourceNotFoundException = "ResourceNotFoundException"
	accessDeniedException     = "AccessDeniedException"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used by SecretsManager.
type SecretsManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManager reads the token from an AWS Secrets Manager secret. When JSONKey
// is set the secret string is a JSON object and the token is that key's value.
type SecretsManager struct {
	api      SecretsManagerAPI
	secretID string
	jsonKey  string
}

// NewSecretsManager creates a provider for secretID.
func NewSecretsManager(api SecretsManagerAPI, secretID, jsonKey string) *SecretsManager {
	return &SecretsManager{api: api, secretID: secretID, jsonKey: jsonKey}
}

// Token implements mirror.CredentialProvider.
func (s *SecretsManager) Token(ctx context.Context) (string, error) {
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case resourceNotFoundException:
				return "", fmt.Errorf("secret %q not found: %w", s.secretID, err)
			case accessDeniedException:
				return "", fmt.Errorf("access denied to secret %q: %w", s.secretID, err)
			}
		}
		return "", fmt.Errorf("get secret %q: %w", s.secretID, err)
	}

	value := aws.ToString(out.SecretString)
	if value == "" && len(out.SecretBinary) > 0 {
		value = string(out.SecretBinary)
	}
	if s.jsonKey != "" {
		var fields map[string]string
		if err := json.Unmarshal([]byte(value), &fields); err != nil {
			return "", fmt.Errorf("secret %q is not a JSON object: %w", s.secretID, err)
		}
		value = fields[s.jsonKey]
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("secret %q holds no token", s.secretID)
	}
	return value, nil
}
