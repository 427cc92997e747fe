package credentials

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// KMSAPI is the subset of the KMS client used by KMS.
type KMSAPI interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMS decrypts a base64-encoded ciphertext blob holding the token.
type KMS struct {
	api        KMSAPI
	ciphertext string
}

// NewKMS creates a KMS provider for the given base64 ciphertext.
func NewKMS(api KMSAPI, ciphertext string) *KMS {
	return &KMS{api: api, ciphertext: ciphertext}
}

// Token implements mirror.CredentialProvider.
func (k *KMS) Token(ctx context.Context) (string, error) {
	if k.ciphertext == "" {
		return "", errors.New("no token ciphertext configured")
	}
	blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(k.ciphertext))
	if err != nil {
		return "", fmt.Errorf("decode token ciphertext: %w", err)
	}
	out, err := k.api.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: blob})
	if err != nil {
		return "", fmt.Errorf("kms decrypt: %w", err)
	}
	token := strings.TrimSpace(string(out.Plaintext))
	if token == "" {
		return "", errors.New("kms decrypt returned an empty plaintext")
	}
	return token, nil
}
