package secrets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// AWSSecretsProvider reads database passwords from AWS Secrets Manager, key is the secret id
type AWSSecretsProvider struct {
	client secretsManagerClient
}

type secretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewAWSSecretsProvider makes provider with static credentials. Empty keys fall back to the default
// credentials chain (env, shared config, instance role).
func NewAWSSecretsProvider(accessKeyID, secretAccessKey, region string) (*AWSSecretsProvider, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("can't make aws config: %w", err)
	}
	return &AWSSecretsProvider{client: secretsmanager.NewFromConfig(cfg)}, nil
}

// Get returns string value of the secret
func (p *AWSSecretsProvider) Get(key string) (string, error) {
	out, err := p.client.GetSecretValue(context.Background(), &secretsmanager.GetSecretValueInput{SecretId: &key})
	if err != nil {
		return "", fmt.Errorf("can't read aws secret %q: %w", key, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("%w: aws secret %q has no string value", ErrNotFound, key)
	}
	return *out.SecretString, nil
}
