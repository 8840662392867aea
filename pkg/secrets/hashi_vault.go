package secrets

import (
	"errors"
	"fmt"
	"log"

	"github.com/hashicorp/vault/api"
)

// HashiVaultProvider reads database passwords from a kv secret in HashiCorp Vault.
// Both kv v1 (plain data) and kv v2 (data nested under "data") layouts are supported.
type HashiVaultProvider struct {
	client *api.Client
	path   string
}

// NewHashiVaultProvider makes provider for the secret at path, i.e. "secret/data/rowload"
func NewHashiVaultProvider(addr, path, token string) (*HashiVaultProvider, error) {
	client, err := api.NewClient(&api.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("can't make vault client for %s: %w", addr, err)
	}
	client.SetToken(token)
	return &HashiVaultProvider{client: client, path: path}, nil
}

// Get returns the key of the secret. The secret is read on each call, so rotated passwords are picked up
// by reconnects.
func (p *HashiVaultProvider) Get(key string) (string, error) {
	secret, err := p.client.Logical().Read(p.path)
	if err != nil {
		return "", fmt.Errorf("can't read vault secret %s: %w", p.path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: vault path %s", ErrNotFound, p.path)
	}

	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]any); ok { // kv v2
		data = nested
	}
	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s in vault path %s", ErrNotFound, key, p.path)
	}
	value, ok := raw.(string)
	if !ok {
		return "", errors.New("unexpected vault value format for " + key)
	}
	log.Printf("[DEBUG] secret %s read from vault path %s", key, p.path)
	return value, nil
}
