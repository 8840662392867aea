// Package secrets provides sources of database passwords: plain and sealed password files, in-memory
// secrets, sealed secrets table, HashiCorp Vault, AWS Secrets Manager and ansible-vault files.
package secrets

import "errors"

// ErrNotFound returned by providers when the key is missing
var ErrNotFound = errors.New("secret not found")

// Provider returns secret value by key
type Provider interface {
	Get(key string) (string, error)
}

// NoOpProvider is a provider that does nothing.
type NoOpProvider struct{}

// Get returns an error on every key.
func (p *NoOpProvider) Get(key string) (string, error) {
	return "", errors.New("no secrets provider configured, can't get " + key)
}
