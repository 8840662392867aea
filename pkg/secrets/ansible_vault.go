package secrets

import (
	"fmt"
	"log"
	"os"

	vault "github.com/sosedoff/ansible-vault-go"
	yaml "gopkg.in/yaml.v3"
)

// AnsibleVaultProvider reads secrets from a yaml map encrypted with ansible-vault
type AnsibleVaultProvider struct {
	data map[string]any
}

// NewAnsibleVaultProvider decrypts vault file with the secret and loads its yaml content
func NewAnsibleVaultProvider(vaultPath, secret string) (*AnsibleVaultProvider, error) {
	fi, err := os.Stat(vaultPath)
	if err != nil {
		return nil, fmt.Errorf("can't stat ansible vault %s: %w", vaultPath, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("ansible vault %s is not a regular file", vaultPath)
	}

	decrypted, err := vault.DecryptFile(vaultPath, secret)
	if err != nil {
		return nil, fmt.Errorf("can't decrypt ansible vault %s: %w", vaultPath, err)
	}

	data := map[string]any{}
	if err := yaml.Unmarshal([]byte(decrypted), &data); err != nil {
		return nil, fmt.Errorf("can't parse ansible vault %s content: %w", vaultPath, err)
	}
	log.Printf("[INFO] ansible vault %s decrypted, %d keys", vaultPath, len(data))
	return &AnsibleVaultProvider{data: data}, nil
}

// Get returns value of the key, non-string values are formatted
func (p *AnsibleVaultProvider) Get(key string) (string, error) {
	v, ok := p.data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Sprintf("%v", v), nil
}
