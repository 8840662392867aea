package secrets

import "fmt"

// MemoryProvider keeps secrets in a map. Used for passwords set directly in the config and in tests.
type MemoryProvider struct {
	secrets map[string]string
}

// NewMemoryProvider makes provider with a copy of the given secrets
func NewMemoryProvider(secrets map[string]string) *MemoryProvider {
	res := &MemoryProvider{secrets: make(map[string]string, len(secrets))}
	for k, v := range secrets {
		res.secrets[k] = v
	}
	return res
}

// Get returns the secret for the given key.
func (m *MemoryProvider) Get(key string) (string, error) {
	val, ok := m.secrets[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return val, nil
}
