package secrets

import (
	"fmt"
	"os"
	"strings"
)

// EnvLoader reads each key from the environment. When KEY is unset and
// KEY_FILE names a file, the trimmed file content is used instead, which is
// how mounted container secrets are picked up on reload. Keys found in
// neither place fall back to defaults.
func EnvLoader(defaults map[string]string, keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
				continue
			}
			if path := os.Getenv(k + "_FILE"); path != "" {
				b, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
				if err != nil {
					return nil, fmt.Errorf("read %s_FILE: %w", k, err)
				}
				vals[k] = strings.TrimSpace(string(b))
				continue
			}
			if v := defaults[k]; v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// SigningKeys exposes the session secrets held in a vault: the current key
// signs and verifies, the previous key only verifies.
type SigningKeys struct {
	vault    *Vault
	current  string
	previous string
}

// NewSigningKeys reads the key names current and previous from v.
func NewSigningKeys(v *Vault, current, previous string) *SigningKeys {
	return &SigningKeys{vault: v, current: current, previous: previous}
}

// SigningKey returns the key new tokens are signed with.
func (k *SigningKeys) SigningKey() []byte {
	return []byte(k.vault.Get(k.current))
}

// VerificationKeys returns every key a presented token may be signed with.
func (k *SigningKeys) VerificationKeys() [][]byte {
	keys := [][]byte{k.SigningKey()}
	if prev := k.vault.Get(k.previous); prev != "" && prev != k.vault.Get(k.current) {
		keys = append(keys, []byte(prev))
	}
	return keys
}
