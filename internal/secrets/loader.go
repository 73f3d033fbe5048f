// Package secrets resolves credentials from inline values or files.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source describes how to load a secret value.
type Source struct {
	// Name gives context in error messages.
	Name string
	// Value is an inline secret from configuration or env.
	Value string
	// File points to a file holding the secret; it wins over Value.
	File string
}

// Load returns the trimmed secret from src.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	if path := strings.TrimSpace(src.File); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: reading %s from %q: %w", ErrUnavailable, name, path, err)
		}
		if secret := strings.TrimSpace(string(data)); secret != "" {
			return secret, nil
		}
		return "", fmt.Errorf("%w: %s file %q is empty", ErrUnavailable, name, path)
	}

	if secret := strings.TrimSpace(src.Value); secret != "" {
		return secret, nil
	}
	return "", fmt.Errorf("%w: %s is not configured", ErrUnavailable, name)
}
