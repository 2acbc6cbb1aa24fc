package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadToken returns the bearer token saved by `santelle login`.
func ReadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", errors.New("config: token file is empty")
	}
	return tok, nil
}

// WriteToken stores a bearer token readable only by the current user.
func WriteToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: creating token dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimSpace(token)+"\n"), 0o600); err != nil {
		return fmt.Errorf("config: writing token: %w", err)
	}
	return nil
}
