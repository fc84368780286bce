// Package secrets resolves credentials from environment variable references
// and secret files (Docker or Kubernetes mounted secrets). Secret values are
// never logged.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
)

const (
	componentSecrets = "secrets"

	// maxSecretFileSize bounds secret file reads; secrets are tokens and
	// passwords, not documents.
	maxSecretFileSize = 64 * 1024
)

// ExpandString expands ${VAR} and ${VAR:-default} references in s. A
// referenced variable that is unset and has no fallback is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missingVars []string

	expanded := os.Expand(s, func(key string) string {
		varName := key
		defaultValue := ""
		fallbackProvided := false

		if idx := strings.Index(key, ":-"); idx != -1 {
			varName = key[:idx]
			defaultValue = key[idx+2:]
			fallbackProvided = true
		}

		value := os.Getenv(varName)
		if value == "" {
			if fallbackProvided {
				return defaultValue
			}
			missingVars = append(missingVars, varName)
			return ""
		}
		return value
	})

	if len(missingVars) > 0 {
		return "", secretError(fmt.Errorf("missing required environment variable(s): %s",
			strings.Join(missingVars, ", ")))
	}

	return expanded, nil
}

// ReadFile reads a secret from path with trailing newlines removed. Files
// readable by group or others are accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", secretError(fmt.Errorf("secret file path is empty"))
	}

	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", secretError(fmt.Errorf("secret file not found: %s", cleanPath))
		}
		return "", secretError(fmt.Errorf("failed to stat secret file %s: %w", cleanPath, err))
	}

	if !info.Mode().IsRegular() {
		return "", secretError(fmt.Errorf("secret path is not a regular file: %s", cleanPath))
	}
	if info.Size() > maxSecretFileSize {
		return "", secretError(fmt.Errorf("secret file too large (max %d bytes): %s", maxSecretFileSize, cleanPath))
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module(componentSecrets).Warn("secret file is readable by group or others",
			logger.String("path", cleanPath),
			logger.String("mode", fmt.Sprintf("%04o", perm)))
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", secretError(fmt.Errorf("failed to read secret file %s: %w", cleanPath, err))
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", secretError(fmt.Errorf("secret file is empty: %s", cleanPath))
	}

	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}

func secretError(err error) error {
	return errors.New(err).
		Component(componentSecrets).
		Category(errors.CategoryConfiguration).
		Build()
}
