// Package validation provides centralized input validation logic.
// This includes "container/key" path splitting and object key checks.
//
// Inputs are validated before any request is sent so that malformed paths
// fail fast with ErrBadPath instead of reaching a backend.
package validation

import (
	"strings"
	"unicode"

	"github.com/input-output-hk/catalyst-forge-libs/rangefetch/errors"
)

// maxKeyLength is the longest object key accepted by S3, GCS and Azure.
const maxKeyLength = 1024

// SplitPath splits an object path on its first "/" into container and key.
// A path without a "/" or with an empty container is ErrBadPath.
func SplitPath(path string) (container, key string, err error) {
	container, key, ok := strings.Cut(path, "/")
	if !ok || container == "" {
		return "", "", errors.NewError("splitPath", errors.ErrBadPath).WithKey(path)
	}
	return container, key, nil
}

// SplitObjectPath is SplitPath for operations that need a concrete object,
// so the key must also be non-empty.
func SplitObjectPath(path string) (container, key string, err error) {
	container, key, err = SplitPath(path)
	if err != nil {
		return "", "", err
	}
	if key == "" {
		return "", "", errors.NewError("splitPath", errors.ErrBadPath).
			WithContainer(container).
			WithMessage("object key cannot be empty")
	}
	return container, key, nil
}

// ValidateObjectKey validates a key that is about to be written.
// Reads accept whatever key the store holds; writes are held to a stricter
// standard so that uploads never create keys that escape their prefix.
func ValidateObjectKey(key string) error {
	if key == "" {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot be empty")
	}

	if hasPathTraversal(key) {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot contain path traversal sequences")
	}

	if len(key) > maxKeyLength {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot exceed 1024 characters")
	}

	if hasControlCharacters(key) {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot contain control characters")
	}

	return nil
}

// hasPathTraversal reports a ".." segment or a leading "/".
func hasPathTraversal(key string) bool {
	if strings.HasPrefix(key, "/") {
		return true
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

// hasControlCharacters checks for control characters in the key
func hasControlCharacters(key string) bool {
	for _, char := range key {
		if unicode.IsControl(char) {
			return true
		}
	}
	return false
}
