package util

import (
	"errors"
	"strings"
)

var errInvalidFileName = errors.New("invalid file name")

// SanitizeFileName normalizes a user-supplied name into something safe
// to embed in a storage key. Traversal sequences are rejected outright;
// path separators are flattened to underscores.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errInvalidFileName
	}
	cleaned := strings.TrimSpace(name)
	replacer := strings.NewReplacer("/", "_", "\\", "_")
	cleaned = replacer.Replace(cleaned)
	if cleaned == "" {
		return "", errInvalidFileName
	}
	return cleaned, nil
}
