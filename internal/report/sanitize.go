package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

const maxNameLen = 120

// SanitizeName turns a clip id into a single safe path component.
// Letters, digits, '-', '_' and '.' are kept, control characters dropped and
// everything else replaced with '_'.
func SanitizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := b.String()
	runes := []rune(cleaned)
	if len(runes) > maxNameLen {
		cleaned = string(runes[:maxNameLen])
	}
	if strings.Trim(cleaned, ".") == "" {
		return "clip"
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '-', '_', '.':
		return true
	default:
		return false
	}
}

// ValidateDir checks that dir is a clean, existing directory path without
// traversal components.
func ValidateDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("dir is required")
	}

	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("dir cannot contain path traversal")
		}
	}

	if filepath.Clean(dir) != dir {
		return fmt.Errorf("dir must be clean path")
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("dir does not exist")
		}
		return fmt.Errorf("invalid dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("dir is not a directory")
	}

	return nil
}
