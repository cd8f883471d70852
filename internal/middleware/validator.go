package middleware

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Input validation and sanitization utilities

var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateUserID validates user ID format
func ValidateUserID(user string) error {
	if user == "" {
		return fmt.Errorf("user ID cannot be empty")
	}
	if !userIDPattern.MatchString(user) {
		return fmt.Errorf("invalid user ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateDocumentID checks that id is a canonical uuid.
func ValidateDocumentID(id string) error {
	if id == "" {
		return fmt.Errorf("document ID cannot be empty")
	}
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != strings.ToLower(id) {
		return fmt.Errorf("invalid document ID format")
	}
	return nil
}

// ValidateFileName checks an uploaded file name before it touches the disk.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("file name is too long")
	}
	// Block path traversal and control characters
	if strings.ContainsAny(name, "/\\\x00\n\r") || name == "." || name == ".." {
		return fmt.Errorf("invalid characters in file name")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ParsePositive reads an optional positive integer query value. Empty means 0.
func ParsePositive(name, raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
