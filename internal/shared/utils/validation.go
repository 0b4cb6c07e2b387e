package utils

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Request limits
const (
	MaxFanOutItems = 1000
	MaxItemLength  = 256
	MaxPathLength  = 2048
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil // Optional field, empty is OK
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	// Check for null bytes (security issue)
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateItems validates the items of a fan-out request
func ValidateItems(items []string) error {
	if len(items) > MaxFanOutItems {
		return fmt.Errorf("items must not exceed %d entries", MaxFanOutItems)
	}
	for i, item := range items {
		if err := ValidateString(item, fmt.Sprintf("items[%d]", i), 0, MaxItemLength, false); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRelayPath checks that path stays relative to the relay base URL,
// so a caller cannot point the relay at another host.
func ValidateRelayPath(path string) error {
	if err := ValidateString(path, "path", 1, MaxPathLength, true); err != nil {
		return err
	}
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return fmt.Errorf("path must be absolute and relative to the relay host")
	}
	u, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if u.Scheme != "" || u.Host != "" {
		return fmt.Errorf("path must not name a host")
	}
	return nil
}
