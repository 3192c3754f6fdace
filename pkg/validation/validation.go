package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	// Service IDs are lowercase alphanumeric with hyphens/underscores, 3-64 chars.
	serviceIDRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,63}$`)
)

// SanitizeString trims whitespace and strips null bytes and control
// characters except newline and tab.
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")

	var builder strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) || r == '\n' || r == '\t' {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// ValidateServiceID checks a service identifier before it reaches the
// engine or a backend driver.
func ValidateServiceID(id string) error {
	id = SanitizeString(id)

	if id == "" {
		return errors.New("service id cannot be empty")
	}

	if !serviceIDRegex.MatchString(id) {
		return errors.New("service id must be lowercase alphanumeric with hyphens or underscores, 3-64 characters")
	}

	return nil
}

// ValidateUsername checks a login username.
func ValidateUsername(username string) error {
	username = SanitizeString(username)

	if username == "" {
		return errors.New("username cannot be empty")
	}

	if len(username) < 3 {
		return errors.New("username must be at least 3 characters")
	}

	if len(username) > 50 {
		return errors.New("username must not exceed 50 characters")
	}

	return nil
}

// ValidateTargetInstances checks a requested instance count against the
// fleet limits.
func ValidateTargetInstances(target, min, max int) error {
	if target < 1 {
		return errors.New("target instances must be at least 1")
	}

	if target < min || target > max {
		return fmt.Errorf("target instances must be between %d and %d", min, max)
	}

	return nil
}
