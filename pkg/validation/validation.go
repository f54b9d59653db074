package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// SessionIDRegex validates session ID format
	SessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// ParticipantIDRegex validates participant ID format
	ParticipantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// TransferIDRegex validates file transfer ID format
	TransferIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateSessionID validates session ID
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if len(sessionID) > 100 {
		return fmt.Errorf("session ID is too long (max 100 characters)")
	}
	if !SessionIDRegex.MatchString(sessionID) {
		return fmt.Errorf("invalid session ID format")
	}
	return nil
}

// ValidateParticipantID validates participant ID
func ValidateParticipantID(participantID string) error {
	if participantID == "" {
		return fmt.Errorf("participant ID is required")
	}
	if len(participantID) > 100 {
		return fmt.Errorf("participant ID is too long (max 100 characters)")
	}
	if !ParticipantIDRegex.MatchString(participantID) {
		return fmt.Errorf("invalid participant ID format")
	}
	return nil
}

// ValidateRole validates participant role
func ValidateRole(role string) error {
	if role != "host" && role != "controller" {
		return fmt.Errorf("invalid role (must be host or controller)")
	}
	return nil
}

// ValidateTransferID validates file transfer ID
func ValidateTransferID(transferID string) error {
	if transferID == "" {
		return fmt.Errorf("transfer ID is required")
	}
	if len(transferID) > 100 {
		return fmt.Errorf("transfer ID is too long (max 100 characters)")
	}
	if !TransferIDRegex.MatchString(transferID) {
		return fmt.Errorf("invalid transfer ID format")
	}
	return nil
}

// ValidateFileName validates a transferred file name
func ValidateFileName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("file name is required")
	}
	if len(name) > 255 {
		return fmt.Errorf("file name is too long (max 255 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("file name contains invalid characters")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNormalizedCoord validates a pointer coordinate normalized to [0,1]
func ValidateNormalizedCoord(v float64, axis string) error {
	if v != v { // NaN
		return fmt.Errorf("%s coordinate is not a number", axis)
	}
	if v < 0 || v > 1 {
		return fmt.Errorf("%s coordinate out of range [0,1]: %v", axis, v)
	}
	return nil
}

// ValidatePresetName validates quality preset name
func ValidatePresetName(name string) error {
	validPresets := map[string]bool{
		"ultra":   true,
		"high":    true,
		"medium":  true,
		"low":     true,
		"minimal": true,
	}
	if !validPresets[name] {
		return fmt.Errorf("invalid preset name (must be ultra, high, medium, low, or minimal)")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
