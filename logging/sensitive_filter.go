package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder is the string used to replace sensitive data.
const RedactedPlaceholder = "[REDACTED]"

// sensitivePatterns contains compiled regex patterns for detecting sensitive
// data in log values. Compiled once at package initialization.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9_-]{20,})`),        // OpenAI-style keys
	regexp.MustCompile(`(?i)([a-f0-9]{32})`),                 // generic 32-char hex keys (Hyper3D, Sketchfab)
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._-]{20,})`), // bearer tokens
	regexp.MustCompile(`(?i)(ghp_[a-zA-Z0-9]{36})`),          // GitHub tokens
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(secret\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(api_key\s*[:=]\s*[^\s,;]{8,})`),
	regexp.MustCompile(`(?i)(apikey\s*[:=]\s*[^\s,;]{8,})`),
}

// sensitiveFieldMarkers are substrings of field names that indicate the value
// must never be logged. The Sketchfab and Hyper3D keys pass through the
// Blender addon as tool parameters and can show up in request logs.
var sensitiveFieldMarkers = []string{
	"SKETCHFAB_API_KEY",
	"HYPER3D_API_KEY",
	"RODIN_API_KEY",
	"WEBUI_PWD",
	"PASSWORD",
	"SECRET",
	"TOKEN",
	"API_KEY",
	"APIKEY",
}

// RedactSensitiveData scans a string value and redacts any detected
// sensitive data. Pure function.
//
// Example:
//
//	RedactSensitiveData("key is sk-abc123def456ghi789jkl")
//	// "key is [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}

	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// RedactField redacts a field value if the field name indicates sensitive
// data, and otherwise scans the value itself.
func RedactField(fieldName, fieldValue string) string {
	if IsSensitiveField(fieldName) {
		return RedactedPlaceholder
	}
	return RedactSensitiveData(fieldValue)
}

// IsSensitiveField returns true if the field name indicates sensitive data.
// Only the name is checked, not the value.
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ToUpper(fieldName)

	for _, marker := range sensitiveFieldMarkers {
		if strings.Contains(upperName, marker) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData returns true if the value matches any sensitive data
// pattern.
func ContainsSensitiveData(value string) bool {
	if value == "" {
		return false
	}

	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
