package core

import (
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeInvalidPort        = "INVALID_PORT"
	ErrCodeInvalidTimeout     = "INVALID_TIMEOUT"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeBackendUnreachable = "BACKEND_UNREACHABLE"
	ErrCodeInvalidOutputDir   = "INVALID_OUTPUT_DIR"
)

// ErrInvalidPort returns an error for a port outside the valid range.
func ErrInvalidPort(varName string, port int) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidPort,
		Message: fmt.Sprintf("Invalid %s value %d", varName, port),
		Action:  fmt.Sprintf("Set %s to a port between 1 and 65535", varName),
	}
}

// ErrInvalidURL returns an error for a malformed backend URL.
func ErrInvalidURL(varName, url, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidURL,
		Message: fmt.Sprintf("Invalid %s URL '%s': %s", varName, url, reason),
		Action:  fmt.Sprintf("Set %s to a valid URL (e.g., http://localhost:7860)", varName),
	}
}

// ErrBackendUnreachable returns an error when a generation backend cannot be reached.
func ErrBackendUnreachable(service, addr, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeBackendUnreachable,
		Message: fmt.Sprintf("Cannot connect to %s at %s: %s", service, addr, reason),
		Action:  fmt.Sprintf("Check that %s is running and the address is correct. For self-signed certificates, set ALLOW_SELF_SIGNED_CERTS=true", service),
	}
}

// ErrInvalidOutputDir returns an error when the output directory cannot be used.
func ErrInvalidOutputDir(path, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidOutputDir,
		Message: fmt.Sprintf("Output directory %s is not usable: %s", path, reason),
		Action:  "Set OUTPUT_DIR to a writable directory",
	}
}

// IsConfigError checks if an error is a ConfigError and returns it if so.
func IsConfigError(err error) (*ConfigError, bool) {
	if configErr, ok := err.(*ConfigError); ok {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError.
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
