package core

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	methodNamePattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	channelNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	pathCharPattern    = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
)

// DefaultAllowedDirectories are the socket locations accepted out of the box
var DefaultAllowedDirectories = []string{
	"/tmp/",
	"/var/run/",
	"/var/tmp/",
	"/run/",
}

// SecurityValidator guards socket paths, channel and method names
type SecurityValidator struct {
	maxSocketPathLength  int
	maxChannelNameLength int
	maxMethodNameLength  int
	allowedDirectories   []string
}

// NewSecurityValidator creates a validator. Extra directories are appended to
// DefaultAllowedDirectories.
func NewSecurityValidator(extraDirs ...string) *SecurityValidator {
	dirs := append([]string{}, DefaultAllowedDirectories...)
	for _, d := range extraDirs {
		if d == "" {
			continue
		}
		d = filepath.Clean(d)
		if !strings.HasSuffix(d, "/") {
			d += "/"
		}
		dirs = append(dirs, d)
	}
	return &SecurityValidator{
		maxSocketPathLength:  108,
		maxChannelNameLength: 256,
		maxMethodNameLength:  256,
		allowedDirectories:   dirs,
	}
}

// ValidateSocketPath performs socket path validation
func (sv *SecurityValidator) ValidateSocketPath(socketPath string) error {
	if socketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if len(socketPath) > sv.maxSocketPathLength {
		return fmt.Errorf("socket path length %d exceeds maximum %d", len(socketPath), sv.maxSocketPathLength)
	}
	if strings.Contains(socketPath, "../") {
		return fmt.Errorf("path traversal detected in socket path")
	}
	if strings.Contains(socketPath, "\x00") {
		return fmt.Errorf("null byte detected in socket path")
	}

	cleanPath := filepath.Clean(socketPath)
	allowed := false
	for _, allowedDir := range sv.allowedDirectories {
		if strings.HasPrefix(cleanPath, allowedDir) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("socket path must be in allowed directories: %v", sv.allowedDirectories)
	}

	if !pathCharPattern.MatchString(socketPath) {
		return fmt.Errorf("socket path contains invalid characters")
	}
	return nil
}

// ValidateChannelID validates channel identifier
func (sv *SecurityValidator) ValidateChannelID(channelID string) error {
	return validateName("channel ID", channelID, sv.maxChannelNameLength, channelNamePattern)
}

// ValidateMethodName validates a method name
func (sv *SecurityValidator) ValidateMethodName(method string) error {
	return validateName("method name", method, sv.maxMethodNameLength, methodNamePattern)
}

func validateName(what, value string, maxLen int, pattern *regexp.Regexp) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", what)
	}
	if len(value) > maxLen {
		return fmt.Errorf("%s length %d exceeds maximum %d", what, len(value), maxLen)
	}
	if !utf8.ValidString(value) {
		return fmt.Errorf("%s contains invalid UTF-8 sequences", what)
	}
	if !pattern.MatchString(value) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, hyphen, underscore allowed)", what)
	}
	return nil
}
