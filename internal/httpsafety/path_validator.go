package httpsafety

import (
	"fmt"
	"strings"
)

// PathValidator rejects path traversal and local-file-access patterns
// in a target URL's path or query values.
type PathValidator struct {
	blocked []string
}

func NewPathValidator() *PathValidator {
	return &PathValidator{
		blocked: []string{
			"file://", "../", "..\\", "/etc/", "/proc/", "/sys/",
			"c:/", "c:\\", "\\\\.\\pipe\\",
		},
	}
}

func (v *PathValidator) Validate(path string) error {
	if path == "" {
		return nil
	}
	normalized := strings.ToLower(path)
	for _, pattern := range v.blocked {
		if strings.Contains(normalized, pattern) {
			return fmt.Errorf("path contains blocked pattern %q", pattern)
		}
	}
	if v.containsEncodedTraversal(normalized) {
		return fmt.Errorf("path contains URL-encoded traversal pattern")
	}
	return nil
}

func (v *PathValidator) containsEncodedTraversal(path string) bool {
	for _, pattern := range []string{"%2e%2e/", "%2e%2e%2f", "..%2f", "%2e%2e\\", "%2e%2e%5c", "..%5c"} {
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}

func (v *PathValidator) GetBlockedExamples() []string {
	return []string{
		"file:///etc/passwd", "../../../etc/passwd", "/etc/shadow",
		"/proc/self/environ", "c:/windows/system32", "\\\\.\\pipe\\named_pipe",
	}
}
