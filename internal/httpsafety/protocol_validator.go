package httpsafety

import (
	"fmt"
	"strings"
)

// ProtocolValidator restricts api_call/compensation targets to http(s).
type ProtocolValidator struct {
	allowed map[string]bool
}

func NewProtocolValidator() *ProtocolValidator {
	return &ProtocolValidator{allowed: map[string]bool{"http": true, "https": true}}
}

func (v *ProtocolValidator) Validate(scheme string) error {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" {
		return fmt.Errorf("protocol scheme is required")
	}
	if !v.allowed[scheme] {
		return fmt.Errorf("protocol %q is not allowed, only http/https", scheme)
	}
	return nil
}

func (v *ProtocolValidator) GetBlockedProtocols() []string {
	return []string{
		"file://", "ftp://", "jdbc://", "mysql://", "postgres://", "mongodb://",
		"redis://", "ssh://", "telnet://", "ldap://", "dict://", "gopher://",
	}
}
