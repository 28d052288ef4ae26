package httpsafety

import (
	"fmt"
	"net"
	"strings"
)

// HostValidator blocks an api_call or compensation target from resolving
// to a loopback, private, or link-local address — an executor running
// inside the cluster must not be tricked into calling back into it.
type HostValidator struct {
	blocked []string
	ip      *IPValidator
}

func NewHostValidator() *HostValidator {
	return &HostValidator{
		blocked: []string{
			"localhost", "127.0.0.1", "::1", "0.0.0.0", "::",
			"::ffff:127.0.0.1", "[::1]", "[::ffff:127.0.0.1]",
		},
		ip: NewIPValidator(),
	}
}

func (v *HostValidator) Validate(hostname string) error {
	if hostname == "" {
		return fmt.Errorf("hostname is required")
	}

	normalized := strings.ToLower(strings.TrimSpace(hostname))
	for _, blocked := range v.blocked {
		if normalized == blocked {
			return fmt.Errorf("hostname %q is blocked: loopback access", hostname)
		}
	}

	// A DNS failure is left to the actual request, not treated as a
	// validation failure here — it's not a security signal either way.
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return nil
	}
	return v.ip.ValidateAll(ips)
}

func (v *HostValidator) GetBlockedExamples() []string {
	return []string{
		"localhost", "127.0.0.1", "::1", "0.0.0.0",
		"10.0.0.1 (private)", "172.16.0.1 (private)", "192.168.1.1 (private)",
		"169.254.169.254 (cloud metadata endpoint)", "fd00::1 (private IPv6)",
	}
}
