package httpsafety

import (
	"fmt"
	"net/url"

	"github.com/lyzr/workflowengine/internal/domain"
)

// Validator orchestrates every outbound-URL safety check an api_call
// node or a compensation handler's HTTP call must pass before the
// engine dials out: protocol, hostname/IP (SSRF), and path (local file
// access). A failure here is always terminal — retrying the same
// unsafe URL can never succeed, so ValidateOutboundURL wraps every
// violation in domain.ErrTerminalActivity.
type Validator struct {
	protocol *ProtocolValidator
	host     *HostValidator
	path     *PathValidator
}

// NewValidator builds a validator with the engine's fixed security
// policy (http/https only, no loopback/private/link-local targets, no
// file-access path patterns).
func NewValidator() *Validator {
	return &Validator{
		protocol: NewProtocolValidator(),
		host:     NewHostValidator(),
		path:     NewPathValidator(),
	}
}

// ValidateOutboundURL checks urlStr against the full policy, wrapping
// any violation in domain.ErrTerminalActivity so the activity retry
// loop in internal/durable treats it as non-retryable.
func (v *Validator) ValidateOutboundURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("%w: invalid URL %q: %v", domain.ErrTerminalActivity, urlStr, err)
	}

	if err := v.protocol.Validate(parsed.Scheme); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTerminalActivity, err)
	}
	if err := v.host.Validate(parsed.Hostname()); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTerminalActivity, err)
	}
	if err := v.path.Validate(parsed.Path); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTerminalActivity, err)
	}
	if err := v.validateQueryParams(parsed.Query()); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTerminalActivity, err)
	}
	return nil
}

func (v *Validator) validateQueryParams(params url.Values) error {
	for key, values := range params {
		for _, value := range values {
			if err := v.path.Validate(value); err != nil {
				return fmt.Errorf("query parameter %q: %w", key, err)
			}
		}
	}
	return nil
}

// Policy summarizes the engine's outbound-URL rules for an admin
// endpoint or diagnostics dump.
type Policy struct {
	AllowedProtocols    []string `json:"allowed_protocols"`
	BlockedProtocols    []string `json:"blocked_protocols"`
	BlockedHosts        []string `json:"blocked_hosts"`
	BlockedPathPatterns []string `json:"blocked_path_patterns"`
}

func (v *Validator) Policy() Policy {
	return Policy{
		AllowedProtocols:    []string{"http", "https"},
		BlockedProtocols:    v.protocol.GetBlockedProtocols(),
		BlockedHosts:        v.host.GetBlockedExamples(),
		BlockedPathPatterns: v.path.GetBlockedExamples(),
	}
}
