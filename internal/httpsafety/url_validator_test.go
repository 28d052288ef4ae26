package httpsafety

import (
	"errors"
	"testing"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestValidateOutboundURL_AllowsPublicHTTPS(t *testing.T) {
	v := NewValidator()
	err := v.ValidateOutboundURL("https://api.example.com/v1/widgets")
	assert.NoError(t, err)
}

func TestValidateOutboundURL_BlocksLoopback(t *testing.T) {
	v := NewValidator()
	err := v.ValidateOutboundURL("http://127.0.0.1:8080/admin")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTerminalActivity))
}

func TestValidateOutboundURL_BlocksLocalhost(t *testing.T) {
	v := NewValidator()
	err := v.ValidateOutboundURL("http://localhost/internal")
	assert.Error(t, err)
}

func TestValidateOutboundURL_BlocksNonHTTPProtocol(t *testing.T) {
	v := NewValidator()
	err := v.ValidateOutboundURL("file:///etc/passwd")
	assert.Error(t, err)
}

func TestValidateOutboundURL_BlocksPathTraversal(t *testing.T) {
	v := NewValidator()
	err := v.ValidateOutboundURL("https://api.example.com/../../etc/passwd")
	assert.Error(t, err)
}

func TestValidateOutboundURL_BlocksPrivateNetworkHost(t *testing.T) {
	v := NewValidator()
	err := v.ValidateOutboundURL("http://192.168.1.5/hook")
	assert.Error(t, err)
}
