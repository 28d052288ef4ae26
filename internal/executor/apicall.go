package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/lyzr/workflowengine/internal/httpsafety"
)

// APICallExecutor issues an outbound HTTP request on behalf of an api_call
// node. Every target URL is checked against httpsafety before dialing, so
// a workflow config can never be used to pivot into the cluster's private
// network.
type APICallExecutor struct {
	client    *http.Client
	validator *httpsafety.Validator
}

func NewAPICallExecutor() *APICallExecutor {
	return &APICallExecutor{
		client:    &http.Client{Timeout: 2 * time.Minute},
		validator: httpsafety.NewValidator(),
	}
}

func (e *APICallExecutor) Execute(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
	config := node.Config
	url := configString(config, "url", "")
	if url == "" {
		return nil, fmt.Errorf("%w: api_call node %s missing url", domain.ErrTerminalActivity, node.ID)
	}
	method := strings.ToUpper(configString(config, "method", "GET"))

	if err := e.validator.ValidateOutboundURL(url); err != nil {
		return nil, err
	}

	body := mergeBody(config, input)
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: encoding request body: %v", domain.ErrTerminalActivity, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", domain.ErrTerminalActivity, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := config["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", domain.ErrTransientActivity, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", domain.ErrTransientActivity, err)
	}

	var parsed map[string]interface{}
	if len(raw) > 0 {
		if jsonErr := json.Unmarshal(raw, &parsed); jsonErr != nil {
			parsed = map[string]interface{}{"raw": string(raw)}
		}
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: http %d from %s", domain.ErrTransientActivity, resp.StatusCode, url)
	}

	headerMap := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headerMap[k] = resp.Header.Get(k)
	}

	out := header(node, domain.OutputSuccess)
	out.Timestamp = time.Now()
	out.Api = &domain.ApiOut{
		StatusCode:     resp.StatusCode,
		Body:           parsed,
		Headers:        headerMap,
		ResponseTimeMs: duration.Milliseconds(),
		URL:            url,
	}
	out.Raw = map[string]interface{}{
		"status_code":       resp.StatusCode,
		"body":              parsed,
		"headers":           headerMap,
		"response_time_ms":  duration.Milliseconds(),
		"url":               url,
	}
	return &out, nil
}

// mergeBody builds an api_call request body from the static config body
// plus whichever of the keys "input", "context", "previous_response" and
// "approval_action" are present in the mapped input. No other input key
// is sent, including the "body" key of the mapper's agent→api_call
// projection.
func mergeBody(config map[string]interface{}, input map[string]interface{}) map[string]interface{} {
	body := map[string]interface{}{}
	if configured, ok := config["body"].(map[string]interface{}); ok {
		for k, v := range configured {
			body[k] = v
		}
	}
	for _, key := range []string{"input", "context", "previous_response", "approval_action"} {
		if v, ok := input[key]; ok {
			body[key] = v
		}
	}
	return body
}
