// Package mapper turns one node's MappedOutput into the next node's
// effective input. Grounded on the teacher's resolver.Resolver
// (cmd/workflow-runner/resolver/resolver.go), which substitutes
// "$nodes.id.field" references into a target config using gjson — that
// idea is kept here for config-level variable substitution, but the
// primary mechanism is restructured as a (source type, target type) ->
// extractor lookup table, because MappedOutput is a typed tagged union
// rather than the teacher's untyped interface{} payload, so extraction can
// and should be resolved at compile time instead of by reflection.
package mapper

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/tidwall/gjson"
)

type pairKey struct {
	source domain.NodeType
	target domain.NodeType
}

// extractor projects an upstream MappedOutput into the fields a specific
// downstream node type expects to find under its "input" key.
type extractor func(out *domain.MappedOutput) map[string]interface{}

// table holds the notable (source, target) extractors. Any pair not
// listed here falls back to a generic TextContent projection.
var table = map[pairKey]extractor{
	{domain.NodeTrigger, domain.NodeAgent}: func(out *domain.MappedOutput) map[string]interface{} {
		if out.Trigger == nil {
			return nil
		}
		return out.Trigger.Input
	},
	{domain.NodeAgent, domain.NodeAgent}: func(out *domain.MappedOutput) map[string]interface{} {
		if out.Agent == nil {
			return nil
		}
		return map[string]interface{}{"prior_response": out.Agent.Text, "prior_model": out.Agent.Model}
	},
	{domain.NodeAgent, domain.NodeTimer}: func(out *domain.MappedOutput) map[string]interface{} {
		text := out.TextContent()
		return map[string]interface{}{"reason": text, "duration_seconds": parseDurationFromText(text)}
	},
	{domain.NodeAgent, domain.NodeConditional}: func(out *domain.MappedOutput) map[string]interface{} {
		if out.Agent == nil {
			return nil
		}
		return map[string]interface{}{"text": out.Agent.Text, "cost": out.Agent.Cost}
	},
	{domain.NodeAgent, domain.NodeAPICall}: func(out *domain.MappedOutput) map[string]interface{} {
		if out.Agent == nil {
			return nil
		}
		return map[string]interface{}{"body": map[string]interface{}{"text": out.Agent.Text}}
	},
	{domain.NodeAPICall, domain.NodeConditional}: func(out *domain.MappedOutput) map[string]interface{} {
		if out.Api == nil {
			return nil
		}
		return map[string]interface{}{"status_code": out.Api.StatusCode, "body": out.Api.Body}
	},
	{domain.NodeEval, domain.NodeConditional}: func(out *domain.MappedOutput) map[string]interface{} {
		if out.Eval == nil {
			return nil
		}
		return map[string]interface{}{"passed": out.Eval.Passed, "score": out.Eval.Score}
	},
	{domain.NodeApproval, domain.NodeConditional}: func(out *domain.MappedOutput) map[string]interface{} {
		if out.Approval == nil {
			return nil
		}
		return map[string]interface{}{"approved": out.Approval.Approved, "approver": out.Approval.Approver}
	},
	{domain.NodeMerge, domain.NodeAgent}: func(out *domain.MappedOutput) map[string]interface{} {
		if out.Merge == nil {
			return nil
		}
		return out.Merge.Merged
	},
}

// Map produces the resolved input for a target node: the extractor
// projection from the immediate predecessor's output, overridden field by
// field with the target's own static config (with "$nodes.id.field" and
// "${...}" references resolved against allOutputs). The target's config
// always wins on key collision — an author-specified value takes
// precedence over an inferred one.
func Map(source *domain.MappedOutput, targetType domain.NodeType, targetConfig map[string]interface{}, allOutputs map[string]*domain.MappedOutput) (map[string]interface{}, error) {
	result := map[string]interface{}{}

	if source != nil {
		if ext, ok := table[pairKey{source.NodeType, targetType}]; ok {
			if projected := ext(source); projected != nil {
				for k, v := range projected {
					result[k] = v
				}
			}
		} else {
			result["text"] = source.TextContent()
		}
	}

	resolved, err := resolveConfig(targetConfig, allOutputs)
	if err != nil {
		return nil, fmt.Errorf("mapper: resolve target config: %w", err)
	}
	for k, v := range resolved {
		result[k] = v
	}
	return result, nil
}

var interpolationPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(second|minute|hour|day)s?`)

var unitSeconds = map[string]int{"second": 1, "minute": 60, "hour": 3600, "day": 86400}

// parseDurationFromText implements the agent->timer projection rule: try
// an ISO-8601 timestamp (delay until it elapses) first, then a "(n)
// (second|minute|hour|day)s?" phrase, else 0.
func parseDurationFromText(text string) int {
	if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(text)); err == nil {
		if d := time.Until(ts); d > 0 {
			return int(d.Seconds())
		}
		return 0
	}
	match := durationPattern.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n * unitSeconds[strings.ToLower(match[2])]
}

// resolveConfig recursively substitutes "$nodes.id" / "$nodes.id.field"
// references (and "${...}" string interpolation of the same) in config,
// using allOutputs as the lookup source — the teacher's Resolver.ResolveConfig,
// adapted to read from the in-memory MappedOutput map instead of a
// network round trip to durable storage.
func resolveConfig(config map[string]interface{}, allOutputs map[string]*domain.MappedOutput) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(config))
	for k, v := range config {
		resolved, err := resolveValue(v, allOutputs)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func resolveValue(value interface{}, allOutputs map[string]*domain.MappedOutput) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return resolveString(v, allOutputs)
	case map[string]interface{}:
		return resolveConfig(v, allOutputs)
	case []interface{}:
		resolved := make([]interface{}, len(v))
		for i, item := range v {
			r, err := resolveValue(item, allOutputs)
			if err != nil {
				return nil, err
			}
			resolved[i] = r
		}
		return resolved, nil
	default:
		return value, nil
	}
}

func resolveString(s string, allOutputs map[string]*domain.MappedOutput) (interface{}, error) {
	if strings.HasPrefix(s, "$nodes.") {
		return resolveNodeReference(s, allOutputs)
	}
	if strings.Contains(s, "${") {
		return resolveInterpolation(s, allOutputs)
	}
	return s, nil
}

func resolveNodeReference(expr string, allOutputs map[string]*domain.MappedOutput) (interface{}, error) {
	expr = strings.TrimPrefix(expr, "$nodes.")
	parts := strings.SplitN(expr, ".", 2)
	nodeID := parts[0]

	out, ok := allOutputs[nodeID]
	if !ok {
		return nil, fmt.Errorf("node output not found: %s", nodeID)
	}
	payload := out.AsInterface()

	if len(parts) == 1 {
		return payload, nil
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal node %s output: %w", nodeID, err)
	}
	result := gjson.GetBytes(payloadJSON, parts[1])
	if !result.Exists() {
		return nil, fmt.Errorf("field %q not found in node %s output", parts[1], nodeID)
	}
	return result.Value(), nil
}

func resolveInterpolation(s string, allOutputs map[string]*domain.MappedOutput) (string, error) {
	result := s
	for _, match := range interpolationPattern.FindAllStringSubmatch(s, -1) {
		placeholder, expr := match[0], match[1]
		value, err := resolveString(expr, allOutputs)
		if err != nil {
			return "", fmt.Errorf("interpolation %s: %w", placeholder, err)
		}
		var valueStr string
		switch v := value.(type) {
		case string:
			valueStr = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return "", fmt.Errorf("marshal interpolated value: %w", err)
			}
			valueStr = string(b)
		}
		result = strings.Replace(result, placeholder, valueStr, 1)
	}
	return result, nil
}
