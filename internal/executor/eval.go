package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
)

// EvalExecutor scores the previous node's output against one of four
// judge strategies; the interpreter (not this executor) decides what
// on_failure does with a passed=false result.
type EvalExecutor struct {
	judge AgentProvider
}

func NewEvalExecutor(judge AgentProvider) *EvalExecutor {
	return &EvalExecutor{judge: judge}
}

func (e *EvalExecutor) Execute(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
	config := node.Config
	evalType := configString(config, "eval_type", "custom")
	onFailure := configString(config, "on_failure", "block")
	target := extractEvalTarget(input)

	var passed bool
	var score float64
	var feedback string
	var criteria map[string]interface{}

	switch evalType {
	case "schema":
		passed, feedback = validateAgainstSchema(target, config["schema"])
		score = boolScore(passed)
	case "llm_judge":
		var err error
		passed, score, feedback, err = e.judgeLLM(ctx, config, target)
		if err != nil {
			return nil, err
		}
	case "policy":
		var failedRules []string
		passed, failedRules = evaluatePolicy(config, input)
		score = boolScore(passed)
		criteria = map[string]interface{}{"failed_rules": failedRules}
	default: // "custom" is a reserved extension point; always passes.
		passed, score = true, 1.0
	}

	out := header(node, domain.OutputSuccess)
	out.Timestamp = time.Now()
	out.Eval = &domain.EvalOut{
		Passed:    passed,
		Score:     score,
		Feedback:  feedback,
		Criteria:  criteria,
		OnFailure: onFailure,
	}
	out.Raw = map[string]interface{}{
		"passed":     passed,
		"score":      score,
		"reason":     feedback,
		"data":       criteria,
		"on_failure": onFailure,
	}
	// passed=false is not an executor error: the interpreter decides what
	// on_failure does with it (block/retry/compensate/warn), since that
	// decision involves workflow-level state (compensation, retry count)
	// this executor doesn't have access to.
	return &out, nil
}

// extractEvalTarget implements the "output, else body, else value, else
// the whole object" extraction rule against the mapped input.
func extractEvalTarget(input map[string]interface{}) interface{} {
	for _, key := range []string{"output", "body", "value"} {
		if v, ok := input[key]; ok {
			return v
		}
	}
	return input
}

func boolScore(passed bool) float64 {
	if passed {
		return 1.0
	}
	return 0.0
}

// validateAgainstSchema does a shallow structural check (the schema's
// "required" keys must be present; property types are not checked)
// rather than full JSON Schema — no example repo in the
// corpus carries a JSON Schema validation dependency, so this stays on
// encoding/json + reflection-free type switches instead of inventing one.
func validateAgainstSchema(target interface{}, schema interface{}) (bool, string) {
	schemaMap, ok := schema.(map[string]interface{})
	if !ok {
		return true, "no schema configured"
	}
	targetMap, ok := target.(map[string]interface{})
	if !ok {
		b, _ := json.Marshal(target)
		if err := json.Unmarshal(b, &targetMap); err != nil {
			return false, "target is not a JSON object"
		}
	}
	required, _ := schemaMap["required"].([]interface{})
	for _, r := range required {
		key, ok := r.(string)
		if !ok {
			continue
		}
		if _, present := targetMap[key]; !present {
			return false, fmt.Sprintf("missing required field %q", key)
		}
	}
	return true, "schema satisfied"
}

func (e *EvalExecutor) judgeLLM(ctx context.Context, config map[string]interface{}, target interface{}) (bool, float64, string, error) {
	if e.judge == nil {
		return false, 0, "", fmt.Errorf("%w: no judge provider configured", domain.ErrTerminalActivity)
	}
	threshold := configFloat(config, "confidence_threshold", 0.8)
	targetJSON, _ := json.Marshal(target)
	resp, err := e.judge.Complete(ctx, AgentRequest{
		SystemInstructions: "You are a strict evaluator. Respond with a confidence score between 0 and 1 for how well the content satisfies the given criteria.",
		Prompt:             fmt.Sprintf("criteria: %s\ncontent: %s", configString(config, "criteria", ""), string(targetJSON)),
		Temperature:        0,
	})
	if err != nil {
		return false, 0, "", fmt.Errorf("%w: judge call failed: %v", domain.ErrTransientActivity, err)
	}
	score := parseConfidence(resp.Text)
	return score >= threshold, score, resp.Text, nil
}

var confidenceRe = regexp.MustCompile(`(?:0?\.\d+|1(?:\.0+)?)`)

func parseConfidence(text string) float64 {
	match := confidenceRe.FindString(text)
	if match == "" {
		return 0
	}
	var v float64
	if _, err := fmt.Sscanf(match, "%f", &v); err != nil {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// evaluatePolicy checks the configured rule set against the mapped input;
// there is no PII-detection dependency anywhere in the corpus, so
// pii_detection stays a regexp heuristic (SSN/email shaped substrings)
// rather than pulling in an unlisted dependency.
func evaluatePolicy(config map[string]interface{}, input map[string]interface{}) (bool, []string) {
	var failed []string
	rules, _ := config["rules"].([]interface{})
	for _, r := range rules {
		rule, ok := r.(string)
		if !ok {
			continue
		}
		switch rule {
		case "cost_limit":
			limit := configFloat(config, "cost_limit", 0)
			if cost, ok := input["cost"].(float64); ok && limit > 0 && cost > limit {
				failed = append(failed, rule)
			}
		case "confidence_threshold":
			threshold := configFloat(config, "confidence_threshold", 0.8)
			if score, ok := input["score"].(float64); ok && score < threshold {
				failed = append(failed, rule)
			}
		case "pii_detection":
			if text, ok := input["output"].(string); ok && piiPattern.MatchString(text) {
				failed = append(failed, rule)
			}
		}
	}
	return len(failed) == 0, failed
}

var piiPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b|\b[\w.+-]+@[\w-]+\.[\w.-]+\b`)
