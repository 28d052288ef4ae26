package interpreter

import (
	"context"
	"errors"

	"github.com/lyzr/workflowengine/internal/domain"
)

// tryFallback implements the self-healing reroute: when an agent node's
// activity exhausts its retries, ask selfheal whether the (provider,
// agent_id) pair's reliability_score has crossed the reroute threshold
// and, if so, replay the node once against an alternate agent id drawn
// from node.Config["fallback_agent_ids"]. Any other node type, a nil
// SelfHeal, or an unconfigured fallback list leaves origErr untouched —
// there is nothing to reroute to.
func (r *Run) tryFallback(ctx context.Context, node *domain.Node, origErr error) (*domain.MappedOutput, bool, error) {
	if node.Type != domain.NodeAgent || r.interp.selfheal == nil {
		return nil, false, origErr
	}
	if !errors.Is(origErr, domain.ErrTransientActivity) && !errors.Is(origErr, domain.ErrTerminalActivity) {
		return nil, false, origErr
	}

	provider := configString(node.Config, "provider", "default")
	agentID := configString(node.Config, "agent_id", node.ID)

	reroute, err := r.interp.selfheal.ShouldReroute(ctx, provider, agentID)
	if err != nil || !reroute {
		return nil, false, origErr
	}

	var candidates []string
	if raw, ok := node.Config["fallback_agent_ids"].([]interface{}); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok && s != "" {
				candidates = append(candidates, s)
			}
		}
	}
	if len(candidates) == 0 {
		return nil, false, origErr
	}

	alt, err := r.interp.selfheal.AlternateAgent(ctx, provider, agentID, candidates)
	if err != nil || alt == "" || alt == agentID {
		return nil, false, origErr
	}

	fallbackConfig := make(map[string]interface{}, len(node.Config))
	for k, v := range node.Config {
		fallbackConfig[k] = v
	}
	fallbackConfig["agent_id"] = alt
	fallbackNode := *node
	fallbackNode.Config = fallbackConfig

	r.publish(ctx, node.ID, "node.fallback", map[string]interface{}{"from_agent_id": agentID, "to_agent_id": alt})

	input, err := r.buildInput(&fallbackNode)
	if err != nil {
		return nil, false, origErr
	}
	out, err := r.dispatchNode(ctx, &fallbackNode, input)
	if err != nil {
		// The fallback agent also failed; surface its own error rather
		// than the original one, since it's the more recent failure.
		return nil, false, err
	}
	return out, true, nil
}
