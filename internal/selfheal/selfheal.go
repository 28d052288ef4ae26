// Package selfheal tracks per-(provider, agent) reliability and decides
// when the interpreter should retry an agent node against a different
// model/agent instead of failing the step outright. Not present in the
// teacher (which has no retry-with-different-model concept); grounded on
// original_source/backend/app/services/self_healing.py's scoring and
// reroute rules, reimplemented with row-level update semantics matching
// common/redis's wrapper-method style, backed by a Postgres upsert run
// inside a single transaction (internal/persistence.UpsertAgentScore).
package selfheal

import (
	"context"
	"fmt"
	"sort"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/lyzr/workflowengine/internal/persistence"
)

const (
	failureThreshold   = 3
	rerouteReliability = 0.5
)

// scoreStore is the subset of *persistence.Store the registry needs;
// kept as an interface so tests can supply an in-memory fake instead of
// a live Postgres connection.
type scoreStore interface {
	UpsertAgentScore(ctx context.Context, provider, agentID string, success bool, latencyMs, cost float64) error
	GetAgentScore(ctx context.Context, provider, agentID string) (*domain.AgentScore, error)
	ScoresForProvider(ctx context.Context, provider string) ([]*domain.AgentScore, error)
}

// Registry is the self-healing decision surface the interpreter consults
// around every agent-node execution.
type Registry struct {
	store scoreStore
}

func New(store *persistence.Store) *Registry {
	return &Registry{store: store}
}

// RecordExecution updates the (provider, agentID) score after one agent
// node attempt completes, successfully or not.
func (r *Registry) RecordExecution(ctx context.Context, provider, agentID string, success bool, latencyMs, cost float64) error {
	if err := r.store.UpsertAgentScore(ctx, provider, agentID, success, latencyMs, cost); err != nil {
		return fmt.Errorf("selfheal: record execution: %w", err)
	}
	return nil
}

// ShouldReroute reports whether agentID's reliability has fallen far
// enough, with enough history, to justify trying an alternate instead of
// retrying the same one.
func (r *Registry) ShouldReroute(ctx context.Context, provider, agentID string) (bool, error) {
	score, err := r.store.GetAgentScore(ctx, provider, agentID)
	if err == persistence.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("selfheal: get agent score: %w", err)
	}
	return score.ReliabilityScore < rerouteReliability && score.ExecutionCount >= failureThreshold, nil
}

// BestAgent returns the candidate with the highest reliability score
// among candidateIDs, or the first candidate if none has any history yet.
func (r *Registry) BestAgent(ctx context.Context, provider string, candidateIDs []string) (string, error) {
	if len(candidateIDs) == 0 {
		return "", fmt.Errorf("selfheal: no candidate agents supplied")
	}

	scores, err := r.store.ScoresForProvider(ctx, provider)
	if err != nil {
		return "", fmt.Errorf("selfheal: list scores: %w", err)
	}

	byID := make(map[string]*domain.AgentScore, len(scores))
	for _, s := range scores {
		byID[s.AgentID] = s
	}

	var known []*domain.AgentScore
	for _, id := range candidateIDs {
		if s, ok := byID[id]; ok {
			known = append(known, s)
		}
	}
	if len(known) == 0 {
		return candidateIDs[0], nil
	}

	sort.Slice(known, func(i, j int) bool { return known[i].ReliabilityScore > known[j].ReliabilityScore })
	return known[0].AgentID, nil
}

// AlternateAgent returns the best candidate excluding failedAgentID, or
// "" if no other candidate remains.
func (r *Registry) AlternateAgent(ctx context.Context, provider, failedAgentID string, allAgentIDs []string) (string, error) {
	var candidates []string
	for _, id := range allAgentIDs {
		if id != failedAgentID {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}
	return r.BestAgent(ctx, provider, candidates)
}
