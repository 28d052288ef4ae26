package selfheal

import (
	"context"
	"testing"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/lyzr/workflowengine/internal/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	scores map[string]*domain.AgentScore
}

func newFakeStore() *fakeStore {
	return &fakeStore{scores: map[string]*domain.AgentScore{}}
}

func key(provider, agentID string) string { return provider + "/" + agentID }

func (f *fakeStore) UpsertAgentScore(ctx context.Context, provider, agentID string, success bool, latencyMs, cost float64) error {
	s, ok := f.scores[key(provider, agentID)]
	if !ok {
		s = &domain.AgentScore{Provider: provider, AgentID: agentID}
		f.scores[key(provider, agentID)] = s
	}
	s.ExecutionCount++
	if success {
		s.SuccessCount++
	} else {
		s.FailureCount++
	}
	s.ReliabilityScore = float64(s.SuccessCount) / float64(s.ExecutionCount)
	return nil
}

func (f *fakeStore) GetAgentScore(ctx context.Context, provider, agentID string) (*domain.AgentScore, error) {
	s, ok := f.scores[key(provider, agentID)]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) ScoresForProvider(ctx context.Context, provider string) ([]*domain.AgentScore, error) {
	var out []*domain.AgentScore
	for _, s := range f.scores {
		if s.Provider == provider {
			out = append(out, s)
		}
	}
	return out, nil
}

func TestShouldReroute_NoHistory(t *testing.T) {
	r := &Registry{store: newFakeStore()}
	reroute, err := r.ShouldReroute(context.Background(), "openai", "gpt-4")
	require.NoError(t, err)
	assert.False(t, reroute)
}

func TestShouldReroute_BelowThresholdAfterEnoughFailures(t *testing.T) {
	store := newFakeStore()
	r := &Registry{store: store}
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, r.RecordExecution(ctx, "openai", "gpt-4", false, 100, 0.01))
	}
	reroute, err := r.ShouldReroute(ctx, "openai", "gpt-4")
	require.NoError(t, err)
	assert.True(t, reroute)
}

func TestShouldReroute_NotEnoughAttemptsYet(t *testing.T) {
	store := newFakeStore()
	r := &Registry{store: store}
	ctx := context.Background()
	require.NoError(t, r.RecordExecution(ctx, "openai", "gpt-4", false, 100, 0.01))
	require.NoError(t, r.RecordExecution(ctx, "openai", "gpt-4", false, 100, 0.01))
	reroute, err := r.ShouldReroute(ctx, "openai", "gpt-4")
	require.NoError(t, err)
	assert.False(t, reroute, "only 2 attempts recorded, below the failure threshold")
}

func TestBestAgent_PicksHighestReliability(t *testing.T) {
	store := newFakeStore()
	r := &Registry{store: store}
	ctx := context.Background()
	require.NoError(t, r.RecordExecution(ctx, "openai", "gpt-3.5", false, 50, 0))
	require.NoError(t, r.RecordExecution(ctx, "openai", "gpt-4", true, 50, 0))

	best, err := r.BestAgent(ctx, "openai", []string{"gpt-3.5", "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", best)
}

func TestBestAgent_NoHistoryReturnsFirstCandidate(t *testing.T) {
	r := &Registry{store: newFakeStore()}
	best, err := r.BestAgent(context.Background(), "openai", []string{"gpt-3.5", "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5", best)
}

func TestAlternateAgent_ExcludesFailedAgent(t *testing.T) {
	store := newFakeStore()
	r := &Registry{store: store}
	ctx := context.Background()
	require.NoError(t, r.RecordExecution(ctx, "openai", "gpt-3.5", true, 50, 0))

	alt, err := r.AlternateAgent(ctx, "openai", "gpt-4", []string{"gpt-3.5", "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5", alt)
}

func TestAlternateAgent_NoOtherCandidates(t *testing.T) {
	r := &Registry{store: newFakeStore()}
	alt, err := r.AlternateAgent(context.Background(), "openai", "gpt-4", []string{"gpt-4"})
	require.NoError(t, err)
	assert.Empty(t, alt)
}
