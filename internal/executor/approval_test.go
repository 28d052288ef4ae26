package executor

import (
	"context"
	"testing"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApprovalStore struct {
	saved *domain.ApprovalSlot
}

func (f *fakeApprovalStore) SaveApproval(ctx context.Context, slot *domain.ApprovalSlot) error {
	f.saved = slot
	return nil
}

type fakePublisher struct {
	events []*domain.EventRecord
}

func (f *fakePublisher) Publish(ctx context.Context, rec *domain.EventRecord) error {
	f.events = append(f.events, rec)
	return nil
}

func TestApprovalExecutor_Execute_PersistsPendingSlotAndPublishes(t *testing.T) {
	store := &fakeApprovalStore{}
	publisher := &fakePublisher{}
	e := NewApprovalExecutor(store, publisher, nil)

	node := &domain.Node{ID: "n1", Type: domain.NodeApproval, Config: map[string]interface{}{
		"description":   "ship it?",
		"approval_type": "majority",
		"approvers":     []interface{}{"a", "b", "c"},
	}}

	out, err := e.Execute(context.Background(), node, map[string]interface{}{"execution_id": "exec-1"})
	require.NoError(t, err)
	require.NotNil(t, store.saved)
	assert.Equal(t, domain.ApprovalPending, store.saved.Status)
	assert.Equal(t, 3, store.saved.TotalApprovers)
	assert.Equal(t, domain.ApprovalMajority, store.saved.ApprovalType)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, "approval.requested", publisher.events[0].EventType)
	assert.Equal(t, domain.OutputPartial, out.Status)
}
