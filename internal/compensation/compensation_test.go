package compensation

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lyzr/workflowengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records []*domain.CompensationRecord
}

func (f *fakeStore) SaveCompensation(ctx context.Context, rec *domain.CompensationRecord) error {
	f.records = append(f.records, rec)
	return nil
}

type fakeBus struct {
	events []*domain.EventRecord
}

func (f *fakeBus) Publish(ctx context.Context, rec *domain.EventRecord) error {
	f.events = append(f.events, rec)
	return nil
}

// clientFor returns an http.Client that dials srv for every request, so a
// test can use a public hostname that passes httpsafety (which rejects the
// server's own 127.0.0.1 URL) while the request still reaches srv.
func clientFor(srv *httptest.Server) *http.Client {
	return &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, srv.Listener.Addr().String())
		},
	}}
}

func TestCoordinator_Compensate_RunsReverseOrderAndNoOpsUnconfiguredNodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	def := &domain.WorkflowDefinition{Nodes: []domain.Node{
		{ID: "a", Type: domain.NodeAgent, Config: map[string]interface{}{"cleanup_url": "http://api.example.com/cleanup"}},
		{ID: "b", Type: domain.NodeAPICall, Config: map[string]interface{}{"url": "http://api.example.com/widgets"}},
		{ID: "c", Type: domain.NodeEval},
	}}
	execCtx := domain.NewExecutionContext("wf-1", "exec-1", nil)
	execCtx.AppendHistory(domain.HistoryEntry{NodeID: "a", Status: domain.HistorySuccess})
	execCtx.AppendHistory(domain.HistoryEntry{NodeID: "b", Status: domain.HistorySuccess})
	execCtx.AppendHistory(domain.HistoryEntry{NodeID: "c", Status: domain.HistorySuccess})
	execCtx.NodeOutputs["b"] = &domain.MappedOutput{NodeType: domain.NodeAPICall, Api: &domain.ApiOut{StatusCode: 200}}

	store := &fakeStore{}
	bus := &fakeBus{}
	c := New(store, bus)
	c.client = clientFor(srv)

	err := c.Compensate(context.Background(), def, execCtx, "d")
	require.NoError(t, err)
	require.Len(t, store.records, 3)
	assert.Equal(t, "c", store.records[0].NodeID)
	assert.Equal(t, "b", store.records[1].NodeID)
	assert.Equal(t, "a", store.records[2].NodeID)
	for _, rec := range store.records {
		assert.Equal(t, domain.CompensationRecordSuccess, rec.Status)
	}
}

func TestCoordinator_Compensate_RecordsFailureWithoutAbortingRollback(t *testing.T) {
	def := &domain.WorkflowDefinition{Nodes: []domain.Node{
		{ID: "a", Type: domain.NodeAPICall, Config: map[string]interface{}{"url": "http://127.0.0.1/blocked"}},
		{ID: "b", Type: domain.NodeApproval},
	}}
	execCtx := domain.NewExecutionContext("wf-1", "exec-1", nil)
	execCtx.AppendHistory(domain.HistoryEntry{NodeID: "a", Status: domain.HistorySuccess})
	execCtx.AppendHistory(domain.HistoryEntry{NodeID: "b", Status: domain.HistorySuccess})

	store := &fakeStore{}
	bus := &fakeBus{}
	c := New(store, bus)

	err := c.Compensate(context.Background(), def, execCtx, "end")
	require.NoError(t, err)
	require.Len(t, store.records, 2)
	assert.Equal(t, domain.CompensationRecordSuccess, store.records[0].Status) // "b" approval, audit-only
	assert.Equal(t, domain.CompensationRecordFailed, store.records[1].Status)  // "a" blocked SSRF target
}
