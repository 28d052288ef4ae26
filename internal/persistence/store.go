// Package persistence is the Postgres-backed durable store for
// executions, approval gates, agent reliability scores, the replayable
// event log, and compensation records. Grounded on common/db/db.go's
// pgxpool wrapper; every table is created ahead of time by schema.sql,
// never by the engine itself.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lyzr/workflowengine/internal/domain"
)

// Store wraps a pgxpool.Pool with the engine's durable operations.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool. Schema creation is an operator
// concern (schema.sql), not something the engine does at startup.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ErrNotFound is returned by Get* methods when no row matches.
var ErrNotFound = errors.New("persistence: not found")

// SaveDefinition inserts a new workflow definition or, for an existing
// id, bumps its version and overwrites nodes/edges — definitions are
// immutable once an execution references them, so callers create a new
// id (or a new version row) rather than mutate a live one.
func (s *Store) SaveDefinition(ctx context.Context, w *domain.WorkflowDefinition) error {
	nodes, err := json.Marshal(w.Nodes)
	if err != nil {
		return fmt.Errorf("persistence: marshal nodes: %w", err)
	}
	edges, err := json.Marshal(w.Edges)
	if err != nil {
		return fmt.Errorf("persistence: marshal edges: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_definitions (id, name, description, nodes, edges, is_template, session_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description,
			nodes = EXCLUDED.nodes, edges = EXCLUDED.edges,
			version = workflow_definitions.version + 1, updated_at = EXCLUDED.updated_at
	`, w.ID, w.Name, w.Description, nodes, edges, w.IsTemplate, w.SessionID, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("persistence: save definition: %w", err)
	}
	return nil
}

func (s *Store) GetDefinition(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	var w domain.WorkflowDefinition
	var nodes, edges []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, nodes, edges, is_template, session_id, created_at, updated_at
		FROM workflow_definitions WHERE id = $1
	`, id).Scan(&w.ID, &w.Name, &w.Description, &nodes, &edges, &w.IsTemplate, &w.SessionID, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: get definition: %w", err)
	}
	if err := json.Unmarshal(nodes, &w.Nodes); err != nil {
		return nil, fmt.Errorf("persistence: unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &w.Edges); err != nil {
		return nil, fmt.Errorf("persistence: unmarshal edges: %w", err)
	}
	return &w, nil
}

// ListDefinitions returns every workflow definition's summary row, newest
// first, for the REST layer's index endpoint.
func (s *Store) ListDefinitions(ctx context.Context) ([]*domain.WorkflowDefinition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, nodes, edges, is_template, session_id, created_at, updated_at
		FROM workflow_definitions ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("persistence: list definitions: %w", err)
	}
	defer rows.Close()

	var out []*domain.WorkflowDefinition
	for rows.Next() {
		var w domain.WorkflowDefinition
		var nodes, edges []byte
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &nodes, &edges, &w.IsTemplate, &w.SessionID, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("persistence: scan definition: %w", err)
		}
		if err := json.Unmarshal(nodes, &w.Nodes); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal nodes: %w", err)
		}
		if err := json.Unmarshal(edges, &w.Edges); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal edges: %w", err)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// DeleteDefinition removes a definition row. Callers are responsible for
// checking it has no executions first if that invariant matters to them;
// the foreign key on executions.workflow_id rejects the delete otherwise.
func (s *Store) DeleteDefinition(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM workflow_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("persistence: delete definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveExecution upserts an execution row along with its full in-memory
// context, so a process restart can resume an execution exactly where it
// left off without replaying the event log.
func (s *Store) SaveExecution(ctx context.Context, e *domain.Execution, execCtx *domain.ExecutionContext) error {
	input, err := json.Marshal(e.Input)
	if err != nil {
		return fmt.Errorf("persistence: marshal input: %w", err)
	}
	output, err := json.Marshal(e.Output)
	if err != nil {
		return fmt.Errorf("persistence: marshal output: %w", err)
	}
	snapshot, err := json.Marshal(execCtx)
	if err != nil {
		return fmt.Errorf("persistence: marshal context snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO executions (id, workflow_id, status, input, output, current_node, error, started_at, completed_at, retry_count, failure_reason, compensation_status, context_snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, output = EXCLUDED.output, current_node = EXCLUDED.current_node,
			error = EXCLUDED.error, completed_at = EXCLUDED.completed_at, retry_count = EXCLUDED.retry_count,
			failure_reason = EXCLUDED.failure_reason, compensation_status = EXCLUDED.compensation_status,
			context_snapshot = EXCLUDED.context_snapshot, updated_at = now()
	`, e.ID, e.WorkflowID, e.Status, input, output, e.CurrentNode, e.Error, e.StartedAt, e.CompletedAt,
		e.RetryCount, e.FailureReason, e.CompensationStatus, snapshot)
	if err != nil {
		return fmt.Errorf("persistence: save execution: %w", err)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*domain.Execution, error) {
	var e domain.Execution
	var input, output []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, status, input, output, current_node, error, started_at, completed_at, retry_count, failure_reason, compensation_status
		FROM executions WHERE id = $1
	`, id).Scan(&e.ID, &e.WorkflowID, &e.Status, &input, &output, &e.CurrentNode, &e.Error, &e.StartedAt,
		&e.CompletedAt, &e.RetryCount, &e.FailureReason, &e.CompensationStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: get execution: %w", err)
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &e.Input); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal input: %w", err)
		}
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &e.Output); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal output: %w", err)
		}
	}
	return &e, nil
}

// ListExecutionsForWorkflow returns every execution row for a workflow,
// newest first.
func (s *Store) ListExecutionsForWorkflow(ctx context.Context, workflowID string) ([]*domain.Execution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, status, input, output, current_node, error, started_at, completed_at, retry_count, failure_reason, compensation_status
		FROM executions WHERE workflow_id = $1 ORDER BY started_at DESC
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("persistence: list executions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		var e domain.Execution
		var input, output []byte
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.Status, &input, &output, &e.CurrentNode, &e.Error, &e.StartedAt,
			&e.CompletedAt, &e.RetryCount, &e.FailureReason, &e.CompensationStatus); err != nil {
			return nil, fmt.Errorf("persistence: scan execution: %w", err)
		}
		if len(input) > 0 {
			if err := json.Unmarshal(input, &e.Input); err != nil {
				return nil, fmt.Errorf("persistence: unmarshal input: %w", err)
			}
		}
		if len(output) > 0 {
			if err := json.Unmarshal(output, &e.Output); err != nil {
				return nil, fmt.Errorf("persistence: unmarshal output: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// GetExecutionContext loads the full checkpointed ExecutionContext, the
// state the interpreter needs to resume an in-flight execution.
func (s *Store) GetExecutionContext(ctx context.Context, executionID string) (*domain.ExecutionContext, error) {
	var snapshot []byte
	err := s.pool.QueryRow(ctx, `SELECT context_snapshot FROM executions WHERE id = $1`, executionID).Scan(&snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: get execution context: %w", err)
	}
	var execCtx domain.ExecutionContext
	if err := json.Unmarshal(snapshot, &execCtx); err != nil {
		return nil, fmt.Errorf("persistence: unmarshal context snapshot: %w", err)
	}
	return &execCtx, nil
}

// SaveApproval upserts an approval gate's current state.
func (s *Store) SaveApproval(ctx context.Context, a *domain.ApprovalSlot) error {
	responses, err := json.Marshal(a.Responses)
	if err != nil {
		return fmt.Errorf("persistence: marshal responses: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO approval_requests (approval_id, execution_id, node_id, status, approval_type, total_approvers, responses, requested_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (approval_id) DO UPDATE SET
			status = EXCLUDED.status, responses = EXCLUDED.responses, resolved_at = EXCLUDED.resolved_at
	`, a.ApprovalID, a.ExecutionID, a.NodeID, a.Status, a.ApprovalType, a.TotalApprovers, responses, a.RequestedAt, a.ResolvedAt)
	if err != nil {
		return fmt.Errorf("persistence: save approval: %w", err)
	}
	return nil
}

func (s *Store) GetApproval(ctx context.Context, approvalID string) (*domain.ApprovalSlot, error) {
	var a domain.ApprovalSlot
	var responses []byte
	err := s.pool.QueryRow(ctx, `
		SELECT approval_id, execution_id, node_id, status, approval_type, total_approvers, responses, requested_at, resolved_at
		FROM approval_requests WHERE approval_id = $1
	`, approvalID).Scan(&a.ApprovalID, &a.ExecutionID, &a.NodeID, &a.Status, &a.ApprovalType, &a.TotalApprovers, &responses, &a.RequestedAt, &a.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: get approval: %w", err)
	}
	if err := json.Unmarshal(responses, &a.Responses); err != nil {
		return nil, fmt.Errorf("persistence: unmarshal responses: %w", err)
	}
	return &a, nil
}

// PendingApprovalsOlderThan lists every still-pending approval requested
// before cutoff, for the timeout supervisor to resolve.
func (s *Store) PendingApprovalsOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.ApprovalSlot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT approval_id, execution_id, node_id, status, approval_type, total_approvers, responses, requested_at, resolved_at
		FROM approval_requests WHERE status = $1 AND requested_at < $2
	`, domain.ApprovalPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("persistence: list pending approvals: %w", err)
	}
	defer rows.Close()

	var out []*domain.ApprovalSlot
	for rows.Next() {
		var a domain.ApprovalSlot
		var responses []byte
		if err := rows.Scan(&a.ApprovalID, &a.ExecutionID, &a.NodeID, &a.Status, &a.ApprovalType, &a.TotalApprovers, &responses, &a.RequestedAt, &a.ResolvedAt); err != nil {
			return nil, fmt.Errorf("persistence: scan pending approval: %w", err)
		}
		if err := json.Unmarshal(responses, &a.Responses); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal responses: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// UpsertAgentScore applies one execution's outcome to a (provider,
// agent) reliability row inside a single transaction, so concurrent
// workers never lose an update to a lost read-modify-write race.
func (s *Store) UpsertAgentScore(ctx context.Context, provider, agentID string, success bool, latencyMs float64, cost float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("persistence: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var execCount, successCount int64
	var avgLatency float64
	err = tx.QueryRow(ctx, `
		SELECT execution_count, success_count, avg_latency_ms FROM agent_scores
		WHERE provider = $1 AND agent_id = $2 FOR UPDATE
	`, provider, agentID).Scan(&execCount, &successCount, &avgLatency)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("persistence: read agent score: %w", err)
	}

	newCount := execCount + 1
	newSuccess := successCount
	if success {
		newSuccess++
	}
	newAvgLatency := (avgLatency*float64(execCount) + latencyMs) / float64(newCount)
	reliability := float64(newSuccess) / float64(newCount)

	_, err = tx.Exec(ctx, `
		INSERT INTO agent_scores (provider, agent_id, execution_count, success_count, failure_count, avg_latency_ms, total_cost, reliability_score, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (provider, agent_id) DO UPDATE SET
			execution_count = EXCLUDED.execution_count, success_count = EXCLUDED.success_count,
			failure_count = EXCLUDED.failure_count, avg_latency_ms = EXCLUDED.avg_latency_ms,
			total_cost = agent_scores.total_cost + $7, reliability_score = EXCLUDED.reliability_score,
			last_updated = now()
	`, provider, agentID, newCount, newSuccess, newCount-newSuccess, newAvgLatency, cost, reliability)
	if err != nil {
		return fmt.Errorf("persistence: upsert agent score: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) GetAgentScore(ctx context.Context, provider, agentID string) (*domain.AgentScore, error) {
	var a domain.AgentScore
	a.Provider, a.AgentID = provider, agentID
	err := s.pool.QueryRow(ctx, `
		SELECT execution_count, success_count, failure_count, avg_latency_ms, total_cost, reliability_score, last_updated
		FROM agent_scores WHERE provider = $1 AND agent_id = $2
	`, provider, agentID).Scan(&a.ExecutionCount, &a.SuccessCount, &a.FailureCount, &a.AvgLatencyMs, &a.TotalCost, &a.ReliabilityScore, &a.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: get agent score: %w", err)
	}
	return &a, nil
}

// ScoresForProvider lists every agent score row for a provider, the
// lookup the self-healing reroute decision scans to find an alternate.
func (s *Store) ScoresForProvider(ctx context.Context, provider string) ([]*domain.AgentScore, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT agent_id, execution_count, success_count, failure_count, avg_latency_ms, total_cost, reliability_score, last_updated
		FROM agent_scores WHERE provider = $1
	`, provider)
	if err != nil {
		return nil, fmt.Errorf("persistence: list agent scores: %w", err)
	}
	defer rows.Close()

	var out []*domain.AgentScore
	for rows.Next() {
		a := &domain.AgentScore{Provider: provider}
		if err := rows.Scan(&a.AgentID, &a.ExecutionCount, &a.SuccessCount, &a.FailureCount, &a.AvgLatencyMs, &a.TotalCost, &a.ReliabilityScore, &a.LastUpdated); err != nil {
			return nil, fmt.Errorf("persistence: scan agent score: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AppendEvent writes one durable, replayable audit row.
func (s *Store) AppendEvent(ctx context.Context, e *domain.EventRecord) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("persistence: marshal event data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO event_logs (id, workflow_id, execution_id, node_id, event_type, data, "timestamp")
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.WorkflowID, e.ExecutionID, e.NodeID, e.EventType, data, e.Timestamp)
	if err != nil {
		return fmt.Errorf("persistence: append event: %w", err)
	}
	return nil
}

// EventsForExecution replays every event recorded for an execution, in
// the order it happened, for the workflow history/replay API.
func (s *Store) EventsForExecution(ctx context.Context, executionID string) ([]*domain.EventRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, execution_id, node_id, event_type, data, "timestamp"
		FROM event_logs WHERE execution_id = $1 ORDER BY "timestamp" ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("persistence: list events: %w", err)
	}
	defer rows.Close()

	var out []*domain.EventRecord
	for rows.Next() {
		e := &domain.EventRecord{}
		var data []byte
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.ExecutionID, &e.NodeID, &e.EventType, &data, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("persistence: scan event: %w", err)
		}
		if err := json.Unmarshal(data, &e.Data); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal event data: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveCompensation upserts the outcome of one node's rollback handler.
func (s *Store) SaveCompensation(ctx context.Context, c *domain.CompensationRecord) error {
	data, err := json.Marshal(c.Data)
	if err != nil {
		return fmt.Errorf("persistence: marshal compensation data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO compensation_logs (id, execution_id, node_id, status, data, error, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data, error = EXCLUDED.error, completed_at = EXCLUDED.completed_at
	`, c.ID, c.ExecutionID, c.NodeID, c.Status, data, c.Error, c.CreatedAt, c.CompletedAt)
	if err != nil {
		return fmt.Errorf("persistence: save compensation: %w", err)
	}
	return nil
}

func (s *Store) CompensationsForExecution(ctx context.Context, executionID string) ([]*domain.CompensationRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, execution_id, node_id, status, data, error, created_at, completed_at
		FROM compensation_logs WHERE execution_id = $1 ORDER BY created_at ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("persistence: list compensations: %w", err)
	}
	defer rows.Close()

	var out []*domain.CompensationRecord
	for rows.Next() {
		c := &domain.CompensationRecord{}
		var data []byte
		if err := rows.Scan(&c.ID, &c.ExecutionID, &c.NodeID, &c.Status, &data, &c.Error, &c.CreatedAt, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("persistence: scan compensation: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &c.Data); err != nil {
				return nil, fmt.Errorf("persistence: unmarshal compensation data: %w", err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
