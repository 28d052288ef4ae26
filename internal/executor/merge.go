package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/internal/domain"
)

// MergeExecutor folds multiple incoming branches' mapped outputs into one.
type MergeExecutor struct{}

func NewMergeExecutor() *MergeExecutor { return &MergeExecutor{} }

func (e *MergeExecutor) Execute(ctx context.Context, node *domain.Node, input map[string]interface{}) (*domain.MappedOutput, error) {
	config := node.Config
	strategy := configString(config, "merge_strategy", "combine")

	branchIDs, _ := config["incoming_branch_node_ids"].([]interface{})
	sources := make([]string, 0, len(branchIDs))
	for _, b := range branchIDs {
		if s, ok := b.(string); ok {
			sources = append(sources, s)
		}
	}

	branches, _ := input["branches"].([]interface{})

	out := header(node, domain.OutputSuccess)
	out.Timestamp = time.Now()

	switch strategy {
	case "first":
		var first interface{}
		if len(branches) > 0 {
			first = branches[0]
		}
		merged := asMap(first)
		out.Merge = &domain.MergeOut{Merged: merged, Sources: sources, Strategy: strategy}
		out.Raw = map[string]interface{}{"merged_results": []interface{}{first}}
	case "vote":
		winner, allVotes := vote(branches)
		out.Merge = &domain.MergeOut{Merged: asMap(winner), Sources: sources, Strategy: strategy}
		out.Raw = map[string]interface{}{"winner": winner, "all_votes": allVotes}
	default: // combine
		out.Merge = &domain.MergeOut{Merged: map[string]interface{}{"merged_results": branches}, Sources: sources, Strategy: strategy}
		out.Raw = map[string]interface{}{"merged_results": branches}
	}
	return &out, nil
}

func asMap(v interface{}) map[string]interface{} {
	m, ok := v.(map[string]interface{})
	if ok {
		return m
	}
	return map[string]interface{}{"value": v}
}

// vote picks the value appearing most often by serialized equality.
func vote(branches []interface{}) (interface{}, []interface{}) {
	if len(branches) == 0 {
		return nil, nil
	}
	counts := make(map[string]int)
	serialized := make(map[string]interface{})
	for _, b := range branches {
		key := serialize(b)
		counts[key]++
		serialized[key] = b
	}
	var bestKey string
	best := -1
	for k, c := range counts {
		if c > best {
			best, bestKey = c, k
		}
	}
	return serialized[bestKey], branches
}

func serialize(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
