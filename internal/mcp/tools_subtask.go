package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type subtaskCreateInput struct {
	ParentID       string   `json:"parent_id" jsonschema:"required,Parent workflow or task ID"`
	ChildIDs       []string `json:"child_ids" jsonschema:"required,IDs of the spawned subtasks"`
	NextParentStep string   `json:"next_parent_step,omitempty" jsonschema:"Where the parent resumes once all children finish"`
	ParentContext  any      `json:"parent_context,omitempty" jsonschema:"Parent state preserved for the resume"`
}

type subtaskCreateOutput struct {
	ParentID   string `json:"parent_id" jsonschema:"Parent ID"`
	ChildCount int    `json:"child_count" jsonschema:"Number of registered children"`
}

type subtaskCompleteInput struct {
	ParentID string `json:"parent_id" jsonschema:"required,Parent ID"`
	ChildID  string `json:"child_id" jsonschema:"required,Child that finished"`
}

type subtaskCompleteOutput struct {
	ParentID       string `json:"parent_id" jsonschema:"Parent ID"`
	CompletedCount int    `json:"completed_count" jsonschema:"Children completed so far"`
	TotalCount     int    `json:"total_count" jsonschema:"Total registered children"`
	AllComplete    bool   `json:"all_complete" jsonschema:"True once every child is done"`
	NextParentStep string `json:"next_parent_step,omitempty" jsonschema:"Parent resume point, echoed when all children are done"`
}

type subtaskStatusInput struct {
	ParentID string `json:"parent_id" jsonschema:"required,Parent ID"`
}

type subtaskStatusOutput struct {
	Found             bool     `json:"found" jsonschema:"False when the parent has no relationship"`
	ChildIDs          []string `json:"child_ids,omitempty" jsonschema:"Registered children"`
	CompletedChildren []string `json:"completed_children,omitempty" jsonschema:"Children already completed"`
	AllComplete       bool     `json:"all_complete" jsonschema:"True when every child is done (vacuously true for unknown parents)"`
	NextParentStep    string   `json:"next_parent_step,omitempty" jsonschema:"Parent resume point"`
}

func (s *Server) registerSubtaskTools() {
	// subtask_create
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "subtask_create",
		Description: "Register a parent/children relationship with preserved parent context",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args subtaskCreateInput) (*mcp.CallToolResult, subtaskCreateOutput, error) {
		done := s.instrument(ctx, "subtask_create")
		var toolErr error
		defer func() { done(toolErr) }()

		err := s.orch.Preserved.CreateSubtaskRelationship(
			args.ParentID, args.ChildIDs, args.NextParentStep, args.ParentContext)
		if err != nil {
			toolErr = err
			return nil, subtaskCreateOutput{}, err
		}

		out := subtaskCreateOutput{ParentID: args.ParentID, ChildCount: len(args.ChildIDs)}
		return textResult("Registered %d subtasks under %s", out.ChildCount, args.ParentID), out, nil
	})

	// subtask_complete
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "subtask_complete",
		Description: "Mark a subtask finished and report whether the parent can resume",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args subtaskCompleteInput) (*mcp.CallToolResult, subtaskCompleteOutput, error) {
		done := s.instrument(ctx, "subtask_complete")
		defer func() { done(nil) }()

		rel, found := s.orch.Preserved.CompleteSubtask(args.ParentID, args.ChildID)
		if !found {
			return textResult("No subtask relationship for %s", args.ParentID),
				subtaskCompleteOutput{ParentID: args.ParentID, AllComplete: true}, nil
		}

		out := subtaskCompleteOutput{
			ParentID:       args.ParentID,
			CompletedCount: len(rel.CompletedChildren),
			TotalCount:     len(rel.ChildIDs),
			AllComplete:    rel.AllComplete(),
		}
		if out.AllComplete {
			out.NextParentStep = rel.NextParentStep
		}
		return textResult("%d/%d subtasks complete", out.CompletedCount, out.TotalCount), out, nil
	})

	// subtask_status
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "subtask_status",
		Description: "Report subtask completion for a parent",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args subtaskStatusInput) (*mcp.CallToolResult, subtaskStatusOutput, error) {
		done := s.instrument(ctx, "subtask_status")
		defer func() { done(nil) }()

		rel, found := s.orch.Preserved.Relationship(args.ParentID)
		if !found {
			// Unknown parents are vacuously complete.
			return textResult("No subtask relationship for %s", args.ParentID),
				subtaskStatusOutput{Found: false, AllComplete: true}, nil
		}

		out := subtaskStatusOutput{
			Found:             true,
			ChildIDs:          rel.ChildIDs,
			CompletedChildren: rel.CompletedChildren,
			AllComplete:       rel.AllComplete(),
			NextParentStep:    rel.NextParentStep,
		}
		return textResult("%d/%d subtasks complete", len(rel.CompletedChildren), len(rel.ChildIDs)), out, nil
	})
}
