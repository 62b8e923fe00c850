package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/orchestrd/internal/workflow"
)

type workflowCreateInput struct {
	Objective  string `json:"objective" jsonschema:"required,What the workflow should accomplish"`
	Complexity string `json:"complexity,omitempty" jsonschema:"simple moderate or complex (classified automatically when omitted)"`
}

type workflowCreateOutput struct {
	WorkflowID        string `json:"workflow_id" jsonschema:"Generated workflow ID"`
	Title             string `json:"title" jsonschema:"Workflow title"`
	TaskCount         int    `json:"task_count" jsonschema:"Number of planned tasks"`
	Complexity        string `json:"complexity" jsonschema:"Assigned complexity"`
	Approach          string `json:"approach" jsonschema:"single_task or sequential_workflow"`
	EstimatedDuration string `json:"estimated_duration" jsonschema:"Human-readable total estimate"`
	SessionID         string `json:"session_id,omitempty" jsonschema:"Bound session when one is active"`
}

type workflowNextTaskInput struct {
	WorkflowID string `json:"workflow_id" jsonschema:"required,Workflow identifier"`
}

type workflowNextTaskOutput struct {
	HasTask           bool               `json:"has_task" jsonschema:"False when completed or gated on a dependency"`
	TaskID            string             `json:"task_id,omitempty" jsonschema:"Next task ID"`
	Content           string             `json:"content,omitempty" jsonschema:"Next task content"`
	Dependencies      []string           `json:"dependencies,omitempty" jsonschema:"Dependency tokens the task waits on"`
	EstimatedDuration string             `json:"estimated_duration,omitempty" jsonschema:"Per-task estimate"`
	Guidance          *workflow.Guidance `json:"guidance,omitempty" jsonschema:"Execution guidance for the task"`
}

type workflowCompleteStepInput struct {
	WorkflowID string `json:"workflow_id" jsonschema:"required,Workflow identifier"`
	Result     string `json:"result" jsonschema:"required,Outcome text recorded in history"`
	Success    bool   `json:"success" jsonschema:"Whether the step succeeded (cursor advances only on success)"`
}

type workflowCompleteStepOutput struct {
	WorkflowID       string `json:"workflow_id" jsonschema:"Workflow ID"`
	CurrentTaskIndex int    `json:"current_task_index" jsonschema:"Cursor position after the completion"`
	IsCompleted      bool   `json:"is_completed" jsonschema:"True when every task is done"`
	HistoryCount     int    `json:"history_count" jsonschema:"Number of history entries"`
}

type workflowProgressInput struct {
	WorkflowID string `json:"workflow_id" jsonschema:"required,Workflow identifier"`
}

type workflowValidateInput struct {
	WorkflowID string `json:"workflow_id" jsonschema:"required,Workflow identifier"`
}

type workflowMetricsInput struct{}

func (s *Server) registerWorkflowTools() {
	// workflow_create
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workflow_create",
		Description: "Plan a workflow for an objective, generating tasks by complexity",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args workflowCreateInput) (*mcp.CallToolResult, workflowCreateOutput, error) {
		done := s.instrument(ctx, "workflow_create")
		var toolErr error
		defer func() { done(toolErr) }()

		def, err := s.orch.CreateWorkflow(ctx, args.Objective, args.Complexity)
		if err != nil {
			toolErr = err
			return nil, workflowCreateOutput{}, err
		}

		out := workflowCreateOutput{
			WorkflowID:        def.ID,
			Title:             def.Title,
			TaskCount:         len(def.Tasks),
			Complexity:        def.Metadata.Complexity,
			Approach:          def.Metadata.Approach,
			EstimatedDuration: def.EstimatedDuration,
			SessionID:         def.Context.SessionID,
		}
		return textResult("Workflow created: %s (%d tasks)", def.ID, len(def.Tasks)), out, nil
	})

	// workflow_next_task
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workflow_next_task",
		Description: "Return the next executable task, honoring dependency gates",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args workflowNextTaskInput) (*mcp.CallToolResult, workflowNextTaskOutput, error) {
		done := s.instrument(ctx, "workflow_next_task")
		var toolErr error
		defer func() { done(toolErr) }()

		next, err := s.orch.Workflows.NextExecutableTask(args.WorkflowID)
		if err != nil {
			toolErr = err
			return nil, workflowNextTaskOutput{}, err
		}
		if next == nil {
			return textResult("No executable task"), workflowNextTaskOutput{HasTask: false}, nil
		}

		out := workflowNextTaskOutput{
			HasTask:           true,
			TaskID:            next.ID,
			Content:           next.Content,
			Dependencies:      next.Dependencies,
			EstimatedDuration: next.EstimatedDuration,
			Guidance:          next.Guidance,
		}
		return textResult("Next task: %s", next.Content), out, nil
	})

	// workflow_complete_step
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workflow_complete_step",
		Description: "Record a step outcome; the cursor advances only on success",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args workflowCompleteStepInput) (*mcp.CallToolResult, workflowCompleteStepOutput, error) {
		done := s.instrument(ctx, "workflow_complete_step")
		var toolErr error
		defer func() { done(toolErr) }()

		def, err := s.orch.Workflows.MarkCompleted(ctx, args.WorkflowID, args.Result, args.Success)
		if err != nil {
			toolErr = err
			return nil, workflowCompleteStepOutput{}, err
		}

		out := workflowCompleteStepOutput{
			WorkflowID:       def.ID,
			CurrentTaskIndex: def.CurrentTaskIndex,
			IsCompleted:      def.IsCompleted,
			HistoryCount:     len(def.Context.History),
		}
		return textResult("Step recorded; cursor at %d/%d", def.CurrentTaskIndex, len(def.Tasks)), out, nil
	})

	// workflow_progress
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workflow_progress",
		Description: "Report completion counts and estimated time remaining",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args workflowProgressInput) (*mcp.CallToolResult, workflow.Progress, error) {
		done := s.instrument(ctx, "workflow_progress")
		var toolErr error
		defer func() { done(toolErr) }()

		progress, err := s.orch.Workflows.Progress(args.WorkflowID)
		if err != nil {
			toolErr = err
			return nil, workflow.Progress{}, err
		}
		return textResult("%d%% complete (%d/%d tasks)",
			progress.ProgressPercentage, progress.CompletedTasks, progress.TotalTasks), progress, nil
	})

	// workflow_validate
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workflow_validate",
		Description: "Check a workflow definition against its structural invariants",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args workflowValidateInput) (*mcp.CallToolResult, workflow.ValidationResult, error) {
		done := s.instrument(ctx, "workflow_validate")
		var toolErr error
		defer func() { done(toolErr) }()

		def, err := s.orch.Workflows.Get(args.WorkflowID)
		if err != nil {
			toolErr = err
			return nil, workflow.ValidationResult{}, err
		}

		result := s.orch.Workflows.Validate(def)
		if result.OK {
			return textResult("Workflow %s is valid", def.ID), result, nil
		}
		return textResult("Workflow %s has %d violations", def.ID, len(result.Errors)), result, nil
	})

	// workflow_metrics
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workflow_metrics",
		Description: "Aggregate counts and averages across all tracked workflows",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args workflowMetricsInput) (*mcp.CallToolResult, workflow.Metrics, error) {
		done := s.instrument(ctx, "workflow_metrics")
		defer func() { done(nil) }()

		metrics := s.orch.Workflows.MetricsReport()
		return textResult("%d workflows tracked, %d completed", metrics.Total, metrics.Completed), metrics, nil
	})
}
