package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/orchestrd/internal/task"
)

type taskCreateInput struct {
	Content  string `json:"content" jsonschema:"required,Task description (3-10000 characters)"`
	Priority string `json:"priority,omitempty" jsonschema:"Priority: critical high medium or low (default: medium)"`
}

type taskCreateOutput struct {
	ID       string `json:"id" jsonschema:"Generated task ID"`
	Content  string `json:"content" jsonschema:"Task description"`
	Status   string `json:"status" jsonschema:"Initial status (always pending)"`
	Priority string `json:"priority" jsonschema:"Assigned priority"`
}

type taskUpdateStatusInput struct {
	TaskID  string `json:"task_id" jsonschema:"required,Task identifier"`
	Status  string `json:"status" jsonschema:"required,Target status"`
	AgentID string `json:"agent_id,omitempty" jsonschema:"Identifier of the acting agent"`
	Notes   string `json:"notes,omitempty" jsonschema:"Free-form transition notes"`
	Reason  string `json:"reason,omitempty" jsonschema:"Blocking reason (required when status is blocked)"`
}

type taskUpdateStatusOutput struct {
	ID           string   `json:"id" jsonschema:"Task ID"`
	Status       string   `json:"status" jsonschema:"New status"`
	HistoryCount int      `json:"history_count" jsonschema:"Number of history entries"`
	Allowed      []string `json:"allowed_transitions" jsonschema:"Statuses reachable from the new status"`
}

type taskListInput struct {
	Status string `json:"status,omitempty" jsonschema:"Only return tasks with this status"`
}

type taskListOutput struct {
	Tasks []task.Task `json:"tasks" jsonschema:"Matching tasks"`
	Count int         `json:"count" jsonschema:"Number of tasks returned"`
}

func (s *Server) registerTaskTools() {
	// task_create
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "task_create",
		Description: "Create a standalone task in pending status",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args taskCreateInput) (*mcp.CallToolResult, taskCreateOutput, error) {
		done := s.instrument(ctx, "task_create")
		var toolErr error
		defer func() { done(toolErr) }()

		priority := task.Priority(args.Priority)
		if args.Priority == "" {
			priority = task.PriorityMedium
		}

		tk, err := s.orch.Tasks.Create(args.Content, priority)
		if err != nil {
			toolErr = err
			return nil, taskCreateOutput{}, err
		}

		out := taskCreateOutput{
			ID:       tk.ID,
			Content:  tk.Content,
			Status:   string(tk.Status),
			Priority: string(tk.Priority),
		}
		return textResult("Task created: %s", tk.ID), out, nil
	})

	// task_update_status
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "task_update_status",
		Description: "Transition a task to a new status, enforcing the transition table",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args taskUpdateStatusInput) (*mcp.CallToolResult, taskUpdateStatusOutput, error) {
		done := s.instrument(ctx, "task_update_status")
		var toolErr error
		defer func() { done(toolErr) }()

		to := task.Status(args.Status)

		var tk task.Task
		var err error
		if to == task.StatusBlocked && args.Reason != "" {
			tk, err = s.orch.Tasks.Block(args.TaskID, args.Reason, args.AgentID)
		} else {
			tk, err = s.orch.Tasks.UpdateStatus(args.TaskID, to, args.AgentID, args.Notes)
		}
		if err != nil {
			toolErr = err
			return nil, taskUpdateStatusOutput{}, err
		}

		allowed := make([]string, 0)
		for _, st := range task.AllowedTransitions(tk.Status) {
			allowed = append(allowed, string(st))
		}

		out := taskUpdateStatusOutput{
			ID:           tk.ID,
			Status:       string(tk.Status),
			HistoryCount: len(tk.History),
			Allowed:      allowed,
		}
		return textResult("Task %s is now %s", tk.ID, tk.Status), out, nil
	})

	// task_list
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "task_list",
		Description: "List tracked tasks, optionally filtered by status",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args taskListInput) (*mcp.CallToolResult, taskListOutput, error) {
		done := s.instrument(ctx, "task_list")
		defer func() { done(nil) }()

		all := s.orch.Tasks.List()
		tasks := make([]task.Task, 0, len(all))
		for _, tk := range all {
			if args.Status != "" && string(tk.Status) != args.Status {
				continue
			}
			tasks = append(tasks, tk)
		}

		out := taskListOutput{Tasks: tasks, Count: len(tasks)}
		return textResult("%d tasks", out.Count), out, nil
	})
}
