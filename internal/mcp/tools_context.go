package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/orchestrd/internal/orcerr"
)

// Context scopes. Session context lives in the session's context memory,
// workflow context is the preserved execution snapshot, and global context is
// keyed free-form state shared across everything.
const (
	scopeSession  = "session"
	scopeWorkflow = "workflow"
	scopeGlobal   = "global"
)

type contextSaveInput struct {
	Scope string `json:"scope" jsonschema:"required,One of session workflow or global"`
	ID    string `json:"id,omitempty" jsonschema:"Session or workflow ID (unused for global scope)"`
	Key   string `json:"key,omitempty" jsonschema:"Context key (unused for workflow scope)"`
	Value any    `json:"value" jsonschema:"required,Arbitrary JSON value to preserve"`
}

type contextSaveOutput struct {
	Saved bool `json:"saved" jsonschema:"True when the value was stored"`
}

type contextRestoreInput struct {
	Scope string `json:"scope" jsonschema:"required,One of session workflow or global"`
	ID    string `json:"id,omitempty" jsonschema:"Session or workflow ID (unused for global scope)"`
	Key   string `json:"key,omitempty" jsonschema:"Context key (unused for workflow scope)"`
}

type contextRestoreOutput struct {
	Found bool `json:"found" jsonschema:"True when a value exists"`
	Value any  `json:"value,omitempty" jsonschema:"The preserved value"`
}

func (s *Server) registerContextTools() {
	// context_save
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_save",
		Description: "Preserve a value in session, workflow, or global context",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args contextSaveInput) (*mcp.CallToolResult, contextSaveOutput, error) {
		done := s.instrument(ctx, "context_save")
		var toolErr error
		defer func() { done(toolErr) }()

		var err error
		switch args.Scope {
		case scopeSession:
			err = s.orch.Sessions.SaveContext(args.ID, args.Key, args.Value)
		case scopeWorkflow:
			err = s.orch.Preserved.SaveExecutionContext(args.ID, args.Value)
		case scopeGlobal:
			err = s.orch.Preserved.SaveGlobalContext(args.Key, args.Value)
		default:
			err = orcerr.Newf(orcerr.CodeInvalidInput, "unknown context scope %q", args.Scope).
				With("field", "scope")
		}
		if err != nil {
			toolErr = err
			return nil, contextSaveOutput{}, err
		}
		return textResult("Context saved (%s scope)", args.Scope), contextSaveOutput{Saved: true}, nil
	})

	// context_restore
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_restore",
		Description: "Restore a previously preserved context value",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args contextRestoreInput) (*mcp.CallToolResult, contextRestoreOutput, error) {
		done := s.instrument(ctx, "context_restore")
		var toolErr error
		defer func() { done(toolErr) }()

		var raw json.RawMessage
		var found bool
		switch args.Scope {
		case scopeSession:
			raw, found = s.orch.Sessions.GetContext(args.ID, args.Key)
		case scopeWorkflow:
			raw, found = s.orch.Preserved.RestoreExecutionContext(args.ID)
		case scopeGlobal:
			raw, found = s.orch.Preserved.RestoreGlobalContext(args.Key)
		default:
			toolErr = orcerr.Newf(orcerr.CodeInvalidInput, "unknown context scope %q", args.Scope).
				With("field", "scope")
			return nil, contextRestoreOutput{}, toolErr
		}

		if !found {
			return textResult("No preserved context"), contextRestoreOutput{Found: false}, nil
		}

		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			toolErr = orcerr.Wrap(orcerr.CodeOperationFailed, "preserved context is unreadable", err)
			return nil, contextRestoreOutput{}, toolErr
		}
		return textResult("Context restored (%s scope)", args.Scope),
			contextRestoreOutput{Found: true, Value: value}, nil
	})
}
