package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/orchestrd/internal/session"
)

type sessionCreateInput struct {
	Description string `json:"description" jsonschema:"required,What this session is for"`
	SessionID   string `json:"session_id,omitempty" jsonschema:"Explicit session ID (generated when omitted)"`
	Activate    bool   `json:"activate,omitempty" jsonschema:"Make this the active session immediately"`
}

type sessionCreateOutput struct {
	SessionID   string    `json:"session_id" jsonschema:"Session ID"`
	Description string    `json:"description" jsonschema:"Session description"`
	CreatedAt   time.Time `json:"created_at" jsonschema:"Creation time"`
	IsActive    bool      `json:"is_active" jsonschema:"Whether the session is now active"`
}

type sessionActivateInput struct {
	SessionID string `json:"session_id" jsonschema:"required,Session to activate"`
}

type sessionActivateOutput struct {
	SessionID string `json:"session_id" jsonschema:"Now-active session ID"`
}

type sessionGetActiveInput struct{}

type sessionGetActiveOutput struct {
	Found       bool      `json:"found" jsonschema:"False when no session is active"`
	SessionID   string    `json:"session_id,omitempty" jsonschema:"Active session ID"`
	Description string    `json:"description,omitempty" jsonschema:"Session description"`
	WorkflowIDs []string  `json:"workflow_ids,omitempty" jsonschema:"Workflows linked to the session"`
	CreatedAt   time.Time `json:"created_at,omitzero" jsonschema:"Creation time"`
}

type sessionStatsInput struct{}

type sessionCleanupInput struct {
	MaxAgeHours int `json:"max_age_hours,omitempty" jsonschema:"Remove inactive sessions older than this (default from config)"`
}

type sessionCleanupOutput struct {
	Removed []string `json:"removed" jsonschema:"IDs of removed sessions"`
	Count   int      `json:"count" jsonschema:"Number of sessions removed"`
}

func (s *Server) registerSessionTools() {
	// session_create
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_create",
		Description: "Create an isolated session, optionally activating it",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionCreateInput) (*mcp.CallToolResult, sessionCreateOutput, error) {
		done := s.instrument(ctx, "session_create")
		var toolErr error
		defer func() { done(toolErr) }()

		id := args.SessionID
		if id == "" {
			id = session.NewID()
		}

		sess, err := s.orch.Sessions.Create(args.Description, id)
		if err != nil {
			toolErr = err
			return nil, sessionCreateOutput{}, err
		}

		if args.Activate {
			if err := s.orch.Sessions.Activate(sess.ID); err != nil {
				toolErr = err
				return nil, sessionCreateOutput{}, err
			}
			sess.IsActive = true
		}

		out := sessionCreateOutput{
			SessionID:   sess.ID,
			Description: sess.Description,
			CreatedAt:   sess.CreatedAt,
			IsActive:    sess.IsActive,
		}
		return textResult("Session created: %s", sess.ID), out, nil
	})

	// session_activate
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_activate",
		Description: "Make a session the single active one, deactivating any other",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionActivateInput) (*mcp.CallToolResult, sessionActivateOutput, error) {
		done := s.instrument(ctx, "session_activate")
		var toolErr error
		defer func() { done(toolErr) }()

		if err := s.orch.Sessions.Activate(args.SessionID); err != nil {
			toolErr = err
			return nil, sessionActivateOutput{}, err
		}
		return textResult("Session %s activated", args.SessionID),
			sessionActivateOutput{SessionID: args.SessionID}, nil
	})

	// session_get_active
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_get_active",
		Description: "Return the currently active session, if any",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionGetActiveInput) (*mcp.CallToolResult, sessionGetActiveOutput, error) {
		done := s.instrument(ctx, "session_get_active")
		defer func() { done(nil) }()

		active, ok := s.orch.Sessions.Active()
		if !ok {
			return textResult("No active session"), sessionGetActiveOutput{Found: false}, nil
		}

		out := sessionGetActiveOutput{
			Found:       true,
			SessionID:   active.ID,
			Description: active.Description,
			WorkflowIDs: active.WorkflowIDs,
			CreatedAt:   active.CreatedAt,
		}
		return textResult("Active session: %s", active.ID), out, nil
	})

	// session_stats
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_stats",
		Description: "Summarize the session population",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionStatsInput) (*mcp.CallToolResult, session.Stats, error) {
		done := s.instrument(ctx, "session_stats")
		defer func() { done(nil) }()

		stats := s.orch.Sessions.Stats()
		return textResult("%d sessions (%d active)", stats.TotalSessions, stats.ActiveSessions), stats, nil
	})

	// session_cleanup
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "session_cleanup",
		Description: "Remove inactive sessions older than a cutoff; the active session is never removed",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args sessionCleanupInput) (*mcp.CallToolResult, sessionCleanupOutput, error) {
		done := s.instrument(ctx, "session_cleanup")
		defer func() { done(nil) }()

		hours := args.MaxAgeHours
		if hours <= 0 {
			hours = 24
		}

		removed := s.orch.Sessions.CleanupInactive(time.Duration(hours) * time.Hour)
		out := sessionCleanupOutput{Removed: removed, Count: len(removed)}
		return textResult("Removed %d inactive sessions", out.Count), out, nil
	})
}
