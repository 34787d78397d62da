package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/outreach/internal/sequence"
	"github.com/kalambet/outreach/internal/storage"
	"github.com/kalambet/outreach/internal/triage"
)

// ReplyClassifier labels a reply body.
type ReplyClassifier interface {
	Classify(ctx context.Context, body string) triage.Intent
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store           *storage.Store
	Enroller        *sequence.Enroller
	Sequences       sequence.Catalog
	DefaultSequence string
	Classifier      ReplyClassifier  // optional; if nil, classify_reply returns an error
	Now             func() time.Time // optional
}

func (d MCPDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// NewMCPServer creates an MCP server with the outreach tools and the
// status resource registered.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"outreach",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("outreach manages cold-email prospects and their follow-up sequences."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("add_prospect",
			mcp.WithDescription("Add a prospect. Existing prospects with the same id are returned unchanged."),
			mcp.WithString("email", mcp.Description("Prospect email address"), mcp.Required()),
			mcp.WithString("full_name", mcp.Description("First and last name")),
			mcp.WithString("title", mcp.Description("Job title")),
			mcp.WithString("company_name", mcp.Description("Company name")),
			mcp.WithString("company_domain", mcp.Description("Company website domain")),
			mcp.WithString("linkedin_url", mcp.Description("LinkedIn profile URL")),
		),
		mcpAddProspect(deps),
	)

	s.AddTool(
		mcp.NewTool("enroll_prospect",
			mcp.WithDescription("Enroll a prospect in a sequence. The first step is due immediately."),
			mcp.WithString("prospect_id", mcp.Description("Prospect id"), mcp.Required()),
			mcp.WithString("sequence_id", mcp.Description("Sequence id (defaults to the configured sequence)")),
		),
		mcpEnrollProspect(deps),
	)

	s.AddTool(
		mcp.NewTool("list_due_actions",
			mcp.WithDescription("List active enrollments whose next step is due now, oldest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpListDueActions(deps),
	)

	s.AddTool(
		mcp.NewTool("get_prospect",
			mcp.WithDescription("Look up a prospect and its enrollments by id or email."),
			mcp.WithString("prospect_id", mcp.Description("Prospect id")),
			mcp.WithString("email", mcp.Description("Prospect email, used when prospect_id is empty")),
		),
		mcpGetProspect(deps),
	)

	s.AddTool(
		mcp.NewTool("classify_reply",
			mcp.WithDescription("Classify the intent of a reply to an outreach email."),
			mcp.WithString("body", mcp.Description("Reply text"), mcp.Required()),
		),
		mcpClassifyReply(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"outreach://status",
			"Outreach Status",
			mcp.WithResourceDescription("Prospect count, enrollments by status and actions due now"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStatus(deps),
	)

	return s
}

func mcpAddProspect(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		email, err := req.RequireString("email")
		if err != nil {
			return mcpError("email is required"), nil
		}
		in := ProspectInput{
			Email:         email,
			FullName:      req.GetString("full_name", ""),
			Title:         req.GetString("title", ""),
			CompanyName:   req.GetString("company_name", ""),
			CompanyDomain: req.GetString("company_domain", ""),
			LinkedInURL:   req.GetString("linkedin_url", ""),
		}

		p, created, err := addProspect(deps.Store, in)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to add prospect: %v", err)), nil
		}
		if !created {
			return mcpText(fmt.Sprintf("Prospect %s already exists", p.ID)), nil
		}
		return mcpText(fmt.Sprintf("Added prospect %s", p.ID)), nil
	}
}

func mcpEnrollProspect(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("prospect_id")
		if err != nil {
			return mcpError("prospect_id is required"), nil
		}
		seq := req.GetString("sequence_id", deps.DefaultSequence)
		if _, ok := deps.Sequences[seq]; !ok {
			return mcpError(fmt.Sprintf("unknown sequence %q", seq)), nil
		}

		err = deps.Enroller.Enroll(ctx, id, seq)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("prospect %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("enroll failed: %v", err)), nil
		}

		e, err := deps.Store.GetEnrollmentFor(id, seq)
		if err != nil {
			return mcpError(fmt.Sprintf("enrolled but failed to load enrollment: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("%s is in %s at step %d (%s), next action %s",
			id, seq, e.CurrentStep, e.Status, e.NextActionAt.Format(time.RFC3339))), nil
	}
}

func mcpListDueActions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}

		due, err := deps.Store.GetDueActions(deps.now())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list due actions: %v", err)), nil
		}
		if len(due) > limit {
			due = due[:limit]
		}
		if len(due) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(due)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetProspect(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetString("prospect_id", "")
		email := req.GetString("email", "")

		var p storage.Prospect
		var err error
		switch {
		case id != "":
			p, err = deps.Store.GetProspect(id)
		case email != "":
			p, err = deps.Store.GetProspectByEmail(email)
		default:
			return mcpError("prospect_id or email is required"), nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("prospect not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		enrollments, err := deps.Store.ListEnrollments(p.ID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list enrollments: %v", err)), nil
		}
		if enrollments == nil {
			enrollments = []storage.Enrollment{}
		}
		b, err := json.Marshal(prospectDetail{Prospect: p, Enrollments: enrollments})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal prospect: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpClassifyReply(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Classifier == nil {
			return mcpError("classification not available: no model configured"), nil
		}
		body, err := req.RequireString("body")
		if err != nil {
			return mcpError("body is required"), nil
		}
		return mcpText(string(deps.Classifier.Classify(ctx, body))), nil
	}
}

func mcpResourceStatus(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st, err := BuildStatus(deps.Store, deps.now())
		if err != nil {
			return nil, fmt.Errorf("failed to build status: %w", err)
		}

		b, err := json.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
