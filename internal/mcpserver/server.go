// Package mcpserver exposes claims and the investigation co-pilot as MCP
// tools, so an assistant in the editor can look up claims and ask questions
// with the adjuster's session.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"veritas/internal/api"
	"veritas/internal/copilot"
	"veritas/internal/dashboard"
	"veritas/internal/display"
	"veritas/internal/logging"
	"veritas/internal/risk"
)

// Backend is the part of the API client the tools call.
type Backend interface {
	copilot.Backend
	ListClaims(ctx context.Context) ([]api.Claim, error)
	GetClaim(ctx context.Context, claimID string) (*api.Claim, error)
}

// Server wraps the MCP SDK server and the per-claim conversations.
type Server struct {
	MCPServer *sdkmcp.Server

	backend Backend
	pool    *copilot.Pool
	now     func() time.Time
	log     *slog.Logger
}

// New creates a server with every tool registered. firstName personalizes the
// co-pilot greeting.
func New(backend Backend, firstName, version string) *Server {
	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{Name: "veritas", Version: version}, nil),
		backend:   backend,
		pool:      copilot.NewPool(backend, firstName),
		now:       time.Now,
		log:       logging.New("mcp"),
	}
	s.registerTools()
	return s
}

// Run serves over stdio until ctx is done or the parent process goes away.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	WatchParent(ctx, cancel, defaultWatchInterval)
	s.log.Info("starting veritas MCP server over stdio (parent watchdog active)")
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_claims",
		Description: "List the adjuster's claims with status, fraud risk score and risk level. Optionally filter by status or risk level.",
	}, s.handleListClaims)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_claim",
		Description: "Get one claim with its analysis summary and key risk factors.",
	}, s.handleGetClaim)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "ask_copilot",
		Description: "Ask the investigation co-pilot a question about a claim. Follow-up questions on the same claim continue the conversation.",
	}, s.handleAskCopilot)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "dashboard_summary",
		Description: "Totals for the adjuster's claims: pending uploads, high-risk claims, claims created today, and the five most recent.",
	}, s.handleDashboard)
}

// --- Tool input/output types ---

type claimView struct {
	ID             string   `json:"id"`
	Status         string   `json:"status"`
	StatusName     string   `json:"status_name"`
	Score          *int     `json:"fraud_risk_score,omitempty"`
	Risk           string   `json:"risk"`
	Badge          string   `json:"badge"`
	Summary        string   `json:"summary,omitempty"`
	KeyRiskFactors []string `json:"key_risk_factors,omitempty"`
	AdditionalInfo string   `json:"additional_info,omitempty"`
	FileCount      int      `json:"file_count"`
	CreatedAt      string   `json:"created_at,omitempty"`
}

func viewOf(c api.Claim) claimView {
	v := claimView{
		ID:             c.ID,
		Status:         string(c.Status),
		StatusName:     display.Status(string(c.Status)),
		Score:          c.FraudRiskScore,
		Risk:           risk.Of(c.FraudRiskScore).String(),
		Badge:          dashboard.Badge(c),
		Summary:        c.Summary,
		KeyRiskFactors: c.KeyRiskFactors,
		AdditionalInfo: c.AdditionalInfo,
		FileCount:      c.FileCount,
	}
	if !c.CreatedAt.IsZero() {
		v.CreatedAt = c.CreatedAt.Time().UTC().Format(time.RFC3339)
	}
	return v
}

type listClaimsInput struct {
	Status string `json:"status,omitempty" jsonschema:"only claims with this status code, e.g. ready_for_review"`
	Risk   string `json:"risk,omitempty" jsonschema:"only claims at this risk level: high, medium, low or pending"`
}

type listClaimsOutput struct {
	Claims []claimView `json:"claims"`
	Total  int         `json:"total"`
}

type getClaimInput struct {
	ClaimID string `json:"claim_id" jsonschema:"claim identifier"`
}

type askCopilotInput struct {
	ClaimID  string `json:"claim_id" jsonschema:"claim the question is about"`
	Question string `json:"question" jsonschema:"question for the investigation co-pilot"`
}

type askCopilotOutput struct {
	Answer          string `json:"answer"`
	ConversationID  string `json:"conversation_id"`
	ParentMessageID string `json:"parent_message_id"`
}

type dashboardInput struct{}

type dashboardOutput struct {
	Total          int         `json:"total"`
	Pending        int         `json:"pending"`
	HighRisk       int         `json:"high_risk"`
	ProcessedToday int         `json:"processed_today"`
	Recent         []claimView `json:"recent"`
}

// --- Tool handlers ---

func (s *Server) handleListClaims(ctx context.Context, _ *sdkmcp.CallToolRequest, input listClaimsInput) (*sdkmcp.CallToolResult, listClaimsOutput, error) {
	claims, err := s.backend.ListClaims(ctx)
	if err != nil {
		return nil, listClaimsOutput{}, toolError("list_claims", err)
	}
	out := listClaimsOutput{Claims: []claimView{}}
	for _, c := range claims {
		if input.Status != "" && string(c.Status) != input.Status {
			continue
		}
		if input.Risk != "" && !strings.EqualFold(risk.Of(c.FraudRiskScore).String(), input.Risk) {
			continue
		}
		out.Claims = append(out.Claims, viewOf(c))
	}
	out.Total = len(out.Claims)
	return nil, out, nil
}

func (s *Server) handleGetClaim(ctx context.Context, _ *sdkmcp.CallToolRequest, input getClaimInput) (*sdkmcp.CallToolResult, claimView, error) {
	if strings.TrimSpace(input.ClaimID) == "" {
		return nil, claimView{}, fmt.Errorf("claim_id is required")
	}
	c, err := s.backend.GetClaim(ctx, input.ClaimID)
	if err != nil {
		return nil, claimView{}, toolError("get_claim", err)
	}
	return nil, viewOf(*c), nil
}

func (s *Server) handleAskCopilot(ctx context.Context, _ *sdkmcp.CallToolRequest, input askCopilotInput) (*sdkmcp.CallToolResult, askCopilotOutput, error) {
	if strings.TrimSpace(input.ClaimID) == "" {
		return nil, askCopilotOutput{}, fmt.Errorf("claim_id is required")
	}
	conv := s.pool.For(input.ClaimID)
	reply, err := conv.Ask(ctx, input.Question)
	if err != nil {
		if reply.Sender == copilot.SenderError {
			return nil, askCopilotOutput{}, fmt.Errorf("ask_copilot: %s", reply.Text)
		}
		return nil, askCopilotOutput{}, fmt.Errorf("ask_copilot: %w", err)
	}
	convID, parentID := conv.IDs()
	return nil, askCopilotOutput{Answer: reply.Text, ConversationID: convID, ParentMessageID: parentID}, nil
}

func (s *Server) handleDashboard(ctx context.Context, _ *sdkmcp.CallToolRequest, _ dashboardInput) (*sdkmcp.CallToolResult, dashboardOutput, error) {
	claims, err := s.backend.ListClaims(ctx)
	if err != nil {
		return nil, dashboardOutput{}, toolError("dashboard_summary", err)
	}
	sum := dashboard.Summarize(claims, s.now())
	out := dashboardOutput{
		Total:          sum.Total,
		Pending:        sum.Pending,
		HighRisk:       sum.HighRisk,
		ProcessedToday: sum.ProcessedToday,
		Recent:         make([]claimView, len(sum.Recent)),
	}
	for i, c := range sum.Recent {
		out.Recent[i] = viewOf(c)
	}
	return nil, out, nil
}

// toolError turns an API failure into the message the tool caller sees.
func toolError(tool string, err error) error {
	switch {
	case api.IsUnauthorized(err), errors.Is(err, api.ErrNoSession):
		return fmt.Errorf("%s: session expired or missing, run `veritas login` first", tool)
	case api.IsNotFound(err), api.IsForbidden(err):
		return fmt.Errorf("%s: claim not found or not accessible", tool)
	}
	return fmt.Errorf("%s: %s", tool, api.Detail(err))
}
