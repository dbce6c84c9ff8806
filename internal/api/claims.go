package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ListClaims returns the caller's claims. A body that is not a JSON array is
// treated as an empty list, matching how the dashboard tolerated it.
func (c *Client) ListClaims(ctx context.Context) ([]Claim, error) {
	var raw json.RawMessage
	r := request{method: http.MethodGet, path: "/claims/", operation: "list claims", auth: true}
	if err := c.do(ctx, r, &raw); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		c.logger.WarnContext(ctx, "claim list was not an array", "bytes", len(trimmed))
		return []Claim{}, nil
	}
	var claims []Claim
	if err := json.Unmarshal(trimmed, &claims); err != nil {
		return nil, fmt.Errorf("list claims: decode response: %w", err)
	}
	return claims, nil
}

// GetClaim fetches one claim by id.
func (c *Client) GetClaim(ctx context.Context, claimID string) (*Claim, error) {
	if claimID == "" {
		return nil, fmt.Errorf("get claim: claim id is required")
	}
	r := request{method: http.MethodGet, path: "/claims/" + url.PathEscape(claimID), operation: "get claim", auth: true}
	var claim Claim
	if err := c.do(ctx, r, &claim); err != nil {
		return nil, err
	}
	return &claim, nil
}

// CreateClaim creates a claim record and returns one upload target per declared file.
func (c *Client) CreateClaim(ctx context.Context, in CreateClaimRequest) (*CreateClaimResponse, error) {
	if in.FileCount <= 0 {
		return nil, fmt.Errorf("create claim: file count must be positive, got %d", in.FileCount)
	}
	r, err := jsonRequest(http.MethodPost, "/claims/", "create claim", in, true)
	if err != nil {
		return nil, err
	}
	var out CreateClaimResponse
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TriggerAnalysis runs the remote fraud analysis and returns the updated claim
// carrying score, summary, and risk factors. The call blocks until the backend
// finishes, which can take a while.
func (c *Client) TriggerAnalysis(ctx context.Context, claimID string) (*Claim, error) {
	if claimID == "" {
		return nil, fmt.Errorf("trigger analysis: claim id is required")
	}
	r := request{
		method:    http.MethodPost,
		path:      "/claims/" + url.PathEscape(claimID) + "/trigger-analysis",
		operation: "trigger analysis",
		auth:      true,
	}
	var claim Claim
	if err := c.do(ctx, r, &claim); err != nil {
		return nil, err
	}
	return &claim, nil
}
