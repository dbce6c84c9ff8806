package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// StartConversation opens a co-pilot conversation seeded with the claim's context.
func (c *Client) StartConversation(ctx context.Context, claimID string) (*Conversation, error) {
	if claimID == "" {
		return nil, fmt.Errorf("start conversation: claim id is required")
	}
	r := request{
		method:    http.MethodPost,
		path:      "/investigate/" + url.PathEscape(claimID) + "/start-conversation",
		operation: "start conversation",
		auth:      true,
	}
	var conv Conversation
	if err := c.do(ctx, r, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Query asks the co-pilot a question about a claim. Empty conversation and
// parent ids are omitted from the request body.
func (c *Client) Query(ctx context.Context, claimID string, q QueryRequest) (*QueryResponse, error) {
	if claimID == "" {
		return nil, fmt.Errorf("query: claim id is required")
	}
	r, err := jsonRequest(http.MethodPost, "/investigate/"+url.PathEscape(claimID)+"/query", "query", q, true)
	if err != nil {
		return nil, err
	}
	var out QueryResponse
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
