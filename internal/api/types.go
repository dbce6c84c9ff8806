package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ClaimStatus is the server-owned lifecycle state of a claim.
// Values not listed here are preserved verbatim.
type ClaimStatus string

const (
	StatusUploadInProgress ClaimStatus = "upload_in_progress"
	StatusAnalyzing        ClaimStatus = "analyzing"
	StatusReadyForReview   ClaimStatus = "ready_for_review"
	StatusEscalated        ClaimStatus = "escalated"
	StatusAnalyzed         ClaimStatus = "analyzed"
)

// naiveLayouts are the timestamp shapes the backend emits without a zone.
// They are interpreted as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is a point in time serialized as an ISO 8601 string. On
// deserialization it accepts RFC 3339 and the zone-less form the backend
// writes for utcnow() values. Serialization always produces RFC 3339 UTC.
type Timestamp time.Time

// Time returns the underlying time.Time value.
func (t Timestamp) Time() time.Time { return time.Time(t) }

// IsZero reports whether the timestamp is unset.
func (t Timestamp) IsZero() bool { return time.Time(t).IsZero() }

// MarshalJSON serializes the timestamp as RFC 3339 in UTC.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON parses RFC 3339 or zone-less ISO 8601 strings.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshal timestamp: %w", err)
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*t = Timestamp(v)
		return nil
	}
	for _, layout := range naiveLayouts {
		if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*t = Timestamp(v)
			return nil
		}
	}
	return fmt.Errorf("unmarshal timestamp: unrecognized format %q", s)
}

// --- Auth ---

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// User is the account record returned by signup.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

// Token is the OAuth2 password-grant response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// --- Claims ---

// Claim is the server-held claim record. FraudRiskScore is nil until analysis has run.
type Claim struct {
	ID             string      `json:"id"`
	AdjusterID     string      `json:"adjuster_id,omitempty"`
	Status         ClaimStatus `json:"status"`
	Summary        string      `json:"summary,omitempty"`
	FraudRiskScore *int        `json:"fraud_risk_score"`
	KeyRiskFactors []string    `json:"key_risk_factors,omitempty"`
	AdditionalInfo string      `json:"additional_info,omitempty"`
	FileCount      int         `json:"file_count,omitempty"`
	CreatedAt      Timestamp   `json:"created_at"`
	UpdatedAt      Timestamp   `json:"updated_at"`
}

// CreateClaimRequest is the body of POST /claims/.
type CreateClaimRequest struct {
	FileCount      int    `json:"file_count"`
	AdditionalInfo string `json:"additional_info"`
}

// UploadTarget is a pre-signed destination for one file. Fields must be sent
// as form fields ahead of the file part; their order does not matter.
type UploadTarget struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// CreateClaimResponse carries the new claim id and one upload target per declared file.
type CreateClaimResponse struct {
	ClaimID       string         `json:"claim_id"`
	UploadTargets []UploadTarget `json:"upload_urls"`
}

// --- Investigation ---

// Conversation is the context returned by start-conversation.
type Conversation struct {
	ConversationID  string `json:"conversationId"`
	SystemMessage   string `json:"systemMessage"`
	SystemMessageID string `json:"systemMessageId"`
}

// QueryRequest asks a question, optionally continuing a conversation.
type QueryRequest struct {
	Query           string `json:"query"`
	ConversationID  string `json:"conversationId,omitempty"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
}

// QueryResponse is the co-pilot's answer and the id to use as the next parent.
type QueryResponse struct {
	Answer          string `json:"answer"`
	SystemMessageID string `json:"systemMessageId,omitempty"`
}

// errorRS is the FastAPI error envelope. Detail is a string for HTTPException
// and an array of objects for request validation failures.
type errorRS struct {
	Detail json.RawMessage `json:"detail"`
}

func (e errorRS) message() string {
	if len(e.Detail) == 0 || bytes.Equal(e.Detail, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(e.Detail, &s) == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(e.Detail, &items) == nil && len(items) > 0 && items[0].Msg != "" {
		return items[0].Msg
	}
	return string(e.Detail)
}
