// Package apitest runs an in-process fake of the claims backend, including the
// pre-signed storage endpoint, for tests across packages.
package apitest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"veritas/internal/api"
)

// BasePath is where the fake mounts the API, mirroring the hosted backend.
const BasePath = "/api/v1"

var signingKey = []byte("apitest-signing-key")

// Upload is one file the fake storage endpoint accepted.
type Upload struct {
	ClaimID  string
	Key      string
	Filename string
	Fields   map[string]string
	Content  []byte
}

// Query is one co-pilot question the fake received.
type Query struct {
	ClaimID string
	Request api.QueryRequest
}

// Analysis is what trigger-analysis writes onto a claim.
type Analysis struct {
	Score   int
	Summary string
	Factors []string
}

type account struct {
	user     api.User
	password string
}

type failure struct {
	status int
	detail string
}

// Server is a fake backend. The zero value is not usable; call NewServer.
type Server struct {
	*httptest.Server

	// Now stamps created_at/updated_at. Defaults to time.Now.
	Now func() time.Time
	// Analyze produces the analysis result for a claim. Defaults to a fixed high-risk report.
	Analyze func(api.Claim) Analysis
	// Answer produces co-pilot answers. Defaults to echoing the question.
	Answer func(claimID, query string) string
	// TokenTTL is the lifetime of issued tokens. Defaults to one hour.
	TokenTTL time.Duration

	mu          sync.Mutex
	accounts    map[string]*account // by email
	tokens      map[string]string   // token -> user id
	claims      map[string]*api.Claim
	order       []string
	uploads     []Upload
	queries     []Query
	failures    map[string][]failure
	badUploads  map[string]int
	nextID      int
	nextMessage int
	creates     []api.CreateClaimRequest
	analyses    []string
}

// NewServer starts a fake backend. Close it when done.
func NewServer() *Server {
	s := &Server{
		Now:        time.Now,
		TokenTTL:   time.Hour,
		accounts:   make(map[string]*account),
		tokens:     make(map[string]string),
		claims:     make(map[string]*api.Claim),
		failures:   make(map[string][]failure),
		badUploads: make(map[string]int),
		Analyze: func(api.Claim) Analysis {
			return Analysis{Score: 92, Summary: "Metadata inconsistent with the reported incident date.", Factors: []string{"a", "b"}}
		},
		Answer: func(_, query string) string { return "You asked: " + query },
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// BaseURL is the API root to hand to api.New.
func (s *Server) BaseURL() string { return s.URL + BasePath }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Route(BasePath, func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"message": "Veritas AI API"})
		})
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/token", s.handleToken)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Get("/claims/", s.handleListClaims)
			r.Post("/claims/", s.handleCreateClaim)
			r.Get("/claims/{claimID}", s.handleGetClaim)
			r.Post("/claims/{claimID}/trigger-analysis", s.handleTriggerAnalysis)
			r.Post("/investigate/{claimID}/start-conversation", s.handleStartConversation)
			r.Post("/investigate/{claimID}/query", s.handleQuery)
		})
	})
	r.Post("/storage/upload", s.handleStorageUpload)
	return r
}

// --- test controls ---

// FailNext makes the next call to the named operation fail with status and detail.
// Operations: signup, token, list, get, create, analyze, start, query.
func (s *Server) FailNext(op string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], failure{status: status, detail: detail})
}

// RejectUpload makes storage reject files with this name (status 403).
func (s *Server) RejectUpload(filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badUploads[filename] = http.StatusForbidden
}

// Register creates an account and returns its user id.
func (s *Server) Register(email, password, fullName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerLocked(email, password, fullName).user.ID
}

// IssueToken returns a valid bearer token for the account with this email.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[email]
	if !ok {
		acct = s.registerLocked(email, "password", "")
	}
	return s.issueLocked(acct.user.ID)
}

// SeedClaim stores a claim owned by the account with this email.
func (s *Server) SeedClaim(email string, c api.Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[email]
	if !ok {
		acct = s.registerLocked(email, "password", "")
	}
	c.AdjusterID = acct.user.ID
	if c.ID == "" {
		s.nextID++
		c.ID = fmt.Sprintf("CLM-%d", s.nextID)
	}
	s.claims[c.ID] = &c
	s.order = append(s.order, c.ID)
}

// Claim returns a copy of a stored claim.
func (s *Server) Claim(id string) (api.Claim, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return api.Claim{}, false
	}
	return *c, true
}

// Uploads returns every accepted upload in arrival order.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Queries returns every co-pilot query in arrival order.
func (s *Server) Queries() []Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Query(nil), s.queries...)
}

// Creates returns the bodies of every create-claim call.
func (s *Server) Creates() []api.CreateClaimRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.CreateClaimRequest(nil), s.creates...)
}

// Analyses returns the claim ids analysis was triggered for.
func (s *Server) Analyses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.analyses...)
}

func (s *Server) registerLocked(email, password, fullName string) *account {
	s.nextID++
	acct := &account{
		user:     api.User{ID: fmt.Sprintf("user-%d", s.nextID), Email: email, FullName: fullName},
		password: password,
	}
	s.accounts[email] = acct
	return acct
}

func (s *Server) issueLocked(userID string) string {
	now := s.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenTTL)),
		ID:        fmt.Sprintf("tok-%d", len(s.tokens)+1),
	})
	signed, err := tok.SignedString(signingKey)
	if err != nil {
		panic(fmt.Sprintf("apitest: sign token: %v", err))
	}
	s.tokens[signed] = userID
	return signed
}

// takeFailure pops a scheduled failure for op and writes it. It reports whether it did.
func (s *Server) takeFailure(w http.ResponseWriter, op string) bool {
	s.mu.Lock()
	queue := s.failures[op]
	if len(queue) == 0 {
		s.mu.Unlock()
		return false
	}
	f := queue[0]
	s.failures[op] = queue[1:]
	s.mu.Unlock()
	writeDetail(w, f.status, f.detail)
	return true
}

// --- handlers ---

type userKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		s.mu.Lock()
		userID, ok := s.tokens[token]
		s.mu.Unlock()
		if auth == "" || !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	})
}

func currentUser(r *http.Request) string {
	id, _ := r.Context().Value(userKey{}).(string)
	return id
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if s.takeFailure(w, "signup") {
		return
	}
	var in api.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" || in.Password == "" {
		writeValidation(w, "body", "field required")
		return
	}
	s.mu.Lock()
	if _, exists := s.accounts[in.Email]; exists {
		s.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "A user with this email already exists.")
		return
	}
	acct := s.registerLocked(in.Email, in.Password, in.FullName)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, acct.user)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.takeFailure(w, "token") {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeValidation(w, "body", "invalid form")
		return
	}
	email, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	s.mu.Lock()
	acct, ok := s.accounts[email]
	if !ok || acct.password != password {
		s.mu.Unlock()
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	token := s.issueLocked(acct.user.ID)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, api.Token{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	if s.takeFailure(w, "list") {
		return
	}
	user := currentUser(r)
	s.mu.Lock()
	out := make([]api.Claim, 0, len(s.order))
	for _, id := range s.order {
		if c := s.claims[id]; c.AdjusterID == user {
			out = append(out, *c)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) ownedClaim(r *http.Request) (*api.Claim, bool) {
	id := chi.URLParam(r, "claimID")
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok || c.AdjusterID != currentUser(r) {
		return nil, false
	}
	cp := *c
	return &cp, true
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	if s.takeFailure(w, "get") {
		return
	}
	c, ok := s.ownedClaim(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Claim not found.")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCreateClaim(w http.ResponseWriter, r *http.Request) {
	if s.takeFailure(w, "create") {
		return
	}
	var in api.CreateClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeValidation(w, "body", "invalid json")
		return
	}
	if in.FileCount <= 0 {
		writeValidation(w, "file_count", "ensure this value is greater than 0")
		return
	}

	s.mu.Lock()
	s.creates = append(s.creates, in)
	s.nextID++
	id := fmt.Sprintf("CLM-%d", s.nextID)
	now := api.Timestamp(s.Now().UTC())
	s.claims[id] = &api.Claim{
		ID:             id,
		AdjusterID:     currentUser(r),
		Status:         api.StatusUploadInProgress,
		AdditionalInfo: in.AdditionalInfo,
		FileCount:      in.FileCount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.order = append(s.order, id)
	s.mu.Unlock()

	targets := make([]api.UploadTarget, in.FileCount)
	for i := range targets {
		targets[i] = api.UploadTarget{
			URL: s.URL + "/storage/upload",
			Fields: map[string]string{
				"key":    fmt.Sprintf("claims/%s/file_%d", id, i),
				"policy": "eyJjb25kaXRpb25zIjpbXX0=",
			},
		}
	}
	writeJSON(w, http.StatusCreated, api.CreateClaimResponse{ClaimID: id, UploadTargets: targets})
}

func (s *Server) handleTriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.takeFailure(w, "analyze") {
		return
	}
	c, ok := s.ownedClaim(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Claim not found")
		return
	}
	result := s.Analyze(*c)

	s.mu.Lock()
	stored := s.claims[c.ID]
	score := result.Score
	stored.FraudRiskScore = &score
	stored.Summary = result.Summary
	stored.KeyRiskFactors = result.Factors
	stored.Status = api.StatusReadyForReview
	stored.UpdatedAt = api.Timestamp(s.Now().UTC())
	s.analyses = append(s.analyses, c.ID)
	out := *stored
	s.mu.Unlock()

	writeJSON(w, http.StatusAccepted, out)
}

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	if s.takeFailure(w, "start") {
		return
	}
	c, ok := s.ownedClaim(r)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Claim not found")
		return
	}
	s.mu.Lock()
	s.nextMessage++
	msgID := fmt.Sprintf("msg-%d", s.nextMessage)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, api.Conversation{
		ConversationID:  "conv-" + c.ID,
		SystemMessage:   "Context loaded for claim " + c.ID,
		SystemMessageID: msgID,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.takeFailure(w, "query") {
		return
	}
	var in api.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeValidation(w, "body", "invalid json")
		return
	}
	claimID := chi.URLParam(r, "claimID")
	s.mu.Lock()
	s.queries = append(s.queries, Query{ClaimID: claimID, Request: in})
	s.nextMessage++
	msgID := fmt.Sprintf("msg-%d", s.nextMessage)
	s.mu.Unlock()

	if in.ConversationID == "" || in.ParentMessageID == "" {
		writeValidation(w, "conversationId", "field required")
		return
	}
	writeJSON(w, http.StatusOK, api.QueryResponse{Answer: s.Answer(claimID, in.Query), SystemMessageID: msgID})
}

// handleStorageUpload mimics a pre-signed POST: policy fields must precede the file part.
func (s *Server) handleStorageUpload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expected multipart form", http.StatusBadRequest)
		return
	}
	up := Upload{Fields: make(map[string]string)}
	sawFile := false
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, "bad multipart body", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(part)
		if part.FormName() == "file" {
			sawFile = true
			up.Filename = part.FileName()
			up.Content = data
			continue
		}
		if sawFile {
			http.Error(w, "<Error><Code>InvalidArgument</Code><Message>fields must precede file</Message></Error>", http.StatusBadRequest)
			return
		}
		up.Fields[part.FormName()] = string(data)
	}
	if !sawFile {
		http.Error(w, "<Error><Code>InvalidArgument</Code><Message>missing file</Message></Error>", http.StatusBadRequest)
		return
	}
	up.Key = up.Fields["key"]
	if parts := strings.Split(up.Key, "/"); len(parts) >= 2 {
		up.ClaimID = parts[1]
	}

	s.mu.Lock()
	status, rejected := s.badUploads[up.Filename]
	if !rejected {
		s.uploads = append(s.uploads, up)
	}
	s.mu.Unlock()
	if rejected {
		http.Error(w, "<Error><Code>AccessDenied</Code></Error>", status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{"loc": []string{"body", field}, "msg": msg, "type": "value_error"}},
	})
}
