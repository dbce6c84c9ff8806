package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
)

func fastBackOff() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty baseURL")
	}
	c, err := New("http://example.test/api/v1/")
	if err != nil {
		t.Fatal(err)
	}
	if c.BaseURL() != "http://example.test/api/v1" {
		t.Errorf("BaseURL = %q", c.BaseURL())
	}
}

func TestAuthenticatedCall_WithoutToken(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	client, _ := New(server.URL, WithHTTPClient(server.Client()))
	_, err := client.ListClaims(context.Background())
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Error("request should not have been sent")
	}
}

func TestDo_DetailString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Claim not found."})
	}))
	defer server.Close()

	client, _ := New(server.URL, WithHTTPClient(server.Client()), WithTokenSource(StaticToken("t")))
	_, err := client.GetClaim(context.Background(), "CLM-9")
	if !IsNotFound(err) {
		t.Fatalf("expected IsNotFound, got: %v", err)
	}
	if got := Detail(err); got != "Claim not found." {
		t.Errorf("Detail = %q", got)
	}
}

func TestDo_DetailValidationArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":[{"loc":["body","file_count"],"msg":"ensure this value is greater than 0"}]}`))
	}))
	defer server.Close()

	client, _ := New(server.URL, WithHTTPClient(server.Client()), WithTokenSource(StaticToken("t")))
	_, err := client.Query(context.Background(), "CLM-1", QueryRequest{Query: "why?"})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := Detail(err); got != "ensure this value is greater than 0" {
		t.Errorf("Detail = %q", got)
	}
}

func TestDo_PlainBodyFallsBackToStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, _ := New(server.URL, WithHTTPClient(server.Client()))
	_, err := client.Root(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Detail() != "502 Bad Gateway" || apiErr.Operation() != "get root" {
		t.Errorf("unexpected error: %v", apiErr)
	}
}

func TestRetry_GETRetriesServerErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client, _ := New(server.URL, WithHTTPClient(server.Client()), WithTokenSource(StaticToken("t")),
		WithRetries(3), WithBackOff(fastBackOff))
	claims, err := client.ListClaims(context.Background())
	if err != nil {
		t.Fatalf("ListClaims: %v", err)
	}
	if len(claims) != 0 || atomic.LoadInt32(&hits) != 3 {
		t.Errorf("claims=%v hits=%d", claims, hits)
	}
}

func TestRetry_ClientErrorsArePermanent(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Could not validate credentials"}`))
	}))
	defer server.Close()

	client, _ := New(server.URL, WithHTTPClient(server.Client()), WithTokenSource(StaticToken("t")),
		WithRetries(3), WithBackOff(fastBackOff))
	_, err := client.GetClaim(context.Background(), "CLM-1")
	if !IsUnauthorized(err) {
		t.Fatalf("expected IsUnauthorized, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected a single attempt, got %d", hits)
	}
}

func TestRetry_PostNeverRetried(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _ := New(server.URL, WithHTTPClient(server.Client()), WithTokenSource(StaticToken("t")),
		WithRetries(3), WithBackOff(fastBackOff))
	if _, err := client.TriggerAnalysis(context.Background(), "CLM-1"); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("POST attempted %d times", hits)
	}
}

func TestRetry_MalformedBodyIsPermanent(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"id": "CLM-1",`))
	}))
	defer server.Close()

	client, _ := New(server.URL, WithHTTPClient(server.Client()), WithTokenSource(StaticToken("t")),
		WithRetries(3), WithBackOff(fastBackOff))
	if _, err := client.GetClaim(context.Background(), "CLM-1"); err == nil {
		t.Fatal("expected decode error")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("malformed body retried: %d attempts", hits)
	}
}

func TestRetry_GETRetriesDroppedConnections(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err != nil {
				t.Errorf("hijack: %v", err)
				return
			}
			conn.Close()
			return
		}
		w.Write([]byte(`{"id":"CLM-1","status":"analyzed","fraud_risk_score":null}`))
	}))
	defer server.Close()

	client, _ := New(server.URL, WithHTTPClient(server.Client()), WithTokenSource(StaticToken("t")),
		WithRetries(2), WithBackOff(fastBackOff))
	c, err := client.GetClaim(context.Background(), "CLM-1")
	if err != nil {
		t.Fatalf("GetClaim: %v", err)
	}
	if c.ID != "CLM-1" || atomic.LoadInt32(&hits) != 2 {
		t.Errorf("claim=%+v hits=%d", c, hits)
	}
}

func TestNew_TimeoutDoesNotTouchCallerClient(t *testing.T) {
	shared := &http.Client{}
	c, err := New("http://example.test", WithHTTPClient(shared), WithTimeout(3*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if shared.Timeout != 0 {
		t.Errorf("caller's client timeout = %v, want 0", shared.Timeout)
	}
	if c.httpClient == shared || c.httpClient.Timeout != 3*time.Second {
		t.Errorf("client timeout = %v", c.httpClient.Timeout)
	}
}

func TestListClaims_NonArrayIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"no claims"}`))
	}))
	defer server.Close()

	client, _ := New(server.URL, WithHTTPClient(server.Client()), WithTokenSource(StaticToken("t")))
	claims, err := client.ListClaims(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if claims == nil || len(claims) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", claims)
	}
}

func TestTimestamp_Unmarshal(t *testing.T) {
	cases := map[string]time.Time{
		`"2025-08-01T12:30:00.123456"`: time.Date(2025, 8, 1, 12, 30, 0, 123456000, time.UTC),
		`"2025-08-01T12:30:00"`:        time.Date(2025, 8, 1, 12, 30, 0, 0, time.UTC),
		`"2025-08-01T12:30:00Z"`:       time.Date(2025, 8, 1, 12, 30, 0, 0, time.UTC),
	}
	for in, want := range cases {
		var ts Timestamp
		if err := json.Unmarshal([]byte(in), &ts); err != nil {
			t.Fatalf("Unmarshal(%s): %v", in, err)
		}
		if !ts.Time().Equal(want) {
			t.Errorf("Unmarshal(%s) = %v, want %v", in, ts.Time(), want)
		}
	}

	var ts Timestamp
	if err := json.Unmarshal([]byte(`null`), &ts); err != nil || !ts.IsZero() {
		t.Errorf("null should give zero timestamp, got %v (%v)", ts.Time(), err)
	}
	if err := json.Unmarshal([]byte(`"last tuesday"`), &ts); err == nil {
		t.Error("expected error for garbage timestamp")
	}
}

// onlyReader hides every method but Read.
type onlyReader struct{ io.Reader }

func TestUpload_ContentLengthMatchesBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashcam.mp4")
	if err := os.WriteFile(path, []byte(strings.Repeat("v", 70_000)), 0o644); err != nil {
		t.Fatal(err)
	}

	for name, open := range map[string]func(t *testing.T) io.Reader{
		"file": func(t *testing.T) io.Reader {
			f, err := os.Open(path)
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { f.Close() })
			return f
		},
		"stream": func(*testing.T) io.Reader {
			return onlyReader{strings.NewReader(strings.Repeat("v", 70_000))}
		},
	} {
		t.Run(name, func(t *testing.T) {
			var declared, received int64
			var fields []string
			var fileBytes int
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				declared = r.ContentLength
				body, _ := io.ReadAll(r.Body)
				received = int64(len(body))
				r.Body = io.NopCloser(strings.NewReader(string(body)))
				mr, err := r.MultipartReader()
				if err != nil {
					t.Errorf("multipart: %v", err)
					return
				}
				for {
					p, err := mr.NextPart()
					if err != nil {
						break
					}
					data, _ := io.ReadAll(p)
					fields = append(fields, p.FormName())
					if p.FormName() == "file" {
						fileBytes = len(data)
					}
				}
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			client, _ := New(server.URL, WithHTTPClient(server.Client()))
			target := UploadTarget{URL: server.URL, Fields: map[string]string{"key": "claims/CLM-1/file_0", "policy": "p"}}
			if err := client.Upload(context.Background(), target, "dashcam.mp4", open(t)); err != nil {
				t.Fatalf("Upload: %v", err)
			}
			if declared != received || declared <= 70_000 {
				t.Errorf("Content-Length = %d, body = %d bytes", declared, received)
			}
			if got := strings.Join(fields, ","); got != "key,policy,file" {
				t.Errorf("part order = %s", got)
			}
			if fileBytes != 70_000 {
				t.Errorf("file part = %d bytes, want 70000", fileBytes)
			}
		})
	}
}
