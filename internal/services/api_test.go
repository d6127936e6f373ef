package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/shared"
	tu "github.com/desertthunder/videofetcher/internal/testing"
)

func quickClient(baseURL string, client *http.Client) *APIService {
	srv := NewAPIService(baseURL, client)
	srv.maxRetry = 50 * time.Millisecond
	return srv
}

// flakyTransport fails the first n round trips, then delegates.
type flakyTransport struct {
	failures int32
	calls    atomic.Int32
	next     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, errors.New("connection reset")
	}
	return f.next.RoundTrip(r)
}

func TestAPIService(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("With Custom BaseURL and Client", func(t *testing.T) {
			customClient := &http.Client{}
			srv := NewAPIService("http://example.com", customClient)

			if srv.baseURL != "http://example.com" {
				t.Errorf("expected baseURL 'http://example.com', got %s", srv.baseURL)
			}
			if srv.httpClient != customClient {
				t.Error("expected custom client to be used")
			}
		})

		t.Run("With Defaults", func(t *testing.T) {
			srv := NewAPIService("", nil)

			if srv.baseURL != "http://localhost:7860" {
				t.Errorf("expected default baseURL 'http://localhost:7860', got %s", srv.baseURL)
			}
			if srv.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("Successful Request With JSON Response", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET method, got %s", r.Method)
				}
				if got := r.Header.Get(OwnerHeader); got != "alice" {
					t.Errorf("expected owner header alice, got %q", got)
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil).WithOwner("alice")
			resp, err := srv.Get(context.Background(), "/health")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.StatusCode != http.StatusOK || !resp.IsJSON {
				t.Errorf("unexpected response: %+v", resp)
			}
		})

		t.Run("Non-JSON Response", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("plain text response"))
			}))
			defer server.Close()

			resp, err := NewAPIService(server.URL, nil).Get(context.Background(), "/x")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.IsJSON || resp.JSONData != nil {
				t.Error("expected response to not be JSON")
			}
			if string(resp.Body) != "plain text response" {
				t.Errorf("unexpected body %q", resp.Body)
			}
		})

		t.Run("Failed Request Creation", func(t *testing.T) {
			_, err := quickClient("http://example.com", nil).Get(context.Background(), "/test\x00invalid")
			if err == nil || !strings.Contains(err.Error(), "failed to create request") {
				t.Errorf("expected 'failed to create request' error, got %v", err)
			}
		})

		t.Run("Failed HTTP Request Gives Up", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed"))}
			_, err := quickClient("http://example.com", client).Get(context.Background(), "/test")
			if err == nil || !strings.Contains(err.Error(), "request failed") {
				t.Errorf("expected 'request failed' error, got %v", err)
			}
		})

		t.Run("Transient Failures Are Retried", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`[]`))
			}))
			defer server.Close()

			transport := &flakyTransport{failures: 2, next: http.DefaultTransport}
			srv := NewAPIService(server.URL, &http.Client{Transport: transport})
			if _, err := srv.Get(context.Background(), "/api/tasks"); err != nil {
				t.Fatalf("expected retry to succeed, got %v", err)
			}
			if n := transport.calls.Load(); n != 3 {
				t.Errorf("expected 3 attempts, got %d", n)
			}
		})

		t.Run("Failed Response Body Read", func(t *testing.T) {
			client := &http.Client{
				Transport: tu.NewMockRoundTripper(&http.Response{
					StatusCode: http.StatusOK,
					Body:       &tu.FCloser{},
					Header:     http.Header{},
				}, nil),
			}
			_, err := quickClient("http://example.com", client).Get(context.Background(), "/test")
			if err == nil || !strings.Contains(err.Error(), "failed to read response") {
				t.Errorf("expected 'failed to read response' error, got %v", err)
			}
		})

		t.Run("With Canceled Context", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			defer server.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			if _, err := NewAPIService(server.URL, nil).Get(ctx, "/test"); err == nil {
				t.Error("expected error for canceled context")
			}
		})
	})

	t.Run("Post", func(t *testing.T) {
		t.Run("Sends JSON", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST method, got %s", r.Method)
				}
				if r.Header.Get("Content-Type") != "application/json" {
					t.Errorf("expected Content-Type 'application/json', got %s", r.Header.Get("Content-Type"))
				}
				body, _ := io.ReadAll(r.Body)
				if string(body) != `{"test":"data"}` {
					t.Errorf("unexpected body %s", body)
				}
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(`{"id":"123"}`))
			}))
			defer server.Close()

			resp, err := NewAPIService(server.URL, nil).Post(context.Background(), "/test", []byte(`{"test":"data"}`))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.StatusCode != http.StatusCreated || !resp.IsJSON {
				t.Errorf("unexpected response: %+v", resp)
			}
		})

		t.Run("Failed HTTP Request", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed"))}
			_, err := NewAPIService("http://example.com", client).Post(context.Background(), "/test", []byte("data"))
			if err == nil || !strings.Contains(err.Error(), "request failed") {
				t.Errorf("expected 'request failed' error, got %v", err)
			}
		})
	})

	t.Run("APIResponse Err", func(t *testing.T) {
		tc := []struct {
			name    string
			status  int
			body    string
			wantErr string
		}{
			{name: "ok", status: 200, body: `{}`},
			{name: "server message", status: 400, body: `{"error":"no URLs provided"}`, wantErr: "no URLs provided"},
			{name: "bare status", status: 502, body: `bad gateway`, wantErr: "status 502"},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				err := (&APIResponse{StatusCode: tt.status, Body: []byte(tt.body)}).Err()
				if tt.wantErr == "" {
					if err != nil {
						t.Errorf("expected nil, got %v", err)
					}
					return
				}
				if !errors.Is(err, shared.ErrAPIRequest) || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Err() = %v, want %q", err, tt.wantErr)
				}
			})
		}
	})

	t.Run("Task Endpoints", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/tasks", func(w http.ResponseWriter, r *http.Request) {
			var req SubmitRequest
			json.NewDecoder(r.Body).Decode(&req)
			if len(req.URLs) != 2 || req.Quality != "720p" || !req.Options.AudioOnly {
				t.Errorf("unexpected submit body %+v", req)
			}
			json.NewEncoder(w).Encode(SubmitResponse{IDs: []string{"aaaa0001"}, Skipped: 1})
		})
		mux.HandleFunc("GET /api/tasks", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode([]models.TaskView{{ID: "aaaa0001", Status: models.StatusDownloading}})
		})
		mux.HandleFunc("GET /api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("id") != "aaaa0001" {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error":"task not found"}`))
				return
			}
			json.NewEncoder(w).Encode(models.TaskView{ID: "aaaa0001", Status: models.StatusCompleted})
		})
		mux.HandleFunc("POST /api/tasks/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(SubmitResponse{IDs: []string{r.PathValue("action")}})
		})
		mux.HandleFunc("DELETE /api/tasks", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(ClearResponse{Cleared: 4})
		})
		mux.HandleFunc("GET /download-all", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("PK\x03\x04zip"))
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		ctx := context.Background()
		srv := quickClient(server.URL, nil).WithOwner("alice")

		sub, err := srv.Submit(ctx, SubmitRequest{URLs: []string{"a", "b"}, Quality: "720p", Options: models.Options{AudioOnly: true}})
		if err != nil || sub.Skipped != 1 || len(sub.IDs) != 1 {
			t.Errorf("Submit() = %+v, %v", sub, err)
		}

		list, err := srv.ListTasks(ctx)
		if err != nil || len(list) != 1 || list[0].Status != models.StatusDownloading {
			t.Errorf("ListTasks() = %+v, %v", list, err)
		}

		task, err := srv.GetTask(ctx, "aaaa0001")
		if err != nil || task.Status != models.StatusCompleted {
			t.Errorf("GetTask() = %+v, %v", task, err)
		}
		if _, err := srv.GetTask(ctx, "missing"); err == nil || !strings.Contains(err.Error(), "task not found") {
			t.Errorf("expected not found error, got %v", err)
		}

		act, err := srv.TaskAction(ctx, "aaaa0001", "pause")
		if err != nil || act.IDs[0] != "pause" {
			t.Errorf("TaskAction() = %+v, %v", act, err)
		}

		cleared, err := srv.ClearTasks(ctx)
		if err != nil || cleared.Cleared != 4 {
			t.Errorf("ClearTasks() = %+v, %v", cleared, err)
		}

		var buf bytes.Buffer
		n, err := srv.DownloadBundle(ctx, &buf)
		if err != nil || n != int64(buf.Len()) || !strings.HasPrefix(buf.String(), "PK") {
			t.Errorf("DownloadBundle() = %d, %v", n, err)
		}
	})
}
