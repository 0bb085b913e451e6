package reviewboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// tokenSourceFunc adapts a func to the TokenSource interface.
type tokenSourceFunc func(ctx context.Context) (string, error)

func (f tokenSourceFunc) AccessToken(ctx context.Context) (string, error) {
	return f(ctx)
}

func TestClientWithToken_SetsTokenHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "token api-token-1" {
			t.Errorf("Expected 'token api-token-1' header, got: %q", got)
		}
		fmt.Fprint(w, `{"review_requests": [], "total_results": 0}`)
	}))
	defer server.Close()

	client, err := NewClientWithToken(server.URL, "api-token-1")
	if err != nil {
		t.Fatalf("NewClientWithToken failed: %v", err)
	}

	if _, _, err := client.ListReviewRequests(context.Background(), ListOptions{}); err != nil {
		t.Fatalf("ListReviewRequests failed: %v", err)
	}
}

func TestClientWithManager_SetsBearerHeader(t *testing.T) {
	var tokensIssued atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer fresh-token" {
			t.Errorf("Expected 'Bearer fresh-token' header, got: %q", got)
		}
		fmt.Fprint(w, `{"review_requests": [], "total_results": 0}`)
	}))
	defer server.Close()

	src := tokenSourceFunc(func(context.Context) (string, error) {
		tokensIssued.Add(1)
		return "fresh-token", nil
	})

	client, err := NewClientWithManager(server.URL, src)
	if err != nil {
		t.Fatalf("NewClientWithManager failed: %v", err)
	}

	// The token is fetched fresh for every request, never cached in a header
	for i := 0; i < 3; i++ {
		if _, _, err := client.ListReviewRequests(context.Background(), ListOptions{}); err != nil {
			t.Fatalf("ListReviewRequests failed: %v", err)
		}
	}
	if tokensIssued.Load() != 3 {
		t.Errorf("Expected 3 token fetches for 3 requests, got %d", tokensIssued.Load())
	}
}

func TestClientWithManager_TokenFailureAbortsRequest(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	tokenErr := errors.New("token refresh failed; re-run rb-authorize if this persists")
	src := tokenSourceFunc(func(context.Context) (string, error) {
		return "", tokenErr
	})

	client, err := NewClientWithManager(server.URL, src)
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = client.ListReviewRequests(context.Background(), ListOptions{})
	if err == nil {
		t.Fatal("Expected an error when token retrieval fails")
	}
	if !strings.Contains(err.Error(), "rb-authorize") {
		t.Errorf("The manager's error should propagate to the caller, got: %v", err)
	}
	if requests.Load() != 0 {
		t.Errorf("Request must not be sent without a token, got %d requests", requests.Load())
	}
}

func TestListReviewRequests_QueryAndDecode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/review-requests/" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if got := q.Get("status"); got != "pending" {
			t.Errorf("Expected status=pending, got: %s", got)
		}
		if got := q.Get("from-user"); got != "alice" {
			t.Errorf("Expected from-user=alice, got: %s", got)
		}
		if got := q.Get("max-results"); got != "10" {
			t.Errorf("Expected max-results=10, got: %s", got)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"stat": "ok",
			"review_requests": []map[string]any{
				{"id": 42, "summary": "Fix the flux capacitor", "status": "pending"},
			},
			"total_results": 1,
		})
	}))
	defer server.Close()

	client, err := NewClientWithToken(server.URL, "tok")
	if err != nil {
		t.Fatal(err)
	}

	requests, total, err := client.ListReviewRequests(context.Background(), ListOptions{
		Status:     "pending",
		FromUser:   "alice",
		MaxResults: 10,
	})
	if err != nil {
		t.Fatalf("ListReviewRequests failed: %v", err)
	}

	if total != 1 || len(requests) != 1 {
		t.Fatalf("Expected 1 result, got %d (total %d)", len(requests), total)
	}
	if requests[0].ID != 42 || requests[0].Summary != "Fix the flux capacitor" {
		t.Errorf("Unexpected review request: %+v", requests[0])
	}
}

func TestGetReviewRequest_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"stat": "fail", "err": {"code": 100, "msg": "Object does not exist"}}`)
	}))
	defer server.Close()

	client, err := NewClientWithToken(server.URL, "tok")
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.GetReviewRequest(context.Background(), 999)
	if err == nil {
		t.Fatal("Expected an error for a missing review request")
	}
	if !strings.Contains(err.Error(), "Object does not exist") {
		t.Errorf("Error should carry the API error message, got: %v", err)
	}
}

func TestCreateReview_PostsForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got: %s", r.Method)
		}
		if r.URL.Path != "/api/review-requests/42/reviews/" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.FormValue("body_top"); got != "Looks good" {
			t.Errorf("Expected body_top, got: %q", got)
		}
		if got := r.FormValue("ship_it"); got != "true" {
			t.Errorf("Expected ship_it=true, got: %s", got)
		}
		if got := r.FormValue("public"); got != "false" {
			t.Errorf("Expected public=false, got: %s", got)
		}

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"stat": "ok", "review": {"id": 7, "body_top": "Looks good", "ship_it": true}}`)
	}))
	defer server.Close()

	client, err := NewClientWithToken(server.URL, "tok")
	if err != nil {
		t.Fatal(err)
	}

	review, err := client.CreateReview(context.Background(), 42, "Looks good", true, false)
	if err != nil {
		t.Fatalf("CreateReview failed: %v", err)
	}
	if review.ID != 7 || !review.ShipIt {
		t.Errorf("Unexpected review: %+v", review)
	}
}

func TestSearch_Decode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search/" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "capacitor" {
			t.Errorf("Expected q=capacitor, got: %s", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"stat": "ok",
			"search": map[string]any{
				"review_requests": []map[string]any{{"id": 42, "summary": "Fix the flux capacitor"}},
				"users":           []map[string]any{{"username": "alice", "fullname": "Alice"}},
			},
		})
	}))
	defer server.Close()

	client, err := NewClientWithToken(server.URL, "tok")
	if err != nil {
		t.Fatal(err)
	}

	result, err := client.Search(context.Background(), "capacitor", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(result.ReviewRequests) != 1 || len(result.Users) != 1 {
		t.Errorf("Unexpected search result: %+v", result)
	}
}
