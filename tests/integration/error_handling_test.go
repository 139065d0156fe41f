//go:build integration
// +build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

func TestUnauthorizedAccess(t *testing.T) {
	resp := makeAuthenticatedRequest(t, "POST", fmt.Sprintf("%s/v1/sessions", baseURL()), "",
		map[string]interface{}{"title": "no token"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	var errResp map[string]interface{}
	decodeResponse(t, resp, &errResp)
	if errResp["error"] == nil {
		t.Fatal("error field is missing")
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	resp := makeAuthenticatedRequest(t, "POST", fmt.Sprintf("%s/v1/sessions", baseURL()), "not-a-token",
		map[string]interface{}{"title": "bad token"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	owner := newCaller(t, "owner")

	resp := makeAuthenticatedRequest(t, "POST", fmt.Sprintf("%s/v1/sessions", baseURL()), owner.Token,
		map[string]interface{}{"question_count": 5})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("expected 400, got %d, error: %v", resp.StatusCode, errResp)
	}

	var errResp map[string]interface{}
	decodeResponse(t, resp, &errResp)
	if errResp["error"] != "missing_field" {
		t.Fatalf("expected error code 'missing_field', got %v", errResp["error"])
	}
}

func TestUnknownSessionNotFound(t *testing.T) {
	player := newCaller(t, "player")

	resp := makeAuthenticatedRequest(t, "POST", fmt.Sprintf("%s/v1/sessions/ZZZZ99/join", baseURL()), player.Token, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	var errResp map[string]interface{}
	decodeResponse(t, resp, &errResp)
	if errResp["error"] != "session_not_found" {
		t.Fatalf("expected error code 'session_not_found', got %v", errResp["error"])
	}
}

func TestMalformedAnswersRejected(t *testing.T) {
	owner := newCaller(t, "owner")
	player := newCaller(t, "player")
	code := createSession(t, owner, "chemistry basics", 2)

	resp := makeAuthenticatedRequest(t, "POST", fmt.Sprintf("%s/v1/sessions/%s/answers", baseURL(), code), player.Token,
		map[string]interface{}{
			"answers": []map[string]interface{}{{"question_id": 0, "selected_option": "A"}},
		})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var errResp map[string]interface{}
	decodeResponse(t, resp, &errResp)
	if errResp["error"] != "malformed_answers" {
		t.Fatalf("expected error code 'malformed_answers', got %v", errResp["error"])
	}
}

func TestNonOwnerCannotProbeSession(t *testing.T) {
	owner := newCaller(t, "owner")
	intruder := newCaller(t, "intruder")
	code := createSession(t, owner, "greek mythology", 2)

	// Close and info are owner only; others read as not found.
	for _, target := range []string{
		fmt.Sprintf("%s/v1/sessions/%s/info", baseURL(), code),
		fmt.Sprintf("%s/v1/sessions/%s/analysis", baseURL(), code),
	} {
		resp := makeAuthenticatedRequest(t, "GET", target, intruder.Token, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404 for non-owner, got %d", target, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := makeAuthenticatedRequest(t, "POST", fmt.Sprintf("%s/v1/sessions/%s/close", baseURL(), code), intruder.Token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("close: expected 404 for non-owner, got %d", resp.StatusCode)
	}
}

func TestRejectedTopic(t *testing.T) {
	owner := newCaller(t, "owner")

	// The generator mock rejects topics containing "forbidden".
	resp := makeAuthenticatedRequest(t, "POST", fmt.Sprintf("%s/v1/sessions", baseURL()), owner.Token,
		map[string]interface{}{"title": "forbidden topic", "question_count": 2})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var errResp map[string]interface{}
	decodeResponse(t, resp, &errResp)
	if errResp["error"] != "content_rejected" {
		t.Fatalf("expected error code 'content_rejected', got %v", errResp["error"])
	}
}
