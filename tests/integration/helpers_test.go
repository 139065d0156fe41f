//go:build integration
// +build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// The suite runs against a live stack: the API, its configured store and
// the generator mock from examples/generator-mock. Tokens are minted here
// with the same shared secret the API verifies against.

type caller struct {
	ID    uuid.UUID
	Name  string
	Token string
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func baseURL() string {
	return envOrDefault("INTEGRATION_BASE_URL", "http://localhost:8080")
}

func newCaller(t *testing.T, name string) caller {
	t.Helper()

	id := uuid.New()
	claims := jwt.MapClaims{
		"sub":  id.String(),
		"mail": fmt.Sprintf("%s@example.com", name),
		"name": name,
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(envOrDefault("INTEGRATION_JWT_SECRET", "change-me")))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}

	return caller{ID: id, Name: name, Token: signed}
}

func makeAuthenticatedRequest(t *testing.T, method, url, token string, payload interface{}) *http.Response {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
}

func createSession(t *testing.T, owner caller, title string, count int) string {
	t.Helper()

	resp := makeAuthenticatedRequest(t, "POST", fmt.Sprintf("%s/v1/sessions", baseURL()), owner.Token,
		map[string]interface{}{"title": title, "question_count": count})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("create session: expected 201, got %d, error: %v", resp.StatusCode, errResp)
	}

	var out struct {
		SessionCode string `json:"session_code"`
	}
	decodeResponse(t, resp, &out)
	if out.SessionCode == "" {
		t.Fatal("empty session code in create response")
	}
	return out.SessionCode
}
