package unit

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"chat-relay/test/testhelpers"
)

// TestHealthEndpoint verifies the liveness route answers 200 with plain text.
func TestHealthEndpoint(t *testing.T) {
	stack := testhelpers.StartRelay(t)

	resp, err := http.Get(stack.Server.URL + "/")
	if err != nil {
		t.Fatalf("Failed to GET /: %v", err)
	}
	defer resp.Body.Close()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "text/plain")

	body, _ := io.ReadAll(resp.Body)
	if len(body) == 0 {
		t.Error("Expected a liveness message body")
	}
}

// TestWebSocketEndpointRejectsPost verifies non-GET requests to the
// WebSocket endpoint are refused.
func TestWebSocketEndpointRejectsPost(t *testing.T) {
	stack := testhelpers.StartRelay(t)

	resp, err := http.Post(stack.Server.URL+"/ws", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("Failed to POST /ws: %v", err)
	}
	defer resp.Body.Close()

	testhelpers.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
}

// TestWebSocketEndpointRejectsPlainGet verifies a GET without upgrade
// headers does not panic the handler.
func TestWebSocketEndpointRejectsPlainGet(t *testing.T) {
	stack := testhelpers.StartRelay(t)

	resp, err := http.Get(stack.Server.URL + "/ws")
	if err != nil {
		t.Fatalf("Failed to GET /ws: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		t.Errorf("Expected upgrade failure status, got %d", resp.StatusCode)
	}
}

// TestHistoryEmptyConversation verifies an unknown pair yields 200 with an
// empty JSON array, not a 404.
func TestHistoryEmptyConversation(t *testing.T) {
	stack := testhelpers.StartRelay(t)

	resp, err := http.Get(stack.Server.URL + "/messages/alice/bob")
	if err != nil {
		t.Fatalf("Failed to GET history: %v", err)
	}
	defer resp.Body.Close()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "application/json")

	var body []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Response is not a JSON array: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("Expected empty array, got %d elements", len(body))
	}
}

// TestHistoryStorageFault verifies a store failure surfaces as a 500 with a
// JSON error body.
func TestHistoryStorageFault(t *testing.T) {
	stack := testhelpers.StartRelay(t)
	if err := stack.DB.Close(); err != nil {
		t.Fatalf("Failed to close badger: %v", err)
	}

	resp, err := http.Get(stack.Server.URL + "/messages/alice/bob")
	if err != nil {
		t.Fatalf("Failed to GET history: %v", err)
	}
	defer resp.Body.Close()

	testhelpers.AssertStatusCode(t, resp, http.StatusInternalServerError)
	testhelpers.AssertContentType(t, resp, "application/json")

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Error body is not JSON: %v", err)
	}
	if body["error"] == "" {
		t.Error("Expected an error field in the response body")
	}
}

// TestUnknownRouteIs404 verifies paths outside the surface are not swallowed
// by the liveness handler.
func TestUnknownRouteIs404(t *testing.T) {
	stack := testhelpers.StartRelay(t)

	resp, err := http.Get(stack.Server.URL + "/nope")
	if err != nil {
		t.Fatalf("Failed to GET /nope: %v", err)
	}
	defer resp.Body.Close()

	testhelpers.AssertStatusCode(t, resp, http.StatusNotFound)
}
