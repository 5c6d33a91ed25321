package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIClient_GetDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"state": "routing"})
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, http: srv.Client()}
	var out map[string]string
	if err := c.get("/api/models/foo/info", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out["state"] != "routing" {
		t.Errorf("state = %q, want routing", out["state"])
	}
}

func TestAPIClient_ErrorResponseUnwrapsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "model \"foo\" is not in the catalogue"},
		})
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, http: srv.Client()}
	err := c.get("/api/models/foo/info", &struct{}{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Error() != `model "foo" is not in the catalogue` {
		t.Errorf("error = %q", err.Error())
	}
}

func TestAPIClient_NoContentLeavesOutUntouched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, http: srv.Client()}
	if err := c.post("/api/billing/models/foo/pricing/set/hourly", nil, nil); err != nil {
		t.Fatalf("post: %v", err)
	}
}

func TestAPIClient_Delete(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, http: srv.Client()}
	if err := c.delete("/api/billing/models/foo/pricing/tier/0"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %q, want DELETE", gotMethod)
	}
}
