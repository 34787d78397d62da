package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/outreach/internal/proxy"
)

var hookSchema = &Schema{
	Type: "object",
	Properties: map[string]SchemaProperty{
		"found": {Type: "boolean"},
		"hook":  {Type: "string"},
	},
	Required: []string{"found", "hook"},
}

func TestOllamaEngine_ChatPassesSchema(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"ok"}}`)
	}))
	defer srv.Close()

	out, err := NewOllamaEngine(srv.URL).Chat(context.Background(), "phi3.5",
		[]Message{{Role: "user", Content: "hi"}}, hookSchema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "ok" {
		t.Errorf("out = %q", out)
	}
	format, ok := body["format"].(map[string]any)
	if !ok {
		t.Fatalf("format = %v, want schema object", body["format"])
	}
	if format["type"] != "object" {
		t.Errorf("format.type = %v", format["type"])
	}
}

func TestOpenRouterEngine_ChatUsesJSONSchema(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"found\":false,\"hook\":\"\"}"}}]}`)
	}))
	defer srv.Close()

	e := NewOpenRouterEngine(proxy.NewClientWithBaseURL("k", srv.URL))
	out, err := e.Chat(context.Background(), "mistralai/mistral-nemo",
		[]Message{{Role: "user", Content: "hi"}}, hookSchema)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != `{"found":false,"hook":""}` {
		t.Errorf("out = %q", out)
	}
	rf, ok := body["response_format"].(map[string]any)
	if !ok || rf["type"] != "json_schema" {
		t.Errorf("response_format = %v", body["response_format"])
	}
}
