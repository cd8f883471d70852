package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/bryanwahyu/medcoder/internal/domain/ai"
	"github.com/bryanwahyu/medcoder/internal/domain/coding"
	"github.com/bryanwahyu/medcoder/internal/domain/pipeline"
)

type capturedRequest struct {
	Model          string `json:"model"`
	ResponseFormat *struct {
		Type       string `json:"type"`
		JSONSchema *struct {
			Name   string          `json:"name"`
			Strict bool            `json:"strict"`
			Schema json.RawMessage `json:"schema"`
		} `json:"json_schema"`
	} `json:"response_format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func newServer(t *testing.T, status int, body string, got *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		if got != nil {
			_ = json.NewDecoder(r.Body).Decode(got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateFreeText(t *testing.T) {
	var got capturedRequest
	srv := newServer(t, http.StatusOK, completion(`["F32"]`), &got)
	c := NewClient("test-key", srv.URL, "", time.Second)

	out, err := c.Generate(context.Background(), coding.GenerateRequest{
		Name:        "icd10_parent_codes",
		Instruction: "list parents",
		Text:        "note",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `["F32"]` {
		t.Errorf("out = %q", out)
	}
	if got.Model != defaultModel || got.ResponseFormat != nil {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != "list parents" || !strings.Contains(got.Messages[1].Content, "Patient Report:\nnote") {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestGenerateStrictSchema(t *testing.T) {
	var got capturedRequest
	srv := newServer(t, http.StatusOK, completion(`{"icd10_codes":[]}`), &got)
	c := NewClient("test-key", srv.URL+"/", "gpt-4o", time.Second)

	schema := &jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: map[string]jsonschema.Definition{"icd10_codes": {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}}},
		Required:   []string{"icd10_codes"},
	}
	_, err := c.Generate(context.Background(), coding.GenerateRequest{
		Name:       "icd10_specified_codes",
		Text:       "note",
		Candidates: []string{"F32", "F41"},
		Schema:     schema,
	})
	if err != nil {
		t.Fatal(err)
	}
	rf := got.ResponseFormat
	if rf == nil || rf.Type != "json_schema" || rf.JSONSchema == nil {
		t.Fatalf("response_format = %+v", rf)
	}
	if rf.JSONSchema.Name != "icd10_specified_codes" || !rf.JSONSchema.Strict {
		t.Errorf("json_schema = %+v", rf.JSONSchema)
	}
	if !strings.Contains(string(rf.JSONSchema.Schema), `"icd10_codes"`) {
		t.Errorf("schema = %s", rf.JSONSchema.Schema)
	}
	if !strings.Contains(got.Messages[1].Content, "Provided Code List:\n[F32, F41]") {
		t.Errorf("user message = %q", got.Messages[1].Content)
	}
}

func TestGenerateErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		kind      error
		temporary bool
		quota     bool
	}{
		{"quota", http.StatusTooManyRequests, `{"error":{"message":"quota","type":"insufficient_quota","code":"insufficient_quota"}}`, pipeline.ErrTransport, true, true},
		{"auth", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, pipeline.ErrAuth, false, false},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"invalid schema","type":"invalid_request_error"}}`, pipeline.ErrTransport, false, false},
		{"server", http.StatusBadGateway, `{"error":{"message":"upstream","type":"server_error"}}`, pipeline.ErrTransport, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, tc.status, tc.body, nil)
			_, err := NewClient("test-key", srv.URL, "", time.Second).Generate(context.Background(), coding.GenerateRequest{Text: "x"})
			if !errors.Is(err, tc.kind) {
				t.Fatalf("err = %v, want kind %v", err, tc.kind)
			}
			if pipeline.IsTemporary(err) != tc.temporary {
				t.Errorf("temporary = %v", pipeline.IsTemporary(err))
			}
			if errors.Is(err, ai.ErrQuotaExceeded) != tc.quota {
				t.Errorf("quota = %v", errors.Is(err, ai.ErrQuotaExceeded))
			}
		})
	}
}

func TestGenerateNoChoices(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","choices":[]}`, nil)
	_, err := NewClient("test-key", srv.URL, "", time.Second).Generate(context.Background(), coding.GenerateRequest{Text: "x"})
	if !errors.Is(err, pipeline.ErrMalformedResponse) {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	_, err := NewClient("test-key", srv.URL, "", 30*time.Millisecond).Generate(context.Background(), coding.GenerateRequest{Text: "x"})
	if !errors.Is(err, pipeline.ErrTransport) || !pipeline.IsTemporary(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestIsReasoningModel(t *testing.T) {
	for model, want := range map[string]bool{"o3-mini": true, "gpt-5": true, "gpt-4o-mini": false} {
		if isReasoningModel(model) != want {
			t.Errorf("%s: want %v", model, want)
		}
	}
}
