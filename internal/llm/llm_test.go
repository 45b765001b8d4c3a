package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare", in: `{"a":1}`, want: `{"a":1}`},
		{name: "json_fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "plain_fence", in: "```\n[1,2]\n```", want: `[1,2]`},
		{name: "whitespace", in: "  ```json\n{}\n```  ", want: `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripCodeFences(tc.in); got != tc.want {
				t.Fatalf("StripCodeFences = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractJSONTolerantOfProse(t *testing.T) {
	in := "Here is the result:\n```json\n{\"facts\": [{\"claim\": \"x {nested}\"}]}\n```\nLet me know."
	var out struct {
		Facts []struct {
			Claim string `json:"claim"`
		} `json:"facts"`
	}
	if err := UnmarshalResponse(in, &out); err != nil {
		t.Fatalf("UnmarshalResponse: %v", err)
	}
	if len(out.Facts) != 1 || out.Facts[0].Claim != "x {nested}" {
		t.Fatalf("parsed %+v", out)
	}
}

func TestExtractJSONHandlesBracesInStrings(t *testing.T) {
	in := `prefix {"text": "a } b", "n": 2} suffix`
	got := ExtractJSON(in)
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(got), &m); err != nil {
		t.Fatalf("extracted %q not valid JSON: %v", got, err)
	}
	if m["text"] != "a } b" {
		t.Fatalf("text = %v", m["text"])
	}
}

func TestMockClientScript(t *testing.T) {
	m := NewMockClient(`{"first":true}`, `{"second":true}`)

	got, err := m.Complete(context.Background(), "p1")
	if err != nil || got != `{"first":true}` {
		t.Fatalf("first call: %q %v", got, err)
	}
	got, _ = m.Complete(context.Background(), "p2")
	if got != `{"second":true}` {
		t.Fatalf("second call: %q", got)
	}
	// Script exhausted: last entry repeats.
	got, _ = m.Complete(context.Background(), "p3")
	if got != `{"second":true}` {
		t.Fatalf("third call: %q", got)
	}
	if calls := m.Calls(); len(calls) != 3 || calls[0].UserPrompt != "p1" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestMockClientFail(t *testing.T) {
	m := NewMockClient()
	wantErr := errors.New("backend down")
	m.Fail(wantErr)
	if _, err := m.Complete(context.Background(), "x"); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
}

func TestGeminiClientCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.SystemInstruction == nil || len(req.Contents) != 1 {
			t.Errorf("unexpected request shape: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "hello "}, {"text": "world"}},
				}},
			},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	}, nil)

	got, err := c.CompleteWithSystem(context.Background(), "be brief", "say hello")
	if err != nil {
		t.Fatalf("CompleteWithSystem: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestGeminiClientRetriesOn429(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "ok"}},
				}},
			},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient(GeminiConfig{APIKey: "k", BaseURL: srv.URL, Timeout: 30 * time.Second}, nil)

	got, err := c.Complete(context.Background(), "x")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "ok" || hits.Load() != 2 {
		t.Fatalf("got %q after %d hits", got, hits.Load())
	}
}

func TestGeminiClientRequiresKey(t *testing.T) {
	c := NewGeminiClient(GeminiConfig{}, nil)
	if _, err := c.Complete(context.Background(), "x"); err == nil {
		t.Fatal("expected error without API key")
	}
}
