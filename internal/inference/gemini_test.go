package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestGemini(url string) *Gemini {
	g := NewGemini("test-key", "")
	g.baseURL = url
	return g
}

func TestGeminiGenerateRequestShape(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "Transcripción Fiel: hola"}}}},
			},
		})
	}))
	defer srv.Close()

	g := newTestGemini(srv.URL)
	audio := []byte{0x49, 0x44, 0x33}
	text, err := g.Generate(context.Background(), Request{
		MIMEType:          "audio/mp3",
		Data:              audio,
		SystemInstruction: "instrucción",
		UserPrompt:        "transcribe",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "Transcripción Fiel: hola" {
		t.Errorf("text = %q", text)
	}

	if !strings.HasSuffix(gotPath, "/models/gemini-3-flash-preview:generateContent") {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if len(gotBody.Contents) != 1 || len(gotBody.Contents[0].Parts) != 2 {
		t.Fatalf("unexpected contents shape: %+v", gotBody)
	}
	inline := gotBody.Contents[0].Parts[0].InlineData
	if inline == nil {
		t.Fatal("first part has no inline_data")
	}
	if inline.MIMEType != "audio/mp3" {
		t.Errorf("inline mime = %q", inline.MIMEType)
	}
	if inline.Data != base64.StdEncoding.EncodeToString(audio) {
		t.Errorf("inline data = %q", inline.Data)
	}
	if gotBody.Contents[0].Parts[1].Text != "transcribe" {
		t.Errorf("prompt part = %q", gotBody.Contents[0].Parts[1].Text)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "instrucción" {
		t.Errorf("system_instruction = %+v", gotBody.SystemInstruction)
	}
}

func TestGeminiGenerateProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "quota exceeded"}})
	}))
	defer srv.Close()

	g := newTestGemini(srv.URL)
	_, err := g.Generate(context.Background(), Request{MIMEType: "audio/mp3", Data: []byte{1}})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v, want provider message", err)
	}
}

func TestGeminiGenerateEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	g := newTestGemini(srv.URL)
	_, err := g.Generate(context.Background(), Request{MIMEType: "audio/mp3", Data: []byte{1}})
	if err == nil {
		t.Error("expected error for empty candidates")
	}
}
