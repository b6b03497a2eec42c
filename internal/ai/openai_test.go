package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jimdaga/food-journal/internal/retry"
)

var fastRetry = retry.Policy{
	MaxRetries:      2,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
}

// chatServer answers every chat completion with the given contents in turn
func chatServer(t *testing.T, calls *int32, contents ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		n := atomic.AddInt32(calls, 1)
		content := contents[len(contents)-1]
		if int(n) <= len(contents) {
			content = contents[n-1]
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
		})
	}))
}

func newTestClient(url string) *Client {
	return NewClient(OpenAIConfig{
		APIKey:  "test",
		BaseURL: url + "/v1",
		Model:   "test-model",
		Retry:   fastRetry,
	})
}

func TestExtractFoodsSendsSchema(t *testing.T) {
	var seen map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&seen)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"foods\":[\" 1 glass of milk \",\"  \",\"1 banana\"]}"}}]}`))
	}))
	defer server.Close()

	foods, err := newTestClient(server.URL).ExtractFoods(context.Background(), "milk and a banana")
	if err != nil {
		t.Fatalf("ExtractFoods: %v", err)
	}
	if len(foods) != 2 || foods[0] != "1 glass of milk" || foods[1] != "1 banana" {
		t.Errorf("unexpected foods %q", foods)
	}

	format, ok := seen["response_format"].(map[string]interface{})
	if !ok || format["type"] != "json_schema" {
		t.Fatalf("expected json_schema response format, got %v", seen["response_format"])
	}
	schema := format["json_schema"].(map[string]interface{})
	if schema["name"] != "listOfFoods" || schema["strict"] != true {
		t.Errorf("unexpected schema envelope %v", schema)
	}
	sent, _ := json.Marshal(schema["schema"])
	if strings.Contains(string(sent), "minLength") {
		t.Errorf("strict schema carries an unsupported keyword: %s", sent)
	}
}

func TestExtractSymptomsRetriesInvalidOutput(t *testing.T) {
	var calls int32
	server := chatServer(t, &calls, `not json`, `{"symptoms":["headache"]}`)
	defer server.Close()

	symptoms, err := newTestClient(server.URL).ExtractSymptoms(context.Background(), "I have a headache")
	if err != nil {
		t.Fatalf("ExtractSymptoms: %v", err)
	}
	if len(symptoms) != 1 || symptoms[0] != "headache" {
		t.Errorf("unexpected symptoms %q", symptoms)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestExtractServingsInvalidOutputExhaustsRetries(t *testing.T) {
	var calls int32
	server := chatServer(t, &calls, `{"servings":[{"foodGroup":"Dairy"}]}`)
	defer server.Close()

	_, err := newTestClient(server.URL).ExtractServings(context.Background(), "1 glass of milk", []string{"Dairy"})
	if !errors.Is(err, ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad schema","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ExtractFoods(context.Background(), "toast")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Good protein. Add greens."}}]}`))
	}))
	defer server.Close()

	text, err := newTestClient(server.URL).Feedback(context.Background(), FeedbackPrompt([]string{"1 egg"}))
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if text != "Good protein. Add greens." {
		t.Errorf("unexpected feedback %q", text)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestOpenAIImageGeneratorDecodes(t *testing.T) {
	want := []byte("\x89PNG fake")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"created": 1,
			"data":    []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(want)}},
		})
	}))
	defer server.Close()

	gen := NewOpenAIImageGenerator(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1", Retry: fastRetry}, "gpt-image-1", time.Second)
	got, err := gen.GenerateImage(context.Background(), DefaultImagePrompt("1 banana"))
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOpenAIImageGeneratorEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"created":1,"data":[]}`))
	}))
	defer server.Close()

	gen := NewOpenAIImageGenerator(OpenAIConfig{APIKey: "test", BaseURL: server.URL + "/v1", Retry: fastRetry}, "gpt-image-1", time.Second)
	if _, err := gen.GenerateImage(context.Background(), "toast"); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestDefaultImagePrompt(t *testing.T) {
	got := DefaultImagePrompt("1 cup of black coffee")
	if got != "1 cup of black coffee, white background, centered composition." {
		t.Errorf("unexpected prompt %q", got)
	}
}
