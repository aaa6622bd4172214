package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/provider"
)

func collect(t *testing.T, chunkCh <-chan provider.CompletionChunk, errCh <-chan error) (string, error) {
	t.Helper()
	var sb strings.Builder
	for c := range chunkCh {
		sb.WriteString(c.Delta)
	}
	return sb.String(), <-errCh
}

func TestStreamCompleteParsesSSE(t *testing.T) {
	var got apiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Refunds ", "take ", "30 days."} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	chunkCh, errCh := p.StreamComplete(context.Background(), &provider.CompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []provider.Message{{Role: "user", Content: "prompt"}},
	})

	text, err := collect(t, chunkCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, "Refunds take 30 days.", text)
	assert.True(t, got.Stream)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "prompt", got.Messages[0].Content)
}

func TestStreamCompleteReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL})
	chunkCh, errCh := p.StreamComplete(context.Background(), &provider.CompletionRequest{Model: "m"})

	text, err := collect(t, chunkCh, errCh)
	assert.Empty(t, text)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestStreamCompleteReportsMidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Refunds\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"model overloaded\",\"type\":\"server_error\"}}\n\n")
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL})
	chunkCh, errCh := p.StreamComplete(context.Background(), &provider.CompletionRequest{Model: "m"})

	text, err := collect(t, chunkCh, errCh)
	assert.Equal(t, "Refunds", text)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

// stalledServer 先输出一段内容，然后挂起直到客户端断开
func stalledServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Refunds are\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
}

func TestStreamCompleteSurfacesDeadline(t *testing.T) {
	srv := stalledServer()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	p := New(Config{BaseURL: srv.URL})
	chunkCh, errCh := p.StreamComplete(ctx, &provider.CompletionRequest{Model: "m"})

	text, err := collect(t, chunkCh, errCh)
	assert.Equal(t, "Refunds are", text)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamCompleteIsSilentOnCancel(t *testing.T) {
	srv := stalledServer()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := New(Config{BaseURL: srv.URL})
	chunkCh, errCh := p.StreamComplete(ctx, &provider.CompletionRequest{Model: "m"})

	first := <-chunkCh
	assert.Equal(t, "Refunds are", first.Delta)
	cancel()

	_, err := collect(t, chunkCh, errCh)
	assert.NoError(t, err)
}
