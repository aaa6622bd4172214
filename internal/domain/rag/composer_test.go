package rag_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain/rag"
)

func TestInsufficientContextAnswerIsExact(t *testing.T) {
	assert.Equal(t, "I don't have enough information in the documents.", rag.InsufficientContextAnswer)
}

func TestComposePromptWithoutChunks(t *testing.T) {
	prompt, ok := rag.ComposePrompt("What is the refund window?", nil)
	assert.False(t, ok)
	assert.Empty(t, prompt)
}

func TestComposePromptKeepsRankedOrder(t *testing.T) {
	chunks := []rag.RetrievedChunk{
		{Text: "Refunds are issued within 30 days.", Similarity: 0.9},
		{Text: "Shipping is free.", Similarity: 0.6},
	}

	prompt, ok := rag.ComposePrompt("What is the refund window?", chunks)
	require.True(t, ok)

	assert.Contains(t, prompt, "Refunds are issued within 30 days."+rag.ContextDelimiter+"Shipping is free.")
	assert.True(t, strings.HasSuffix(prompt, "User question: What is the refund window?"))
	assert.Contains(t, prompt, `"`+rag.InsufficientContextAnswer+`"`)
	assert.Contains(t, prompt, "ONLY the information explicitly present in the Context section")
	assert.Less(t, strings.Index(prompt, "Context:\n---\n"), strings.Index(prompt, "Refunds are issued"))
}

func TestQuestionFromMessages(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{
			name:   "string content",
			body:   `[{"role":"user","content":"first"},{"role":"assistant","content":"hi"},{"role":"user","content":"What is the refund window?"}]`,
			want:   "What is the refund window?",
			wantOK: true,
		},
		{
			name:   "text parts are joined",
			body:   `[{"role":"user","parts":[{"type":"text","text":"What is"},{"type":"file","text":"ignored"},{"type":"text","text":"the refund window?"}]}]`,
			want:   "What is the refund window?",
			wantOK: true,
		},
		{
			name:   "content array",
			body:   `[{"role":"user","content":[{"type":"text","text":"hello"}]}]`,
			want:   "hello",
			wantOK: true,
		},
		{
			name:   "last message from assistant",
			body:   `[{"role":"user","content":"question"},{"role":"assistant","content":"answer"}]`,
			want:   "question",
			wantOK: true,
		},
		{
			name:   "no user message",
			body:   `[{"role":"assistant","content":"answer"}]`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msgs []rag.Message
			require.NoError(t, json.Unmarshal([]byte(tt.body), &msgs))

			got, ok := rag.QuestionFromMessages(msgs)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMessageRejectsNumericContent(t *testing.T) {
	var m rag.Message
	assert.Error(t, json.Unmarshal([]byte(`{"role":"user","content":42}`), &m))
}
