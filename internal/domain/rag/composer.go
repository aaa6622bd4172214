package rag

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// InsufficientContextAnswer 无可用上下文时的固定回答，客户端按原文匹配
const InsufficientContextAnswer = "I don't have enough information in the documents."

// ContextDelimiter 拼接检索片段的分隔符
const ContextDelimiter = "\n\n---\n\n"

const promptTemplate = `You are a question-answering assistant.

You MUST answer the user's question using ONLY the information explicitly present in the Context section.

STRICT RULES:
- If the Context is empty, irrelevant, or does NOT contain the answer, you MUST respond with exactly:
"%s"
- Do NOT use general knowledge.
- Do NOT infer or assume.
- Do NOT rely on the conversation history for factual answers.
- If you break these rules, your answer is incorrect.
- You are NOT allowed to answer partially.
- You are NOT allowed to rephrase or summarize if the exact answer is not present.

Context:
---
%s
---

User question: %s`

// ComposePrompt 用检索片段构造生成提示词
//
// chunks 为空时返回 ok=false，调用方应直接输出 InsufficientContextAnswer，不调用模型。
func ComposePrompt(question string, chunks []RetrievedChunk) (string, bool) {
	if len(chunks) == 0 {
		return "", false
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return fmt.Sprintf(promptTemplate, InsufficientContextAnswer, strings.Join(texts, ContextDelimiter), question), true
}

// ── 对话消息 ─────────────────────────────────────────────────

// MessagePart UI 消息片段
type MessagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message 客户端对话消息，content 可以是字符串或片段数组
type Message struct {
	Role    string        `json:"role"`
	Content string        `json:"-"`
	Parts   []MessagePart `json:"parts,omitempty"`
}

// UnmarshalJSON 兼容 {"content": "..."} 与 {"content": [{"type":"text",...}]}
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
		Parts   []MessagePart   `json:"parts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	m.Parts = raw.Parts
	m.Content = ""

	content := bytes.TrimSpace(raw.Content)
	switch {
	case len(content) == 0 || bytes.Equal(content, []byte("null")):
	case content[0] == '"':
		if err := json.Unmarshal(content, &m.Content); err != nil {
			return err
		}
	case content[0] == '[':
		var parts []MessagePart
		if err := json.Unmarshal(content, &parts); err != nil {
			return err
		}
		m.Parts = append(m.Parts, parts...)
	default:
		return fmt.Errorf("unsupported message content: %s", content)
	}
	return nil
}

// Text 返回消息文本，字符串内容优先，否则用空格拼接 text 片段
func (m Message) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

// QuestionFromMessages 取最后一条用户消息的文本
func QuestionFromMessages(messages []Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Text(), true
		}
	}
	return "", false
}
