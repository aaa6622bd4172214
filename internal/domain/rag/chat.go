package rag

import (
	"context"

	applog "docqa/internal/platform/log"
	"docqa/internal/provider"
)

// ChatService 检索增强问答
type ChatService struct {
	retriever *Retriever
	llm       provider.LLMProvider
	model     string
}

// NewChatService 创建问答服务
func NewChatService(retriever *Retriever, llm provider.LLMProvider, model string) *ChatService {
	return &ChatService{
		retriever: retriever,
		llm:       llm,
		model:     model,
	}
}

// Answer 检索并流式生成回答
//
// 检索失败时直接返回错误，尚未产生任何输出；没有检索到片段时
// 流中只有 InsufficientContextAnswer，不调用模型。
func (s *ChatService) Answer(ctx context.Context, question string, fileIDs []string) (<-chan provider.CompletionChunk, <-chan error, error) {
	chunks, err := s.retriever.Retrieve(ctx, &RetrieveRequest{Query: question, FileIDs: fileIDs})
	if err != nil {
		return nil, nil, err
	}

	prompt, ok := ComposePrompt(question, chunks)
	if !ok {
		applog.Info("[RAG/Chat] No relevant context, refusing", "file_ids", len(fileIDs))
		chunkCh := make(chan provider.CompletionChunk, 1)
		errCh := make(chan error)
		chunkCh <- provider.CompletionChunk{Delta: InsufficientContextAnswer, FinishReason: "stop"}
		close(chunkCh)
		close(errCh)
		return chunkCh, errCh, nil
	}

	applog.Info("[RAG/Chat] Generating answer", "provider", s.llm.Name(), "model", s.model, "context_chunks", len(chunks))

	// 只发送当前问题，对话历史不参与生成
	chunkCh, errCh := s.llm.StreamComplete(ctx, &provider.CompletionRequest{
		Model:    s.model,
		Messages: []provider.Message{{Role: "user", Content: prompt}},
	})
	return chunkCh, errCh, nil
}
