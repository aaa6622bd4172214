package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

// genericFailure 对外统一的失败提示，与“信息不足”回答区分
const genericFailure = "something went wrong"

// ChatHandler 问答与检索 API
type ChatHandler struct {
	chat      *rag.ChatService
	retriever *rag.Retriever
	timeout   time.Duration
}

// NewChatHandler 创建问答处理器
func NewChatHandler(chat *rag.ChatService, retriever *rag.Retriever, timeout time.Duration) *ChatHandler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &ChatHandler{
		chat:      chat,
		retriever: retriever,
		timeout:   timeout,
	}
}

// RegisterRoutes 注册问答路由
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.Chat)
	r.Post("/search", h.Search)
}

type chatRequest struct {
	Messages        []rag.Message `json:"messages"`
	SelectedFileIDs []string      `json:"selectedFileIds"`
}

// Chat 检索增强问答，SSE 流式返回
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	question, ok := rag.QuestionFromMessages(req.Messages)
	if !ok || strings.TrimSpace(question) == "" {
		writeError(w, http.StatusBadRequest, "no user message found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	chunkCh, errCh, err := h.chat.Answer(ctx, question, req.SelectedFileIDs)
	if err != nil {
		applog.Error("[API] Chat retrieval failed", "error", err)
		writeError(w, http.StatusInternalServerError, genericFailure)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		cancel()
		for range chunkCh {
		}
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	start := time.Now()
	var sent int
	for chunk := range chunkCh {
		if chunk.Delta == "" {
			continue
		}
		sseWriteEvent(w, flusher, "message", map[string]string{"delta": chunk.Delta})
		sent += len(chunk.Delta)
	}

	err = <-errCh
	// 服务端超时截断的回答不能以 done 结束；客户端断开则无需再写
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && r.Context().Err() == nil {
		err = fmt.Errorf("chat timed out after %s", h.timeout)
	}
	if err != nil {
		applog.Error("[API] Chat generation failed", "error", err, "bytes_sent", sent)
		sseWriteEvent(w, flusher, "error", map[string]string{"error": genericFailure})
		return
	}

	sseWriteEvent(w, flusher, "done", map[string]interface{}{
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
}

// Search 直接返回检索结果，便于调试阈值与文件过滤
func (h *ChatHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h.retriever == nil {
		writeError(w, http.StatusServiceUnavailable, "retriever not configured")
		return
	}

	var req rag.RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	start := time.Now()
	chunks, err := h.retriever.Retrieve(r.Context(), &req)
	if err != nil {
		applog.Error("[API] Search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chunks":     chunks,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
}

// --- SSE 辅助 ---

func sseWriteEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, string(jsonData))
	flusher.Flush()
}
