package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

// multipart 头部与表单字段的额外开销
const multipartOverhead = 1 << 20

// extMimeTypes 浏览器未给出 Content-Type 时按扩展名推断
var extMimeTypes = map[string]string{
	".pdf":  rag.MimePDF,
	".docx": rag.MimeDOCX,
}

// FileHandler 文件上传、列表、删除与重新入库
type FileHandler struct {
	docs     rag.DocumentRepository
	blobs    rag.BlobStore
	indexer  *rag.Indexer
	maxBytes int64
}

// NewFileHandler 创建文件处理器
func NewFileHandler(docs rag.DocumentRepository, blobs rag.BlobStore, indexer *rag.Indexer, maxBytes int64) *FileHandler {
	return &FileHandler{
		docs:     docs,
		blobs:    blobs,
		indexer:  indexer,
		maxBytes: maxBytes,
	}
}

// RegisterRoutes 注册文件路由
func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Route("/files", func(r chi.Router) {
		r.Post("/", h.Upload)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Get("/{id}/content", h.Content)
		r.Post("/{id}/reindex", h.Reindex)
		r.Delete("/{id}", h.Delete)
	})
}

// Upload 上传并同步入库（multipart/form-data，字段 file）
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, "indexer not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, h.sizeLimitMessage())
			return
		}
		writeError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, h.sizeLimitMessage())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	result, err := h.indexer.IndexDocument(r.Context(), &rag.IndexRequest{
		Name:     header.Filename,
		MimeType: detectMimeType(header.Header.Get("Content-Type"), header.Filename),
		Data:     data,
	})

	var unsupported *rag.UnsupportedTypeError
	switch {
	case errors.As(err, &unsupported):
		writeErrorData(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported file type: %s", unsupported.MimeType),
			map[string]interface{}{"supported": unsupported.Supported})
	case result != nil:
		// 文档记录已存在，入库失败体现在 status/error 字段
		writeJSON(w, http.StatusCreated, result)
	case err != nil:
		applog.Error("[API] Upload failed", "name", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store file")
	}
}

// List 未删除的文档，按上传时间倒序
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.docs.ListDocuments(r.Context())
	if err != nil {
		applog.Error("[API] List documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []*rag.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Content 返回上传的原始文件
func (h *FileHandler) Content(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.lookup(w, r)
	if !ok {
		return
	}

	data, err := h.blobs.Get(r.Context(), doc.StorageKey)
	if err != nil {
		applog.Error("[API] Load blob failed", "doc_id", doc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load file content")
		return
	}
	if data == nil {
		writeError(w, http.StatusNotFound, "file content not found")
		return
	}

	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": doc.Name}))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Delete 幂等删除
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, "indexer not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.indexer.DeleteDocument(r.Context(), id); err != nil {
		applog.Error("[API] Delete failed", "doc_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Reindex 对 error 状态的文档重新入库
func (h *FileHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, "indexer not configured")
		return
	}

	id := chi.URLParam(r, "id")
	result, err := h.indexer.Reindex(r.Context(), id)
	switch {
	case errors.Is(err, rag.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, rag.ErrNotReindexable):
		writeError(w, http.StatusConflict, "only documents in error status can be reindexed")
	case result != nil:
		writeJSON(w, http.StatusOK, result)
	case err != nil:
		applog.Error("[API] Reindex failed", "doc_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reindex document")
	}
}

func (h *FileHandler) lookup(w http.ResponseWriter, r *http.Request) (*rag.Document, bool) {
	id := chi.URLParam(r, "id")
	doc, err := h.docs.GetDocument(r.Context(), id)
	if err != nil {
		applog.Error("[API] Get document failed", "doc_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get document")
		return nil, false
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found")
		return nil, false
	}
	return doc, true
}

func (h *FileHandler) sizeLimitMessage() string {
	return fmt.Sprintf("file size exceeds limit (%dMB)", h.maxBytes>>20)
}

// detectMimeType 优先使用 part 的 Content-Type，缺失或为通用二进制类型时按扩展名推断
func detectMimeType(contentType, filename string) string {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	if mt, ok := extMimeTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return contentType
}
