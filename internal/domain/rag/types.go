package rag

import (
	"fmt"
	"time"
)

// FileType 支持的文件类型
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// mimeTypes MIME → FileType 查找表，新增格式只需在此登记并注册 Parser
var mimeTypes = map[string]FileType{
	MimePDF:  FileTypePDF,
	MimeDOCX: FileTypeDOCX,
}

// FileTypeFromMIME 根据 MIME 查找文件类型
func FileTypeFromMIME(mime string) (FileType, error) {
	if ft, ok := mimeTypes[mime]; ok {
		return ft, nil
	}
	return "", &UnsupportedTypeError{MimeType: mime, Supported: SupportedMimeTypes()}
}

// SupportedMimeTypes 返回支持的 MIME 列表（稳定顺序）
func SupportedMimeTypes() []string {
	return []string{MimePDF, MimeDOCX}
}

// DocumentStatus 文档处理状态
type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusError      DocumentStatus = "error"
)

// Document 上传文件的元数据
type Document struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	MimeType   string         `json:"mime_type"`
	FileType   FileType       `json:"file_type"`
	Status     DocumentStatus `json:"status"`
	ChunkCount int            `json:"chunk_count"`
	Size       int64          `json:"size"`
	StorageKey string         `json:"storage_key"`
	Error      string         `json:"error,omitempty"`
	UploadedAt time.Time      `json:"uploaded_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  *time.Time     `json:"deleted_at,omitempty"`
}

// Chunk 分块器输出的文本片段
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"start"` // 规范化文本中的 rune 偏移
	End   int    `json:"end"`
}

// ChunkRecord 持久化的分块，创建后不可变
type ChunkRecord struct {
	ID        string    `json:"id"`
	FileID    string    `json:"file_id"`
	Index     int       `json:"chunk_index"`
	Text      string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChunkID 生成分块 ID
func ChunkID(fileID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", fileID, index)
}

// RetrieveRequest 检索请求
type RetrieveRequest struct {
	Query     string   `json:"query"`
	FileIDs   []string `json:"file_ids,omitempty"`
	Threshold float64  `json:"threshold,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

// RetrievedChunk 单条检索结果
type RetrievedChunk struct {
	ChunkID    string  `json:"chunk_id"`
	FileID     string  `json:"file_id"`
	Index      int     `json:"chunk_index"`
	Text       string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// VectorQuery 向量存储的相似度查询
type VectorQuery struct {
	Vector    []float32
	Threshold float64
	Limit     int
	FileIDs   []string
}

// IndexRequest 文档入库请求
type IndexRequest struct {
	DocumentID string `json:"document_id,omitempty"`
	Name       string `json:"name"`
	MimeType   string `json:"mime_type"`
	Data       []byte `json:"-"`
}

// IndexResult 入库结果
type IndexResult struct {
	DocumentID string         `json:"id"`
	Name       string         `json:"name"`
	ChunkCount int            `json:"chunks_count"`
	Status     DocumentStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
}
