package rag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedType 文件 MIME 类型不在支持列表中
	ErrUnsupportedType = errors.New("rag: unsupported file type")
	// ErrParse 文档文本提取失败
	ErrParse = errors.New("rag: parse failed")
	// ErrEmbedding 向量生成失败或结果不合法
	ErrEmbedding = errors.New("rag: embedding failed")
	// ErrStorage 持久化失败
	ErrStorage = errors.New("rag: storage failed")
	// ErrRetrieval 检索失败
	ErrRetrieval = errors.New("rag: retrieval failed")
	// ErrInvalidChunkConfig overlap >= chunkSize 等非法分块配置
	ErrInvalidChunkConfig = errors.New("rag: invalid chunk config")
	// ErrDocumentNotFound 文档不存在或已删除
	ErrDocumentNotFound = errors.New("rag: document not found")
	// ErrNotReindexable 只有 error 状态的文档可以重新入库
	ErrNotReindexable = errors.New("rag: document is not in error status")
)

// UnsupportedTypeError 携带被拒绝的 MIME 与支持列表
type UnsupportedTypeError struct {
	MimeType  string
	Supported []string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("%s: %q (supported: %s)", ErrUnsupportedType, e.MimeType, strings.Join(e.Supported, ", "))
}

// Is 让 errors.Is(err, ErrUnsupportedType) 成立
func (e *UnsupportedTypeError) Is(target error) bool {
	return target == ErrUnsupportedType
}
