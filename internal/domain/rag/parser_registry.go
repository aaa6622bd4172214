package rag

import (
	"fmt"
	"sync"
)

// ParserRegistry 文档解析器注册表
type ParserRegistry struct {
	mu      sync.RWMutex
	parsers map[FileType]Parser
}

// NewParserRegistry 创建解析器注册表并注册内置解析器
func NewParserRegistry() *ParserRegistry {
	r := &ParserRegistry{
		parsers: make(map[FileType]Parser),
	}

	r.Register(&PDFParser{})
	r.Register(&DOCXParser{})

	return r
}

// Register 注册解析器，同类型后注册的覆盖先注册的
func (r *ParserRegistry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[p.FileType()] = p
}

// Get 根据文件类型获取解析器
func (r *ParserRegistry) Get(ft FileType) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.parsers[ft]
	if !ok {
		return nil, fmt.Errorf("%w: no parser for %q", ErrUnsupportedType, ft)
	}
	return p, nil
}

// Extract 解析文档为纯文本，失败统一包装为 ErrParse
func (r *ParserRegistry) Extract(data []byte, ft FileType) (string, error) {
	p, err := r.Get(ft)
	if err != nil {
		return "", err
	}
	text, err := p.Parse(data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrParse, ft, err)
	}
	return text, nil
}
