package rag

import (
	"fmt"
	"regexp"
	"strings"
)

var reMultiNewlines = regexp.MustCompile(`\n{3,}`)

// Chunker 文档分块器
type Chunker struct {
	chunkSize int // 每块最大字符数
	overlap   int // 块间重叠字符数
}

// NewChunker 创建分块器，overlap 必须小于 chunkSize
func NewChunker(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk_size=%d overlap=%d", ErrInvalidChunkConfig, chunkSize, overlap)
	}
	return &Chunker{
		chunkSize: chunkSize,
		overlap:   overlap,
	}, nil
}

// Normalize 统一换行并压缩多余空行
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = reMultiNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Chunk 将文本切分为带重叠的片段
//
// 每块的终点优先落在后半段最后一个段落边界，其次是句子边界，
// 都没有时按 chunkSize 硬切。下一块从 end-overlap 开始；
// 某块到达文本末尾即结束，所以短于 overlap 的尾巴不会单独成块。
func (c *Chunker) Chunk(text string) []Chunk {
	runes := []rune(Normalize(text))
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.chunkSize {
		return []Chunk{{Index: 0, Text: string(runes), Start: 0, End: n}}
	}

	var chunks []Chunk
	start := 0
	for {
		end := start + c.chunkSize
		if end >= n {
			end = n
		} else {
			end = c.findBreak(runes, start, end)
		}

		if text := strings.TrimSpace(string(runes[start:end])); text != "" {
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Text:  text,
				Start: start,
				End:   end,
			})
		}
		if end >= n {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// findBreak 在 [start+chunkSize/2, end] 内寻找切分点
func (c *Chunker) findBreak(runes []rune, start, end int) int {
	mid := start + c.chunkSize/2

	for p := end - 2; p >= mid; p-- {
		if runes[p] == '\n' && runes[p+1] == '\n' {
			return p
		}
	}
	for p := end - 2; p >= mid; p-- {
		if isSentenceEnd(runes[p]) && runes[p+1] == ' ' {
			return p + 1
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
