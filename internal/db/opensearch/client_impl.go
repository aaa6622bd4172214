package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docqa/internal/domain/rag"
	applog "docqa/internal/platform/log"
)

// Client OpenSearch HTTP 客户端，实现 rag.ChunkStore
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	indexName  string
}

// NewClient 创建 OpenSearch 客户端
func NewClient(cfg *rag.Config) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // 开发环境自签证书
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.OpenSearchURL, "/"),
		username: cfg.OpenSearchUsername,
		password: cfg.OpenSearchPassword,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		indexName: cfg.ChunkIndexName(),
	}
}

// chunkDocument 索引中的文档结构
type chunkDocument struct {
	ChunkID   string    `json:"chunk_id"`
	FileID    string    `json:"file_id"`
	Index     int       `json:"chunk_index"`
	Content   string    `json:"content"`
	Vector    []float32 `json:"vector"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// EnsureIndex 确保索引存在，如不存在则创建
func (c *Client) EnsureIndex(ctx context.Context, dims int) error {
	resp, err := c.doRequest(ctx, http.MethodHead, "/"+c.indexName, nil)
	if err != nil {
		return fmt.Errorf("check index existence: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		applog.Info("[RAG] Index already exists", "index", c.indexName)
		return nil
	}

	mapping := map[string]interface{}{
		"settings": map[string]interface{}{
			"index.knn": true,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"chunk_id":    map[string]string{"type": "keyword"},
				"file_id":     map[string]string{"type": "keyword"},
				"chunk_index": map[string]string{"type": "integer"},
				"content":     map[string]string{"type": "text"},
				"deleted":     map[string]string{"type": "boolean"},
				"created_at":  map[string]string{"type": "date"},
				"vector": map[string]interface{}{
					"type":      "knn_vector",
					"dimension": dims,
					"method": map[string]interface{}{
						"name":       "hnsw",
						"space_type": "cosinesimil",
						"engine":     "lucene",
					},
				},
			},
		},
	}

	body, _ := json.Marshal(mapping)
	resp, err = c.doRequest(ctx, http.MethodPut, "/"+c.indexName, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("create index failed (%d): %s", resp.StatusCode, string(respBody))
	}

	applog.Info("[RAG] Index created", "index", c.indexName, "dims", dims)
	return nil
}

// SaveChunks 批量写入分块；部分失败时回滚本批
func (c *Client) SaveChunks(ctx context.Context, chunks []rag.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	var buf bytes.Buffer
	ids := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		created := ch.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		action := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": c.indexName,
				"_id":    ch.ID,
			},
		}
		actionLine, _ := json.Marshal(action)
		buf.Write(actionLine)
		buf.WriteByte('\n')

		docLine, _ := json.Marshal(chunkDocument{
			ChunkID:   ch.ID,
			FileID:    ch.FileID,
			Index:     ch.Index,
			Content:   ch.Text,
			Vector:    ch.Embedding,
			CreatedAt: created,
		})
		buf.Write(docLine)
		buf.WriteByte('\n')
		ids = append(ids, ch.ID)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/_bulk?refresh=true", &buf)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bulk index failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &bulkResp); err != nil {
		return fmt.Errorf("parse bulk response: %w", err)
	}
	if bulkResp.Errors {
		if delErr := c.deleteByIDs(context.WithoutCancel(ctx), ids); delErr != nil {
			applog.Warn("[RAG] Bulk rollback failed", "error", delErr)
		}
		return fmt.Errorf("bulk index reported item errors")
	}

	applog.Info("[RAG] Bulk indexed", "count", len(chunks))
	return nil
}

// Search kNN 向量检索
func (c *Client) Search(ctx context.Context, q rag.VectorQuery) ([]rag.RetrievedChunk, error) {
	if q.Limit <= 0 {
		return nil, nil
	}

	filters := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"deleted": false}},
	}
	if len(q.FileIDs) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"file_id": q.FileIDs},
		})
	}

	query := map[string]interface{}{
		"size":    q.Limit,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
		"query": map[string]interface{}{
			"knn": map[string]interface{}{
				"vector": map[string]interface{}{
					"vector": q.Vector,
					"k":      q.Limit,
					"filter": map[string]interface{}{
						"bool": map[string]interface{}{"filter": filters},
					},
				},
			},
		},
	}

	return c.executeSearch(ctx, query, q)
}

// SoftDeleteByFile 把文件的所有分块标记为 deleted
func (c *Client) SoftDeleteByFile(ctx context.Context, fileID string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]string{"file_id": fileID},
		},
		"script": map[string]interface{}{
			"source": "ctx._source.deleted = true",
			"lang":   "painless",
		},
	}
	body, _ := json.Marshal(query)

	resp, err := c.doRequest(ctx, http.MethodPost, "/"+c.indexName+"/_update_by_query?refresh=true&conflicts=proceed", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("soft delete by file_id: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("soft delete failed (%d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (c *Client) deleteByIDs(ctx context.Context, ids []string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"ids": map[string]interface{}{"values": ids},
		},
	}
	body, _ := json.Marshal(query)

	resp, err := c.doRequest(ctx, http.MethodPost, "/"+c.indexName+"/_delete_by_query?refresh=true", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete by ids failed (%d)", resp.StatusCode)
	}
	return nil
}

// executeSearch 执行查询，把 lucene cosinesimil 得分 (1+cos)/2 换算回余弦相似度
func (c *Client) executeSearch(ctx context.Context, query map[string]interface{}, q rag.VectorQuery) ([]rag.RetrievedChunk, error) {
	body, _ := json.Marshal(query)
	resp, err := c.doRequest(ctx, http.MethodPost, "/"+c.indexName+"/_search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var osResp struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Score  float64         `json:"_score"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(respBody, &osResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	out := make([]rag.RetrievedChunk, 0, len(osResp.Hits.Hits))
	for _, hit := range osResp.Hits.Hits {
		sim := 2*hit.Score - 1
		if sim < q.Threshold {
			continue
		}

		var src chunkDocument
		if err := json.Unmarshal(hit.Source, &src); err != nil {
			applog.Warn("[RAG] Failed to parse hit source", "id", hit.ID, "error", err)
			continue
		}

		out = append(out, rag.RetrievedChunk{
			ChunkID:    hit.ID,
			FileID:     src.FileID,
			Index:      src.Index,
			Text:       src.Content,
			Similarity: sim,
		})
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Ping 检查 OpenSearch 连通性
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return fmt.Errorf("ping opensearch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("opensearch returned status %d", resp.StatusCode)
	}
	return nil
}

// doRequest 执行 HTTP 请求
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(path, "/_bulk") {
		req.Header.Set("Content-Type", "application/x-ndjson")
	} else {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	return c.httpClient.Do(req)
}
