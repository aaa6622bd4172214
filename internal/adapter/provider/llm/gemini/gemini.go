package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"docqa/internal/provider"
)

// Config Gemini API 配置
type Config struct {
	APIKey string `json:"api_key"`
}

// Provider Google Gemini LLM Provider
type Provider struct {
	client *genai.Client
}

// New 创建 Gemini Provider
func New(ctx context.Context, config Config) (*Provider, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string {
	return "gemini"
}

// Close 释放底层连接
func (p *Provider) Close() error {
	return p.client.Close()
}

// StreamComplete 流式补全，system 消息映射为 SystemInstruction
func (p *Provider) StreamComplete(ctx context.Context, req *provider.CompletionRequest) (<-chan provider.CompletionChunk, <-chan error) {
	chunkCh := make(chan provider.CompletionChunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)
		defer close(errCh)

		model := p.client.GenerativeModel(req.Model)
		if req.Temperature > 0 {
			model.SetTemperature(float32(req.Temperature))
		}
		if req.MaxTokens > 0 {
			model.SetMaxOutputTokens(int32(req.MaxTokens))
		}
		if req.TopP > 0 {
			model.SetTopP(float32(req.TopP))
		}
		if len(req.Stop) > 0 {
			model.StopSequences = req.Stop
		}

		var parts []genai.Part
		for _, m := range req.Messages {
			if m.Role == "system" {
				model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}}
				continue
			}
			parts = append(parts, genai.Text(m.Content))
		}
		if len(parts) == 0 {
			errCh <- errors.New("no user content in request")
			return
		}

		iter := model.GenerateContentStream(ctx, parts...)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				if err = provider.StreamError(ctx, err); err != nil {
					errCh <- fmt.Errorf("gemini stream: %w", err)
				}
				return
			}

			chunk := provider.CompletionChunk{Delta: responseText(resp)}
			if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonStop {
				chunk.FinishReason = "stop"
			}
			if chunk.Delta == "" && chunk.FinishReason == "" {
				continue
			}
			select {
			case chunkCh <- chunk:
			case <-ctx.Done():
				if err := provider.StreamError(ctx, nil); err != nil {
					errCh <- fmt.Errorf("gemini stream: %w", err)
				}
				return
			}
		}
	}()

	return chunkCh, errCh
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}
