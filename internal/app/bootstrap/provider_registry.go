package bootstrap

import (
	"context"
	"io"

	"docqa/internal/adapter/provider/llm/gemini"
	"docqa/internal/adapter/provider/llm/openai"
	"docqa/internal/platform/config"
	applog "docqa/internal/platform/log"
	"docqa/internal/provider"
)

// RegisterLLMProviders 注册所有配置了 API Key 的生成模型供应商。
// 返回的 closers 需在退出时关闭。
func RegisterLLMProviders(ctx context.Context, cfg *config.AppConfig) ([]io.Closer, error) {
	var closers []io.Closer

	if cfg.OpenAI.APIKey != "" {
		p := openai.New(openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
		})
		provider.RegisterProvider(p)
		applog.Infof("✅ Registered LLM provider: %s (base: %s)", p.Name(), cfg.OpenAI.BaseURL)
	}

	if cfg.Gemini.APIKey != "" {
		p, err := gemini.New(ctx, gemini.Config{APIKey: cfg.Gemini.APIKey})
		if err != nil {
			return closers, err
		}
		provider.RegisterProvider(p)
		closers = append(closers, p)
		applog.Infof("✅ Registered LLM provider: %s", p.Name())
	}

	if len(provider.ListProviders()) == 0 {
		applog.Warn("⚠️  No LLM API key set, chat will not work")
	}
	return closers, nil
}
