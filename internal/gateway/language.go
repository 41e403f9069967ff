package gateway

import (
	"context"
	"strings"

	"github.com/MrWong99/voxwidget/internal/config"
	"github.com/MrWong99/voxwidget/internal/observe"
	"github.com/MrWong99/voxwidget/pkg/provider/llm"
	"github.com/MrWong99/voxwidget/pkg/provider/stt"
)

const detectorPrompt = "You are a language detector. Analyse the text and reply ONLY with its ISO 639-1 language code (for example 'pt' for Portuguese, 'en' for English, 'es' for Spanish). Do not include any other text in the reply."

// resolveLanguage returns the language the reply must be written in. A
// supported hint wins; otherwise the model is asked. Any failure yields the
// default language.
func (d *Direct) resolveLanguage(ctx context.Context, a Assistant, prompt, hint string) string {
	if code := supported(hint); code != "" {
		return code
	}

	req := llm.CompletionRequest{
		SystemPrompt: detectorPrompt,
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		Temperature:  0.3,
		MaxTokens:    10,
	}
	resp, err := invoke(ctx, d, kindLLM, d.llmBreaker, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return d.llm.Complete(ctx, req)
	})
	if err != nil {
		observe.Logger(ctx).Warn("gateway: language detection failed", "err", err, "default", a.DefaultLanguage)
		return a.DefaultLanguage
	}
	if resp == nil {
		return a.DefaultLanguage
	}
	if code := supported(parseLanguageCode(resp.Content)); code != "" {
		return code
	}
	observe.Logger(ctx).Debug("gateway: unsupported detected language", "reply", resp.Content)
	return a.DefaultLanguage
}

// supported normalizes label and returns it if it is a supported code.
func supported(label string) string {
	code := stt.NormalizeLanguage(label)
	if _, ok := config.SupportedLanguages[code]; ok {
		return code
	}
	return ""
}

// parseLanguageCode extracts the first word of a detector reply such as
// "'en'" or "pt.".
func parseLanguageCode(reply string) string {
	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '-' || r == '_')
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
