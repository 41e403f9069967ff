package gateway

import (
	"strings"

	"github.com/MrWong99/voxwidget/internal/config"
	"github.com/MrWong99/voxwidget/internal/conversation"
	"github.com/MrWong99/voxwidget/pkg/provider/llm"
)

// defaultPersona opens the system prompt when no persona is configured.
const defaultPersona = "You are the AI assistant of this website. Your job is to help visitors understand the services offered here and guide them to the right next step."

// Assistant holds the hot-reloadable prompt settings of a [Direct] gateway.
type Assistant struct {
	// Persona is the first line of the system prompt.
	Persona string

	// DefaultLanguage is the ISO 639-1 code used when detection fails.
	DefaultLanguage string

	Temperature float64
	MaxTokens   int
}

func (a Assistant) withDefaults() Assistant {
	if a.Persona == "" {
		a.Persona = defaultPersona
	}
	if _, ok := config.SupportedLanguages[a.DefaultLanguage]; !ok {
		a.DefaultLanguage = "pt"
	}
	if a.Temperature == 0 {
		a.Temperature = 0.8
	}
	if a.MaxTokens <= 0 {
		a.MaxTokens = 1000
	}
	return a
}

// languageName returns the English name of code, e.g. "Portuguese".
func languageName(code string) string {
	if name, ok := config.SupportedLanguages[code]; ok {
		return name
	}
	return config.SupportedLanguages["pt"]
}

// systemPrompt assembles persona, documents and the language rules.
func systemPrompt(a Assistant, docs Documents, language string) string {
	name := languageName(language)

	var b strings.Builder
	b.WriteString(a.Persona)
	b.WriteString("\n\n[INSTRUCTIONS]\n")
	b.WriteString(docs.Instructions)
	b.WriteString("\n\n[KNOWLEDGE BASE]\n")
	b.WriteString(docs.Knowledge)
	b.WriteString("\n\nIMPORTANT:\n")
	for _, rule := range []string{
		"The user's message is in " + name,
		"You MUST answer EXCLUSIVELY in " + name,
		"Do NOT answer in any language other than " + name,
		"Keep the language consistent throughout the conversation",
		"Be creative and original in your answers",
		"Use the tone and style defined in the instructions",
		"Incorporate relevant information from the knowledge base",
		"Never copy examples directly from the instructions",
		"Avoid starting your answers with greetings (hello, hi) or affirmations (sure, yes)",
		"Answer directly and naturally, as in a real conversation",
		"Keep your answers concise and to the point",
		"Use friendly, conversational language while staying professional",
		"Keep the context of the previous conversation to give relevant and coherent answers",
	} {
		b.WriteString("- ")
		b.WriteString(rule)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildMessages maps history oldest first and appends prompt as the final
// user message.
func buildMessages(history []conversation.Message, prompt string) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		role := "assistant"
		if m.Role == conversation.RoleUser {
			role = "user"
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return append(out, llm.Message{Role: "user", Content: prompt})
}
