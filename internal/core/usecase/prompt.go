package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

type PromptStyle string

const (
	PromptPlain  PromptStyle = "plain"
	PromptExpert PromptStyle = "expert"
)

const defaultPromptMaxLength = 6000

type PromptConfig struct {
	Style PromptStyle
	// MaxLength is the budget in characters for the whole prompt.
	MaxLength int
	// ContextChars caps each context excerpt; zero keeps full text.
	ContextChars int
	Role         string
}

func PlainPromptConfig(maxLength int) PromptConfig {
	return PromptConfig{Style: PromptPlain, MaxLength: maxLength, ContextChars: 300}
}

func ExpertPromptConfig(maxLength int) PromptConfig {
	return PromptConfig{Style: PromptExpert, MaxLength: maxLength, ContextChars: 500, Role: "medical expert"}
}

// PromptAssembler renders the question and ranked contexts into a single
// generation prompt that fits the configured length budget.
type PromptAssembler struct {
	cfg PromptConfig
}

func NewPromptAssembler(cfg PromptConfig) *PromptAssembler {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = defaultPromptMaxLength
	}
	if cfg.Style != PromptExpert {
		cfg.Style = PromptPlain
	}
	if cfg.Role == "" {
		cfg.Role = "domain expert"
	}
	return &PromptAssembler{cfg: cfg}
}

type promptContext struct {
	id    string
	text  string
	score float64
}

// Assemble drops the lowest-ranked contexts until the prompt fits. The
// question and the top-ranked context are never dropped; when they alone
// exceed the budget the top context text is shortened instead.
func (a *PromptAssembler) Assemble(question string, results []domain.RankedResult) domain.AssembledPrompt {
	question = strings.TrimSpace(question)
	contexts := make([]promptContext, 0, len(results))
	for _, r := range results {
		text := strings.TrimSpace(r.Document.Content)
		if a.cfg.ContextChars > 0 && utf8.RuneCountInString(text) > a.cfg.ContextChars {
			text = truncateRunes(text, a.cfg.ContextChars)
		}
		contexts = append(contexts, promptContext{id: r.DocumentID, text: text, score: r.RerankScore})
	}

	for k := len(contexts); k >= 1; k-- {
		text := a.render(question, contexts[:k])
		if utf8.RuneCountInString(text) <= a.cfg.MaxLength {
			return domain.AssembledPrompt{
				Text:        text,
				DocumentIDs: contextIDs(contexts[:k]),
				Truncated:   k < len(contexts),
			}
		}
	}

	if len(contexts) == 0 {
		return domain.AssembledPrompt{Text: a.render(question, nil), DocumentIDs: []string{}}
	}

	top := contexts[0]
	top.text = ""
	overhead := utf8.RuneCountInString(a.render(question, []promptContext{top}))
	allowed := a.cfg.MaxLength - overhead
	if allowed < 0 {
		allowed = 0
	}
	top.text = truncateRunes(contexts[0].text, allowed)
	return domain.AssembledPrompt{
		Text:        a.render(question, []promptContext{top}),
		DocumentIDs: []string{top.id},
		Truncated:   true,
	}
}

func (a *PromptAssembler) render(question string, contexts []promptContext) string {
	var b strings.Builder
	if a.cfg.Style == PromptExpert {
		fmt.Fprintf(&b, "You are a %s. Answer the question using only the provided literature.\n\n", a.cfg.Role)
		b.WriteString("Literature:\n")
		for i, c := range contexts {
			fmt.Fprintf(&b, "[%d] [Relevance: %.2f] %s\n", i+1, c.score, c.text)
		}
		b.WriteString("\nQuestion: ")
		b.WriteString(question)
		b.WriteString("\n\nInstructions:\n")
		b.WriteString("- Answer in 3-4 sentences.\n")
		b.WriteString("- Use the specific terms found in the literature.\n")
		b.WriteString("- If the literature does not contain the answer, say so.\n")
		b.WriteString("\nExpert Answer:")
		return b.String()
	}

	b.WriteString("Answer the question based on the context.\n\n")
	b.WriteString("Context:\n")
	for i, c := range contexts {
		fmt.Fprintf(&b, "Doc %d: %s\n", i+1, c.text)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

func contextIDs(contexts []promptContext) []string {
	out := make([]string, 0, len(contexts))
	for _, c := range contexts {
		out = append(out, c.id)
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
