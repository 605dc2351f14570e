package usecase

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type synonymRule struct {
	term     string
	synonyms []string
}

// SynonymTable maps domain terms to substitutes. Rules are applied in order.
type SynonymTable struct {
	rules          []synonymRule
	maxPerTerm     int
	reformulations bool
}

// MedicalSynonyms is the default table for the medical literature corpus.
func MedicalSynonyms() SynonymTable {
	return SynonymTable{
		maxPerTerm:     2,
		reformulations: true,
		rules: []synonymRule{
			{term: "diabetes", synonyms: []string{"diabetes mellitus", "T2DM", "diabetic"}},
			{term: "vaccine", synonyms: []string{"vaccination", "immunization", "inoculation"}},
			{term: "cancer", synonyms: []string{"tumor", "neoplasm", "malignancy", "carcinoma"}},
			{term: "immunotherapy", synonyms: []string{"immune therapy", "immunological treatment", "biological therapy"}},
			{term: "hypertension", synonyms: []string{"high blood pressure", "HTN", "elevated blood pressure"}},
			{term: "alzheimer", synonyms: []string{"Alzheimer disease", "dementia", "cognitive decline"}},
			{term: "risk factors", synonyms: []string{"causes", "risk", "predisposing factors", "etiology"}},
			{term: "symptoms", synonyms: []string{"signs", "clinical features", "manifestations"}},
			{term: "diagnosis", synonyms: []string{"diagnostic", "testing", "screening", "detection"}},
			{term: "treatment", synonyms: []string{"therapy", "management", "intervention"}},
			{term: "medication", synonyms: []string{"drug", "pharmaceutical", "medicine"}},
		},
	}
}

// NewSynonymTable builds a table from term -> synonyms pairs in the given order.
func NewSynonymTable(terms []string, synonyms map[string][]string, maxPerTerm int) SynonymTable {
	if maxPerTerm <= 0 {
		maxPerTerm = 2
	}
	table := SynonymTable{maxPerTerm: maxPerTerm}
	for _, term := range terms {
		table.rules = append(table.rules, synonymRule{
			term:     strings.ToLower(term),
			synonyms: synonyms[term],
		})
	}
	return table
}

// Variants returns rewrites of question in deterministic order. The
// question itself is not included.
func (t SynonymTable) Variants(question string) []string {
	lower := strings.ToLower(strings.TrimSpace(question))
	if lower == "" {
		return nil
	}

	out := make([]string, 0, 8)
	for _, rule := range t.rules {
		if rule.term == "" || !strings.Contains(lower, rule.term) {
			continue
		}
		limit := t.maxPerTerm
		if limit > len(rule.synonyms) {
			limit = len(rule.synonyms)
		}
		for _, synonym := range rule.synonyms[:limit] {
			variant := strings.ReplaceAll(lower, rule.term, synonym)
			if variant != lower {
				out = append(out, capitalizeFirst(variant))
			}
		}
	}

	if t.reformulations {
		out = append(out, reformulate(question)...)
	}
	return out
}

func reformulate(question string) []string {
	trimmed := strings.TrimSpace(question)
	lower := strings.ToLower(trimmed)
	var out []string
	switch {
	case strings.HasPrefix(lower, "what are "):
		rest := strings.TrimSuffix(strings.TrimSpace(trimmed[len("what are "):]), "?")
		if rest != "" {
			out = append(out, "List "+rest)
		}
	case strings.HasPrefix(lower, "how "):
		rest := strings.TrimSpace(trimmed[len("how "):])
		if rest != "" {
			out = append(out, "What is "+rest)
		}
	}
	return out
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
