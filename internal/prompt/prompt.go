// Package prompt assembles the system prompt sent with every chat request.
package prompt

import (
	"fmt"
	"strings"

	"github.com/mfenderov/multichat/pkg/models"
)

// MaxChunkChars bounds each titled chunk inside the knowledge section.
const MaxChunkChars = 500

// NoKnowledge is used in place of the knowledge section when nothing relevant was found.
const NoKnowledge = "No specific information is available for this question."

var languageNames = map[string]string{
	"en": "English",
	"ar": "Arabic",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"zh": "Chinese",
	"ja": "Japanese",
}

// LanguageName maps a language code to its English name. Unknown codes map to English.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return "English"
}

// Build returns the system prompt for language grounded on chunks.
func Build(language string, chunks []models.Chunk) string {
	name := LanguageName(language)

	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful customer support assistant. You must respond ONLY in %s.\n\n", name)
	b.WriteString("Use the following knowledge base to answer the user's question.\n\n")
	b.WriteString("KNOWLEDGE BASE:\n")
	b.WriteString(knowledgeSection(chunks))
	b.WriteString("\n\n")
	b.WriteString("INSTRUCTIONS:\n")
	fmt.Fprintf(&b, "- Answer in %s only, whatever language the question is written in.\n", name)
	b.WriteString("- Base your answer on the knowledge base above. Do not invent facts.\n")
	b.WriteString("- If the knowledge base does not cover the question, say you do not have that information and offer to connect the user with a human representative.\n")
	b.WriteString("- Keep answers concise and friendly.")
	return b.String()
}

func knowledgeSection(chunks []models.Chunk) string {
	if len(chunks) == 0 {
		return NoKnowledge
	}
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		if c.Title != "" {
			text = "[" + c.Title + "] " + truncate(text, MaxChunkChars)
		}
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		return NoKnowledge
	}
	return strings.Join(parts, "\n\n")
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
