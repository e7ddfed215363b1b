package extract

import (
	"fmt"
	"strings"

	"github.com/sells-group/lead-enrichment/internal/model"
)

const systemPrompt = `You extract facts about a veterinary practice from the text of its website.

Rules:
- Use only the supplied website text. Never guess or use outside knowledge.
- Count only veterinarians (DVM or VMD). Do not count technicians, assistants, or managers.
- Leave a field empty when the website does not support it. Booleans default to false.
- vet_count_confidence is high when veterinarians are listed by name, medium when a count is stated, low when inferred.
- Keep every list entry short and factual.`

// pageSeparator precedes each page's text.
const pageSeparator = "--- Page: %s ---"

// BuildPageText concatenates successful pages in crawl order, each preceded
// by a separator line, and cuts the result to maxChars runes.
func BuildPageText(pages []model.WebPageResult, maxChars int) string {
	var b strings.Builder
	for _, p := range pages {
		if !p.Success || strings.TrimSpace(p.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, pageSeparator, p.URL)
		b.WriteString("\n")
		b.WriteString(p.Text)
	}
	if maxChars <= 0 {
		return b.String()
	}
	return model.TruncateRunes(b.String(), maxChars)
}

// userPrompt frames the page text for one practice.
func userPrompt(name, pageText string) string {
	return fmt.Sprintf("Practice Name: %s\n\nWebsite Content:\n%s", name, pageText)
}

// EstimateTokens approximates the token count of s at four characters per
// token, rounding up.
func EstimateTokens(s string) int64 {
	n := int64(len(s))
	return (n + 3) / 4
}
