package hybrid

import (
	"fmt"
	"strconv"
	"strings"

	"growthrag/internal/models"
)

const systemPrompt = `You are a consultation assistant for stunting prevention and child/adolescent nutrition.
STRICT RULES:
1) Answer ONLY from the CONTEXT (open-access journal or guideline excerpts) provided.
2) If the information is not in the CONTEXT, say 'not found in available sources'.
3) Do not diagnose. Give education and safe recommendations.
4) Include [S#] citations on material claims.
5) If there are danger signs, advise seeing a health worker promptly.
`

// EmptyContextAnswer is returned without calling the generator when no context was retrieved.
const EmptyContextAnswer = "Sorry, the retrieved CONTEXT is empty. Under the grounding rules I cannot give " +
	"education based on journal or guideline citations because the information was not found in the " +
	"available sources.\n\nPlease try again after adding sources or ingesting documents."

const sourcesHeading = "### 4) Sources (automatic)"

// BuildContext renders hits with text as numbered [S#] blocks.
func BuildContext(hits []models.Hit) string {
	blocks := make([]string, 0, len(hits))
	for i, h := range hits {
		if strings.TrimSpace(h.Text) == "" {
			continue
		}
		m := h.Meta
		blocks = append(blocks, fmt.Sprintf("[S%d] %s (%s) DOI:%s SOURCE:%s\n%s\n",
			i+1, orDash(m.Title), yearOr(m.Year, "n.d."), orDash(m.DOI), orDash(string(m.Source)), h.Text))
	}
	return strings.Join(blocks, "\n")
}

func buildUserPrompt(c models.Consultation, evidence string) string {
	var b strings.Builder
	b.WriteString("USER DATA:\n")
	fmt.Fprintf(&b, "- mode: %s\n", c.Mode)
	fmt.Fprintf(&b, "- age: %d %s\n", c.AgeValue, c.AgeUnit)
	fmt.Fprintf(&b, "- sex: %s\n", c.Sex)
	fmt.Fprintf(&b, "- weight: %.1f kg\n", c.WeightKG)
	fmt.Fprintf(&b, "- height/length: %.1f cm (%s)\n", c.HeightCM, c.MeasurementType)
	fmt.Fprintf(&b, "- question: %s\n", c.UserQuestion)
	if v := visionJSON(c.VisionFindings); v != "" {
		fmt.Fprintf(&b, "- photo findings (non-diagnostic): %s\n", v)
	}
	b.WriteString("\nCONTEXT:\n")
	b.WriteString(evidence)
	b.WriteString(`
Write a structured answer:
1) Short data-based summary (no over-diagnosis)
2) Practical recommendations (bullet points)
3) When to see a health worker (red flags)
Note: sources are appended automatically, but still use [S#] on important claims.

If the CONTEXT is insufficient, say 'not found in available sources' and suggest safe next steps.`)
	return strings.TrimSpace(b.String())
}

// FormatSources renders one line per hit with only the fields that are present.
func FormatSources(hits []models.Hit) string {
	lines := make([]string, 0, len(hits))
	for i, h := range hits {
		m := h.Meta
		title := m.Title
		if title == "" {
			title = m.PaperID
		}
		parts := []string{orDash(title)}
		if m.Year != nil {
			parts = append(parts, strconv.Itoa(*m.Year))
		}
		if m.DOI != "" {
			parts = append(parts, "DOI:"+m.DOI)
		}
		if m.Source != "" {
			parts = append(parts, "SOURCE:"+string(m.Source))
		}
		if m.PDFURL != "" {
			parts = append(parts, "URL:"+m.PDFURL)
		}
		if m.LandingURL != "" {
			parts = append(parts, "LANDING:"+m.LandingURL)
		}
		lines = append(lines, fmt.Sprintf("[S%d] %s", i+1, strings.Join(parts, " | ")))
	}
	return strings.Join(lines, "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yearOr(y *int, fallback string) string {
	if y == nil {
		return fallback
	}
	return strconv.Itoa(*y)
}
