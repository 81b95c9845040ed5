package hybrid

import (
	"encoding/json"
	"fmt"
	"strings"

	"growthrag/internal/models"
)

const queryTopic = "Topic: stunting prevention and nutrition for children and adolescents."

// BuildQuery renders the retrieval query for a consultation. Field order is fixed.
func BuildQuery(c models.Consultation) string {
	var b strings.Builder
	b.WriteString(queryTopic + "\n")
	fmt.Fprintf(&b, "Mode: %s.\n", c.Mode)
	fmt.Fprintf(&b, "Age: %d %s. Sex: %s.\n", c.AgeValue, c.AgeUnit, c.Sex)
	fmt.Fprintf(&b, "Weight: %.1f kg. Height/length: %.1f cm.\n", c.WeightKG, c.HeightCM)
	fmt.Fprintf(&b, "Question: %s\n", c.UserQuestion)
	if v := visionJSON(c.VisionFindings); v != "" {
		fmt.Fprintf(&b, "Vision findings: %s\n", v)
	}
	return b.String()
}

func visionJSON(v *models.VisionFindings) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// TruncateQuery cuts q to at most maxRunes runes.
func TruncateQuery(q string, maxRunes int) string {
	if maxRunes <= 0 {
		return q
	}
	r := []rune(q)
	if len(r) <= maxRunes {
		return q
	}
	return string(r[:maxRunes])
}
