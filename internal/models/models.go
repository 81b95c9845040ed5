package models

// Source tags where a paper came from.
type Source string

const (
	SourcePMC             Source = "pmc"
	SourceSemanticScholar Source = "semantic_scholar"
	SourceOpenAlex        Source = "openalex"
	SourceCore            Source = "core"
	SourceOA              Source = "oa"
)

// PaperMeta is the paper-level metadata produced by source connectors and manual ingestion.
// Empty strings stand for absent values.
type PaperMeta struct {
	PaperID    string `json:"paper_id"`
	Title      string `json:"title"`
	Year       *int   `json:"year,omitempty"`
	DOI        string `json:"doi,omitempty"`
	Source     Source `json:"source,omitempty"`
	PDFURL     string `json:"pdf_url,omitempty"`
	LandingURL string `json:"landing_url,omitempty"`
}

// IdentityKey returns the first non-empty of paper id, DOI, PDF url and title.
func (m PaperMeta) IdentityKey() string {
	for _, k := range []string{m.PaperID, m.DOI, m.PDFURL, m.Title} {
		if k != "" {
			return k
		}
	}
	return ""
}

// ChunkMeta is stored alongside every chunk in the vector index.
type ChunkMeta struct {
	PaperMeta
	ChunkIndex int `json:"chunk_index"`
}

// ChunkRecord is the unit stored in the vector index.
type ChunkRecord struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
	Meta      ChunkMeta `json:"meta"`
}

// Hit is one retrieved chunk. A nil Distance means the index did not report one.
type Hit struct {
	Text     string    `json:"text"`
	Meta     ChunkMeta `json:"meta"`
	Distance *float64  `json:"distance"`
}

type Mode string

const (
	ModeBalita      Mode = "balita"
	ModeAnakSekolah Mode = "anak_sekolah"
	ModeRemaja      Mode = "remaja"
)

// ChildPhoto references an uploaded photo used for vision analysis.
type ChildPhoto struct {
	PhotoID string `json:"photo_id,omitempty"`
	URL     string `json:"url"`
	Context string `json:"context,omitempty"`
	Consent bool   `json:"consent,omitempty"`
}

// VisionFindings is the structured output of the vision analysis collaborator.
type VisionFindings struct {
	Summary          string   `json:"summary"`
	Observations     []string `json:"observations"`
	PossibleConcerns []string `json:"possible_concerns"`
	RedFlags         []string `json:"red_flags"`
	Confidence       string   `json:"confidence"`
}

// Consultation is the read-only input of the hybrid orchestrator.
type Consultation struct {
	ID              string          `json:"id,omitempty"`
	Mode            Mode            `json:"mode"`
	AgeValue        int             `json:"age_value"`
	AgeUnit         string          `json:"age_unit"`
	Sex             string          `json:"sex"`
	WeightKG        float64         `json:"weight_kg"`
	HeightCM        float64         `json:"height_cm"`
	MeasurementType string          `json:"measurement_type"`
	UserQuestion    string          `json:"user_question"`
	VisionFindings  *VisionFindings `json:"vision_findings,omitempty"`
	Photos          []ChildPhoto    `json:"child_photos,omitempty"`
}
