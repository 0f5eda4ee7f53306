// Package model defines the domain types shared across the resolution pipeline.
package model

import (
	"strings"
	"time"
)

// SuggestionKind distinguishes brand-level from fragrance-level suggestions.
type SuggestionKind string

const (
	KindBrand     SuggestionKind = "brand"
	KindFragrance SuggestionKind = "fragrance"
)

// CompletionSuggestion is a single live-completion candidate for a free-text
// brand or fragrance query. DisplayText holds the fragrance name only; the
// brand is carried separately and must never appear inside DisplayText.
type CompletionSuggestion struct {
	DisplayText    string         `json:"display_text"`
	DisplayTextEn  string         `json:"display_text_en,omitempty"`
	BrandName      string         `json:"brand_name"`
	BrandNameEn    string         `json:"brand_name_en,omitempty"`
	Confidence     float64        `json:"confidence"`
	Kind           SuggestionKind `json:"kind"`
	SourceProvider string         `json:"source_provider,omitempty"`
}

// ContainsBrand reports whether the display text still embeds the brand name.
// Suggestions violating this are repaired during post-processing.
func (s CompletionSuggestion) ContainsBrand() bool {
	if s.BrandName == "" || s.DisplayText == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s.DisplayText), strings.ToLower(s.BrandName))
}

// NotesSuggestion holds AI-suggested scent notes grouped by pyramid layer.
type NotesSuggestion struct {
	Top             []string `json:"top"`
	Middle          []string `json:"middle"`
	Base            []string `json:"base"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// AttributeSuggestion holds AI-suggested wearing attributes for a fragrance.
type AttributeSuggestion struct {
	Seasons         []string `json:"seasons"`
	Occasions       []string `json:"occasions"`
	TimeOfDay       []string `json:"time_of_day"`
	AgeGroups       []string `json:"age_groups"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// NormalizationResult is the canonical multilingual form of a messy
// brand/fragrance pair as returned by a provider.
type NormalizationResult struct {
	BrandLocal        string            `json:"brand_local"`
	BrandRoman        string            `json:"brand_roman"`
	NameLocal         string            `json:"name_local"`
	NameRoman         string            `json:"name_roman"`
	ConcentrationType string            `json:"concentration_type,omitempty"`
	LaunchYear        *int              `json:"launch_year,omitempty"`
	Family            string            `json:"family,omitempty"`
	ConfidenceScore   float64           `json:"confidence_score"`
	Descriptions      map[string]string `json:"descriptions,omitempty"`
}

// ClampConfidence forces a confidence value into [0, 1]. Providers are not
// trusted to stay in range.
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// OperationMeta annotates a result with how it was produced.
type OperationMeta struct {
	Operation string    `json:"operation"`
	Query     string    `json:"query,omitempty"`
	Type      string    `json:"type,omitempty"`
	Language  string    `json:"language,omitempty"`
	Provider  string    `json:"provider"`
	CachedAt  time.Time `json:"cached_at,omitzero"`
	Timestamp time.Time `json:"timestamp"`
}
