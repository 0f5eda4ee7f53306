package provider

import (
	"encoding/json"
	"strings"

	"github.com/scentdesk/fragrance-cli/internal/model"
)

// ExtractJSON pulls the JSON payload out of a provider reply. Providers
// routinely wrap structured output in prose or a fenced ```json block; the
// fencing is stripped before decoding is attempted. Returns false when no
// JSON-looking span exists at all.
func ExtractJSON(text string) ([]byte, bool) {
	s := strings.TrimSpace(text)

	// Fenced block first: take the content between the first pair of fences.
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		// Tolerate a language tag on the opening fence.
		if j := strings.IndexByte(rest, '\n'); j >= 0 && len(strings.Fields(rest[:j])) <= 1 {
			rest = rest[j+1:]
		}
		if k := strings.Index(rest, "```"); k >= 0 {
			rest = rest[:k]
		}
		s = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, false
	}
	closing := byte('}')
	if s[start] == '[' {
		closing = ']'
	}
	end := strings.LastIndexByte(s, closing)
	if end <= start {
		return nil, false
	}
	return []byte(s[start : end+1]), true
}

type wireSuggestion struct {
	DisplayText   string  `json:"display_text"`
	DisplayTextEn string  `json:"display_text_en"`
	BrandName     string  `json:"brand_name"`
	BrandNameEn   string  `json:"brand_name_en"`
	Confidence    float64 `json:"confidence"`
	Kind          string  `json:"kind"`
}

type wireSuggestionList struct {
	Suggestions []wireSuggestion `json:"suggestions"`
}

// decodeSuggestions parses the completion payload. Confidence is clamped to
// [0,1]; entries with an empty display text are dropped.
func decodeSuggestions(data []byte, source ID, fallbackKind model.SuggestionKind) ([]model.CompletionSuggestion, error) {
	var list wireSuggestionList
	if err := json.Unmarshal(data, &list); err != nil {
		// Some models answer with a bare array.
		var bare []wireSuggestion
		if err2 := json.Unmarshal(data, &bare); err2 != nil {
			return nil, err
		}
		list.Suggestions = bare
	}

	out := make([]model.CompletionSuggestion, 0, len(list.Suggestions))
	for _, w := range list.Suggestions {
		if strings.TrimSpace(w.DisplayText) == "" {
			continue
		}
		kind := model.SuggestionKind(w.Kind)
		if kind != model.KindBrand && kind != model.KindFragrance {
			kind = fallbackKind
		}
		out = append(out, model.CompletionSuggestion{
			DisplayText:    strings.TrimSpace(w.DisplayText),
			DisplayTextEn:  strings.TrimSpace(w.DisplayTextEn),
			BrandName:      strings.TrimSpace(w.BrandName),
			BrandNameEn:    strings.TrimSpace(w.BrandNameEn),
			Confidence:     model.ClampConfidence(w.Confidence),
			Kind:           kind,
			SourceProvider: string(source),
		})
	}
	return out, nil
}

type wireNormalization struct {
	BrandLocal        string            `json:"brand_local"`
	BrandRoman        string            `json:"brand_roman"`
	NameLocal         string            `json:"name_local"`
	NameRoman         string            `json:"name_roman"`
	ConcentrationType string            `json:"concentration_type"`
	LaunchYear        *int              `json:"launch_year"`
	Family            string            `json:"family"`
	ConfidenceScore   float64           `json:"confidence_score"`
	Descriptions      map[string]string `json:"descriptions"`
}

func decodeNormalization(data []byte) (model.NormalizationResult, error) {
	var w wireNormalization
	if err := json.Unmarshal(data, &w); err != nil {
		return model.NormalizationResult{}, err
	}
	year := w.LaunchYear
	if year != nil && (*year < 1700 || *year > 2100) {
		year = nil
	}
	return model.NormalizationResult{
		BrandLocal:        strings.TrimSpace(w.BrandLocal),
		BrandRoman:        strings.TrimSpace(w.BrandRoman),
		NameLocal:         strings.TrimSpace(w.NameLocal),
		NameRoman:         strings.TrimSpace(w.NameRoman),
		ConcentrationType: strings.TrimSpace(w.ConcentrationType),
		LaunchYear:        year,
		Family:            strings.TrimSpace(w.Family),
		ConfidenceScore:   model.ClampConfidence(w.ConfidenceScore),
		Descriptions:      w.Descriptions,
	}, nil
}

type wireNotes struct {
	Notes struct {
		Top    []string `json:"top"`
		Middle []string `json:"middle"`
		Base   []string `json:"base"`
	} `json:"notes"`
	ConfidenceScore float64 `json:"confidence_score"`
}

func decodeNotes(data []byte, limit int) (model.NotesSuggestion, error) {
	var w wireNotes
	if err := json.Unmarshal(data, &w); err != nil {
		return model.NotesSuggestion{}, err
	}
	return model.NotesSuggestion{
		Top:             capList(w.Notes.Top, limit),
		Middle:          capList(w.Notes.Middle, limit),
		Base:            capList(w.Notes.Base, limit),
		ConfidenceScore: model.ClampConfidence(w.ConfidenceScore),
	}, nil
}

type wireAttributes struct {
	Seasons         []string `json:"seasons"`
	Occasions       []string `json:"occasions"`
	TimeOfDay       []string `json:"time_of_day"`
	AgeGroups       []string `json:"age_groups"`
	ConfidenceScore float64  `json:"confidence_score"`
}

func decodeAttributes(data []byte) (model.AttributeSuggestion, error) {
	var w wireAttributes
	if err := json.Unmarshal(data, &w); err != nil {
		return model.AttributeSuggestion{}, err
	}
	return model.AttributeSuggestion{
		Seasons:         w.Seasons,
		Occasions:       w.Occasions,
		TimeOfDay:       w.TimeOfDay,
		AgeGroups:       w.AgeGroups,
		ConfidenceScore: model.ClampConfidence(w.ConfidenceScore),
	}, nil
}

func capList(list []string, limit int) []string {
	cleaned := make([]string, 0, len(list))
	for _, s := range list {
		if t := strings.TrimSpace(s); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if limit > 0 && len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return cleaned
}
