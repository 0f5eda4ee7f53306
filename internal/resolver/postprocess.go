package resolver

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/scentdesk/fragrance-cli/internal/model"
)

// postProcess enforces the presentation invariants on raw provider output:
// confidence-descending order (stable), no duplicate display texts, and no
// brand name embedded in the display text. A display text that consists of
// nothing but its brand is re-emitted as a brand suggestion instead.
func postProcess(in []model.CompletionSuggestion) []model.CompletionSuggestion {
	out := make([]model.CompletionSuggestion, 0, len(in))
	for _, s := range in {
		s.Confidence = model.ClampConfidence(s.Confidence)
		display := stripBrand(s.DisplayText, s.BrandName)
		if display == "" && strings.TrimSpace(s.DisplayText) != "" {
			s.DisplayText = strings.TrimSpace(s.DisplayText)
			s.BrandName = ""
			s.Kind = model.KindBrand
			if stripBrand(s.DisplayTextEn, s.BrandNameEn) == "" {
				s.DisplayTextEn = strings.TrimSpace(s.DisplayTextEn)
				s.BrandNameEn = ""
			}
		} else {
			s.DisplayText = display
			s.DisplayTextEn = stripBrand(s.DisplayTextEn, s.BrandNameEn)
		}
		if s.DisplayText == "" {
			continue
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})

	seen := make(map[string]bool, len(out))
	deduped := out[:0]
	for _, s := range out {
		key := normalizeKey(s.DisplayText) + "\x1f" + normalizeKey(s.BrandName)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, s)
	}
	return deduped
}

// stripBrand removes every occurrence of the brand name from a display text,
// along with any leftover separator punctuation. Returns "" when nothing but
// the brand remains.
func stripBrand(display, brand string) string {
	display = strings.TrimSpace(display)
	if display == "" || brand == "" {
		return display
	}
	needle := strings.ToLower(brand)
	for {
		idx := strings.Index(strings.ToLower(display), needle)
		if idx < 0 {
			break
		}
		display = display[:idx] + display[idx+len(needle):]
	}
	display = strings.Trim(display, " \t-–—:|/・")
	return strings.Join(strings.Fields(display), " ")
}

// normalizeKey folds a string for duplicate detection.
func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// normalizationFromContext extracts a normalization result attached to a
// feedback event under the "normalization" key.
func normalizationFromContext(contextData map[string]any) (model.NormalizationResult, bool) {
	var norm model.NormalizationResult
	raw, ok := contextData["normalization"]
	if !ok {
		return norm, false
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return norm, false
	}
	if err := json.Unmarshal(b, &norm); err != nil {
		return norm, false
	}
	if norm.BrandRoman == "" || norm.NameRoman == "" {
		return norm, false
	}
	return norm, true
}
