package provider

import (
	"fmt"
	"strings"

	"github.com/scentdesk/fragrance-cli/internal/model"
)

// Prompt construction shared by all adapters. Every prompt demands a single
// JSON object so the parser has a fighting chance regardless of backend.

func languageName(code string) string {
	switch code {
	case "ja":
		return "Japanese"
	case "en", "":
		return "English"
	default:
		return code
	}
}

func completionSystem(language string) string {
	return fmt.Sprintf(`You are a fragrance database assistant. Given a partial brand or fragrance name, suggest matching real fragrances or brands.
Respond with a single JSON object only, no prose:
{"suggestions": [{"display_text": "...", "display_text_en": "...", "brand_name": "...", "brand_name_en": "...", "confidence": 0.0, "kind": "brand|fragrance"}]}
Rules:
- display_text is the fragrance name in %s WITHOUT the brand name in it.
- brand_name carries the brand separately.
- confidence is between 0 and 1.
- Only real, verifiable fragrances and brands.`, languageName(language))
}

func completionUser(query string, opts CompleteOptions) string {
	var b strings.Builder

	if len(opts.Exemplars) > 0 {
		b.WriteString("Examples of past queries and the suggestions users selected:\n")
		for _, ex := range opts.Exemplars {
			fmt.Fprintf(&b, "Query: %s\nSelected: %s\n", ex.Query, ex.Output)
		}
		b.WriteString("\n")
	}
	if len(opts.Patterns) > 0 {
		b.WriteString("For similar queries, users previously chose:\n")
		for _, p := range opts.Patterns {
			fmt.Fprintf(&b, "- %q -> %s / %s\n", p.Query, p.Chosen.BrandName, p.Chosen.DisplayText)
		}
		b.WriteString("\n")
	}

	kind := "brand or fragrance"
	if opts.Type == model.KindBrand {
		kind = "brand"
	} else if opts.Type == model.KindFragrance {
		kind = "fragrance"
	}
	fmt.Fprintf(&b, "Suggest up to %d %s completions for: %q", opts.Limit, kind, query)
	return b.String()
}

func normalizationSystem(language string) string {
	return fmt.Sprintf(`You are a fragrance data normalizer. Given a messy brand and fragrance name, produce the canonical record.
Respond with a single JSON object only:
{"brand_local": "...", "brand_roman": "...", "name_local": "...", "name_roman": "...", "concentration_type": "EDT|EDP|Parfum|Cologne|", "launch_year": 0, "family": "...", "confidence_score": 0.0, "descriptions": {"en": "...", "%s": "..."}}
Rules:
- *_local fields use %s script; *_roman fields use latin script.
- Omit launch_year if unknown. confidence_score is between 0 and 1.`, language, languageName(language))
}

func normalizationUser(brand, name string, opts NormalizeOptions) string {
	var b strings.Builder
	if len(opts.Exemplars) > 0 {
		b.WriteString("Past normalizations users confirmed:\n")
		for _, ex := range opts.Exemplars {
			fmt.Fprintf(&b, "Input: %s\nCanonical: %s\n", ex.Query, ex.Output)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Normalize this entry.\nBrand: %s\nFragrance: %s", brand, name)
	return b.String()
}

func notesSystem(limit int) string {
	return fmt.Sprintf(`You are a fragrance expert. Suggest the scent note pyramid of a given fragrance.
Respond with a single JSON object only:
{"notes": {"top": [], "middle": [], "base": []}, "confidence_score": 0.0}
At most %d notes per layer. Use common English note names. confidence_score is between 0 and 1.`, limit)
}

func notesUser(brand, name string) string {
	return fmt.Sprintf("Fragrance: %s by %s", name, brand)
}

func attributesSystem() string {
	return `You are a fragrance expert. Characterize when and by whom a fragrance is typically worn.
Respond with a single JSON object only:
{"seasons": [], "occasions": [], "time_of_day": [], "age_groups": [], "confidence_score": 0.0}
Values: seasons from [spring, summer, autumn, winter]; time_of_day from [day, night]; occasions like [office, date, casual, formal]; age_groups like [10s, 20s, 30s, 40s, 50s+]. confidence_score is between 0 and 1.`
}

func attributesUser(name string) string {
	return fmt.Sprintf("Fragrance: %s", name)
}
