package model

import "time"

// CanonicalFragrance is the record handed to the persistence layer when a
// user confirms a normalized suggestion. It is the storage-facing twin of
// NormalizationResult; conversion between the two is lossless for the
// brand/name pairs in both locales.
type CanonicalFragrance struct {
	ID            string            `json:"id"`
	BrandLocal    string            `json:"brand_local"`
	BrandRoman    string            `json:"brand_roman"`
	NameLocal     string            `json:"name_local"`
	NameRoman     string            `json:"name_roman"`
	Concentration string            `json:"concentration,omitempty"`
	LaunchYear    *int              `json:"launch_year,omitempty"`
	Family        string            `json:"family,omitempty"`
	Descriptions  map[string]string `json:"descriptions,omitempty"`
	Confidence    float64           `json:"confidence"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ToCanonical converts a normalization result into a persistence record.
func (n NormalizationResult) ToCanonical() CanonicalFragrance {
	return CanonicalFragrance{
		BrandLocal:    n.BrandLocal,
		BrandRoman:    n.BrandRoman,
		NameLocal:     n.NameLocal,
		NameRoman:     n.NameRoman,
		Concentration: n.ConcentrationType,
		LaunchYear:    n.LaunchYear,
		Family:        n.Family,
		Descriptions:  n.Descriptions,
		Confidence:    n.ConfidenceScore,
	}
}

// ToNormalization converts a stored canonical record back to the result form.
func (c CanonicalFragrance) ToNormalization() NormalizationResult {
	return NormalizationResult{
		BrandLocal:        c.BrandLocal,
		BrandRoman:        c.BrandRoman,
		NameLocal:         c.NameLocal,
		NameRoman:         c.NameRoman,
		ConcentrationType: c.Concentration,
		LaunchYear:        c.LaunchYear,
		Family:            c.Family,
		ConfidenceScore:   c.Confidence,
		Descriptions:      c.Descriptions,
	}
}
