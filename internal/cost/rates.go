package cost

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadRates reads a YAML rate table and merges it over the defaults. Only
// providers present in the file are replaced; everything else keeps the
// built-in pricing.
func LoadRates(path string) (Rates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "cost: read rates %s", path)
	}

	var override Rates
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, eris.Wrapf(err, "cost: parse rates %s", path)
	}

	rates := DefaultRates()
	for provider, pr := range override {
		rates[provider] = pr
	}
	return rates, nil
}
