package tracing

import (
	"strings"
	"sync"
)

// ModelPrice is a per-token price pair (in dollars) for one model.
type ModelPrice struct {
	InputCostPerToken  float64
	OutputCostPerToken float64
	Provider           string
}

// bundledPrices is a small, static seed table of well-known models, so a
// span that omits `cost` can still derive a microdollar cost from token
// counts instead of recording zero. There is no runtime refresh of this
// table; operators extend it via SetOverride.
var bundledPrices = map[string]ModelPrice{
	"gpt-4o":                 {InputCostPerToken: 2.5e-6, OutputCostPerToken: 10e-6, Provider: "openai"},
	"gpt-4o-mini":            {InputCostPerToken: 0.15e-6, OutputCostPerToken: 0.6e-6, Provider: "openai"},
	"gpt-4-turbo":            {InputCostPerToken: 10e-6, OutputCostPerToken: 30e-6, Provider: "openai"},
	"claude-3-5-sonnet":      {InputCostPerToken: 3e-6, OutputCostPerToken: 15e-6, Provider: "anthropic"},
	"claude-3-haiku":         {InputCostPerToken: 0.25e-6, OutputCostPerToken: 1.25e-6, Provider: "anthropic"},
	"gemini-1.5-pro":         {InputCostPerToken: 1.25e-6, OutputCostPerToken: 5e-6, Provider: "google"},
	"gemini-1.5-flash":       {InputCostPerToken: 0.075e-6, OutputCostPerToken: 0.3e-6, Provider: "google"},
}

var pricingPrefixes = []string{"openai/", "anthropic/", "google/", "azure/", "cohere/", "mistral/"}

// PricingTable is an in-memory, mutex-guarded price lookup with a small set
// of admin-settable per-model overrides (shared by all projects).
type PricingTable struct {
	mu        sync.RWMutex
	base      map[string]ModelPrice
	overrides map[string]ModelPrice
}

func NewPricingTable() *PricingTable {
	base := make(map[string]ModelPrice, len(bundledPrices))
	for k, v := range bundledPrices {
		base[k] = v
	}
	return &PricingTable{base: base, overrides: make(map[string]ModelPrice)}
}

func (t *PricingTable) SetOverride(model string, price ModelPrice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.overrides[model] = price
}

// Lookup resolves a model name via overrides, exact match, provider-prefix
// match, then date-suffix-stripped match (e.g. "gpt-4o-2024-08-06" -> "gpt-4o").
func (t *PricingTable) Lookup(model string) (ModelPrice, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if p, ok := t.overrides[model]; ok {
		return p, true
	}
	if p, ok := t.base[model]; ok {
		return p, true
	}
	for _, prefix := range pricingPrefixes {
		if p, ok := t.base[prefix+model]; ok {
			return p, true
		}
	}
	if base, ok := stripDateSuffix(model); ok {
		if p, ok := t.base[base]; ok {
			return p, true
		}
		for _, prefix := range pricingPrefixes {
			if p, ok := t.base[prefix+base]; ok {
				return p, true
			}
		}
	}
	return ModelPrice{}, false
}

// CalculateCostMicros derives a microdollar cost from token counts. Returns
// 0 for unknown models: auto-pricing is best-effort, never an error.
func (t *PricingTable) CalculateCostMicros(model string, inputTokens, outputTokens int64) int64 {
	price, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	dollars := float64(inputTokens)*price.InputCostPerToken + float64(outputTokens)*price.OutputCostPerToken
	return DollarsToMicros(dollars)
}

// DollarsToMicros converts a dollar amount to integer microdollars: round(dollars * 1e6).
func DollarsToMicros(dollars float64) int64 {
	if dollars >= 0 {
		return int64(dollars*1_000_000 + 0.5)
	}
	return -int64(-dollars*1_000_000 + 0.5)
}

// stripDateSuffix strips a trailing "-YYYY-MM-DD" from a model name.
func stripDateSuffix(model string) (string, bool) {
	if len(model) < 11 {
		return "", false
	}
	suffix := model[len(model)-11:]
	if suffix[0] != '-' || suffix[5] != '-' || suffix[8] != '-' {
		return "", false
	}
	digits := suffix[1:5] + suffix[6:8] + suffix[9:11]
	if strings.Trim(digits, "0123456789") != "" {
		return "", false
	}
	return model[:len(model)-11], true
}
