package api

import "strings"

// ModelPricing contains pricing per 1M tokens for a model.
type ModelPricing struct {
	InputPerMillion  float64 // Cost per 1M input tokens
	OutputPerMillion float64 // Cost per 1M output tokens
}

// DefaultModelPricing contains pricing for known Claude models.
var DefaultModelPricing = map[string]ModelPricing{
	"claude-opus-4-5-20251101":   {InputPerMillion: 5.00, OutputPerMillion: 25.00},
	"claude-sonnet-4-20250514":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-sonnet-4-5-20250929": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-haiku-4-5-20251001":  {InputPerMillion: 1.00, OutputPerMillion: 5.00},
	"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
}

// fallbackPricing is charged for unknown models so the guard never
// undercounts; it matches the most expensive listed model.
var fallbackPricing = ModelPricing{InputPerMillion: 15.00, OutputPerMillion: 75.00}

// PricingFor returns the pricing of a model. Bedrock inference profile
// names resolve to their Anthropic model.
func PricingFor(model string) ModelPricing {
	name := strings.TrimPrefix(model, "us.anthropic.")
	name = strings.TrimSuffix(name, "-v1:0")
	if p, ok := DefaultModelPricing[name]; ok {
		return p
	}
	return fallbackPricing
}

// Cost returns the USD cost of a call with the given token counts.
func Cost(model string, inputTokens, outputTokens int64) float64 {
	p := PricingFor(model)
	return float64(inputTokens)/1_000_000*p.InputPerMillion +
		float64(outputTokens)/1_000_000*p.OutputPerMillion
}

// EstimateCost returns an upper estimate for a prompt before it is sent,
// assuming roughly four characters per token and a full-length reply.
func EstimateCost(model, prompt string, maxTokens int64) float64 {
	inputTokens := int64(len(prompt)/4) + 16
	return Cost(model, inputTokens, maxTokens)
}
