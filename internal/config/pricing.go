package config

import "math"

// Rates holds per-million-token prices. Tool-call tokens bill at the
// output rate.
type Rates struct {
	InputPerMTok    float64
	OutputPerMTok   float64
	ThinkingPerMTok float64
	CharsPerToken   int
}

// DefaultRates are the built-in list prices.
var DefaultRates = Rates{
	InputPerMTok:    3.00,
	OutputPerMTok:   15.00,
	ThinkingPerMTok: 15.00,
	CharsPerToken:   4,
}

// RatesFrom builds rates from the pricing section, filling unset fields
// from DefaultRates.
func RatesFrom(p PricingConfig) Rates {
	r := Rates{
		InputPerMTok:    p.InputPerMTok,
		OutputPerMTok:   p.OutputPerMTok,
		ThinkingPerMTok: p.ThinkingPerMTok,
		CharsPerToken:   p.CharsPerToken,
	}
	if r.InputPerMTok <= 0 {
		r.InputPerMTok = DefaultRates.InputPerMTok
	}
	if r.OutputPerMTok <= 0 {
		r.OutputPerMTok = DefaultRates.OutputPerMTok
	}
	if r.ThinkingPerMTok <= 0 {
		r.ThinkingPerMTok = DefaultRates.ThinkingPerMTok
	}
	if r.CharsPerToken <= 0 {
		r.CharsPerToken = DefaultRates.CharsPerToken
	}
	return r
}

// Cost computes the estimated USD cost of one exchange.
func (r Rates) Cost(input, context, response, thinking, tool int64) float64 {
	cost := float64(input+context) * r.InputPerMTok / 1_000_000
	cost += float64(response) * r.OutputPerMTok / 1_000_000
	cost += float64(thinking) * r.ThinkingPerMTok / 1_000_000
	cost += float64(tool) * r.OutputPerMTok / 1_000_000
	return cost
}

// EstimateTokens approximates a token count from text length using a fixed
// characters-per-token ratio, rounded up. It is not a tokenizer.
func (r Rates) EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	cpt := r.CharsPerToken
	if cpt <= 0 {
		cpt = DefaultRates.CharsPerToken
	}
	return int64(math.Ceil(float64(len(text)) / float64(cpt)))
}
