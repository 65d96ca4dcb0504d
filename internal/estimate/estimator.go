// Package estimate provides byte-ratio token estimation and cost
// projection. Counts are upper bounds, not tokenizer-exact: the router
// only needs them for budget checks and context trimming, where a small
// overestimate is the safe direction.
package estimate

import (
	"math"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
)

// messageOverhead approximates the per-message role and framing tokens
// added by chat templates.
const messageOverhead = 4

// TokenEstimator estimates the token count of a piece of text.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator estimates tokens from byte length. The default ratio of
// four characters per token tracks English prose on common tokenizers;
// the safety margin absorbs code and non-Latin text, which tokenize
// denser.
type CharEstimator struct {
	CharsPerToken   float64
	SafetyMarginPct float64
}

// NewCharEstimator applies defaults for zero-valued fields.
func NewCharEstimator(charsPerToken, safetyMarginPct float64) CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	if safetyMarginPct < 0 {
		safetyMarginPct = 0
	}
	if safetyMarginPct == 0 {
		safetyMarginPct = 10
	}
	return CharEstimator{CharsPerToken: charsPerToken, SafetyMarginPct: safetyMarginPct}
}

// Estimate returns ceil(len/ratio) inflated by the safety margin. Empty
// text estimates to zero.
func (e CharEstimator) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	ratio := e.CharsPerToken
	if ratio <= 0 {
		ratio = 4.0
	}
	base := math.Ceil(float64(len(text)) / ratio)
	return int(math.Ceil(base * (1 + e.SafetyMarginPct/100)))
}

// Messages estimates the total input tokens of a conversation, including
// per-message framing overhead.
func Messages(est TokenEstimator, msgs []provider.LLMMessage) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += est.Estimate(m.Content)
		if m.Name != "" {
			total += est.Estimate(m.Name)
		}
	}
	return total
}

// Cost converts a token count to dollars at a per-million-token rate.
func Cost(tokens int, usdPerMTok float64) float64 {
	if tokens <= 0 || usdPerMTok <= 0 {
		return 0
	}
	return float64(tokens) / 1e6 * usdPerMTok
}

// RequestCost projects the cost of one request: prompt tokens at the
// input rate plus the completion allowance at the output rate.
func RequestCost(promptTokens, completionTokens int, inUSDPerMTok, outUSDPerMTok float64) float64 {
	return Cost(promptTokens, inUSDPerMTok) + Cost(completionTokens, outUSDPerMTok)
}
