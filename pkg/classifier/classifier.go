package classifier

import (
	"strings"

	"github.com/jonreiter/govader"
)

// Classifier decides whether a review expresses positive sentiment. It wraps
// a VADER analyzer; the compound score is a polarity in [-1, 1].
type Classifier struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// New creates a new Classifier instance
func New() *Classifier {
	return &Classifier{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Polarity returns the compound sentiment score for text.
func (c *Classifier) Polarity(text string) float64 {
	return c.analyzer.PolarityScores(text).Compound
}

// Classify reports whether a review counts as positive: the polarity must be
// above zero and the text must not mention a return. Reviews about returning
// the product tend to score neutral-to-positive despite expressing
// dissatisfaction, so they are excluded outright.
func (c *Classifier) Classify(text string) bool {
	if strings.Contains(strings.ToLower(text), "return") {
		return false
	}
	return c.Polarity(text) > 0
}
