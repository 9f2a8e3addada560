package analytics

import (
	"fmt"
	"strings"

	"github.com/cognicore/revlens/pkg/revlens/record"
)

// Polarity is the sentiment assigned to a single review.
type Polarity int

const (
	// Unclassified reviews count toward neither tally.
	Unclassified Polarity = iota
	Positive
	Negative
)

func (p Polarity) String() string {
	switch p {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	}
	return "unclassified"
}

// Aggregate sentiment labels.
const (
	LabelNoReviews    = "No reviews found"
	LabelNeutral      = "Neutral"
	LabelVeryPositive = "Very Positive"
	LabelPositive     = "Positive"
	LabelMixed        = "Mixed"
	LabelNegative     = "Negative"
)

// Classify assigns one review a polarity. A high rating or more positive
// than negative keywords wins first; a low rating or more negative keywords
// comes second; anything else stays unclassified.
func (e *Engine) Classify(r record.Review) Polarity {
	text := strings.ToLower(r.Text)
	pos := e.lex.CountPositive(text)
	neg := e.lex.CountNegative(text)

	switch {
	case r.Rating >= 4 || pos > neg:
		return Positive
	case r.Rating <= 2 || neg > pos:
		return Negative
	}
	return Unclassified
}

// SentimentTally counts classified reviews.
type SentimentTally struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
}

// Sentiment classifies every review and tallies the results.
func (e *Engine) Sentiment(reviews []record.Review) SentimentTally {
	var t SentimentTally
	for _, r := range reviews {
		switch e.Classify(r) {
		case Positive:
			t.Positive++
		case Negative:
			t.Negative++
		}
	}
	return t
}

// PositiveShare returns the positive percentage of classified reviews, or
// false when nothing was classified.
func (t SentimentTally) PositiveShare() (float64, bool) {
	total := t.Positive + t.Negative
	if total == 0 {
		return 0, false
	}
	return float64(t.Positive) / float64(total) * 100, true
}

// Label renders the tally as a banded label such as "Positive (67%)".
// Band floors are inclusive, so exactly half positive is Positive.
func (t SentimentTally) Label() string {
	pct, ok := t.PositiveShare()
	if !ok {
		return LabelNeutral
	}

	var band string
	switch {
	case pct >= 70:
		band = LabelVeryPositive
	case pct >= 50:
		band = LabelPositive
	case pct >= 30:
		band = LabelMixed
	default:
		band = LabelNegative
	}
	return fmt.Sprintf("%s (%.0f%%)", band, pct)
}
