package analytics

import (
	"math"
	"sort"

	"github.com/cognicore/revlens/pkg/revlens/lexicon"
	"github.com/cognicore/revlens/pkg/revlens/record"
)

const (
	// TopicLimit is how many topics Topics ranks.
	TopicLimit = 10
	// SummaryTopics is how many of those a Metrics report keeps.
	SummaryTopics = 5
)

// Recommendation strengths.
const (
	HighlyRecommended     = "Highly Recommended"
	Recommended           = "Recommended"
	ModeratelyRecommended = "Moderately Recommended"
	NotRecommended        = "Not Recommended"
)

// Engine derives review metrics. It holds only an immutable lexicon, so a
// single Engine may serve concurrent callers.
type Engine struct {
	lex *lexicon.Lexicon
	tok *Tokenizer
}

// NewEngine creates an engine over lex; nil selects lexicon.Default().
func NewEngine(lex *lexicon.Lexicon) *Engine {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Engine{lex: lex, tok: NewTokenizer(lex)}
}

// Filter selects the reviews an analysis covers. The zero Filter selects all.
type Filter struct {
	productID int64
	scoped    bool
}

// ForProduct selects the reviews of one product. Product 0 is a valid
// product, not a wildcard.
func ForProduct(id int64) Filter { return Filter{productID: id, scoped: true} }

// ProductID returns the selected product, if any.
func (f Filter) ProductID() (int64, bool) { return f.productID, f.scoped }

// Apply returns the matching reviews.
func (f Filter) Apply(reviews []record.Review) []record.Review {
	if !f.scoped {
		return reviews
	}
	return record.ForProduct(reviews, f.productID)
}

// Metrics is the descriptive analysis of a review set.
type Metrics struct {
	AverageRating      float64
	TotalReviews       int
	RatingDistribution map[int]int
	CommonTopics       []string
	Sentiment          string
}

// Metrics analyzes the reviews selected by f. Ratings of 0 count as absent
// for the average and the distribution.
func (e *Engine) Metrics(reviews []record.Review, f Filter) Metrics {
	selected := f.Apply(reviews)
	if len(selected) == 0 {
		return Metrics{
			RatingDistribution: map[int]int{},
			CommonTopics:       []string{},
			Sentiment:          LabelNoReviews,
		}
	}

	dist := make(map[int]int, 5)
	for star := 1; star <= 5; star++ {
		dist[star] = 0
	}
	sum, rated := 0, 0
	for _, r := range selected {
		if r.Rating == 0 {
			continue
		}
		sum += r.Rating
		rated++
		if _, ok := dist[r.Rating]; ok {
			dist[r.Rating]++
		}
	}
	avg := 0.0
	if rated > 0 {
		avg = float64(sum) / float64(rated)
	}

	topics := e.Topics(selected, TopicLimit)
	if len(topics) > SummaryTopics {
		topics = topics[:SummaryTopics]
	}

	return Metrics{
		AverageRating:      roundTo(avg, 2),
		TotalReviews:       len(selected),
		RatingDistribution: dist,
		CommonTopics:       topics,
		Sentiment:          e.Sentiment(selected).Label(),
	}
}

// Topics returns up to n of the most frequent topic tokens across reviews.
// Equal counts keep the order in which tokens were first seen.
func (e *Engine) Topics(reviews []record.Review, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, r := range reviews {
		for _, tok := range e.tok.Tokenize(r.Text) {
			if _, ok := counts[tok]; !ok {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if n >= 0 && len(order) > n {
		order = order[:n]
	}
	if order == nil {
		order = []string{}
	}
	return order
}

// Recommendation maps an average rating onto a recommendation strength.
func Recommendation(avg float64) string {
	switch {
	case avg >= 4.5:
		return HighlyRecommended
	case avg >= 4.0:
		return Recommended
	case avg >= 3.0:
		return ModeratelyRecommended
	}
	return NotRecommended
}

// Summary is the externally visible analysis document.
type Summary struct {
	AverageRating          float64     `json:"averageRating"`
	TotalReviews           int         `json:"totalReviews"`
	RatingDistribution     map[int]int `json:"ratingDistribution"`
	CommonTopics           []string    `json:"commonTopics"`
	SentimentAnalysis      string      `json:"sentimentAnalysis"`
	RecommendationStrength string      `json:"recommendationStrength"`
}

// Summarize computes Metrics and adds the recommendation strength.
func (e *Engine) Summarize(reviews []record.Review, f Filter) Summary {
	m := e.Metrics(reviews, f)
	return Summary{
		AverageRating:          m.AverageRating,
		TotalReviews:           m.TotalReviews,
		RatingDistribution:     m.RatingDistribution,
		CommonTopics:           m.CommonTopics,
		SentimentAnalysis:      m.Sentiment,
		RecommendationStrength: Recommendation(m.AverageRating),
	}
}

// roundTo rounds half to even, so 4.125 becomes 4.12.
func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.RoundToEven(v*p) / p
}
