package stats

import (
	"unicode/utf8"

	"github.com/cognicore/revlens/pkg/revlens/record"
)

// Summary holds descriptive statistics over a review collection.
type Summary struct {
	TotalReviews       int         `json:"total_reviews"`
	AverageRating      float64     `json:"average_rating"`
	MinRating          int         `json:"min_rating"`
	MaxRating          int         `json:"max_rating"`
	RatingDistribution map[int]int `json:"rating_distribution"`
	TotalHelpfulVotes  int         `json:"total_helpful_votes"`
	// AverageTextLength is measured in characters, not bytes.
	AverageTextLength float64 `json:"average_text_length"`
}

// Compute summarizes reviews. Unlike analytics, every rating counts,
// including zero, and the distribution lists only ratings that occur.
func Compute(reviews []record.Review) Summary {
	s := Summary{RatingDistribution: map[int]int{}}
	if len(reviews) == 0 {
		return s
	}

	s.TotalReviews = len(reviews)
	s.MinRating = reviews[0].Rating
	s.MaxRating = reviews[0].Rating

	ratingSum, textLen := 0, 0
	for _, r := range reviews {
		ratingSum += r.Rating
		if r.Rating < s.MinRating {
			s.MinRating = r.Rating
		}
		if r.Rating > s.MaxRating {
			s.MaxRating = r.Rating
		}
		s.RatingDistribution[r.Rating]++
		s.TotalHelpfulVotes += r.HelpfulVotes
		textLen += utf8.RuneCountInString(r.Text)
	}

	n := float64(len(reviews))
	s.AverageRating = float64(ratingSum) / n
	s.AverageTextLength = float64(textLen) / n
	return s
}
