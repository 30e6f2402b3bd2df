package insights

import "math"

// DeriveStats computes the dashboard numbers for a set of reviews.
// ok is false when there are no reviews to average.
func DeriveStats(reviews []Review) (DerivedStats, bool) {
	if len(reviews) == 0 {
		return DerivedStats{}, false
	}

	var sum float64
	positive := 0
	for _, r := range reviews {
		sum += r.Rating
		if r.Sentiment == SentimentPositive {
			positive++
		}
	}
	total := len(reviews)
	return DerivedStats{
		AverageRating:   math.Round(sum*10/float64(total)) / 10,
		PositivePercent: int(math.Round(float64(100*positive) / float64(total))),
		TotalReviews:    total,
	}, true
}

// StarOf returns the star bucket of a rating. Halves round away from zero, so 3.5 is a 4.
func StarOf(rating float64) int {
	return int(math.Round(rating))
}

// FilterReviewsByStar returns the reviews in the given star bucket, in their original order.
// A nil star returns every review.
func FilterReviewsByStar(reviews []Review, star *int) []Review {
	if star == nil {
		return append([]Review(nil), reviews...)
	}
	out := make([]Review, 0, len(reviews))
	for _, r := range reviews {
		if StarOf(r.Rating) == *star {
			out = append(out, r)
		}
	}
	return out
}
