package listing

// Summary is the rating aggregate shown with a listing.
type Summary struct {
	Average float64
	Count   int
}

// Summarize averages ratings. No ratings give a zero summary.
func Summarize(ratings []int) Summary {
	if len(ratings) == 0 {
		return Summary{}
	}
	total := 0
	for _, r := range ratings {
		total += r
	}
	return Summary{Average: float64(total) / float64(len(ratings)), Count: len(ratings)}
}

// withSummary fills the derived rating fields of l from l.Ratings.
func withSummary(l Listing) Listing {
	s := Summarize(l.Ratings)
	l.AverageRating = s.Average
	l.ReviewCount = s.Count
	return l
}

// TotalPages is the number of pages of size limit needed for count items.
func TotalPages(count, limit int) int {
	if limit <= 0 || count <= 0 {
		return 0
	}
	return (count + limit - 1) / limit
}
