package domain

// Stats aggregates the review records of one chapter.
//
// CorrectReviews counts the whole ReviewCount of every record whose latest
// answer was correct, so Accuracy is an approximation rather than a
// per-attempt rate.
type Stats struct {
	TotalReviews       int     `json:"totalReviews"`
	CorrectReviews     int     `json:"correctReviews"`
	Accuracy           float64 `json:"accuracy"`
	QuestionsForReview int     `json:"questionsForReview"`
}

// ChapterSummary pairs a chapter with its stats.
type ChapterSummary struct {
	ChapterID int `json:"chapterId"`
	Stats
}
