package domain

// ReviewItem tracks the review schedule of one vocabulary word.
// MasteryLevel indexes the interval ladder.
type ReviewItem struct {
	WordID         string `json:"wordId"`
	Word           string `json:"word"`
	AddedTime      int64  `json:"addedTime"`
	LastReviewTime int64  `json:"lastReviewTime"`
	NextReviewTime int64  `json:"nextReviewTime"`
	ReviewCount    int    `json:"reviewCount"`
	MasteryLevel   int    `json:"masteryLevel"`
	CorrectCount   int    `json:"correctCount"`
	WrongCount     int    `json:"wrongCount"`
}

// MasteryBreakdown buckets review items by mastery level.
type MasteryBreakdown struct {
	Beginner     int `json:"beginner"`
	Intermediate int `json:"intermediate"`
	Advanced     int `json:"advanced"`
}

// ReviewStats aggregates the state of the whole review schedule.
type ReviewStats struct {
	Total          int              `json:"total"`
	TodayReview    int              `json:"todayReview"`
	UpcomingReview int              `json:"upcomingReview"`
	ByMastery      MasteryBreakdown `json:"byMastery"`
	Accuracy       int              `json:"accuracy"`
	TotalReviews   int              `json:"totalReviews"`
}

// CalendarDay is the number of reviews falling due on Date (YYYY-MM-DD).
type CalendarDay struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}
