package domain

// CheckIn holds the study counters of one calendar day.
type CheckIn struct {
	Date              string `json:"date"`
	Timestamp         int64  `json:"timestamp"`
	StudyMinutes      int    `json:"studyMinutes"`
	WordsLearned      int    `json:"wordsLearned"`
	QuestionsAnswered int    `json:"questionsAnswered"`
	LessonsCompleted  int    `json:"lessonsCompleted"`
}

// Progress is an increment applied to today's check-in counters.
type Progress struct {
	StudyMinutes      int
	WordsLearned      int
	QuestionsAnswered int
	LessonsCompleted  int
}

// StudyStats is the persisted aggregate over all check-ins.
type StudyStats struct {
	TotalDays         int `json:"totalDays"`
	CurrentStreak     int `json:"currentStreak"`
	LongestStreak     int `json:"longestStreak"`
	TotalStudyMinutes int `json:"totalStudyMinutes"`
	TotalWords        int `json:"totalWords"`
	TotalQuestions    int `json:"totalQuestions"`
	TotalLessons      int `json:"totalLessons"`
	Level             int `json:"level"`
	Exp               int `json:"exp"`
}

// Achievement is a milestone unlocked by study statistics.
type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Unlocked    bool   `json:"unlocked"`
}

// CalendarEntry reports whether the user checked in on Date.
type CalendarEntry struct {
	Date         string   `json:"date"`
	HasCheckedIn bool     `json:"hasCheckedIn"`
	Data         *CheckIn `json:"data,omitempty"`
}
