package domain

// QuestionType identifies the quiz mode a wrong answer came from.
type QuestionType string

const (
	QuestionQuiz    QuestionType = "quiz"
	QuestionDictate QuestionType = "dictate"
	QuestionTerm    QuestionType = "term"
	QuestionDeep    QuestionType = "deep"
)

// QuestionTypes lists every question type.
var QuestionTypes = []QuestionType{QuestionQuiz, QuestionDictate, QuestionTerm, QuestionDeep}

// WrongQuestion is a missed question kept for later practice.
type WrongQuestion struct {
	ID             string       `json:"id"`
	Word           string       `json:"word" validate:"required"`
	Question       string       `json:"question"`
	UserAnswer     string       `json:"userAnswer"`
	CorrectAnswer  string       `json:"correctAnswer"`
	Explanation    string       `json:"explanation,omitempty"`
	Type           QuestionType `json:"type" validate:"oneof=quiz dictate term deep"`
	Timestamp      int64        `json:"timestamp"`
	ReviewCount    int          `json:"reviewCount"`
	LastReviewTime *int64       `json:"lastReviewTime,omitempty"`
	Mastered       bool         `json:"mastered"`
}

// WrongStats summarises the wrong-answer log.
// ByType counts unmastered entries only.
type WrongStats struct {
	Total      int                  `json:"total"`
	Unmastered int                  `json:"unmastered"`
	Mastered   int                  `json:"mastered"`
	ByType     map[QuestionType]int `json:"byType"`
}
