package domain

import (
	"strings"
	"time"
)

// Local storage keys. Each logical store serializes to a single key.
const (
	KeyVocabulary     = "vocab_book"
	KeyReviewSchedule = "review_schedule"
	KeyWrongQuestions = "wrong_questions"
	KeyCheckIns       = "study_checkin_data"
	KeyStudyStats     = "study_stats"
	KeyAuthToken      = "auth-token"
	KeyAuthUser       = "auth-user"
)

const authKeyPrefix = "auth-"

// IsAuthKey reports whether key belongs to the auth client and must never be synced.
func IsAuthKey(key string) bool {
	return strings.HasPrefix(key, authKeyPrefix)
}

// DayMillis is one day in epoch milliseconds.
const DayMillis int64 = 24 * 60 * 60 * 1000

// Millis converts t to epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// DateString formats t as YYYY-MM-DD in t's location.
func DateString(t time.Time) string {
	return t.Format("2006-01-02")
}
