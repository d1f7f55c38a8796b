package review

import "github.com/conorfennell/vocabsync/internal/domain"

// Intervals is the review ladder in days, indexed by mastery level.
var Intervals = [...]int{1, 2, 4, 7, 15, 30, 60}

// MaxLevel is the highest mastery level.
const MaxLevel = len(Intervals) - 1

// ClampLevel forces level into [0, MaxLevel].
func ClampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// IntervalDays returns the review interval for level.
func IntervalDays(level int) int {
	return Intervals[ClampLevel(level)]
}

// NextLevel moves one step up the ladder on a correct answer and one step down
// on a wrong one, staying within bounds.
func NextLevel(level int, correct bool) int {
	if correct {
		return ClampLevel(level + 1)
	}
	return ClampLevel(level - 1)
}

// NextReviewTime is the due time, in epoch millis, for an item reviewed at from.
func NextReviewTime(from int64, level int) int64 {
	return from + int64(IntervalDays(level))*domain.DayMillis
}

// MasteryLabel is a short display label for level.
func MasteryLabel(level int) string {
	switch {
	case level <= 1:
		return "初学"
	case level <= 3:
		return "熟悉"
	case level <= 5:
		return "掌握"
	default:
		return "精通"
	}
}
