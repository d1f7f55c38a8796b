// Package review schedules vocabulary reviews on a fixed interval ladder.
package review

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/conorfennell/vocabsync/internal/domain"
	"github.com/conorfennell/vocabsync/internal/kv"
)

// UpcomingWindow is how far ahead UpcomingReviewWords looks.
const UpcomingWindow = 3 * domain.DayMillis

// Scheduler keeps one ReviewItem per vocabulary word under a single key.
type Scheduler struct {
	store kv.Store
	words WordSource
	now   func() time.Time
}

// WordSource lists the saved vocabulary.
type WordSource interface {
	All() ([]domain.Word, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the scheduler's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a Scheduler over store.
func NewScheduler(store kv.Store, words WordSource, opts ...Option) *Scheduler {
	s := &Scheduler{store: store, words: words, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Items returns the full review schedule.
func (s *Scheduler) Items() ([]domain.ReviewItem, error) {
	items, err := kv.LoadList[domain.ReviewItem](s.store, domain.KeyReviewSchedule)
	if err != nil {
		return nil, fmt.Errorf("failed to load review schedule: %w", err)
	}
	return items, nil
}

func (s *Scheduler) save(items []domain.ReviewItem) error {
	if err := kv.SaveJSON(s.store, domain.KeyReviewSchedule, items); err != nil {
		return fmt.Errorf("failed to save review schedule: %w", err)
	}
	return nil
}

// CreateReviewPlan schedules w for its first review one ladder step from now.
// It does nothing if w already has a plan.
func (s *Scheduler) CreateReviewPlan(w domain.Word) error {
	items, err := s.Items()
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.Word == w.EnglishWord {
			return nil
		}
	}

	now := domain.Millis(s.now())
	items = append(items, domain.ReviewItem{
		WordID:         fmt.Sprintf("%s_%d", w.EnglishWord, now),
		Word:           w.EnglishWord,
		AddedTime:      w.Timestamp,
		LastReviewTime: now,
		NextReviewTime: NextReviewTime(now, 0),
	})
	return s.save(items)
}

// InitializeReviewPlans backfills a plan for every saved word that has none.
// Backfilled plans are scheduled from when the word was saved. It returns the
// number of plans created.
func (s *Scheduler) InitializeReviewPlans() (int, error) {
	words, err := s.words.All()
	if err != nil {
		return 0, err
	}
	items, err := s.Items()
	if err != nil {
		return 0, err
	}

	existing := make(map[string]bool, len(items))
	for _, item := range items {
		existing[item.Word] = true
	}

	created := 0
	for _, w := range words {
		if existing[w.EnglishWord] {
			continue
		}
		existing[w.EnglishWord] = true
		items = append(items, domain.ReviewItem{
			WordID:         fmt.Sprintf("%s_%d", w.EnglishWord, w.Timestamp),
			Word:           w.EnglishWord,
			AddedTime:      w.Timestamp,
			LastReviewTime: w.Timestamp,
			NextReviewTime: NextReviewTime(w.Timestamp, 0),
		})
		created++
	}

	if created == 0 {
		return 0, nil
	}
	return created, s.save(items)
}

// RecordReview applies a review outcome to the item with wordID and reschedules it.
// An unknown wordID is ignored.
func (s *Scheduler) RecordReview(wordID string, isCorrect bool) error {
	items, err := s.Items()
	if err != nil {
		return err
	}
	idx := indexOf(items, wordID)
	if idx < 0 {
		return nil
	}

	item := &items[idx]
	item.ReviewCount++
	if isCorrect {
		item.CorrectCount++
	} else {
		item.WrongCount++
	}
	item.MasteryLevel = NextLevel(item.MasteryLevel, isCorrect)

	now := domain.Millis(s.now())
	item.LastReviewTime = now
	item.NextReviewTime = NextReviewTime(now, item.MasteryLevel)
	return s.save(items)
}

// TodayReviewWords returns every item already due, earliest first.
func (s *Scheduler) TodayReviewWords() ([]domain.ReviewItem, error) {
	now := domain.Millis(s.now())
	return s.filter(func(item domain.ReviewItem) bool {
		return item.NextReviewTime <= now
	})
}

// UpcomingReviewWords returns items falling due within the next three days, earliest first.
func (s *Scheduler) UpcomingReviewWords() ([]domain.ReviewItem, error) {
	now := domain.Millis(s.now())
	return s.filter(func(item domain.ReviewItem) bool {
		return isUpcoming(item, now)
	})
}

func (s *Scheduler) filter(keep func(domain.ReviewItem) bool) ([]domain.ReviewItem, error) {
	items, err := s.Items()
	if err != nil {
		return nil, err
	}
	out := []domain.ReviewItem{}
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NextReviewTime < out[j].NextReviewTime
	})
	return out, nil
}

func isUpcoming(item domain.ReviewItem, now int64) bool {
	return item.NextReviewTime > now && item.NextReviewTime <= now+UpcomingWindow
}

// Stats aggregates the schedule. Accuracy is 0 until the first answer is recorded.
func (s *Scheduler) Stats() (domain.ReviewStats, error) {
	items, err := s.Items()
	if err != nil {
		return domain.ReviewStats{}, err
	}
	now := domain.Millis(s.now())

	stats := domain.ReviewStats{Total: len(items)}
	var correct, wrong int
	for _, item := range items {
		switch {
		case item.NextReviewTime <= now:
			stats.TodayReview++
		case isUpcoming(item, now):
			stats.UpcomingReview++
		}

		switch {
		case item.MasteryLevel <= 1:
			stats.ByMastery.Beginner++
		case item.MasteryLevel <= 4:
			stats.ByMastery.Intermediate++
		default:
			stats.ByMastery.Advanced++
		}

		correct += item.CorrectCount
		wrong += item.WrongCount
		stats.TotalReviews += item.ReviewCount
	}

	if attempts := correct + wrong; attempts > 0 {
		stats.Accuracy = int(math.Round(100 * float64(correct) / float64(attempts)))
	}
	return stats, nil
}

// WordReviewInfo returns the plan for word, or nil if it has none.
func (s *Scheduler) WordReviewInfo(word string) (*domain.ReviewItem, error) {
	items, err := s.Items()
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Word == word {
			return &items[i], nil
		}
	}
	return nil, nil
}

// ResetWordProgress puts the item back at level 0 with cleared counters.
func (s *Scheduler) ResetWordProgress(wordID string) error {
	items, err := s.Items()
	if err != nil {
		return err
	}
	idx := indexOf(items, wordID)
	if idx < 0 {
		return nil
	}

	now := domain.Millis(s.now())
	item := &items[idx]
	item.MasteryLevel = 0
	item.ReviewCount = 0
	item.CorrectCount = 0
	item.WrongCount = 0
	item.LastReviewTime = now
	item.NextReviewTime = NextReviewTime(now, 0)
	return s.save(items)
}

// DeleteReviewPlan removes the item with wordID.
func (s *Scheduler) DeleteReviewPlan(wordID string) error {
	items, err := s.Items()
	if err != nil {
		return err
	}
	kept := items[:0]
	for _, item := range items {
		if item.WordID != wordID {
			kept = append(kept, item)
		}
	}
	return s.save(kept)
}

// ReviewCalendar counts reviews falling due on each of the next days local calendar days,
// starting today. A negative days yields an empty calendar.
func (s *Scheduler) ReviewCalendar(days int) ([]domain.CalendarDay, error) {
	days = max(days, 0)
	items, err := s.Items()
	if err != nil {
		return nil, err
	}
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	calendar := make([]domain.CalendarDay, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		from, to := domain.Millis(day), domain.Millis(day.AddDate(0, 0, 1))
		count := 0
		for _, item := range items {
			if item.NextReviewTime >= from && item.NextReviewTime < to {
				count++
			}
		}
		calendar = append(calendar, domain.CalendarDay{Date: domain.DateString(day), Count: count})
	}
	return calendar, nil
}

func indexOf(items []domain.ReviewItem, wordID string) int {
	for i := range items {
		if items[i].WordID == wordID {
			return i
		}
	}
	return -1
}
