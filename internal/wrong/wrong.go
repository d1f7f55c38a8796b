// Package wrong keeps the log of missed quiz questions.
package wrong

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/vocabsync/internal/domain"
	"github.com/conorfennell/vocabsync/internal/kv"
)

// Repository stores every wrong question under a single key.
type Repository struct {
	store    kv.Store
	validate *validator.Validate
	now      func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the repository's time source.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// New creates a Repository over store.
func New(store kv.Store, opts ...Option) *Repository {
	r := &Repository{store: store, validate: validator.New(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// All returns the whole log in insertion order.
func (r *Repository) All() ([]domain.WrongQuestion, error) {
	questions, err := kv.LoadList[domain.WrongQuestion](r.store, domain.KeyWrongQuestions)
	if err != nil {
		return nil, fmt.Errorf("failed to load wrong questions: %w", err)
	}
	return questions, nil
}

func (r *Repository) save(questions []domain.WrongQuestion) error {
	if err := kv.SaveJSON(r.store, domain.KeyWrongQuestions, questions); err != nil {
		return fmt.Errorf("failed to save wrong questions: %w", err)
	}
	return nil
}

// Add records a missed question. An unmastered entry for the same word and type is
// refreshed in place; otherwise a new entry is appended.
func (r *Repository) Add(q domain.WrongQuestion) error {
	if err := r.validate.Struct(q); err != nil {
		return fmt.Errorf("invalid wrong question: %w", err)
	}
	questions, err := r.All()
	if err != nil {
		return err
	}
	now := domain.Millis(r.now())

	for i := range questions {
		existing := &questions[i]
		if existing.Word == q.Word && existing.Type == q.Type && !existing.Mastered {
			existing.Question = q.Question
			existing.UserAnswer = q.UserAnswer
			existing.CorrectAnswer = q.CorrectAnswer
			existing.Explanation = q.Explanation
			existing.Timestamp = now
			return r.save(questions)
		}
	}

	q.ID = fmt.Sprintf("%s_%s_%d", q.Type, q.Word, now)
	q.Timestamp = now
	q.ReviewCount = 0
	q.LastReviewTime = nil
	q.Mastered = false
	return r.save(append(questions, q))
}

// MarkMastered flags the entry with id as mastered.
func (r *Repository) MarkMastered(id string) error {
	return r.update(id, func(q *domain.WrongQuestion) {
		q.Mastered = true
	})
}

// IncrementReviewCount records one more practice of the entry with id.
func (r *Repository) IncrementReviewCount(id string) error {
	return r.update(id, func(q *domain.WrongQuestion) {
		q.ReviewCount++
	})
}

func (r *Repository) update(id string, apply func(*domain.WrongQuestion)) error {
	questions, err := r.All()
	if err != nil {
		return err
	}
	for i := range questions {
		if questions[i].ID != id {
			continue
		}
		apply(&questions[i])
		now := domain.Millis(r.now())
		questions[i].LastReviewTime = &now
		return r.save(questions)
	}
	return nil
}

// Delete removes the entry with id.
func (r *Repository) Delete(id string) error {
	return r.keep(func(q domain.WrongQuestion) bool { return q.ID != id })
}

func (r *Repository) keep(pred func(domain.WrongQuestion) bool) error {
	questions, err := r.All()
	if err != nil {
		return err
	}
	return r.save(filter(questions, pred))
}

func filter(questions []domain.WrongQuestion, pred func(domain.WrongQuestion) bool) []domain.WrongQuestion {
	out := []domain.WrongQuestion{}
	for _, q := range questions {
		if pred(q) {
			out = append(out, q)
		}
	}
	return out
}

func (r *Repository) where(pred func(domain.WrongQuestion) bool) ([]domain.WrongQuestion, error) {
	questions, err := r.All()
	if err != nil {
		return nil, err
	}
	return filter(questions, pred), nil
}

// Unmastered returns the entries still to be practised.
func (r *Repository) Unmastered() ([]domain.WrongQuestion, error) {
	return r.where(func(q domain.WrongQuestion) bool { return !q.Mastered })
}

// Mastered returns the entries marked as mastered.
func (r *Repository) Mastered() ([]domain.WrongQuestion, error) {
	return r.where(func(q domain.WrongQuestion) bool { return q.Mastered })
}

// ByType returns the unmastered entries of type t.
func (r *Repository) ByType(t domain.QuestionType) ([]domain.WrongQuestion, error) {
	return r.where(func(q domain.WrongQuestion) bool { return q.Type == t && !q.Mastered })
}

// Stats counts the log. Every question type appears in ByType, even at zero.
func (r *Repository) Stats() (domain.WrongStats, error) {
	questions, err := r.All()
	if err != nil {
		return domain.WrongStats{}, err
	}
	stats := domain.WrongStats{
		Total:  len(questions),
		ByType: make(map[domain.QuestionType]int, len(domain.QuestionTypes)),
	}
	for _, t := range domain.QuestionTypes {
		stats.ByType[t] = 0
	}
	for _, q := range questions {
		if q.Mastered {
			stats.Mastered++
			continue
		}
		stats.Unmastered++
		stats.ByType[q.Type]++
	}
	return stats, nil
}

// ClearAll drops the whole log.
func (r *Repository) ClearAll() error {
	if err := r.store.Delete(domain.KeyWrongQuestions); err != nil {
		return fmt.Errorf("failed to clear wrong questions: %w", err)
	}
	return nil
}

// ClearMastered drops mastered entries and keeps the rest.
func (r *Repository) ClearMastered() error {
	return r.keep(func(q domain.WrongQuestion) bool { return !q.Mastered })
}
