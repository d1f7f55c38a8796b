// Package vocab manages the user's saved vocabulary words.
package vocab

import (
	"fmt"

	"github.com/conorfennell/vocabsync/internal/domain"
	"github.com/conorfennell/vocabsync/internal/kv"
)

// Repository stores the whole vocabulary list under a single key.
type Repository struct {
	store kv.Store
}

// New creates a Repository over store.
func New(store kv.Store) *Repository {
	return &Repository{store: store}
}

// All returns every saved word. Entries written without a category get CategoryOther.
func (r *Repository) All() ([]domain.Word, error) {
	words, err := kv.LoadList[domain.Word](r.store, domain.KeyVocabulary)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}
	for i := range words {
		words[i].Category = domain.NormalizeCategory(words[i].Category)
	}
	return words, nil
}

func (r *Repository) save(words []domain.Word) error {
	if err := kv.SaveJSON(r.store, domain.KeyVocabulary, words); err != nil {
		return fmt.Errorf("failed to save vocabulary: %w", err)
	}
	return nil
}

// Add appends w unless a word with the same OriginalWord already exists.
// It reports whether w was added.
func (r *Repository) Add(w domain.Word) (bool, error) {
	words, err := r.All()
	if err != nil {
		return false, err
	}
	for _, existing := range words {
		if existing.OriginalWord == w.OriginalWord {
			return false, nil
		}
	}
	w.Category = domain.NormalizeCategory(w.Category)
	return true, r.save(append(words, w))
}

// Remove deletes the word whose OriginalWord equals original.
func (r *Repository) Remove(original string) error {
	words, err := r.All()
	if err != nil {
		return err
	}
	kept := words[:0]
	for _, w := range words {
		if w.OriginalWord != original {
			kept = append(kept, w)
		}
	}
	return r.save(kept)
}

// Has reports whether original is saved.
func (r *Repository) Has(original string) (bool, error) {
	words, err := r.All()
	if err != nil {
		return false, err
	}
	for _, w := range words {
		if w.OriginalWord == original {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the number of saved words.
func (r *Repository) Count() (int, error) {
	words, err := r.All()
	if err != nil {
		return 0, err
	}
	return len(words), nil
}

// Clear empties the vocabulary.
func (r *Repository) Clear() error {
	return r.save([]domain.Word{})
}

// ByCategory returns the words tagged with c.
func (r *Repository) ByCategory(c domain.Category) ([]domain.Word, error) {
	words, err := r.All()
	if err != nil {
		return nil, err
	}
	var out []domain.Word
	for _, w := range words {
		if w.Category == c {
			out = append(out, w)
		}
	}
	return out, nil
}

// CategoryStats counts words per category. Every category is present in the result.
func (r *Repository) CategoryStats() (map[domain.Category]int, error) {
	words, err := r.All()
	if err != nil {
		return nil, err
	}
	stats := make(map[domain.Category]int, len(domain.Categories))
	for _, c := range domain.Categories {
		stats[c] = 0
	}
	for _, w := range words {
		stats[w.Category]++
	}
	return stats, nil
}
