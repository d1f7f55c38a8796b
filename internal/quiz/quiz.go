// Package quiz builds recall questions from saved vocabulary.
package quiz

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/conorfennell/vocabsync/internal/domain"
)

// ErrNoWords is returned by Generate when the vocabulary is empty.
var ErrNoWords = errors.New("vocabulary is empty")

// Question asks for a word by describing it without naming it.
type Question struct {
	ID            string      `json:"id"`
	Scenario      string      `json:"scenario"`
	CorrectAnswer string      `json:"correctAnswer"`
	Word          domain.Word `json:"fullResult"`
}

// WordSource lists the saved vocabulary.
type WordSource interface {
	All() ([]domain.Word, error)
}

// Generator hands out questions and remembers them until they are checked.
type Generator struct {
	words WordSource
	rng   *rand.Rand
	now   func() time.Time

	mu        sync.Mutex
	questions map[string]Question
	seq       uint64
}

// NewGenerator creates a Generator. A nil rng uses a time-seeded source.
func NewGenerator(words WordSource, rng *rand.Rand) *Generator {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &Generator{
		words:     words,
		rng:       rng,
		now:       time.Now,
		questions: make(map[string]Question),
	}
}

// Generate picks a random word and describes it.
func (g *Generator) Generate() (Question, error) {
	words, err := g.words.All()
	if err != nil {
		return Question{}, err
	}
	if len(words) == 0 {
		return Question{}, ErrNoWords
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	w := words[g.rng.IntN(len(words))]
	q := Question{
		Scenario:      g.scenario(w),
		CorrectAnswer: w.OriginalWord,
		Word:          w,
	}
	g.seq++
	q.ID = questionID(q, g.now(), g.seq)
	g.questions[q.ID] = q
	return q, nil
}

// scenario prefers the life analogy, then a usage scenario, then the essence,
// and falls back to the plain explanation. Caller holds mu.
func (g *Generator) scenario(w domain.Word) string {
	if strings.TrimSpace(w.LifeAnalogy) != "" {
		return "想一想：" + w.LifeAnalogy
	}
	if len(w.UsageScenarios) > 0 {
		return "在这个场景中会用到什么词？" + w.UsageScenarios[g.rng.IntN(len(w.UsageScenarios))]
	}
	if strings.TrimSpace(w.EssenceExplanation) != "" {
		return "本质上是：" + w.EssenceExplanation + "，这是什么词？"
	}
	return "这个词的意思是：" + w.PlainExplanation
}

// Question returns a generated question that has not been forgotten.
func (g *Generator) Question(id string) (Question, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	q, ok := g.questions[id]
	return q, ok
}

// Check reports whether answer matches the question's word, ignoring case and
// surrounding whitespace. Unknown ids are never correct.
func (g *Generator) Check(id, answer string) bool {
	q, ok := g.Question(id)
	if !ok {
		return false
	}
	return Normalize(answer) == Normalize(q.CorrectAnswer)
}

// Clear forgets every generated question.
func (g *Generator) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.questions = make(map[string]Question)
}

// Normalize trims whitespace, lowercases and unifies line endings.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.TrimSpace(s)
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func questionID(q Question, at time.Time, seq uint64) string {
	content := strings.Join([]string{Normalize(q.Scenario), Normalize(q.CorrectAnswer)}, "\n")
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\n%d\n%d", content, at.UnixNano(), seq))
	return fmt.Sprintf("quiz_%d_%x", at.UnixMilli(), sum[:6])
}
