package review

import (
	"testing"
	"time"

	"github.com/conorfennell/vocabsync/internal/domain"
	"github.com/conorfennell/vocabsync/internal/kv"
	"github.com/conorfennell/vocabsync/internal/vocab"
)

type clock struct{ ms int64 }

func (c *clock) now() time.Time { return time.UnixMilli(c.ms) }

func newScheduler(t *testing.T) (*Scheduler, *vocab.Repository, *clock) {
	t.Helper()
	store := kv.NewMemory()
	words := vocab.New(store)
	c := &clock{}
	return NewScheduler(store, words, WithClock(c.now)), words, c
}

func mustItems(t *testing.T, s *Scheduler) []domain.ReviewItem {
	t.Helper()
	items, err := s.Items()
	if err != nil {
		t.Fatalf("Items() returned an unexpected error: %v", err)
	}
	return items
}

func checkScheduleInvariant(t *testing.T, item domain.ReviewItem) {
	t.Helper()
	expected := item.LastReviewTime + int64(Intervals[item.MasteryLevel])*domain.DayMillis
	if item.NextReviewTime != expected {
		t.Errorf("Expected nextReviewTime %d, but got %d", expected, item.NextReviewTime)
	}
}

func TestCreateReviewPlanIsIdempotent(t *testing.T) {
	s, _, c := newScheduler(t)
	word := domain.Word{OriginalWord: "猫", EnglishWord: "cat", Timestamp: 0}

	if err := s.CreateReviewPlan(word); err != nil {
		t.Fatalf("CreateReviewPlan() returned an unexpected error: %v", err)
	}
	first := mustItems(t, s)[0]

	c.ms = 5000
	if err := s.CreateReviewPlan(word); err != nil {
		t.Fatalf("CreateReviewPlan() returned an unexpected error: %v", err)
	}

	items := mustItems(t, s)
	if len(items) != 1 {
		t.Fatalf("Expected exactly 1 review item, but got %d", len(items))
	}
	if items[0] != first {
		t.Errorf("Expected the second call to leave the item untouched, but got %+v", items[0])
	}
}

func TestFreshWordLifecycle(t *testing.T) {
	s, _, c := newScheduler(t)

	if err := s.CreateReviewPlan(domain.Word{OriginalWord: "猫", EnglishWord: "cat", Timestamp: 0}); err != nil {
		t.Fatalf("CreateReviewPlan() returned an unexpected error: %v", err)
	}
	item := mustItems(t, s)[0]
	if item.MasteryLevel != 0 || item.NextReviewTime != 86400000 {
		t.Fatalf("Expected level 0 due at 86400000, but got level %d due at %d", item.MasteryLevel, item.NextReviewTime)
	}
	if item.WordID != "cat_0" {
		t.Errorf("Expected wordId 'cat_0', but got %q", item.WordID)
	}

	c.ms = 86400000
	s.RecordReview(item.WordID, true)
	item = mustItems(t, s)[0]
	if item.MasteryLevel != 1 || item.NextReviewTime != 259200000 {
		t.Fatalf("Expected level 1 due at 259200000, but got level %d due at %d", item.MasteryLevel, item.NextReviewTime)
	}

	c.ms = 100000000
	s.RecordReview(item.WordID, false)
	item = mustItems(t, s)[0]
	if item.MasteryLevel != 0 {
		t.Errorf("Expected level 0 after a wrong answer, but got %d", item.MasteryLevel)
	}
	if item.NextReviewTime != item.LastReviewTime+86400000 || item.LastReviewTime != 100000000 {
		t.Errorf("Expected next review one day after %d, but got last=%d next=%d", c.ms, item.LastReviewTime, item.NextReviewTime)
	}
	if item.ReviewCount != 2 || item.CorrectCount != 1 || item.WrongCount != 1 {
		t.Errorf("Expected counters 2/1/1, but got %d/%d/%d", item.ReviewCount, item.CorrectCount, item.WrongCount)
	}
}

func TestRecordReviewKeepsInvariants(t *testing.T) {
	s, _, c := newScheduler(t)
	s.CreateReviewPlan(domain.Word{EnglishWord: "dog"})
	id := mustItems(t, s)[0].WordID

	outcomes := []bool{true, true, true, true, true, true, true, true, false, false, true, false,
		false, false, false, false, false, false, true}
	for i, correct := range outcomes {
		c.ms += int64(i+1) * 3600000
		before := mustItems(t, s)[0].MasteryLevel
		if err := s.RecordReview(id, correct); err != nil {
			t.Fatalf("RecordReview() returned an unexpected error: %v", err)
		}
		item := mustItems(t, s)[0]
		if item.MasteryLevel < 0 || item.MasteryLevel > MaxLevel {
			t.Fatalf("Step %d: level %d outside the ladder", i, item.MasteryLevel)
		}
		want := NextLevel(before, correct)
		if item.MasteryLevel != want {
			t.Errorf("Step %d: expected level %d, but got %d", i, want, item.MasteryLevel)
		}
		if item.LastReviewTime != c.ms {
			t.Errorf("Step %d: expected lastReviewTime %d, but got %d", i, c.ms, item.LastReviewTime)
		}
		checkScheduleInvariant(t, item)
	}
}

func TestRecordReviewUnknownIDIsNoop(t *testing.T) {
	s, _, _ := newScheduler(t)
	s.CreateReviewPlan(domain.Word{EnglishWord: "cat"})
	before := mustItems(t, s)[0]

	if err := s.RecordReview("nope_1", true); err != nil {
		t.Fatalf("Expected unknown wordId to be ignored, got %v", err)
	}
	if after := mustItems(t, s)[0]; after != before {
		t.Errorf("Expected item to be unchanged, but got %+v", after)
	}
}

func TestInitializeReviewPlansBackfillsFromWordTimestamp(t *testing.T) {
	s, words, c := newScheduler(t)
	c.ms = 50 * domain.DayMillis

	words.Add(domain.Word{OriginalWord: "猫", EnglishWord: "cat", Timestamp: 1000})
	words.Add(domain.Word{OriginalWord: "狗", EnglishWord: "dog", Timestamp: 2000})
	s.CreateReviewPlan(domain.Word{EnglishWord: "cat", Timestamp: 1000})

	created, err := s.InitializeReviewPlans()
	if err != nil {
		t.Fatalf("InitializeReviewPlans() returned an unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("Expected 1 plan to be created, but got %d", created)
	}

	info, _ := s.WordReviewInfo("dog")
	if info == nil {
		t.Fatal("Expected a plan for 'dog'")
	}
	if info.WordID != "dog_2000" || info.LastReviewTime != 2000 || info.AddedTime != 2000 {
		t.Errorf("Expected plan seeded from the word timestamp, but got %+v", info)
	}
	checkScheduleInvariant(t, *info)

	created, _ = s.InitializeReviewPlans()
	if created != 0 {
		t.Errorf("Expected a second backfill to create nothing, but got %d", created)
	}
}

func TestDueAndUpcomingSets(t *testing.T) {
	s, _, c := newScheduler(t)
	store := s.store
	day := domain.DayMillis
	kv.SaveJSON(store, domain.KeyReviewSchedule, []domain.ReviewItem{
		{WordID: "late", Word: "late", NextReviewTime: 10*day - 5},
		{WordID: "now", Word: "now", NextReviewTime: 10 * day},
		{WordID: "earliest", Word: "earliest", NextReviewTime: 1},
		{WordID: "soon", Word: "soon", NextReviewTime: 10*day + 1},
		{WordID: "edge", Word: "edge", NextReviewTime: 13 * day},
		{WordID: "far", Word: "far", NextReviewTime: 13*day + 1},
	})
	c.ms = 10 * day

	due, _ := s.TodayReviewWords()
	upcoming, _ := s.UpcomingReviewWords()

	assertIDs(t, "due", due, []string{"earliest", "late", "now"})
	assertIDs(t, "upcoming", upcoming, []string{"soon", "edge"})

	seen := map[string]bool{}
	for _, item := range due {
		seen[item.WordID] = true
	}
	for _, item := range upcoming {
		if seen[item.WordID] {
			t.Errorf("Expected due and upcoming to be disjoint, but %q is in both", item.WordID)
		}
	}
}

func assertIDs(t *testing.T, label string, items []domain.ReviewItem, expected []string) {
	t.Helper()
	if len(items) != len(expected) {
		t.Fatalf("Expected %d %s items, but got %d", len(expected), label, len(items))
	}
	for i, id := range expected {
		if items[i].WordID != id {
			t.Errorf("Expected %s[%d] to be %q, but got %q", label, i, id, items[i].WordID)
		}
	}
}

func TestStats(t *testing.T) {
	t.Run("no attempts gives zero accuracy", func(t *testing.T) {
		s, _, _ := newScheduler(t)
		s.CreateReviewPlan(domain.Word{EnglishWord: "cat"})
		stats, err := s.Stats()
		if err != nil {
			t.Fatalf("Stats() returned an unexpected error: %v", err)
		}
		if stats.Accuracy != 0 || stats.Total != 1 || stats.ByMastery.Beginner != 1 {
			t.Errorf("Unexpected stats %+v", stats)
		}
	})

	t.Run("accuracy and mastery buckets", func(t *testing.T) {
		s, _, c := newScheduler(t)
		c.ms = 0
		kv.SaveJSON(s.store, domain.KeyReviewSchedule, []domain.ReviewItem{
			{WordID: "a", MasteryLevel: 0, CorrectCount: 1, WrongCount: 2, ReviewCount: 3, NextReviewTime: 0},
			{WordID: "b", MasteryLevel: 2, CorrectCount: 1, ReviewCount: 1, NextReviewTime: domain.DayMillis},
			{WordID: "c", MasteryLevel: 4, NextReviewTime: 10 * domain.DayMillis},
			{WordID: "d", MasteryLevel: 6, NextReviewTime: 10 * domain.DayMillis},
		})
		stats, _ := s.Stats()
		// 2 correct out of 4 attempts.
		if stats.Accuracy != 50 {
			t.Errorf("Expected accuracy 50, but got %d", stats.Accuracy)
		}
		expected := domain.MasteryBreakdown{Beginner: 1, Intermediate: 2, Advanced: 1}
		if stats.ByMastery != expected {
			t.Errorf("Expected %+v, but got %+v", expected, stats.ByMastery)
		}
		if stats.TodayReview != 1 || stats.UpcomingReview != 1 || stats.TotalReviews != 4 {
			t.Errorf("Unexpected counts %+v", stats)
		}
	})

	t.Run("accuracy rounds", func(t *testing.T) {
		s, _, _ := newScheduler(t)
		kv.SaveJSON(s.store, domain.KeyReviewSchedule, []domain.ReviewItem{
			{WordID: "a", CorrectCount: 2, WrongCount: 1},
		})
		stats, _ := s.Stats()
		if stats.Accuracy != 67 {
			t.Errorf("Expected accuracy 67, but got %d", stats.Accuracy)
		}
	})
}

func TestResetAndDelete(t *testing.T) {
	s, _, c := newScheduler(t)
	s.CreateReviewPlan(domain.Word{EnglishWord: "cat"})
	s.CreateReviewPlan(domain.Word{EnglishWord: "dog"})
	id := mustItems(t, s)[0].WordID
	s.RecordReview(id, true)
	s.RecordReview(id, true)

	c.ms = 7777
	if err := s.ResetWordProgress(id); err != nil {
		t.Fatalf("ResetWordProgress() returned an unexpected error: %v", err)
	}
	item := mustItems(t, s)[0]
	if item.MasteryLevel != 0 || item.ReviewCount != 0 || item.CorrectCount != 0 || item.LastReviewTime != 7777 {
		t.Errorf("Expected a reset item, but got %+v", item)
	}
	checkScheduleInvariant(t, item)

	if err := s.DeleteReviewPlan(id); err != nil {
		t.Fatalf("DeleteReviewPlan() returned an unexpected error: %v", err)
	}
	items := mustItems(t, s)
	if len(items) != 1 || items[0].Word != "dog" {
		t.Errorf("Expected only 'dog' to remain, but got %+v", items)
	}
}

func TestReviewCalendar(t *testing.T) {
	s, _, c := newScheduler(t)
	base := time.Date(2024, 6, 10, 15, 0, 0, 0, time.Local)
	c.ms = base.UnixMilli()
	startOfDay := time.Date(2024, 6, 10, 0, 0, 0, 0, time.Local)
	kv.SaveJSON(s.store, domain.KeyReviewSchedule, []domain.ReviewItem{
		{WordID: "a", NextReviewTime: startOfDay.UnixMilli()},
		{WordID: "b", NextReviewTime: startOfDay.Add(20 * time.Hour).UnixMilli()},
		{WordID: "c", NextReviewTime: startOfDay.AddDate(0, 0, 2).Add(time.Hour).UnixMilli()},
	})

	calendar, err := s.ReviewCalendar(30)
	if err != nil {
		t.Fatalf("ReviewCalendar() returned an unexpected error: %v", err)
	}
	if len(calendar) != 30 {
		t.Fatalf("Expected 30 days, but got %d", len(calendar))
	}
	if calendar[0].Date != "2024-06-10" || calendar[0].Count != 2 {
		t.Errorf("Expected 2 reviews on 2024-06-10, but got %+v", calendar[0])
	}
	if calendar[2].Count != 1 {
		t.Errorf("Expected 1 review on day 2, but got %+v", calendar[2])
	}

	for _, days := range []int{0, -1, -30} {
		calendar, err := s.ReviewCalendar(days)
		if err != nil {
			t.Fatalf("ReviewCalendar(%d) returned an unexpected error: %v", days, err)
		}
		if len(calendar) != 0 {
			t.Errorf("Expected an empty calendar for %d days, but got %d entries", days, len(calendar))
		}
	}
}
