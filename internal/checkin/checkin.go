// Package checkin tracks daily study check-ins, streaks and achievements.
package checkin

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/conorfennell/vocabsync/internal/domain"
	"github.com/conorfennell/vocabsync/internal/kv"
)

// CalendarDays is the default window of Calendar.
const CalendarDays = 90

// Tracker keeps one check-in per local calendar day plus the derived stats.
type Tracker struct {
	store kv.Store
	now   func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the tracker's time source. Dates are taken in the clock's location.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker over store.
func New(store kv.Store, opts ...Option) *Tracker {
	t := &Tracker{store: store, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) today() string {
	return domain.DateString(t.now())
}

// History returns every check-in in insertion order.
func (t *Tracker) History() ([]domain.CheckIn, error) {
	history, err := kv.LoadList[domain.CheckIn](t.store, domain.KeyCheckIns)
	if err != nil {
		return nil, fmt.Errorf("failed to load check-ins: %w", err)
	}
	return history, nil
}

func (t *Tracker) saveHistory(history []domain.CheckIn) error {
	if err := kv.SaveJSON(t.store, domain.KeyCheckIns, history); err != nil {
		return fmt.Errorf("failed to save check-ins: %w", err)
	}
	return nil
}

// Stats returns the persisted aggregate, or a level-1 zero value before the first check-in.
func (t *Tracker) Stats() (domain.StudyStats, error) {
	defaults := domain.StudyStats{Level: 1}
	raw, ok, err := t.store.Get(domain.KeyStudyStats)
	if err != nil {
		return defaults, fmt.Errorf("failed to load study stats: %w", err)
	}
	if !ok {
		return defaults, nil
	}
	stats, err := kv.Decode[domain.StudyStats](domain.KeyStudyStats, raw)
	if err != nil {
		slog.Warn("discarding malformed study stats", "key", domain.KeyStudyStats, "error", err)
		return defaults, nil
	}
	return stats, nil
}

// HasCheckedInToday reports whether today's record exists.
func (t *Tracker) HasCheckedInToday() (bool, error) {
	record, err := t.TodayCheckIn()
	return record != nil, err
}

// TodayCheckIn returns today's record, or nil.
func (t *Tracker) TodayCheckIn() (*domain.CheckIn, error) {
	history, err := t.History()
	if err != nil {
		return nil, err
	}
	if i := indexOf(history, t.today()); i >= 0 {
		return &history[i], nil
	}
	return nil, nil
}

func indexOf(history []domain.CheckIn, date string) int {
	for i := range history {
		if history[i].Date == date {
			return i
		}
	}
	return -1
}

// CheckIn creates today's record. It returns false if today is already checked in.
func (t *Tracker) CheckIn() (bool, error) {
	history, err := t.History()
	if err != nil {
		return false, err
	}
	if indexOf(history, t.today()) >= 0 {
		return false, nil
	}
	history = append(history, t.newRecord())
	if err := t.saveHistory(history); err != nil {
		return false, err
	}
	return true, t.refreshStats(history)
}

func (t *Tracker) newRecord() domain.CheckIn {
	now := t.now()
	return domain.CheckIn{Date: domain.DateString(now), Timestamp: domain.Millis(now)}
}

// UpdateTodayProgress adds p to today's counters, checking in first if needed.
func (t *Tracker) UpdateTodayProgress(p domain.Progress) error {
	history, err := t.History()
	if err != nil {
		return err
	}
	i := indexOf(history, t.today())
	if i < 0 {
		history = append(history, t.newRecord())
		i = len(history) - 1
	}

	record := &history[i]
	record.StudyMinutes += p.StudyMinutes
	record.WordsLearned += p.WordsLearned
	record.QuestionsAnswered += p.QuestionsAnswered
	record.LessonsCompleted += p.LessonsCompleted

	if err := t.saveHistory(history); err != nil {
		return err
	}
	return t.refreshStats(history)
}

func (t *Tracker) refreshStats(history []domain.CheckIn) error {
	stats, err := t.Stats()
	if err != nil {
		return err
	}

	current, longest := Streaks(history, t.now())
	stats.TotalDays = len(history)
	stats.CurrentStreak = current
	stats.LongestStreak = max(stats.LongestStreak, longest)

	stats.TotalStudyMinutes, stats.TotalWords, stats.TotalQuestions, stats.TotalLessons = 0, 0, 0, 0
	for _, r := range history {
		stats.TotalStudyMinutes += r.StudyMinutes
		stats.TotalWords += r.WordsLearned
		stats.TotalQuestions += r.QuestionsAnswered
		stats.TotalLessons += r.LessonsCompleted
	}

	stats.Exp = Exp(stats)
	stats.Level = stats.Exp/100 + 1

	if err := kv.SaveJSON(t.store, domain.KeyStudyStats, stats); err != nil {
		return fmt.Errorf("failed to save study stats: %w", err)
	}
	return nil
}

// Exp is the experience earned by the totals in s.
func Exp(s domain.StudyStats) int {
	return s.TotalDays*10 + s.TotalWords*2 + s.TotalQuestions*5 + s.TotalLessons*20
}

// Streaks returns the current and longest runs of consecutive check-in days.
// The current run only counts if its last day is today or yesterday.
func Streaks(history []domain.CheckIn, now time.Time) (current, longest int) {
	if len(history) == 0 {
		return 0, 0
	}

	dates := make([]time.Time, 0, len(history))
	for _, r := range history {
		d, err := time.Parse(time.DateOnly, r.Date)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	if len(dates) == 0 {
		return 0, 0
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	run := 1
	longest = 1
	for i := 1; i < len(dates); i++ {
		if daysBetween(dates[i-1], dates[i]) == 1 {
			run++
			longest = max(longest, run)
		} else {
			run = 1
		}
	}

	today, _ := time.Parse(time.DateOnly, domain.DateString(now))
	last := dates[len(dates)-1]
	if gap := daysBetween(last, today); gap != 0 && gap != 1 {
		return 0, longest
	}

	current = 1
	for i := len(dates) - 1; i > 0; i-- {
		if daysBetween(dates[i-1], dates[i]) != 1 {
			break
		}
		current++
	}
	return current, longest
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// Achievements evaluates every milestone against the current stats.
func (t *Tracker) Achievements() ([]domain.Achievement, error) {
	stats, err := t.Stats()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Achievement, 0, len(milestones))
	for _, m := range milestones {
		a := m.Achievement
		a.Unlocked = m.reached(stats)
		out = append(out, a)
	}
	return out, nil
}

type milestone struct {
	domain.Achievement
	reached func(domain.StudyStats) bool
}

var milestones = []milestone{
	{domain.Achievement{ID: "first_day", Name: "初来乍到", Description: "完成第一天学习", Icon: "🎯"},
		func(s domain.StudyStats) bool { return s.TotalDays >= 1 }},
	{domain.Achievement{ID: "week_warrior", Name: "一周战士", Description: "连续学习7天", Icon: "🔥"},
		func(s domain.StudyStats) bool { return s.CurrentStreak >= 7 }},
	{domain.Achievement{ID: "month_master", Name: "月度大师", Description: "连续学习30天", Icon: "👑"},
		func(s domain.StudyStats) bool { return s.CurrentStreak >= 30 }},
	{domain.Achievement{ID: "vocab_100", Name: "词汇新手", Description: "学习100个词汇", Icon: "📚"},
		func(s domain.StudyStats) bool { return s.TotalWords >= 100 }},
	{domain.Achievement{ID: "vocab_500", Name: "词汇达人", Description: "学习500个词汇", Icon: "📖"},
		func(s domain.StudyStats) bool { return s.TotalWords >= 500 }},
	{domain.Achievement{ID: "quiz_100", Name: "答题新手", Description: "完成100道题目", Icon: "✏️"},
		func(s domain.StudyStats) bool { return s.TotalQuestions >= 100 }},
	{domain.Achievement{ID: "quiz_500", Name: "答题达人", Description: "完成500道题目", Icon: "✍️"},
		func(s domain.StudyStats) bool { return s.TotalQuestions >= 500 }},
	{domain.Achievement{ID: "time_10h", Name: "时间投资者", Description: "累计学习10小时", Icon: "⏰"},
		func(s domain.StudyStats) bool { return s.TotalStudyMinutes >= 600 }},
	{domain.Achievement{ID: "level_5", Name: "等级达人", Description: "达到5级", Icon: "⭐"},
		func(s domain.StudyStats) bool { return s.Level >= 5 }},
	{domain.Achievement{ID: "level_10", Name: "学习大师", Description: "达到10级", Icon: "🌟"},
		func(s domain.StudyStats) bool { return s.Level >= 10 }},
}

// Calendar lists the last days local dates, oldest first, ending today.
func (t *Tracker) Calendar(days int) ([]domain.CalendarEntry, error) {
	history, err := t.History()
	if err != nil {
		return nil, err
	}
	byDate := make(map[string]domain.CheckIn, len(history))
	for _, r := range history {
		byDate[r.Date] = r
	}

	now := t.now()
	out := make([]domain.CalendarEntry, 0, max(days, 0))
	for i := days - 1; i >= 0; i-- {
		date := domain.DateString(now.AddDate(0, 0, -i))
		entry := domain.CalendarEntry{Date: date}
		if r, ok := byDate[date]; ok {
			entry.HasCheckedIn = true
			entry.Data = &r
		}
		out = append(out, entry)
	}
	return out, nil
}
