package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/vocabsync/internal/domain"
	"github.com/conorfennell/vocabsync/internal/importer"
	"github.com/conorfennell/vocabsync/internal/quiz"
	"github.com/conorfennell/vocabsync/internal/review"
)

func newFlags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

func expectArgs(args []string, n int, form string) error {
	if len(args) != n {
		return fmt.Errorf("usage: vocabsync %s", form)
	}
	return nil
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	if err := expectArgs(args, 3, "register USERNAME EMAIL PASSWORD"); err != nil {
		return err
	}
	resp, err := a.auth.Register(ctx, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Signed in as %s <%s>.\n", resp.Message, resp.User.Username, resp.User.Email)
	return nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	if err := expectArgs(args, 2, "login EMAIL PASSWORD"); err != nil {
		return err
	}
	resp, err := a.auth.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s Signed in as %s <%s>.\n", resp.Message, resp.User.Username, resp.User.Email)
	return nil
}

func cmdLogout(_ context.Context, a *app, _ []string) error {
	if err := a.auth.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

func cmdWhoami(ctx context.Context, a *app, _ []string) error {
	user, err := a.auth.CurrentUser(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s <%s> (id %d, since %s)\n", user.Username, user.Email, user.ID, user.CreatedAt)
	return nil
}

func cmdLookup(ctx context.Context, a *app, args []string) error {
	fs := newFlags("lookup")
	save := fs.Bool("save", false, "Save the word to the vocabulary book")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := expectArgs(fs.Args(), 1, "lookup WORD [--save]"); err != nil {
		return err
	}

	w, err := a.lookup.Lookup(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	printWord(a, w)
	if !*save {
		return nil
	}
	return a.saveWord(ctx, w)
}

func printWord(a *app, w domain.Word) {
	fmt.Fprintf(a.out, "%s  %s %s  [%s]\n", w.OriginalWord, w.EnglishWord, w.Phonetic, w.Category)
	fmt.Fprintf(a.out, "  %s\n", w.PlainExplanation)
	if w.LifeAnalogy != "" {
		fmt.Fprintf(a.out, "  %s\n", w.LifeAnalogy)
	}
	if w.EssenceExplanation != "" {
		fmt.Fprintf(a.out, "  %s\n", w.EssenceExplanation)
	}
	for _, s := range w.UsageScenarios {
		fmt.Fprintf(a.out, "  - %s\n", s)
	}
}

// saveWord adds w with a review plan and counts it towards today's progress.
func (a *app) saveWord(ctx context.Context, w domain.Word) error {
	added, err := a.words.Add(w)
	if err != nil {
		return err
	}
	if !added {
		fmt.Fprintf(a.out, "%s is already in the vocabulary book.\n", w.OriginalWord)
		return nil
	}
	if err := a.reviews.CreateReviewPlan(w); err != nil {
		return err
	}
	if err := a.checkin.UpdateTodayProgress(domain.Progress{WordsLearned: 1}); err != nil {
		return err
	}
	a.push(ctx, domain.KeyVocabulary, domain.KeyReviewSchedule, domain.KeyCheckIns, domain.KeyStudyStats)
	fmt.Fprintf(a.out, "Saved %s.\n", w.OriginalWord)
	return nil
}

func cmdAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlags("add")
	original := fs.String("word", "", "The word as looked up")
	english := fs.String("english", "", "English form")
	phonetic := fs.String("phonetic", "", "Pronunciation")
	explanation := fs.String("explanation", "", "Plain explanation")
	analogy := fs.String("analogy", "", "Everyday analogy")
	essence := fs.String("essence", "", "Essence of the meaning")
	category := fs.String("category", string(domain.CategoryOther), "Category")
	scenarios := fs.StringArray("scenario", nil, "Usage scenario (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*original) == "" || strings.TrimSpace(*english) == "" {
		return errors.New("usage: vocabsync add --word W --english E [--phonetic P] [--explanation X] [--category C] [--scenario S]...")
	}

	return a.saveWord(ctx, domain.Word{
		OriginalWord:       strings.TrimSpace(*original),
		EnglishWord:        strings.TrimSpace(*english),
		Phonetic:           *phonetic,
		PlainExplanation:   *explanation,
		LifeAnalogy:        *analogy,
		EssenceExplanation: *essence,
		UsageScenarios:     *scenarios,
		Category:           domain.NormalizeCategory(domain.Category(*category)),
		Timestamp:          domain.Millis(time.Now()),
	})
}

func cmdWords(_ context.Context, a *app, args []string) error {
	fs := newFlags("words")
	category := fs.String("category", "", "Only list this category")
	stats := fs.Bool("stats", false, "Show counts per category")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *stats {
		counts, err := a.words.CategoryStats()
		if err != nil {
			return err
		}
		tw := a.table()
		for _, c := range domain.Categories {
			fmt.Fprintf(tw, "%s\t%d\n", c, counts[c])
		}
		return tw.Flush()
	}

	var words []domain.Word
	var err error
	if *category != "" {
		words, err = a.words.ByCategory(domain.Category(*category))
	} else {
		words, err = a.words.All()
	}
	if err != nil {
		return err
	}
	tw := a.table()
	fmt.Fprintln(tw, "WORD\tENGLISH\tCATEGORY\tADDED")
	for _, w := range words {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", w.OriginalWord, w.EnglishWord, w.Category, formatMillis(w.Timestamp))
	}
	return tw.Flush()
}

func cmdRemove(ctx context.Context, a *app, args []string) error {
	if err := expectArgs(args, 1, "remove WORD"); err != nil {
		return err
	}
	words, err := a.words.All()
	if err != nil {
		return err
	}
	for _, w := range words {
		if w.OriginalWord != args[0] {
			continue
		}
		if err := a.words.Remove(w.OriginalWord); err != nil {
			return err
		}
		item, err := a.reviews.WordReviewInfo(w.EnglishWord)
		if err != nil {
			return err
		}
		if item != nil {
			if err := a.reviews.DeleteReviewPlan(item.WordID); err != nil {
				return err
			}
		}
		a.push(ctx, domain.KeyVocabulary, domain.KeyReviewSchedule)
		fmt.Fprintf(a.out, "Removed %s.\n", w.OriginalWord)
		return nil
	}
	return fmt.Errorf("%s is not in the vocabulary book", args[0])
}

func cmdReview(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: vocabsync review due|upcoming|stats|init|calendar|info|record|reset")
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "due":
		items, err := a.reviews.TodayReviewWords()
		if err != nil {
			return err
		}
		return printReviewItems(a, items)
	case "upcoming":
		items, err := a.reviews.UpcomingReviewWords()
		if err != nil {
			return err
		}
		return printReviewItems(a, items)
	case "stats":
		s, err := a.reviews.Stats()
		if err != nil {
			return err
		}
		tw := a.table()
		fmt.Fprintf(tw, "Total\t%d\n", s.Total)
		fmt.Fprintf(tw, "Due today\t%d\n", s.TodayReview)
		fmt.Fprintf(tw, "Due within %d days\t%d\n", review.UpcomingWindow/domain.DayMillis, s.UpcomingReview)
		fmt.Fprintf(tw, "Beginner / intermediate / advanced\t%d / %d / %d\n",
			s.ByMastery.Beginner, s.ByMastery.Intermediate, s.ByMastery.Advanced)
		fmt.Fprintf(tw, "Reviews\t%d\n", s.TotalReviews)
		fmt.Fprintf(tw, "Accuracy\t%d%%\n", s.Accuracy)
		return tw.Flush()
	case "init":
		n, err := a.reviews.InitializeReviewPlans()
		if err != nil {
			return err
		}
		if n > 0 {
			a.push(ctx, domain.KeyReviewSchedule)
		}
		fmt.Fprintf(a.out, "Created %d review plans.\n", n)
		return nil
	case "calendar":
		fs := newFlags("review calendar")
		days := fs.Int("days", 30, "Number of days to show")
		if err := fs.Parse(args); err != nil {
			return err
		}
		cal, err := a.reviews.ReviewCalendar(*days)
		if err != nil {
			return err
		}
		tw := a.table()
		for _, d := range cal {
			fmt.Fprintf(tw, "%s\t%d\n", d.Date, d.Count)
		}
		return tw.Flush()
	case "info":
		if err := expectArgs(args, 1, "review info ENGLISH_WORD"); err != nil {
			return err
		}
		item, err := a.reviews.WordReviewInfo(args[0])
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("%s has no review plan", args[0])
		}
		return printReviewItems(a, []domain.ReviewItem{*item})
	case "record":
		fs := newFlags("review record")
		wrongAnswer := fs.Bool("wrong", false, "The answer was wrong")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := expectArgs(fs.Args(), 1, "review record WORD_ID [--wrong]"); err != nil {
			return err
		}
		if err := a.reviews.RecordReview(fs.Arg(0), !*wrongAnswer); err != nil {
			return err
		}
		a.push(ctx, domain.KeyReviewSchedule)
		fmt.Fprintln(a.out, "Recorded.")
		return nil
	case "reset":
		if err := expectArgs(args, 1, "review reset WORD_ID"); err != nil {
			return err
		}
		if err := a.reviews.ResetWordProgress(args[0]); err != nil {
			return err
		}
		a.push(ctx, domain.KeyReviewSchedule)
		fmt.Fprintln(a.out, "Reset.")
		return nil
	}
	return fmt.Errorf("unknown review command %q", sub)
}

func printReviewItems(a *app, items []domain.ReviewItem) error {
	tw := a.table()
	fmt.Fprintln(tw, "ID\tWORD\tLEVEL\tNEXT\tREVIEWS\tCORRECT\tWRONG")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n", it.WordID, it.Word,
			review.MasteryLabel(it.MasteryLevel), formatMillis(it.NextReviewTime),
			it.ReviewCount, it.CorrectCount, it.WrongCount)
	}
	return tw.Flush()
}

func cmdWrong(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: vocabsync wrong list|stats|master|delete|clear")
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "list":
		fs := newFlags("wrong list")
		qtype := fs.String("type", "", "Only list this question type")
		mastered := fs.Bool("mastered", false, "List mastered questions instead")
		if err := fs.Parse(args); err != nil {
			return err
		}
		var (
			questions []domain.WrongQuestion
			err       error
		)
		switch {
		case *qtype != "":
			questions, err = a.wrongs.ByType(domain.QuestionType(*qtype))
		case *mastered:
			questions, err = a.wrongs.Mastered()
		default:
			questions, err = a.wrongs.Unmastered()
		}
		if err != nil {
			return err
		}
		tw := a.table()
		fmt.Fprintln(tw, "ID\tTYPE\tWORD\tYOUR ANSWER\tCORRECT\tREVIEWS")
		for _, q := range questions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", q.ID, q.Type, q.Word, q.UserAnswer, q.CorrectAnswer, q.ReviewCount)
		}
		return tw.Flush()
	case "stats":
		s, err := a.wrongs.Stats()
		if err != nil {
			return err
		}
		tw := a.table()
		fmt.Fprintf(tw, "Total\t%d\n", s.Total)
		fmt.Fprintf(tw, "Unmastered\t%d\n", s.Unmastered)
		fmt.Fprintf(tw, "Mastered\t%d\n", s.Mastered)
		for _, t := range domain.QuestionTypes {
			fmt.Fprintf(tw, "  %s\t%d\n", t, s.ByType[t])
		}
		return tw.Flush()
	case "master":
		if err := expectArgs(args, 1, "wrong master ID"); err != nil {
			return err
		}
		if err := a.wrongs.MarkMastered(args[0]); err != nil {
			return err
		}
	case "delete":
		if err := expectArgs(args, 1, "wrong delete ID"); err != nil {
			return err
		}
		if err := a.wrongs.Delete(args[0]); err != nil {
			return err
		}
	case "clear":
		fs := newFlags("wrong clear")
		onlyMastered := fs.Bool("mastered", false, "Only clear mastered questions")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *onlyMastered {
			if err := a.wrongs.ClearMastered(); err != nil {
				return err
			}
		} else {
			if err := a.wrongs.ClearAll(); err != nil {
				return err
			}
			// Nothing left to push; drop the server copy as well.
			if a.auth.IsAuthenticated() {
				if err := a.api.DeleteItem(ctx, a.auth.Token(), domain.KeyWrongQuestions); err != nil {
					a.logger.Warn("failed to delete remote copy", "key", domain.KeyWrongQuestions, "error", err)
				}
			}
			fmt.Fprintln(a.out, "Done.")
			return nil
		}
	default:
		return fmt.Errorf("unknown wrong command %q", sub)
	}
	a.push(ctx, domain.KeyWrongQuestions)
	fmt.Fprintln(a.out, "Done.")
	return nil
}

func cmdCheckin(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		ok, err := a.checkin.CheckIn()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(a.out, "Already checked in today.")
			return nil
		}
		a.push(ctx, domain.KeyCheckIns, domain.KeyStudyStats)
		s, err := a.checkin.Stats()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Checked in. Current streak: %d days.\n", s.CurrentStreak)
		return nil
	}

	sub, args := args[0], args[1:]
	switch sub {
	case "progress":
		fs := newFlags("checkin progress")
		var p domain.Progress
		fs.IntVar(&p.StudyMinutes, "minutes", 0, "Minutes studied")
		fs.IntVar(&p.WordsLearned, "words", 0, "Words learned")
		fs.IntVar(&p.QuestionsAnswered, "questions", 0, "Questions answered")
		fs.IntVar(&p.LessonsCompleted, "lessons", 0, "Lessons completed")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := a.checkin.UpdateTodayProgress(p); err != nil {
			return err
		}
		a.push(ctx, domain.KeyCheckIns, domain.KeyStudyStats)
		fmt.Fprintln(a.out, "Progress recorded.")
		return nil
	case "stats":
		s, err := a.checkin.Stats()
		if err != nil {
			return err
		}
		tw := a.table()
		fmt.Fprintf(tw, "Level\t%d (%d exp)\n", s.Level, s.Exp)
		fmt.Fprintf(tw, "Days\t%d\n", s.TotalDays)
		fmt.Fprintf(tw, "Current streak\t%d\n", s.CurrentStreak)
		fmt.Fprintf(tw, "Longest streak\t%d\n", s.LongestStreak)
		fmt.Fprintf(tw, "Minutes\t%d\n", s.TotalStudyMinutes)
		fmt.Fprintf(tw, "Words\t%d\n", s.TotalWords)
		fmt.Fprintf(tw, "Questions\t%d\n", s.TotalQuestions)
		fmt.Fprintf(tw, "Lessons\t%d\n", s.TotalLessons)
		return tw.Flush()
	case "achievements":
		list, err := a.checkin.Achievements()
		if err != nil {
			return err
		}
		tw := a.table()
		for _, ach := range list {
			mark := " "
			if ach.Unlocked {
				mark = "x"
			}
			fmt.Fprintf(tw, "[%s]\t%s %s\t%s\n", mark, ach.Icon, ach.Name, ach.Description)
		}
		return tw.Flush()
	case "calendar":
		fs := newFlags("checkin calendar")
		days := fs.Int("days", 30, "Number of days to show")
		if err := fs.Parse(args); err != nil {
			return err
		}
		cal, err := a.checkin.Calendar(*days)
		if err != nil {
			return err
		}
		tw := a.table()
		for _, e := range cal {
			if e.Data == nil {
				fmt.Fprintf(tw, "%s\t-\n", e.Date)
				continue
			}
			fmt.Fprintf(tw, "%s\t%d min\t%d words\t%d questions\n",
				e.Date, e.Data.StudyMinutes, e.Data.WordsLearned, e.Data.QuestionsAnswered)
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown checkin command %q", sub)
}

func cmdQuiz(ctx context.Context, a *app, args []string) error {
	fs := newFlags("quiz")
	count := fs.Int("count", 5, "Number of questions")
	if err := fs.Parse(args); err != nil {
		return err
	}

	gen := quiz.NewGenerator(a.words, nil)
	scanner := bufio.NewScanner(a.in)
	answered, correct := 0, 0
	for answered < *count {
		q, err := gen.Generate()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "\n%d. %s\n> ", answered+1, q.Scenario)
		if !scanner.Scan() {
			break
		}
		answer := scanner.Text()
		ok := gen.Check(q.ID, answer)
		answered++

		if ok {
			correct++
			fmt.Fprintln(a.out, "Correct!")
		} else {
			fmt.Fprintf(a.out, "The answer is %s (%s).\n", q.CorrectAnswer, q.Word.EnglishWord)
			if err := a.wrongs.Add(domain.WrongQuestion{
				Word:          q.Word.OriginalWord,
				Question:      q.Scenario,
				UserAnswer:    answer,
				CorrectAnswer: q.CorrectAnswer,
				Explanation:   q.Word.PlainExplanation,
				Type:          domain.QuestionQuiz,
			}); err != nil {
				return err
			}
		}

		item, err := a.reviews.WordReviewInfo(q.Word.EnglishWord)
		if err != nil {
			return err
		}
		if item != nil {
			if err := a.reviews.RecordReview(item.WordID, ok); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if answered == 0 {
		return nil
	}

	if err := a.checkin.UpdateTodayProgress(domain.Progress{QuestionsAnswered: answered}); err != nil {
		return err
	}
	a.push(ctx, domain.KeyReviewSchedule, domain.KeyWrongQuestions, domain.KeyCheckIns, domain.KeyStudyStats)
	fmt.Fprintf(a.out, "\n%d of %d correct.\n", correct, answered)
	return nil
}

func cmdImport(ctx context.Context, a *app, args []string) error {
	fs := newFlags("import")
	cfg := importer.DefaultConfig("")
	fs.StringVar(&cfg.SheetName, "sheet", "", "Sheet to read (default first)")
	fs.IntVar(&cfg.StartRow, "start-row", cfg.StartRow, "First data row")
	fs.StringVar(&cfg.OriginalColumn, "col-word", cfg.OriginalColumn, "Column of the word")
	fs.StringVar(&cfg.EnglishColumn, "col-english", cfg.EnglishColumn, "Column of the English form")
	fs.StringVar(&cfg.PhoneticColumn, "col-phonetic", cfg.PhoneticColumn, "Column of the pronunciation")
	fs.StringVar(&cfg.ExplanationColumn, "col-explanation", cfg.ExplanationColumn, "Column of the explanation")
	fs.StringVar(&cfg.CategoryColumn, "col-category", cfg.CategoryColumn, "Column of the category")
	fs.StringVar(&cfg.ScenariosColumn, "col-scenarios", cfg.ScenariosColumn, "Column of ;-separated scenarios")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := expectArgs(fs.Args(), 1, "import FILE [flags]"); err != nil {
		return err
	}
	cfg.FilePath = fs.Arg(0)

	res, err := importer.New(a.words, a.reviews).Import(cfg)
	if err != nil {
		return err
	}
	if res.Created > 0 {
		a.push(ctx, domain.KeyVocabulary, domain.KeyReviewSchedule)
	}
	fmt.Fprintf(a.out, "Processed %d rows: %d created, %d skipped.\n", res.TotalProcessed, res.Created, res.Skipped)
	for _, e := range res.Errors {
		fmt.Fprintf(a.out, "  %s\n", e)
	}
	return nil
}

func cmdSync(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: vocabsync sync upload|download|merge|auto")
	}
	switch args[0] {
	case "upload":
		n, err := a.sync.UploadAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Uploaded %d keys.\n", n)
	case "download":
		n, err := a.sync.DownloadAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Downloaded %d keys.\n", n)
	case "merge":
		n, err := a.sync.MergeData(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Merged %d keys.\n", n)
	case "auto":
		if err := a.sync.StartAutoSync(); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Syncing every %s. Press Ctrl+C to stop.\n", a.cfg.Sync.Interval)
		<-ctx.Done()
		a.sync.StopAutoSync()
	default:
		return fmt.Errorf("unknown sync command %q", args[0])
	}
	return nil
}
