// Package importer loads vocabulary from .xlsx and .csv spreadsheets.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/conorfennell/vocabsync/internal/domain"
)

// Config maps spreadsheet columns onto word fields. Columns are letters, e.g. "A".
type Config struct {
	FilePath          string
	SheetName         string // Empty means the first sheet
	StartRow          int    // 1-based; rows above it are headers
	OriginalColumn    string
	EnglishColumn     string
	PhoneticColumn    string
	ExplanationColumn string
	CategoryColumn    string
	ScenariosColumn   string // Semicolon-separated usage scenarios
}

// DefaultConfig returns the default column layout A..F with one header row.
func DefaultConfig(path string) Config {
	return Config{
		FilePath:          path,
		StartRow:          2,
		OriginalColumn:    "A",
		EnglishColumn:     "B",
		PhoneticColumn:    "C",
		ExplanationColumn: "D",
		CategoryColumn:    "E",
		ScenariosColumn:   "F",
	}
}

// Result holds the result of an import operation.
type Result struct {
	TotalProcessed int
	Created        int
	Skipped        int
	Errors         []string
}

// WordStore saves vocabulary. *vocab.Repository implements it.
type WordStore interface {
	Add(w domain.Word) (bool, error)
}

// Planner schedules new words for review. *review.Scheduler implements it.
type Planner interface {
	CreateReviewPlan(w domain.Word) error
}

// Importer adds spreadsheet rows as words with review plans.
type Importer struct {
	words WordStore
	plans Planner
	now   func() time.Time
}

// New creates an Importer.
func New(words WordStore, plans Planner) *Importer {
	return &Importer{words: words, plans: plans, now: time.Now}
}

// Import reads cfg.FilePath. Files ending in .csv are read as CSV, anything else as Excel.
// Row problems are collected in Result.Errors; only unreadable files fail the call.
func (im *Importer) Import(cfg Config) (*Result, error) {
	cols, err := resolveColumns(cfg)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	if strings.EqualFold(filepath.Ext(cfg.FilePath), ".csv") {
		rows, err = readCSV(cfg.FilePath)
	} else {
		rows, err = readExcel(cfg.FilePath, cfg.SheetName)
	}
	if err != nil {
		return nil, err
	}

	start := max(cfg.StartRow, 1)
	result := &Result{Errors: make([]string, 0)}
	for i, row := range rows {
		if i < start-1 || blank(row) {
			continue
		}
		result.TotalProcessed++

		created, err := im.processRow(row, cols)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
		case created:
			result.Created++
		default:
			result.Skipped++
		}
	}
	return result, nil
}

type columns struct {
	original, english, phonetic, explanation, category, scenarios int
}

// resolveColumns turns letters into 0-based indexes; an empty letter is -1.
func resolveColumns(cfg Config) (columns, error) {
	var cols columns
	targets := []struct {
		letter string
		dst    *int
	}{
		{cfg.OriginalColumn, &cols.original},
		{cfg.EnglishColumn, &cols.english},
		{cfg.PhoneticColumn, &cols.phonetic},
		{cfg.ExplanationColumn, &cols.explanation},
		{cfg.CategoryColumn, &cols.category},
		{cfg.ScenariosColumn, &cols.scenarios},
	}
	for _, t := range targets {
		if t.letter == "" {
			*t.dst = -1
			continue
		}
		n, err := excelize.ColumnNameToNumber(t.letter)
		if err != nil {
			return cols, fmt.Errorf("invalid column %q: %w", t.letter, err)
		}
		*t.dst = n - 1
	}
	if cols.original < 0 || cols.english < 0 {
		return cols, errors.New("original and english columns are required")
	}
	return cols, nil
}

func (im *Importer) processRow(row []string, cols columns) (bool, error) {
	w := domain.Word{
		OriginalWord:     cell(row, cols.original),
		EnglishWord:      cell(row, cols.english),
		Phonetic:         cell(row, cols.phonetic),
		PlainExplanation: cell(row, cols.explanation),
		Category:         domain.NormalizeCategory(domain.Category(cell(row, cols.category))),
		UsageScenarios:   splitScenarios(cell(row, cols.scenarios)),
		Timestamp:        domain.Millis(im.now()),
	}
	if w.OriginalWord == "" || w.EnglishWord == "" {
		return false, errors.New("word and english word are required")
	}

	added, err := im.words.Add(w)
	if err != nil {
		return false, err
	}
	if !added {
		return false, nil
	}
	if err := im.plans.CreateReviewPlan(w); err != nil {
		return true, fmt.Errorf("word added but review plan failed: %w", err)
	}
	return true, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func splitScenarios(s string) []string {
	out := []string{}
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '；' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func readExcel(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
