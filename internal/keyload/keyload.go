// Package keyload reads answer keys from CSV or Excel (.xlsx) files.
//
// The layout is one column per subject, named in the header row, and one row
// per question in order:
//
//	Python,Data Analysis,MySQL,Power BI,Statistics
//	a,1 - c,B,4,d
//	...
//
// A cell may be a letter in either case ("b"), a numbered letter ("2 - b") or
// a 1-based choice number ("2"). Column order does not matter; every subject
// of the grid must be present exactly once. Excel keys use the same layout on
// their first worksheet.
package keyload

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ironsheep/omr-eval/internal/omr"
)

// VariantFile names the key file of one variant.
type VariantFile struct {
	Variant string
	Path    string
}

// LoadFile reads a key file for one variant. Files ending in .xlsx or .xlsm
// are read as Excel workbooks, everything else as CSV.
func LoadFile(path, variant string, cfg omr.GridConfig) (*omr.AnswerKey, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		key, err := LoadXLSX(path, variant, cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return key, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key: %w", err)
	}
	defer f.Close()

	key, err := Load(f, variant, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return key, nil
}

// LoadSet reads one file per variant. The first file is the default variant.
func LoadSet(cfg omr.GridConfig, files ...VariantFile) (*omr.KeySet, error) {
	keys := make([]*omr.AnswerKey, 0, len(files))
	for _, vf := range files {
		k, err := LoadFile(vf.Path, vf.Variant, cfg)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return omr.NewKeySet(keys...)
}

// Load parses a key and validates it against cfg. Every problem with the
// content is reported as *omr.InvalidKeyError.
func Load(r io.Reader, variant string, cfg omr.GridConfig) (*omr.AnswerKey, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, &omr.InvalidKeyError{Reason: "malformed CSV", Variant: variant, Err: err}
	}
	return fromRecords(records, variant, cfg)
}

// LoadXLSX reads the first worksheet of an Excel workbook.
func LoadXLSX(path, variant string, cfg omr.GridConfig) (*omr.AnswerKey, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open key: %w", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &omr.InvalidKeyError{Reason: "malformed workbook", Variant: variant, Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &omr.InvalidKeyError{Reason: "workbook has no sheets", Variant: variant}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &omr.InvalidKeyError{Reason: "unreadable worksheet", Variant: variant, Err: err}
	}
	return fromRecords(rows, variant, cfg)
}

// fromRecords builds a key from a header row plus one row per question.
func fromRecords(records [][]string, variant string, cfg omr.GridConfig) (*omr.AnswerKey, error) {
	records = trimEmptyRows(records)
	if len(records) == 0 {
		return nil, &omr.InvalidKeyError{Reason: "empty key file", Variant: variant}
	}

	header := records[0]
	columns, err := mapColumns(header, variant, cfg)
	if err != nil {
		return nil, err
	}

	rows := records[1:]
	if len(rows) != cfg.QuestionsPerSubject {
		return nil, &omr.InvalidKeyError{
			Reason:  fmt.Sprintf("has %d question rows, want %d", len(rows), cfg.QuestionsPerSubject),
			Variant: variant,
		}
	}

	answers := make(map[string][]int, len(cfg.Subjects))
	for subject, col := range columns {
		choices := make([]int, len(rows))
		for q, row := range rows {
			cell := ""
			if col < len(row) {
				cell = row[col]
			}
			c, err := ParseCell(cell, cfg.Choices)
			if err != nil {
				return nil, &omr.InvalidKeyError{
					Reason:   "bad answer",
					Variant:  variant,
					Subject:  subject,
					Question: q + 1,
					Err:      err,
				}
			}
			choices[q] = c
		}
		answers[subject] = choices
	}

	key := omr.NewAnswerKey(variant, answers)
	if err := key.Validate(cfg); err != nil {
		return nil, err
	}
	return key, nil
}

// mapColumns resolves each configured subject to its column index.
func mapColumns(header []string, variant string, cfg omr.GridConfig) (map[string]int, error) {
	known := make(map[string]bool, len(cfg.Subjects))
	for _, s := range cfg.Subjects {
		known[s] = true
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch {
		case name == "":
			return nil, &omr.InvalidKeyError{Reason: fmt.Sprintf("column %d has no subject name", i+1), Variant: variant}
		case !known[name]:
			return nil, &omr.InvalidKeyError{Reason: "unknown subject", Variant: variant, Subject: name}
		}
		if _, dup := columns[name]; dup {
			return nil, &omr.InvalidKeyError{Reason: "duplicate subject", Variant: variant, Subject: name}
		}
		columns[name] = i
	}
	for _, s := range cfg.Subjects {
		if _, ok := columns[s]; !ok {
			return nil, &omr.InvalidKeyError{Reason: "missing subject", Variant: variant, Subject: s}
		}
	}
	return columns, nil
}

// ParseCell converts one key cell to a zero-based choice.
func ParseCell(cell string, choices int) (int, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return omr.NoAnswer, errors.New("empty cell")
	}
	if i := strings.Index(cell, "-"); i >= 0 {
		cell = strings.TrimSpace(cell[i+1:])
	}

	if n, err := strconv.Atoi(cell); err == nil {
		if n < 1 || n > choices {
			return omr.NoAnswer, fmt.Errorf("choice number %d out of range 1..%d", n, choices)
		}
		return n - 1, nil
	}

	c, err := omr.ParseChoice(cell)
	if err != nil {
		return omr.NoAnswer, err
	}
	if c >= choices {
		return omr.NoAnswer, fmt.Errorf("choice %s out of range A..%s", omr.ChoiceLetter(c), omr.ChoiceLetter(choices-1))
	}
	return c, nil
}

func trimEmptyRows(records [][]string) [][]string {
	for len(records) > 0 && isEmpty(records[len(records)-1]) {
		records = records[:len(records)-1]
	}
	return records
}

func isEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
