// Package export writes batch results as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ironsheep/omr-eval/internal/omr"
)

// WriteSummary writes one row per evaluated sheet: Student, one column per
// subject, Total. Failed sheets are skipped.
func WriteSummary(w io.Writer, cfg omr.GridConfig, items []omr.BatchItem) error {
	cw := csv.NewWriter(w)

	header := append([]string{"Student"}, cfg.Subjects...)
	header = append(header, "Total")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}

	for _, it := range items {
		if it.Report == nil {
			continue
		}
		row := make([]string, 0, len(header))
		row = append(row, it.Student)
		for _, s := range cfg.Subjects {
			sc, _ := it.Report.SubjectScore(s)
			row = append(row, strconv.Itoa(sc.Correct))
		}
		row = append(row, strconv.Itoa(it.Report.Total))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

var auditHeader = []string{"Student", "Variant", "Number", "Subject", "Question", "Answer", "Expected", "Correct", "FillScores"}

// WriteAudit writes every question of every evaluated sheet.
func WriteAudit(w io.Writer, items []omr.BatchItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(auditHeader); err != nil {
		return fmt.Errorf("failed to write audit header: %w", err)
	}

	for _, it := range items {
		if it.Report == nil {
			continue
		}
		for _, q := range it.Report.Questions {
			row := []string{
				it.Student,
				it.Report.Variant,
				strconv.Itoa(q.Number),
				q.Subject,
				strconv.Itoa(q.Question),
				q.Answer.String(),
				q.Expected,
				strconv.FormatBool(q.Correct),
				joinScores(q.FillScores),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write audit row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFailures lists the sheets that could not be evaluated.
func WriteFailures(w io.Writer, items []omr.BatchItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Index", "Label", "Kind", "Error"}); err != nil {
		return fmt.Errorf("failed to write failures header: %w", err)
	}
	for _, it := range items {
		if it.Report != nil {
			continue
		}
		if err := cw.Write([]string{strconv.Itoa(it.Index), it.Label, string(it.Kind), it.Error}); err != nil {
			return fmt.Errorf("failed to write failure row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func joinScores(scores []float64) string {
	parts := make([]string, len(scores))
	for i, s := range scores {
		parts[i] = strconv.FormatFloat(s, 'f', 3, 64)
	}
	return strings.Join(parts, ";")
}
