package omr

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BatchInput is one sheet of a batch. Load is called on a worker goroutine,
// so decoding happens in parallel too.
type BatchInput struct {
	// Label identifies the sheet in logs (usually the file name).
	Label string
	Load  func() (image.Image, error)
}

// BatchOptions controls RunBatch.
type BatchOptions struct {
	// Workers bounds the number of sheets evaluated at once; < 1 means 1.
	Workers int
	// Name is the student or class name used to label results.
	Name string
	// Evaluate is passed to every Evaluate call.
	Evaluate Options
}

// BatchItem is the outcome for one input, in input order.
type BatchItem struct {
	Index   int          `json:"index"`
	Label   string       `json:"label"`
	Student string       `json:"student"`
	Report  *ScoreReport `json:"report,omitempty"`
	Error   string       `json:"error,omitempty"`
	Kind    ErrorKind    `json:"kind,omitempty"`

	err error
}

// Err returns the evaluation error, if any.
func (b BatchItem) Err() error { return b.err }

// SubjectAverage is the mean score of one subject over a batch.
type SubjectAverage struct {
	Subject string  `json:"subject"`
	Average float64 `json:"average"`
}

// BatchStats aggregates the successful sheets of a batch.
type BatchStats struct {
	Evaluated       int              `json:"evaluated"`
	Failed          int              `json:"failed"`
	SubjectAverages []SubjectAverage `json:"subject_averages"`
	AverageTotal    float64          `json:"average_total"`
	HighestTotal    int              `json:"highest_total"`
	LowestTotal     int              `json:"lowest_total"`
}

// BatchResult is the output of RunBatch.
type BatchResult struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Items      []BatchItem `json:"items"`
	Stats      BatchStats  `json:"stats"`
}

// RunBatch evaluates inputs on a bounded worker pool.
//
// A failing sheet never stops the batch: its item carries the error and its
// Kind, and it is left out of the statistics. Items are returned in input
// order whatever order the workers finish in.
func RunBatch(ctx context.Context, inputs []BatchInput, cfg GridConfig, keys *KeySet, opts BatchOptions) *BatchResult {
	log := opts.Evaluate.logger()
	res := &BatchResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Items:     make([]BatchItem, len(inputs)),
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(inputs) && len(inputs) > 0 {
		workers = len(inputs)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				res.Items[idx] = evaluateOne(ctx, idx, inputs[idx], cfg, keys, opts, log)
			}
		}()
	}

	for i := range inputs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i := range res.Items {
		item := &res.Items[i]
		sheetID := ""
		if item.Report != nil {
			sheetID = item.Report.SheetID
		}
		item.Student = StudentName(opts.Name, i, len(inputs), sheetID)
	}

	res.Stats = ComputeStats(cfg, res.Items)
	res.FinishedAt = time.Now().UTC()

	log.WithFields(logrus.Fields{
		"run_id":    res.RunID,
		"evaluated": res.Stats.Evaluated,
		"failed":    res.Stats.Failed,
		"elapsed":   res.FinishedAt.Sub(res.StartedAt),
	}).Info("batch finished")
	return res
}

func evaluateOne(ctx context.Context, idx int, in BatchInput, cfg GridConfig, keys *KeySet, opts BatchOptions, log logrus.FieldLogger) BatchItem {
	item := BatchItem{Index: idx, Label: in.Label}
	fail := func(err error, kind ErrorKind) BatchItem {
		item.err = err
		item.Error = err.Error()
		item.Kind = kind
		log.WithFields(logrus.Fields{"sheet": in.Label, "kind": item.Kind}).WithError(err).Warn("sheet failed")
		return item
	}

	if err := ctx.Err(); err != nil {
		return fail(err, KindCancelled)
	}
	if in.Load == nil {
		return fail(fmt.Errorf("sheet %q has no loader", in.Label), KindIO)
	}
	// Any failure to produce pixels (missing file, corrupt data) is an
	// input problem.
	img, err := in.Load()
	if err != nil {
		return fail(err, KindIO)
	}

	eval, err := Evaluate(ctx, NewRawImage(img), cfg, keys, opts.Evaluate)
	if err != nil {
		return fail(err, Kind(err))
	}
	item.Report = eval.Report
	log.WithFields(logrus.Fields{"sheet": in.Label, "total": eval.Report.Total}).Debug("sheet evaluated")
	return item
}

// StudentName labels the idx-th (zero-based) sheet of a batch of count.
//
// A decoded sheet id always wins. Otherwise a single sheet takes name as is,
// a multi-sheet batch numbers it as name_1, name_2, ..., and without a name
// sheets become Student_1, Student_2, ...
func StudentName(name string, idx, count int, sheetID string) string {
	switch {
	case sheetID != "":
		return sheetID
	case name != "" && count == 1:
		return name
	case name != "":
		return fmt.Sprintf("%s_%d", name, idx+1)
	}
	return fmt.Sprintf("Student_%d", idx+1)
}

// ComputeStats aggregates the items that have a report.
func ComputeStats(cfg GridConfig, items []BatchItem) BatchStats {
	stats := BatchStats{SubjectAverages: make([]SubjectAverage, len(cfg.Subjects))}
	sums := make([]int, len(cfg.Subjects))
	totalSum := 0
	stats.LowestTotal = math.MaxInt

	for _, it := range items {
		if it.Report == nil {
			stats.Failed++
			continue
		}
		stats.Evaluated++
		for s, name := range cfg.Subjects {
			if sc, ok := it.Report.SubjectScore(name); ok {
				sums[s] += sc.Correct
			}
		}
		totalSum += it.Report.Total
		if it.Report.Total > stats.HighestTotal {
			stats.HighestTotal = it.Report.Total
		}
		if it.Report.Total < stats.LowestTotal {
			stats.LowestTotal = it.Report.Total
		}
	}

	for s, name := range cfg.Subjects {
		stats.SubjectAverages[s] = SubjectAverage{Subject: name}
		if stats.Evaluated > 0 {
			stats.SubjectAverages[s].Average = float64(sums[s]) / float64(stats.Evaluated)
		}
	}
	if stats.Evaluated == 0 {
		stats.LowestTotal = 0
		return stats
	}
	stats.AverageTotal = float64(totalSum) / float64(stats.Evaluated)
	return stats
}
