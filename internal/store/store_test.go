package store

import (
	"context"
	"os"
	"testing"

	"github.com/ironsheep/omr-eval/internal/omr"
)

func openTestRepo(t *testing.T) *ResultRepo {
	t.Helper()
	dsn := os.Getenv("OMR_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("OMR_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("database not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewResultRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if _, err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	return repo
}

func sampleReport(total int) *omr.ScoreReport {
	return &omr.ScoreReport{
		Subjects: []omr.SubjectScore{
			{Subject: "Python", Correct: total, Questions: 20},
		},
		Total:    total,
		MaxTotal: 20,
		Variant:  "A",
	}
}

func TestSaveRejectsBadRunID(t *testing.T) {
	// insert validates before touching the database.
	if _, err := insert(context.Background(), nil, "not-a-uuid", "x", sampleReport(1)); err == nil {
		t.Error("expected error for invalid run id")
	}
}

func TestResultRepoRoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Save(ctx, "", "Asha", sampleReport(17)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	batch := &omr.BatchResult{
		RunID: "6f1c3a2e-8d4b-4b7a-9e61-2f0d3c5b7a19",
		Items: []omr.BatchItem{
			{Student: "Class7_1", Report: sampleReport(12)},
			{Student: "Class7_2", Kind: omr.KindGeometry},
			{Student: "Class7_3", Report: sampleReport(20)},
		},
	}
	n, err := repo.SaveBatch(ctx, batch)
	if err != nil {
		t.Fatalf("SaveBatch failed: %v", err)
	}
	if n != 2 {
		t.Errorf("SaveBatch wrote %d rows, want 2", n)
	}

	count, err := repo.Count(ctx)
	if err != nil || count != 3 {
		t.Fatalf("Count = %d, %v; want 3", count, err)
	}

	rows, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("List returned %d rows, want 2", len(rows))
	}
	if rows[0].Student != "Class7_3" || rows[0].Total != 20 || rows[0].RunID != batch.RunID {
		t.Errorf("newest row = %+v", rows[0])
	}
	if len(rows[0].Subjects) != 1 || rows[0].Subjects[0].Subject != "Python" {
		t.Errorf("subjects = %+v", rows[0].Subjects)
	}

	deleted, err := repo.DeleteAll(ctx)
	if err != nil || deleted != 3 {
		t.Errorf("DeleteAll = %d, %v; want 3", deleted, err)
	}
}
