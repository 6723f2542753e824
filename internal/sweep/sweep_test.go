package sweep

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"snapsift/internal/analysiscache"
	"snapsift/internal/classify"
	"snapsift/internal/logging"
)

func TestSelectBucket(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name   string
		result classify.Result
		want   Bucket
	}{
		{
			"document category wins",
			classify.Result{Decision: classify.DecisionKeep, ConfidenceKeep: 0.95, PrimaryCategory: "document"},
			BucketDocuments,
		},
		{
			"confident delete",
			classify.Result{Decision: classify.DecisionDelete, ConfidenceDelete: 0.8},
			BucketToDelete,
		},
		{
			"timid delete falls through to unsure check",
			classify.Result{Decision: classify.DecisionDelete, ConfidenceDelete: 0.4, ConfidenceUnsure: 0.55},
			BucketUnsure,
		},
		{
			"unsure decision",
			classify.Result{Decision: classify.DecisionUnsure, ConfidenceUnsure: 0.9},
			BucketUnsure,
		},
		{
			"high unsure score on a keep",
			classify.Result{Decision: classify.DecisionKeep, ConfidenceKeep: 0.4, ConfidenceUnsure: 0.6},
			BucketUnsure,
		},
		{
			"low-confidence keep",
			classify.Result{Decision: classify.DecisionKeep, ConfidenceKeep: 0.6},
			BucketLowKeep,
		},
		{
			"confident keep",
			classify.Result{Decision: classify.DecisionKeep, ConfidenceKeep: 0.9},
			BucketKeep,
		},
		{
			"timid delete with nothing else",
			classify.Result{Decision: classify.DecisionDelete, ConfidenceDelete: 0.3},
			BucketUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectBucket(tt.result, th); got != tt.want {
				t.Fatalf("SelectBucket = %q, want %q", got, tt.want)
			}
		})
	}
}

type fixture struct {
	sweeper *Sweeper
	cache   *analysiscache.Cache
	images  string
}

func verdict(decision classify.Decision, keep, del, unsure float64, category string) classify.Result {
	return classify.Result{
		Decision:         decision,
		ConfidenceKeep:   keep,
		ConfidenceDelete: del,
		ConfidenceUnsure: unsure,
		PrimaryCategory:  category,
		Reason:           "test",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	images := filepath.Join(base, "images")
	if err := os.MkdirAll(images, 0o755); err != nil {
		t.Fatal(err)
	}

	cache, err := analysiscache.Open(filepath.Join(base, "cache.json"), logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	journal, err := OpenJournal(filepath.Join(base, "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { journal.Close() })

	sweeper, err := New(Options{
		Cache:     cache,
		Journal:   journal,
		SweepRoot: filepath.Join(base, "sweep"),
		Model:     "gpt-4o-mini",
		Size:      512,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{sweeper: sweeper, cache: cache, images: images}
}

// addImage writes a dummy file and stores its verdict.
func (f *fixture) addImage(t *testing.T, name string, result classify.Result) string {
	t.Helper()
	path := filepath.Join(f.images, name)
	if err := os.WriteFile(path, []byte("image bytes for "+name), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.cache.Store("fp-"+name, path, "gpt-4o-mini", 512, result); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPlanCountsBuckets(t *testing.T) {
	f := newFixture(t)
	f.addImage(t, "delete_me.jpg", verdict(classify.DecisionDelete, 0.05, 0.9, 0.05, "screenshot"))
	f.addImage(t, "maybe.jpg", verdict(classify.DecisionUnsure, 0.3, 0.2, 0.5, "non_personal"))
	f.addImage(t, "keeper.jpg", verdict(classify.DecisionKeep, 0.95, 0.03, 0.02, "personal"))
	f.addImage(t, "scan.jpg", verdict(classify.DecisionDelete, 0.0, 0.9, 0.1, "document"))

	plan, err := f.sweeper.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan[BucketToDelete] != 1 || plan[BucketUnsure] != 1 || plan[BucketDocuments] != 1 {
		t.Fatalf("plan = %+v", plan)
	}
	if _, found := plan[BucketKeep]; found {
		t.Fatal("keep should never appear in a plan")
	}
}

func TestPlanSkipsMissingFiles(t *testing.T) {
	f := newFixture(t)
	path := f.addImage(t, "gone.jpg", verdict(classify.DecisionDelete, 0.05, 0.9, 0.05, "meme"))
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	plan, err := f.sweeper.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan) != 0 {
		t.Fatalf("plan should be empty for missing files, got %+v", plan)
	}
}

func TestCopyPhasePreservesOriginals(t *testing.T) {
	f := newFixture(t)
	src := f.addImage(t, "delete_me.jpg", verdict(classify.DecisionDelete, 0.05, 0.9, 0.05, "screenshot"))
	f.addImage(t, "keeper.jpg", verdict(classify.DecisionKeep, 0.95, 0.03, 0.02, "personal"))

	report, err := f.sweeper.Copy(context.Background(), "")
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if report.Copied != 1 {
		t.Fatalf("report = %+v", report)
	}

	if _, err := os.Stat(src); err != nil {
		t.Fatal("phase 1 must not touch originals")
	}
	copied := filepath.Join(f.sweeper.RunDir(report.RunID), string(BucketToDelete), "delete_me.jpg")
	if _, err := os.Stat(copied); err != nil {
		t.Fatalf("copy missing: %v", err)
	}

	// Re-running the same run skips existing destinations.
	rerun, err := f.sweeper.Copy(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("Copy rerun: %v", err)
	}
	if rerun.Copied != 0 || rerun.Skipped != 1 {
		t.Fatalf("rerun = %+v", rerun)
	}
}

func TestFinalizeMovesReviewBuckets(t *testing.T) {
	f := newFixture(t)
	f.addImage(t, "delete_me.jpg", verdict(classify.DecisionDelete, 0.05, 0.9, 0.05, "screenshot"))
	f.addImage(t, "maybe.jpg", verdict(classify.DecisionUnsure, 0.3, 0.2, 0.5, "non_personal"))

	copyReport, err := f.sweeper.Copy(context.Background(), "")
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}

	finalReport, err := f.sweeper.Finalize(context.Background(), copyReport.RunID)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if finalReport.Moved != 2 {
		t.Fatalf("moved = %d, want 2", finalReport.Moved)
	}

	status, err := f.sweeper.Status(context.Background(), copyReport.RunID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(status.Remaining) != 0 {
		t.Fatalf("buckets should be empty after finalize: %+v", status.Remaining)
	}
	if status.Finalized != 2 {
		t.Fatalf("finalized = %d, want 2", status.Finalized)
	}
	if status.Journal[phaseCopy] != 2 || status.Journal[phaseFinalize] != 2 {
		t.Fatalf("journal = %+v", status.Journal)
	}
}

func TestFinalizeResolvesNameCollisions(t *testing.T) {
	f := newFixture(t)
	runID := NewRunID()
	runDir := f.sweeper.RunDir(runID)

	// Same basename in two buckets.
	for _, bucket := range []Bucket{BucketToDelete, BucketUnsure} {
		dir := filepath.Join(runDir, string(bucket))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "img.jpg"), []byte(string(bucket)), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	report, err := f.sweeper.Finalize(context.Background(), runID)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if report.Moved != 2 {
		t.Fatalf("moved = %d, want 2", report.Moved)
	}

	finalDir := filepath.Join(runDir, finalDeletionDir)
	if _, err := os.Stat(filepath.Join(finalDir, "img.jpg")); err != nil {
		t.Fatal("first file should keep its name")
	}
	if _, err := os.Stat(filepath.Join(finalDir, "img_1.jpg")); err != nil {
		t.Fatal("second file should get a _1 suffix")
	}
}

func TestCopyHonorsLimit(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		f.addImage(t, name, verdict(classify.DecisionDelete, 0.05, 0.9, 0.05, "meme"))
	}
	f.sweeper.limit = 2

	report, err := f.sweeper.Copy(context.Background(), "")
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if report.Copied != 2 {
		t.Fatalf("copied = %d, want 2", report.Copied)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	f := newFixture(t)
	for _, run := range []string{"20240101-aaaa", "20240301-bbbb", "20240201-cccc"} {
		if err := os.MkdirAll(f.sweeper.RunDir(run), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := f.sweeper.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	want := []string{"20240301-bbbb", "20240201-cccc", "20240101-aaaa"}
	if len(runs) != len(want) {
		t.Fatalf("runs = %v", runs)
	}
	for i := range want {
		if runs[i] != want[i] {
			t.Fatalf("runs = %v, want %v", runs, want)
		}
	}
}
