package main

import (
	"os"
	"path/filepath"
	"testing"
)

// TestAnalyzeThenSweepWithStub drives the whole pipeline offline: the stub
// provider needs no network, so analyze, cache, and sweep can run end to
// end against fixture images.
func TestAnalyzeThenSweepWithStub(t *testing.T) {
	env := setupCLITestEnv(t)
	env.addImage(t, "one.png", 10)
	env.addImage(t, "two.png", 200)

	out, _, err := runCLI(t, env.configPath, "analyze")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	requireContains(t, out, "Succeeded")

	// A second run resolves everything from the cache.
	out, _, err = runCLI(t, env.configPath, "analyze")
	if err != nil {
		t.Fatalf("analyze rerun: %v", err)
	}
	requireContains(t, out, "Cached")

	out, _, err = runCLI(t, env.configPath, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, out, "Records")
	requireContains(t, out, "stub")

	if _, _, err := runCLI(t, env.configPath, "sweep", "plan"); err != nil {
		t.Fatalf("sweep plan: %v", err)
	}
	if _, _, err := runCLI(t, env.configPath, "sweep", "copy"); err != nil {
		t.Fatalf("sweep copy: %v", err)
	}
}

func TestScanReportsCounts(t *testing.T) {
	env := setupCLITestEnv(t)
	env.addImage(t, "one.png", 10)
	env.addImage(t, "two.png", 200)

	out, _, err := runCLI(t, env.configPath, "scan")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	requireContains(t, out, "Total files")
	requireContains(t, out, ".png")
}

func TestCacheClearRequiresConfirmation(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env.configPath, "cache", "clear"); err == nil {
		t.Fatal("expected clear to refuse without --yes")
	}
	out, _, err := runCLI(t, env.configPath, "cache", "clear", "--yes")
	if err != nil {
		t.Fatalf("cache clear --yes: %v", err)
	}
	requireContains(t, out, "Cleared")
}

func TestSweepFinalizeRequiresConfirmation(t *testing.T) {
	env := setupCLITestEnv(t)

	// Stage a run directly so the test does not depend on verdicts.
	runID := "20240101-cafef00d"
	bucketDir := filepath.Join(env.baseDir, "sweep", "runs", runID, "to_delete")
	if err := os.MkdirAll(bucketDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bucketDir, "img.jpg"), []byte("bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := runCLI(t, env.configPath, "sweep", "finalize", "--run", runID); err == nil {
		t.Fatal("expected finalize to refuse without --yes")
	}

	out, _, err := runCLI(t, env.configPath, "sweep", "finalize", "--run", runID, "--yes")
	if err != nil {
		t.Fatalf("sweep finalize --yes: %v", err)
	}
	requireContains(t, out, "moved 1")

	moved := filepath.Join(env.baseDir, "sweep", "runs", runID, "final_deletion", "img.jpg")
	if _, err := os.Stat(moved); err != nil {
		t.Fatalf("expected moved file: %v", err)
	}

	out, _, err = runCLI(t, env.configPath, "sweep", "runs")
	if err != nil {
		t.Fatalf("sweep runs: %v", err)
	}
	requireContains(t, out, runID)
}
