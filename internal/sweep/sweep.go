package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"snapsift/internal/analysiscache"
	"snapsift/internal/logging"
)

const (
	finalDeletionDir = "final_deletion"
	runsDir          = "runs"

	phaseCopy     = "copy"
	phaseFinalize = "finalize"
)

// Options configures a Sweeper.
type Options struct {
	Cache      *analysiscache.Cache
	Journal    *Journal
	SweepRoot  string
	Model      string
	Size       int
	Thresholds Thresholds
	// Limit caps how many files phase 1 selects; zero means no cap.
	Limit  int
	Logger *slog.Logger
}

// Sweeper executes the two-phase cleanup: phase 1 copies flagged images
// into per-bucket review directories under a run, phase 2 moves reviewed
// buckets into final_deletion. Originals are never touched by phase 1, so
// a run can be abandoned at any point before finalize.
type Sweeper struct {
	cache      *analysiscache.Cache
	journal    *Journal
	sweepRoot  string
	model      string
	size       int
	thresholds Thresholds
	limit      int
	logger     *slog.Logger
}

// New validates options and builds a sweeper.
func New(opts Options) (*Sweeper, error) {
	if opts.Cache == nil {
		return nil, errors.New("cache required")
	}
	if opts.Journal == nil {
		return nil, errors.New("journal required")
	}
	if strings.TrimSpace(opts.SweepRoot) == "" {
		return nil, errors.New("sweep root required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("model required")
	}
	sweeper := &Sweeper{
		cache:      opts.Cache,
		journal:    opts.Journal,
		sweepRoot:  opts.SweepRoot,
		model:      opts.Model,
		size:       opts.Size,
		thresholds: opts.Thresholds,
		limit:      opts.Limit,
		logger:     opts.Logger,
	}
	if sweeper.thresholds == (Thresholds{}) {
		sweeper.thresholds = DefaultThresholds()
	}
	if sweeper.logger == nil {
		sweeper.logger = logging.NewNop()
	}
	sweeper.logger = logging.NewComponentLogger(sweeper.logger, "sweep")
	return sweeper, nil
}

type selection struct {
	src    string
	bucket Bucket
}

// selections lists existing source files that belong in a review bucket,
// in cache path order. Keep never enters a selection.
func (s *Sweeper) selections() []selection {
	var selected []selection
	for _, verdict := range s.cache.Verdicts(s.model, s.size) {
		if strings.TrimSpace(verdict.Path) == "" {
			continue
		}
		if _, err := os.Stat(verdict.Path); err != nil {
			continue
		}
		bucket := SelectBucket(verdict.Result, s.thresholds)
		if bucket == BucketKeep {
			continue
		}
		selected = append(selected, selection{src: verdict.Path, bucket: bucket})
		if s.limit > 0 && len(selected) >= s.limit {
			break
		}
	}
	return selected
}

// Plan reports how many existing files each review bucket would receive.
func (s *Sweeper) Plan(ctx context.Context) (map[Bucket]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := make(map[Bucket]int)
	for _, sel := range s.selections() {
		counts[sel.bucket]++
	}
	return counts, nil
}

// NewRunID mints a sweep run identifier: date prefix plus a short random
// suffix so same-day runs stay distinct.
func NewRunID() string {
	return fmt.Sprintf("%s-%s", time.Now().Format("20060102"), uuid.NewString()[:8])
}

// RunDir returns the directory for a run.
func (s *Sweeper) RunDir(runID string) string {
	return filepath.Join(s.sweepRoot, runsDir, runID)
}

// ListRuns returns known run IDs, newest first.
func (s *Sweeper) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.sweepRoot, runsDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var runs []string
	for _, entry := range entries {
		if entry.IsDir() {
			runs = append(runs, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))
	return runs, nil
}

// CopyReport summarizes phase 1.
type CopyReport struct {
	RunID   string
	Copied  int
	Skipped int
	Buckets map[Bucket]int
}

// Copy executes phase 1 into the given run (a new run when runID is
// empty): selected files are copied into per-bucket directories, existing
// destinations are skipped, and every copy is journaled.
func (s *Sweeper) Copy(ctx context.Context, runID string) (*CopyReport, error) {
	if runID == "" {
		runID = NewRunID()
	}
	report := &CopyReport{RunID: runID, Buckets: make(map[Bucket]int)}
	runDir := s.RunDir(runID)

	for _, sel := range s.selections() {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		bucketDir := filepath.Join(runDir, string(sel.bucket))
		if err := os.MkdirAll(bucketDir, 0o755); err != nil {
			return report, fmt.Errorf("create bucket directory: %w", err)
		}
		dest := filepath.Join(bucketDir, filepath.Base(sel.src))
		if _, err := os.Stat(dest); err == nil {
			report.Skipped++
			continue
		}

		if err := copyFile(sel.src, dest); err != nil {
			return report, fmt.Errorf("copy %s: %w", sel.src, err)
		}
		if err := s.journal.Record(ctx, runID, phaseCopy, sel.bucket, sel.src, dest); err != nil {
			return report, fmt.Errorf("journal copy: %w", err)
		}
		report.Copied++
		report.Buckets[sel.bucket]++
	}

	s.logger.Info("phase 1 complete",
		logging.String("run", runID),
		logging.Int("copied", report.Copied),
		logging.Int("skipped", report.Skipped))
	return report, nil
}

// FinalizeReport summarizes phase 2.
type FinalizeReport struct {
	RunID string
	Moved int
}

// Finalize executes phase 2 for a run: files remaining in the review
// buckets move into final_deletion, with name collisions resolved by a
// numeric suffix. Every move is journaled.
func (s *Sweeper) Finalize(ctx context.Context, runID string) (*FinalizeReport, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, errors.New("run id required")
	}
	report := &FinalizeReport{RunID: runID}
	runDir := s.RunDir(runID)
	finalDir := filepath.Join(runDir, finalDeletionDir)
	if err := os.MkdirAll(finalDir, 0o755); err != nil {
		return report, fmt.Errorf("create final directory: %w", err)
	}

	for _, bucket := range reviewBuckets {
		bucketDir := filepath.Join(runDir, string(bucket))
		entries, err := os.ReadDir(bucketDir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return report, fmt.Errorf("read bucket %s: %w", bucket, err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return report, err
			}

			src := filepath.Join(bucketDir, entry.Name())
			dest := collisionFreePath(finalDir, entry.Name())
			if err := os.Rename(src, dest); err != nil {
				return report, fmt.Errorf("move %s: %w", src, err)
			}
			if err := s.journal.Record(ctx, runID, phaseFinalize, bucket, src, dest); err != nil {
				return report, fmt.Errorf("journal move: %w", err)
			}
			report.Moved++
		}
	}

	s.logger.Info("phase 2 complete",
		logging.String("run", runID),
		logging.Int("moved", report.Moved))
	return report, nil
}

// StatusReport describes a run's current on-disk and journaled state.
type StatusReport struct {
	RunID     string
	Remaining map[Bucket]int
	Finalized int
	Journal   map[string]int
}

// Status counts files still sitting in each review bucket plus the
// journal's per-phase totals.
func (s *Sweeper) Status(ctx context.Context, runID string) (*StatusReport, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, errors.New("run id required")
	}
	report := &StatusReport{RunID: runID, Remaining: make(map[Bucket]int)}
	runDir := s.RunDir(runID)

	for _, bucket := range reviewBuckets {
		count, err := countFiles(filepath.Join(runDir, string(bucket)))
		if err != nil {
			return nil, err
		}
		if count > 0 {
			report.Remaining[bucket] = count
		}
	}
	finalized, err := countFiles(filepath.Join(runDir, finalDeletionDir))
	if err != nil {
		return nil, err
	}
	report.Finalized = finalized

	counts, err := s.journal.PhaseCounts(ctx, runID)
	if err != nil {
		return nil, err
	}
	report.Journal = counts
	return report, nil
}

func countFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			count++
		}
	}
	return count, nil
}

// collisionFreePath appends _1, _2, ... to the stem until the name is free.
func collisionFreePath(dir, name string) string {
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
		return dest
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for counter := 1; ; counter++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, counter, ext))
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
