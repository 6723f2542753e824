package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/corona10/goimagehash"

	"snapsift/internal/analysiscache"
	"snapsift/internal/imaging"
	"snapsift/internal/logging"
)

// imageExts are the extensions treated as images during a walk.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".heic": true,
	".heif": true,
	".gif":  true,
	".webp": true,
}

const (
	defaultProgressEvery   = 24
	defaultNearDupDistance = 8
)

// Summary aggregates one walk of the images root.
type Summary struct {
	TotalFiles    int
	NonImageCount int
	ImagePaths    []string
	ExtCounts     map[string]int
	// YearExtCounts maps capture year to per-extension counts. The year
	// comes from EXIF DateTimeOriginal, falling back to file mtime.
	YearExtCounts map[string]map[string]int
	DeviceCounts  map[string]int
}

// ImageCount returns the number of recognized images.
func (s *Summary) ImageCount() int { return len(s.ImagePaths) }

// Coverage reports how much of a path set the cache already answers for a
// given model/size at the current logic version.
type Coverage struct {
	Cached        int
	UncachedPaths []string
}

// Options tunes an Engine.
type Options struct {
	NearDupDistance int
	ProgressEvery   int
	OnProgress      func(scanned, total int)
	Logger          *slog.Logger
}

// Engine walks an image collection and derives the scan report: extension
// and capture-year histograms, device counts, cache coverage, and
// near-duplicate groups.
type Engine struct {
	root            string
	nearDupDistance int
	progressEvery   int
	onProgress      func(scanned, total int)
	logger          *slog.Logger
}

// New creates an engine rooted at root.
func New(root string, opts Options) (*Engine, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("scan root required")
	}
	engine := &Engine{
		root:            root,
		nearDupDistance: opts.NearDupDistance,
		progressEvery:   opts.ProgressEvery,
		onProgress:      opts.OnProgress,
		logger:          opts.Logger,
	}
	if engine.nearDupDistance <= 0 {
		engine.nearDupDistance = defaultNearDupDistance
	}
	if engine.progressEvery <= 0 {
		engine.progressEvery = defaultProgressEvery
	}
	if engine.logger == nil {
		engine.logger = logging.NewNop()
	}
	engine.logger = logging.NewComponentLogger(engine.logger, "scan")
	return engine, nil
}

func skippable(name string) bool {
	return strings.HasPrefix(name, "._") || name == ".DS_Store"
}

// countFiles counts walkable files so progress can report a total.
func (e *Engine) countFiles(ctx context.Context) (int, error) {
	total := 0
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || skippable(d.Name()) {
			return nil
		}
		total++
		return nil
	})
	return total, err
}

// Scan walks the root and builds the summary. Unreadable EXIF never fails
// the walk; those images fall back to mtime and an empty device.
func (e *Engine) Scan(ctx context.Context) (*Summary, error) {
	total, err := e.countFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", e.root, err)
	}

	summary := &Summary{
		ExtCounts:     make(map[string]int),
		YearExtCounts: make(map[string]map[string]int),
		DeviceCounts:  make(map[string]int),
	}

	err = filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || skippable(d.Name()) {
			return nil
		}

		summary.TotalFiles++
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !imageExts[ext] {
			summary.NonImageCount++
		} else {
			summary.ImagePaths = append(summary.ImagePaths, path)
			summary.ExtCounts[ext]++

			meta, metaErr := imaging.ReadMeta(path)
			if metaErr != nil {
				e.logger.Warn("metadata unreadable",
					logging.String("path", path),
					logging.Error(metaErr))
			} else {
				year := strconv.Itoa(meta.CapturedAt.Year())
				if summary.YearExtCounts[year] == nil {
					summary.YearExtCounts[year] = make(map[string]int)
				}
				summary.YearExtCounts[year][ext]++
				if meta.Device != "" {
					summary.DeviceCounts[meta.Device]++
				}
			}
		}

		if e.onProgress != nil && summary.TotalFiles%e.progressEvery == 0 {
			e.onProgress(summary.TotalFiles, total)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", e.root, err)
	}

	if e.onProgress != nil {
		e.onProgress(summary.TotalFiles, total)
	}
	e.logger.Info("scan complete",
		logging.Int("files", summary.TotalFiles),
		logging.Int("images", summary.ImageCount()),
		logging.Int("non_images", summary.NonImageCount))
	return summary, nil
}

// ListImages walks root and returns recognized image paths in walk order,
// without reading any file contents.
func ListImages(root string) ([]string, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("scan root required")
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || skippable(d.Name()) {
			return nil
		}
		if imageExts[strings.ToLower(filepath.Ext(d.Name()))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list images in %s: %w", root, err)
	}
	return paths, nil
}

// CacheCoverage fingerprints each path and checks the cache for a verdict
// from the given model/size at the current logic version.
func (e *Engine) CacheCoverage(ctx context.Context, cache *analysiscache.Cache, paths []string, model string, size int) (Coverage, error) {
	coverage := Coverage{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return coverage, err
		}
		fingerprint, err := imaging.Fingerprint(path)
		if err != nil {
			coverage.UncachedPaths = append(coverage.UncachedPaths, path)
			continue
		}
		if _, found := cache.Lookup(fingerprint, model, size, analysiscache.LogicVersion); found {
			coverage.Cached++
		} else {
			coverage.UncachedPaths = append(coverage.UncachedPaths, path)
		}
	}
	return coverage, nil
}

// NearDuplicates groups images whose perceptual hashes sit within the
// configured distance. Undecodable images are skipped. Groups of one are
// omitted; members keep walk order.
func (e *Engine) NearDuplicates(ctx context.Context, paths []string) ([][]string, error) {
	type hashed struct {
		path string
		hash *goimagehash.ImageHash
	}

	var items []hashed
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hash, err := imaging.PerceptualHash(path)
		if err != nil {
			e.logger.Debug("phash skipped",
				logging.String("path", path),
				logging.Error(err))
			continue
		}
		items = append(items, hashed{path: path, hash: hash})
	}

	// Union-find over close pairs.
	parent := make([]int, len(items))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		parent[find(a)] = find(b)
	}

	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			distance, err := items[i].hash.Distance(items[j].hash)
			if err != nil {
				continue
			}
			if distance <= e.nearDupDistance {
				union(i, j)
			}
		}
	}

	grouped := make(map[int][]string)
	for i, item := range items {
		root := find(i)
		grouped[root] = append(grouped[root], item.path)
	}

	var groups [][]string
	for _, members := range grouped {
		if len(members) > 1 {
			groups = append(groups, members)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups, nil
}
