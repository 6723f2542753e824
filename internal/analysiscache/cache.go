package analysiscache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"snapsift/internal/classify"
	"snapsift/internal/logging"
)

const (
	// DocumentVersion tags the persisted document layout.
	DocumentVersion = "1.0"
	// LogicVersion tags the classification logic. Entries stored under an
	// older version are treated as misses on lookup until re-analysis
	// overwrites them or cleanup removes them.
	LogicVersion = "1.0"
)

// record is one model's verdict for one fingerprint as persisted.
type record struct {
	Result    json.RawMessage `json:"result"`
	Timestamp float64         `json:"timestamp"`
	Size      int             `json:"size,omitempty"`
}

// entry groups all model verdicts for one fingerprint.
type entry struct {
	Path    string            `json:"path"`
	Version string            `json:"version,omitempty"`
	Models  map[string]record `json:"models"`
}

type document struct {
	Version string           `json:"version"`
	Entries map[string]entry `json:"entries"`
}

// Cache is the persistent verdict store, keyed by image fingerprint plus
// model identity. The whole document loads into memory on open and is
// written back atomically after each mutation. A file lock serializes
// writers across processes; the mutex serializes workers within one.
type Cache struct {
	path   string
	logger *slog.Logger
	lock   *flock.Flock

	mu  sync.RWMutex
	doc document
}

// Open loads the cache at path, creating an empty one when the file does
// not exist. A corrupt document is logged and replaced with an empty cache
// rather than failing the run.
func Open(path string, logger *slog.Logger) (*Cache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cache path required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "analysiscache")

	c := &Cache{
		path:   path,
		logger: logger,
		lock:   flock.New(path + ".lock"),
		doc:    emptyDocument(),
	}
	if err := c.load(); err != nil {
		logger.Warn("failed to load analysis cache",
			logging.String(logging.FieldEventType, "cache_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "cache starts empty"),
			logging.String(logging.FieldImpact, "previously analyzed images will be re-analyzed"))
		c.doc = emptyDocument()
	}
	return c, nil
}

func emptyDocument() document {
	return document{Version: DocumentVersion, Entries: make(map[string]entry)}
}

// Path returns the cache file location.
func (c *Cache) Path() string { return c.path }

// Lookup returns the cached verdict for (fingerprint, model, size) when a
// matching record exists whose entry version is at least logicVersion.
// The "<model>_<size>" key form is preferred; the legacy bare model key is
// the fallback.
func (c *Cache) Lookup(fingerprint, model string, size int, logicVersion string) (classify.Result, bool) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return classify.Result{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	stored, found := c.doc.Entries[fingerprint]
	if !found {
		return classify.Result{}, false
	}
	if compareVersions(entryVersion(stored), logicVersion) < 0 {
		return classify.Result{}, false
	}

	rec, found := stored.Models[ModelKey(model, size)]
	if !found {
		rec, found = stored.Models[model]
	}
	if !found {
		return classify.Result{}, false
	}

	result, err := classify.Decode(rec.Result)
	if err != nil {
		c.logger.Warn("cached result unreadable",
			logging.String("fingerprint", fingerprint),
			logging.String("model", model),
			logging.Error(err))
		return classify.Result{}, false
	}
	return result, true
}

// Store records a verdict for (fingerprint, model, size) at the current
// LogicVersion and persists the document. Last write wins per key.
func (c *Cache) Store(fingerprint, path, model string, size int, result classify.Result) error {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return errors.New("fingerprint required")
	}
	if strings.TrimSpace(model) == "" {
		return errors.New("model required")
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stored, found := c.doc.Entries[fingerprint]
	if !found {
		stored = entry{Models: make(map[string]record)}
	}
	stored.Path = path
	stored.Version = LogicVersion
	if stored.Models == nil {
		stored.Models = make(map[string]record)
	}
	stored.Models[ModelKey(model, size)] = record{
		Result:    encoded,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		Size:      size,
	}
	c.doc.Entries[fingerprint] = stored

	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}

	c.logger.Debug("stored verdict",
		logging.String("fingerprint", fingerprint),
		logging.String("model", ModelKey(model, size)),
		logging.String("decision", string(result.Decision)))
	return nil
}

// Verdict pairs a stored source path with its decoded result for one
// model key.
type Verdict struct {
	Fingerprint string
	Path        string
	Result      classify.Result
}

// Verdicts returns every decodable verdict for (model, size), bare legacy
// keys included, sorted by path for deterministic processing. Entry logic
// versions are not gated here: sweeps act on whatever verdicts exist.
func (c *Cache) Verdicts(model string, size int) []Verdict {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var verdicts []Verdict
	for fingerprint, stored := range c.doc.Entries {
		rec, found := stored.Models[ModelKey(model, size)]
		if !found {
			rec, found = stored.Models[model]
		}
		if !found {
			continue
		}
		result, err := classify.Decode(rec.Result)
		if err != nil {
			c.logger.Warn("skipping unreadable verdict",
				logging.String("fingerprint", fingerprint),
				logging.Error(err))
			continue
		}
		verdicts = append(verdicts, Verdict{Fingerprint: fingerprint, Path: stored.Path, Result: result})
	}
	sort.Slice(verdicts, func(i, j int) bool { return verdicts[i].Path < verdicts[j].Path })
	return verdicts
}

// Stats is a read-only snapshot of the cache contents.
type Stats struct {
	TotalRecords  int
	TotalImages   int
	PerModel      map[string]int
	OldestRecord  time.Time
	NewestRecord  time.Time
	StaleVersions int
}

// Stats summarizes the cache: record and image counts, per-model counts,
// and the record age range. StaleVersions counts images stored under an
// older logic version.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{PerModel: make(map[string]int)}
	for _, stored := range c.doc.Entries {
		stats.TotalImages++
		if compareVersions(entryVersion(stored), LogicVersion) < 0 {
			stats.StaleVersions++
		}
		for key, rec := range stored.Models {
			stats.TotalRecords++
			stats.PerModel[key]++
			at := timestampTime(rec.Timestamp)
			if stats.OldestRecord.IsZero() || at.Before(stats.OldestRecord) {
				stats.OldestRecord = at
			}
			if at.After(stats.NewestRecord) {
				stats.NewestRecord = at
			}
		}
	}
	return stats
}

// Count returns the number of stored model records.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, stored := range c.doc.Entries {
		count += len(stored.Models)
	}
	return count
}

type recordRef struct {
	fingerprint string
	modelKey    string
	timestamp   float64
}

// Cleanup removes model records older than maxAgeDays, then trims the
// oldest remaining records until at most maxEntries are left. A negative
// maxAgeDays disables age pruning (zero prunes everything older than now);
// maxEntries <= 0 disables the count bound. Fingerprints left without
// records are dropped. Returns the number of records removed.
func (c *Cache) Cleanup(maxAgeDays, maxEntries int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0

	if maxAgeDays >= 0 {
		cutoff := float64(time.Now().Add(-time.Duration(maxAgeDays)*24*time.Hour).UnixNano()) / float64(time.Second)
		for fingerprint, stored := range c.doc.Entries {
			for key, rec := range stored.Models {
				if rec.Timestamp < cutoff {
					delete(stored.Models, key)
					removed++
				}
			}
			if len(stored.Models) == 0 {
				delete(c.doc.Entries, fingerprint)
			}
		}
	}

	if maxEntries > 0 {
		refs := c.recordRefs()
		if excess := len(refs) - maxEntries; excess > 0 {
			for _, ref := range refs[:excess] {
				stored := c.doc.Entries[ref.fingerprint]
				delete(stored.Models, ref.modelKey)
				if len(stored.Models) == 0 {
					delete(c.doc.Entries, ref.fingerprint)
				}
				removed++
			}
		}
	}

	if removed == 0 {
		return 0, nil
	}
	if err := c.save(); err != nil {
		return removed, fmt.Errorf("persist cache: %w", err)
	}
	c.logger.Info("cache cleanup complete", logging.Int("removed", removed))
	return removed, nil
}

// recordRefs lists all records oldest-first. Equal timestamps break by
// fingerprint then model key so repeated cleanups remove the same records.
func (c *Cache) recordRefs() []recordRef {
	refs := make([]recordRef, 0, len(c.doc.Entries))
	for fingerprint, stored := range c.doc.Entries {
		for key, rec := range stored.Models {
			refs = append(refs, recordRef{fingerprint: fingerprint, modelKey: key, timestamp: rec.Timestamp})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].timestamp != refs[j].timestamp {
			return refs[i].timestamp < refs[j].timestamp
		}
		if refs[i].fingerprint != refs[j].fingerprint {
			return refs[i].fingerprint < refs[j].fingerprint
		}
		return refs[i].modelKey < refs[j].modelKey
	})
	return refs
}

// Clear removes every entry and persists the empty document.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.doc = emptyDocument()
	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}
	c.logger.Info("cache cleared")
	return nil
}

// ModelKey builds the preferred per-model key form.
func ModelKey(model string, size int) string {
	if size <= 0 {
		return model
	}
	return fmt.Sprintf("%s_%d", model, size)
}

// entryVersion resolves the stored logic version, treating the legacy
// versionless layout as "0" so it participates in cleanup but never
// satisfies a current-version lookup.
func entryVersion(stored entry) string {
	if strings.TrimSpace(stored.Version) == "" {
		return "0"
	}
	return stored.Version
}

// compareVersions orders dotted numeric version tags. Returns -1, 0, or 1.
func compareVersions(a, b string) int {
	aParts := strings.Split(strings.TrimSpace(a), ".")
	bParts := strings.Split(strings.TrimSpace(b), ".")
	for i := 0; i < len(aParts) || i < len(bParts); i++ {
		var aNum, bNum int
		if i < len(aParts) {
			aNum, _ = strconv.Atoi(aParts[i])
		}
		if i < len(bParts) {
			bNum, _ = strconv.Atoi(bParts[i])
		}
		if aNum != bNum {
			if aNum < bNum {
				return -1
			}
			return 1
		}
	}
	return 0
}

func timestampTime(ts float64) time.Time {
	return time.Unix(0, int64(ts*float64(time.Second)))
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse cache file: %w", err)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]entry)
	}
	if doc.Version == "" {
		doc.Version = DocumentVersion
	}
	c.doc = doc

	c.logger.Debug("loaded analysis cache",
		logging.Int("image_count", len(doc.Entries)),
		logging.String("path", c.path))
	return nil
}

// save writes the document atomically under the cross-process file lock.
// Callers hold c.mu.
func (c *Cache) save() error {
	data, err := json.MarshalIndent(c.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("lock cache file: %w", err)
	}
	defer c.lock.Unlock()

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
