package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"snapsift/internal/analysiscache"
	"snapsift/internal/classify"
	"snapsift/internal/imaging"
	"snapsift/internal/logging"
	"snapsift/internal/ratelimit"
	"snapsift/internal/retry"
	"snapsift/internal/vision"
)

// OutcomeKind is the terminal state of one path/provider pair.
type OutcomeKind string

const (
	OutcomeCached    OutcomeKind = "cached"
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome records how one image resolved against one provider.
type Outcome struct {
	Path   string
	Model  string
	Kind   OutcomeKind
	Result classify.Result
	Err    error
}

// Report is the batch summary. Outcomes keep input order: all providers for
// the first path, then the second, and so on.
type Report struct {
	Outcomes  []Outcome
	Cached    int
	Succeeded int
	Failed    int
	Cancelled int
}

func (r *Report) count(kind OutcomeKind) {
	switch kind {
	case OutcomeCached:
		r.Cached++
	case OutcomeSuccess:
		r.Succeeded++
	case OutcomeFailed:
		r.Failed++
	case OutcomeCancelled:
		r.Cancelled++
	}
}

// Total returns the number of resolved path/provider pairs.
func (r *Report) Total() int { return len(r.Outcomes) }

// Options configures a Pool.
type Options struct {
	Cache          *analysiscache.Cache
	Clients        []vision.Client
	MaxConcurrent  int
	Limiter        *ratelimit.Limiter
	Policy         retry.Policy
	Size           int
	RequestTimeout time.Duration
	LogicVersion   string
	Logger         *slog.Logger

	// Hooks for tests; production code leaves them nil.
	Fingerprint func(path string) (string, error)
	Encode      func(path string, size int) (string, error)
}

// Pool drives a batch of images through cache lookup, rate-limited
// concurrent API calls, and verdict persistence.
type Pool struct {
	cache          *analysiscache.Cache
	clients        []vision.Client
	maxConcurrent  int
	limiter        *ratelimit.Limiter
	policy         retry.Policy
	size           int
	requestTimeout time.Duration
	logicVersion   string
	logger         *slog.Logger

	fingerprint func(path string) (string, error)
	encode      func(path string, size int) (string, error)
}

// New validates options and builds a pool.
func New(opts Options) (*Pool, error) {
	if opts.Cache == nil {
		return nil, errors.New("cache required")
	}
	if len(opts.Clients) == 0 {
		return nil, errors.New("at least one client required")
	}
	if opts.Limiter == nil {
		return nil, errors.New("rate limiter required")
	}
	if opts.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("max concurrent must be positive (got %d)", opts.MaxConcurrent)
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("analysis size must be positive (got %d)", opts.Size)
	}

	pool := &Pool{
		cache:          opts.Cache,
		clients:        opts.Clients,
		maxConcurrent:  opts.MaxConcurrent,
		limiter:        opts.Limiter,
		policy:         opts.Policy.Normalize(),
		size:           opts.Size,
		requestTimeout: opts.RequestTimeout,
		logicVersion:   opts.LogicVersion,
		logger:         opts.Logger,
		fingerprint:    opts.Fingerprint,
		encode:         opts.Encode,
	}
	if pool.requestTimeout <= 0 {
		pool.requestTimeout = 60 * time.Second
	}
	if pool.logicVersion == "" {
		pool.logicVersion = analysiscache.LogicVersion
	}
	if pool.logger == nil {
		pool.logger = logging.NewNop()
	}
	pool.logger = logging.NewComponentLogger(pool.logger, "analyze")
	if pool.fingerprint == nil {
		pool.fingerprint = imaging.Fingerprint
	}
	if pool.encode == nil {
		pool.encode = imaging.EncodeForAnalysis
	}
	return pool, nil
}

type job struct {
	index       int
	path        string
	fingerprint string
	client      vision.Client
}

// AnalyzeAll resolves every path against every configured client. Cache
// hits resolve before any network call is scheduled, so a fully cached
// batch issues zero API calls. Individual failures never abort the batch;
// cancellation marks unresolved pairs Cancelled and returns what completed.
func (p *Pool) AnalyzeAll(ctx context.Context, paths []string) (*Report, error) {
	batch := uuid.NewString()[:8]
	logger := p.logger.With(logging.String("batch", batch))
	report := &Report{Outcomes: make([]Outcome, 0, len(paths)*len(p.clients))}

	// Phase 1: fingerprint and consult the cache, before any network work.
	var jobs []job
	for _, path := range paths {
		fingerprint, err := p.fingerprint(path)
		if err != nil {
			for _, client := range p.clients {
				report.Outcomes = append(report.Outcomes, Outcome{
					Path:  path,
					Model: client.Model(),
					Kind:  OutcomeFailed,
					Err:   err,
				})
			}
			continue
		}
		for _, client := range p.clients {
			if result, found := p.cache.Lookup(fingerprint, client.Model(), p.size, p.logicVersion); found {
				report.Outcomes = append(report.Outcomes, Outcome{
					Path:   path,
					Model:  client.Model(),
					Kind:   OutcomeCached,
					Result: result,
				})
				continue
			}
			report.Outcomes = append(report.Outcomes, Outcome{Path: path, Model: client.Model()})
			jobs = append(jobs, job{
				index:       len(report.Outcomes) - 1,
				path:        path,
				fingerprint: fingerprint,
				client:      client,
			})
		}
	}

	// Phase 2: bounded concurrent execution in admission order. Outcome
	// slots are pre-allocated, so workers write disjoint indices.
	var group errgroup.Group
	group.SetLimit(p.maxConcurrent)
	for _, item := range jobs {
		item := item
		group.Go(func() error {
			report.Outcomes[item.index] = p.run(ctx, item)
			return nil
		})
	}
	group.Wait()

	for i := range report.Outcomes {
		report.count(report.Outcomes[i].Kind)
	}

	logger.Info("batch complete",
		logging.Int("paths", len(paths)),
		logging.Int("cached", report.Cached),
		logging.Int("succeeded", report.Succeeded),
		logging.Int("failed", report.Failed),
		logging.Int("cancelled", report.Cancelled))
	return report, ctx.Err()
}

func (p *Pool) run(ctx context.Context, item job) Outcome {
	outcome := Outcome{Path: item.path, Model: item.client.Model()}

	if ctx.Err() != nil {
		outcome.Kind = OutcomeCancelled
		outcome.Err = ctx.Err()
		return outcome
	}

	encoded, err := p.encode(item.path, p.size)
	if err != nil {
		outcome.Kind = OutcomeFailed
		outcome.Err = err
		return outcome
	}

	var result classify.Result
	err = p.policy.Do(ctx, func(ctx context.Context) error {
		// The rate limiter gates every attempt, retries included, so the
		// call rate stays within budget even when the pool is small.
		if err := p.limiter.Acquire(ctx); err != nil {
			return err
		}
		res, err := p.callOnce(ctx, item.client, encoded)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			outcome.Kind = OutcomeCancelled
		} else {
			outcome.Kind = OutcomeFailed
		}
		outcome.Err = err
		p.logger.Warn("analysis failed",
			logging.String("path", item.path),
			logging.String("model", item.client.Model()),
			logging.Error(err))
		return outcome
	}

	if err := p.cache.Store(item.fingerprint, item.path, item.client.Model(), p.size, result); err != nil {
		outcome.Kind = OutcomeFailed
		outcome.Err = fmt.Errorf("store verdict: %w", err)
		return outcome
	}
	outcome.Kind = OutcomeSuccess
	outcome.Result = result
	return outcome
}

// timeoutError marks a per-call timeout as transient while leaving batch
// cancellation non-retryable.
type timeoutError struct {
	err error
}

func (e *timeoutError) Error() string   { return fmt.Sprintf("request timed out: %v", e.err) }
func (e *timeoutError) Unwrap() error   { return e.err }
func (e *timeoutError) Transient() bool { return true }

func (p *Pool) callOnce(ctx context.Context, client vision.Client, encoded string) (classify.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	result, err := client.Analyze(callCtx, encoded)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return classify.Result{}, &timeoutError{err: err}
	}
	return result, err
}
