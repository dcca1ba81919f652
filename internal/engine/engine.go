package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/xab-mack/contractscan/internal/analysis"
	"github.com/xab-mack/contractscan/internal/cache"
	"github.com/xab-mack/contractscan/internal/config"
	"github.com/xab-mack/contractscan/internal/model"
	"github.com/xab-mack/contractscan/internal/plugins"
	"github.com/xab-mack/contractscan/internal/report"
)

// cacheVersion invalidates cached file reports when analysis changes.
const cacheVersion = "contractscan/1"

type Engine struct {
	cfg      config.Config
	registry *plugins.Registry
	log      hclog.Logger
	cache    *cache.Cache
	baseline *Baseline
	settings string
}

type Option func(*Engine)

func WithLogger(l hclog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithCache enables the per-file report cache.
func WithCache(c *cache.Cache) Option { return func(e *Engine) { e.cache = c } }

// WithBaseline suppresses findings whose fingerprints b records.
func WithBaseline(b *Baseline) Option { return func(e *Engine) { e.baseline = b } }

// WithRegistry replaces the builtin rule set.
func WithRegistry(r *plugins.Registry) Option { return func(e *Engine) { e.registry = r } }

// New builds an engine for cfg. The rule set is the builtin registry
// restricted to cfg.Rules minus cfg.DisabledRules.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	reg, err := plugins.Builtin().Select(cfg.Rules)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		registry: reg.Without(cfg.DisabledRules),
		log:      hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.settings = e.settingsKey()
	return e, nil
}

// Rules lists the metadata of the rules this engine runs.
func (e *Engine) Rules() []model.RuleMeta { return e.registry.Metas() }

func (e *Engine) options() analysis.Options {
	return analysis.Options{
		AssumeCheckedArithmetic: e.cfg.AssumeCheckedArithmetic,
		ProtectedStorage:        e.cfg.ProtectedStorage,
	}
}

// settingsKey captures everything besides the source that shapes a file
// report.
func (e *Engine) settingsKey() string {
	var ids []string
	for _, m := range e.registry.Metas() {
		ids = append(ids, m.ID)
	}
	return strings.Join([]string{
		strings.Join(ids, ","),
		strconv.FormatBool(e.cfg.AssumeCheckedArithmetic),
		strings.Join(e.cfg.ProtectedStorage, ","),
	}, ";")
}

func (e *Engine) workers() int {
	if e.cfg.Workers > 0 {
		return e.cfg.Workers
	}
	return runtime.NumCPU()
}

// Scan analyzes every Solidity file under req.Paths and aggregates the
// per-file reports. Problems with individual files are recorded in the report;
// the returned error is reserved for failures that prevent a report at all.
func (e *Engine) Scan(ctx context.Context, req model.ScanRequest) (*model.ScanResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := e.log.With("run", runID)

	if req.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.TimeBudget)
		defer cancel()
	}

	files, err := discoverFiles(req.Paths)
	if err != nil {
		return nil, err
	}
	if req.DeltaOnly {
		files = e.deltaFilter(req.Paths, files, log)
	}
	log.Info("scan started", "files", len(files), "rules", len(e.registry.Detectors()), "workers", e.workers())

	reports := make([]model.FileReport, len(files))
	var g errgroup.Group
	g.SetLimit(e.workers())
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			reports[i] = e.scanFile(ctx, path, log)
			return nil
		})
	}
	_ = g.Wait()

	res := report.Aggregate(runID, reports)
	res.Elapsed = time.Since(start)
	log.Info("scan finished", "findings", res.Summary.Total, "failed_files", res.Summary.FailedFiles, "elapsed", res.Elapsed)
	return res, nil
}

// scanFile produces the report of one file: read, analyze (or load from the
// cache), then suppress.
func (e *Engine) scanFile(ctx context.Context, path string, log hclog.Logger) model.FileReport {
	name := filepath.ToSlash(path)
	if err := ctx.Err(); err != nil {
		return model.FileReport{Path: name, Errors: []model.FileError{cancelled(err)}}
	}
	src, err := os.ReadFile(path)
	if err != nil {
		log.Warn("cannot read file", "path", name, "error", err)
		return model.FileReport{Path: name, Errors: []model.FileError{{Kind: model.ErrKindIO, Message: model.ReadError(name, err).Error()}}}
	}

	fr, hit := e.cached(name, src)
	if hit {
		log.Debug("cache hit", "path", name)
	} else {
		fr = e.analyze(ctx, name, string(src), log)
		e.store(name, src, fr, log)
	}

	fr.Findings = e.suppress(fr.Findings, string(src))
	return fr
}

func (e *Engine) cacheKey(name string, src []byte) string {
	return cache.Key(cacheVersion, e.settings, name, string(src))
}

func (e *Engine) cached(name string, src []byte) (model.FileReport, bool) {
	var fr model.FileReport
	if e.cache == nil {
		return fr, false
	}
	b, ok := e.cache.Load(e.cacheKey(name, src))
	if !ok || json.Unmarshal(b, &fr) != nil || fr.Path != name {
		return model.FileReport{}, false
	}
	return fr, true
}

// store never caches a cancelled analysis.
func (e *Engine) store(name string, src []byte, fr model.FileReport, log hclog.Logger) {
	if e.cache == nil {
		return
	}
	for _, fe := range fr.Errors {
		if fe.Kind == model.ErrKindCancelled {
			return
		}
	}
	b, err := json.Marshal(fr)
	if err == nil {
		err = e.cache.Store(e.cacheKey(name, src), b)
	}
	if err != nil {
		log.Warn("cannot cache report", "path", name, "error", err)
	}
}

// suppress applies, in order, the severity threshold, ignore rules and the
// baseline.
func (e *Engine) suppress(findings []model.Finding, src string) []model.Finding {
	out := filterBySeverity(findings, e.cfg.MinSeverity())
	out = applyIgnores(out, e.cfg.Ignore, src, time.Now())
	if e.baseline != nil {
		out = e.baseline.Filter(out)
	}
	return out
}
