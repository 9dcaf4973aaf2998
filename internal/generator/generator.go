// Package generator orchestrates a sitemap run: per worker it discovers pages
// for every module, builds and distributes sitemaps, assembles unit scripts and
// uploads them, then archives, notifies and records the outcome.
package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/edge-sitemaps/internal/clock/system"
	"github.com/JakeFAU/edge-sitemaps/internal/cloudflare"
	"github.com/JakeFAU/edge-sitemaps/internal/config"
	"github.com/JakeFAU/edge-sitemaps/internal/fetch"
	"github.com/JakeFAU/edge-sitemaps/internal/filter"
	"github.com/JakeFAU/edge-sitemaps/internal/metrics"
	"github.com/JakeFAU/edge-sitemaps/internal/script"
	"github.com/JakeFAU/edge-sitemaps/internal/sitemap"
	"github.com/JakeFAU/edge-sitemaps/internal/source"
	"github.com/JakeFAU/edge-sitemaps/internal/storage"
)

// ErrUnknownWorker is returned when a requested worker is not configured.
var ErrUnknownWorker = errors.New("unknown worker")

// Uploader installs an assembled script for an account.
type Uploader interface {
	UploadScript(ctx context.Context, accountID string, s script.Script) error
}

// Publisher announces a finished worker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RunLedger persists one row per worker per run.
type RunLedger interface {
	RecordWorker(ctx context.Context, rec RunRecord) error
}

// IDGenerator issues run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// DoerFactory builds the fetch capability for one transport configuration.
type DoerFactory func(cfg fetch.Config, logger *zap.Logger) (fetch.Doer, error)

// UploaderFactory builds the upload capability from one worker's credentials.
type UploaderFactory func(auth cloudflare.Auth, doer fetch.Doer) (Uploader, error)

// Options wires a Generator. Config and IDs are required; every sink is optional.
type Options struct {
	Config config.Config
	// Worker restricts the run to one worker when set.
	Worker string
	DryRun bool

	Logger    *zap.Logger
	IDs       IDGenerator
	Clock     Clock
	Store     storage.BlobStore
	Publisher Publisher
	Ledger    RunLedger

	NewDoer     DoerFactory
	NewUploader UploaderFactory
}

type preparedModule struct {
	name    string
	spec    sitemap.ModuleSpec
	filter  *filter.Compiled
	locales source.LocaleSource
	pages   source.PageSource
}

type preparedWorker struct {
	name      string
	accountID string
	uploader  Uploader
	modules   []preparedModule
}

// Generator runs sitemap generation for a fixed, pre-validated set of workers.
type Generator struct {
	cfg       config.Config
	dryRun    bool
	logger    *zap.Logger
	ids       IDGenerator
	clock     Clock
	store     storage.BlobStore
	publisher Publisher
	ledger    RunLedger
	assembler *script.Assembler
	workers   []preparedWorker
}

// New resolves configuration and prepares every worker and module. All
// configuration errors surface here, before any network request.
func New(opts Options) (*Generator, error) {
	if opts.IDs == nil {
		return nil, errors.New("generator: id generator is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = system.Clock{}
	}
	if opts.NewDoer == nil {
		opts.NewDoer = func(cfg fetch.Config, logger *zap.Logger) (fetch.Doer, error) {
			c, err := fetch.New(cfg, logger)
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	if opts.NewUploader == nil {
		apiURL := opts.Config.Cloudflare.APIURL
		date := opts.Config.Deployment.CompatibilityDate
		opts.NewUploader = func(auth cloudflare.Auth, doer fetch.Doer) (Uploader, error) {
			c, err := cloudflare.NewClient(auth, doer, apiURL, cloudflare.WithCompatibilityDate(date))
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}

	resolved, err := opts.Config.Resolve()
	if err != nil {
		return nil, err
	}
	if opts.Worker != "" {
		resolved, err = selectWorker(resolved, opts.Worker)
		if err != nil {
			return nil, err
		}
	}

	assembler, err := script.New(opts.Config.Deployment.Mode, opts.Config.Deployment.Template)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		cfg:       opts.Config,
		dryRun:    opts.DryRun,
		logger:    opts.Logger,
		ids:       opts.IDs,
		clock:     opts.Clock,
		store:     opts.Store,
		publisher: opts.Publisher,
		ledger:    opts.Ledger,
		assembler: assembler,
	}
	doers := newDoerPool(opts.Config, opts.NewDoer, opts.Logger.Named("fetch"))
	for _, rw := range resolved {
		pw, err := g.prepareWorker(rw, doers, opts.NewUploader)
		if err != nil {
			return nil, err
		}
		g.workers = append(g.workers, pw)
	}
	return g, nil
}

func selectWorker(workers []config.ResolvedWorker, name string) ([]config.ResolvedWorker, error) {
	for _, w := range workers {
		if w.Name == name {
			return []config.ResolvedWorker{w}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, name)
}

func (g *Generator) prepareWorker(rw config.ResolvedWorker, doers *doerPool, newUploader UploaderFactory) (preparedWorker, error) {
	pw := preparedWorker{name: rw.Name, accountID: rw.AccountID}
	if !g.dryRun {
		if rw.AccountID == "" {
			return pw, fmt.Errorf("worker %s: account_id is required", rw.Name)
		}
		doer, err := doers.get(rw.Proxy)
		if err != nil {
			return pw, fmt.Errorf("worker %s: %w", rw.Name, err)
		}
		up, err := newUploader(rw.Auth, doer)
		if err != nil {
			return pw, fmt.Errorf("worker %s: %w", rw.Name, err)
		}
		pw.uploader = up
	}

	logger := g.logger.Named("source")
	for _, rm := range rw.Modules {
		compiled, err := filter.Compile(rm.Filter)
		if err != nil {
			return pw, fmt.Errorf("worker %s module %s: %w", rw.Name, rm.Name, err)
		}
		doer, err := doers.get(rm.Proxy)
		if err != nil {
			return pw, fmt.Errorf("worker %s module %s: %w", rw.Name, rm.Name, err)
		}
		opts := source.Options{
			Doer:              doer,
			Retry:             g.cfg.Retry,
			UserAgent:         g.cfg.HTTP.UserAgent,
			DetailConcurrency: g.cfg.HTTP.DetailConcurrency,
			Logger:            logger.With(zap.String("worker", rw.Name), zap.String("module", rm.Name)),
		}

		opts.Endpoint, err = source.ResolveEndpoint(rm.BaseURL, rm.LocalesAPI.URL)
		if err != nil {
			return pw, fmt.Errorf("worker %s module %s: %w", rw.Name, rm.Name, err)
		}
		locales, err := source.NewLocaleSource(rm.LocalesAPI.Type, opts)
		if err != nil {
			return pw, fmt.Errorf("worker %s module %s: %w", rw.Name, rm.Name, err)
		}

		opts.Endpoint, err = source.ResolveEndpoint(rm.BaseURL, rm.PagesAPI.URL)
		if err != nil {
			return pw, fmt.Errorf("worker %s module %s: %w", rw.Name, rm.Name, err)
		}
		pages, err := source.NewPageSource(rm.PagesAPI.Type, opts)
		if err != nil {
			return pw, fmt.Errorf("worker %s module %s: %w", rw.Name, rm.Name, err)
		}

		pw.modules = append(pw.modules, preparedModule{
			name:    rm.Name,
			spec:    rm.Spec(),
			filter:  compiled,
			locales: locales,
			pages:   pages,
		})
	}
	return pw, nil
}

// Workers lists the prepared worker names in run order.
func (g *Generator) Workers() []string {
	names := make([]string, len(g.workers))
	for i, w := range g.workers {
		names[i] = w.name
	}
	return names
}

// Run processes every worker sequentially. With failure.isolate_workers unset
// the first worker error aborts the run; otherwise all workers are attempted
// and their errors are combined.
func (g *Generator) Run(ctx context.Context) (Report, error) {
	runID, err := g.ids.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("generate run id: %w", err)
	}
	started := g.clock.Now()
	report := Report{RunID: runID, StartedAt: started, DryRun: g.dryRun}
	logger := g.logger.With(zap.String("run_id", runID))
	logger.Info("sitemap run started", zap.Int("workers", len(g.workers)), zap.Bool("dry_run", g.dryRun))

	var runErr error
	for _, w := range g.workers {
		wr := g.runWorker(ctx, runID, started, w, logger.With(zap.String("worker", w.name)))
		report.Workers = append(report.Workers, wr)
		if wr.Err == nil {
			continue
		}
		runErr = multierr.Append(runErr, fmt.Errorf("worker %s: %w", w.name, wr.Err))
		if !g.cfg.Failure.IsolateWorkers {
			break
		}
		logger.Error("worker failed; continuing with next worker", zap.String("worker", w.name), zap.Error(wr.Err))
	}

	outcome := "success"
	if runErr != nil {
		outcome = "failure"
	}
	report.FinishedAt = g.clock.Now()
	metrics.ObserveRun(outcome, report.FinishedAt.Sub(started))
	if err := metrics.Push(ctx, g.cfg.Metrics.PushURL, g.cfg.Metrics.Job); err != nil {
		logger.Warn("metrics push failed", zap.Error(err))
	}
	logger.Info("sitemap run finished", zap.String("outcome", outcome), zap.Duration("duration", report.FinishedAt.Sub(started)))
	return report, runErr
}

func (g *Generator) runWorker(ctx context.Context, runID string, started time.Time, w preparedWorker, logger *zap.Logger) WorkerReport {
	wr := WorkerReport{Name: w.name, Modules: len(w.modules)}
	build, err := g.build(ctx, w, logger)
	if err == nil {
		wr.Pages = build.Pages
		wr.Sitemaps = len(build.Distribution.Sitemaps())
		wr.Dropped = build.Distribution.Dropped
		wr.Units = len(build.Scripts)
		wr.Artifacts, err = g.archive(ctx, runID, started, w.name, build)
	}
	if err == nil {
		err = g.upload(ctx, w, build.Scripts, logger)
	}
	wr.Err = err
	wr.Status = statusOf(err, g.dryRun)

	rec := RunRecord{
		RunID:      runID,
		Worker:     w.name,
		StartedAt:  started,
		FinishedAt: g.clock.Now(),
		DryRun:     g.dryRun,
		Modules:    wr.Modules,
		Pages:      wr.Pages,
		Sitemaps:   wr.Sitemaps,
		Dropped:    wr.Dropped,
		Units:      wr.Units,
		Status:     wr.Status,
		Artifacts:  wr.Artifacts,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	g.notify(ctx, rec, build, logger)
	if g.ledger != nil {
		if lerr := g.ledger.RecordWorker(ctx, rec); lerr != nil {
			logger.Warn("run ledger write failed", zap.Error(lerr))
		}
	}
	return wr
}

func statusOf(err error, dryRun bool) string {
	switch {
	case err != nil:
		return StatusFailed
	case dryRun:
		return StatusDryRun
	default:
		return StatusDeployed
	}
}

// Build discovers and assembles one worker without uploading or archiving.
func (g *Generator) Build(ctx context.Context, worker string) (WorkerBuild, error) {
	for _, w := range g.workers {
		if w.name == worker {
			return g.build(ctx, w, g.logger.With(zap.String("worker", w.name)))
		}
	}
	return WorkerBuild{}, fmt.Errorf("%w: %s", ErrUnknownWorker, worker)
}

func (g *Generator) build(ctx context.Context, w preparedWorker, logger *zap.Logger) (WorkerBuild, error) {
	var (
		all   []sitemap.Sitemap
		pages int
	)
	for _, m := range w.modules {
		mlog := logger.With(zap.String("module", m.name))
		listings, err := source.Discover(ctx, m.locales, m.pages, m.filter)
		if err != nil {
			return WorkerBuild{}, fmt.Errorf("module %s: %w", m.name, err)
		}
		modulePages := sitemap.Aggregate(listings)
		metrics.ObservePages(w.name, m.name, len(modulePages))

		maps, err := sitemap.BuildModule(m.spec, modulePages)
		if err != nil {
			return WorkerBuild{}, fmt.Errorf("module %s: %w", m.name, err)
		}
		mlog.Info("module built",
			zap.Int("locales", len(listings)),
			zap.Int("pages", len(modulePages)),
			zap.Int("sitemaps", len(maps)),
		)
		pages += len(modulePages)
		all = append(all, maps...)
	}

	index, err := sitemap.BuildIndex(all)
	if err != nil {
		return WorkerBuild{}, err
	}
	dist := sitemap.Distribute(w.name, all, g.cfg.Deployment.Units, g.cfg.Deployment.UnitCapacity)
	if dist.Dropped > 0 {
		logger.Warn("sitemap capacity exceeded; dropping overflow",
			zap.Int("sitemaps", len(all)),
			zap.Int("dropped", dist.Dropped),
			zap.Int("capacity", g.cfg.Deployment.Units*g.cfg.Deployment.UnitCapacity),
		)
	}
	metrics.ObserveSitemaps(w.name, len(all)-dist.Dropped, dist.Dropped)

	scripts := make([]script.Script, 0, len(dist.Units))
	for _, unit := range dist.Units {
		s, err := g.assembler.Assemble(unit, index)
		if err != nil {
			return WorkerBuild{}, fmt.Errorf("assemble %s: %w", unit.Name, err)
		}
		scripts = append(scripts, s)
	}
	return WorkerBuild{
		Worker:       w.name,
		Pages:        pages,
		Sitemaps:     all,
		Index:        index,
		Distribution: dist,
		Scripts:      scripts,
	}, nil
}

func (g *Generator) upload(ctx context.Context, w preparedWorker, scripts []script.Script, logger *zap.Logger) error {
	if g.dryRun {
		logger.Info("dry run; skipping upload", zap.Int("units", len(scripts)))
		return nil
	}
	for _, s := range scripts {
		if err := w.uploader.UploadScript(ctx, w.accountID, s); err != nil {
			metrics.ObserveUpload(w.name, "failure")
			return err
		}
		metrics.ObserveUpload(w.name, "success")
		logger.Info("script uploaded", zap.String("script", s.Name), zap.Int("routes", len(s.Routes)))
	}
	return nil
}

func (g *Generator) notify(ctx context.Context, rec RunRecord, build WorkerBuild, logger *zap.Logger) {
	if g.publisher == nil {
		return
	}
	msg := Notification{
		RunID:      rec.RunID,
		Worker:     rec.Worker,
		Status:     rec.Status,
		DryRun:     rec.DryRun,
		Error:      rec.Error,
		FinishedAt: rec.FinishedAt,
	}
	for _, s := range build.Distribution.Sitemaps() {
		msg.Sitemaps = append(msg.Sitemaps, s.Location())
	}
	for _, s := range build.Scripts {
		msg.Scripts = append(msg.Scripts, s.Name)
	}
	id, err := g.publisher.Publish(ctx, g.cfg.Notify.Topic, msg)
	if err != nil {
		logger.Warn("run notification failed", zap.Error(err))
		return
	}
	logger.Debug("run notification published", zap.String("message_id", id))
}
