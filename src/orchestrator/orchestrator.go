// Package orchestrator sequences planning, the idempotency gate, generation,
// enumeration, destination preparation and migration into one run.
package orchestrator

import (
	"context"

	"tpcdiGen/src/config"
	"tpcdiGen/src/dest"
	"tpcdiGen/src/generator"
	"tpcdiGen/src/migrate"
	"tpcdiGen/src/paths"
	"tpcdiGen/src/util"

	"github.com/pingcap/tidb/br/pkg/storage"
	"go.uber.org/zap"
)

type Prober interface {
	Exists(ctx context.Context, osPath string) (bool, error)
}

type Generator interface {
	Run(ctx context.Context, toolDir, scaleFactor, outputDir string) (*generator.Result, error)
}

type Preparer interface {
	Prepare(ctx context.Context, cfg *config.RunConfig, ps paths.PathSet, m *migrate.Manifest) error
}

type Migrator interface {
	Migrate(ctx context.Context, m *migrate.Manifest, sourceRoot, destRoot string, workers int) (*migrate.Report, error)
}

// Orchestrator runs the phases strictly in sequence. Only the migrator works
// in parallel.
type Orchestrator struct {
	Probe     Prober
	Generator Generator
	Preparer  Preparer
	Migrator  Migrator
	Enumerate func(root string) (*migrate.Manifest, error)

	// StageTool copies the tool into scratch before generation. When nil the
	// generator runs straight from the configured tool directory.
	StageTool func(src, dst string) error
	// CheckRuntime reports the generator runtime version for diagnostics.
	CheckRuntime func(ctx context.Context) (string, error)
	// Lock guards the run against a concurrent run of the same scale factor
	// on this host.
	Lock func(path string) (*util.RunLock, error)

	cfg    *config.RunConfig
	logger *zap.Logger
}

// New wires the production components for cfg.
func New(cfg *config.Config, provisioner dest.Provisioner, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	op := cfg.BackendOptions()
	opener := func(ctx context.Context, uri string) (storage.ExternalStorage, error) {
		return config.GetStore(ctx, uri, op)
	}
	runtime := cfg.Generator.Runtime

	return &Orchestrator{
		Probe:     dest.NewProbe(opener, logger.Named("probe")),
		Generator: generator.NewRunner(&cfg.Generator, logger.Named("generator")),
		Preparer:  dest.NewPreparer(provisioner, cfg.Catalog.Principal, logger.Named("prepare")),
		Migrator:  migrate.NewMigrator(op, logger.Named("migrate")),
		Enumerate: migrate.Enumerate,
		StageTool: generator.StageTool,
		CheckRuntime: func(ctx context.Context) (string, error) {
			return generator.RuntimeVersion(ctx, runtime)
		},
		Lock:   util.AcquireRunLock,
		cfg:    &cfg.Run,
		logger: logger,
	}
}

// NewWithComponents creates an orchestrator from explicit components; unset
// optional hooks are skipped.
func NewWithComponents(cfg *config.RunConfig, logger *zap.Logger, probe Prober, gen Generator, prep Preparer, mig Migrator) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		Probe:     probe,
		Generator: gen,
		Preparer:  prep,
		Migrator:  mig,
		Enumerate: migrate.Enumerate,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes one generation-and-migration pass and always returns a Report
// in a terminal state.
func (o *Orchestrator) Run(ctx context.Context) *Report {
	rep := newReport()
	ps := paths.Plan(o.cfg)
	rep.Paths = ps
	rep.advance(StatePathsPlanned)
	o.logger.Info("planned paths",
		zap.String("scaleFactor", o.cfg.ScaleFactor),
		zap.String("scratchOutput", ps.ScratchOutputDir),
		zap.String("destination", ps.DestDir),
		zap.String("osDestination", ps.OSDestDir),
		zap.Bool("managedVolume", o.cfg.ManagedVolume))

	if o.Lock != nil {
		lock, err := o.Lock(ps.LockPath())
		if err != nil {
			o.logger.Error("could not acquire run lock", zap.Error(err))
			return rep.fail(StateAborted, err)
		}
		defer func() {
			if err := lock.Release(); err != nil {
				o.logger.Warn("failed to release run lock", zap.String("path", lock.Path()), zap.Error(err))
			}
		}()
	}

	exists, err := o.Probe.Exists(ctx, ps.OSDestDir)
	if err != nil {
		o.logger.Warn("could not confirm existing data, regenerating", zap.Error(err))
		rep.warn("existence check failed, data regenerated: %v", err)
	}
	if exists {
		o.logger.Info("data generation skipped, raw data already exists for this scale factor",
			zap.String("destination", ps.DestDir))
		return rep.finish(StateSkipped, StatusSuccess)
	}
	rep.advance(StateNotConfirmed)

	if done := o.generate(ctx, rep); done {
		return rep
	}

	manifest, err := o.Enumerate(ps.ScratchOutputDir)
	if err != nil {
		o.logger.Error("failed to scan generated files", zap.Error(err))
		return rep.fail(StateAborted, err)
	}
	rep.FilesFound = manifest.Len()
	rep.advance(StateEnumerated)
	o.logger.Info("scanned generated files",
		zap.Int("files", manifest.Len()),
		zap.Strings("subdirs", manifest.Subdirs))
	if manifest.Empty() {
		o.logger.Warn("no files found in generator output", zap.String("path", ps.ScratchOutputDir))
		rep.warn("no files found in %s", ps.ScratchOutputDir)
	}

	if err := o.Preparer.Prepare(ctx, o.cfg, ps, manifest); err != nil {
		o.logger.Error("failed to prepare destination", zap.Error(err))
		return rep.fail(StateProvisioningFailed, err)
	}
	rep.advance(StatePrepared)

	if manifest.Empty() {
		o.logger.Warn("skipping file transfer, no files to move")
		return rep.finish(StateMigrated, StatusWarnings)
	}

	tr, err := o.Migrator.Migrate(ctx, manifest, ps.ScratchOutputDir, ps.OSDestDir, o.cfg.Workers())
	if err != nil {
		o.logger.Error("failed to migrate files", zap.Error(err))
		return rep.fail(StateAborted, err)
	}
	rep.Succeeded = tr.Succeeded()
	rep.Failed = tr.Failed()
	rep.Bytes = tr.Bytes()
	rep.Failures = tr.Failures()

	status := StatusSuccess
	if tr.Failed() > 0 {
		status = StatusWarnings
		rep.warn("%d of %d files failed to transfer", tr.Failed(), tr.Total)
	}
	if tr.Cancelled() {
		status = StatusWarnings
		rep.warn("migration cancelled after %d of %d files", tr.Attempted(), tr.Total)
	}
	o.logger.Info("data generation completed",
		zap.String("destination", ps.DestDir),
		zap.Int("succeeded", rep.Succeeded),
		zap.Int("failed", rep.Failed),
		zap.Int("found", rep.FilesFound))
	return rep.finish(StateMigrated, status)
}

// generate stages the tool and runs the generator. It returns true when the
// run reached a terminal state.
func (o *Orchestrator) generate(ctx context.Context, rep *Report) bool {
	ps := rep.Paths
	toolDir := o.cfg.ToolDir
	if o.StageTool != nil {
		o.logger.Info("copying generator tool to scratch",
			zap.String("from", o.cfg.ToolDir), zap.String("to", ps.ScratchToolDir))
		if err := o.StageTool(o.cfg.ToolDir, ps.ScratchToolDir); err != nil {
			o.logger.Error("failed to stage generator tool", zap.Error(err))
			rep.fail(StateGenerationFailed, err)
			return true
		}
		toolDir = ps.ScratchToolDir
	}

	if o.CheckRuntime != nil {
		if version, err := o.CheckRuntime(ctx); err != nil {
			o.logger.Warn("could not check generator runtime version", zap.Error(err))
		} else {
			o.logger.Info("generator runtime", zap.String("version", version))
		}
	}

	res, err := o.Generator.Run(ctx, toolDir, o.cfg.ScaleFactor, ps.ScratchOutputDir)
	rep.Generation = res
	if err == nil && !res.Succeeded() {
		err = generator.ErrGenerationFailed.GenWithStackByArgs(res.ExitCode)
	}
	if err != nil {
		fields := []zap.Field{zap.Error(err), zap.String("residualOutput", ps.ScratchOutputDir)}
		if rep.DependencyErrorDetected() {
			fields = append(fields, zap.String("hint", res.Hint))
		}
		o.logger.Error("data generation failed, partial output left for inspection", fields...)
		rep.fail(StateGenerationFailed, err)
		return true
	}
	rep.advance(StateGenerated)
	o.logger.Info("data generation completed in scratch",
		zap.String("scaleFactor", o.cfg.ScaleFactor),
		zap.String("output", ps.ScratchOutputDir),
		zap.Int("lines", res.Lines))
	return false
}
