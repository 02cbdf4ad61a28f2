package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"tpcdiGen/src/config"
	"tpcdiGen/src/dest"
	"tpcdiGen/src/migrate"
	"tpcdiGen/src/orchestrator"
	"tpcdiGen/src/paths"

	"github.com/docker/go-units"
	_ "github.com/go-sql-driver/mysql"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunGeneration runs one full pass for cfg and returns its report.
func RunGeneration(ctx context.Context, cfg *config.Config, logger *zap.Logger, progress bool) (*orchestrator.Report, error) {
	provisioner, closeFn, err := openProvisioner(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	//nolint: errcheck
	defer closeFn()

	orch := orchestrator.New(cfg, provisioner, logger)
	if m, ok := orch.Migrator.(*migrate.Migrator); ok && progress {
		m.ProgressOut = os.Stderr
	}
	return orch.Run(ctx), nil
}

// openProvisioner uses the catalog SQL endpoint when a DSN is configured and
// the volumes mount otherwise.
func openProvisioner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (dest.Provisioner, func() error, error) {
	if cfg.Catalog.DSN == "" {
		return dest.NewFSProvisioner(cfg.Catalog.VolumesRoot, logger.Named("provision")), func() error { return nil }, nil
	}

	db, err := sql.Open(cfg.Catalog.Driver, cfg.Catalog.DSN)
	if err != nil {
		return nil, nil, errors.Annotatef(err, "failed to open %s catalog connection", cfg.Catalog.Driver)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, errors.Annotate(err, "failed to reach catalog endpoint")
	}
	return dest.NewSQLProvisioner(db, logger.Named("provision")), db.Close, nil
}

func PrintPlan(w io.Writer, cfg *config.RunConfig) {
	ps := paths.Plan(cfg)
	fmt.Fprintf(w, "Scratch tool dir:   %s\n", ps.ScratchToolDir)
	fmt.Fprintf(w, "Scratch output dir: %s\n", ps.ScratchOutputDir)
	fmt.Fprintf(w, "Destination:        %s\n", ps.DestDir)
	fmt.Fprintf(w, "OS destination:     %s\n", ps.OSDestDir)
	fmt.Fprintf(w, "Run lock:           %s\n", ps.LockPath())
	fmt.Fprintf(w, "Workers:            %d\n", cfg.Workers())
}

func ShowFiles(ctx context.Context, w io.Writer, cfg *config.Config) error {
	ps := paths.Plan(&cfg.Run)
	if config.IsLocal(ps.OSDestDir) {
		if _, err := os.Stat(ps.OSDestDir); os.IsNotExist(err) {
			fmt.Fprintf(w, "No data at %s\n", ps.DestDir)
			return nil
		}
	}
	store, err := config.GetStore(ctx, ps.OSDestDir, cfg.BackendOptions())
	if err != nil {
		return errors.Trace(err)
	}

	//nolint: errcheck
	defer store.Close()

	var (
		count int
		total int64
	)
	err = store.WalkDir(ctx, &storage.WalkOption{}, func(path string, size int64) error {
		count++
		total += size
		fmt.Fprintf(w, "Name: %s, Size: %d, Size (human): %s\n", path, size, units.BytesSize(float64(size)))
		return nil
	})
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintf(w, "%d files, %s in %s\n", count, units.BytesSize(float64(total)), ps.DestDir)
	return nil
}

// DeleteAllFiles removes every migrated file of the configured scale factor.
// Directories are left in place; they are recreated by the next run anyway.
func DeleteAllFiles(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	ps := paths.Plan(&cfg.Run)
	store, err := config.GetStore(ctx, ps.OSDestDir, cfg.BackendOptions())
	if err != nil {
		return errors.Trace(err)
	}

	//nolint: errcheck
	defer store.Close()

	var fileNames []string
	err = store.WalkDir(ctx, &storage.WalkOption{}, func(path string, _ int64) error {
		fileNames = append(fileNames, path)
		return nil
	})
	if err != nil {
		return errors.Trace(err)
	}

	var eg errgroup.Group
	eg.SetLimit(cfg.Run.Workers())
	for _, fileName := range fileNames {
		eg.Go(func() error {
			return errors.Annotatef(store.DeleteFile(ctx, fileName), "failed to delete %s", fileName)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	logger.Info("deleted migrated files",
		zap.String("destination", ps.DestDir), zap.Int("files", len(fileNames)))
	return nil
}
