package migrate

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"tpcdiGen/src/config"
	"tpcdiGen/src/util"

	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultProgressEvery is how many completions pass between progress
	// notifications.
	DefaultProgressEvery = 10

	copyBufferSize  = 64 * units.KiB
	progressRefresh = time.Second
)

// StoreOpener opens the destination storage rooted at uri.
type StoreOpener func(ctx context.Context, uri string) (storage.ExternalStorage, error)

// Migrator copies a Manifest from scratch into the destination storage.
type Migrator struct {
	OpenStore StoreOpener

	// OnProgress, when set, receives the number of completed attempts every
	// ProgressEvery completions and on the last one. Calls are serialized.
	OnProgress    func(done, total int)
	ProgressEvery int
	// ProgressOut renders a progress bar when set.
	ProgressOut io.Writer

	logger *zap.Logger
}

// NewMigrator creates a migrator writing through storage backends configured
// with op.
func NewMigrator(op *storage.BackendOptions, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{
		OpenStore: func(ctx context.Context, uri string) (storage.ExternalStorage, error) {
			return config.GetStore(ctx, uri, op)
		},
		ProgressEvery: DefaultProgressEvery,
		logger:        logger,
	}
}

// Migrate copies every manifest entry from sourceRoot to destRoot with at most
// workers concurrent copies. Individual failures are recorded in the Report
// and never stop sibling copies. Cancelling ctx stops launching new copies;
// copies already running are allowed to finish. The returned error is only
// set when the destination cannot be opened at all.
func (m *Migrator) Migrate(
	ctx context.Context,
	manifest *Manifest,
	sourceRoot, destRoot string,
	workers int,
) (*Report, error) {
	total := manifest.Len()
	report := newReport(total)
	if total == 0 {
		return report, nil
	}
	workers = max(workers, 1)

	store, err := m.OpenStore(ctx, destRoot)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open destination %s", destRoot)
	}
	//nolint: errcheck
	defer store.Close()

	progress := util.NewProgressLogger(total, "migrating", progressRefresh, m.ProgressOut)
	defer progress.Close()

	every := m.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}
	notify := func(done int) {
		progress.UpdateFiles(1)
		if done%every == 0 || done == total {
			m.logger.Info("migration progress", zap.Int("done", done), zap.Int("total", total))
			if m.OnProgress != nil {
				m.OnProgress(done, total)
			}
		}
	}

	local := config.IsLocal(destRoot)
	m.logger.Info("starting parallel file transfer",
		zap.Int("files", total),
		zap.Int("workers", workers),
		zap.String("source", sourceRoot),
		zap.String("destination", destRoot))

	start := time.Now()
	copyCtx := context.WithoutCancel(ctx)

	var eg errgroup.Group
	eg.SetLimit(workers)
	for _, entry := range manifest.Files {
		if ctx.Err() != nil {
			report.markCancelled()
			m.logger.Warn("migration cancelled, not launching remaining copies",
				zap.Int("completed", report.Attempted()),
				zap.Int("total", total))
			break
		}
		eg.Go(func() error {
			o := m.copyFile(copyCtx, store, local, entry, sourceRoot, destRoot, progress)
			if !o.Moved() {
				m.logger.Warn("failed to copy file", zap.String("source", o.Source), zap.Error(o.Err))
			}
			report.record(o, notify)
			return nil
		})
	}
	_ = eg.Wait()

	m.logger.Info("file transfer complete",
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()),
		zap.Int("total", total),
		zap.String("bytes", units.BytesSize(float64(report.Bytes()))),
		zap.Duration("took", time.Since(start)))
	return report, nil
}

func (m *Migrator) copyFile(
	ctx context.Context,
	store storage.ExternalStorage,
	local bool,
	entry Entry,
	sourceRoot, destRoot string,
	progress *util.ProgressLogger,
) Outcome {
	rel, err := filepath.Rel(sourceRoot, entry.Source)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = entry.Rel
	}
	name := filepath.ToSlash(rel)
	o := Outcome{Source: entry.Source, Dest: path.Join(destRoot, name)}
	if strings.Contains(destRoot, "://") {
		o.Dest = strings.TrimRight(destRoot, "/") + "/" + name
	}
	fail := func(err error) Outcome {
		o.Err = ErrTransfer.GenWithStackByArgs(o.Source, o.Dest, err.Error())
		return o
	}

	src, err := os.Open(entry.Source)
	if err != nil {
		return fail(err)
	}
	defer src.Close()

	if local {
		if err := os.MkdirAll(filepath.Dir(filepath.Join(destRoot, rel)), 0o755); err != nil {
			return fail(err)
		}
	}

	writer, err := store.Create(ctx, name, &storage.WriterOption{
		Concurrency: 8,
	})
	if err != nil {
		return fail(err)
	}

	buf := make([]byte, copyBufferSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := writer.Write(ctx, buf[:n]); werr != nil {
				_ = writer.Close(ctx)
				return fail(werr)
			}
			o.Bytes += int64(n)
			progress.UpdateBytes(int64(n))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = writer.Close(ctx)
			return fail(rerr)
		}
	}
	if err := writer.Close(ctx); err != nil {
		return fail(err)
	}
	return o
}
