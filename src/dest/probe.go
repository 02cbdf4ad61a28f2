// Package dest decides whether a destination already holds generated data
// and prepares it to receive a new migration.
package dest

import (
	"context"
	"os"

	"tpcdiGen/src/config"
	"tpcdiGen/src/migrate"

	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
	"go.uber.org/zap"
)

var (
	// ErrProbe means the existence check itself failed. Callers treat it as
	// "not confirmed" and regenerate.
	ErrProbe = errors.Normalize(
		"failed to probe %s: %s",
		errors.RFCCodeText("Datagen:Probe"),
	)

	errFound = errors.New("found a file")
)

// Probe is the idempotency gate.
type Probe struct {
	OpenStore migrate.StoreOpener

	logger *zap.Logger
}

// NewProbe creates a probe that opens destinations with opener.
func NewProbe(opener migrate.StoreOpener, logger *zap.Logger) *Probe {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{OpenStore: opener, logger: logger}
}

// Exists reports whether osPath exists and holds at least one regular file at
// any depth. An empty directory does not count. Any failure is returned as
// ErrProbe with a false result.
func (p *Probe) Exists(ctx context.Context, osPath string) (bool, error) {
	if config.IsLocal(osPath) {
		info, err := os.Stat(osPath)
		if os.IsNotExist(err) {
			p.logger.Info("destination does not exist", zap.String("path", osPath))
			return false, nil
		}
		if err != nil {
			return false, ErrProbe.GenWithStackByArgs(osPath, err.Error())
		}
		if !info.IsDir() {
			return false, ErrProbe.GenWithStackByArgs(osPath, "not a directory")
		}
	}

	store, err := p.OpenStore(ctx, osPath)
	if err != nil {
		return false, ErrProbe.GenWithStackByArgs(osPath, err.Error())
	}
	//nolint: errcheck
	defer store.Close()

	err = store.WalkDir(ctx, &storage.WalkOption{}, func(string, int64) error {
		return errFound
	})
	if errors.Cause(err) == errFound {
		p.logger.Info("destination already holds generated files", zap.String("path", osPath))
		return true, nil
	}
	if err != nil {
		return false, ErrProbe.GenWithStackByArgs(osPath, err.Error())
	}
	p.logger.Info("destination exists but is empty", zap.String("path", osPath))
	return false, nil
}
