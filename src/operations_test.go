package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"tpcdiGen/src/config"
	"tpcdiGen/src/paths"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestConfig(t *testing.T) *config.Config {
	cfg := &config.Config{Run: config.RunConfig{
		ScaleFactor:        "3",
		Catalog:            config.DefaultCatalog,
		ManagedVolume:      true,
		Destination:        filepath.Join(t.TempDir(), "tpcdi"),
		ToolDir:            t.TempDir(),
		ScratchRoot:        t.TempDir(),
		DefaultParallelism: 2,
	}}
	require.NoError(t, config.Normalize(cfg))
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func writeDestFiles(t *testing.T, cfg *config.Config, names ...string) string {
	root := paths.Plan(&cfg.Run).OSDestDir
	for _, name := range names {
		target := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
		require.NoError(t, os.WriteFile(target, []byte("0123456789"), 0o644))
	}
	return root
}

func TestPrintPlan(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Run.Lighthouse = true

	var buf bytes.Buffer
	PrintPlan(&buf, &cfg.Run)
	out := buf.String()
	assert.Contains(t, out, filepath.Join(cfg.Run.ScratchRoot, "tmp", "tpcdi", "sf=3"))
	assert.Contains(t, out, "Workers:            8")
}

func TestShowFiles(t *testing.T) {
	cfg := newTestConfig(t)

	var buf bytes.Buffer
	require.NoError(t, ShowFiles(context.Background(), &buf, cfg))
	assert.Contains(t, buf.String(), "No data at")

	writeDestFiles(t, cfg, "Batch1/Trade.txt", "Batch2/Trade.txt")
	buf.Reset()
	require.NoError(t, ShowFiles(context.Background(), &buf, cfg))
	assert.Contains(t, buf.String(), "2 files, 20B")
}

func TestDeleteAllFiles(t *testing.T) {
	cfg := newTestConfig(t)
	root := writeDestFiles(t, cfg, "Batch1/Trade.txt", "Batch1/Account.txt", "Batch2/Trade.txt")

	require.NoError(t, DeleteAllFiles(context.Background(), cfg, zaptest.NewLogger(t)))
	assert.NoFileExists(t, filepath.Join(root, "Batch1", "Trade.txt"))
	assert.NoFileExists(t, filepath.Join(root, "Batch2", "Trade.txt"))
	assert.DirExists(t, filepath.Join(root, "Batch1"))
}
