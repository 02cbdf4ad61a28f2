// Package paths derives the scratch and destination locations of a run.
package paths

import (
	"path/filepath"
	"strings"

	"tpcdiGen/src/config"
)

const (
	scratchTmpDir   = "tmp/tpcdi"
	toolDirName     = "datagen"
	legacyRoot      = "/dbfs"
	legacyProtocol  = "dbfs:"
	scaleFactorSegm = "sf="
)

// PathSet is the fixed set of locations used by one run.
type PathSet struct {
	// ScratchToolDir receives the staged generator tool.
	ScratchToolDir string
	// ScratchOutputDir is where the generator writes, keyed by scale factor.
	ScratchOutputDir string
	// DestDir is the logical destination as the storage API addresses it.
	DestDir string
	// OSDestDir is the same location as the filesystem layer addresses it.
	OSDestDir string
}

// Plan derives the PathSet from cfg. It performs no I/O.
func Plan(cfg *config.RunConfig) PathSet {
	scratch := filepath.Join(cfg.ScratchRoot, scratchTmpDir)
	dest := strings.TrimRight(cfg.Destination, "/") + "/" + scaleFactorSegm + cfg.ScaleFactor

	ps := PathSet{
		ScratchToolDir:   filepath.Join(scratch, toolDirName),
		ScratchOutputDir: filepath.Join(scratch, scaleFactorSegm+cfg.ScaleFactor),
		DestDir:          dest,
		OSDestDir:        dest,
	}
	if !cfg.ManagedVolume && !isURI(dest) {
		ps.OSDestDir = legacyRoot + dest
		ps.DestDir = legacyProtocol + dest
	}
	return ps
}

// LockPath is the host-local lock file guarding runs of one scale factor.
func (p PathSet) LockPath() string {
	return p.ScratchOutputDir + ".lock"
}

func isURI(p string) bool {
	return strings.Contains(p, "://")
}
