package generator

import (
	"os"

	"github.com/otiai10/copy"
)

// StageTool copies the generator tool directory into the scratch location,
// replacing whatever a previous run left there.
func StageTool(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return ErrStageTool.GenWithStackByArgs(src, dst, err.Error())
	}
	if !info.IsDir() {
		return ErrStageTool.GenWithStackByArgs(src, dst, "source is not a directory")
	}
	if err := os.RemoveAll(dst); err != nil {
		return ErrStageTool.GenWithStackByArgs(src, dst, err.Error())
	}
	if err := copy.Copy(src, dst); err != nil {
		return ErrStageTool.GenWithStackByArgs(src, dst, err.Error())
	}
	return nil
}
