package generator

import "github.com/pingcap/errors"

var (
	// ErrMissingArtifact is returned before any process is launched when the
	// generator jar is absent from the tool directory.
	ErrMissingArtifact = errors.Normalize(
		"generator artifact not found at %s",
		errors.RFCCodeText("Datagen:MissingArtifact"),
	)

	// ErrGenerationFailed is returned together with a populated Result when
	// the generator exits with a nonzero code.
	ErrGenerationFailed = errors.Normalize(
		"generator exited with code %d",
		errors.RFCCodeText("Datagen:GenerationFailed"),
	)

	// ErrStageTool reports a failure to copy the generator tool to scratch.
	ErrStageTool = errors.Normalize(
		"failed to stage generator tool from %s to %s: %s",
		errors.RFCCodeText("Datagen:StageTool"),
	)
)
