package orchestrator

import (
	"fmt"
	"io"

	"tpcdiGen/src/generator"
	"tpcdiGen/src/migrate"
	"tpcdiGen/src/paths"

	"github.com/docker/go-units"
)

// State is a step of a run. Skipped, GenerationFailed, ProvisioningFailed,
// Migrated and Aborted are terminal.
type State string

const (
	StateStart              State = "Start"
	StatePathsPlanned       State = "PathsPlanned"
	StateNotConfirmed       State = "NotConfirmed"
	StateGenerated          State = "Generated"
	StateEnumerated         State = "Enumerated"
	StatePrepared           State = "Prepared"
	StateSkipped            State = "Skipped"
	StateGenerationFailed   State = "GenerationFailed"
	StateProvisioningFailed State = "ProvisioningFailed"
	StateMigrated           State = "Migrated"
	StateAborted            State = "Aborted"
)

// Status is the user-facing verdict of a run.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusWarnings Status = "success-with-warnings"
	StatusFailed   Status = "failed"
)

// Report is the single terminal result of a run.
type Report struct {
	State  State
	Status Status
	// Steps lists every state the run passed through, in order.
	Steps []State

	Paths      paths.PathSet
	Generation *generator.Result

	FilesFound int
	Succeeded  int
	Failed     int
	Bytes      int64
	Failures   []migrate.Outcome

	Warnings []string
	Err      error
}

func newReport() *Report {
	return &Report{State: StateStart, Steps: []State{StateStart}}
}

func (r *Report) advance(s State) {
	r.State = s
	r.Steps = append(r.Steps, s)
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Report) finish(s State, status Status) *Report {
	r.advance(s)
	r.Status = status
	return r
}

func (r *Report) fail(s State, err error) *Report {
	r.Err = err
	return r.finish(s, StatusFailed)
}

// DependencyErrorDetected reports whether the generator output carried a
// known classpath failure signature.
func (r *Report) DependencyErrorDetected() bool {
	return r.Generation != nil && r.Generation.DependencyErrorDetected
}

// Print writes a human readable summary.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  State: %s\n", r.State)
	fmt.Fprintf(w, "  Status: %s\n", r.Status)
	fmt.Fprintf(w, "  Destination: %s\n", r.Paths.DestDir)
	fmt.Fprintf(w, "  Files found: %d\n", r.FilesFound)
	fmt.Fprintf(w, "  Files succeeded: %d\n", r.Succeeded)
	fmt.Fprintf(w, "  Files failed: %d\n", r.Failed)
	fmt.Fprintf(w, "  Bytes: %s\n", units.BytesSize(float64(r.Bytes)))
	if r.Generation != nil {
		fmt.Fprintf(w, "  Generator exit code: %d\n", r.Generation.ExitCode)
		fmt.Fprintf(w, "  Generator output lines: %d\n", r.Generation.Lines)
		fmt.Fprintf(w, "  Dependency error detected: %t\n", r.Generation.DependencyErrorDetected)
		if r.Generation.Hint != "" {
			fmt.Fprintf(w, "  Hint: %s\n", r.Generation.Hint)
		}
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  Failed: %s (%v)\n", f.Source, f.Err)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "  Warning: %s\n", warning)
	}
	if r.Err != nil {
		fmt.Fprintf(w, "  Error: %v\n", r.Err)
	}
}
