package generator

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"tpcdiGen/src/config"

	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"go.uber.org/zap"
)

// ArtifactName is the generator jar expected inside the tool directory.
const ArtifactName = "DIGen.jar"

const (
	versionTimeout = 5 * time.Second

	dependencyHint = "Java classpath/dependency issue detected: DIGen.jar is likely missing " +
		"required libraries. Re-download the jar in case it is corrupted, rebuild it with " +
		"all dependencies included, or use an alternative DIGen distribution (e.g. DIGen_Build.zip)."
)

var dependencyErrorSignatures = []string{
	"NoClassDefFoundError",
	"ClassNotFoundException",
}

// Result describes one generator invocation.
type Result struct {
	ExitCode int
	// Lines is the number of stdout lines observed.
	Lines                   int
	DependencyErrorDetected bool
	// Hint is set alongside DependencyErrorDetected.
	Hint   string
	Stderr string
}

// Succeeded reports whether the generator exited with code 0.
func (r *Result) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// Runner launches and supervises the DIGen process.
type Runner struct {
	Runtime   string
	HeapFlag  string
	Handshake Handshake

	// Env is appended to the inherited environment of the child.
	Env []string
	// OnLine, when set, receives every stdout line as it is read.
	OnLine func(line string)

	logger *zap.Logger
}

// NewRunner creates a runner using the generator section of the config.
func NewRunner(cfg *config.GeneratorConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		Runtime:   cfg.Runtime,
		HeapFlag:  cfg.HeapFlag(),
		Handshake: DefaultHandshake,
		logger:    logger,
	}
}

// Command returns the argv used to launch the generator.
func (r *Runner) Command(toolDir, scaleFactor, outputDir string) []string {
	return []string{
		r.Runtime,
		r.HeapFlag,
		"-jar", filepath.Join(toolDir, ArtifactName),
		"-sf", scaleFactor,
		"-o", outputDir,
	}
}

// Run launches the generator in toolDir and blocks until it exits. A nonzero
// exit returns the populated Result together with ErrGenerationFailed; the
// child is never retried.
func (r *Runner) Run(ctx context.Context, toolDir, scaleFactor, outputDir string) (*Result, error) {
	jar := filepath.Join(toolDir, ArtifactName)
	info, err := os.Stat(jar)
	if err != nil || info.IsDir() {
		return nil, ErrMissingArtifact.GenWithStackByArgs(jar)
	}

	args := r.Command(toolDir, scaleFactor, outputDir)
	r.logger.Info("starting generator",
		zap.String("command", strings.Join(args, " ")),
		zap.String("dir", toolDir),
		zap.String("output", outputDir),
		zap.String("artifactSize", units.HumanSize(float64(info.Size()))))

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = toolDir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	// Stderr is collected for the whole run so a chatty child never blocks
	// on a full pipe while stdout is being drained.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Trace(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Trace(err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, errors.Annotatef(err, "failed to start generator %s", args[0])
	}

	if err := r.Handshake.Send(stdin); err != nil {
		r.logger.Warn("failed to send handshake to generator", zap.Error(err))
	}
	_ = stdin.Close()

	res := &Result{}
	res.Lines, err = r.drain(stdout)
	if err != nil {
		r.logger.Warn("failed to read generator output", zap.Error(err))
	}

	// Wait only after stdout hit EOF, so lines still buffered in the pipe
	// when the process exits are not lost.
	waitErr := cmd.Wait()
	if cmd.ProcessState == nil {
		return nil, errors.Annotate(waitErr, "generator did not run to completion")
	}
	res.ExitCode = cmd.ProcessState.ExitCode()
	r.inspectStderr(res, stderr.String())

	r.logger.Info("generator finished",
		zap.Int("exitCode", res.ExitCode),
		zap.Int("lines", res.Lines),
		zap.Duration("took", time.Since(start)))

	if !res.Succeeded() {
		r.logger.Warn("generator failed, no files will be migrated",
			zap.Int("exitCode", res.ExitCode),
			zap.String("output", outputDir))
		return res, ErrGenerationFailed.GenWithStackByArgs(res.ExitCode)
	}
	return res, nil
}

func (r *Runner) drain(stdout io.Reader) (int, error) {
	reader := bufio.NewReader(stdout)
	lines := 0
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			lines++
			text := strings.TrimRight(line, "\r\n")
			r.logger.Debug("generator", zap.String("line", text))
			if r.OnLine != nil {
				r.OnLine(text)
			}
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return lines, errors.Trace(err)
		}
	}
}

func (r *Runner) inspectStderr(res *Result, stderr string) {
	res.Stderr = stderr
	if strings.TrimSpace(stderr) == "" {
		return
	}

	for _, line := range strings.Split(stderr, "\n") {
		if strings.TrimSpace(line) != "" {
			r.logger.Warn("generator stderr", zap.String("line", line))
		}
	}

	for _, sig := range dependencyErrorSignatures {
		if strings.Contains(stderr, sig) {
			res.DependencyErrorDetected = true
			res.Hint = dependencyHint
			r.logger.Warn("generator dependency error detected",
				zap.String("signature", sig),
				zap.String("hint", dependencyHint))
			return
		}
	}
}

// RuntimeVersion reports the first line of "<runtime> -version". It is only
// used for diagnostics.
func RuntimeVersion(ctx context.Context, runtime string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, runtime, "-version")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Annotatef(err, "failed to check %s version", runtime)
	}

	// java prints its version on stderr.
	out := stderr.String()
	if strings.TrimSpace(out) == "" {
		out = stdout.String()
	}
	first, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	if first == "" {
		return "unknown", nil
	}
	return strings.TrimSpace(first), nil
}
