package generator

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	stubEnv       = "DATAGEN_STUB_CHILD"
	stubLinesEnv  = "DATAGEN_STUB_LINES"
	stubStderrEnv = "DATAGEN_STUB_STDERR"
	stubExitEnv   = "DATAGEN_STUB_EXIT"
	stubSleepEnv  = "DATAGEN_STUB_SLEEP"
)

// TestMain lets the test binary double as a fake DIGen process.
func TestMain(m *testing.M) {
	if os.Getenv(stubEnv) == "1" {
		os.Exit(stubGenerator())
	}
	os.Exit(m.Run())
}

func stubGenerator() int {
	in := bufio.NewReader(os.Stdin)
	first, _ := in.ReadString('\n')
	second, _ := in.ReadString('\n')
	if first != "\n" || second != "YES\n" {
		fmt.Fprintf(os.Stderr, "unexpected handshake %q %q\n", first, second)
		return 3
	}

	n, _ := strconv.Atoi(os.Getenv(stubLinesEnv))
	for i := range n {
		fmt.Printf("generating block %d\n", i)
	}
	if msg := os.Getenv(stubStderrEnv); msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	if d, err := time.ParseDuration(os.Getenv(stubSleepEnv)); err == nil {
		time.Sleep(d)
	}
	code, _ := strconv.Atoi(os.Getenv(stubExitEnv))
	return code
}

func newStubRunner(t *testing.T, env ...string) (*Runner, string) {
	t.Helper()
	toolDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(toolDir, ArtifactName), []byte("jar"), 0o644))

	r := &Runner{
		Runtime:   os.Args[0],
		HeapFlag:  "-Xmx2g",
		Handshake: DefaultHandshake,
		Env:       append([]string{stubEnv + "=1"}, env...),
		logger:    zaptest.NewLogger(t),
	}
	return r, toolDir
}

func TestCommand(t *testing.T) {
	r := &Runner{Runtime: "java", HeapFlag: "-Xmx2g"}
	assert.Equal(t,
		[]string{"java", "-Xmx2g", "-jar", "/opt/datagen/DIGen.jar", "-sf", "10", "-o", "/out/sf=10"},
		r.Command("/opt/datagen", "10", "/out/sf=10"))
}

func TestRunMissingArtifact(t *testing.T) {
	r := &Runner{
		Runtime:   filepath.Join(t.TempDir(), "must-not-run"),
		HeapFlag:  "-Xmx2g",
		Handshake: DefaultHandshake,
		logger:    zaptest.NewLogger(t),
	}
	var lines []string
	r.OnLine = func(line string) { lines = append(lines, line) }

	res, err := r.Run(context.Background(), t.TempDir(), "1", t.TempDir())
	require.Error(t, err)
	assert.True(t, ErrMissingArtifact.Equal(err))
	assert.Nil(t, res)
	assert.Empty(t, lines)
}

func TestRunCountsStdoutLines(t *testing.T) {
	r, toolDir := newStubRunner(t, stubLinesEnv+"=25", stubExitEnv+"=0")
	var seen []string
	r.OnLine = func(line string) { seen = append(seen, line) }

	res, err := r.Run(context.Background(), toolDir, "1", t.TempDir())
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, 25, res.Lines)
	require.Len(t, seen, 25)
	assert.Equal(t, "generating block 0", seen[0])
	assert.Equal(t, "generating block 24", seen[24])
	assert.False(t, res.DependencyErrorDetected)
}

func TestRunDrainsLinesWrittenJustBeforeExit(t *testing.T) {
	r, toolDir := newStubRunner(t, stubLinesEnv+"=5000", stubExitEnv+"=0")

	res, err := r.Run(context.Background(), toolDir, "1", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 5000, res.Lines)
}

func TestRunDetectsDependencyError(t *testing.T) {
	r, toolDir := newStubRunner(t,
		stubLinesEnv+"=1",
		stubStderrEnv+"=Exception in thread \"main\" java.lang.NoClassDefFoundError: org/apache/Foo",
		stubExitEnv+"=1",
	)

	res, err := r.Run(context.Background(), toolDir, "1", t.TempDir())
	require.Error(t, err)
	assert.True(t, ErrGenerationFailed.Equal(err))
	require.NotNil(t, res)
	assert.False(t, res.Succeeded())
	assert.Equal(t, 1, res.ExitCode)
	assert.True(t, res.DependencyErrorDetected)
	assert.NotEmpty(t, res.Hint)
	assert.Contains(t, res.Stderr, "NoClassDefFoundError")
}

func TestRunClassNotFoundKeepsExitCode(t *testing.T) {
	r, toolDir := newStubRunner(t,
		stubStderrEnv+"=java.lang.ClassNotFoundException: Foo",
		stubExitEnv+"=0",
	)

	res, err := r.Run(context.Background(), toolDir, "1", t.TempDir())
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.True(t, res.DependencyErrorDetected)
}

func TestRunNonzeroExitWithoutSignature(t *testing.T) {
	r, toolDir := newStubRunner(t, stubStderrEnv+"=disk full", stubExitEnv+"=2")

	res, err := r.Run(context.Background(), toolDir, "1", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.False(t, res.DependencyErrorDetected)
	assert.Empty(t, res.Hint)
}

func TestRunForcedTerminationIsFailure(t *testing.T) {
	r, toolDir := newStubRunner(t, stubSleepEnv+"=30s")
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	res, err := r.Run(ctx, toolDir, "1", t.TempDir())
	require.Error(t, err)
	assert.True(t, ErrGenerationFailed.Equal(err))
	assert.False(t, res.Succeeded())
}

func TestRunRejectsBadHandshake(t *testing.T) {
	r, toolDir := newStubRunner(t)
	r.Handshake = Handshake{InitialPrompt: "\n", ConfirmationToken: "NO\n"}

	res, err := r.Run(context.Background(), toolDir, "1", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestRuntimeVersionFailure(t *testing.T) {
	_, err := RuntimeVersion(context.Background(), filepath.Join(t.TempDir(), "no-java"))
	require.Error(t, err)
}
