package sandbox

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"codementor/internal/tester"
	"codementor/internal/types/mentor"
)

func newTestExecutor(t *testing.T, timeout time.Duration) (*Executor, string) {
	t.Helper()
	root := t.TempDir()
	return NewExecutor(Config{Root: root, Timeout: timeout}), root
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	tester.NoErr(t, err)
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected no leftover workspaces, found %v", names)
	}
}

func TestRunSuccessCapturesOutput(t *testing.T) {
	ex, root := newTestExecutor(t, 5*time.Second)
	files := mentor.FileSet{"pkg/nested/hello.txt": "hi there"}

	res := ex.Run(context.Background(), "job-1", files, "cat pkg/nested/hello.txt; echo warn >&2")
	tester.False(t, res.Error, res.Stderr)
	tester.Eq(t, res.Stdout, "hi there")
	tester.Eq(t, res.Stderr, "warn\n")
	assertEmptyDir(t, root)
}

func TestRunNonZeroExitIsError(t *testing.T) {
	ex, root := newTestExecutor(t, 5*time.Second)
	res := ex.Run(context.Background(), "job-2", mentor.FileSet{"a.sh": "exit 3"}, "echo boom >&2; sh a.sh")
	tester.True(t, res.Error)
	tester.Eq(t, res.Stderr, "boom\n")
	assertEmptyDir(t, root)
}

func TestRunUnknownCommandIsError(t *testing.T) {
	ex, root := newTestExecutor(t, 5*time.Second)
	res := ex.Run(context.Background(), "job-3", nil, "definitely-not-a-real-command-xyz")
	tester.True(t, res.Error)
	tester.True(t, res.Stderr != "", "expected a failure description")
	assertEmptyDir(t, root)
}

func TestRunTimeout(t *testing.T) {
	ex, root := newTestExecutor(t, 200*time.Millisecond)
	start := time.Now()
	res := ex.Run(context.Background(), "job-4", nil, "sleep 5")
	tester.True(t, time.Since(start) < 3*time.Second, "timeout did not stop the command")
	tester.Eq(t, res, mentor.SandboxResult{Stdout: "", Stderr: TimeoutMessage, Error: true})
	assertEmptyDir(t, root)
}

func TestRunRejectsEscapingPaths(t *testing.T) {
	ex, root := newTestExecutor(t, time.Second)
	res := ex.Run(context.Background(), "job-5", mentor.FileSet{"../evil.txt": "x"}, "true")
	tester.True(t, res.Error)
	tester.Contains(t, res.Stderr, "escapes")
	assertEmptyDir(t, root)
}

func TestRunEmptyCommand(t *testing.T) {
	ex, _ := newTestExecutor(t, time.Second)
	res := ex.Run(context.Background(), "job-6", nil, "  ")
	tester.True(t, res.Error)
}

func TestConcurrentRunsAreIsolated(t *testing.T) {
	ex, root := newTestExecutor(t, 5*time.Second)
	var wg sync.WaitGroup
	results := make([]mentor.SandboxResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			files := mentor.FileSet{fmt.Sprintf("only_%d.txt", i): "x"}
			results[i] = ex.Run(context.Background(), "same-id", files, "sleep 0.2; ls")
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		tester.False(t, res.Error, res.Stderr)
		tester.Contains(t, res.Stdout, fmt.Sprintf("only_%d.txt", i))
		tester.False(t, strings.Contains(res.Stdout, fmt.Sprintf("only_%d.txt", 1-i)), "runs observed each other's files")
	}
	assertEmptyDir(t, root)
}

func TestOutputIsCapped(t *testing.T) {
	ex := NewExecutor(Config{Root: t.TempDir(), MaxOutputBytes: 4})
	res := ex.Run(context.Background(), "job-7", nil, "printf 0123456789")
	tester.False(t, res.Error)
	tester.Eq(t, res.Stdout, "0123\n[output truncated]")
}

func TestDirSafe(t *testing.T) {
	tester.Eq(t, dirSafe("job-ab_12"), "job-ab_12")
	tester.Eq(t, dirSafe("../x y"), "___x_y")
	tester.Eq(t, dirSafe(""), "job")
}

func TestRunHidesHostSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-host")
	t.Setenv("CACHE_PG_DSN", "postgres://u:p@db/x")
	t.Setenv("CODEMENTOR_SANDBOX_MARKER", "visible")
	ex, _ := newTestExecutor(t, 5*time.Second)

	res := ex.Run(context.Background(), "job-env", nil,
		`echo "${OPENAI_API_KEY:-unset} ${CACHE_PG_DSN:-unset} ${CODEMENTOR_SANDBOX_MARKER:-unset}"`)
	tester.False(t, res.Error, res.Stderr)
	tester.Eq(t, res.Stdout, "unset unset visible\n")
}
