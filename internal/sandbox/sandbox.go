// Package sandbox runs submitted files against a command inside a throwaway directory.
//
// The only isolation is the per-job directory and a wall-clock timeout. The command
// runs with the full privileges of the host process.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"codementor/internal/safeio"
	"codementor/internal/types/mentor"
)

// TimeoutMessage is the stderr reported when a command exceeds its time bound.
const TimeoutMessage = "Execution timed out."

const (
	DefaultTimeout        = 10 * time.Second
	DefaultShell          = "sh"
	DefaultMaxOutputBytes = 1 << 20
)

// Runner is anything that can execute a job. Both Executor and Pool satisfy it.
type Runner interface {
	Run(ctx context.Context, jobID string, files mentor.FileSet, command string) mentor.SandboxResult
}

type Config struct {
	// Root is the parent for job directories; empty means os.TempDir().
	Root           string
	Timeout        time.Duration
	Shell          string
	MaxOutputBytes int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(c.Shell) == "" {
		c.Shell = DefaultShell
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = DefaultMaxOutputBytes
	}
	return c
}

// Executor runs one job per call. It holds no per-job state and is safe for concurrent use.
type Executor struct {
	cfg Config
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{cfg: cfg.withDefaults()}
}

func (e *Executor) Timeout() time.Duration { return e.cfg.Timeout }

// NewJobID returns a fresh identifier for a sandbox job.
func NewJobID() string {
	return "job-" + uuid.NewString()
}

// Run materializes files into a fresh directory, runs command there and removes the
// directory before returning, whatever the outcome.
func (e *Executor) Run(ctx context.Context, jobID string, files mentor.FileSet, command string) (res mentor.SandboxResult) {
	if strings.TrimSpace(command) == "" {
		return failure(errors.New("empty command"))
	}
	dir, err := os.MkdirTemp(e.cfg.Root, "sandbox-"+dirSafe(jobID)+"-")
	if err != nil {
		return failure(fmt.Errorf("create workspace: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("sandbox %s: cleanup %s: %v", jobID, dir, err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			res = failure(fmt.Errorf("sandbox panic: %v", r))
		}
	}()

	if err := materialize(dir, files); err != nil {
		return failure(err)
	}
	return e.execute(ctx, jobID, dir, command)
}

func (e *Executor) execute(ctx context.Context, jobID, dir, command string) mentor.SandboxResult {
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.Command(e.cfg.Shell, "-c", command)
	cmd.Dir = dir
	cmd.Env = childEnv(os.Environ())
	setProcessGroup(cmd)
	// Grandchildren that keep the pipes open must not hold Wait forever.
	cmd.WaitDelay = time.Second

	stdout := &cappedBuffer{max: e.cfg.MaxOutputBytes}
	stderr := &cappedBuffer{max: e.cfg.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return failure(fmt.Errorf("start command: %w", err))
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-runCtx.Done():
		killProcessGroup(cmd)
		<-done
		if ctx.Err() != nil {
			return failure(fmt.Errorf("execution cancelled: %w", ctx.Err()))
		}
		log.Printf("sandbox %s: timed out after %s", jobID, e.cfg.Timeout)
		return mentor.SandboxResult{Stderr: TimeoutMessage, Error: true}
	case err := <-done:
		log.Printf("sandbox %s: finished in %s", jobID, time.Since(start).Round(time.Millisecond))
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return failure(err)
			}
		}
		return mentor.SandboxResult{
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Error:  err != nil,
		}
	}
}

func materialize(dir string, files mentor.FileSet) error {
	ws, err := safeio.NewSafeFS(dir)
	if err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}
	for _, rel := range files.SortedPaths() {
		if err := mentor.ValidatePath(rel); err != nil {
			return err
		}
		if err := ws.WriteFile(rel, []byte(files[rel]), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return nil
}

// secretEnv names host credentials that submitted code never sees.
var secretEnv = map[string]bool{
	"OPENAI_API_KEY":      true,
	"GEMINI_API_KEY":      true,
	"GOOGLE_API_KEY":      true,
	"CACHE_PG_DSN":        true,
	"CACHE_S3_ACCESS_KEY": true,
	"CACHE_S3_SECRET_KEY": true,
}

func childEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if secretEnv[name] {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func failure(err error) mentor.SandboxResult {
	return mentor.SandboxResult{Stderr: err.Error(), Error: true}
}

func dirSafe(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 64 {
			break
		}
	}
	if b.Len() == 0 {
		return "job"
	}
	return b.String()
}

// cappedBuffer keeps at most max bytes and silently drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.max - c.buf.Len()
	if room <= 0 {
		c.truncated = len(p) > 0 || c.truncated
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	if c.truncated {
		return c.buf.String() + "\n[output truncated]"
	}
	return c.buf.String()
}
