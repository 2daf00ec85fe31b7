// Package media wraps the external media tools (ffprobe, ffmpeg, tesseract)
// and the in-process audio decoding the analysis pipelines rely on.
// Every tool runs as a subprocess bound to the caller's context, so a
// cancelled request kills the child process.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// stderr kept for diagnostics; ffmpeg prints its banner first, so the tail
// is the useful part.
const stderrTailBytes = 8 * 1024

// ToolError is a media subprocess that did not exit cleanly.
type ToolError struct {
	Op       string
	ExitCode int // -1 when the process never started or was killed
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s exited %d: %s", e.Op, e.ExitCode, clip(e.Stderr, 512))
}

func (e *ToolError) Unwrap() error { return e.Err }

// run executes binary and returns its stdout. op names the operation in
// errors and logs.
func run(ctx context.Context, logger *slog.Logger, op, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec

	var stdout bytes.Buffer
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err == nil {
		logger.Debug("media command finished", "op", op, "duration_ms", elapsed.Milliseconds())
		return stdout.Bytes(), nil
	}

	toolErr := &ToolError{Op: op, ExitCode: -1, Stderr: stderr.String(), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		toolErr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		toolErr.ExitCode = -1
		toolErr.Err = ctxErr
	}

	logger.Debug("media command failed",
		"op", op,
		"binary", binary,
		"exit_code", toolErr.ExitCode,
		"duration_ms", elapsed.Milliseconds(),
		"stderr_tail", clip(toolErr.Stderr, 512),
	)
	return nil, toolErr
}

// clip keeps the last max bytes of s.
func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}

// tailBuffer retains only the most recent limit bytes written to it.
type tailBuffer struct {
	buf   []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= t.limit {
		t.buf = append(t.buf[:0], p[n-t.limit:]...)
		return n, nil
	}
	if over := len(t.buf) + n - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
