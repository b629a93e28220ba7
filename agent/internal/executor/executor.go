package executor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxLineBytes bounds one stderr line. Longer runs are handed on in chunks
// so the pipe never stops being read.
const maxLineBytes = 64 * 1024

type CommandResult struct {
	Success  bool
	Output   string
	ExitCode int
	Duration time.Duration
}

// Job is one input file and where its result goes.
type Job struct {
	Input  string
	Output string
}

type Executor struct {
	argv    []string
	timeout time.Duration
	logger  *zap.Logger
}

// NewExecutor runs argv per job, replacing {input} and {output} in each
// argument.
func NewExecutor(argv []string, timeout time.Duration, logger *zap.Logger) *Executor {
	if timeout == 0 {
		timeout = 12 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{argv: argv, timeout: timeout, logger: logger}
}

func (e *Executor) Args(job Job) []string {
	r := strings.NewReplacer("{input}", job.Input, "{output}", job.Output)
	out := make([]string, len(e.argv))
	for i, a := range e.argv {
		out[i] = r.Replace(a)
	}
	return out
}

// Execute runs the job and hands every stderr line to onLine as it arrives.
func (e *Executor) Execute(ctx context.Context, job Job, onLine func(string)) (*CommandResult, error) {
	if len(e.argv) == 0 {
		return nil, fmt.Errorf("no command configured")
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := e.Args(job)
	start := time.Now()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return &CommandResult{ExitCode: -1, Output: err.Error()}, err
	}

	var last string
	if err := streamLines(stderr, func(line string) {
		last = line
		if onLine != nil {
			onLine(line)
		}
	}); err != nil {
		e.logger.Warn("executor_stderr_read_failed", zap.String("input", job.Input), zap.Error(err))
	}

	err = cmd.Wait()
	result := &CommandResult{
		Duration: time.Since(start),
		Output:   stdout.String(),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.Output = "command timed out"
			result.ExitCode = -1
			return result, fmt.Errorf("command timed out after %v", e.timeout)
		}

		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			result.Output = last
		} else {
			result.ExitCode = -1
			result.Output = err.Error()
		}
		return result, err
	}

	result.Success = true
	return result, nil
}

// streamLines splits on both \n and \r since encoders redraw their status
// line with carriage returns. r is always read to EOF, even after a read
// error, so the child can never block on a full pipe.
func streamLines(r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	sc.Split(scanCRLF)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			fn(line)
		}
	}
	if err := sc.Err(); err != nil {
		io.Copy(io.Discard, r)
		return err
	}
	return nil
}

func scanCRLF(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 && i < maxLineBytes {
		return i + 1, data[:i], nil
	}
	if len(data) >= maxLineBytes {
		return maxLineBytes, data[:maxLineBytes], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
