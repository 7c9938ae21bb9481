package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability. When onLine is
// non-nil each stdout line is forwarded as it is produced, which is how the
// engine observes the ffmpeg progress stream.
type commandRunner interface {
	Run(ctx context.Context, onLine func(line string), name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, onLine func(line string), name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	var err error
	if onLine == nil {
		cmd.Stdout = &stdout
		err = cmd.Run()
	} else {
		err = r.runStreaming(cmd, &stdout, onLine)
	}

	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// runStreaming runs the command while forwarding stdout line by line.
func (r *execRunner) runStreaming(cmd *exec.Cmd, stdout *bytes.Buffer, onLine func(line string)) error {
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		stdout.WriteString(line)
		stdout.WriteByte('\n')
		onLine(line)
	}

	return cmd.Wait()
}
