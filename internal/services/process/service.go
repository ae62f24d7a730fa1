// Package process launches external tools and reduces their exit status to
// a ProcessOutcome.
package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/fgeck/gopgbackup/internal/models"
	"github.com/rs/zerolog"
)

// maxLineSize bounds a single streamed stdout line. Longer lines are
// delivered in pieces of at least this size.
const maxLineSize = 1024 * 1024

const readBufferSize = 64 * 1024

// defaultWaitDelay bounds how long Wait blocks on pipes after the process
// exited or was killed.
const defaultWaitDelay = 5 * time.Second

// Service defines the interface for running external processes.
type Service interface {
	Run(ctx context.Context, cmd models.Command, onLine func(line string)) (*models.ProcessOutcome, error)
}

// Impl implements the process Service interface using os/exec.
type Impl struct {
	logger    zerolog.Logger
	environ   func() []string
	waitDelay time.Duration
}

// New creates a new process runner inheriting the current environment.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		logger:    logger,
		environ:   os.Environ,
		waitDelay: defaultWaitDelay,
	}
}

// NewWithEnviron creates a process runner with a custom base environment (for testing).
func NewWithEnviron(logger zerolog.Logger, environ func() []string) *Impl {
	return &Impl{
		logger:    logger,
		environ:   environ,
		waitDelay: defaultWaitDelay,
	}
}

// Run launches c and blocks until it exits.
//
// A launch that fails to start yields an outcome with StartErr set. The
// returned error is reserved for problems on our side: the stdin file cannot
// be opened or the captured output cannot be written.
func (s *Impl) Run(ctx context.Context, c models.Command, onLine func(line string)) (*models.ProcessOutcome, error) {
	start := time.Now()
	outcome := &models.ProcessOutcome{ExitCode: -1}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = mergeEnv(s.environ(), c.Env)
	cmd.WaitDelay = s.waitDelay
	configureProcessGroup(cmd)

	if c.StdinFile != "" {
		stdin, err := os.Open(c.StdinFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open stdin file: %w", err)
		}
		defer func() { _ = stdin.Close() }()
		cmd.Stdin = stdin
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	s.logger.Debug().
		Str("command", c.Display()).
		Bool("capture", c.Mode == models.OutputCapture).
		Msg("starting process")

	var err error
	if c.Mode == models.OutputCapture {
		err = s.runCapture(cmd, c.StdoutFile, outcome)
	} else {
		err = s.runStream(cmd, onLine, outcome)
	}

	outcome.Stderr = stderr.String()
	outcome.Duration = time.Since(start)

	if outcome.StartFailed() {
		s.logger.Debug().Err(outcome.StartErr).Str("tool", c.Name).Msg("process failed to start")
	} else {
		s.logger.Debug().
			Str("tool", c.Name).
			Int("exit_code", outcome.ExitCode).
			Dur("duration", outcome.Duration).
			Msg("process finished")
	}

	return outcome, err
}

// runCapture buffers all of stdout and writes it verbatim to target once the
// process has exited, whatever its exit code.
func (s *Impl) runCapture(cmd *exec.Cmd, target string, outcome *models.ProcessOutcome) error {
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Start(); err != nil {
		outcome.StartErr = err
		return nil
	}

	classify(cmd, cmd.Wait(), outcome)

	if target == "" {
		return nil
	}
	if err := os.WriteFile(target, stdout.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write captured output: %w", err)
	}
	outcome.StdoutBytes = int64(stdout.Len())

	return nil
}

// runStream hands every stdout line to onLine as soon as it is read.
func (s *Impl) runStream(cmd *exec.Cmd, onLine func(string), outcome *models.ProcessOutcome) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		outcome.StartErr = err
		return nil
	}

	deliver := func(line []byte) {
		text := string(line)
		outcome.StdoutLines = append(outcome.StdoutLines, text)
		if onLine != nil {
			onLine(text)
		}
	}

	reader := bufio.NewReaderSize(stdout, readBufferSize)
	var line []byte
	split := false
	for {
		chunk, isPrefix, readErr := reader.ReadLine()
		if readErr != nil {
			if len(line) > 0 {
				deliver(line)
			}
			if !errors.Is(readErr, io.EOF) {
				s.logger.Warn().Err(readErr).Msg("stopped streaming output")
				// Keep the pipe drained so the child cannot block on a full buffer.
				_, _ = io.Copy(io.Discard, stdout)
			}
			break
		}

		outcome.StdoutBytes += int64(len(chunk))
		line = append(line, chunk...)

		if isPrefix {
			if len(line) >= maxLineSize {
				if !split {
					outcome.SplitLines++
					s.logger.Debug().Int("limit", maxLineSize).Msg("splitting over-long output line")
				}
				deliver(line)
				line = line[:0]
				split = true
			}
			continue
		}

		outcome.StdoutBytes++
		// The tail of a split line can be empty when the newline lands on a piece boundary.
		if !split || len(line) > 0 {
			deliver(line)
		}
		line = line[:0]
		split = false
	}

	classify(cmd, cmd.Wait(), outcome)
	return nil
}

func classify(cmd *exec.Cmd, waitErr error, outcome *models.ProcessOutcome) {
	if cmd.ProcessState != nil {
		outcome.ExitCode = cmd.ProcessState.ExitCode()
	}
	outcome.Succeeded = outcome.ExitCode == 0 &&
		(waitErr == nil || errors.Is(waitErr, exec.ErrWaitDelay))
}

// mergeEnv appends the overlay to base. os/exec keeps the last value of a
// duplicated key, so the overlay wins without touching our own environment.
func mergeEnv(base []string, overlay map[string]string) []string {
	env := make([]string, 0, len(base)+len(overlay))
	env = append(env, base...)

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, k+"="+overlay[k])
	}
	return env
}
