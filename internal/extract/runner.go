package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spigell/resume-batch/internal/document"
	"github.com/spigell/resume-batch/internal/utils"
	"go.uber.org/zap"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, logger *zap.Logger, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, logger *zap.Logger, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()

	if err != nil {
		logger.Warn("exec failed",
			zap.String("cmd", name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
			zap.String("stderr", utils.TruncateForLog(errb.String(), 2048)),
		)
	} else {
		logger.Debug("exec ok",
			zap.String("cmd", name),
			zap.String("args", strings.Join(args, " ")),
			zap.Duration("duration", time.Since(start)),
			zap.Int("stdout_bytes", out.Len()),
		)
	}

	return out.Bytes(), errb.Bytes(), err
}

func pdftotextArgs(path string) []string {
	return []string{"-layout", "-enc", "UTF-8", "-eol", "unix", path, "-"}
}

func antiwordArgs(path string) []string {
	return []string{"-w", "0", path}
}

// commandReader feeds a file path to an external converter that prints text on stdout.
type commandReader struct {
	tool   string
	args   func(path string) []string
	runner Runner
	logger *zap.Logger
}

func (c *commandReader) Read(ctx context.Context, ref document.Ref, data []byte) (string, error) {
	path := ref.Path
	if ref.InMemory() || path == "" {
		tmp, cleanup, err := spill(ref, data)
		if err != nil {
			return "", err
		}
		defer cleanup()
		path = tmp
	}

	stdout, stderr, err := c.runner.Run(ctx, c.tool, c.logger, c.args(path)...)
	if err != nil {
		if msg := utils.SingleLine(string(stderr)); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", c.tool, err, utils.TruncateForLog(msg, 200))
		}
		return "", fmt.Errorf("%s: %w", c.tool, err)
	}

	return decodeText(stdout), nil
}

// spill writes in-memory content to a temporary file for tools that only accept paths.
func spill(ref document.Ref, data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "resume-*"+filepath.Ext(ref.Name))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}

	return f.Name(), cleanup, nil
}
