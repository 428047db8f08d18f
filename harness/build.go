package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// Build runs the benchmark build command inside dir. Build output is
// streamed to stderr; a non-zero exit is returned as an error.
func Build(
	ctx context.Context,
	logger *slog.Logger,
	dir string,
	command []string,
) error {
	if len(command) == 0 {
		return errors.New("empty build command")
	}

	logger.InfoContext(ctx, "building participants",
		slog.String("dir", dir),
		slog.Any("command", command),
	)

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = dir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	start := time.Now()

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("build %v: %w", command, err)
	}

	logger.InfoContext(ctx, "build finished",
		slog.Duration("elapsed", time.Since(start)),
	)

	return nil
}
