// Package runner provides the local process runner adapter.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/memo/internal/core/ports"
	"go.trai.ch/zerr"
)

// Local implements ports.Runner with /bin/sh on the host. Each run gets a
// fresh scratch directory with the node's input artifacts materialized
// under inputs/, addressed by digest. The instruction's stdout becomes the
// output artifact; stderr streams to the logger.
type Local struct {
	logger ports.Logger
}

// NewLocal creates a local process runner.
func NewLocal(logger ports.Logger) *Local {
	return &Local{logger: logger}
}

// Run executes the instruction and returns the produced artifact.
//
// The environment is the host environment with env applied on top, plus
// MEMO_INPUTS pointing at the materialized input directory. A non-zero
// exit surfaces as domain.ErrRunnerFailed carrying the exit code.
func (l *Local) Run(ctx context.Context, instruction string, inputs []domain.Artifact, env []string) (domain.Artifact, error) {
	scratch, err := os.MkdirTemp("", "memo-run-*")
	if err != nil {
		return domain.Artifact{}, zerr.Wrap(err, "failed to create scratch directory")
	}
	defer os.RemoveAll(scratch)

	inputDir := filepath.Join(scratch, "inputs")
	if err := l.materialize(inputDir, inputs); err != nil {
		return domain.Artifact{}, err
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", instruction)
	cmd.Dir = scratch
	cmd.Env = mergeEnv(os.Environ(), append(env, "MEMO_INPUTS="+inputDir))

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &logWriter{logger: l.logger}

	if vertex := ports.VertexFromContext(ctx); vertex != nil {
		cmd.Stdout = io.MultiWriter(&stdout, vertex.Stdout())
		cmd.Stderr = io.MultiWriter(&logWriter{logger: l.logger}, vertex.Stderr())
	}

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Artifact{}, ctxErr
		}
		wrapped := domain.Tag(domain.ErrRunnerFailed, "exit_code", exitCode)
		return domain.Artifact{}, zerr.With(wrapped, "instruction", instruction)
	}

	data := stdout.Bytes()
	return domain.Artifact{Digest: digest.FromBytes(data), Data: data}, nil
}

// materialize writes each input artifact to inputDir/<digest> so the
// instruction can address its dependencies by content.
func (l *Local) materialize(inputDir string, inputs []domain.Artifact) error {
	if err := os.MkdirAll(inputDir, domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create input directory")
	}
	for _, input := range inputs {
		path := filepath.Join(inputDir, input.Digest.Encoded())
		//nolint:gosec // Filenames are hex digests
		if err := os.WriteFile(path, input.Data, domain.FilePerm); err != nil {
			return zerr.Wrap(err, fmt.Sprintf("failed to materialize input %s", input.Digest))
		}
	}
	return nil
}

// mergeEnv layers overrides on top of the base environment, later entries
// winning per key.
func mergeEnv(base, overrides []string) []string {
	envMap := make(map[string]string, len(base)+len(overrides))
	order := make([]string, 0, len(base)+len(overrides))
	for _, entry := range append(base, overrides...) {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if _, seen := envMap[k]; !seen {
			order = append(order, k)
		}
		envMap[k] = v
	}

	result := make([]string, 0, len(order))
	for _, k := range order {
		result = append(result, k+"="+envMap[k])
	}
	return result
}

// logWriter streams subprocess stderr into the logger line by line.
type logWriter struct {
	logger ports.Logger
}

func (w *logWriter) Write(p []byte) (int, error) {
	for line := range strings.Lines(strings.TrimSuffix(string(p), "\n")) {
		w.logger.Info(strings.TrimSuffix(line, "\n"))
	}
	return len(p), nil
}
