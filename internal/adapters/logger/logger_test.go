package logger_test

import (
	"io"
	"os"
	"strings"
	"testing"

	"go.trai.ch/memo/internal/adapters/logger"
)

// captureStderr redirects os.Stderr for the duration of fn and returns
// everything written to it.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()

	original := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stderr = w

	done := make(chan string, 1)
	go func() {
		buf, _ := io.ReadAll(r)
		done <- string(buf)
	}()

	fn()

	_ = w.Close()
	output := <-done
	_ = r.Close()
	os.Stderr = original
	return output
}

func TestLogger_Info(t *testing.T) {
	output := captureStderr(t, func() {
		lg := logger.New()
		lg.Info("some message")
	})

	if !strings.Contains(output, "some message") {
		t.Errorf("expected output to contain 'some message', got: %s", output)
	}
	if !strings.Contains(output, "INFO") {
		t.Errorf("expected output to contain 'INFO', got: %s", output)
	}
}

func TestLogger_Warn(t *testing.T) {
	output := captureStderr(t, func() {
		lg := logger.New()
		lg.Warn("some warning")
	})

	if !strings.Contains(output, "some warning") {
		t.Errorf("expected output to contain 'some warning', got: %s", output)
	}
	if !strings.Contains(output, "WARN") {
		t.Errorf("expected output to contain 'WARN', got: %s", output)
	}
}

func TestLogger_Error(t *testing.T) {
	output := captureStderr(t, func() {
		lg := logger.New()
		lg.Error(os.ErrPermission)
	})

	if !strings.Contains(output, "permission denied") {
		t.Errorf("expected output to contain the error, got: %s", output)
	}
	if !strings.Contains(output, "ERROR") {
		t.Errorf("expected output to contain 'ERROR', got: %s", output)
	}
}

func TestLogger_SetOutput(t *testing.T) {
	lg := logger.New()
	concrete, ok := lg.(*logger.Logger)
	if !ok {
		t.Fatalf("expected *logger.Logger, got %T", lg)
	}

	var buf strings.Builder
	concrete.SetOutput(&buf)
	lg.Info("redirected")

	if !strings.Contains(buf.String(), "redirected") {
		t.Errorf("expected redirected output, got: %s", buf.String())
	}
}
