package logger_test

import (
	"errors"
	"testing"

	"github.com/evdnx/gopyra/logger"
	"github.com/evdnx/gopyra/testutils"
)

func TestMockLogger(t *testing.T) {
	l := testutils.NewMockLogger()
	l.Info("hello", logger.String("k", "v"))
	if got := l.LastMessage(); got != "hello" {
		t.Fatalf("expected last message 'hello', got %q", got)
	}
}

func TestNopLoggerAcceptsFields(t *testing.T) {
	l := logger.NewNop()
	l.Debug("debug_event", logger.Int("n", 1))
	l.Info("info_event", logger.Float64("x", 1.5), logger.Bool("ok", true))
	l.Warn("warn_event", logger.Err(errors.New("boom")))
	l.Error("error_event", logger.Err(nil))
}

func TestNewZapLoggerLevel(t *testing.T) {
	if _, err := logger.NewZapLoggerLevel("debug"); err != nil {
		t.Fatalf("debug level rejected: %v", err)
	}
	if _, err := logger.NewZapLoggerLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestSyncFlushesOrSkips(t *testing.T) {
	if err := logger.Sync(logger.NewNop()); err != nil {
		t.Fatalf("nop sync: %v", err)
	}
	// the mock has no buffer to flush
	if err := logger.Sync(testutils.NewMockLogger()); err != nil {
		t.Fatalf("mock sync: %v", err)
	}
}
