package logging

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
)

func TestWithPrefixBeforeInit(t *testing.T) {
	saved := Logger
	Logger = nil
	defer func() { Logger = saved }()

	l := WithPrefix("engine")
	if l == nil {
		t.Fatal("WithPrefix must never hand back a nil logger")
	}
	l.Info("goes nowhere")
}

func TestWithPrefixScopesSubsystem(t *testing.T) {
	saved := Logger
	Logger = log.New(io.Discard)
	defer func() { Logger = saved }()

	if got := WithPrefix("realtime").GetPrefix(); got != "realtime" {
		t.Errorf("prefix = %q, want realtime", got)
	}
}
